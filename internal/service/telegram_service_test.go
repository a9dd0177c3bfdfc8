package service

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockTelegramSender struct {
	mock.Mock
}

func (m *mockTelegramSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

func TestTelegramNotifier(t *testing.T) {
	mockSender := new(mockTelegramSender)
	notifier := NewTelegramNotifier(mockSender, 123, nil)

	t.Run("OperationsSynced", func(t *testing.T) {
		mockSender.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
			msg, ok := c.(tgbotapi.MessageConfig)
			return ok && msg.Text == "Synchronised 3 record(s)" && msg.ChatID == 123
		})).Return(tgbotapi.Message{}, nil).Once()

		notifier.OperationsSynced(context.Background(), 3)
		mockSender.AssertExpectations(t)
	})

	t.Run("SendErrorIsSwallowed", func(t *testing.T) {
		mockSender.On("Send", mock.Anything).Return(tgbotapi.Message{}, errors.New("chat not found")).Once()

		assert.NotPanics(t, func() {
			notifier.OperationsSynced(context.Background(), 1)
		})
		mockSender.AssertExpectations(t)
	})

	t.Run("SendMessage", func(t *testing.T) {
		mockSender.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
			msg, ok := c.(tgbotapi.MessageConfig)
			return ok && msg.Text == "hello"
		})).Return(tgbotapi.Message{MessageID: 9}, nil).Once()

		msg, err := notifier.SendMessage("hello")
		assert.NoError(t, err)
		assert.Equal(t, 9, msg.MessageID)
		mockSender.AssertExpectations(t)
	})
}

func TestSyncedMessage(t *testing.T) {
	assert.Equal(t, "Synchronised 1 record(s)", SyncedMessage(1))
	assert.Equal(t, "Synchronised 12 record(s)", SyncedMessage(12))
}
