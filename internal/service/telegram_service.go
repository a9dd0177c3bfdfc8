package service

import (
	"context"
	"fmt"

	"nordagri/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// TelegramNotifier posts sync summaries to an operator chat.
type TelegramNotifier struct {
	bot    domain.TelegramSender
	chatID int64
	logger *zerolog.Logger
}

func NewTelegramNotifier(bot domain.TelegramSender, chatID int64, logger *zerolog.Logger) *TelegramNotifier {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &TelegramNotifier{
		bot:    bot,
		chatID: chatID,
		logger: logger,
	}
}

// NewTelegramBot connects to the Bot API with token.
func NewTelegramBot(token string, debug bool) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	bot.Debug = debug
	return bot, nil
}

// OperationsSynced sends the summary. Delivery errors are logged, never returned,
// so a chat outage cannot affect the flush.
func (s *TelegramNotifier) OperationsSynced(_ context.Context, count int) {
	if _, err := s.SendMessage(SyncedMessage(count)); err != nil {
		s.logger.Warn().Err(err).Int64("chat_id", s.chatID).Msg("failed to send sync notification")
	}
}

func (s *TelegramNotifier) SendMessage(text string) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(s.chatID, text)
	return s.bot.Send(msg)
}

// SyncedMessage is the operator facing text for count synchronised operations.
func SyncedMessage(count int) string {
	return fmt.Sprintf("Synchronised %d record(s)", count)
}
