package offline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"nordagri/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherRoutesByKind(t *testing.T) {
	remote := newFakeRemote()
	d := NewDispatcher(remote)
	ctx := context.Background()

	require.NoError(t, d.Validate())

	err := d.Dispatch(ctx, models.QueuedOperation{Kind: models.KindTimeSession, Payload: json.RawMessage(`{"equipment_id":1}`)})
	require.NoError(t, err)
	err = d.Dispatch(ctx, models.QueuedOperation{Kind: models.KindFuelLog, Payload: json.RawMessage(`{"equipment_id":2}`)})
	require.NoError(t, err)

	require.Len(t, remote.calls, 2)
	assert.Equal(t, models.KindTimeSession, remote.calls[0].kind)
	assert.Equal(t, models.KindFuelLog, remote.calls[1].kind)
}

func TestDispatcherPermanentErrors(t *testing.T) {
	d := NewDispatcher(newFakeRemote())
	ctx := context.Background()

	err := d.Dispatch(ctx, models.QueuedOperation{Kind: "harvest", Payload: json.RawMessage(`{}`)})
	assert.ErrorIs(t, err, ErrUnknownKind)
	assert.True(t, permanent(err))

	partial := &Dispatcher{}
	partial.Register(models.KindFuelLog, func(context.Context, json.RawMessage) error { return nil })
	err = partial.Dispatch(ctx, models.QueuedOperation{Kind: models.KindTimeSession, Payload: json.RawMessage(`{}`)})
	assert.ErrorIs(t, err, ErrUnknownKind)
	assert.ErrorContains(t, err, "no handler registered")

	for _, payload := range []string{``, `null`, `"text"`, `[1]`, `{"broken":`} {
		err := d.Dispatch(ctx, models.QueuedOperation{Kind: models.KindFuelLog, Payload: json.RawMessage(payload)})
		assert.ErrorIs(t, err, ErrInvalidPayload, "payload %q", payload)
	}
}

func TestDispatcherHandlerErrorIsRetryable(t *testing.T) {
	d := &Dispatcher{}
	d.Register(models.KindFuelLog, func(context.Context, json.RawMessage) error {
		return errors.New("503 service unavailable")
	})

	err := d.Dispatch(context.Background(), models.QueuedOperation{Kind: models.KindFuelLog, Payload: json.RawMessage(`{}`)})
	require.Error(t, err)
	assert.False(t, permanent(err))
}

func TestDispatcherValidateListsMissingKinds(t *testing.T) {
	d := &Dispatcher{}
	err := d.Validate()
	require.Error(t, err)
	for _, kind := range models.OperationKinds() {
		assert.Contains(t, err.Error(), string(kind))
	}
}

func TestEncodePayload(t *testing.T) {
	tests := []struct {
		name    string
		payload any
		want    string
		wantErr bool
	}{
		{name: "Struct", payload: models.TimeSession{EquipmentID: 7, DurationMinutes: 45}, want: `{"equipment_id":7,"duration_minutes":45}`},
		{name: "Map", payload: map[string]any{"equipment_id": 7}, want: `{"equipment_id":7}`},
		{name: "String", payload: ` {"a": 1} `, want: `{"a":1}`},
		{name: "Bytes", payload: []byte(`{"b":[1, 2]}`), want: `{"b":[1,2]}`},
		{name: "Array", payload: []string{"a"}, wantErr: true},
		{name: "Nil", payload: nil, wantErr: true},
		{name: "Unencodable", payload: map[string]any{"ch": make(chan int)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := encodePayload(tt.payload)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPayload)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(raw))
		})
	}
}
