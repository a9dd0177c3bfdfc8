package offline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"nordagri/internal/domain"
	"nordagri/internal/models"
)

// Handler delivers one payload to the remote system.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Dispatcher routes queued operations to the remote write for their kind.
type Dispatcher struct {
	handlers map[models.OperationKind]Handler
}

// NewDispatcher binds every known kind to the matching RemoteWriter call.
func NewDispatcher(remote domain.RemoteWriter) *Dispatcher {
	d := &Dispatcher{handlers: make(map[models.OperationKind]Handler)}
	d.Register(models.KindTimeSession, remote.InsertTimeSession)
	d.Register(models.KindFuelLog, remote.InsertFuelLog)
	return d
}

// Register sets the handler for kind, replacing any previous one.
func (d *Dispatcher) Register(kind models.OperationKind, h Handler) {
	if d.handlers == nil {
		d.handlers = make(map[models.OperationKind]Handler)
	}
	d.handlers[kind] = h
}

func (d *Dispatcher) Handles(kind models.OperationKind) bool {
	_, ok := d.handlers[kind]
	return ok
}

// Validate fails when a kind from models.OperationKinds has no handler.
func (d *Dispatcher) Validate() error {
	var errs []error
	for _, kind := range models.OperationKinds() {
		if !d.Handles(kind) {
			errs = append(errs, fmt.Errorf("no handler for operation kind %q", kind))
		}
	}
	return errors.Join(errs...)
}

// Dispatch replays op. Unknown kinds and malformed payloads fail with a
// permanent error instead of being skipped.
func (d *Dispatcher) Dispatch(ctx context.Context, op models.QueuedOperation) error {
	if !op.Kind.IsKnown() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, op.Kind)
	}
	h, ok := d.handlers[op.Kind]
	if !ok {
		return fmt.Errorf("%w: no handler registered for %q", ErrUnknownKind, op.Kind)
	}
	if !isJSONObject(op.Payload) {
		return fmt.Errorf("%w: operation %s is not a JSON object", ErrInvalidPayload, op.ID)
	}
	return h(ctx, op.Payload)
}

func isJSONObject(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(trimmed)
}

// encodePayload turns a caller payload into the raw JSON object stored in the queue.
func encodePayload(payload any) (json.RawMessage, error) {
	var raw []byte
	switch p := payload.(type) {
	case json.RawMessage:
		raw = p
	case []byte:
		raw = p
	case string:
		raw = []byte(p)
	default:
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		raw = encoded
	}

	if !isJSONObject(raw) {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrInvalidPayload)
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return json.RawMessage(compact.Bytes()), nil
}
