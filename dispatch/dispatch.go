// Package dispatch maps inbound message types to registered handlers and
// converts every failure mode into a normal error response. Nothing in this
// package can terminate a connection: unknown types, handler errors, and
// handler panics all come back as a Response the caller sends like any other.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/shipanion/gateway/auth"
	"github.com/shipanion/gateway/pkg/protocol"
)

// HandlerFunc processes one inbound message for an authenticated principal.
// It returns the unicast response and an optional contextual update to be
// broadcast to the message's session. Handlers receive everything they need
// as arguments and never talk to the connection registry or session store
// directly; delivery policy stays in the router.
type HandlerFunc func(ctx context.Context, msg *protocol.Message, identity *auth.Identity) (*protocol.Response, *protocol.ContextualUpdate, error)

// Dispatcher routes messages by their type field.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	logger   *slog.Logger
}

// New creates an empty dispatcher.
func New(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		logger:   logger.With("component", "dispatch"),
	}
}

// Register binds a handler to a message type. Handlers are monomorphic per
// type: a later registration for the same type overwrites the earlier one.
func (d *Dispatcher) Register(msgType string, fn HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[msgType] = fn
}

// Dispatch invokes the handler registered for the message's type and returns
// its (response, update) pair. Failures of any kind yield an error response
// and no update; the update channel never carries failures.
//
// The response always carries the inbound requestId when one was supplied,
// and a fresh one otherwise.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *protocol.Message, identity *auth.Identity) (*protocol.Response, *protocol.ContextualUpdate) {
	requestID := msg.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	d.mu.RLock()
	fn, ok := d.handlers[msg.Type]
	d.mu.RUnlock()

	if msg.Type == "" || !ok {
		d.logger.Warn("no handler for message type", "type", msg.Type, "user", identity.Username)
		return d.errorResponse(msg, identity, requestID,
			fmt.Sprintf("Unsupported message type: %s", msg.Type)), nil
	}

	resp, update, err := d.invoke(ctx, fn, msg, identity)
	if err != nil {
		d.logger.Warn("handler failed", "type", msg.Type, "user", identity.Username, "error", err)
		return d.errorResponse(msg, identity, requestID, err.Error()), nil
	}

	// Normalize correlation and session fields so handlers don't have to.
	if resp.RequestID == "" {
		resp.RequestID = requestID
	}
	if resp.Timestamp == 0 {
		resp.Timestamp = protocol.Now()
	}
	if resp.User == "" {
		resp.User = identity.Username
	}
	if resp.SessionID == "" {
		resp.SessionID = msg.SessionID
	}
	if update != nil {
		if update.RequestID == "" {
			update.RequestID = resp.RequestID
		}
		if update.SessionID == "" {
			update.SessionID = msg.SessionID
		}
	}
	return resp, update
}

// invoke runs the handler with panic recovery so a buggy handler degrades to
// an error response instead of tearing down the connection's goroutine.
func (d *Dispatcher) invoke(ctx context.Context, fn HandlerFunc, msg *protocol.Message, identity *auth.Identity) (resp *protocol.Response, update *protocol.ContextualUpdate, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panic", "type", msg.Type, "panic", r)
			resp, update = nil, nil
			err = fmt.Errorf("internal error processing %s", msg.Type)
		}
	}()
	resp, update, err = fn(ctx, msg, identity)
	if err == nil && resp == nil {
		err = fmt.Errorf("handler for %s returned no response", msg.Type)
	}
	return resp, update, err
}

func (d *Dispatcher) errorResponse(msg *protocol.Message, identity *auth.Identity, requestID, text string) *protocol.Response {
	return &protocol.Response{
		Type: protocol.TypeError,
		Payload: protocol.ErrorPayload{
			Message:         text,
			OriginalRequest: msg,
		},
		IsError:   true,
		Timestamp: protocol.Now(),
		RequestID: requestID,
		User:      identity.Username,
		SessionID: msg.SessionID,
	}
}
