// Package subs implements the subscription router that delivers inbound
// signaling messages to the peer-connection instance they belong to.
//
// Keys come in two families: a session key (the bare connection id) owned by
// the call/transfer handler, and a pair key (connection id + opponent id)
// owned by a single peer link. The router is an owned object created with the
// application and injected through constructors; it is never global state.
package subs

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrAlreadySubscribed is returned when a key is subscribed twice without an
// intervening Unsubscribe. Silently replacing the previous handler would leak
// the resources it tracks, so this is treated as a caller bug.
var ErrAlreadySubscribed = errors.New("key already has a subscriber")

// Message is anything the router can deliver. RouterKey returns the key the
// message is addressed to.
type Message interface {
	RouterKey() string
}

// Handler receives messages delivered by the router.
type Handler interface {
	HandleMessage(msg Message)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(msg Message)

// HandleMessage calls f(msg).
func (f HandlerFunc) HandleMessage(msg Message) { f(msg) }

// SessionKey returns the router key for session-scoped handlers (the call or
// transfer handler that owns a whole connection).
func SessionKey(connID string) string {
	return connID
}

// PeerKey returns the router key for a single peer link within a session.
func PeerKey(connID, opponentID string) string {
	return fmt.Sprintf("%s:%s", connID, opponentID)
}

// Router maps keys to exactly one handler each and delivers messages
// synchronously. Delivery to an unsubscribed key is logged and dropped:
// teardown races against in-flight notifications are expected and must never
// panic.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   *slog.Logger
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{
		handlers: make(map[string]Handler),
		logger:   slog.Default().With("component", "subs"),
	}
}

// Subscribe registers h for key. Re-subscribing a live key is a caller error
// and is rejected.
func (r *Router) Subscribe(key string, h Handler) error {
	if key == "" {
		return errors.New("subscribe: empty key")
	}
	if h == nil {
		return errors.New("subscribe: nil handler")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[key]; exists {
		r.logger.Error("Refusing to replace a live subscription", "key", key)
		return fmt.Errorf("%w: %s", ErrAlreadySubscribed, key)
	}
	r.handlers[key] = h
	return nil
}

// Unsubscribe removes the handler for key. A no-op when the key is absent.
func (r *Router) Unsubscribe(key string) {
	r.mu.Lock()
	delete(r.handlers, key)
	r.mu.Unlock()
}

// Notify delivers msg synchronously to the handler registered for its key.
// Unroutable messages are dropped after a log line.
func (r *Router) Notify(msg Message) {
	if msg == nil {
		return
	}
	key := msg.RouterKey()

	r.mu.RLock()
	h, ok := r.handlers[key]
	r.mu.RUnlock()

	if !ok {
		r.logger.Warn("Dropping message with no subscriber", "key", key, "type", fmt.Sprintf("%T", msg))
		return
	}
	h.HandleMessage(msg)
}

// Subscribed reports whether key currently has a handler.
func (r *Router) Subscribed(key string) bool {
	r.mu.RLock()
	_, ok := r.handlers[key]
	r.mu.RUnlock()
	return ok
}
