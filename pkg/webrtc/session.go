package webrtc

import (
	"log/slog"
	"sync"
)

// Link is the view a session keeps of its peer links. Call and file variants
// both satisfy it through the embedded PeerLink.
type Link interface {
	OpponentID() string
	Close(reason string)
}

// Session is one signaling-level session: a connection id plus one peer link
// per opponent. Created when an offer is sent or received; torn down when the
// initiating side hangs up or the last peer link closes.
type Session struct {
	connID string
	logger *slog.Logger

	mu         sync.Mutex
	links      map[string]Link
	hadLinks   bool
	torn       bool
	onTeardown func(reason string)
}

// NewSession creates an empty session. onTeardown runs exactly once, when the
// session ends; the owning handler uses it to unsubscribe and reset state.
func NewSession(connID string, onTeardown func(reason string)) *Session {
	return &Session{
		connID:     connID,
		links:      make(map[string]Link),
		onTeardown: onTeardown,
		logger:     slog.Default().With("component", "session", "connId", connID),
	}
}

// ConnID returns the relay-assigned connection id.
func (s *Session) ConnID() string { return s.connID }

// AddLink registers a peer link for its opponent. A second link for the same
// opponent replaces nothing: the existing link is kept and false is returned.
func (s *Session) AddLink(l Link) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.torn {
		return false
	}
	if _, exists := s.links[l.OpponentID()]; exists {
		s.logger.Warn("Refusing duplicate link for opponent", "opponentWsId", l.OpponentID())
		return false
	}
	s.links[l.OpponentID()] = l
	s.hadLinks = true
	return true
}

// Link returns the link for an opponent, if present.
func (s *Session) Link(opponentID string) (Link, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[opponentID]
	return l, ok
}

// Links returns a snapshot of all current links.
func (s *Session) Links() []Link {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Link, 0, len(s.links))
	for _, l := range s.links {
		out = append(out, l)
	}
	return out
}

// Len returns the number of live links.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.links)
}

// RemoveLink drops the link for opponentID after it has closed. When the
// removed link was the last one the whole session tears down.
func (s *Session) RemoveLink(opponentID, reason string) {
	s.mu.Lock()
	if _, ok := s.links[opponentID]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.links, opponentID)
	empty := len(s.links) == 0
	s.mu.Unlock()

	if empty && s.hadLinks {
		s.teardown(reason)
	}
}

// HangUp closes every link and tears the session down, whether or not any
// links exist. Safe to call more than once.
func (s *Session) HangUp(reason string) {
	s.mu.Lock()
	links := make([]Link, 0, len(s.links))
	for _, l := range s.links {
		links = append(links, l)
	}
	s.links = make(map[string]Link)
	s.mu.Unlock()

	// Link.Close cascades back into RemoveLink via the router; the links were
	// already detached above so teardown fires exactly once, below.
	for _, l := range links {
		l.Close(reason)
	}
	s.teardown(reason)
}

func (s *Session) teardown(reason string) {
	s.mu.Lock()
	if s.torn {
		s.mu.Unlock()
		return
	}
	s.torn = true
	s.mu.Unlock()

	s.logger.Info("Session torn down", "reason", reason)
	if s.onTeardown != nil {
		s.onTeardown(reason)
	}
}
