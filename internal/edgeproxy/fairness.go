package edgeproxy

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/cypher-asi/aura-swarm/internal/models"
)

// inboundMessagesPerSecond caps how many client messages a single
// session stream may forward per second.
const inboundMessagesPerSecond = 100

// connectionFairness tracks open streaming connections per owner and
// enforces the per-owner concurrent-connection cap across all of that
// owner's agents. It is one of the four process-wide mutable caches
// called out in the design notes: created at process start, drained
// implicitly as connections close.
type connectionFairness struct {
	mu     sync.Mutex
	counts map[models.OwnerID]int
	max    int
}

func newConnectionFairness(max int) *connectionFairness {
	return &connectionFairness{counts: make(map[models.OwnerID]int), max: max}
}

// acquire reserves a connection slot for ownerID, reporting false when
// the owner is at the cap.
func (f *connectionFairness) acquire(ownerID models.OwnerID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts[ownerID] >= f.max {
		return false
	}
	f.counts[ownerID]++
	return true
}

func (f *connectionFairness) release(ownerID models.OwnerID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts[ownerID] <= 1 {
		delete(f.counts, ownerID)
		return
	}
	f.counts[ownerID]--
}

// sessionLimiter wraps a token bucket for one session's inbound
// messages.
type sessionLimiter struct {
	bucket *rate.Limiter
}

func (l *sessionLimiter) allow() bool {
	return l.bucket.Allow()
}

// sessionRateLimiters holds one token bucket per open session stream,
// created on first use and dropped when the stream closes.
type sessionRateLimiters struct {
	mu       sync.Mutex
	limiters map[models.SessionID]*sessionLimiter
}

func newSessionRateLimiters() *sessionRateLimiters {
	return &sessionRateLimiters{limiters: make(map[models.SessionID]*sessionLimiter)}
}

func (s *sessionRateLimiters) get(sessionID models.SessionID) *sessionLimiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[sessionID]
	if !ok {
		l = &sessionLimiter{bucket: rate.NewLimiter(rate.Limit(inboundMessagesPerSecond), inboundMessagesPerSecond)}
		s.limiters[sessionID] = l
	}
	return l
}

func (s *sessionRateLimiters) drop(sessionID models.SessionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.limiters, sessionID)
}
