package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hrygo/pebbletrail/internal/metrics"
)

// State is a named conversational state.
type State int

const (
	StateIdle State = iota
	StateAwaitingName
	StateAwaitingDescription
	StateAwaitingLocation
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingName:
		return "awaiting_name"
	case StateAwaitingDescription:
		return "awaiting_description"
	case StateAwaitingLocation:
		return "awaiting_location"
	default:
		return "unknown"
	}
}

// Session holds the pending data of one user's conversation. It exists only
// in memory; a commit, cancel, or idle expiry resets it to Idle.
type Session struct {
	UserID int64
	State  State

	// PendingEmbedding is the embedding awaiting commit. For the new-stone
	// path it becomes the canonical embedding.
	PendingEmbedding []float32
	// PendingPhotoFileID is the opaque photo reference awaiting commit.
	PendingPhotoFileID string
	// PendingThumbnail is a preview of the cropped subject, echoed in replies.
	PendingThumbnail []byte
	// CandidateStoneID is set when a match was found but not yet committed.
	// Zero on the new-stone path.
	CandidateStoneID int32
	// Accumulated new-stone fields.
	Name        string
	Description string

	LastActive time.Time
}

func (s *Session) reset() {
	*s = Session{UserID: s.UserID, State: StateIdle}
}

type userSlot struct {
	mu   sync.Mutex
	sess Session
}

// SessionStore keeps per-user sessions with per-user mutual exclusion and
// TTL-based expiry. Unrelated users never contend on a shared lock.
type SessionStore struct {
	mu    sync.Mutex
	slots map[int64]*userSlot

	ttl  time.Duration
	done chan struct{}
	once sync.Once
}

const sessionSweepInterval = time.Minute

// NewSessionStore creates a session store and starts its expiry sweep.
func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	s := &SessionStore{
		slots: make(map[int64]*userSlot),
		ttl:   ttl,
		done:  make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

// With runs fn while holding the user's exclusive slot. Two events from the
// same user serialize; different users proceed concurrently. A session idle
// past the TTL is reset to Idle before fn observes it, identically to an
// explicit cancel.
func (s *SessionStore) With(userID int64, fn func(sess *Session)) {
	slot := s.acquire(userID)
	defer slot.mu.Unlock()

	if slot.sess.State != StateIdle && time.Since(slot.sess.LastActive) > s.ttl {
		slog.Debug("session expired on interaction", "user_id", userID, "state", slot.sess.State.String())
		metrics.SessionsExpired.Inc()
		slot.sess.reset()
	}

	fn(&slot.sess)
	slot.sess.LastActive = time.Now()
}

// acquire returns the user's slot with its lock held. The sweep may drop an
// expired slot between the map lookup and the slot lock; a slot that is no
// longer in the map is orphaned, so re-check membership after locking and
// retry instead of mutating state the next event would never see.
func (s *SessionStore) acquire(userID int64) *userSlot {
	for {
		s.mu.Lock()
		slot, ok := s.slots[userID]
		if !ok {
			slot = &userSlot{sess: Session{UserID: userID, State: StateIdle}}
			s.slots[userID] = slot
		}
		s.mu.Unlock()

		slot.mu.Lock()

		s.mu.Lock()
		live := s.slots[userID] == slot
		s.mu.Unlock()
		if live {
			return slot
		}
		slot.mu.Unlock()
	}
}

// Close stops the expiry sweep.
func (s *SessionStore) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *SessionStore) sweepLoop() {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep expires idle sessions and drops Idle slots so the map stays bounded.
func (s *SessionStore) sweep() {
	s.mu.Lock()
	slots := make(map[int64]*userSlot, len(s.slots))
	for id, slot := range s.slots {
		slots[id] = slot
	}
	s.mu.Unlock()

	now := time.Now()
	for userID, slot := range slots {
		if !slot.mu.TryLock() {
			// A handler is active; it refreshes or expires the session itself.
			continue
		}
		if slot.sess.State != StateIdle && now.Sub(slot.sess.LastActive) > s.ttl {
			slog.Info("session expired", "user_id", userID, "state", slot.sess.State.String())
			metrics.SessionsExpired.Inc()
			slot.sess.reset()
		}
		idle := slot.sess.State == StateIdle && now.Sub(slot.sess.LastActive) > s.ttl
		slot.mu.Unlock()

		if idle {
			s.mu.Lock()
			// Re-check under the store lock; a concurrent With may have
			// touched the slot in the meantime. TryLock keeps the lock order
			// one-way: acquire holds the slot lock while checking the map, so
			// blocking on the slot here would deadlock. A contended slot is in
			// use and must not be dropped anyway.
			if cur, ok := s.slots[userID]; ok && cur == slot && slot.mu.TryLock() {
				if cur.sess.State == StateIdle && time.Since(cur.sess.LastActive) > s.ttl {
					delete(s.slots, userID)
				}
				slot.mu.Unlock()
			}
			s.mu.Unlock()
		}
	}
}
