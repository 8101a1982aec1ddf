package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSessionStore_PerUserExclusion verifies two events from the same user
// serialize while different users proceed independently.
func TestSessionStore_PerUserExclusion(t *testing.T) {
	s := NewSessionStore(time.Minute)
	defer s.Close()

	var inside int
	var maxInside int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.With(1, func(sess *Session) {
				mu.Lock()
				inside++
				if inside > maxInside {
					maxInside = inside
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInside, "same-user handlers must not overlap")
}

// TestSessionStore_StatePersistsBetweenCalls verifies the slot holds state
// across invocations.
func TestSessionStore_StatePersistsBetweenCalls(t *testing.T) {
	s := NewSessionStore(time.Minute)
	defer s.Close()

	s.With(7, func(sess *Session) {
		sess.State = StateAwaitingName
		sess.Name = "pending"
	})
	s.With(7, func(sess *Session) {
		assert.Equal(t, StateAwaitingName, sess.State)
		assert.Equal(t, "pending", sess.Name)
	})

	// A different user gets a fresh session.
	s.With(8, func(sess *Session) {
		assert.Equal(t, StateIdle, sess.State)
	})
}

// TestSessionStore_ExpiryOnInteraction verifies an idle-expired session is
// reset before the handler observes it.
func TestSessionStore_ExpiryOnInteraction(t *testing.T) {
	s := NewSessionStore(10 * time.Millisecond)
	defer s.Close()

	s.With(1, func(sess *Session) {
		sess.State = StateAwaitingDescription
		sess.Name = "stale"
	})

	time.Sleep(30 * time.Millisecond)

	s.With(1, func(sess *Session) {
		assert.Equal(t, StateIdle, sess.State)
		assert.Empty(t, sess.Name)
		assert.Equal(t, int64(1), sess.UserID)
	})
}

// TestSessionStore_Sweep verifies the background sweep expires sessions and
// drops stale idle slots.
func TestSessionStore_Sweep(t *testing.T) {
	s := NewSessionStore(10 * time.Millisecond)
	defer s.Close()

	s.With(1, func(sess *Session) { sess.State = StateAwaitingLocation })
	s.With(2, func(sess *Session) {})

	time.Sleep(30 * time.Millisecond)
	s.sweep()

	s.mu.Lock()
	slot, stillThere := s.slots[1]
	_, idleKept := s.slots[2]
	s.mu.Unlock()

	if stillThere {
		slot.mu.Lock()
		assert.Equal(t, StateIdle, slot.sess.State)
		slot.mu.Unlock()
	}
	assert.False(t, idleKept, "stale idle slot should be dropped")
}

// TestSessionStore_SweepDoesNotOrphanInFlightHandler reproduces the interleave
// where the sweep drops an expired idle slot after a handler has looked up its
// pointer but before it takes the slot lock. The handler's transition must land
// in a slot the next event can observe.
func TestSessionStore_SweepDoesNotOrphanInFlightHandler(t *testing.T) {
	s := NewSessionStore(time.Minute)
	defer s.Close()

	s.With(1, func(*Session) {})
	s.mu.Lock()
	stale := s.slots[1]
	s.mu.Unlock()

	// Park the handler between the map lookup and the slot lock.
	stale.mu.Lock()
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.With(1, func(sess *Session) { sess.State = StateAwaitingName })
	}()
	time.Sleep(10 * time.Millisecond)

	// Drop the slot the way an expiry sweep would, then release the handler.
	s.mu.Lock()
	delete(s.slots, 1)
	s.mu.Unlock()
	stale.mu.Unlock()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not finish")
	}

	s.With(1, func(sess *Session) {
		assert.Equal(t, StateAwaitingName, sess.State, "transition lost to the sweep")
	})
}

// TestSessionStore_SweepSkipsContendedSlot verifies the sweep leaves a slot
// alone while it is held, and drops it on the next pass once released.
func TestSessionStore_SweepSkipsContendedSlot(t *testing.T) {
	s := NewSessionStore(10 * time.Millisecond)
	defer s.Close()

	s.With(1, func(sess *Session) { sess.State = StateAwaitingName })
	time.Sleep(30 * time.Millisecond)

	s.mu.Lock()
	slot := s.slots[1]
	s.mu.Unlock()

	slot.mu.Lock()
	s.sweep()
	s.mu.Lock()
	_, held := s.slots[1]
	s.mu.Unlock()
	require.True(t, held, "held slot must not be dropped")
	assert.Equal(t, StateAwaitingName, slot.sess.State, "held slot must not be expired")
	slot.mu.Unlock()

	s.sweep()
	s.mu.Lock()
	_, kept := s.slots[1]
	s.mu.Unlock()
	assert.False(t, kept, "released expired slot should be dropped")
}

// TestSessionReset verifies reset keeps the user identity only.
func TestSessionReset(t *testing.T) {
	sess := Session{
		UserID:             42,
		State:              StateAwaitingLocation,
		PendingEmbedding:   []float32{1, 2, 3},
		PendingPhotoFileID: "photo",
		CandidateStoneID:   9,
		Name:               "n",
		Description:        "d",
		LastActive:         time.Now(),
	}
	sess.reset()

	require.Equal(t, int64(42), sess.UserID)
	assert.Equal(t, StateIdle, sess.State)
	assert.Nil(t, sess.PendingEmbedding)
	assert.Empty(t, sess.PendingPhotoFileID)
	assert.Zero(t, sess.CandidateStoneID)
	assert.Empty(t, sess.Name)
	assert.Empty(t, sess.Description)
}
