package dialogue

import (
	"sync"
	"time"
)

type Stage int

const (
	// StageInitial means nothing is recorded for the conversation.
	StageInitial Stage = iota
	StageAwaitingEmail
	StageAwaitingMessage
)

func (s Stage) String() string {
	switch s {
	case StageAwaitingEmail:
		return "awaiting_email"
	case StageAwaitingMessage:
		return "awaiting_message"
	default:
		return "initial"
	}
}

type Conversation struct {
	ID    int64
	Stage Stage
	// Email is set once the address has been validated.
	Email     string
	UpdatedAt time.Time
}

// Store keeps conversation state in memory. Nothing survives a restart.
type Store struct {
	lock  sync.Mutex
	convs map[int64]Conversation
	now   func() time.Time
}

func NewStore() *Store {
	return &Store{
		convs: make(map[int64]Conversation),
		now:   time.Now,
	}
}

// Get returns a copy of the conversation. A missing entry reports
// StageInitial and false.
func (s *Store) Get(id int64) (Conversation, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	c, ok := s.convs[id]
	if !ok {
		return Conversation{ID: id, Stage: StageInitial}, false
	}
	return c, true
}

// Put records c and stamps UpdatedAt. Putting StageInitial is the same as Clear.
func (s *Store) Put(c Conversation) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if c.Stage == StageInitial {
		delete(s.convs, c.ID)
		return
	}
	c.UpdatedAt = s.now()
	s.convs[c.ID] = c
}

// Update applies fn to the conversation under the store lock, so nothing
// (eviction included) can slip in between the read and the write. fn sees
// StageInitial for a missing entry. The result is recorded as by Put only
// when fn returns true; Update reports whether it was.
func (s *Store) Update(id int64, fn func(c *Conversation) bool) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	c, ok := s.convs[id]
	if !ok {
		c = Conversation{ID: id, Stage: StageInitial}
	}
	if !fn(&c) {
		return false
	}

	c.ID = id
	if c.Stage == StageInitial {
		delete(s.convs, id)
		return true
	}
	c.UpdatedAt = s.now()
	s.convs[id] = c
	return true
}

func (s *Store) Clear(id int64) {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.convs, id)
}

func (s *Store) Len() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.convs)
}

// EvictIdle drops every conversation not updated within maxIdle and returns
// how many were dropped.
func (s *Store) EvictIdle(maxIdle time.Duration) int {
	s.lock.Lock()
	defer s.lock.Unlock()

	cutoff := s.now().Add(-maxIdle)
	n := 0
	for id, c := range s.convs {
		if c.UpdatedAt.Before(cutoff) {
			delete(s.convs, id)
			n++
		}
	}
	return n
}
