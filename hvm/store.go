package hvm

import (
	"fmt"
	"sync"
)

// Store is the flat variable store: a fixed number of slots, each defaulting to Null.
type Store struct {
	mu    sync.Mutex
	slots []Sized
}

func NewStore(capacity int) *Store {
	slots := make([]Sized, capacity)
	for i := range slots {
		slots[i] = Null{}
	}
	return &Store{
		slots: slots,
	}
}

func (s *Store) Set(slot int, value Sized) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(slot); err != nil {
		return err
	}
	s.slots[slot] = value
	return nil
}

func (s *Store) Get(slot int) (Sized, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(slot); err != nil {
		return nil, err
	}
	return s.slots[slot], nil
}

func (s *Store) check(slot int) error {
	if slot < 0 || slot >= len(s.slots) {
		return fmt.Errorf("%w: %d, capacity %d", ErrInvalidSlot, slot, len(s.slots))
	}
	return nil
}

func (s *Store) Cap() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}

func (s *Store) Values() []Sized {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := make([]Sized, len(s.slots))
	copy(ret, s.slots)
	return ret
}
