package hvm

import "sync"

// Stack is the operand stack. It grows without bound.
type Stack struct {
	mu     sync.Mutex
	values []Sized
}

func NewStack() *Stack {
	return &Stack{
		values: make([]Sized, 0, 64),
	}
}

func (s *Stack) Push(value Sized) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = append(s.values, value)
}

func (s *Stack) Pop() (Sized, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.values)
	if n == 0 {
		return nil, ErrStackUnderflow
	}
	value := s.values[n-1]
	s.values[n-1] = nil
	s.values = s.values[:n-1]
	return value, nil
}

// Pop2 pops the right-hand operand then the left-hand one.
func (s *Stack) Pop2() (lhs, rhs Sized, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.values)
	if n < 2 {
		return nil, nil, ErrStackUnderflow
	}
	lhs, rhs = s.values[n-2], s.values[n-1]
	s.values[n-1] = nil
	s.values[n-2] = nil
	s.values = s.values[:n-2]
	return lhs, rhs, nil
}

func (s *Stack) Peek() (Sized, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.values) == 0 {
		return nil, ErrStackUnderflow
	}
	return s.values[len(s.values)-1], nil
}

func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}

// Values returns a copy, bottom first.
func (s *Stack) Values() []Sized {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := make([]Sized, len(s.values))
	copy(ret, s.values)
	return ret
}
