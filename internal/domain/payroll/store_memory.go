package payroll

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps employees in process. Every read and write goes through
// a deep copy, and UpdateEmployee holds the store lock for the whole
// read-modify-write, which serializes writers per employee.
type MemoryStore struct {
	mu        sync.Mutex
	employees map[string]*Employee
	sequence  int64
}

// NewMemoryStore returns a store preloaded with seed, typically legacy data.
// The counter starts at the highest seeded identity.
func NewMemoryStore(seed ...Employee) *MemoryStore {
	s := &MemoryStore{employees: make(map[string]*Employee, len(seed))}
	identities := make([]string, 0, len(seed))
	for _, emp := range seed {
		clone := emp.Clone()
		s.employees[emp.Identity] = &clone
		identities = append(identities, emp.Identity)
	}
	s.sequence = MaxSequence(identities)
	return s
}

// advanceLocked keeps the counter at or above identity so it is never
// handed out again, even after the employee is deleted.
func (s *MemoryStore) advanceLocked(identity string) {
	if seq, ok := ParseIdentity(identity); ok && seq > s.sequence {
		s.sequence = seq
	}
}

func (s *MemoryStore) NextEmployeeSequence(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequence++
	return s.sequence, nil
}

func (s *MemoryStore) ContactTaken(ctx context.Context, email, phone string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contactTakenLocked(email, phone), nil
}

func (s *MemoryStore) contactTakenLocked(email, phone string) bool {
	for _, emp := range s.employees {
		if emp.Contact.Email == email || emp.Contact.Phone == phone {
			return true
		}
	}
	return false
}

func (s *MemoryStore) InsertEmployee(ctx context.Context, emp *Employee) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.employees[emp.Identity]; exists {
		return ErrAllocationConflict
	}
	if s.contactTakenLocked(emp.Contact.Email, emp.Contact.Phone) {
		return ErrDuplicateContact
	}
	clone := emp.Clone()
	s.employees[emp.Identity] = &clone
	s.advanceLocked(emp.Identity)
	return nil
}

func (s *MemoryStore) GetEmployee(ctx context.Context, identity string) (*Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	emp, ok := s.employees[identity]
	if !ok {
		return nil, ErrEmployeeNotFound
	}
	clone := emp.Clone()
	return &clone, nil
}

func (s *MemoryStore) ListEmployees(ctx context.Context, status string) ([]Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Employee, 0, len(s.employees))
	for _, emp := range s.employees {
		if status != "" && emp.Status != status {
			continue
		}
		out = append(out, emp.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out, nil
}

func (s *MemoryStore) ListIdentities(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.employees))
	for identity := range s.employees {
		out = append(out, identity)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) UpdateEmployee(ctx context.Context, identity string, fn func(*Employee) error) (*Employee, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.employees[identity]
	if !ok {
		return nil, ErrEmployeeNotFound
	}
	working := current.Clone()
	if err := fn(&working); err != nil {
		return nil, err
	}
	working.Identity = identity
	stored := working.Clone()
	s.employees[identity] = &stored
	return &working, nil
}

func (s *MemoryStore) DeleteEmployee(ctx context.Context, identity string, guard func(*Employee) error) (*Employee, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.employees[identity]
	if !ok {
		return nil, ErrEmployeeNotFound
	}
	removed := current.Clone()
	if guard != nil {
		if err := guard(&removed); err != nil {
			return nil, err
		}
	}
	delete(s.employees, identity)
	return &removed, nil
}
