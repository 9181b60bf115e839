// Package records holds the in-memory record store: one ordered table per
// entity type with primitive CRUD that is independent of caller identity.
// Every successful mutation signals the configured Sink so the full state
// can be persisted as a single snapshot.
package records

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sink is notified after every successful create, update or delete.
// Implementations must not block; persistence is best effort.
type Sink interface {
	Changed()
}

type nopSink struct{}

func (nopSink) Changed() {}

// maxIDAttempts bounds id regeneration when the generator returns an id
// that is already taken.
const maxIDAttempts = 8

// Store owns every entity table. It is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	newID func() string
	now   func() time.Time
	sink  Sink

	appointments    *Collection[Appointment]
	prescriptions   *Collection[Prescription]
	billing         *Collection[Billing]
	labReports      *Collection[LabReport]
	staff           *Collection[StaffMember]
	notifications   *Collection[Notification]
	auditLogs       *Collection[AuditEntry]
	patientProfiles *Collection[PatientProfile]
	users           *Collection[User]
}

type Option func(*Store)

// WithIDGenerator replaces the default UUIDv7 id generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// WithSink attaches the persistence sink.
func WithSink(sink Sink) Option {
	return func(s *Store) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		newID: newUUIDv7,
		now:   func() time.Time { return time.Now().UTC() },
		sink:  nopSink{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.appointments = newCollection[Appointment](s, "appointments")
	s.prescriptions = newCollection[Prescription](s, "prescriptions")
	s.billing = newCollection[Billing](s, "billing")
	s.labReports = newCollection[LabReport](s, "labReports")
	s.staff = newCollection[StaffMember](s, "staff")
	s.notifications = newCollection[Notification](s, "notifications")
	s.auditLogs = newCollection[AuditEntry](s, "auditLogs")
	s.patientProfiles = newCollection[PatientProfile](s, "patientProfiles")
	s.users = newCollection[User](s, "users")
	return s
}

func newUUIDv7() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (s *Store) Appointments() *Collection[Appointment]       { return s.appointments }
func (s *Store) Prescriptions() *Collection[Prescription]     { return s.prescriptions }
func (s *Store) Billing() *Collection[Billing]                { return s.billing }
func (s *Store) LabReports() *Collection[LabReport]           { return s.labReports }
func (s *Store) Staff() *Collection[StaffMember]              { return s.staff }
func (s *Store) Notifications() *Collection[Notification]     { return s.notifications }
func (s *Store) AuditLogs() *Collection[AuditEntry]           { return s.auditLogs }
func (s *Store) PatientProfiles() *Collection[PatientProfile] { return s.patientProfiles }
func (s *Store) Users() *Collection[User]                     { return s.users }

// Now returns the store clock's current time.
func (s *Store) Now() time.Time {
	return s.now()
}

// UserExists reports whether id is present in the principal directory.
func (s *Store) UserExists(id string) bool {
	_, err := s.users.Get(id)
	return err == nil
}

// Collection is the typed view over one entity table.
type Collection[T Record[T]] struct {
	store *Store
	name  string
	rows  []T
	index map[string]int
}

func newCollection[T Record[T]](s *Store, name string) *Collection[T] {
	return &Collection[T]{store: s, name: name, index: make(map[string]int)}
}

// Name is the entity-type key used in snapshots.
func (c *Collection[T]) Name() string {
	return c.name
}

// List returns copies of every record in insertion order.
func (c *Collection[T]) List() []T {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	return c.listLocked()
}

func (c *Collection[T]) listLocked() []T {
	out := make([]T, len(c.rows))
	for i, r := range c.rows {
		out[i] = r.Clone()
	}
	return out
}

// Find returns copies of the records accepted by match, in insertion order.
func (c *Collection[T]) Find(match func(T) bool) []T {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	var out []T
	for _, r := range c.rows {
		if match(r) {
			out = append(out, r.Clone())
		}
	}
	return out
}

func (c *Collection[T]) Len() int {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	return len(c.rows)
}

func (c *Collection[T]) Get(id string) (T, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	i, ok := c.index[id]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s %q: %w", c.name, id, ErrNotFound)
	}
	return c.rows[i].Clone(), nil
}

// Create assigns a fresh id, appends the normalized draft and returns the
// stored record. Any id on the draft is ignored.
func (c *Collection[T]) Create(draft T) (T, error) {
	return c.create(draft, nil)
}

// CreateUnique is Create, except that it fails with ErrDuplicate when
// conflicts matches any stored record. The check and the insert happen
// under one lock.
func (c *Collection[T]) CreateUnique(draft T, conflicts func(existing, rec T) bool) (T, error) {
	return c.create(draft, conflicts)
}

func (c *Collection[T]) create(draft T, conflicts func(existing, rec T) bool) (T, error) {
	rec, err := draft.Clone().Normalize()
	if err != nil {
		var zero T
		return zero, err
	}

	c.store.mu.Lock()
	if conflicts != nil {
		for _, existing := range c.rows {
			if conflicts(existing, rec) {
				c.store.mu.Unlock()
				var zero T
				return zero, fmt.Errorf("%s: %w", c.name, ErrDuplicate)
			}
		}
	}
	id, err := c.allocateIDLocked()
	if err != nil {
		c.store.mu.Unlock()
		var zero T
		return zero, err
	}
	rec = rec.WithID(id)
	c.index[id] = len(c.rows)
	c.rows = append(c.rows, rec)
	c.store.mu.Unlock()

	c.store.sink.Changed()
	return rec.Clone(), nil
}

func (c *Collection[T]) allocateIDLocked() (string, error) {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := c.store.newID()
		if id == "" {
			continue
		}
		if _, taken := c.index[id]; !taken {
			return id, nil
		}
	}
	return "", fmt.Errorf("%s: could not allocate a unique id", c.name)
}

// Update applies mutate to a copy of the record found by id. The table is
// only changed when mutate and normalization both succeed. mutate runs with
// the store locked and must not call back into the store.
func (c *Collection[T]) Update(id string, mutate func(*T) error) (T, error) {
	var zero T

	c.store.mu.Lock()
	i, ok := c.index[id]
	if !ok {
		c.store.mu.Unlock()
		return zero, fmt.Errorf("%s %q: %w", c.name, id, ErrNotFound)
	}
	next := c.rows[i].Clone()
	if mutate != nil {
		if err := mutate(&next); err != nil {
			c.store.mu.Unlock()
			return zero, err
		}
	}
	next, err := next.WithID(id).Normalize()
	if err != nil {
		c.store.mu.Unlock()
		return zero, err
	}
	c.rows[i] = next
	c.store.mu.Unlock()

	c.store.sink.Changed()
	return next.Clone(), nil
}

func (c *Collection[T]) Delete(id string) error {
	c.store.mu.Lock()
	i, ok := c.index[id]
	if !ok {
		c.store.mu.Unlock()
		return fmt.Errorf("%s %q: %w", c.name, id, ErrNotFound)
	}
	c.rows = append(c.rows[:i], c.rows[i+1:]...)
	c.reindexLocked()
	c.store.mu.Unlock()

	c.store.sink.Changed()
	return nil
}

func (c *Collection[T]) reindexLocked() {
	c.index = make(map[string]int, len(c.rows))
	for i, r := range c.rows {
		c.index[r.GetID()] = i
	}
}

// buildTable normalizes restored rows and rejects missing or duplicate ids.
func buildTable[T Record[T]](name string, rows []T) ([]T, map[string]int, error) {
	out := make([]T, 0, len(rows))
	index := make(map[string]int, len(rows))
	for i, r := range rows {
		id := r.GetID()
		if id == "" {
			return nil, nil, fmt.Errorf("%s[%d]: %w: id is required", name, i, ErrValidation)
		}
		if _, dup := index[id]; dup {
			return nil, nil, fmt.Errorf("%s[%d]: %w: duplicate id %q", name, i, ErrValidation, id)
		}
		norm, err := r.Clone().Normalize()
		if err != nil {
			return nil, nil, fmt.Errorf("%s[%d]: %w", name, i, err)
		}
		index[id] = len(out)
		out = append(out, norm.WithID(id))
	}
	return out, index, nil
}
