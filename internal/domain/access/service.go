// Package access is the role-scoped layer over the record store. Every
// operation takes the acting principal, consults the policy table, stamps
// owner fields on create and records an audit entry for each permitted
// mutation.
package access

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/carehub/carehub/internal/domain/records"
	"github.com/carehub/carehub/internal/platform/notification"
)

// Recorder receives one observation per access decision.
type Recorder interface {
	Observe(resource, op, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) Observe(string, string, string) {}

type Service struct {
	store     *records.Store
	log       zerolog.Logger
	metrics   Recorder
	templates *notification.TemplateEngine
}

type Option func(*Service)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.metrics = r
		}
	}
}

// WithTemplates replaces the built-in system message templates.
func WithTemplates(t *notification.TemplateEngine) Option {
	return func(s *Service) {
		if t != nil {
			s.templates = t
		}
	}
}

func NewService(store *records.Store, opts ...Option) *Service {
	s := &Service{
		store:     store,
		log:       zerolog.Nop(),
		metrics:   nopRecorder{},
		templates: notification.NewTemplateEngine(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LookupUser resolves a principal id against the user directory.
func (s *Service) LookupUser(id string) (records.User, bool) {
	u, err := s.store.Users().Get(id)
	return u, err == nil
}

type entity[T any] interface {
	records.Record[T]
	owned
}

func authenticated(p Principal) error {
	if p.ID == "" {
		return ErrUnauthenticated
	}
	if !p.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrUnauthenticated, p.Role)
	}
	return nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, records.ErrNotFound):
		return "not_found"
	case errors.Is(err, records.ErrValidation):
		return "invalid"
	}
	return "error"
}

// observe records the decision and returns err unchanged.
func (s *Service) observe(p Principal, e Entity, op Operation, id string, err error) error {
	s.metrics.Observe(string(e), string(op), outcome(err))
	if errors.Is(err, ErrForbidden) || errors.Is(err, ErrUnauthenticated) {
		s.log.Warn().
			Str("principal_id", p.ID).
			Str("role", string(p.Role)).
			Str("resource", string(e)).
			Str("resource_id", id).
			Str("operation", string(op)).
			Err(err).
			Msg("access denied")
	}
	return err
}

// audit appends the trail entry for a permitted mutation.
func (s *Service) audit(p Principal, action string, e Entity, id string) {
	_, err := s.store.AuditLogs().Create(records.AuditEntry{
		ActionPerformed: action,
		PerformedBy:     p.ID,
		PerformerName:   p.FullName,
		Resource:        string(e),
		ResourceID:      id,
		Timestamp:       s.store.Now(),
	})
	if err != nil {
		s.log.Error().Err(err).Str("action", action).Str("resource_id", id).Msg("audit append failed")
		return
	}
	s.log.Info().
		Str("principal_id", p.ID).
		Str("role", string(p.Role)).
		Str("resource", string(e)).
		Str("resource_id", id).
		Msg(action)
}

// notify sends a system notification. Failures are logged and never fail the
// triggering operation.
func (s *Service) notify(userID string, typ records.NotificationType, template string, data map[string]string) {
	if userID == "" {
		return
	}
	msg, err := s.templates.Render(template, data)
	if err != nil {
		s.log.Error().Err(err).Str("template", template).Msg("render notification")
		return
	}
	_, err = s.store.Notifications().Create(records.Notification{
		UserID:    userID,
		Message:   msg,
		Type:      typ,
		CreatedAt: s.store.Now(),
	})
	if err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("create notification")
	}
}

func (s *Service) userName(id string) string {
	if u, ok := s.LookupUser(id); ok {
		return u.FullName
	}
	return ""
}

// requireUsers checks that every non-empty owner reference names a known
// principal. Arguments alternate field name and id.
func (s *Service) requireUsers(refs ...string) error {
	for i := 0; i+1 < len(refs); i += 2 {
		field, id := refs[i], refs[i+1]
		if id == "" {
			continue
		}
		if !s.store.UserExists(id) {
			return fmt.Errorf("%w: %s %q does not reference a known user", records.ErrValidation, field, id)
		}
	}
	return nil
}

// stamp forces the principal's own identity into the scoped owner field.
func stamp(scope Scope, p Principal, set func(records.OwnerField, string)) {
	if !scope.All() {
		set(scope.Owner, p.ID)
	}
}

func list[T entity[T]](s *Service, p Principal, e Entity, c *records.Collection[T], match func(T) bool) ([]T, error) {
	if err := authenticated(p); err != nil {
		return nil, s.observe(p, e, OpList, "", err)
	}
	scope, err := authorize(p, e, OpList)
	if err != nil {
		return nil, s.observe(p, e, OpList, "", err)
	}
	out := c.Find(func(r T) bool {
		return scope.Covers(p, r) && (match == nil || match(r))
	})
	if out == nil {
		out = []T{}
	}
	s.observe(p, e, OpList, "", nil)
	return out, nil
}

func get[T entity[T]](s *Service, p Principal, e Entity, c *records.Collection[T], id string) (T, error) {
	var zero T
	if err := authenticated(p); err != nil {
		return zero, s.observe(p, e, OpList, id, err)
	}
	scope, err := authorize(p, e, OpList)
	if err != nil {
		return zero, s.observe(p, e, OpList, id, err)
	}
	rec, err := c.Get(id)
	if err != nil {
		return zero, s.observe(p, e, OpList, id, err)
	}
	if !scope.Covers(p, rec) {
		return zero, s.observe(p, e, OpList, id, forbidden(p, OpList, e))
	}
	return rec, nil
}

// create authorizes p, lets prepare build the draft under the granted scope
// and stores it.
func create[T entity[T]](s *Service, p Principal, e Entity, c *records.Collection[T], action string, prepare func(Scope) (T, error)) (T, error) {
	var zero T
	if err := authenticated(p); err != nil {
		return zero, s.observe(p, e, OpCreate, "", err)
	}
	scope, err := authorize(p, e, OpCreate)
	if err != nil {
		return zero, s.observe(p, e, OpCreate, "", err)
	}
	draft, err := prepare(scope)
	if err != nil {
		return zero, s.observe(p, e, OpCreate, "", err)
	}
	rec, err := c.Create(draft)
	if err != nil {
		return zero, s.observe(p, e, OpCreate, "", err)
	}
	s.observe(p, e, OpCreate, rec.GetID(), nil)
	s.audit(p, action, e, rec.GetID())
	return rec, nil
}

// update applies mutate to the record found by id once p is authorized for op
// and the record lies inside the granted scope. mutate runs under the store
// lock and must not call back into the store.
func update[T entity[T]](s *Service, p Principal, e Entity, op Operation, c *records.Collection[T], id, action string, mutate func(*T) error) (T, error) {
	var zero T
	if err := authenticated(p); err != nil {
		return zero, s.observe(p, e, op, id, err)
	}
	scope, err := authorize(p, e, op)
	if err != nil {
		return zero, s.observe(p, e, op, id, err)
	}
	rec, err := c.Update(id, func(r *T) error {
		if !scope.Covers(p, *r) {
			return forbidden(p, op, e)
		}
		if mutate == nil {
			return nil
		}
		return mutate(r)
	})
	if err != nil {
		return zero, s.observe(p, e, op, id, err)
	}
	s.observe(p, e, op, id, nil)
	s.audit(p, action, e, id)
	return rec, nil
}

func remove[T entity[T]](s *Service, p Principal, e Entity, c *records.Collection[T], id, action string) error {
	if err := authenticated(p); err != nil {
		return s.observe(p, e, OpDelete, id, err)
	}
	scope, err := authorize(p, e, OpDelete)
	if err != nil {
		return s.observe(p, e, OpDelete, id, err)
	}
	rec, err := c.Get(id)
	if err != nil {
		return s.observe(p, e, OpDelete, id, err)
	}
	if !scope.Covers(p, rec) {
		return s.observe(p, e, OpDelete, id, forbidden(p, OpDelete, e))
	}
	if err := c.Delete(id); err != nil {
		return s.observe(p, e, OpDelete, id, err)
	}
	s.observe(p, e, OpDelete, id, nil)
	s.audit(p, action, e, id)
	return nil
}

// matchesText reports whether q occurs in any field, ignoring case. An empty
// query matches everything.
func matchesText(q string, fields ...string) bool {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return true
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}
