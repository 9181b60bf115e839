package access

import (
	"errors"
	"fmt"
	"strings"

	"github.com/carehub/carehub/internal/domain/records"
	"github.com/carehub/carehub/internal/platform/notification"
)

type ProfileFilter struct {
	Search string
}

func (f ProfileFilter) match(pp records.PatientProfile) bool {
	return matchesText(f.Search, pp.FullName, pp.Email)
}

func (s *Service) ListPatientProfiles(p Principal, f ProfileFilter) ([]records.PatientProfile, error) {
	return list(s, p, EntityPatientProfile, s.store.PatientProfiles(), f.match)
}

func (s *Service) GetPatientProfile(p Principal, id string) (records.PatientProfile, error) {
	return get(s, p, EntityPatientProfile, s.store.PatientProfiles(), id)
}

func (s *Service) profileFor(userID string) (records.PatientProfile, bool) {
	found := s.store.PatientProfiles().Find(func(pp records.PatientProfile) bool {
		return pp.UserID == userID
	})
	if len(found) == 0 {
		return records.PatientProfile{}, false
	}
	return found[0], true
}

// CreatePatientProfile adds the profile of an existing patient user. Each user
// has at most one profile.
func (s *Service) CreatePatientProfile(p Principal, draft records.PatientProfile) (records.PatientProfile, error) {
	return create(s, p, EntityPatientProfile, s.store.PatientProfiles(), "Patient Profile Created", func(scope Scope) (records.PatientProfile, error) {
		stamp(scope, p, draft.SetOwner)
		u, ok := s.LookupUser(draft.UserID)
		if !ok {
			return draft, validationError("user_id %q does not reference a known user", draft.UserID)
		}
		if u.RoleName != records.RolePatient {
			return draft, validationError("user %s is not a patient", u.ID)
		}
		if _, exists := s.profileFor(u.ID); exists {
			return draft, validationError("user %s already has a profile", u.ID)
		}
		if draft.FullName == "" {
			draft.FullName = u.FullName
		}
		if draft.Email == "" {
			draft.Email = u.Email
		}
		return draft, nil
	})
}

func (s *Service) UpdatePatientProfile(p Principal, id string, patch records.PatientProfilePatch) (records.PatientProfile, error) {
	return update(s, p, EntityPatientProfile, OpUpdate, s.store.PatientProfiles(), id, "Patient Profile Updated", func(pp *records.PatientProfile) error {
		patch.Apply(pp)
		return nil
	})
}

// Registration is the self-service sign-up form of a new patient.
type Registration struct {
	FullName    string `json:"full_name"`
	Email       string `json:"email"`
	Gender      string `json:"gender"`
	DateOfBirth string `json:"date_of_birth"`
	Address     string `json:"address"`
	BloodGroup  string `json:"blood_group"`
}

// RegisterPatient creates a Patient user and an empty profile for it. The new
// principal is recorded as the performer of the audit entry.
func (s *Service) RegisterPatient(reg Registration) (records.User, records.PatientProfile, error) {
	email := strings.ToLower(strings.TrimSpace(reg.Email))
	user := records.User{Email: email, FullName: strings.TrimSpace(reg.FullName), RoleName: records.RolePatient}
	profile := records.PatientProfile{
		UserID:      "pending",
		FullName:    user.FullName,
		Email:       email,
		Gender:      reg.Gender,
		DateOfBirth: reg.DateOfBirth,
		Address:     reg.Address,
		BloodGroup:  reg.BloodGroup,
	}

	if _, err := user.Normalize(); err != nil {
		return records.User{}, records.PatientProfile{}, err
	}
	if _, err := profile.Normalize(); err != nil {
		return records.User{}, records.PatientProfile{}, err
	}
	created, err := s.store.Users().CreateUnique(user, func(existing, u records.User) bool {
		return strings.EqualFold(existing.Email, u.Email)
	})
	if errors.Is(err, records.ErrDuplicate) {
		return records.User{}, records.PatientProfile{}, fmt.Errorf("email %s is already registered: %w", email, err)
	}
	if err != nil {
		return records.User{}, records.PatientProfile{}, err
	}
	profile.UserID = created.ID
	stored, err := s.store.PatientProfiles().Create(profile)
	if err != nil {
		// No user without a profile.
		if delErr := s.store.Users().Delete(created.ID); delErr != nil {
			s.log.Error().Err(delErr).Str("user_id", created.ID).Msg("failed to roll back registered user")
		}
		return records.User{}, records.PatientProfile{}, err
	}

	p := Principal{ID: created.ID, FullName: created.FullName, Role: records.RolePatient}
	s.observe(p, EntityPatientProfile, OpCreate, stored.ID, nil)
	s.audit(p, "Patient Registered", EntityPatientProfile, stored.ID)
	s.notify(created.ID, records.NotifySystem, notification.Welcome, map[string]string{
		"full_name": created.FullName,
	})
	return created, stored, nil
}
