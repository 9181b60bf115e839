package access

import (
	"github.com/carehub/carehub/internal/domain/records"
)

type StaffFilter struct {
	Search     string
	Role       records.Role
	Department string
}

func (f StaffFilter) match(m records.StaffMember) bool {
	if f.Role != "" && m.RoleName != f.Role {
		return false
	}
	if f.Department != "" && m.Department != f.Department {
		return false
	}
	return matchesText(f.Search, m.FullName, m.Email, m.Designation)
}

func (s *Service) ListStaff(p Principal, f StaffFilter) ([]records.StaffMember, error) {
	return list(s, p, EntityStaff, s.store.Staff(), f.match)
}

func (s *Service) GetStaff(p Principal, id string) (records.StaffMember, error) {
	return get(s, p, EntityStaff, s.store.Staff(), id)
}

func (s *Service) CreateStaff(p Principal, draft records.StaffMember) (records.StaffMember, error) {
	return create(s, p, EntityStaff, s.store.Staff(), "Staff Member Created", func(Scope) (records.StaffMember, error) {
		if err := s.requireUsers("user_id", draft.UserID); err != nil {
			return draft, err
		}
		return draft, nil
	})
}

func (s *Service) UpdateStaff(p Principal, id string, patch records.StaffPatch) (records.StaffMember, error) {
	return update(s, p, EntityStaff, OpUpdate, s.store.Staff(), id, "Staff Member Updated", func(m *records.StaffMember) error {
		patch.Apply(m)
		return nil
	})
}

func (s *Service) DeleteStaff(p Principal, id string) error {
	return remove(s, p, EntityStaff, s.store.Staff(), id, "Staff Member Deleted")
}
