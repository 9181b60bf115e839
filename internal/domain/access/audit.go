package access

import (
	"github.com/carehub/carehub/internal/domain/records"
)

type AuditFilter struct {
	Search      string
	Resource    string
	PerformedBy string
}

func (f AuditFilter) match(e records.AuditEntry) bool {
	if f.Resource != "" && e.Resource != f.Resource {
		return false
	}
	if f.PerformedBy != "" && e.PerformedBy != f.PerformedBy {
		return false
	}
	return matchesText(f.Search, e.ActionPerformed, e.PerformerName, e.Resource)
}

// ListAuditLogs returns the audit trail, oldest first.
func (s *Service) ListAuditLogs(p Principal, f AuditFilter) ([]records.AuditEntry, error) {
	return list(s, p, EntityAuditLog, s.store.AuditLogs(), f.match)
}

// AppendAudit writes a manual trail entry. The performer and timestamp always
// come from p and the store clock. Entries can never be changed or removed.
func (s *Service) AppendAudit(p Principal, entry records.AuditEntry) (records.AuditEntry, error) {
	if err := authenticated(p); err != nil {
		return records.AuditEntry{}, s.observe(p, EntityAuditLog, OpCreate, "", err)
	}
	if _, err := authorize(p, EntityAuditLog, OpCreate); err != nil {
		return records.AuditEntry{}, s.observe(p, EntityAuditLog, OpCreate, "", err)
	}
	entry.PerformedBy = p.ID
	entry.PerformerName = p.FullName
	entry.Timestamp = s.store.Now()
	rec, err := s.store.AuditLogs().Create(entry)
	return rec, s.observe(p, EntityAuditLog, OpCreate, rec.ID, err)
}
