package records

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// SchemaVersion is the layout version written into every snapshot.
// Snapshots without a version field predate versioning and load as version 1.
const SchemaVersion = 1

// Snapshot is the full serialized state of all entity collections,
// persisted as one unit and keyed by entity-type name.
type Snapshot struct {
	SchemaVersion   int              `json:"schema_version"`
	SavedAt         time.Time        `json:"saved_at"`
	Appointments    []Appointment    `json:"appointments"`
	Prescriptions   []Prescription   `json:"prescriptions"`
	Billing         []Billing        `json:"billing"`
	LabReports      []LabReport      `json:"labReports"`
	Staff           []StaffMember    `json:"staff"`
	Notifications   []Notification   `json:"notifications"`
	AuditLogs       []AuditEntry     `json:"auditLogs"`
	PatientProfiles []PatientProfile `json:"patientProfiles"`
	Users           []User           `json:"users"`
}

// Adapter loads and saves snapshots from a single storage slot. Load
// returns (nil, nil) when the slot is empty.
type Adapter interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
}

// Snapshot copies the current state of every table.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &Snapshot{
		SchemaVersion:   SchemaVersion,
		SavedAt:         s.now(),
		Appointments:    s.appointments.listLocked(),
		Prescriptions:   s.prescriptions.listLocked(),
		Billing:         s.billing.listLocked(),
		LabReports:      s.labReports.listLocked(),
		Staff:           s.staff.listLocked(),
		Notifications:   s.notifications.listLocked(),
		AuditLogs:       s.auditLogs.listLocked(),
		PatientProfiles: s.patientProfiles.listLocked(),
		Users:           s.users.listLocked(),
	}
}

type restored[T Record[T]] struct {
	c     *Collection[T]
	rows  []T
	index map[string]int
}

func prepare[T Record[T]](c *Collection[T], rows []T) (restored[T], error) {
	out, index, err := buildTable(c.name, rows)
	return restored[T]{c: c, rows: out, index: index}, err
}

func (r restored[T]) apply() {
	r.c.rows = r.rows
	r.c.index = r.index
}

// Restore replaces the whole state with snap. Nothing changes if any table
// fails validation.
func (s *Store) Restore(snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("restore snapshot: %w: snapshot is nil", ErrValidation)
	}
	if snap.SchemaVersion > SchemaVersion {
		return fmt.Errorf("restore snapshot: unsupported schema version %d (max %d)", snap.SchemaVersion, SchemaVersion)
	}

	appts, err := prepare(s.appointments, snap.Appointments)
	if err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	rxs, err := prepare(s.prescriptions, snap.Prescriptions)
	if err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	bills, err := prepare(s.billing, snap.Billing)
	if err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	labs, err := prepare(s.labReports, snap.LabReports)
	if err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	staff, err := prepare(s.staff, snap.Staff)
	if err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	notes, err := prepare(s.notifications, snap.Notifications)
	if err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	audit, err := prepare(s.auditLogs, snap.AuditLogs)
	if err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	profiles, err := prepare(s.patientProfiles, snap.PatientProfiles)
	if err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	users, err := prepare(s.users, snap.Users)
	if err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}

	s.mu.Lock()
	appts.apply()
	rxs.apply()
	bills.apply()
	labs.apply()
	staff.apply()
	notes.apply()
	audit.apply()
	profiles.apply()
	users.apply()
	s.mu.Unlock()
	return nil
}

// Load restores the last snapshot from a. When the slot is empty and seed
// is true the demo data is installed and persisted. It reports whether the
// demo data was used.
func (s *Store) Load(ctx context.Context, a Adapter, seed bool) (bool, error) {
	snap, err := a.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("load snapshot: %w", err)
	}
	if snap != nil {
		return false, s.Restore(snap)
	}
	if !seed {
		return false, nil
	}
	if err := s.Restore(DemoSnapshot()); err != nil {
		return false, err
	}
	s.sink.Changed()
	return true, nil
}

// EncodeSnapshot renders snap as indented JSON.
func EncodeSnapshot(snap *Snapshot) ([]byte, error) {
	return json.MarshalIndent(snap, "", "  ")
}

// DecodeSnapshot parses a snapshot, defaulting a missing schema version.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.SchemaVersion == 0 {
		snap.SchemaVersion = SchemaVersion
	}
	return &snap, nil
}

// MarshalJSON writes free-text results as a JSON string and structured
// results as an object, matching the persisted layout.
func (r ReportResult) MarshalJSON() ([]byte, error) {
	if len(r.Values) > 0 {
		return json.Marshal(r.Values)
	}
	if r.Text != "" {
		return json.Marshal(r.Text)
	}
	return []byte("null"), nil
}

func (r *ReportResult) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	*r = ReportResult{}
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		return nil
	case trimmed[0] == '"':
		return json.Unmarshal(trimmed, &r.Text)
	case trimmed[0] == '{':
		var raw map[string]any
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return err
		}
		r.Values = make(map[string]string, len(raw))
		for k, v := range raw {
			if s, ok := v.(string); ok {
				r.Values[k] = s
			} else {
				r.Values[k] = fmt.Sprint(v)
			}
		}
		return nil
	}
	return fmt.Errorf("report_result must be an object or a string")
}
