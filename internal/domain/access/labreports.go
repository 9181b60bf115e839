package access

import (
	"github.com/carehub/carehub/internal/domain/records"
	"github.com/carehub/carehub/internal/platform/notification"
)

type LabReportFilter struct {
	Search    string
	Type      records.ReportType
	PatientID string
}

func (f LabReportFilter) match(l records.LabReport) bool {
	if f.Type != "" && l.ReportType != f.Type {
		return false
	}
	if f.PatientID != "" && l.PatientID != f.PatientID {
		return false
	}
	return matchesText(f.Search, l.PatientName, l.DoctorName, string(l.ReportType))
}

func (s *Service) ListLabReports(p Principal, f LabReportFilter) ([]records.LabReport, error) {
	return list(s, p, EntityLabReport, s.store.LabReports(), f.match)
}

func (s *Service) GetLabReport(p Principal, id string) (records.LabReport, error) {
	return get(s, p, EntityLabReport, s.store.LabReports(), id)
}

func (s *Service) CreateLabReport(p Principal, draft records.LabReport) (records.LabReport, error) {
	report, err := create(s, p, EntityLabReport, s.store.LabReports(), "Lab Report Created", func(scope Scope) (records.LabReport, error) {
		stamp(scope, p, draft.SetOwner)
		if err := s.requireUsers(
			"patient_id", draft.PatientID,
			"doctor_id", draft.DoctorID,
			"lab_technician_id", draft.LabTechnicianID,
		); err != nil {
			return draft, err
		}
		if draft.ReportDate.IsZero() {
			draft.ReportDate = s.store.Now()
		}
		draft.PatientName = s.userName(draft.PatientID)
		draft.DoctorName = s.userName(draft.DoctorID)
		draft.TechnicianName = s.userName(draft.LabTechnicianID)
		return draft, nil
	})
	if err != nil {
		return report, err
	}
	if !report.ReportResult.Empty() {
		s.notify(report.PatientID, records.NotifyLabReport, notification.LabReportReady, map[string]string{
			"report_type": string(report.ReportType),
		})
	}
	return report, nil
}

// UpdateLabReport merges patch into the report. The patient is notified when
// the first result is recorded.
func (s *Service) UpdateLabReport(p Principal, id string, patch records.LabReportPatch) (records.LabReport, error) {
	var hadResult bool
	report, err := update(s, p, EntityLabReport, OpUpdate, s.store.LabReports(), id, "Lab Report Updated", func(l *records.LabReport) error {
		hadResult = !l.ReportResult.Empty()
		patch.Apply(l)
		return nil
	})
	if err != nil {
		return report, err
	}
	if !hadResult && !report.ReportResult.Empty() {
		s.notify(report.PatientID, records.NotifyLabReport, notification.LabReportReady, map[string]string{
			"report_type": string(report.ReportType),
		})
	}
	return report, nil
}

// DeleteLabReport always fails: lab reports are never deleted.
func (s *Service) DeleteLabReport(p Principal, id string) error {
	return remove(s, p, EntityLabReport, s.store.LabReports(), id, "Lab Report Deleted")
}
