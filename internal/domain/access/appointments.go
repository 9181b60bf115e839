package access

import (
	"github.com/carehub/carehub/internal/domain/records"
	"github.com/carehub/carehub/internal/platform/notification"
)

const displayTime = "Jan 02, 2006 15:04"

type AppointmentFilter struct {
	Search    string
	Status    records.AppointmentStatus
	PatientID string
}

func (f AppointmentFilter) match(a records.Appointment) bool {
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.PatientID != "" && a.PatientID != f.PatientID {
		return false
	}
	return matchesText(f.Search, a.PatientName, a.DoctorName, a.Reason)
}

func (s *Service) ListAppointments(p Principal, f AppointmentFilter) ([]records.Appointment, error) {
	return list(s, p, EntityAppointment, s.store.Appointments(), f.match)
}

func (s *Service) GetAppointment(p Principal, id string) (records.Appointment, error) {
	return get(s, p, EntityAppointment, s.store.Appointments(), id)
}

// CreateAppointment books an appointment. A patient always books for
// themselves and a doctor always books with themselves; any other owner
// reference is kept as supplied. The initial status must be reachable from
// Pending by p.
func (s *Service) CreateAppointment(p Principal, draft records.Appointment) (records.Appointment, error) {
	appt, err := create(s, p, EntityAppointment, s.store.Appointments(), "Appointment Created", func(scope Scope) (records.Appointment, error) {
		stamp(scope, p, draft.SetOwner)
		if err := s.requireUsers("patient_id", draft.PatientID, "doctor_id", draft.DoctorID); err != nil {
			return draft, err
		}
		if draft.Status != "" {
			pending := draft
			pending.Status = records.StatusPending
			if err := checkTransition(p, pending, draft.Status); err != nil {
				return draft, err
			}
		}
		draft.PatientName = s.userName(draft.PatientID)
		draft.DoctorName = s.userName(draft.DoctorID)
		return draft, nil
	})
	if err != nil {
		return appt, err
	}
	s.notify(appt.DoctorID, records.NotifyAppointment, notification.AppointmentBooked, map[string]string{
		"patient_name": appt.PatientName,
		"date":         appt.AppointmentDate.Format(displayTime),
		"reason":       appt.Reason,
	})
	return appt, nil
}

// UpdateAppointment merges patch into the appointment. A status change must be
// a legal transition for p.
func (s *Service) UpdateAppointment(p Principal, id string, patch records.AppointmentPatch) (records.Appointment, error) {
	return s.updateAppointment(p, id, patch, "Appointment Updated")
}

// SetAppointmentStatus moves the appointment to status.
func (s *Service) SetAppointmentStatus(p Principal, id string, status records.AppointmentStatus) (records.Appointment, error) {
	return s.updateAppointment(p, id, records.AppointmentPatch{Status: &status}, "Appointment Status Changed")
}

func (s *Service) updateAppointment(p Principal, id string, patch records.AppointmentPatch, action string) (records.Appointment, error) {
	var previous records.AppointmentStatus
	appt, err := update(s, p, EntityAppointment, OpUpdate, s.store.Appointments(), id, action, func(a *records.Appointment) error {
		previous = a.Status
		if err := checkAppointmentEdit(p, *a, patch); err != nil {
			return err
		}
		if patch.Status != nil {
			if err := checkTransition(p, *a, *patch.Status); err != nil {
				return err
			}
		}
		patch.Apply(a)
		return nil
	})
	if err != nil {
		return appt, err
	}
	if appt.Status != previous {
		s.notify(appt.PatientID, records.NotifyAppointment, notification.AppointmentStatus, map[string]string{
			"doctor_name": appt.DoctorName,
			"date":        appt.AppointmentDate.Format(displayTime),
			"status":      string(appt.Status),
		})
	}
	return appt, nil
}

func (s *Service) DeleteAppointment(p Principal, id string) error {
	return remove(s, p, EntityAppointment, s.store.Appointments(), id, "Appointment Deleted")
}
