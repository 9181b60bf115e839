package access

import (
	"strings"

	"github.com/carehub/carehub/internal/domain/records"
	"github.com/carehub/carehub/internal/platform/notification"
)

type PrescriptionFilter struct {
	Search    string
	PatientID string
	Dispensed *bool
}

func (f PrescriptionFilter) match(rx records.Prescription) bool {
	if f.PatientID != "" && rx.PatientID != f.PatientID {
		return false
	}
	if f.Dispensed != nil && rx.Dispensed != *f.Dispensed {
		return false
	}
	fields := []string{rx.PatientName, rx.DoctorName}
	for _, m := range rx.Medications {
		fields = append(fields, m.MedicineName)
	}
	return matchesText(f.Search, fields...)
}

func medicationNames(rx records.Prescription) string {
	names := make([]string, 0, len(rx.Medications))
	for _, m := range rx.Medications {
		names = append(names, m.MedicineName)
	}
	return strings.Join(names, ", ")
}

func (s *Service) ListPrescriptions(p Principal, f PrescriptionFilter) ([]records.Prescription, error) {
	return list(s, p, EntityPrescription, s.store.Prescriptions(), f.match)
}

func (s *Service) GetPrescription(p Principal, id string) (records.Prescription, error) {
	return get(s, p, EntityPrescription, s.store.Prescriptions(), id)
}

func (s *Service) CreatePrescription(p Principal, draft records.Prescription) (records.Prescription, error) {
	rx, err := create(s, p, EntityPrescription, s.store.Prescriptions(), "Prescription Created", func(scope Scope) (records.Prescription, error) {
		stamp(scope, p, draft.SetOwner)
		if err := s.requireUsers("patient_id", draft.PatientID, "doctor_id", draft.DoctorID); err != nil {
			return draft, err
		}
		if draft.PrescribedDate.IsZero() {
			draft.PrescribedDate = s.store.Now()
		}
		draft.Dispensed = false
		draft.PatientName = s.userName(draft.PatientID)
		draft.DoctorName = s.userName(draft.DoctorID)
		return draft, nil
	})
	if err != nil {
		return rx, err
	}
	s.notify(rx.PatientID, records.NotifyPrescription, notification.PrescriptionIssued, map[string]string{
		"doctor_name": rx.DoctorName,
		"medications": medicationNames(rx),
	})
	return rx, nil
}

func (s *Service) UpdatePrescription(p Principal, id string, patch records.PrescriptionPatch) (records.Prescription, error) {
	return update(s, p, EntityPrescription, OpUpdate, s.store.Prescriptions(), id, "Prescription Updated", func(rx *records.Prescription) error {
		patch.Apply(rx)
		return nil
	})
}

// RenewPrescription refreshes the prescribed date and makes the prescription
// dispensable again.
func (s *Service) RenewPrescription(p Principal, id string) (records.Prescription, error) {
	now := s.store.Now()
	rx, err := update(s, p, EntityPrescription, OpRenew, s.store.Prescriptions(), id, "Prescription Renewed", func(rx *records.Prescription) error {
		rx.PrescribedDate = now
		rx.Dispensed = false
		return nil
	})
	if err != nil {
		return rx, err
	}
	s.notify(rx.PatientID, records.NotifyPrescription, notification.PrescriptionRenewed, map[string]string{
		"medications": medicationNames(rx),
	})
	return rx, nil
}

// DispensePrescription marks the prescription as handed out. A prescription
// can be dispensed once per renewal.
func (s *Service) DispensePrescription(p Principal, id string) (records.Prescription, error) {
	rx, err := update(s, p, EntityPrescription, OpDispense, s.store.Prescriptions(), id, "Prescription Dispensed", func(rx *records.Prescription) error {
		if rx.Dispensed {
			return validationError("prescription %s is already dispensed", rx.ID)
		}
		rx.Dispensed = true
		return nil
	})
	if err != nil {
		return rx, err
	}
	s.notify(rx.PatientID, records.NotifyPrescription, notification.PrescriptionDispensed, map[string]string{
		"medications": medicationNames(rx),
	})
	return rx, nil
}

// DeletePrescription always fails: prescriptions are never hard-deleted.
func (s *Service) DeletePrescription(p Principal, id string) error {
	return remove(s, p, EntityPrescription, s.store.Prescriptions(), id, "Prescription Deleted")
}
