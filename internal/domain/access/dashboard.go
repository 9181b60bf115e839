package access

import (
	"time"

	"github.com/carehub/carehub/internal/domain/records"
)

type AppointmentSummary struct {
	Total    int                               `json:"total"`
	Today    int                               `json:"today"`
	Upcoming int                               `json:"upcoming"`
	ByStatus map[records.AppointmentStatus]int `json:"by_status"`
}

type PrescriptionSummary struct {
	Total           int `json:"total"`
	Today           int `json:"today"`
	PendingDispense int `json:"pending_dispense"`
}

type LabReportSummary struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
}

type BillingSummary struct {
	Total         int                           `json:"total"`
	Revenue       float64                       `json:"total_revenue"`
	PendingAmount float64                       `json:"pending_amount"`
	ByStatus      map[records.PaymentStatus]int `json:"by_status"`
}

// Summary aggregates the records visible to one principal. Sections the
// principal may not list are omitted.
type Summary struct {
	Role                records.Role         `json:"role"`
	Appointments        *AppointmentSummary  `json:"appointments,omitempty"`
	Prescriptions       *PrescriptionSummary `json:"prescriptions,omitempty"`
	LabReports          *LabReportSummary    `json:"lab_reports,omitempty"`
	Billing             *BillingSummary      `json:"billing,omitempty"`
	Staff               *int                 `json:"staff,omitempty"`
	Patients            *int                 `json:"patients,omitempty"`
	UnreadNotifications int                  `json:"unread_notifications"`
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func (s *Service) canList(p Principal, e Entity) bool {
	_, ok := Allowed(p, e, OpList)
	return ok
}

func (s *Service) Summary(p Principal) (Summary, error) {
	if err := authenticated(p); err != nil {
		return Summary{}, err
	}
	now := s.store.Now()
	sum := Summary{Role: p.Role}

	if s.canList(p, EntityAppointment) {
		appts, err := s.ListAppointments(p, AppointmentFilter{})
		if err != nil {
			return Summary{}, err
		}
		as := &AppointmentSummary{Total: len(appts), ByStatus: map[records.AppointmentStatus]int{}}
		for _, a := range appts {
			as.ByStatus[a.Status]++
			if sameDay(a.AppointmentDate, now) {
				as.Today++
			}
			if a.AppointmentDate.After(now) && (a.Status == records.StatusPending || a.Status == records.StatusConfirmed) {
				as.Upcoming++
			}
		}
		sum.Appointments = as
	}

	if s.canList(p, EntityPrescription) {
		rxs, err := s.ListPrescriptions(p, PrescriptionFilter{})
		if err != nil {
			return Summary{}, err
		}
		ps := &PrescriptionSummary{Total: len(rxs)}
		for _, rx := range rxs {
			if !rx.Dispensed {
				ps.PendingDispense++
			}
			if sameDay(rx.PrescribedDate, now) {
				ps.Today++
			}
		}
		sum.Prescriptions = ps
	}

	if s.canList(p, EntityLabReport) {
		labs, err := s.ListLabReports(p, LabReportFilter{})
		if err != nil {
			return Summary{}, err
		}
		ls := &LabReportSummary{Total: len(labs)}
		for _, l := range labs {
			if l.ReportResult.Empty() {
				ls.Pending++
			} else {
				ls.Completed++
			}
		}
		sum.LabReports = ls
	}

	if s.canList(p, EntityBilling) {
		bills, err := s.ListBilling(p, BillingFilter{})
		if err != nil {
			return Summary{}, err
		}
		bs := &BillingSummary{Total: len(bills), ByStatus: map[records.PaymentStatus]int{}}
		for _, b := range bills {
			bs.Revenue += b.TotalAmount
			bs.ByStatus[b.PaymentStatus]++
			if b.PaymentStatus == records.PaymentPending {
				bs.PendingAmount += b.TotalAmount
			}
		}
		sum.Billing = bs
	}

	if s.canList(p, EntityStaff) {
		staff, err := s.ListStaff(p, StaffFilter{})
		if err != nil {
			return Summary{}, err
		}
		n := len(staff)
		sum.Staff = &n
	}

	if s.canList(p, EntityPatientProfile) {
		profiles, err := s.ListPatientProfiles(p, ProfileFilter{})
		if err != nil {
			return Summary{}, err
		}
		n := len(profiles)
		sum.Patients = &n
	}

	unread, err := s.ListNotifications(p, NotificationFilter{UnreadOnly: true})
	if err != nil {
		return Summary{}, err
	}
	sum.UnreadNotifications = len(unread)
	return sum, nil
}

// PatientRecords is the chart of one patient as seen by a principal.
type PatientRecords struct {
	Profile       *records.PatientProfile `json:"profile,omitempty"`
	Appointments  []records.Appointment   `json:"appointments,omitempty"`
	Prescriptions []records.Prescription  `json:"prescriptions,omitempty"`
	LabReports    []records.LabReport     `json:"lab_reports,omitempty"`
	Billing       []records.Billing       `json:"billing,omitempty"`
}

// PatientRecords gathers everything p may see about patientID. p must be
// allowed to see the patient's profile.
func (s *Service) PatientRecords(p Principal, patientID string) (PatientRecords, error) {
	if err := authenticated(p); err != nil {
		return PatientRecords{}, err
	}
	scope, err := authorize(p, EntityPatientProfile, OpList)
	if err != nil {
		return PatientRecords{}, s.observe(p, EntityPatientProfile, OpList, patientID, err)
	}
	if !scope.All() && p.ID != patientID {
		return PatientRecords{}, s.observe(p, EntityPatientProfile, OpList, patientID, forbidden(p, OpList, EntityPatientProfile))
	}
	u, ok := s.LookupUser(patientID)
	if !ok || u.RoleName != records.RolePatient {
		return PatientRecords{}, s.observe(p, EntityPatientProfile, OpList, patientID, errPatientNotFound(patientID))
	}

	var out PatientRecords
	if profile, ok := s.profileFor(patientID); ok {
		out.Profile = &profile
	}
	if s.canList(p, EntityAppointment) {
		if out.Appointments, err = s.ListAppointments(p, AppointmentFilter{PatientID: patientID}); err != nil {
			return PatientRecords{}, err
		}
	}
	if s.canList(p, EntityPrescription) {
		if out.Prescriptions, err = s.ListPrescriptions(p, PrescriptionFilter{PatientID: patientID}); err != nil {
			return PatientRecords{}, err
		}
	}
	if s.canList(p, EntityLabReport) {
		if out.LabReports, err = s.ListLabReports(p, LabReportFilter{PatientID: patientID}); err != nil {
			return PatientRecords{}, err
		}
	}
	if s.canList(p, EntityBilling) {
		if out.Billing, err = s.ListBilling(p, BillingFilter{PatientID: patientID}); err != nil {
			return PatientRecords{}, err
		}
	}
	return out, nil
}
