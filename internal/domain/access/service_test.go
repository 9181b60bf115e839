package access

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/carehub/carehub/internal/domain/records"
)

var fixedNow = time.Date(2024, 6, 15, 8, 0, 0, 0, time.UTC)

var (
	superAdmin   = Principal{ID: "1", FullName: "Super Administrator", Role: records.RoleSuperAdmin}
	admin        = Principal{ID: "2", FullName: "System Administrator", Role: records.RoleAdmin}
	doctor       = Principal{ID: "3", FullName: "Dr. Sarah Johnson", Role: records.RoleDoctor}
	nurse        = Principal{ID: "4", FullName: "Emily Davis", Role: records.RoleNurse}
	labTech      = Principal{ID: "5", FullName: "Michael Chen", Role: records.RoleLabTechnician}
	pharmacist   = Principal{ID: "6", FullName: "Lisa Rodriguez", Role: records.RolePharmacist}
	billingStaff = Principal{ID: "7", FullName: "James Wilson", Role: records.RoleBillingStaff}
	patient      = Principal{ID: "8", FullName: "John Smith", Role: records.RolePatient}
	otherPatient = Principal{ID: "9", FullName: "Mary Jones", Role: records.RolePatient}
	otherDoctor  = Principal{ID: "10", FullName: "Dr. Alan Grant", Role: records.RoleDoctor}
)

type observation struct {
	resource, op, outcome string
}

type mockRecorder struct {
	mu   sync.Mutex
	seen []observation
}

func (r *mockRecorder) Observe(resource, op, outcome string) {
	r.mu.Lock()
	r.seen = append(r.seen, observation{resource, op, outcome})
	r.mu.Unlock()
}

func (r *mockRecorder) count(outcome string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, o := range r.seen {
		if o.outcome == outcome {
			n++
		}
	}
	return n
}

// fixture extends the demo data with a second patient and doctor so that
// owner scoping is observable.
func fixture() *records.Snapshot {
	snap := records.DemoSnapshot()
	snap.Users = append(snap.Users,
		records.User{ID: "9", Email: "mary@carehub.com", FullName: "Mary Jones", RoleName: records.RolePatient},
		records.User{ID: "10", Email: "grant@carehub.com", FullName: "Dr. Alan Grant", RoleName: records.RoleDoctor},
	)
	snap.Appointments = append(snap.Appointments, records.Appointment{
		ID: "3", PatientID: "9", PatientName: "Mary Jones", DoctorID: "10", DoctorName: "Dr. Alan Grant",
		AppointmentDate: time.Date(2024, 6, 18, 9, 0, 0, 0, time.UTC), Status: records.StatusPending,
		Reason: "Back pain",
	})
	snap.Prescriptions = append(snap.Prescriptions, records.Prescription{
		ID: "2", PatientID: "9", PatientName: "Mary Jones", DoctorID: "10", DoctorName: "Dr. Alan Grant",
		PrescribedDate: time.Date(2024, 6, 14, 9, 0, 0, 0, time.UTC),
		Medications:    []records.Medication{{MedicineName: "Naproxen", Dosage: "250mg", Frequency: "Twice daily"}},
	})
	snap.Billing = append(snap.Billing, records.Billing{
		ID: "2", PatientID: "9", PatientName: "Mary Jones",
		BillingDate:   time.Date(2024, 6, 14, 9, 0, 0, 0, time.UTC),
		ServiceItems:  []records.ServiceItem{{ServiceName: "Physiotherapy", Price: 90, Quantity: 1}},
		PaymentStatus: records.PaymentPending,
	})
	snap.LabReports = append(snap.LabReports, records.LabReport{
		ID: "2", PatientID: "9", PatientName: "Mary Jones", DoctorID: "10", DoctorName: "Dr. Alan Grant",
		ReportDate: time.Date(2024, 6, 14, 9, 0, 0, 0, time.UTC), ReportType: "X-Ray",
	})
	snap.PatientProfiles = append(snap.PatientProfiles, records.PatientProfile{
		ID: "2", UserID: "9", FullName: "Mary Jones", Email: "mary@carehub.com",
	})
	return snap
}

func newTestService(t *testing.T) (*Service, *records.Store, *mockRecorder) {
	t.Helper()
	n := 100
	store := records.NewStore(
		records.WithClock(func() time.Time { return fixedNow }),
		records.WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		}),
	)
	if err := store.Restore(fixture()); err != nil {
		t.Fatalf("restore fixture: %v", err)
	}
	rec := &mockRecorder{}
	return NewService(store, WithRecorder(rec)), store, rec
}

func ids[T records.Record[T]](items []T) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.GetID())
	}
	return out
}

func expectErr(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}

func lastAudit(t *testing.T, store *records.Store) records.AuditEntry {
	t.Helper()
	logs := store.AuditLogs().List()
	if len(logs) == 0 {
		t.Fatal("expected an audit entry")
	}
	return logs[len(logs)-1]
}

func notificationsFor(store *records.Store, userID string) []records.Notification {
	return store.Notifications().Find(func(n records.Notification) bool { return n.UserID == userID })
}

func TestList_VisibilityByRole(t *testing.T) {
	appointments := func(s *Service, p Principal) ([]string, error) {
		items, err := s.ListAppointments(p, AppointmentFilter{})
		return ids(items), err
	}
	prescriptions := func(s *Service, p Principal) ([]string, error) {
		items, err := s.ListPrescriptions(p, PrescriptionFilter{})
		return ids(items), err
	}
	billing := func(s *Service, p Principal) ([]string, error) {
		items, err := s.ListBilling(p, BillingFilter{})
		return ids(items), err
	}
	labReports := func(s *Service, p Principal) ([]string, error) {
		items, err := s.ListLabReports(p, LabReportFilter{})
		return ids(items), err
	}
	staff := func(s *Service, p Principal) ([]string, error) {
		items, err := s.ListStaff(p, StaffFilter{})
		return ids(items), err
	}
	notifications := func(s *Service, p Principal) ([]string, error) {
		items, err := s.ListNotifications(p, NotificationFilter{})
		return ids(items), err
	}
	auditLogs := func(s *Service, p Principal) ([]string, error) {
		items, err := s.ListAuditLogs(p, AuditFilter{})
		return ids(items), err
	}
	profiles := func(s *Service, p Principal) ([]string, error) {
		items, err := s.ListPatientProfiles(p, ProfileFilter{})
		return ids(items), err
	}

	tests := []struct {
		name      string
		list      func(*Service, Principal) ([]string, error)
		principal Principal
		want      []string
		forbidden bool
	}{
		{"appointments patient", appointments, patient, []string{"1", "2"}, false},
		{"appointments other patient", appointments, otherPatient, []string{"3"}, false},
		{"appointments doctor", appointments, doctor, []string{"1", "2"}, false},
		{"appointments other doctor", appointments, otherDoctor, []string{"3"}, false},
		{"appointments nurse", appointments, nurse, []string{"1", "2", "3"}, false},
		{"appointments admin", appointments, admin, []string{"1", "2", "3"}, false},
		{"prescriptions patient", prescriptions, patient, []string{"1"}, false},
		{"prescriptions other doctor", prescriptions, otherDoctor, []string{"2"}, false},
		{"prescriptions pharmacist", prescriptions, pharmacist, []string{"1", "2"}, false},
		{"billing staff", billing, billingStaff, []string{"1", "2"}, false},
		{"billing patient", billing, patient, []string{"1"}, false},
		{"billing other patient", billing, otherPatient, []string{"2"}, false},
		{"billing doctor", billing, doctor, nil, true},
		{"lab reports technician", labReports, labTech, []string{"1"}, false},
		{"lab reports other doctor", labReports, otherDoctor, []string{"2"}, false},
		{"lab reports nurse", labReports, nurse, []string{"1", "2"}, false},
		{"staff admin", staff, admin, []string{"1", "2"}, false},
		{"staff super admin", staff, superAdmin, []string{"1", "2"}, false},
		{"staff nurse", staff, nurse, nil, true},
		{"notifications patient", notifications, patient, []string{"1", "2"}, false},
		{"notifications doctor", notifications, doctor, []string{}, false},
		{"audit logs admin", auditLogs, admin, []string{"1", "2"}, false},
		{"audit logs patient", auditLogs, patient, nil, true},
		{"profiles patient", profiles, patient, []string{"1"}, false},
		{"profiles doctor", profiles, doctor, []string{"1", "2"}, false},
		{"profiles pharmacist", profiles, pharmacist, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := newTestService(t)
			got, err := tt.list(svc, tt.principal)
			if tt.forbidden {
				expectErr(t, err, ErrForbidden)
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestList_Filters(t *testing.T) {
	svc, _, _ := newTestService(t)

	appts, err := svc.ListAppointments(nurse, AppointmentFilter{Search: "back"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ids(appts); !reflect.DeepEqual(got, []string{"3"}) {
		t.Errorf("expected search to match appointment 3, got %v", got)
	}

	appts, _ = svc.ListAppointments(admin, AppointmentFilter{Status: records.StatusPending})
	if got := ids(appts); !reflect.DeepEqual(got, []string{"2", "3"}) {
		t.Errorf("expected pending appointments 2 and 3, got %v", got)
	}

	dispensed := false
	rxs, _ := svc.ListPrescriptions(pharmacist, PrescriptionFilter{Search: "naproxen", Dispensed: &dispensed})
	if got := ids(rxs); !reflect.DeepEqual(got, []string{"2"}) {
		t.Errorf("expected prescription 2, got %v", got)
	}

	bills, _ := svc.ListBilling(billingStaff, BillingFilter{Status: records.PaymentPaid})
	if got := ids(bills); !reflect.DeepEqual(got, []string{"1"}) {
		t.Errorf("expected paid bill 1, got %v", got)
	}

	staff, _ := svc.ListStaff(admin, StaffFilter{Department: "Emergency"})
	if got := ids(staff); !reflect.DeepEqual(got, []string{"2"}) {
		t.Errorf("expected staff 2, got %v", got)
	}
}

func TestList_Unauthenticated(t *testing.T) {
	svc, _, rec := newTestService(t)

	_, err := svc.ListAppointments(Principal{}, AppointmentFilter{})
	expectErr(t, err, ErrUnauthenticated)

	_, err = svc.ListAppointments(Principal{ID: "8", Role: "Janitor"}, AppointmentFilter{})
	expectErr(t, err, ErrUnauthenticated)

	if rec.count("unauthenticated") != 2 {
		t.Errorf("expected 2 unauthenticated observations, got %+v", rec.seen)
	}
}

func TestGet_OutOfScopeIsForbidden(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.GetAppointment(otherPatient, "1")
	expectErr(t, err, ErrForbidden)

	_, err = svc.GetAppointment(patient, "missing")
	expectErr(t, err, records.ErrNotFound)

	appt, err := svc.GetAppointment(patient, "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if appt.Reason != "Regular checkup" {
		t.Errorf("unexpected appointment: %+v", appt)
	}
}

func TestCreateAppointment_PatientIsForcedAsOwner(t *testing.T) {
	svc, store, _ := newTestService(t)

	appt, err := svc.CreateAppointment(patient, records.Appointment{
		PatientID:       "9",
		DoctorID:        "9",
		AppointmentDate: time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC),
		Reason:          "Headache",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if appt.PatientID != "8" {
		t.Errorf("expected patient_id forced to 8, got %s", appt.PatientID)
	}
	if appt.DoctorID != "9" {
		t.Errorf("expected doctor_id kept as supplied, got %s", appt.DoctorID)
	}
	if appt.PatientName != "John Smith" || appt.Status != records.StatusPending {
		t.Errorf("unexpected appointment: %+v", appt)
	}

	stored, err := store.Appointments().Get(appt.ID)
	if err != nil || stored.PatientID != "8" {
		t.Errorf("expected stored patient_id 8, got %+v (%v)", stored, err)
	}

	entry := lastAudit(t, store)
	if entry.ActionPerformed != "Appointment Created" || entry.PerformedBy != "8" || entry.ResourceID != appt.ID {
		t.Errorf("unexpected audit entry: %+v", entry)
	}
	if entry.Resource != string(EntityAppointment) || !entry.Timestamp.Equal(fixedNow) {
		t.Errorf("unexpected audit entry: %+v", entry)
	}

	booked := notificationsFor(store, "9")
	if len(booked) != 1 || !strings.Contains(booked[0].Message, "John Smith") {
		t.Errorf("expected booking notification to the doctor, got %+v", booked)
	}
}

func TestCreateAppointment_Validation(t *testing.T) {
	date := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		principal Principal
		draft     records.Appointment
		target    error
	}{
		{"unknown doctor", patient, records.Appointment{DoctorID: "404", AppointmentDate: date}, records.ErrValidation},
		{"missing date", patient, records.Appointment{DoctorID: "3"}, records.ErrValidation},
		{"patient cannot book confirmed", patient, records.Appointment{DoctorID: "3", AppointmentDate: date, Status: records.StatusConfirmed}, ErrForbidden},
		{"pending cannot start completed", doctor, records.Appointment{PatientID: "8", AppointmentDate: date, Status: records.StatusCompleted}, ErrInvalidTransition},
		{"nurse cannot book", nurse, records.Appointment{PatientID: "8", DoctorID: "3", AppointmentDate: date}, ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _ := newTestService(t)
			before := store.Appointments().Len()
			_, err := svc.CreateAppointment(tt.principal, tt.draft)
			expectErr(t, err, tt.target)
			if store.Appointments().Len() != before {
				t.Error("failed create must not store a record")
			}
		})
	}
}

func TestCreateAppointment_DoctorMayConfirmOnBooking(t *testing.T) {
	svc, _, _ := newTestService(t)

	appt, err := svc.CreateAppointment(doctor, records.Appointment{
		PatientID:       "8",
		AppointmentDate: time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC),
		Status:          records.StatusConfirmed,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if appt.DoctorID != "3" || appt.Status != records.StatusConfirmed {
		t.Errorf("unexpected appointment: %+v", appt)
	}
}

func TestAppointmentStatus_Transitions(t *testing.T) {
	svc, store, _ := newTestService(t)

	appt, err := svc.SetAppointmentStatus(doctor, "1", records.StatusCompleted)
	if err != nil {
		t.Fatalf("complete appointment: %v", err)
	}
	if appt.Status != records.StatusCompleted {
		t.Fatalf("expected Completed, got %s", appt.Status)
	}

	_, err = svc.SetAppointmentStatus(doctor, "1", records.StatusPending)
	expectErr(t, err, ErrInvalidTransition)

	stored, _ := store.Appointments().Get("1")
	if stored.Status != records.StatusCompleted {
		t.Errorf("expected status to stay Completed, got %s", stored.Status)
	}

	changed := notificationsFor(store, "8")
	last := changed[len(changed)-1]
	if !strings.HasSuffix(last.Message, "is now Completed") {
		t.Errorf("expected status notification to the patient, got %q", last.Message)
	}
}

func TestAppointmentStatus_RoleRules(t *testing.T) {
	tests := []struct {
		name      string
		principal Principal
		id        string
		status    records.AppointmentStatus
		target    error
	}{
		{"patient confirms", patient, "2", records.StatusConfirmed, ErrForbidden},
		{"patient cancels own", patient, "2", records.StatusCancelled, nil},
		{"patient cancels other", patient, "3", records.StatusCancelled, ErrForbidden},
		{"doctor confirms own", doctor, "2", records.StatusConfirmed, nil},
		{"doctor confirms other", doctor, "3", records.StatusConfirmed, ErrForbidden},
		{"nurse confirms", nurse, "2", records.StatusConfirmed, ErrForbidden},
		{"admin confirms", admin, "3", records.StatusConfirmed, nil},
		{"pending to completed", admin, "2", records.StatusCompleted, ErrInvalidTransition},
		{"same status", patient, "2", records.StatusPending, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _ := newTestService(t)
			before, _ := store.Appointments().Get(tt.id)

			_, err := svc.SetAppointmentStatus(tt.principal, tt.id, tt.status)
			if tt.target == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			expectErr(t, err, tt.target)
			after, _ := store.Appointments().Get(tt.id)
			if !reflect.DeepEqual(before, after) {
				t.Errorf("rejected change modified the record: %+v", after)
			}
		})
	}
}

func TestUpdateAppointment_EmptyPatchIsNoop(t *testing.T) {
	svc, store, _ := newTestService(t)
	before, _ := store.Appointments().Get("1")

	got, err := svc.UpdateAppointment(doctor, "1", records.AppointmentPatch{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(before, got) {
		t.Errorf("expected unchanged record, got %+v", got)
	}
}

func TestUpdateAppointment_FieldRules(t *testing.T) {
	notes := "Patient reports improvement"
	later := fixedNow.Add(72 * time.Hour)
	reason := "Follow-up"

	tests := []struct {
		name      string
		principal Principal
		complete  bool
		patch     records.AppointmentPatch
		target    error
	}{
		{"patient writes doctor notes", patient, false, records.AppointmentPatch{DoctorNotes: &notes}, ErrForbidden},
		{"doctor writes own notes", doctor, false, records.AppointmentPatch{DoctorNotes: &notes}, nil},
		{"admin writes notes", admin, false, records.AppointmentPatch{DoctorNotes: &notes}, nil},
		{"patient reschedules open appointment", patient, false, records.AppointmentPatch{AppointmentDate: &later}, nil},
		{"patient reschedules completed appointment", patient, true, records.AppointmentPatch{AppointmentDate: &later}, ErrInvalidTransition},
		{"admin reschedules completed appointment", admin, true, records.AppointmentPatch{AppointmentDate: &later}, ErrInvalidTransition},
		{"patient edits reason of completed appointment", patient, true, records.AppointmentPatch{Reason: &reason}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _ := newTestService(t)
			if tt.complete {
				if _, err := svc.SetAppointmentStatus(doctor, "1", records.StatusCompleted); err != nil {
					t.Fatalf("complete appointment: %v", err)
				}
			}
			before, _ := store.Appointments().Get("1")

			_, err := svc.UpdateAppointment(tt.principal, "1", tt.patch)
			if tt.target == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			expectErr(t, err, tt.target)
			after, _ := store.Appointments().Get("1")
			if !reflect.DeepEqual(before, after) {
				t.Errorf("rejected change modified the record: %+v", after)
			}
		})
	}
}

func TestUpdateAppointment_MissingID(t *testing.T) {
	svc, _, _ := newTestService(t)
	reason := "x"
	_, err := svc.UpdateAppointment(doctor, "404", records.AppointmentPatch{Reason: &reason})
	expectErr(t, err, records.ErrNotFound)
}

func TestDeleteAppointment(t *testing.T) {
	svc, store, _ := newTestService(t)

	expectErr(t, svc.DeleteAppointment(otherPatient, "1"), ErrForbidden)
	expectErr(t, svc.DeleteAppointment(pharmacist, "1"), ErrForbidden)

	if err := svc.DeleteAppointment(nurse, "1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.Appointments().Get("1"); !errors.Is(err, records.ErrNotFound) {
		t.Errorf("expected appointment to be gone, got %v", err)
	}
	expectErr(t, svc.DeleteAppointment(nurse, "1"), records.ErrNotFound)
	if entry := lastAudit(t, store); entry.ActionPerformed != "Appointment Deleted" || entry.PerformedBy != "4" {
		t.Errorf("unexpected audit entry: %+v", entry)
	}
}

func TestBilling_ListScopedByRole(t *testing.T) {
	svc, _, _ := newTestService(t)

	all, err := svc.ListBilling(billingStaff, BillingFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected billing staff to see every bill, got %d", len(all))
	}

	own, err := svc.ListBilling(patient, BillingFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, b := range own {
		if b.PatientID != patient.ID {
			t.Errorf("patient sees foreign bill %+v", b)
		}
	}
	if len(own) != 1 {
		t.Errorf("expected one own bill, got %d", len(own))
	}
}

func TestCreateBilling_ComputesTotal(t *testing.T) {
	svc, store, _ := newTestService(t)

	bill, err := svc.CreateBilling(billingStaff, records.Billing{
		PatientID: "8",
		ServiceItems: []records.ServiceItem{
			{ServiceName: "Consult", Price: 150, Quantity: 1},
			{ServiceName: "X-Ray", Price: 75, Quantity: 2},
		},
		TotalAmount: 1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bill.TotalAmount != 300 {
		t.Errorf("expected total 300, got %v", bill.TotalAmount)
	}
	if bill.PaymentStatus != records.PaymentPending || bill.PatientName != "John Smith" {
		t.Errorf("unexpected bill: %+v", bill)
	}
	if !bill.BillingDate.Equal(fixedNow) {
		t.Errorf("expected billing date to default to now, got %v", bill.BillingDate)
	}

	issued := notificationsFor(store, "8")
	if last := issued[len(issued)-1]; !strings.Contains(last.Message, "$300.00") || last.Type != records.NotifyBilling {
		t.Errorf("unexpected bill notification: %+v", last)
	}

	items := append(bill.ServiceItems, records.ServiceItem{ServiceName: "Dressing", Price: 25, Quantity: 1})
	updated, err := svc.UpdateBilling(billingStaff, bill.ID, records.BillingPatch{ServiceItems: &items})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.TotalAmount != 325 {
		t.Errorf("expected total 325 after update, got %v", updated.TotalAmount)
	}

	before := store.Billing().Len()
	_, err = svc.CreateBilling(billingStaff, records.Billing{
		PatientID:    "8",
		ServiceItems: []records.ServiceItem{{ServiceName: "Overflow", Price: math.MaxFloat64, Quantity: 2}},
	})
	expectErr(t, err, records.ErrValidation)
	if store.Billing().Len() != before {
		t.Errorf("expected rejected bill not to be stored")
	}

	huge := []records.ServiceItem{{ServiceName: "Overflow", Price: math.MaxFloat64, Quantity: 2}}
	_, err = svc.UpdateBilling(billingStaff, bill.ID, records.BillingPatch{ServiceItems: &huge})
	expectErr(t, err, records.ErrValidation)
	if got, _ := store.Billing().Get(bill.ID); got.TotalAmount != 325 {
		t.Errorf("expected total to stay 325 after rejected update, got %v", got.TotalAmount)
	}
	if _, err := records.EncodeSnapshot(store.Snapshot()); err != nil {
		t.Errorf("expected snapshot to stay encodable: %v", err)
	}
}

func TestBilling_ForbiddenLeavesStateUnchanged(t *testing.T) {
	svc, store, rec := newTestService(t)
	before, _ := store.Billing().Get("1")
	auditBefore := store.AuditLogs().Len()

	status := records.PaymentPending
	_, err := svc.UpdateBilling(patient, "1", records.BillingPatch{PaymentStatus: &status})
	expectErr(t, err, ErrForbidden)
	expectErr(t, svc.DeleteBilling(billingStaff, "1"), ErrForbidden)

	after, _ := store.Billing().Get("1")
	if !reflect.DeepEqual(before, after) {
		t.Errorf("forbidden update changed the bill: %+v", after)
	}
	if store.AuditLogs().Len() != auditBefore {
		t.Error("denied operations must not be audited")
	}
	if rec.count("forbidden") != 2 {
		t.Errorf("expected 2 forbidden observations, got %+v", rec.seen)
	}

	if err := svc.DeleteBilling(admin, "1"); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
}

func TestPrescriptions_DispenseAndRenew(t *testing.T) {
	svc, store, _ := newTestService(t)

	_, err := svc.DispensePrescription(patient, "1")
	expectErr(t, err, ErrForbidden)

	rx, err := svc.DispensePrescription(pharmacist, "1")
	if err != nil {
		t.Fatalf("dispense: %v", err)
	}
	if !rx.Dispensed {
		t.Error("expected prescription to be dispensed")
	}
	_, err = svc.DispensePrescription(pharmacist, "1")
	expectErr(t, err, records.ErrValidation)

	_, err = svc.RenewPrescription(otherDoctor, "1")
	expectErr(t, err, ErrForbidden)

	rx, err = svc.RenewPrescription(doctor, "1")
	if err != nil {
		t.Fatalf("renew: %v", err)
	}
	if rx.Dispensed || !rx.PrescribedDate.Equal(fixedNow) {
		t.Errorf("expected renewal to reset dispense state and date, got %+v", rx)
	}
	if _, err := svc.DispensePrescription(pharmacist, "1"); err != nil {
		t.Errorf("expected renewed prescription to be dispensable: %v", err)
	}

	if entry := lastAudit(t, store); entry.ActionPerformed != "Prescription Dispensed" || entry.PerformedBy != "6" {
		t.Errorf("unexpected audit entry: %+v", entry)
	}
}

func TestCreatePrescription(t *testing.T) {
	svc, store, _ := newTestService(t)

	rx, err := svc.CreatePrescription(doctor, records.Prescription{
		PatientID:   "9",
		DoctorID:    "10",
		Dispensed:   true,
		Medications: []records.Medication{{MedicineName: "Cetirizine", Dosage: "10mg", Frequency: "Daily"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rx.DoctorID != "3" || rx.Dispensed || rx.PatientName != "Mary Jones" {
		t.Errorf("unexpected prescription: %+v", rx)
	}

	entry := lastAudit(t, store)
	if entry.ActionPerformed != "Prescription Created" || entry.ResourceID != rx.ID || entry.PerformerName != "Dr. Sarah Johnson" {
		t.Errorf("unexpected audit entry: %+v", entry)
	}
	issued := notificationsFor(store, "9")
	if len(issued) != 1 || !strings.Contains(issued[0].Message, "Cetirizine") {
		t.Errorf("expected prescription notification, got %+v", issued)
	}

	_, err = svc.CreatePrescription(nurse, records.Prescription{PatientID: "8"})
	expectErr(t, err, ErrForbidden)
}

func TestPrescriptionsAndLabReports_NeverDeleted(t *testing.T) {
	svc, store, _ := newTestService(t)

	for _, p := range []Principal{superAdmin, admin, doctor} {
		expectErr(t, svc.DeletePrescription(p, "1"), ErrForbidden)
		expectErr(t, svc.DeleteLabReport(p, "1"), ErrForbidden)
	}
	if store.Prescriptions().Len() != 2 || store.LabReports().Len() != 2 {
		t.Error("records must survive rejected deletes")
	}
}

func TestLabReports_NotifyWhenResultRecorded(t *testing.T) {
	svc, store, _ := newTestService(t)

	report, err := svc.CreateLabReport(labTech, records.LabReport{
		PatientID:  "9",
		DoctorID:   "10",
		ReportType: "ECG",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.LabTechnicianID != "5" || report.TechnicianName != "Michael Chen" || report.DoctorName != "Dr. Alan Grant" {
		t.Errorf("unexpected report: %+v", report)
	}
	if n := len(notificationsFor(store, "9")); n != 0 {
		t.Fatalf("expected no notification before a result, got %d", n)
	}

	result := records.ReportResult{Text: "Normal sinus rhythm"}
	if _, err := svc.UpdateLabReport(labTech, report.ID, records.LabReportPatch{ReportResult: &result}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ready := notificationsFor(store, "9")
	if len(ready) != 1 || ready[0].Type != records.NotifyLabReport || !strings.Contains(ready[0].Message, "ECG") {
		t.Errorf("expected one lab notification, got %+v", ready)
	}

	notes := "reviewed"
	if _, err := svc.UpdateLabReport(labTech, report.ID, records.LabReportPatch{Notes: &notes}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := len(notificationsFor(store, "9")); n != 1 {
		t.Errorf("expected no repeat notification, got %d", n)
	}

	_, err = svc.UpdateLabReport(labTech, "2", records.LabReportPatch{Notes: &notes})
	expectErr(t, err, ErrForbidden)
}

func TestStaff_AdminsOnly(t *testing.T) {
	svc, store, _ := newTestService(t)

	expectErr(t, svc.DeleteStaff(nurse, "1"), ErrForbidden)
	if store.Staff().Len() != 2 {
		t.Fatalf("expected staff to be unchanged, got %d", store.Staff().Len())
	}

	member, err := svc.CreateStaff(admin, records.StaffMember{
		FullName: "Ana Ruiz", Email: "ana@carehub.com", RoleName: records.RolePharmacist, Department: "Pharmacy",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = svc.CreateStaff(admin, records.StaffMember{
		UserID: "404", FullName: "Ghost", Email: "ghost@carehub.com", RoleName: records.RoleNurse,
	})
	expectErr(t, err, records.ErrValidation)

	dept := "Oncology"
	updated, err := svc.UpdateStaff(superAdmin, member.ID, records.StaffPatch{Department: &dept})
	if err != nil || updated.Department != "Oncology" {
		t.Fatalf("unexpected update result: %+v (%v)", updated, err)
	}
	if err := svc.DeleteStaff(admin, member.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.Staff().Len() != 2 {
		t.Errorf("expected 2 staff after delete, got %d", store.Staff().Len())
	}
}

func TestNotifications_MarkRead(t *testing.T) {
	svc, store, _ := newTestService(t)

	_, err := svc.MarkNotificationRead(doctor, "1")
	expectErr(t, err, ErrForbidden)

	n, err := svc.MarkNotificationRead(patient, "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !n.IsRead {
		t.Error("expected notification to be read")
	}

	marked, err := svc.MarkAllNotificationsRead(patient)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if marked != 1 {
		t.Errorf("expected 1 notification marked, got %d", marked)
	}
	unread, _ := svc.ListNotifications(patient, NotificationFilter{UnreadOnly: true})
	if len(unread) != 0 {
		t.Errorf("expected no unread notifications, got %d", len(unread))
	}

	auditBefore := store.AuditLogs().Len()
	if marked, _ := svc.MarkAllNotificationsRead(patient); marked != 0 {
		t.Errorf("expected nothing left to mark, got %d", marked)
	}
	if store.AuditLogs().Len() != auditBefore {
		t.Error("marking nothing must not be audited")
	}
}

func TestCreateNotification(t *testing.T) {
	svc, _, _ := newTestService(t)

	n, err := svc.CreateNotification(admin, records.Notification{UserID: "3", Message: "Staff meeting at 5", IsRead: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.IsRead || n.Type != records.NotifySystem || !n.CreatedAt.Equal(fixedNow) {
		t.Errorf("unexpected notification: %+v", n)
	}

	_, err = svc.CreateNotification(doctor, records.Notification{UserID: "8", Message: "hi"})
	expectErr(t, err, ErrForbidden)
	_, err = svc.CreateNotification(admin, records.Notification{UserID: "404", Message: "hi"})
	expectErr(t, err, records.ErrValidation)
}

func TestAppendAudit(t *testing.T) {
	svc, store, _ := newTestService(t)

	entry, err := svc.AppendAudit(admin, records.AuditEntry{
		ActionPerformed: "Export Requested",
		PerformedBy:     "8",
		Resource:        "Reports",
		ResourceID:      "monthly",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.PerformedBy != "2" || entry.PerformerName != "System Administrator" || !entry.Timestamp.Equal(fixedNow) {
		t.Errorf("expected performer and time from the principal, got %+v", entry)
	}
	if store.AuditLogs().Len() != 3 {
		t.Errorf("expected one appended entry, got %d", store.AuditLogs().Len())
	}

	_, err = svc.AppendAudit(doctor, records.AuditEntry{ActionPerformed: "x", Resource: "y"})
	expectErr(t, err, ErrForbidden)
}

func TestPatientProfiles(t *testing.T) {
	svc, _, _ := newTestService(t)

	allergies := "None"
	_, err := svc.UpdatePatientProfile(otherPatient, "1", records.PatientProfilePatch{Allergies: &allergies})
	expectErr(t, err, ErrForbidden)

	pp, err := svc.UpdatePatientProfile(otherPatient, "2", records.PatientProfilePatch{Allergies: &allergies})
	if err != nil || pp.Allergies != "None" {
		t.Fatalf("unexpected update result: %+v (%v)", pp, err)
	}

	_, err = svc.CreatePatientProfile(admin, records.PatientProfile{UserID: "8"})
	expectErr(t, err, records.ErrValidation)
	_, err = svc.CreatePatientProfile(admin, records.PatientProfile{UserID: "3"})
	expectErr(t, err, records.ErrValidation)
	_, err = svc.CreatePatientProfile(doctor, records.PatientProfile{UserID: "8"})
	expectErr(t, err, ErrForbidden)
}

func TestRegisterPatient(t *testing.T) {
	svc, store, _ := newTestService(t)

	u, profile, err := svc.RegisterPatient(Registration{
		FullName:   "Priya Patel",
		Email:      "  Priya@Example.com ",
		Gender:     "Female",
		BloodGroup: "A+",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.RoleName != records.RolePatient || u.Email != "priya@example.com" {
		t.Errorf("unexpected user: %+v", u)
	}
	if profile.UserID != u.ID || profile.FullName != "Priya Patel" || profile.BloodGroup != "A+" {
		t.Errorf("unexpected profile: %+v", profile)
	}

	entry := lastAudit(t, store)
	if entry.ActionPerformed != "Patient Registered" || entry.PerformedBy != u.ID {
		t.Errorf("unexpected audit entry: %+v", entry)
	}
	welcome := notificationsFor(store, u.ID)
	if len(welcome) != 1 || !strings.Contains(welcome[0].Message, "Priya Patel") {
		t.Errorf("expected welcome notification, got %+v", welcome)
	}

	self := Principal{ID: u.ID, FullName: u.FullName, Role: u.RoleName}
	own, err := svc.ListPatientProfiles(self, ProfileFilter{})
	if err != nil || len(own) != 1 || own[0].ID != profile.ID {
		t.Errorf("expected new patient to see own profile, got %+v (%v)", own, err)
	}
}

func TestRegisterPatient_ConcurrentSameEmail(t *testing.T) {
	svc, store, _ := newTestService(t)
	users, profiles := store.Users().Len(), store.PatientProfiles().Len()

	const attempts = 20
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := svc.RegisterPatient(Registration{FullName: "Priya Patel", Email: "priya@example.com"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case !errors.Is(err, records.ErrDuplicate):
			t.Errorf("expected ErrDuplicate, got %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("expected exactly one registration, got %d", succeeded)
	}
	if store.Users().Len() != users+1 || store.PatientProfiles().Len() != profiles+1 {
		t.Errorf("expected one new user and profile, got %d users %d profiles",
			store.Users().Len(), store.PatientProfiles().Len())
	}
}

func TestRegisterPatient_Rejected(t *testing.T) {
	tests := []struct {
		name string
		reg  Registration
	}{
		{"duplicate email", Registration{FullName: "John Again", Email: "PATIENT@carehub.com"}},
		{"missing name", Registration{Email: "new@carehub.com"}},
		{"missing email", Registration{FullName: "No Mail"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _ := newTestService(t)
			users, profiles := store.Users().Len(), store.PatientProfiles().Len()

			_, _, err := svc.RegisterPatient(tt.reg)
			expectErr(t, err, records.ErrValidation)
			if store.Users().Len() != users || store.PatientProfiles().Len() != profiles {
				t.Error("rejected registration must not write records")
			}
		})
	}
}

func TestSummary(t *testing.T) {
	svc, _, _ := newTestService(t)

	sum, err := svc.Summary(patient)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Appointments == nil || sum.Appointments.Total != 2 || sum.Appointments.Today != 1 || sum.Appointments.Upcoming != 2 {
		t.Errorf("unexpected appointment summary: %+v", sum.Appointments)
	}
	if sum.Billing == nil || sum.Billing.Revenue != 225 || sum.Billing.PendingAmount != 0 {
		t.Errorf("unexpected billing summary: %+v", sum.Billing)
	}
	if sum.Staff != nil {
		t.Error("patient must not see staff counts")
	}
	if sum.UnreadNotifications != 2 {
		t.Errorf("expected 2 unread notifications, got %d", sum.UnreadNotifications)
	}

	sum, err = svc.Summary(billingStaff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Billing.Revenue != 315 || sum.Billing.PendingAmount != 90 || sum.Billing.ByStatus[records.PaymentPending] != 1 {
		t.Errorf("unexpected billing summary: %+v", sum.Billing)
	}
	if sum.Patients != nil {
		t.Error("billing staff must not see patient counts")
	}

	sum, err = svc.Summary(admin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Staff == nil || *sum.Staff != 2 || sum.Patients == nil || *sum.Patients != 2 {
		t.Errorf("unexpected admin summary: %+v", sum)
	}
	if sum.Prescriptions.PendingDispense != 2 {
		t.Errorf("expected 2 prescriptions pending dispense, got %d", sum.Prescriptions.PendingDispense)
	}

	_, err = svc.Summary(Principal{})
	expectErr(t, err, ErrUnauthenticated)
}

func TestPatientRecords(t *testing.T) {
	svc, _, _ := newTestService(t)

	own, err := svc.PatientRecords(patient, "8")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if own.Profile == nil || own.Profile.ID != "1" {
		t.Errorf("expected own profile, got %+v", own.Profile)
	}
	if len(own.Appointments) != 2 || len(own.Billing) != 1 || len(own.LabReports) != 1 {
		t.Errorf("unexpected bundle: %+v", own)
	}

	_, err = svc.PatientRecords(patient, "9")
	expectErr(t, err, ErrForbidden)

	chart, err := svc.PatientRecords(doctor, "9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chart.Appointments) != 0 || chart.Billing != nil {
		t.Errorf("doctor sees only own appointments and no billing, got %+v", chart)
	}

	_, err = svc.PatientRecords(admin, "3")
	expectErr(t, err, records.ErrNotFound)
	_, err = svc.PatientRecords(pharmacist, "8")
	expectErr(t, err, ErrForbidden)

	// A role without access learns nothing about which ids exist.
	for _, id := range []string{"8", "404"} {
		_, err = svc.PatientRecords(labTech, id)
		expectErr(t, err, ErrForbidden)
	}
	_, err = svc.PatientRecords(patient, "404")
	expectErr(t, err, ErrForbidden)
}
