package records

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Role is the role name carried by a principal or a staff member.
type Role string

const (
	RoleSuperAdmin    Role = "SuperAdmin"
	RoleAdmin         Role = "Admin"
	RoleDoctor        Role = "Doctor"
	RoleNurse         Role = "Nurse"
	RoleLabTechnician Role = "Lab Technician"
	RolePharmacist    Role = "Pharmacist"
	RoleBillingStaff  Role = "Billing Staff"
	RolePatient       Role = "Patient"
)

// Roles lists every known role in display order.
var Roles = []Role{
	RoleSuperAdmin, RoleAdmin, RoleDoctor, RoleNurse,
	RoleLabTechnician, RolePharmacist, RoleBillingStaff, RolePatient,
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// OwnerField names an owner-reference attribute of a record.
type OwnerField string

const (
	OwnerPatient    OwnerField = "patient_id"
	OwnerDoctor     OwnerField = "doctor_id"
	OwnerTechnician OwnerField = "lab_technician_id"
	OwnerUser       OwnerField = "user_id"
)

// Record is implemented by every entity held in a Collection.
type Record[T any] interface {
	GetID() string
	WithID(id string) T
	Clone() T
	// Normalize validates the record and returns it with derived fields
	// recomputed. It is called on every create and update.
	Normalize() (T, error)
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func requireField(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return validationf("%s is required", name)
	}
	return nil
}

// -- Appointment --

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "Pending"
	StatusConfirmed AppointmentStatus = "Confirmed"
	StatusCompleted AppointmentStatus = "Completed"
	StatusCancelled AppointmentStatus = "Cancelled"
)

var validAppointmentStatuses = map[AppointmentStatus]bool{
	StatusPending: true, StatusConfirmed: true, StatusCompleted: true, StatusCancelled: true,
}

type Appointment struct {
	ID              string            `json:"id"`
	PatientID       string            `json:"patient_id"`
	PatientName     string            `json:"patient_name"`
	DoctorID        string            `json:"doctor_id"`
	DoctorName      string            `json:"doctor_name"`
	AppointmentDate time.Time         `json:"appointment_date"`
	Status          AppointmentStatus `json:"appointment_status"`
	Reason          string            `json:"reason"`
	DoctorNotes     string            `json:"doctor_notes"`
}

func (a Appointment) GetID() string { return a.ID }

func (a Appointment) WithID(id string) Appointment {
	a.ID = id
	return a
}

func (a Appointment) Clone() Appointment { return a }

func (a Appointment) Normalize() (Appointment, error) {
	if err := requireField("patient_id", a.PatientID); err != nil {
		return a, err
	}
	if err := requireField("doctor_id", a.DoctorID); err != nil {
		return a, err
	}
	if a.AppointmentDate.IsZero() {
		return a, validationf("appointment_date is required")
	}
	if a.Status == "" {
		a.Status = StatusPending
	}
	if !validAppointmentStatuses[a.Status] {
		return a, validationf("invalid appointment status: %s", a.Status)
	}
	return a, nil
}

func (a Appointment) Owner(f OwnerField) string {
	switch f {
	case OwnerPatient:
		return a.PatientID
	case OwnerDoctor:
		return a.DoctorID
	}
	return ""
}

func (a *Appointment) SetOwner(f OwnerField, id string) {
	switch f {
	case OwnerPatient:
		a.PatientID = id
	case OwnerDoctor:
		a.DoctorID = id
	}
}

// AppointmentPatch carries the fields an update may change; nil means unchanged.
type AppointmentPatch struct {
	AppointmentDate *time.Time         `json:"appointment_date,omitempty"`
	Status          *AppointmentStatus `json:"appointment_status,omitempty"`
	Reason          *string            `json:"reason,omitempty"`
	DoctorNotes     *string            `json:"doctor_notes,omitempty"`
}

func (p AppointmentPatch) Apply(a *Appointment) {
	if p.AppointmentDate != nil {
		a.AppointmentDate = *p.AppointmentDate
	}
	if p.Status != nil {
		a.Status = *p.Status
	}
	if p.Reason != nil {
		a.Reason = *p.Reason
	}
	if p.DoctorNotes != nil {
		a.DoctorNotes = *p.DoctorNotes
	}
}

// -- Prescription --

type Medication struct {
	MedicineName string `json:"medicine_name"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency"`
}

type Prescription struct {
	ID               string       `json:"id"`
	AppointmentID    string       `json:"appointment_id,omitempty"`
	PrescribedDate   time.Time    `json:"prescribed_date"`
	PatientID        string       `json:"patient_id"`
	PatientName      string       `json:"patient_name"`
	DoctorID         string       `json:"doctor_id"`
	DoctorName       string       `json:"doctor_name"`
	Medications      []Medication `json:"medications"`
	FollowupRequired bool         `json:"followup_required"`
	Notes            string       `json:"notes"`
	Dispensed        bool         `json:"dispensed"`
}

func (p Prescription) GetID() string { return p.ID }

func (p Prescription) WithID(id string) Prescription {
	p.ID = id
	return p
}

func (p Prescription) Clone() Prescription {
	p.Medications = append([]Medication(nil), p.Medications...)
	return p
}

func (p Prescription) Normalize() (Prescription, error) {
	if err := requireField("patient_id", p.PatientID); err != nil {
		return p, err
	}
	if err := requireField("doctor_id", p.DoctorID); err != nil {
		return p, err
	}
	if len(p.Medications) == 0 {
		return p, validationf("at least one medication is required")
	}
	for i, m := range p.Medications {
		if strings.TrimSpace(m.MedicineName) == "" {
			return p, validationf("medications[%d].medicine_name is required", i)
		}
	}
	return p, nil
}

func (p Prescription) Owner(f OwnerField) string {
	switch f {
	case OwnerPatient:
		return p.PatientID
	case OwnerDoctor:
		return p.DoctorID
	}
	return ""
}

func (p *Prescription) SetOwner(f OwnerField, id string) {
	switch f {
	case OwnerPatient:
		p.PatientID = id
	case OwnerDoctor:
		p.DoctorID = id
	}
}

type PrescriptionPatch struct {
	PrescribedDate   *time.Time    `json:"prescribed_date,omitempty"`
	Medications      *[]Medication `json:"medications,omitempty"`
	FollowupRequired *bool         `json:"followup_required,omitempty"`
	Notes            *string       `json:"notes,omitempty"`
}

func (p PrescriptionPatch) Apply(rx *Prescription) {
	if p.PrescribedDate != nil {
		rx.PrescribedDate = *p.PrescribedDate
	}
	if p.Medications != nil {
		rx.Medications = append([]Medication(nil), (*p.Medications)...)
	}
	if p.FollowupRequired != nil {
		rx.FollowupRequired = *p.FollowupRequired
	}
	if p.Notes != nil {
		rx.Notes = *p.Notes
	}
}

// -- Billing --

type PaymentStatus string

const (
	PaymentPending       PaymentStatus = "Pending"
	PaymentPaid          PaymentStatus = "Paid"
	PaymentPartiallyPaid PaymentStatus = "Partially Paid"
)

var validPaymentStatuses = map[PaymentStatus]bool{
	PaymentPending: true, PaymentPaid: true, PaymentPartiallyPaid: true,
}

type ServiceItem struct {
	ServiceName string  `json:"service_name"`
	Price       float64 `json:"price"`
	Quantity    int     `json:"quantity"`
}

type Billing struct {
	ID            string        `json:"id"`
	PatientID     string        `json:"patient_id"`
	PatientName   string        `json:"patient_name"`
	AppointmentID string        `json:"appointment_id,omitempty"`
	BillingDate   time.Time     `json:"billing_date"`
	ServiceItems  []ServiceItem `json:"service_items"`
	TotalAmount   float64       `json:"total_amount"`
	PaymentStatus PaymentStatus `json:"payment_status"`
}

func (b Billing) GetID() string { return b.ID }

func (b Billing) WithID(id string) Billing {
	b.ID = id
	return b
}

func (b Billing) Clone() Billing {
	b.ServiceItems = append([]ServiceItem(nil), b.ServiceItems...)
	return b
}

// Total returns the sum of price × quantity over the service items.
func (b Billing) Total() float64 {
	var total float64
	for _, item := range b.ServiceItems {
		total += item.Price * float64(item.Quantity)
	}
	return total
}

// Normalize validates the service items and overwrites TotalAmount with
// the recomputed total, so a caller-supplied total is never kept.
func (b Billing) Normalize() (Billing, error) {
	if err := requireField("patient_id", b.PatientID); err != nil {
		return b, err
	}
	if len(b.ServiceItems) == 0 {
		return b, validationf("at least one service item is required")
	}
	for i, item := range b.ServiceItems {
		if strings.TrimSpace(item.ServiceName) == "" {
			return b, validationf("service_items[%d].service_name is required", i)
		}
		if math.IsNaN(item.Price) || math.IsInf(item.Price, 0) {
			return b, validationf("service_items[%d].price must be a finite number", i)
		}
		if item.Price < 0 {
			return b, validationf("service_items[%d].price must not be negative", i)
		}
		if item.Quantity < 0 {
			return b, validationf("service_items[%d].quantity must not be negative", i)
		}
	}
	for i := range b.ServiceItems {
		// A missing quantity counts as one.
		if b.ServiceItems[i].Quantity == 0 {
			b.ServiceItems[i].Quantity = 1
		}
	}
	if b.PaymentStatus == "" {
		b.PaymentStatus = PaymentPending
	}
	if !validPaymentStatuses[b.PaymentStatus] {
		return b, validationf("invalid payment status: %s", b.PaymentStatus)
	}
	total := b.Total()
	if math.IsNaN(total) || math.IsInf(total, 0) {
		return b, validationf("total_amount overflows")
	}
	b.TotalAmount = total
	return b, nil
}

func (b Billing) Owner(f OwnerField) string {
	if f == OwnerPatient {
		return b.PatientID
	}
	return ""
}

func (b *Billing) SetOwner(f OwnerField, id string) {
	if f == OwnerPatient {
		b.PatientID = id
	}
}

type BillingPatch struct {
	BillingDate   *time.Time     `json:"billing_date,omitempty"`
	ServiceItems  *[]ServiceItem `json:"service_items,omitempty"`
	PaymentStatus *PaymentStatus `json:"payment_status,omitempty"`
}

func (p BillingPatch) Apply(b *Billing) {
	if p.BillingDate != nil {
		b.BillingDate = *p.BillingDate
	}
	if p.ServiceItems != nil {
		b.ServiceItems = append([]ServiceItem(nil), (*p.ServiceItems)...)
	}
	if p.PaymentStatus != nil {
		b.PaymentStatus = *p.PaymentStatus
	}
}

// -- Lab report --

type ReportType string

var ReportTypes = []ReportType{
	"Blood Test", "Urine Analysis", "X-Ray", "MRI", "CT Scan", "ECG", "Ultrasound",
}

func (t ReportType) Valid() bool {
	for _, known := range ReportTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ReportResult is either a structured key→value map or free text.
type ReportResult struct {
	Values map[string]string `json:"values,omitempty"`
	Text   string            `json:"text,omitempty"`
}

// Empty reports whether no result has been recorded yet.
func (r ReportResult) Empty() bool {
	return len(r.Values) == 0 && strings.TrimSpace(r.Text) == ""
}

func (r ReportResult) clone() ReportResult {
	if r.Values != nil {
		values := make(map[string]string, len(r.Values))
		for k, v := range r.Values {
			values[k] = v
		}
		r.Values = values
	}
	return r
}

type LabReport struct {
	ID              string       `json:"id"`
	PatientID       string       `json:"patient_id"`
	PatientName     string       `json:"patient_name"`
	DoctorID        string       `json:"doctor_id"`
	DoctorName      string       `json:"doctor_name"`
	LabTechnicianID string       `json:"lab_technician_id"`
	TechnicianName  string       `json:"technician_name"`
	ReportDate      time.Time    `json:"report_date"`
	ReportType      ReportType   `json:"report_type"`
	ReportResult    ReportResult `json:"report_result"`
	Notes           string       `json:"notes"`
}

func (l LabReport) GetID() string { return l.ID }

func (l LabReport) WithID(id string) LabReport {
	l.ID = id
	return l
}

func (l LabReport) Clone() LabReport {
	l.ReportResult = l.ReportResult.clone()
	return l
}

func (l LabReport) Normalize() (LabReport, error) {
	if err := requireField("patient_id", l.PatientID); err != nil {
		return l, err
	}
	if !l.ReportType.Valid() {
		return l, validationf("invalid report type: %q", l.ReportType)
	}
	return l, nil
}

func (l LabReport) Owner(f OwnerField) string {
	switch f {
	case OwnerPatient:
		return l.PatientID
	case OwnerDoctor:
		return l.DoctorID
	case OwnerTechnician:
		return l.LabTechnicianID
	}
	return ""
}

func (l *LabReport) SetOwner(f OwnerField, id string) {
	switch f {
	case OwnerPatient:
		l.PatientID = id
	case OwnerDoctor:
		l.DoctorID = id
	case OwnerTechnician:
		l.LabTechnicianID = id
	}
}

type LabReportPatch struct {
	ReportDate   *time.Time    `json:"report_date,omitempty"`
	ReportType   *ReportType   `json:"report_type,omitempty"`
	ReportResult *ReportResult `json:"report_result,omitempty"`
	Notes        *string       `json:"notes,omitempty"`
}

func (p LabReportPatch) Apply(l *LabReport) {
	if p.ReportDate != nil {
		l.ReportDate = *p.ReportDate
	}
	if p.ReportType != nil {
		l.ReportType = *p.ReportType
	}
	if p.ReportResult != nil {
		l.ReportResult = p.ReportResult.clone()
	}
	if p.Notes != nil {
		l.Notes = *p.Notes
	}
}

// -- Staff --

type StaffMember struct {
	ID          string  `json:"id"`
	UserID      string  `json:"user_id"`
	FullName    string  `json:"full_name"`
	Email       string  `json:"email"`
	RoleName    Role    `json:"role_name"`
	Department  string  `json:"department"`
	Designation string  `json:"designation"`
	ShiftTiming string  `json:"shift_timing"`
	Salary      float64 `json:"salary"`
	JoiningDate string  `json:"joining_date"`
}

func (s StaffMember) GetID() string { return s.ID }

func (s StaffMember) WithID(id string) StaffMember {
	s.ID = id
	return s
}

func (s StaffMember) Clone() StaffMember { return s }

func (s StaffMember) Normalize() (StaffMember, error) {
	if err := requireField("full_name", s.FullName); err != nil {
		return s, err
	}
	if err := requireField("email", s.Email); err != nil {
		return s, err
	}
	if !s.RoleName.Valid() || s.RoleName == RolePatient {
		return s, validationf("invalid staff role: %q", s.RoleName)
	}
	if s.Salary < 0 {
		return s, validationf("salary must not be negative")
	}
	return s, nil
}

func (s StaffMember) Owner(f OwnerField) string {
	if f == OwnerUser {
		return s.UserID
	}
	return ""
}

type StaffPatch struct {
	FullName    *string  `json:"full_name,omitempty"`
	Email       *string  `json:"email,omitempty"`
	RoleName    *Role    `json:"role_name,omitempty"`
	Department  *string  `json:"department,omitempty"`
	Designation *string  `json:"designation,omitempty"`
	ShiftTiming *string  `json:"shift_timing,omitempty"`
	Salary      *float64 `json:"salary,omitempty"`
	JoiningDate *string  `json:"joining_date,omitempty"`
}

func (p StaffPatch) Apply(s *StaffMember) {
	if p.FullName != nil {
		s.FullName = *p.FullName
	}
	if p.Email != nil {
		s.Email = *p.Email
	}
	if p.RoleName != nil {
		s.RoleName = *p.RoleName
	}
	if p.Department != nil {
		s.Department = *p.Department
	}
	if p.Designation != nil {
		s.Designation = *p.Designation
	}
	if p.ShiftTiming != nil {
		s.ShiftTiming = *p.ShiftTiming
	}
	if p.Salary != nil {
		s.Salary = *p.Salary
	}
	if p.JoiningDate != nil {
		s.JoiningDate = *p.JoiningDate
	}
}

// -- Notification --

type NotificationType string

const (
	NotifyAppointment  NotificationType = "Appointment"
	NotifyBilling      NotificationType = "Billing"
	NotifyLabReport    NotificationType = "LabReport"
	NotifyPrescription NotificationType = "Prescription"
	NotifyAIAlert      NotificationType = "AI Alert"
	NotifySystem       NotificationType = "System"
)

var validNotificationTypes = map[NotificationType]bool{
	NotifyAppointment: true, NotifyBilling: true, NotifyLabReport: true,
	NotifyPrescription: true, NotifyAIAlert: true, NotifySystem: true,
}

type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Message   string           `json:"notification_message"`
	Type      NotificationType `json:"notification_type"`
	IsRead    bool             `json:"is_read"`
	CreatedAt time.Time        `json:"created_at"`
}

func (n Notification) GetID() string { return n.ID }

func (n Notification) WithID(id string) Notification {
	n.ID = id
	return n
}

func (n Notification) Clone() Notification { return n }

func (n Notification) Normalize() (Notification, error) {
	if err := requireField("user_id", n.UserID); err != nil {
		return n, err
	}
	if err := requireField("notification_message", n.Message); err != nil {
		return n, err
	}
	if n.Type == "" {
		n.Type = NotifySystem
	}
	if !validNotificationTypes[n.Type] {
		return n, validationf("invalid notification type: %s", n.Type)
	}
	return n, nil
}

func (n Notification) Owner(f OwnerField) string {
	if f == OwnerUser {
		return n.UserID
	}
	return ""
}

// -- Audit log --

type AuditEntry struct {
	ID              string    `json:"id"`
	ActionPerformed string    `json:"action_performed"`
	PerformedBy     string    `json:"performed_by"`
	PerformerName   string    `json:"performer_name"`
	Resource        string    `json:"resource"`
	ResourceID      string    `json:"resource_id"`
	Timestamp       time.Time `json:"timestamp"`
}

func (e AuditEntry) GetID() string { return e.ID }

func (e AuditEntry) WithID(id string) AuditEntry {
	e.ID = id
	return e
}

func (e AuditEntry) Clone() AuditEntry { return e }

func (e AuditEntry) Normalize() (AuditEntry, error) {
	if err := requireField("action_performed", e.ActionPerformed); err != nil {
		return e, err
	}
	if err := requireField("performed_by", e.PerformedBy); err != nil {
		return e, err
	}
	if err := requireField("resource", e.Resource); err != nil {
		return e, err
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return e, nil
}

func (e AuditEntry) Owner(f OwnerField) string {
	if f == OwnerUser {
		return e.PerformedBy
	}
	return ""
}

// -- Patient profile --

type MedicalHistory struct {
	Conditions  []string `json:"conditions"`
	Surgeries   []string `json:"surgeries"`
	Medications []string `json:"medications"`
}

func (h MedicalHistory) clone() MedicalHistory {
	return MedicalHistory{
		Conditions:  append([]string(nil), h.Conditions...),
		Surgeries:   append([]string(nil), h.Surgeries...),
		Medications: append([]string(nil), h.Medications...),
	}
}

type PatientProfile struct {
	ID               string         `json:"id"`
	UserID           string         `json:"user_id"`
	FullName         string         `json:"full_name"`
	Email            string         `json:"email"`
	Gender           string         `json:"gender"`
	DateOfBirth      string         `json:"date_of_birth"`
	Address          string         `json:"address"`
	BloodGroup       string         `json:"blood_group"`
	MedicalHistory   MedicalHistory `json:"medical_history"`
	Allergies        string         `json:"allergies"`
	EmergencyContact string         `json:"emergency_contact"`
}

func (p PatientProfile) GetID() string { return p.ID }

func (p PatientProfile) WithID(id string) PatientProfile {
	p.ID = id
	return p
}

func (p PatientProfile) Clone() PatientProfile {
	p.MedicalHistory = p.MedicalHistory.clone()
	return p
}

func (p PatientProfile) Normalize() (PatientProfile, error) {
	if err := requireField("user_id", p.UserID); err != nil {
		return p, err
	}
	if err := requireField("full_name", p.FullName); err != nil {
		return p, err
	}
	return p, nil
}

func (p PatientProfile) Owner(f OwnerField) string {
	if f == OwnerUser {
		return p.UserID
	}
	return ""
}

func (p *PatientProfile) SetOwner(f OwnerField, id string) {
	if f == OwnerUser {
		p.UserID = id
	}
}

type PatientProfilePatch struct {
	FullName         *string         `json:"full_name,omitempty"`
	Email            *string         `json:"email,omitempty"`
	Gender           *string         `json:"gender,omitempty"`
	DateOfBirth      *string         `json:"date_of_birth,omitempty"`
	Address          *string         `json:"address,omitempty"`
	BloodGroup       *string         `json:"blood_group,omitempty"`
	MedicalHistory   *MedicalHistory `json:"medical_history,omitempty"`
	Allergies        *string         `json:"allergies,omitempty"`
	EmergencyContact *string         `json:"emergency_contact,omitempty"`
}

func (p PatientProfilePatch) Apply(pp *PatientProfile) {
	if p.FullName != nil {
		pp.FullName = *p.FullName
	}
	if p.Email != nil {
		pp.Email = *p.Email
	}
	if p.Gender != nil {
		pp.Gender = *p.Gender
	}
	if p.DateOfBirth != nil {
		pp.DateOfBirth = *p.DateOfBirth
	}
	if p.Address != nil {
		pp.Address = *p.Address
	}
	if p.BloodGroup != nil {
		pp.BloodGroup = *p.BloodGroup
	}
	if p.MedicalHistory != nil {
		pp.MedicalHistory = p.MedicalHistory.clone()
	}
	if p.Allergies != nil {
		pp.Allergies = *p.Allergies
	}
	if p.EmergencyContact != nil {
		pp.EmergencyContact = *p.EmergencyContact
	}
}

// -- User directory --

// User is an entry in the principal directory. Credentials are not stored.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	RoleName Role   `json:"role_name"`
}

func (u User) GetID() string { return u.ID }

func (u User) WithID(id string) User {
	u.ID = id
	return u
}

func (u User) Clone() User { return u }

func (u User) Normalize() (User, error) {
	if err := requireField("email", u.Email); err != nil {
		return u, err
	}
	if err := requireField("full_name", u.FullName); err != nil {
		return u, err
	}
	if !u.RoleName.Valid() {
		return u, validationf("invalid role: %q", u.RoleName)
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	return u, nil
}
