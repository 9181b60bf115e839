package access

import (
	"fmt"

	"github.com/carehub/carehub/internal/domain/records"
)

// Entity names a record type as it appears in audit entries.
type Entity string

const (
	EntityAppointment    Entity = "Appointments"
	EntityPrescription   Entity = "Prescriptions"
	EntityBilling        Entity = "Billing"
	EntityLabReport      Entity = "LabReports"
	EntityStaff          Entity = "Staff"
	EntityNotification   Entity = "Notifications"
	EntityAuditLog       Entity = "AuditLogs"
	EntityPatientProfile Entity = "PatientProfiles"
)

type Operation string

const (
	OpList     Operation = "list"
	OpCreate   Operation = "create"
	OpUpdate   Operation = "update"
	OpDelete   Operation = "delete"
	OpRenew    Operation = "renew"
	OpDispense Operation = "dispense"
)

// Scope limits an allowed operation to the records a principal owns through
// one owner field. The zero Scope covers every record of the type.
type Scope struct {
	Owner records.OwnerField
}

var all = Scope{}

func own(f records.OwnerField) Scope { return Scope{Owner: f} }

// All reports whether the scope covers every record.
func (s Scope) All() bool { return s.Owner == "" }

type owned interface {
	Owner(records.OwnerField) string
}

// Covers reports whether rec falls inside the scope for p.
func (s Scope) Covers(p Principal, rec owned) bool {
	return s.All() || rec.Owner(s.Owner) == p.ID
}

// rule maps each permitted role to its scope. Roles absent from a rule are
// denied.
type rule map[records.Role]Scope

func withAdmins(r rule) rule {
	out := rule{records.RoleAdmin: all, records.RoleSuperAdmin: all}
	for role, s := range r {
		out[role] = s
	}
	return out
}

var adminsOnly = withAdmins(nil)

type policyKey struct {
	entity Entity
	op     Operation
}

// policy is the single table consulted for every visibility and mutation
// decision. A missing (entity, operation) pair is denied for every role.
var policy = map[policyKey]rule{
	{EntityAppointment, OpList}: withAdmins(rule{
		records.RolePatient:       own(records.OwnerPatient),
		records.RoleDoctor:        own(records.OwnerDoctor),
		records.RoleNurse:         all,
		records.RoleLabTechnician: all,
		records.RolePharmacist:    all,
		records.RoleBillingStaff:  all,
	}),
	{EntityAppointment, OpCreate}: withAdmins(rule{
		records.RolePatient: own(records.OwnerPatient),
		records.RoleDoctor:  own(records.OwnerDoctor),
	}),
	{EntityAppointment, OpUpdate}: withAdmins(rule{
		records.RolePatient: own(records.OwnerPatient),
		records.RoleDoctor:  own(records.OwnerDoctor),
	}),
	{EntityAppointment, OpDelete}: withAdmins(rule{
		records.RolePatient: own(records.OwnerPatient),
		records.RoleDoctor:  own(records.OwnerDoctor),
		records.RoleNurse:   all,
	}),

	{EntityPrescription, OpList}: withAdmins(rule{
		records.RolePatient:       own(records.OwnerPatient),
		records.RoleDoctor:        own(records.OwnerDoctor),
		records.RoleNurse:         all,
		records.RoleLabTechnician: all,
		records.RolePharmacist:    all,
		records.RoleBillingStaff:  all,
	}),
	{EntityPrescription, OpCreate}:   withAdmins(rule{records.RoleDoctor: own(records.OwnerDoctor)}),
	{EntityPrescription, OpUpdate}:   withAdmins(rule{records.RoleDoctor: own(records.OwnerDoctor)}),
	{EntityPrescription, OpRenew}:    withAdmins(rule{records.RoleDoctor: own(records.OwnerDoctor)}),
	{EntityPrescription, OpDispense}: withAdmins(rule{records.RolePharmacist: all}),

	{EntityBilling, OpList}: withAdmins(rule{
		records.RolePatient:      own(records.OwnerPatient),
		records.RoleBillingStaff: all,
	}),
	{EntityBilling, OpCreate}: withAdmins(rule{records.RoleBillingStaff: all}),
	{EntityBilling, OpUpdate}: withAdmins(rule{records.RoleBillingStaff: all}),
	{EntityBilling, OpDelete}: adminsOnly,

	{EntityLabReport, OpList}: withAdmins(rule{
		records.RolePatient:       own(records.OwnerPatient),
		records.RoleDoctor:        own(records.OwnerDoctor),
		records.RoleLabTechnician: own(records.OwnerTechnician),
		records.RoleNurse:         all,
		records.RolePharmacist:    all,
		records.RoleBillingStaff:  all,
	}),
	{EntityLabReport, OpCreate}: withAdmins(rule{
		records.RoleDoctor:        own(records.OwnerDoctor),
		records.RoleLabTechnician: own(records.OwnerTechnician),
	}),
	{EntityLabReport, OpUpdate}: withAdmins(rule{
		records.RoleDoctor:        own(records.OwnerDoctor),
		records.RoleLabTechnician: own(records.OwnerTechnician),
	}),

	{EntityStaff, OpList}:   adminsOnly,
	{EntityStaff, OpCreate}: adminsOnly,
	{EntityStaff, OpUpdate}: adminsOnly,
	{EntityStaff, OpDelete}: adminsOnly,

	{EntityNotification, OpList}:   everyone(own(records.OwnerUser)),
	{EntityNotification, OpCreate}: adminsOnly,
	{EntityNotification, OpUpdate}: everyone(own(records.OwnerUser)),

	{EntityAuditLog, OpList}:   adminsOnly,
	{EntityAuditLog, OpCreate}: adminsOnly,

	{EntityPatientProfile, OpList}: withAdmins(rule{
		records.RolePatient: own(records.OwnerUser),
		records.RoleDoctor:  all,
		records.RoleNurse:   all,
	}),
	{EntityPatientProfile, OpCreate}: adminsOnly,
	{EntityPatientProfile, OpUpdate}: withAdmins(rule{records.RolePatient: own(records.OwnerUser)}),
}

func everyone(s Scope) rule {
	r := make(rule, len(records.Roles))
	for _, role := range records.Roles {
		r[role] = s
	}
	return r
}

// Allowed returns the scope granted to p for op on e.
func Allowed(p Principal, e Entity, op Operation) (Scope, bool) {
	s, ok := policy[policyKey{e, op}][p.Role]
	return s, ok
}

func authorize(p Principal, e Entity, op Operation) (Scope, error) {
	s, ok := Allowed(p, e, op)
	if !ok {
		return Scope{}, forbidden(p, op, e)
	}
	return s, nil
}

var (
	clinicians = withAdmins(rule{records.RoleDoctor: own(records.OwnerDoctor)})
	cancellers = withAdmins(rule{
		records.RolePatient: own(records.OwnerPatient),
		records.RoleDoctor:  own(records.OwnerDoctor),
	})
)

// transitions lists the legal appointment status changes with the roles
// allowed to make each one. Completed and Cancelled are terminal.
var transitions = map[records.AppointmentStatus]map[records.AppointmentStatus]rule{
	records.StatusPending: {
		records.StatusConfirmed: clinicians,
		records.StatusCancelled: cancellers,
	},
	records.StatusConfirmed: {
		records.StatusCompleted: clinicians,
		records.StatusCancelled: cancellers,
	},
}

// terminal reports whether no status change is possible from status.
func terminal(status records.AppointmentStatus) bool {
	return len(transitions[status]) == 0
}

// checkAppointmentEdit validates the non-status fields of patch against
// appt. Only clinicians may write doctor notes, and a finished or cancelled
// appointment cannot be rescheduled.
func checkAppointmentEdit(p Principal, appt records.Appointment, patch records.AppointmentPatch) error {
	if patch.DoctorNotes != nil && *patch.DoctorNotes != appt.DoctorNotes {
		s, ok := clinicians[p.Role]
		if !ok || !s.Covers(p, appt) {
			return forbidden(p, Operation("edit doctor notes of"), EntityAppointment)
		}
	}
	if patch.AppointmentDate != nil && !patch.AppointmentDate.Equal(appt.AppointmentDate) && terminal(appt.Status) {
		return fmt.Errorf("%w: cannot reschedule a %s appointment", ErrInvalidTransition, appt.Status)
	}
	return nil
}

// checkTransition validates moving appt to next on behalf of p. Staying in
// the current status is not a transition.
func checkTransition(p Principal, appt records.Appointment, next records.AppointmentStatus) error {
	if appt.Status == next {
		return nil
	}
	r, ok := transitions[appt.Status][next]
	if !ok {
		return fmtTransition(appt.Status, next)
	}
	s, ok := r[p.Role]
	if !ok || !s.Covers(p, appt) {
		return forbidden(p, Operation("move to "+string(next)), EntityAppointment)
	}
	return nil
}
