package records

import "time"

func seedTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return t
}

// DemoUsers is the principal directory installed with the demo data.
func DemoUsers() []User {
	return []User{
		{ID: "1", Email: "superadmin@carehub.com", FullName: "Super Administrator", RoleName: RoleSuperAdmin},
		{ID: "2", Email: "admin@carehub.com", FullName: "System Administrator", RoleName: RoleAdmin},
		{ID: "3", Email: "doctor@carehub.com", FullName: "Dr. Sarah Johnson", RoleName: RoleDoctor},
		{ID: "4", Email: "nurse@carehub.com", FullName: "Emily Davis", RoleName: RoleNurse},
		{ID: "5", Email: "lab@carehub.com", FullName: "Michael Chen", RoleName: RoleLabTechnician},
		{ID: "6", Email: "pharmacy@carehub.com", FullName: "Lisa Rodriguez", RoleName: RolePharmacist},
		{ID: "7", Email: "billing@carehub.com", FullName: "James Wilson", RoleName: RoleBillingStaff},
		{ID: "8", Email: "patient@carehub.com", FullName: "John Smith", RoleName: RolePatient},
	}
}

// DemoSnapshot returns the default demo data used when no snapshot exists.
func DemoSnapshot() *Snapshot {
	return &Snapshot{
		SchemaVersion: SchemaVersion,
		Users:         DemoUsers(),
		Appointments: []Appointment{
			{
				ID: "1", PatientID: "8", PatientName: "John Smith",
				DoctorID: "3", DoctorName: "Dr. Sarah Johnson",
				AppointmentDate: seedTime("2024-06-15T10:00:00Z"),
				Status:          StatusConfirmed,
				Reason:          "Regular checkup",
			},
			{
				ID: "2", PatientID: "8", PatientName: "John Smith",
				DoctorID: "3", DoctorName: "Dr. Sarah Johnson",
				AppointmentDate: seedTime("2024-06-20T14:30:00Z"),
				Status:          StatusPending,
				Reason:          "Follow-up consultation",
			},
		},
		Prescriptions: []Prescription{
			{
				ID: "1", AppointmentID: "1",
				PrescribedDate: seedTime("2024-06-15T10:30:00Z"),
				DoctorID:       "3", DoctorName: "Dr. Sarah Johnson",
				PatientID: "8", PatientName: "John Smith",
				Medications: []Medication{
					{MedicineName: "Amoxicillin", Dosage: "500mg", Frequency: "Twice daily"},
					{MedicineName: "Ibuprofen", Dosage: "200mg", Frequency: "As needed"},
				},
				FollowupRequired: true,
				Notes:            "Take with food. Complete full course.",
			},
		},
		Billing: []Billing{
			{
				ID: "1", PatientID: "8", PatientName: "John Smith", AppointmentID: "1",
				BillingDate: seedTime("2024-06-15T11:00:00Z"),
				ServiceItems: []ServiceItem{
					{ServiceName: "Consultation", Price: 150, Quantity: 1},
					{ServiceName: "Blood Test", Price: 75, Quantity: 1},
				},
				TotalAmount:   225,
				PaymentStatus: PaymentPaid,
			},
		},
		LabReports: []LabReport{
			{
				ID: "1", PatientID: "8", PatientName: "John Smith",
				DoctorID: "3", DoctorName: "Dr. Sarah Johnson",
				LabTechnicianID: "5", TechnicianName: "Michael Chen",
				ReportDate: seedTime("2024-06-15T12:00:00Z"),
				ReportType: "Blood Test",
				ReportResult: ReportResult{Values: map[string]string{
					"hemoglobin":        "14.2 g/dL",
					"white_blood_cells": "7,500/μL",
					"platelets":         "250,000/μL",
				}},
				Notes: "All values within normal range",
			},
		},
		Staff: []StaffMember{
			{
				ID: "1", UserID: "3", FullName: "Dr. Sarah Johnson", Email: "doctor@carehub.com",
				RoleName: RoleDoctor, Department: "Internal Medicine", Designation: "Senior Physician",
				ShiftTiming: "9:00 AM - 5:00 PM", Salary: 120000, JoiningDate: "2020-01-15",
			},
			{
				ID: "2", UserID: "4", FullName: "Emily Davis", Email: "nurse@carehub.com",
				RoleName: RoleNurse, Department: "Emergency", Designation: "Head Nurse",
				ShiftTiming: "7:00 AM - 7:00 PM", Salary: 65000, JoiningDate: "2019-03-20",
			},
		},
		Notifications: []Notification{
			{
				ID: "1", UserID: "8",
				Message:   "Your appointment with Dr. Sarah Johnson is confirmed for June 15th at 10:00 AM",
				Type:      NotifyAppointment,
				CreatedAt: seedTime("2024-06-13T09:00:00Z"),
			},
			{
				ID: "2", UserID: "8",
				Message:   "Your lab results are ready for review",
				Type:      NotifyLabReport,
				CreatedAt: seedTime("2024-06-13T14:30:00Z"),
			},
		},
		AuditLogs: []AuditEntry{
			{
				ID: "1", ActionPerformed: "User Login", PerformedBy: "8", PerformerName: "John Smith",
				Resource: "Authentication", ResourceID: "8", Timestamp: seedTime("2024-06-13T08:00:00Z"),
			},
			{
				ID: "2", ActionPerformed: "Appointment Created", PerformedBy: "3", PerformerName: "Dr. Sarah Johnson",
				Resource: "Appointments", ResourceID: "1", Timestamp: seedTime("2024-06-13T09:15:00Z"),
			},
		},
		PatientProfiles: []PatientProfile{
			{
				ID: "1", UserID: "8", FullName: "John Smith", Email: "patient@carehub.com",
				Gender: "Male", DateOfBirth: "1985-03-15", Address: "123 Main St, City, State 12345",
				BloodGroup: "O+",
				MedicalHistory: MedicalHistory{
					Conditions:  []string{"Hypertension", "Diabetes Type 2"},
					Surgeries:   []string{"Appendectomy (2010)"},
					Medications: []string{"Metformin", "Lisinopril"},
				},
				Allergies:        "Penicillin, Shellfish",
				EmergencyContact: "Jane Smith - 555-0123",
			},
		},
	}
}
