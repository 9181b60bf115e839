// Package notification renders the in-app messages sent to principals when
// records they care about change.
package notification

import (
	"fmt"
	"strings"
	"sync"
)

// Template ids for the built-in system messages.
const (
	AppointmentBooked     = "appointment-booked"
	AppointmentStatus     = "appointment-status"
	PrescriptionIssued    = "prescription-issued"
	PrescriptionRenewed   = "prescription-renewed"
	PrescriptionDispensed = "prescription-dispensed"
	LabReportReady        = "lab-report-ready"
	BillIssued            = "bill-issued"
	Welcome               = "welcome"
)

// Template is a message body with {{key}} placeholders.
type Template struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Body string `json:"body"`
}

// TemplateEngine manages message templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:   AppointmentBooked,
			Name: "Appointment Booked",
			Body: "New appointment with {{patient_name}} on {{date}}: {{reason}}",
		},
		{
			ID:   AppointmentStatus,
			Name: "Appointment Status Changed",
			Body: "Your appointment with {{doctor_name}} on {{date}} is now {{status}}",
		},
		{
			ID:   PrescriptionIssued,
			Name: "Prescription Issued",
			Body: "{{doctor_name}} issued a new prescription for you: {{medications}}",
		},
		{
			ID:   PrescriptionRenewed,
			Name: "Prescription Renewed",
			Body: "Your prescription for {{medications}} has been renewed",
		},
		{
			ID:   PrescriptionDispensed,
			Name: "Prescription Dispensed",
			Body: "Your prescription for {{medications}} has been dispensed and is ready for pickup",
		},
		{
			ID:   LabReportReady,
			Name: "Lab Report Ready",
			Body: "Your {{report_type}} results are ready for review",
		},
		{
			ID:   BillIssued,
			Name: "Bill Issued",
			Body: "A new bill of {{amount}} has been issued to your account",
		},
		{
			ID:   Welcome,
			Name: "Welcome",
			Body: "Welcome to CareHub, {{full_name}}. Complete your profile to get started.",
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Templates returns the registered template ids.
func (e *TemplateEngine) Templates() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.templates))
	for id := range e.templates {
		ids = append(ids, id)
	}
	return ids
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are left
// as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (string, error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("template %q not found", templateID)
	}

	body := t.Body
	for k, v := range data {
		body = strings.ReplaceAll(body, "{{"+k+"}}", v)
	}
	return body, nil
}
