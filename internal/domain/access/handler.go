package access

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/carehub/carehub/internal/domain/records"
	"github.com/carehub/carehub/internal/platform/auth"
	"github.com/carehub/carehub/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// LookupIdentity resolves a user id for the auth middleware.
func (s *Service) LookupIdentity(id string) (string, string, bool) {
	u, ok := s.LookupUser(id)
	return u.FullName, string(u.RoleName), ok
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/register", h.Register)

	g := api.Group("", auth.RequireAuthenticated(), h.ResolvePrincipal())
	g.GET("/dashboard", h.Dashboard)

	g.GET("/appointments", h.ListAppointments)
	g.GET("/appointments/:id", h.GetAppointment)
	g.POST("/appointments", h.CreateAppointment)
	g.PUT("/appointments/:id", h.UpdateAppointment)
	g.PATCH("/appointments/:id/status", h.SetAppointmentStatus)
	g.DELETE("/appointments/:id", h.DeleteAppointment)

	g.GET("/prescriptions", h.ListPrescriptions)
	g.GET("/prescriptions/:id", h.GetPrescription)
	g.POST("/prescriptions", h.CreatePrescription)
	g.PUT("/prescriptions/:id", h.UpdatePrescription)
	g.POST("/prescriptions/:id/renew", h.RenewPrescription)
	g.POST("/prescriptions/:id/dispense", h.DispensePrescription)
	g.DELETE("/prescriptions/:id", h.DeletePrescription)

	g.GET("/billing", h.ListBilling)
	g.GET("/billing/:id", h.GetBilling)
	g.POST("/billing", h.CreateBilling)
	g.PUT("/billing/:id", h.UpdateBilling)
	g.DELETE("/billing/:id", h.DeleteBilling)

	g.GET("/lab-reports", h.ListLabReports)
	g.GET("/lab-reports/:id", h.GetLabReport)
	g.POST("/lab-reports", h.CreateLabReport)
	g.PUT("/lab-reports/:id", h.UpdateLabReport)
	g.DELETE("/lab-reports/:id", h.DeleteLabReport)

	g.GET("/staff", h.ListStaff)
	g.GET("/staff/:id", h.GetStaff)
	g.POST("/staff", h.CreateStaff)
	g.PUT("/staff/:id", h.UpdateStaff)
	g.DELETE("/staff/:id", h.DeleteStaff)

	g.GET("/notifications", h.ListNotifications)
	g.POST("/notifications", h.CreateNotification)
	g.POST("/notifications/read-all", h.MarkAllNotificationsRead)
	g.POST("/notifications/:id/read", h.MarkNotificationRead)

	g.GET("/audit-logs", h.ListAuditLogs)
	g.POST("/audit-logs", h.AppendAudit)

	g.GET("/patients", h.ListPatientProfiles)
	g.GET("/patients/:id", h.GetPatientProfile)
	g.POST("/patients", h.CreatePatientProfile)
	g.PUT("/patients/:id", h.UpdatePatientProfile)
	g.GET("/patients/:id/records", h.PatientRecords)
}

// ResolvePrincipal turns the identity placed in the request context by the
// auth middleware into a Principal. The directory is authoritative for name
// and role; a token whose role disagrees with it is rejected.
func (h *Handler) ResolvePrincipal() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			u, ok := h.svc.LookupUser(auth.UserIDFromContext(ctx))
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "unknown user")
			}
			if role := auth.RoleFromContext(ctx); role != "" && records.Role(role) != u.RoleName {
				return echo.NewHTTPError(http.StatusUnauthorized, "role does not match user")
			}
			p := Principal{ID: u.ID, FullName: u.FullName, Role: u.RoleName}
			c.SetRequest(c.Request().WithContext(WithPrincipal(ctx, p)))
			return next(c)
		}
	}
}

func principal(c echo.Context) Principal {
	p, _ := PrincipalFromContext(c.Request().Context())
	return p
}

// httpError maps access and store errors onto HTTP status codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, records.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, records.ErrValidation):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func page[T any](c echo.Context, items []T, err error) error {
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.Paginate(items, pagination.FromContext(c)))
}

func reply[T any](c echo.Context, code int, v T, err error) error {
	if err != nil {
		return httpError(err)
	}
	return c.JSON(code, v)
}

func noContent(c echo.Context, err error) error {
	if err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Dashboard and registration --

func (h *Handler) Dashboard(c echo.Context) error {
	sum, err := h.svc.Summary(principal(c))
	return reply(c, http.StatusOK, sum, err)
}

type registrationResponse struct {
	User    records.User           `json:"user"`
	Profile records.PatientProfile `json:"profile"`
}

func (h *Handler) Register(c echo.Context) error {
	var reg Registration
	if err := bind(c, &reg); err != nil {
		return err
	}
	u, profile, err := h.svc.RegisterPatient(reg)
	return reply(c, http.StatusCreated, registrationResponse{User: u, Profile: profile}, err)
}

// -- Appointments --

func (h *Handler) ListAppointments(c echo.Context) error {
	items, err := h.svc.ListAppointments(principal(c), AppointmentFilter{
		Search:    c.QueryParam("q"),
		Status:    records.AppointmentStatus(c.QueryParam("status")),
		PatientID: c.QueryParam("patient_id"),
	})
	return page(c, items, err)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	appt, err := h.svc.GetAppointment(principal(c), c.Param("id"))
	return reply(c, http.StatusOK, appt, err)
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	var draft records.Appointment
	if err := bind(c, &draft); err != nil {
		return err
	}
	appt, err := h.svc.CreateAppointment(principal(c), draft)
	return reply(c, http.StatusCreated, appt, err)
}

func (h *Handler) UpdateAppointment(c echo.Context) error {
	var patch records.AppointmentPatch
	if err := bind(c, &patch); err != nil {
		return err
	}
	appt, err := h.svc.UpdateAppointment(principal(c), c.Param("id"), patch)
	return reply(c, http.StatusOK, appt, err)
}

type statusRequest struct {
	Status records.AppointmentStatus `json:"appointment_status"`
}

func (h *Handler) SetAppointmentStatus(c echo.Context) error {
	var req statusRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.Status == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "appointment_status is required")
	}
	appt, err := h.svc.SetAppointmentStatus(principal(c), c.Param("id"), req.Status)
	return reply(c, http.StatusOK, appt, err)
}

func (h *Handler) DeleteAppointment(c echo.Context) error {
	return noContent(c, h.svc.DeleteAppointment(principal(c), c.Param("id")))
}

// -- Prescriptions --

func (h *Handler) ListPrescriptions(c echo.Context) error {
	f := PrescriptionFilter{
		Search:    c.QueryParam("q"),
		PatientID: c.QueryParam("patient_id"),
	}
	if raw := c.QueryParam("dispensed"); raw != "" {
		dispensed, err := strconv.ParseBool(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid dispensed")
		}
		f.Dispensed = &dispensed
	}
	items, err := h.svc.ListPrescriptions(principal(c), f)
	return page(c, items, err)
}

func (h *Handler) GetPrescription(c echo.Context) error {
	rx, err := h.svc.GetPrescription(principal(c), c.Param("id"))
	return reply(c, http.StatusOK, rx, err)
}

func (h *Handler) CreatePrescription(c echo.Context) error {
	var draft records.Prescription
	if err := bind(c, &draft); err != nil {
		return err
	}
	rx, err := h.svc.CreatePrescription(principal(c), draft)
	return reply(c, http.StatusCreated, rx, err)
}

func (h *Handler) UpdatePrescription(c echo.Context) error {
	var patch records.PrescriptionPatch
	if err := bind(c, &patch); err != nil {
		return err
	}
	rx, err := h.svc.UpdatePrescription(principal(c), c.Param("id"), patch)
	return reply(c, http.StatusOK, rx, err)
}

func (h *Handler) RenewPrescription(c echo.Context) error {
	rx, err := h.svc.RenewPrescription(principal(c), c.Param("id"))
	return reply(c, http.StatusOK, rx, err)
}

func (h *Handler) DispensePrescription(c echo.Context) error {
	rx, err := h.svc.DispensePrescription(principal(c), c.Param("id"))
	return reply(c, http.StatusOK, rx, err)
}

func (h *Handler) DeletePrescription(c echo.Context) error {
	return noContent(c, h.svc.DeletePrescription(principal(c), c.Param("id")))
}

// -- Billing --

func (h *Handler) ListBilling(c echo.Context) error {
	items, err := h.svc.ListBilling(principal(c), BillingFilter{
		Search:    c.QueryParam("q"),
		Status:    records.PaymentStatus(c.QueryParam("status")),
		PatientID: c.QueryParam("patient_id"),
	})
	return page(c, items, err)
}

func (h *Handler) GetBilling(c echo.Context) error {
	b, err := h.svc.GetBilling(principal(c), c.Param("id"))
	return reply(c, http.StatusOK, b, err)
}

func (h *Handler) CreateBilling(c echo.Context) error {
	var draft records.Billing
	if err := bind(c, &draft); err != nil {
		return err
	}
	b, err := h.svc.CreateBilling(principal(c), draft)
	return reply(c, http.StatusCreated, b, err)
}

func (h *Handler) UpdateBilling(c echo.Context) error {
	var patch records.BillingPatch
	if err := bind(c, &patch); err != nil {
		return err
	}
	b, err := h.svc.UpdateBilling(principal(c), c.Param("id"), patch)
	return reply(c, http.StatusOK, b, err)
}

func (h *Handler) DeleteBilling(c echo.Context) error {
	return noContent(c, h.svc.DeleteBilling(principal(c), c.Param("id")))
}

// -- Lab reports --

func (h *Handler) ListLabReports(c echo.Context) error {
	items, err := h.svc.ListLabReports(principal(c), LabReportFilter{
		Search:    c.QueryParam("q"),
		Type:      records.ReportType(c.QueryParam("type")),
		PatientID: c.QueryParam("patient_id"),
	})
	return page(c, items, err)
}

func (h *Handler) GetLabReport(c echo.Context) error {
	l, err := h.svc.GetLabReport(principal(c), c.Param("id"))
	return reply(c, http.StatusOK, l, err)
}

func (h *Handler) CreateLabReport(c echo.Context) error {
	var draft records.LabReport
	if err := bind(c, &draft); err != nil {
		return err
	}
	l, err := h.svc.CreateLabReport(principal(c), draft)
	return reply(c, http.StatusCreated, l, err)
}

func (h *Handler) UpdateLabReport(c echo.Context) error {
	var patch records.LabReportPatch
	if err := bind(c, &patch); err != nil {
		return err
	}
	l, err := h.svc.UpdateLabReport(principal(c), c.Param("id"), patch)
	return reply(c, http.StatusOK, l, err)
}

func (h *Handler) DeleteLabReport(c echo.Context) error {
	return noContent(c, h.svc.DeleteLabReport(principal(c), c.Param("id")))
}

// -- Staff --

func (h *Handler) ListStaff(c echo.Context) error {
	items, err := h.svc.ListStaff(principal(c), StaffFilter{
		Search:     c.QueryParam("q"),
		Role:       records.Role(c.QueryParam("role")),
		Department: c.QueryParam("department"),
	})
	return page(c, items, err)
}

func (h *Handler) GetStaff(c echo.Context) error {
	m, err := h.svc.GetStaff(principal(c), c.Param("id"))
	return reply(c, http.StatusOK, m, err)
}

func (h *Handler) CreateStaff(c echo.Context) error {
	var draft records.StaffMember
	if err := bind(c, &draft); err != nil {
		return err
	}
	m, err := h.svc.CreateStaff(principal(c), draft)
	return reply(c, http.StatusCreated, m, err)
}

func (h *Handler) UpdateStaff(c echo.Context) error {
	var patch records.StaffPatch
	if err := bind(c, &patch); err != nil {
		return err
	}
	m, err := h.svc.UpdateStaff(principal(c), c.Param("id"), patch)
	return reply(c, http.StatusOK, m, err)
}

func (h *Handler) DeleteStaff(c echo.Context) error {
	return noContent(c, h.svc.DeleteStaff(principal(c), c.Param("id")))
}

// -- Notifications --

func (h *Handler) ListNotifications(c echo.Context) error {
	f := NotificationFilter{Type: records.NotificationType(c.QueryParam("type"))}
	if raw := c.QueryParam("unread"); raw != "" {
		unread, err := strconv.ParseBool(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid unread")
		}
		f.UnreadOnly = unread
	}
	items, err := h.svc.ListNotifications(principal(c), f)
	return page(c, items, err)
}

func (h *Handler) CreateNotification(c echo.Context) error {
	var draft records.Notification
	if err := bind(c, &draft); err != nil {
		return err
	}
	n, err := h.svc.CreateNotification(principal(c), draft)
	return reply(c, http.StatusCreated, n, err)
}

func (h *Handler) MarkNotificationRead(c echo.Context) error {
	n, err := h.svc.MarkNotificationRead(principal(c), c.Param("id"))
	return reply(c, http.StatusOK, n, err)
}

func (h *Handler) MarkAllNotificationsRead(c echo.Context) error {
	marked, err := h.svc.MarkAllNotificationsRead(principal(c))
	return reply(c, http.StatusOK, map[string]int{"marked": marked}, err)
}

// -- Audit logs --

func (h *Handler) ListAuditLogs(c echo.Context) error {
	items, err := h.svc.ListAuditLogs(principal(c), AuditFilter{
		Search:      c.QueryParam("q"),
		Resource:    c.QueryParam("resource"),
		PerformedBy: c.QueryParam("performed_by"),
	})
	return page(c, items, err)
}

func (h *Handler) AppendAudit(c echo.Context) error {
	var entry records.AuditEntry
	if err := bind(c, &entry); err != nil {
		return err
	}
	stored, err := h.svc.AppendAudit(principal(c), entry)
	return reply(c, http.StatusCreated, stored, err)
}

// -- Patient profiles --

func (h *Handler) ListPatientProfiles(c echo.Context) error {
	items, err := h.svc.ListPatientProfiles(principal(c), ProfileFilter{Search: c.QueryParam("q")})
	return page(c, items, err)
}

func (h *Handler) GetPatientProfile(c echo.Context) error {
	pp, err := h.svc.GetPatientProfile(principal(c), c.Param("id"))
	return reply(c, http.StatusOK, pp, err)
}

func (h *Handler) CreatePatientProfile(c echo.Context) error {
	var draft records.PatientProfile
	if err := bind(c, &draft); err != nil {
		return err
	}
	pp, err := h.svc.CreatePatientProfile(principal(c), draft)
	return reply(c, http.StatusCreated, pp, err)
}

func (h *Handler) UpdatePatientProfile(c echo.Context) error {
	var patch records.PatientProfilePatch
	if err := bind(c, &patch); err != nil {
		return err
	}
	pp, err := h.svc.UpdatePatientProfile(principal(c), c.Param("id"), patch)
	return reply(c, http.StatusOK, pp, err)
}

// PatientRecords serves the record bundle of one patient. The path id is the
// patient's user id.
func (h *Handler) PatientRecords(c echo.Context) error {
	bundle, err := h.svc.PatientRecords(principal(c), c.Param("id"))
	return reply(c, http.StatusOK, bundle, err)
}
