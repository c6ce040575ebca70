package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clinichub/clinic-backend/internal/domain"
	"github.com/clinichub/clinic-backend/internal/http/handlers"
	mw "github.com/clinichub/clinic-backend/internal/http/middleware"
	"github.com/clinichub/clinic-backend/internal/notify"
	"github.com/clinichub/clinic-backend/internal/service"
	"github.com/clinichub/clinic-backend/pkg/config"
)

// ---------- Mocks ----------

type memAdminsRepo struct {
	nextID int64
	admins map[int64]*domain.Admin
}

func newMemAdminsRepo() *memAdminsRepo {
	return &memAdminsRepo{nextID: 1, admins: make(map[int64]*domain.Admin)}
}

func (m *memAdminsRepo) Create(_ context.Context, in *domain.NewAdmin) (*domain.Admin, bool, error) {
	for _, a := range m.admins {
		if strings.EqualFold(a.Email, in.Email) {
			return nil, false, domain.E(domain.KindDuplicateEmail, "email address is already registered")
		}
	}
	level, status := in.Level, in.Status
	first := len(m.admins) == 0
	if first {
		level = domain.LevelRootAdmin
		status = domain.AdminActive
	}
	a := &domain.Admin{
		ID: m.nextID, Name: in.Name, Email: in.Email, PasswordHash: in.PasswordHash,
		Phone: in.Phone, Level: level, Status: status, CreatedBy: in.CreatedBy,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	m.nextID++
	m.admins[a.ID] = a
	copied := *a
	return &copied, first, nil
}

func (m *memAdminsRepo) FindByID(_ context.Context, id int64) (*domain.Admin, error) {
	if a, ok := m.admins[id]; ok {
		copied := *a
		return &copied, nil
	}
	return nil, nil
}

func (m *memAdminsRepo) FindByEmail(_ context.Context, email string) (*domain.Admin, error) {
	for _, a := range m.admins {
		if strings.EqualFold(a.Email, email) {
			copied := *a
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memAdminsRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	a, err := m.FindByEmail(ctx, email)
	return a != nil, err
}

func (m *memAdminsRepo) RootAdminExists(_ context.Context) (bool, error) {
	for _, a := range m.admins {
		if a.Level == domain.LevelRootAdmin {
			return true, nil
		}
	}
	return false, nil
}

func (m *memAdminsRepo) List(_ context.Context, _ domain.PageRequest) ([]domain.Admin, int64, error) {
	all := make([]domain.Admin, 0, len(m.admins))
	for _, a := range m.admins {
		all = append(all, *a)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all, int64(len(all)), nil
}

func (m *memAdminsRepo) ListCreatedBy(_ context.Context, creatorID int64, _ domain.PageRequest) ([]domain.Admin, int64, error) {
	var mine []domain.Admin
	for _, a := range m.admins {
		if a.CreatedBy != nil && *a.CreatedBy == creatorID {
			mine = append(mine, *a)
		}
	}
	return mine, int64(len(mine)), nil
}

func (m *memAdminsRepo) ListPendingApproval(_ context.Context) ([]domain.Admin, error) {
	var pending []domain.Admin
	for _, a := range m.admins {
		if a.Status == domain.AdminPendingApproval {
			pending = append(pending, *a)
		}
	}
	return pending, nil
}

func (m *memAdminsRepo) UpdateStatus(_ context.Context, id int64, status domain.AdminStatus) error {
	if a, ok := m.admins[id]; ok {
		a.Status = status
	}
	return nil
}

func (m *memAdminsRepo) UpdateProfile(_ context.Context, id int64, name, phone string, level *domain.AdminLevel, status *domain.AdminStatus) (*domain.Admin, error) {
	a, ok := m.admins[id]
	if !ok {
		return nil, nil
	}
	a.Name, a.Phone = name, phone
	if level != nil {
		a.Level = *level
	}
	if status != nil {
		a.Status = *status
	}
	copied := *a
	return &copied, nil
}

func (m *memAdminsRepo) UpdatePassword(_ context.Context, id int64, hash string) error {
	if a, ok := m.admins[id]; ok {
		a.PasswordHash = hash
	}
	return nil
}

func (m *memAdminsRepo) RecordLoginFailure(_ context.Context, id int64, maxAttempts int, lockFor time.Duration) (int, *time.Time, error) {
	a := m.admins[id]
	a.LoginAttempts++
	if a.LoginAttempts >= maxAttempts {
		until := time.Now().Add(lockFor)
		a.LockedUntil = &until
	}
	return a.LoginAttempts, a.LockedUntil, nil
}

func (m *memAdminsRepo) RecordLoginSuccess(_ context.Context, id int64, at time.Time) error {
	a := m.admins[id]
	a.LoginAttempts = 0
	a.LockedUntil = nil
	a.LastLogin = &at
	return nil
}

type memAppointmentsRepo struct {
	nextID int64
	appts  map[int64]*domain.Appointment
}

func newMemAppointmentsRepo() *memAppointmentsRepo {
	return &memAppointmentsRepo{nextID: 1, appts: make(map[int64]*domain.Appointment)}
}

func (m *memAppointmentsRepo) Create(_ context.Context, in *domain.Appointment) (*domain.Appointment, error) {
	a := *in
	a.ID = m.nextID
	a.Status = domain.AppointmentRequested
	a.CreatedAt = time.Now()
	m.nextID++
	m.appts[a.ID] = &a
	copied := a
	return &copied, nil
}

func (m *memAppointmentsRepo) GetByID(_ context.Context, id int64) (*domain.Appointment, error) {
	if a, ok := m.appts[id]; ok {
		copied := *a
		return &copied, nil
	}
	return nil, nil
}

func (m *memAppointmentsRepo) Schedule(_ context.Context, id int64, at time.Time, typ domain.AppointmentType, notes string) (*domain.Appointment, bool, error) {
	a, ok := m.appts[id]
	if !ok || a.Status != domain.AppointmentRequested {
		return nil, false, nil
	}
	for _, other := range m.appts {
		if other.ID == id || other.DoctorID != a.DoctorID || other.Status == domain.AppointmentCancelled {
			continue
		}
		delta := other.ScheduledTime.Sub(at)
		if delta < 0 {
			delta = -delta
		}
		if delta < domain.ConflictWindow {
			return nil, true, nil
		}
	}
	a.ScheduledTime, a.Type, a.Notes = at, typ, notes
	a.FollowupDate = &at
	a.Status = domain.AppointmentScheduled
	copied := *a
	return &copied, false, nil
}

func (m *memAppointmentsRepo) UpdateStatusIf(_ context.Context, id int64, to domain.AppointmentStatus, from ...domain.AppointmentStatus) (bool, error) {
	a, ok := m.appts[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if a.Status == f {
			a.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (m *memAppointmentsRepo) Complete(_ context.Context, id int64, notes string) (bool, error) {
	a, ok := m.appts[id]
	if !ok || (a.Status != domain.AppointmentScheduled && a.Status != domain.AppointmentConfirmed) {
		return false, nil
	}
	a.Status = domain.AppointmentCompleted
	if notes != "" {
		a.Notes = notes
	}
	return true, nil
}

func (m *memAppointmentsRepo) UpdateNotes(_ context.Context, id int64, notes string) (bool, error) {
	a, ok := m.appts[id]
	if !ok {
		return false, nil
	}
	a.Notes = notes
	return true, nil
}

func (m *memAppointmentsRepo) ListByDoctor(_ context.Context, doctorID int64, status *domain.AppointmentStatus) ([]domain.Appointment, error) {
	var result []domain.Appointment
	for _, a := range m.appts {
		if a.DoctorID == doctorID && (status == nil || a.Status == *status) {
			result = append(result, *a)
		}
	}
	return result, nil
}

func (m *memAppointmentsRepo) ListByPatient(_ context.Context, patientID int64, status *domain.AppointmentStatus) ([]domain.Appointment, error) {
	var result []domain.Appointment
	for _, a := range m.appts {
		if a.PatientID == patientID && (status == nil || a.Status == *status) {
			result = append(result, *a)
		}
	}
	return result, nil
}

func (m *memAppointmentsRepo) ListPending(_ context.Context, doctorID int64) ([]domain.Appointment, error) {
	requested := domain.AppointmentRequested
	return m.ListByDoctor(context.Background(), doctorID, &requested)
}

func (m *memAppointmentsRepo) ListUpcoming(_ context.Context, doctorID int64) ([]domain.Appointment, error) {
	var result []domain.Appointment
	for _, a := range m.appts {
		if a.DoctorID == doctorID && (a.Status == domain.AppointmentScheduled || a.Status == domain.AppointmentConfirmed) {
			result = append(result, *a)
		}
	}
	return result, nil
}

func (m *memAppointmentsRepo) ListByDoctorBetween(_ context.Context, doctorID int64, from, to time.Time) ([]domain.Appointment, error) {
	var result []domain.Appointment
	for _, a := range m.appts {
		if a.DoctorID == doctorID && !a.ScheduledTime.Before(from) && a.ScheduledTime.Before(to) {
			result = append(result, *a)
		}
	}
	return result, nil
}

type memUsersRepo struct {
	users map[int64]*domain.User
}

func (m *memUsersRepo) FindByID(_ context.Context, id int64) (*domain.User, error) {
	if u, ok := m.users[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, nil
}

type memNotificationsRepo struct {
	nextID        int64
	notifications []*domain.Notification
}

func (m *memNotificationsRepo) Create(_ context.Context, userID int64, message string) (*domain.Notification, error) {
	m.nextID++
	n := &domain.Notification{ID: m.nextID, UserID: userID, Message: message, CreatedAt: time.Now()}
	m.notifications = append(m.notifications, n)
	copied := *n
	return &copied, nil
}

func (m *memNotificationsRepo) ListByUser(_ context.Context, userID int64) ([]domain.Notification, error) {
	var result []domain.Notification
	for i := len(m.notifications) - 1; i >= 0; i-- {
		if m.notifications[i].UserID == userID {
			result = append(result, *m.notifications[i])
		}
	}
	return result, nil
}

func (m *memNotificationsRepo) MarkRead(_ context.Context, id int64) (bool, error) {
	for _, n := range m.notifications {
		if n.ID == id && !n.Read {
			n.Read = true
			return true, nil
		}
	}
	return false, nil
}

// ---------- Test setup ----------

func setupTestServer() (*httptest.Server, *memNotificationsRepo) {
	cfg := &config.Config{
		Auth: config.AuthConfig{JWTSecret: "test-secret", AccessTokenTTL: time.Hour},
	}

	adminsRepo := newMemAdminsRepo()
	apptsRepo := newMemAppointmentsRepo()
	usersRepo := &memUsersRepo{users: map[int64]*domain.User{
		10: {ID: 10, Role: "DOCTOR", Name: "Dr. Gregory House", Email: "house@clinic.test"},
		20: {ID: 20, Role: "PATIENT", Name: "John Smith", Email: "john@clinic.test"},
	}}
	notificationsRepo := &memNotificationsRepo{}

	notifier := notify.NewService(notificationsRepo, usersRepo, nil, nil)
	adminService := service.NewAdminService(adminsRepo, nil, cfg)
	appointmentService := service.NewAppointmentService(apptsRepo, usersRepo, notifier, nil)

	h := handlers.New(adminService, appointmentService, notifier, cfg)

	r := chi.NewRouter()
	r.Route("/v1", func(r chi.Router) {
		r.Route("/admins", func(r chi.Router) {
			r.Post("/login", h.Login)
			r.Post("/signup", h.Signup)
			r.Get("/root-exists", h.RootAdminExists)
			r.Group(func(r chi.Router) {
				r.Use(mw.RequireJWT(cfg.Auth.JWTSecret))
				r.Get("/", h.ListAdmins)
				r.Get("/pending", h.PendingAdmins)
				r.Get("/{id}", h.GetAdmin)
				r.Put("/{id}", h.UpdateAdmin)
				r.Post("/{id}/approve", h.ApproveAdmin)
				r.Post("/{id}/suspend", h.SuspendAdmin)
				r.Post("/{id}/password", h.ChangePassword)
			})
		})
		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", h.RequestAppointment)
			r.Get("/{id}", h.GetAppointment)
			r.Post("/{id}/schedule", h.ScheduleAppointment)
			r.Post("/{id}/confirm", h.ConfirmAppointment)
			r.Post("/{id}/reject", h.RejectAppointment)
			r.Post("/{id}/cancel", h.CancelAppointment)
			r.Post("/{id}/complete", h.CompleteAppointment)
			r.Route("/doctor/{doctorID}", func(r chi.Router) {
				r.Get("/", h.ListDoctorAppointments)
				r.Get("/statistics", h.AppointmentStatistics)
			})
		})
		r.Route("/notifications", func(r chi.Router) {
			r.Get("/user/{userID}", h.ListNotifications)
			r.Post("/{id}/read", h.MarkNotificationRead)
		})
	})

	return httptest.NewServer(r), notificationsRepo
}

func postJSON(t *testing.T, url string, body interface{}, token string, wantStatus int) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	if resp.StatusCode != wantStatus {
		t.Fatalf("POST %s: expected status %d, got %d", url, wantStatus, resp.StatusCode)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, into interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func signupAdmin(t *testing.T, serverURL, email string) {
	t.Helper()
	resp := postJSON(t, serverURL+"/v1/admins/signup", map[string]string{
		"name":             "Test Admin",
		"email":            email,
		"password":         "correct-horse-9",
		"confirm_password": "correct-horse-9",
	}, "", http.StatusCreated)
	resp.Body.Close()
}

func loginAdmin(t *testing.T, serverURL, email string) string {
	t.Helper()
	resp := postJSON(t, serverURL+"/v1/admins/login", map[string]string{
		"email":    email,
		"password": "correct-horse-9",
	}, "", http.StatusOK)

	var result struct {
		Token string `json:"token"`
	}
	decode(t, resp, &result)
	if result.Token == "" {
		t.Fatal("expected a token in the login response")
	}
	return result.Token
}

// ---------- Tests ----------

func TestSignupAndLogin_Bootstrap(t *testing.T) {
	server, _ := setupTestServer()
	defer server.Close()

	resp := postJSON(t, server.URL+"/v1/admins/signup", map[string]string{
		"name":             "First Admin",
		"email":            "boss@clinic.test",
		"password":         "correct-horse-9",
		"confirm_password": "correct-horse-9",
	}, "", http.StatusCreated)

	var signupResult struct {
		Admin            domain.AdminSummary `json:"admin"`
		RequiresApproval bool                `json:"requires_approval"`
	}
	decode(t, resp, &signupResult)

	if signupResult.Admin.Level != domain.LevelRootAdmin {
		t.Fatalf("expected first admin to be ROOT_ADMIN, got %s", signupResult.Admin.Level)
	}
	if signupResult.RequiresApproval {
		t.Fatal("first admin must not require approval")
	}

	token := loginAdmin(t, server.URL, "boss@clinic.test")

	// The token works on protected routes.
	req, _ := http.NewRequest(http.MethodGet, server.URL+"/v1/admins/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	listResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("list admins: %v", err)
	}
	listResp.Body.Close()
	if listResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 listing admins, got %d", listResp.StatusCode)
	}
}

func TestLogin_WrongPassword_Unauthorized(t *testing.T) {
	server, _ := setupTestServer()
	defer server.Close()
	signupAdmin(t, server.URL, "boss@clinic.test")

	resp := postJSON(t, server.URL+"/v1/admins/login", map[string]string{
		"email":    "boss@clinic.test",
		"password": "wrong-password-9",
	}, "", http.StatusUnauthorized)
	resp.Body.Close()
}

func TestSignup_DuplicateEmail_Conflict(t *testing.T) {
	server, _ := setupTestServer()
	defer server.Close()
	signupAdmin(t, server.URL, "boss@clinic.test")

	resp := postJSON(t, server.URL+"/v1/admins/signup", map[string]string{
		"name":             "Copycat",
		"email":            "boss@clinic.test",
		"password":         "correct-horse-9",
		"confirm_password": "correct-horse-9",
	}, "", http.StatusConflict)
	resp.Body.Close()
}

func TestProtectedRoutes_RequireToken(t *testing.T) {
	server, _ := setupTestServer()
	defer server.Close()

	resp, err := http.Get(server.URL + "/v1/admins/")
	if err != nil {
		t.Fatalf("get admins: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
}

func TestApproveFlow(t *testing.T) {
	server, _ := setupTestServer()
	defer server.Close()
	signupAdmin(t, server.URL, "boss@clinic.test")
	signupAdmin(t, server.URL, "second@clinic.test")
	token := loginAdmin(t, server.URL, "boss@clinic.test")

	resp := postJSON(t, server.URL+"/v1/admins/2/approve", map[string]string{}, token, http.StatusOK)
	resp.Body.Close()

	// Approving twice hits the invalid-state guard.
	resp = postJSON(t, server.URL+"/v1/admins/2/approve", map[string]string{}, token, http.StatusConflict)
	resp.Body.Close()

	// The approved admin can now log in.
	loginAdmin(t, server.URL, "second@clinic.test")
}

func TestAppointmentFlow_RequestScheduleConflict(t *testing.T) {
	server, notificationsRepo := setupTestServer()
	defer server.Close()

	request := map[string]interface{}{
		"doctor_id":  10,
		"patient_id": 20,
		"date":       "2026-09-15",
		"time":       "10:00",
		"type":       "IN_PERSON",
		"reason":     "Checkup",
	}

	resp := postJSON(t, server.URL+"/v1/appointments/", request, "", http.StatusCreated)
	var first domain.Appointment
	decode(t, resp, &first)
	if first.Status != domain.AppointmentRequested {
		t.Fatalf("expected REQUESTED, got %s", first.Status)
	}

	// Both parties got a notification for the request.
	if len(notificationsRepo.notifications) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(notificationsRepo.notifications))
	}

	resp = postJSON(t, fmt.Sprintf("%s/v1/appointments/%d/schedule", server.URL, first.ID), map[string]interface{}{
		"scheduled_time": time.Date(2026, 9, 16, 10, 0, 0, 0, time.Local).Format(time.RFC3339),
		"type":           "IN_PERSON",
	}, "", http.StatusOK)
	var scheduled domain.Appointment
	decode(t, resp, &scheduled)
	if scheduled.Status != domain.AppointmentScheduled {
		t.Fatalf("expected SCHEDULED, got %s", scheduled.Status)
	}

	// A second request 15 minutes away cannot be scheduled.
	resp = postJSON(t, server.URL+"/v1/appointments/", request, "", http.StatusCreated)
	var second domain.Appointment
	decode(t, resp, &second)

	resp = postJSON(t, fmt.Sprintf("%s/v1/appointments/%d/schedule", server.URL, second.ID), map[string]interface{}{
		"scheduled_time": time.Date(2026, 9, 16, 10, 15, 0, 0, time.Local).Format(time.RFC3339),
		"type":           "IN_PERSON",
	}, "", http.StatusConflict)
	resp.Body.Close()
}

func TestNotificationFeed(t *testing.T) {
	server, _ := setupTestServer()
	defer server.Close()

	resp := postJSON(t, server.URL+"/v1/appointments/", map[string]interface{}{
		"doctor_id":  10,
		"patient_id": 20,
		"date":       "2026-09-15",
		"time":       "10:00",
		"type":       "VIDEO",
	}, "", http.StatusCreated)
	resp.Body.Close()

	feedResp, err := http.Get(server.URL + "/v1/notifications/user/20")
	if err != nil {
		t.Fatalf("get notifications: %v", err)
	}
	var feed struct {
		Notifications []domain.Notification `json:"notifications"`
		Count         int                   `json:"count"`
	}
	decode(t, feedResp, &feed)
	if feed.Count != 1 {
		t.Fatalf("expected 1 notification, got %d", feed.Count)
	}

	resp = postJSON(t, fmt.Sprintf("%s/v1/notifications/%d/read", server.URL, feed.Notifications[0].ID), map[string]string{}, "", http.StatusOK)
	resp.Body.Close()

	// Marking again reports not found.
	resp = postJSON(t, fmt.Sprintf("%s/v1/notifications/%d/read", server.URL, feed.Notifications[0].ID), map[string]string{}, "", http.StatusNotFound)
	resp.Body.Close()
}
