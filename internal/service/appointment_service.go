package service

import (
	"context"
	"fmt"
	"time"

	"github.com/clinichub/clinic-backend/internal/domain"
	"github.com/clinichub/clinic-backend/internal/notify"
	"github.com/clinichub/clinic-backend/internal/repo/postgres"
	"github.com/clinichub/clinic-backend/pkg/events"
	"github.com/clinichub/clinic-backend/pkg/logger"
)

type AppointmentService interface {
	Request(ctx context.Context, req *domain.AppointmentRequest) (*domain.Appointment, error)
	Schedule(ctx context.Context, id int64, req *domain.AppointmentScheduleRequest) (*domain.Appointment, error)
	Confirm(ctx context.Context, id, patientID int64) (bool, error)
	Reject(ctx context.Context, id, doctorID int64) (bool, error)
	CancelByPatient(ctx context.Context, id, patientID int64) (bool, error)
	Complete(ctx context.Context, id, doctorID int64, notes string) (bool, error)
	UpdateNotes(ctx context.Context, id int64, notes string) (bool, error)
	GetByID(ctx context.Context, id int64) (*domain.Appointment, error)
	Statistics(ctx context.Context, doctorID int64) (*domain.AppointmentStatistics, error)
	ListByDoctor(ctx context.Context, doctorID int64, status *domain.AppointmentStatus) ([]domain.Appointment, error)
	ListByPatient(ctx context.Context, patientID int64, status *domain.AppointmentStatus) ([]domain.Appointment, error)
	PendingRequests(ctx context.Context, doctorID int64) ([]domain.Appointment, error)
	Upcoming(ctx context.Context, doctorID int64) ([]domain.Appointment, error)
	ByDate(ctx context.Context, doctorID int64, day time.Time) ([]domain.Appointment, error)
}

type appointmentService struct {
	appts    postgres.AppointmentsRepo
	users    postgres.UsersRepo
	notifier notify.Dispatcher
	bus      events.Publisher
}

func NewAppointmentService(appts postgres.AppointmentsRepo, users postgres.UsersRepo, notifier notify.Dispatcher, bus events.Publisher) AppointmentService {
	return &appointmentService{appts: appts, users: users, notifier: notifier, bus: bus}
}

func (s *appointmentService) Request(ctx context.Context, req *domain.AppointmentRequest) (*domain.Appointment, error) {
	if err := domain.Validate(req); err != nil {
		return nil, err
	}

	doctor, err := s.resolveUser(ctx, req.DoctorID, "doctor")
	if err != nil {
		return nil, err
	}
	patient, err := s.resolveUser(ctx, req.PatientID, "patient")
	if err != nil {
		return nil, err
	}

	at, err := req.ScheduledAt()
	if err != nil {
		return nil, domain.E(domain.KindValidationFailed, "invalid appointment date or time")
	}

	appt, err := s.appts.Create(ctx, &domain.Appointment{
		DoctorID:      req.DoctorID,
		PatientID:     req.PatientID,
		ScheduledTime: at,
		Type:          req.Type,
		Notes:         req.Reason,
		FollowupDate:  &at,
	})
	if err != nil {
		return nil, domain.Storage(fmt.Errorf("create appointment: %w", err))
	}

	logger.InfoContext(ctx, "Appointment requested",
		"appointment_id", appt.ID, "doctor_id", appt.DoctorID, "patient_id", appt.PatientID)

	s.notifier.Notify(ctx, doctor.ID, fmt.Sprintf(
		"You have a new appointment request from %s on %s",
		patient.Name, at.Format("2006-01-02 15:04")))
	s.notifier.Notify(ctx, patient.ID, fmt.Sprintf(
		"Your appointment request with %s has been sent.", doctor.Name))
	s.publish(ctx, events.AppointmentRequested, appt)

	return appt, nil
}

func (s *appointmentService) Schedule(ctx context.Context, id int64, req *domain.AppointmentScheduleRequest) (*domain.Appointment, error) {
	if err := domain.Validate(req); err != nil {
		return nil, err
	}

	appt, err := s.getAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != domain.AppointmentRequested {
		return nil, domain.E(domain.KindInvalidState,
			fmt.Sprintf("appointment cannot be scheduled from status %s", appt.Status))
	}

	scheduled, conflict, err := s.appts.Schedule(ctx, id, req.ScheduledTime, req.Type, req.Notes)
	if err != nil {
		return nil, domain.Storage(fmt.Errorf("schedule appointment: %w", err))
	}
	if conflict {
		return nil, domain.E(domain.KindSchedulingConflict,
			"the doctor already has an appointment within 30 minutes of the requested time")
	}
	if scheduled == nil {
		// Lost a race: the row changed state between the read and the update.
		return nil, domain.E(domain.KindInvalidState, "appointment is no longer awaiting scheduling")
	}

	logger.InfoContext(ctx, "Appointment scheduled",
		"appointment_id", scheduled.ID, "doctor_id", scheduled.DoctorID, "scheduled_time", scheduled.ScheduledTime)

	when := scheduled.ScheduledTime.Format("2006-01-02 15:04")
	s.notifyUser(ctx, scheduled.PatientID, func(u *domain.User) string {
		return fmt.Sprintf("Your appointment has been scheduled for %s", when)
	})
	s.notifyUser(ctx, scheduled.DoctorID, func(u *domain.User) string {
		return fmt.Sprintf("Appointment #%d confirmed for %s", scheduled.ID, when)
	})
	s.publish(ctx, events.AppointmentScheduled, scheduled)

	return scheduled, nil
}

func (s *appointmentService) Confirm(ctx context.Context, id, patientID int64) (bool, error) {
	appt, err := s.getAppointment(ctx, id)
	if err != nil {
		return false, err
	}
	if appt.PatientID != patientID {
		return false, domain.E(domain.KindPermissionDenied, "only the appointment's patient can confirm it")
	}

	ok, err := s.appts.UpdateStatusIf(ctx, id, domain.AppointmentConfirmed, domain.AppointmentScheduled)
	if err != nil {
		return false, domain.Storage(fmt.Errorf("confirm appointment: %w", err))
	}
	if ok {
		logger.InfoContext(ctx, "Appointment confirmed", "appointment_id", id, "patient_id", patientID)
		s.notifyUser(ctx, appt.DoctorID, func(u *domain.User) string {
			return fmt.Sprintf("Appointment #%d was confirmed by the patient", id)
		})
	}
	return ok, nil
}

func (s *appointmentService) Reject(ctx context.Context, id, doctorID int64) (bool, error) {
	appt, err := s.getAppointment(ctx, id)
	if err != nil {
		return false, err
	}
	if appt.DoctorID != doctorID {
		return false, domain.E(domain.KindPermissionDenied, "only the assigned doctor can reject this request")
	}

	ok, err := s.appts.UpdateStatusIf(ctx, id, domain.AppointmentCancelled, domain.AppointmentRequested)
	if err != nil {
		return false, domain.Storage(fmt.Errorf("reject appointment: %w", err))
	}
	if ok {
		logger.InfoContext(ctx, "Appointment rejected", "appointment_id", id, "doctor_id", doctorID)
		s.notifyUser(ctx, appt.PatientID, func(u *domain.User) string {
			return "Your appointment request was declined. Please choose another time."
		})
		s.publish(ctx, events.AppointmentCanceled, appt)
	}
	return ok, nil
}

func (s *appointmentService) CancelByPatient(ctx context.Context, id, patientID int64) (bool, error) {
	appt, err := s.getAppointment(ctx, id)
	if err != nil {
		return false, err
	}
	if appt.PatientID != patientID {
		return false, domain.E(domain.KindPermissionDenied, "only the appointment's patient can cancel it")
	}

	ok, err := s.appts.UpdateStatusIf(ctx, id, domain.AppointmentCancelled,
		domain.AppointmentRequested, domain.AppointmentScheduled)
	if err != nil {
		return false, domain.Storage(fmt.Errorf("cancel appointment: %w", err))
	}
	if ok {
		logger.InfoContext(ctx, "Appointment cancelled by patient", "appointment_id", id, "patient_id", patientID)
		s.notifyUser(ctx, appt.DoctorID, func(u *domain.User) string {
			return fmt.Sprintf("Appointment #%d was cancelled by the patient", id)
		})
		s.publish(ctx, events.AppointmentCanceled, appt)
	}
	return ok, nil
}

func (s *appointmentService) Complete(ctx context.Context, id, doctorID int64, notes string) (bool, error) {
	appt, err := s.getAppointment(ctx, id)
	if err != nil {
		return false, err
	}
	if appt.DoctorID != doctorID {
		return false, domain.E(domain.KindPermissionDenied, "only the assigned doctor can complete this appointment")
	}

	ok, err := s.appts.Complete(ctx, id, notes)
	if err != nil {
		return false, domain.Storage(fmt.Errorf("complete appointment: %w", err))
	}
	if ok {
		logger.InfoContext(ctx, "Appointment completed", "appointment_id", id, "doctor_id", doctorID)
		s.notifyUser(ctx, appt.PatientID, func(u *domain.User) string {
			return "Your appointment has been completed. Thank you for visiting."
		})
		s.publish(ctx, events.AppointmentCompleted, appt)
	}
	return ok, nil
}

func (s *appointmentService) UpdateNotes(ctx context.Context, id int64, notes string) (bool, error) {
	ok, err := s.appts.UpdateNotes(ctx, id, notes)
	if err != nil {
		return false, domain.Storage(fmt.Errorf("update appointment notes: %w", err))
	}
	return ok, nil
}

func (s *appointmentService) GetByID(ctx context.Context, id int64) (*domain.Appointment, error) {
	return s.getAppointment(ctx, id)
}

// Statistics aggregates one doctor's appointments in a single pass.
func (s *appointmentService) Statistics(ctx context.Context, doctorID int64) (*domain.AppointmentStatistics, error) {
	appts, err := s.appts.ListByDoctor(ctx, doctorID, nil)
	if err != nil {
		return nil, domain.Storage(fmt.Errorf("list appointments: %w", err))
	}

	now := time.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)
	weekStart, weekEnd := isoWeekBounds(now)

	stats := &domain.AppointmentStatistics{TotalAppointments: len(appts)}
	// Earliest appointment per patient, to spot patients still at intake.
	firstByPatient := make(map[int64]*domain.Appointment)
	for i := range appts {
		a := &appts[i]
		switch a.Status {
		case domain.AppointmentRequested:
			stats.PendingRequests++
		case domain.AppointmentScheduled, domain.AppointmentConfirmed:
			stats.ScheduledAppointments++
		case domain.AppointmentCompleted:
			stats.CompletedAppointments++
		case domain.AppointmentCancelled:
			stats.CancelledAppointments++
		}

		if !a.ScheduledTime.Before(dayStart) && a.ScheduledTime.Before(dayEnd) {
			stats.TodaysAppointments++
		}
		if !a.ScheduledTime.Before(weekStart) && a.ScheduledTime.Before(weekEnd) {
			stats.ThisWeekAppointments++
		}

		first, seen := firstByPatient[a.PatientID]
		if !seen || earlier(a, first) {
			firstByPatient[a.PatientID] = a
		}
	}

	stats.TotalUniquePatients = len(firstByPatient)
	for _, first := range firstByPatient {
		if first.Status == domain.AppointmentRequested || first.Status == domain.AppointmentScheduled {
			stats.NewPatients++
		}
	}
	return stats, nil
}

func (s *appointmentService) ListByDoctor(ctx context.Context, doctorID int64, status *domain.AppointmentStatus) ([]domain.Appointment, error) {
	appts, err := s.appts.ListByDoctor(ctx, doctorID, status)
	if err != nil {
		return nil, domain.Storage(fmt.Errorf("list doctor appointments: %w", err))
	}
	return appts, nil
}

func (s *appointmentService) ListByPatient(ctx context.Context, patientID int64, status *domain.AppointmentStatus) ([]domain.Appointment, error) {
	appts, err := s.appts.ListByPatient(ctx, patientID, status)
	if err != nil {
		return nil, domain.Storage(fmt.Errorf("list patient appointments: %w", err))
	}
	return appts, nil
}

func (s *appointmentService) PendingRequests(ctx context.Context, doctorID int64) ([]domain.Appointment, error) {
	appts, err := s.appts.ListPending(ctx, doctorID)
	if err != nil {
		return nil, domain.Storage(fmt.Errorf("list pending appointments: %w", err))
	}
	return appts, nil
}

func (s *appointmentService) Upcoming(ctx context.Context, doctorID int64) ([]domain.Appointment, error) {
	appts, err := s.appts.ListUpcoming(ctx, doctorID)
	if err != nil {
		return nil, domain.Storage(fmt.Errorf("list upcoming appointments: %w", err))
	}
	return appts, nil
}

func (s *appointmentService) ByDate(ctx context.Context, doctorID int64, day time.Time) ([]domain.Appointment, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.Local)
	appts, err := s.appts.ListByDoctorBetween(ctx, doctorID, start, start.AddDate(0, 0, 1))
	if err != nil {
		return nil, domain.Storage(fmt.Errorf("list appointments by date: %w", err))
	}
	return appts, nil
}

func (s *appointmentService) getAppointment(ctx context.Context, id int64) (*domain.Appointment, error) {
	appt, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return nil, domain.Storage(fmt.Errorf("find appointment %d: %w", id, err))
	}
	if appt == nil {
		return nil, domain.E(domain.KindNotFound, fmt.Sprintf("appointment not found with id %d", id))
	}
	return appt, nil
}

func (s *appointmentService) resolveUser(ctx context.Context, id int64, role string) (*domain.User, error) {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, domain.Storage(fmt.Errorf("find %s %d: %w", role, id, err))
	}
	if u == nil {
		return nil, domain.E(domain.KindNotFound, fmt.Sprintf("%s not found with id %d", role, id))
	}
	return u, nil
}

// notifyUser delivers a message without letting a missing user record fail the
// calling operation.
func (s *appointmentService) notifyUser(ctx context.Context, userID int64, message func(*domain.User) string) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil || u == nil {
		logger.WarnContext(ctx, "Skipping notification, user unavailable", "user_id", userID, "error", err)
		return
	}
	s.notifier.Notify(ctx, userID, message(u))
}

func (s *appointmentService) publish(ctx context.Context, subject string, appt *domain.Appointment) {
	if s.bus == nil {
		return
	}
	ev := events.AppointmentEvent{
		AppointmentID: appt.ID,
		DoctorID:      appt.DoctorID,
		PatientID:     appt.PatientID,
		ScheduledTime: appt.ScheduledTime,
		Status:        string(appt.Status),
		At:            time.Now(),
	}
	if err := s.bus.Publish(ctx, subject, ev); err != nil {
		logger.ErrorContext(ctx, "Failed to publish appointment event", "subject", subject, "error", err)
	}
}

// isoWeekBounds returns [Monday 00:00, next Monday 00:00) around t.
func isoWeekBounds(t time.Time) (time.Time, time.Time) {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	// time.Weekday has Sunday == 0; shift so Monday == 0.
	offset := (int(day.Weekday()) + 6) % 7
	start := day.AddDate(0, 0, -offset)
	return start, start.AddDate(0, 0, 7)
}

// earlier orders appointments by creation time with id as tiebreaker.
func earlier(a, b *domain.Appointment) bool {
	return a.CreatedAt.Before(b.CreatedAt) || (a.CreatedAt.Equal(b.CreatedAt) && a.ID < b.ID)
}
