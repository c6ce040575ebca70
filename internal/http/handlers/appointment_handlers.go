package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clinichub/clinic-backend/internal/domain"
	"github.com/clinichub/clinic-backend/internal/http/response"
)

// RequestAppointment handles a patient requesting an appointment
func (h *Handlers) RequestAppointment(w http.ResponseWriter, r *http.Request) {
	var req domain.AppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}

	appt, err := h.appointmentService.Request(r.Context(), &req)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, appt)
}

// ScheduleAppointment handles a doctor scheduling a requested appointment
func (h *Handlers) ScheduleAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	var req domain.AppointmentScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}

	appt, err := h.appointmentService.Schedule(r.Context(), id, &req)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, appt)
}

type appointmentActorRequest struct {
	DoctorID  int64  `json:"doctor_id,omitempty"`
	PatientID int64  `json:"patient_id,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// ConfirmAppointment handles a patient confirming a scheduled appointment
func (h *Handlers) ConfirmAppointment(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id int64, req appointmentActorRequest) (bool, error) {
		return h.appointmentService.Confirm(r.Context(), id, req.PatientID)
	}, "Appointment confirmed")
}

// RejectAppointment handles a doctor declining an appointment request
func (h *Handlers) RejectAppointment(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id int64, req appointmentActorRequest) (bool, error) {
		return h.appointmentService.Reject(r.Context(), id, req.DoctorID)
	}, "Appointment rejected")
}

// CancelAppointment handles a patient cancelling their appointment
func (h *Handlers) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id int64, req appointmentActorRequest) (bool, error) {
		return h.appointmentService.CancelByPatient(r.Context(), id, req.PatientID)
	}, "Appointment cancelled")
}

// CompleteAppointment handles a doctor marking an appointment as done
func (h *Handlers) CompleteAppointment(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id int64, req appointmentActorRequest) (bool, error) {
		return h.appointmentService.Complete(r.Context(), id, req.DoctorID, req.Notes)
	}, "Appointment completed")
}

// transition runs one status change and reports 409 when the appointment was
// not in a state that allows it.
func (h *Handlers) transition(w http.ResponseWriter, r *http.Request, action func(int64, appointmentActorRequest) (bool, error), okMessage string) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	var req appointmentActorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}

	changed, err := action(id, req)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	if !changed {
		response.Error(w, http.StatusConflict, "Appointment is not in a state that allows this action")
		return
	}
	response.JSON(w, http.StatusOK, map[string]string{"message": okMessage})
}

// UpdateAppointmentNotes handles overwriting doctor notes
func (h *Handlers) UpdateAppointmentNotes(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Notes string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}

	updated, err := h.appointmentService.UpdateNotes(r.Context(), id, req.Notes)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	if !updated {
		response.Error(w, http.StatusNotFound, "Appointment not found")
		return
	}
	response.JSON(w, http.StatusOK, map[string]string{"message": "Notes updated"})
}

// GetAppointment handles fetching a single appointment
func (h *Handlers) GetAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	appt, err := h.appointmentService.GetByID(r.Context(), id)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, appt)
}

// ListDoctorAppointments handles a doctor's appointment listing with an
// optional status filter
func (h *Handlers) ListDoctorAppointments(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := idParam(w, r, "doctorID")
	if !ok {
		return
	}
	status, ok := statusFilter(w, r)
	if !ok {
		return
	}

	appts, err := h.appointmentService.ListByDoctor(r.Context(), doctorID, status)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	writeAppointments(w, appts)
}

// ListPatientAppointments handles a patient's appointment listing with an
// optional status filter
func (h *Handlers) ListPatientAppointments(w http.ResponseWriter, r *http.Request) {
	patientID, ok := idParam(w, r, "patientID")
	if !ok {
		return
	}
	status, ok := statusFilter(w, r)
	if !ok {
		return
	}

	appts, err := h.appointmentService.ListByPatient(r.Context(), patientID, status)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	writeAppointments(w, appts)
}

// PendingAppointments handles listing a doctor's unanswered requests
func (h *Handlers) PendingAppointments(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := idParam(w, r, "doctorID")
	if !ok {
		return
	}

	appts, err := h.appointmentService.PendingRequests(r.Context(), doctorID)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	writeAppointments(w, appts)
}

// UpcomingAppointments handles listing a doctor's scheduled visits
func (h *Handlers) UpcomingAppointments(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := idParam(w, r, "doctorID")
	if !ok {
		return
	}

	appts, err := h.appointmentService.Upcoming(r.Context(), doctorID)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	writeAppointments(w, appts)
}

// AppointmentsByDate handles listing a doctor's appointments on one day
func (h *Handlers) AppointmentsByDate(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := idParam(w, r, "doctorID")
	if !ok {
		return
	}

	day, err := time.ParseInLocation("2006-01-02", chi.URLParam(r, "date"), time.Local)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid date parameter, expected YYYY-MM-DD")
		return
	}

	appts, err := h.appointmentService.ByDate(r.Context(), doctorID, day)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	writeAppointments(w, appts)
}

// AppointmentStatistics handles the doctor dashboard aggregate
func (h *Handlers) AppointmentStatistics(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := idParam(w, r, "doctorID")
	if !ok {
		return
	}

	stats, err := h.appointmentService.Statistics(r.Context(), doctorID)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, stats)
}

func statusFilter(w http.ResponseWriter, r *http.Request) (*domain.AppointmentStatus, bool) {
	param := r.URL.Query().Get("status")
	if param == "" {
		return nil, true
	}
	st, ok := domain.ParseAppointmentStatus(param)
	if !ok {
		response.Error(w, http.StatusBadRequest, "Invalid status parameter")
		return nil, false
	}
	return &st, true
}

func writeAppointments(w http.ResponseWriter, appts []domain.Appointment) {
	response.JSON(w, http.StatusOK, map[string]interface{}{
		"appointments": appts,
		"count":        len(appts),
	})
}
