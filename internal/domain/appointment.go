package domain

import "time"

type AppointmentStatus string

const (
	AppointmentRequested AppointmentStatus = "REQUESTED"
	AppointmentScheduled AppointmentStatus = "SCHEDULED"
	AppointmentConfirmed AppointmentStatus = "CONFIRMED"
	AppointmentCompleted AppointmentStatus = "COMPLETED"
	AppointmentCancelled AppointmentStatus = "CANCELLED"
)

func ParseAppointmentStatus(s string) (AppointmentStatus, bool) {
	switch AppointmentStatus(s) {
	case AppointmentRequested, AppointmentScheduled, AppointmentConfirmed, AppointmentCompleted, AppointmentCancelled:
		return AppointmentStatus(s), true
	default:
		return "", false
	}
}

// Terminal reports whether no operation may change the status further.
func (s AppointmentStatus) Terminal() bool {
	return s == AppointmentCompleted || s == AppointmentCancelled
}

type AppointmentType string

const (
	TypeInPerson AppointmentType = "IN_PERSON"
	TypeVideo    AppointmentType = "VIDEO"
	TypePhone    AppointmentType = "PHONE"
)

func ParseAppointmentType(s string) (AppointmentType, bool) {
	switch AppointmentType(s) {
	case TypeInPerson, TypeVideo, TypePhone:
		return AppointmentType(s), true
	default:
		return "", false
	}
}

// ConflictWindow is the half-width of the scheduling conflict window: a doctor
// may not hold two non-cancelled appointments closer together than this.
const ConflictWindow = 30 * time.Minute

type Appointment struct {
	ID            int64             `json:"id"`
	DoctorID      int64             `json:"doctor_id"`
	PatientID     int64             `json:"patient_id"`
	ScheduledTime time.Time         `json:"scheduled_time"`
	Status        AppointmentStatus `json:"status"`
	Type          AppointmentType   `json:"type"`
	Notes         string            `json:"notes,omitempty"`
	FollowupDate  *time.Time        `json:"followup_date,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

type AppointmentRequest struct {
	DoctorID  int64           `json:"doctor_id" validate:"required"`
	PatientID int64           `json:"patient_id" validate:"required"`
	Date      string          `json:"date" validate:"required,datetime=2006-01-02"`
	Time      string          `json:"time" validate:"required,datetime=15:04"`
	Type      AppointmentType `json:"type" validate:"required,oneof=IN_PERSON VIDEO PHONE"`
	Reason    string          `json:"reason" validate:"omitempty,max=2000"`
}

// ScheduledAt combines the request's date and clock time in local time.
func (r *AppointmentRequest) ScheduledAt() (time.Time, error) {
	return time.ParseInLocation("2006-01-02 15:04", r.Date+" "+r.Time, time.Local)
}

type AppointmentScheduleRequest struct {
	ScheduledTime time.Time       `json:"scheduled_time" validate:"required"`
	Type          AppointmentType `json:"type" validate:"required,oneof=IN_PERSON VIDEO PHONE"`
	Location      string          `json:"location" validate:"omitempty,max=200"`
	Notes         string          `json:"notes" validate:"omitempty,max=2000"`
}

// AppointmentStatistics is the read-side aggregate over one doctor's
// appointments. Field names mirror the management dashboard contract.
type AppointmentStatistics struct {
	TotalAppointments     int `json:"totalAppointments"`
	PendingRequests       int `json:"pendingRequests"`
	ScheduledAppointments int `json:"scheduledAppointments"`
	CompletedAppointments int `json:"completedAppointments"`
	CancelledAppointments int `json:"cancelledAppointments"`
	TodaysAppointments    int `json:"todaysAppointments"`
	ThisWeekAppointments  int `json:"thisWeekAppointments"`
	NewPatients           int `json:"newPatients"`
	TotalUniquePatients   int `json:"totalUniquePatients"`
}
