package domain

import "time"

type AdminLevel string

const (
	LevelAdmin     AdminLevel = "ADMIN"
	LevelRootAdmin AdminLevel = "ROOT_ADMIN"
)

func ParseAdminLevel(s string) (AdminLevel, bool) {
	switch AdminLevel(s) {
	case LevelAdmin, LevelRootAdmin:
		return AdminLevel(s), true
	default:
		return "", false
	}
}

type AdminStatus string

const (
	AdminPendingApproval AdminStatus = "PENDING_APPROVAL"
	AdminActive          AdminStatus = "ACTIVE"
	AdminSuspended       AdminStatus = "SUSPENDED"
)

func ParseAdminStatus(s string) (AdminStatus, bool) {
	switch AdminStatus(s) {
	case AdminPendingApproval, AdminActive, AdminSuspended:
		return AdminStatus(s), true
	default:
		return "", false
	}
}

type Admin struct {
	ID           int64       `json:"id"`
	Name         string      `json:"name"`
	Email        string      `json:"email"`
	PasswordHash string      `json:"-"`
	Phone        string      `json:"phone,omitempty"`
	Level        AdminLevel  `json:"admin_level"`
	Status       AdminStatus `json:"status"`

	LoginAttempts int        `json:"-"`
	LockedUntil   *time.Time `json:"-"`
	LastLogin     *time.Time `json:"last_login,omitempty"`

	CreatedBy *int64    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a *Admin) IsRootAdmin() bool { return a.Level == LevelRootAdmin }

// CanManageAdmins reports whether this admin may approve or suspend others.
func (a *Admin) CanManageAdmins() bool { return a.Level == LevelRootAdmin }

// IsLocked reports whether a lockout window is still in effect.
func (a *Admin) IsLocked(now time.Time) bool {
	return a.LockedUntil != nil && a.LockedUntil.After(now)
}

// AdminSummary is the non-sensitive projection returned to callers.
type AdminSummary struct {
	ID              int64       `json:"id"`
	Name            string      `json:"name"`
	Email           string      `json:"email"`
	Phone           string      `json:"phone,omitempty"`
	Level           AdminLevel  `json:"admin_level"`
	Status          AdminStatus `json:"status"`
	LastLogin       *time.Time  `json:"last_login,omitempty"`
	CanManageAdmins bool        `json:"can_manage_admins"`
	CreatedAt       time.Time   `json:"created_at"`
}

func (a *Admin) Summary() AdminSummary {
	return AdminSummary{
		ID:              a.ID,
		Name:            a.Name,
		Email:           a.Email,
		Phone:           a.Phone,
		Level:           a.Level,
		Status:          a.Status,
		LastLogin:       a.LastLogin,
		CanManageAdmins: a.CanManageAdmins(),
		CreatedAt:       a.CreatedAt,
	}
}

// NewAdmin carries a fully validated signup into the admins store. Level and
// Status are what the service decided for the non-bootstrap case; the store
// overrides both when it finds itself empty.
type NewAdmin struct {
	Name         string
	Email        string
	PasswordHash string
	Phone        string
	Level        AdminLevel
	Status       AdminStatus
	CreatedBy    *int64
}

type AdminLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AdminLoginResult struct {
	Token     string       `json:"token"`
	Admin     AdminSummary `json:"admin"`
	LoginTime time.Time    `json:"login_time"`
}

type AdminSignupRequest struct {
	Name            string     `json:"name" validate:"required,min=2,max=100"`
	Email           string     `json:"email" validate:"required,email"`
	Password        string     `json:"password" validate:"required,min=8"`
	ConfirmPassword string     `json:"confirm_password" validate:"required"`
	Phone           string     `json:"phone" validate:"omitempty,max=20"`
	Level           AdminLevel `json:"admin_level" validate:"omitempty,oneof=ADMIN ROOT_ADMIN"`
}

type AdminSignupResult struct {
	Admin            AdminSummary `json:"admin"`
	RequiresApproval bool         `json:"requires_approval"`
}

type AdminUpdateRequest struct {
	Name   string       `json:"name" validate:"required,min=2,max=100"`
	Phone  string       `json:"phone" validate:"omitempty,max=20"`
	Level  *AdminLevel  `json:"admin_level" validate:"omitempty,oneof=ADMIN ROOT_ADMIN"`
	Status *AdminStatus `json:"status" validate:"omitempty,oneof=PENDING_APPROVAL ACTIVE SUSPENDED"`
}

type PasswordChangeRequest struct {
	CurrentPassword    string `json:"current_password" validate:"required"`
	NewPassword        string `json:"new_password" validate:"required,min=8"`
	ConfirmNewPassword string `json:"confirm_new_password" validate:"required"`
}

// PageRequest is the pagination surface of the admin list operation.
type PageRequest struct {
	Page    int
	Size    int
	SortBy  string
	SortDir string
}

func (p PageRequest) Normalize() PageRequest {
	if p.Page < 0 {
		p.Page = 0
	}
	if p.Size <= 0 || p.Size > 100 {
		p.Size = 20
	}
	if p.SortDir != "asc" && p.SortDir != "desc" {
		p.SortDir = "desc"
	}
	if p.SortBy == "" {
		p.SortBy = "created_at"
	}
	return p
}

func (p PageRequest) Offset() int { return p.Page * p.Size }

type AdminPage struct {
	Admins      []AdminSummary `json:"admins"`
	TotalCount  int64          `json:"total_count"`
	HasMoreData bool           `json:"has_more_data"`
}
