package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alexedwards/argon2id"

	"github.com/clinichub/clinic-backend/internal/domain"
	"github.com/clinichub/clinic-backend/internal/repo/postgres"
	"github.com/clinichub/clinic-backend/pkg/auth"
	"github.com/clinichub/clinic-backend/pkg/config"
	"github.com/clinichub/clinic-backend/pkg/events"
	"github.com/clinichub/clinic-backend/pkg/logger"
)

// Brute-force lockout policy.
const (
	maxLoginAttempts    = 5
	accountLockDuration = 2 * time.Hour
)

type AdminService interface {
	Login(ctx context.Context, req *domain.AdminLoginRequest) (*domain.AdminLoginResult, error)
	Signup(ctx context.Context, req *domain.AdminSignupRequest, creatorID *int64) (*domain.AdminSignupResult, error)
	Approve(ctx context.Context, targetID, approverID int64) error
	Suspend(ctx context.Context, targetID, suspenderID int64) error
	Update(ctx context.Context, targetID int64, req *domain.AdminUpdateRequest, updaterID int64) (*domain.Admin, error)
	ChangePassword(ctx context.Context, targetID int64, req *domain.PasswordChangeRequest) error
	GetByID(ctx context.Context, id int64) (*domain.Admin, error)
	List(ctx context.Context, p domain.PageRequest, requesterID int64) (*domain.AdminPage, error)
	PendingApprovals(ctx context.Context) ([]domain.Admin, error)
	RootAdminExists(ctx context.Context) (bool, error)
	CanManage(ctx context.Context, managerID, targetID int64) (bool, error)
}

type adminService struct {
	admins postgres.AdminsRepo
	bus    events.Publisher
	cfg    *config.Config
}

func NewAdminService(admins postgres.AdminsRepo, bus events.Publisher, cfg *config.Config) AdminService {
	return &adminService{admins: admins, bus: bus, cfg: cfg}
}

// publish is fire-and-forget: downstream consumers must not break admin flows.
func (s *adminService) publish(ctx context.Context, subject string, ev events.AdminLifecycleEvent) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, subject, ev); err != nil {
		logger.ErrorContext(ctx, "Failed to publish admin event", "subject", subject, "error", err)
	}
}

func (s *adminService) Login(ctx context.Context, req *domain.AdminLoginRequest) (*domain.AdminLoginResult, error) {
	if err := domain.Validate(req); err != nil {
		return nil, err
	}

	admin, err := s.admins.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, domain.Storage(fmt.Errorf("find admin by email: %w", err))
	}
	if admin == nil {
		return nil, domain.E(domain.KindNotFound, "invalid email or password")
	}

	now := time.Now()
	if admin.IsLocked(now) {
		logger.WarnContext(ctx, "Login attempt for locked account", "admin_id", admin.ID)
		return nil, domain.E(domain.KindAccountLocked, "account is temporarily locked, try again later")
	}
	if admin.Status != domain.AdminActive {
		logger.WarnContext(ctx, "Login attempt for inactive account", "admin_id", admin.ID, "status", admin.Status)
		return nil, domain.E(domain.KindAccountInactive, "account is not active, contact support")
	}

	match, err := argon2id.ComparePasswordAndHash(req.Password, admin.PasswordHash)
	if err != nil {
		return nil, domain.Storage(fmt.Errorf("verify password: %w", err))
	}
	if !match {
		// The counter must be durable before the failure is returned.
		attempts, lockedUntil, err := s.admins.RecordLoginFailure(ctx, admin.ID, maxLoginAttempts, accountLockDuration)
		if err != nil {
			return nil, domain.Storage(fmt.Errorf("record failed login: %w", err))
		}
		if lockedUntil != nil {
			logger.WarnContext(ctx, "Account locked after repeated failures",
				"admin_id", admin.ID, "attempts", attempts, "locked_until", lockedUntil)
		}
		return nil, domain.E(domain.KindInvalidCredentials, "invalid email or password")
	}

	if err := s.admins.RecordLoginSuccess(ctx, admin.ID, now); err != nil {
		return nil, domain.Storage(fmt.Errorf("record successful login: %w", err))
	}
	admin.LoginAttempts = 0
	admin.LockedUntil = nil
	admin.LastLogin = &now

	token, err := auth.NewAccessToken(admin.ID, admin.Email, string(admin.Level), s.cfg.Auth.JWTSecret, s.cfg.Auth.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("mint access token: %w", err)
	}

	logger.InfoContext(ctx, "Admin login successful", "admin_id", admin.ID)
	return &domain.AdminLoginResult{
		Token:     token,
		Admin:     admin.Summary(),
		LoginTime: now,
	}, nil
}

func (s *adminService) Signup(ctx context.Context, req *domain.AdminSignupRequest, creatorID *int64) (*domain.AdminSignupResult, error) {
	if err := domain.Validate(req); err != nil {
		return nil, err
	}
	if req.Password != req.ConfirmPassword {
		return nil, domain.E(domain.KindPasswordMismatch, "password and confirm password do not match")
	}

	exists, err := s.admins.EmailExists(ctx, req.Email)
	if err != nil {
		return nil, domain.Storage(fmt.Errorf("check email: %w", err))
	}
	if exists {
		return nil, domain.E(domain.KindDuplicateEmail, "email address is already registered")
	}

	level := req.Level
	if level == "" {
		level = domain.LevelAdmin
	}
	if level == domain.LevelRootAdmin {
		rootExists, err := s.admins.RootAdminExists(ctx)
		if err != nil {
			return nil, domain.Storage(fmt.Errorf("check root admin: %w", err))
		}
		// Once a root admin exists, only a root admin may mint another one.
		if rootExists {
			if creatorID == nil {
				return nil, domain.E(domain.KindPermissionDenied, "only a ROOT_ADMIN can create other ROOT_ADMINs")
			}
			creator, err := s.admins.FindByID(ctx, *creatorID)
			if err != nil {
				return nil, domain.Storage(fmt.Errorf("find creator: %w", err))
			}
			if creator == nil || !creator.IsRootAdmin() {
				return nil, domain.E(domain.KindPermissionDenied, "only a ROOT_ADMIN can create other ROOT_ADMINs")
			}
		}
	}

	hash, err := argon2id.CreateHash(req.Password, argon2id.DefaultParams)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	created, first, err := s.admins.Create(ctx, &domain.NewAdmin{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		Phone:        req.Phone,
		Level:        level,
		Status:       domain.AdminPendingApproval,
		CreatedBy:    creatorID,
	})
	if err != nil {
		var de *domain.Error
		if errors.As(err, &de) {
			return nil, de
		}
		return nil, domain.Storage(fmt.Errorf("create admin: %w", err))
	}

	if first {
		logger.InfoContext(ctx, "First ROOT_ADMIN created", "admin_id", created.ID)
	} else {
		logger.InfoContext(ctx, "Admin signed up, pending approval", "admin_id", created.ID, "level", created.Level)
	}
	s.publish(ctx, events.AdminSignedUp, events.AdminLifecycleEvent{
		AdminID: created.ID,
		Email:   created.Email,
		At:      time.Now(),
	})

	return &domain.AdminSignupResult{
		Admin:            created.Summary(),
		RequiresApproval: !first,
	}, nil
}

func (s *adminService) Approve(ctx context.Context, targetID, approverID int64) error {
	approver, err := s.getAdmin(ctx, approverID)
	if err != nil {
		return err
	}
	if !approver.CanManageAdmins() {
		return domain.E(domain.KindPermissionDenied, "you don't have permission to approve admins")
	}

	target, err := s.getAdmin(ctx, targetID)
	if err != nil {
		return err
	}
	if target.Status != domain.AdminPendingApproval {
		return domain.E(domain.KindInvalidState, "admin is not in pending approval status")
	}

	if err := s.admins.UpdateStatus(ctx, targetID, domain.AdminActive); err != nil {
		return domain.Storage(fmt.Errorf("approve admin: %w", err))
	}
	logger.InfoContext(ctx, "Admin approved", "admin_id", targetID, "approved_by", approverID)
	s.publish(ctx, events.AdminApproved, events.AdminLifecycleEvent{
		AdminID: targetID,
		Email:   target.Email,
		ActorID: approverID,
		At:      time.Now(),
	})
	return nil
}

func (s *adminService) Suspend(ctx context.Context, targetID, suspenderID int64) error {
	suspender, err := s.getAdmin(ctx, suspenderID)
	if err != nil {
		return err
	}
	if !suspender.IsRootAdmin() {
		return domain.E(domain.KindPermissionDenied, "only ROOT_ADMIN can suspend other admins")
	}

	target, err := s.getAdmin(ctx, targetID)
	if err != nil {
		return err
	}
	if target.IsRootAdmin() {
		return domain.E(domain.KindInvalidState, "ROOT_ADMIN cannot be suspended")
	}
	if targetID == suspenderID {
		return domain.E(domain.KindSelfAction, "you cannot suspend yourself")
	}

	if err := s.admins.UpdateStatus(ctx, targetID, domain.AdminSuspended); err != nil {
		return domain.Storage(fmt.Errorf("suspend admin: %w", err))
	}
	logger.InfoContext(ctx, "Admin suspended", "admin_id", targetID, "suspended_by", suspenderID)
	s.publish(ctx, events.AdminSuspended, events.AdminLifecycleEvent{
		AdminID: targetID,
		Email:   target.Email,
		ActorID: suspenderID,
		At:      time.Now(),
	})
	return nil
}

func (s *adminService) Update(ctx context.Context, targetID int64, req *domain.AdminUpdateRequest, updaterID int64) (*domain.Admin, error) {
	if err := domain.Validate(req); err != nil {
		return nil, err
	}

	updater, err := s.getAdmin(ctx, updaterID)
	if err != nil {
		return nil, err
	}
	target, err := s.getAdmin(ctx, targetID)
	if err != nil {
		return nil, err
	}

	if !canManage(updater, target) {
		return nil, domain.E(domain.KindPermissionDenied, "you don't have permission to update this admin")
	}

	// Role and status edits are ROOT_ADMIN-only; everyone else may touch
	// name and phone.
	level, status := req.Level, req.Status
	if !updater.IsRootAdmin() {
		level, status = nil, nil
	}
	if status != nil && *status == domain.AdminSuspended && target.IsRootAdmin() {
		return nil, domain.E(domain.KindInvalidState, "ROOT_ADMIN cannot be suspended")
	}

	updated, err := s.admins.UpdateProfile(ctx, targetID, req.Name, req.Phone, level, status)
	if err != nil {
		return nil, domain.Storage(fmt.Errorf("update admin: %w", err))
	}
	if updated == nil {
		return nil, domain.E(domain.KindNotFound, fmt.Sprintf("admin not found with id %d", targetID))
	}
	return updated, nil
}

func (s *adminService) ChangePassword(ctx context.Context, targetID int64, req *domain.PasswordChangeRequest) error {
	if err := domain.Validate(req); err != nil {
		return err
	}

	admin, err := s.getAdmin(ctx, targetID)
	if err != nil {
		return err
	}

	match, err := argon2id.ComparePasswordAndHash(req.CurrentPassword, admin.PasswordHash)
	if err != nil {
		return domain.Storage(fmt.Errorf("verify password: %w", err))
	}
	if !match {
		return domain.E(domain.KindInvalidCredentials, "current password is incorrect")
	}
	if req.NewPassword != req.ConfirmNewPassword {
		return domain.E(domain.KindPasswordMismatch, "new password and confirm password do not match")
	}

	hash, err := argon2id.CreateHash(req.NewPassword, argon2id.DefaultParams)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.admins.UpdatePassword(ctx, targetID, hash); err != nil {
		return domain.Storage(fmt.Errorf("update password: %w", err))
	}
	logger.InfoContext(ctx, "Password changed", "admin_id", targetID)
	return nil
}

func (s *adminService) GetByID(ctx context.Context, id int64) (*domain.Admin, error) {
	return s.getAdmin(ctx, id)
}

func (s *adminService) List(ctx context.Context, p domain.PageRequest, requesterID int64) (*domain.AdminPage, error) {
	requester, err := s.getAdmin(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	p = p.Normalize()

	var (
		admins []domain.Admin
		total  int64
	)
	if requester.IsRootAdmin() {
		admins, total, err = s.admins.List(ctx, p)
	} else {
		// Regular admins only see accounts they created.
		admins, total, err = s.admins.ListCreatedBy(ctx, requesterID, p)
	}
	if err != nil {
		return nil, domain.Storage(fmt.Errorf("list admins: %w", err))
	}

	summaries := make([]domain.AdminSummary, 0, len(admins))
	for i := range admins {
		summaries = append(summaries, admins[i].Summary())
	}
	return &domain.AdminPage{
		Admins:      summaries,
		TotalCount:  total,
		HasMoreData: int64(p.Offset()+len(summaries)) < total,
	}, nil
}

func (s *adminService) PendingApprovals(ctx context.Context) ([]domain.Admin, error) {
	admins, err := s.admins.ListPendingApproval(ctx)
	if err != nil {
		return nil, domain.Storage(fmt.Errorf("list pending admins: %w", err))
	}
	return admins, nil
}

func (s *adminService) RootAdminExists(ctx context.Context) (bool, error) {
	exists, err := s.admins.RootAdminExists(ctx)
	if err != nil {
		return false, domain.Storage(fmt.Errorf("check root admin: %w", err))
	}
	return exists, nil
}

func (s *adminService) CanManage(ctx context.Context, managerID, targetID int64) (bool, error) {
	if managerID == targetID {
		return true, nil
	}
	manager, err := s.getAdmin(ctx, managerID)
	if err != nil {
		return false, err
	}
	target, err := s.getAdmin(ctx, targetID)
	if err != nil {
		return false, err
	}
	return canManage(manager, target), nil
}

// canManage: self-management is always allowed; a ROOT_ADMIN manages every
// non-root account; a regular admin manages the non-root accounts it created.
func canManage(manager, target *domain.Admin) bool {
	if manager.ID == target.ID {
		return true
	}
	if target.IsRootAdmin() {
		return false
	}
	if manager.IsRootAdmin() {
		return true
	}
	return target.CreatedBy != nil && *target.CreatedBy == manager.ID
}

func (s *adminService) getAdmin(ctx context.Context, id int64) (*domain.Admin, error) {
	admin, err := s.admins.FindByID(ctx, id)
	if err != nil {
		return nil, domain.Storage(fmt.Errorf("find admin %d: %w", id, err))
	}
	if admin == nil {
		return nil, domain.E(domain.KindNotFound, fmt.Sprintf("admin not found with id %d", id))
	}
	return admin, nil
}
