package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/clinichub/clinic-backend/internal/domain"
	"github.com/clinichub/clinic-backend/internal/http/response"
	"github.com/clinichub/clinic-backend/pkg/auth"
)

// Login handles admin authentication
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.AdminLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}

	result, err := h.adminService.Login(r.Context(), &req)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, result)
}

// Signup handles admin registration. The creator, when the request carries a
// valid bearer token, is the authenticated admin; anonymous signups have none.
func (h *Handlers) Signup(w http.ResponseWriter, r *http.Request) {
	var req domain.AdminSignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}

	var creatorID *int64
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if claims, err := auth.Parse(token, h.config.Auth.JWTSecret); err == nil {
			creatorID = &claims.Sub
		}
	}

	result, err := h.adminService.Signup(r.Context(), &req, creatorID)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, result)
}

// ListAdmins handles the paginated admin listing
func (h *Handlers) ListAdmins(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	if claims == nil {
		response.Error(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	page, err := h.adminService.List(r.Context(), parsePagination(r), claims.Sub)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, page)
}

// PendingAdmins handles listing admins awaiting approval
func (h *Handlers) PendingAdmins(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	if claims == nil || !claims.IsRootAdmin() {
		response.Error(w, http.StatusForbidden, "ROOT_ADMIN access required")
		return
	}

	admins, err := h.adminService.PendingApprovals(r.Context())
	if err != nil {
		response.DomainError(w, err)
		return
	}

	summaries := make([]domain.AdminSummary, 0, len(admins))
	for i := range admins {
		summaries = append(summaries, admins[i].Summary())
	}
	response.JSON(w, http.StatusOK, map[string]interface{}{"admins": summaries})
}

// RootAdminExists reports whether the bootstrap signup has happened yet
func (h *Handlers) RootAdminExists(w http.ResponseWriter, r *http.Request) {
	exists, err := h.adminService.RootAdminExists(r.Context())
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

// GetAdmin handles fetching a single admin
func (h *Handlers) GetAdmin(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	admin, err := h.adminService.GetByID(r.Context(), id)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, admin.Summary())
}

// UpdateAdmin handles profile and role updates
func (h *Handlers) UpdateAdmin(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	if claims == nil {
		response.Error(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	var req domain.AdminUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}

	updated, err := h.adminService.Update(r.Context(), id, &req, claims.Sub)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, updated.Summary())
}

// ApproveAdmin handles the approval step of the signup workflow
func (h *Handlers) ApproveAdmin(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	if claims == nil {
		response.Error(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.adminService.Approve(r.Context(), id, claims.Sub); err != nil {
		response.DomainError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]string{"message": "Admin approved successfully"})
}

// SuspendAdmin handles suspending an admin account
func (h *Handlers) SuspendAdmin(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	if claims == nil {
		response.Error(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.adminService.Suspend(r.Context(), id, claims.Sub); err != nil {
		response.DomainError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]string{"message": "Admin suspended successfully"})
}

// ChangePassword handles an admin changing their own password
func (h *Handlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	if claims == nil {
		response.Error(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if claims.Sub != id {
		response.Error(w, http.StatusForbidden, "You can only change your own password")
		return
	}

	var req domain.PasswordChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}

	if err := h.adminService.ChangePassword(r.Context(), id, &req); err != nil {
		response.DomainError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]string{"message": "Password changed successfully"})
}

func idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid "+name+" parameter")
		return 0, false
	}
	return id, true
}
