package handlers

import (
	"net/http"
	"strconv"

	"github.com/clinichub/clinic-backend/internal/domain"
	"github.com/clinichub/clinic-backend/internal/http/middleware"
	"github.com/clinichub/clinic-backend/internal/notify"
	"github.com/clinichub/clinic-backend/internal/service"
	"github.com/clinichub/clinic-backend/pkg/auth"
	"github.com/clinichub/clinic-backend/pkg/config"
)

type Handlers struct {
	adminService       service.AdminService
	appointmentService service.AppointmentService
	notifications      *notify.Service
	config             *config.Config
}

func New(adminService service.AdminService, appointmentService service.AppointmentService, notifications *notify.Service, cfg *config.Config) *Handlers {
	return &Handlers{
		adminService:       adminService,
		appointmentService: appointmentService,
		notifications:      notifications,
		config:             cfg,
	}
}

func getClaims(r *http.Request) *auth.Claims {
	return middleware.Claims(r)
}

// parsePagination reads the admin list paging parameters.
func parsePagination(r *http.Request) domain.PageRequest {
	p := domain.PageRequest{
		SortBy:  r.URL.Query().Get("sortBy"),
		SortDir: r.URL.Query().Get("sortDir"),
	}
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			p.Page = n
		}
	}
	if v := r.URL.Query().Get("size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			p.Size = n
		}
	}
	return p.Normalize()
}
