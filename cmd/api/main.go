package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/clinichub/clinic-backend/internal/http/handlers"
	mw "github.com/clinichub/clinic-backend/internal/http/middleware"
	"github.com/clinichub/clinic-backend/internal/notify"
	"github.com/clinichub/clinic-backend/internal/repo/postgres"
	"github.com/clinichub/clinic-backend/internal/service"
	"github.com/clinichub/clinic-backend/pkg/config"
	"github.com/clinichub/clinic-backend/pkg/database"
	"github.com/clinichub/clinic-backend/pkg/events"
	"github.com/clinichub/clinic-backend/pkg/logger"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Error("Invalid Redis URL", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	// Repositories
	adminsRepo := postgres.NewAdminsRepo(pool)
	appointmentsRepo := postgres.NewAppointmentsRepo(pool)
	usersRepo := postgres.NewUsersRepo(pool)
	notificationsRepo := postgres.NewNotificationsRepo(pool)

	// Notification dispatch
	var mailer notify.Mailer
	if cfg.Email.DevMode {
		mailer = notify.NewDevMailer()
	} else {
		mailer, err = notify.NewMailerSend(cfg.Email.MailerSendKey, cfg.Email.FromName, cfg.Email.FromAddress)
		if err != nil {
			logger.Error("Failed to configure mailer", "error", err)
			os.Exit(1)
		}
	}
	notifier := notify.NewService(notificationsRepo, usersRepo, eventBus, mailer)

	// Services
	adminService := service.NewAdminService(adminsRepo, eventBus, cfg)
	appointmentService := service.NewAppointmentService(appointmentsRepo, usersRepo, notifier, eventBus)

	h := handlers.New(adminService, appointmentService, notifier, cfg)
	authLimiter := mw.NewRateLimiter(redisClient, 10, time.Minute)

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.Logging)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","timestamp":"` + time.Now().Format(time.RFC3339) + `"}`))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Route("/admins", func(r chi.Router) {
			r.With(authLimiter.Limit).Post("/login", h.Login)
			r.With(authLimiter.Limit).Post("/signup", h.Signup)
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
			r.Put("/{id}/notes", h.UpdateAppointmentNotes)

			r.Route("/doctor/{doctorID}", func(r chi.Router) {
				r.Get("/", h.ListDoctorAppointments)
				r.Get("/pending", h.PendingAppointments)
				r.Get("/upcoming", h.UpcomingAppointments)
				r.Get("/date/{date}", h.AppointmentsByDate)
				r.Get("/statistics", h.AppointmentStatistics)
			})
			r.Get("/patient/{patientID}", h.ListPatientAppointments)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/user/{userID}", h.ListNotifications)
			r.Post("/{id}/read", h.MarkNotificationRead)
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down API server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("API server shutdown error", "error", err)
		}
	}()

	logger.Info("Starting API server", "port", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("API server error", "error", err)
		os.Exit(1)
	}
}
