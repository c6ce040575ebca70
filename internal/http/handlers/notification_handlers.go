package handlers

import (
	"net/http"

	"github.com/clinichub/clinic-backend/internal/domain"
	"github.com/clinichub/clinic-backend/internal/http/response"
)

// ListNotifications handles a user's notification feed, newest first
func (h *Handlers) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := idParam(w, r, "userID")
	if !ok {
		return
	}

	notifications, err := h.notifications.ListForUser(r.Context(), userID)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	if notifications == nil {
		notifications = []domain.Notification{}
	}
	response.JSON(w, http.StatusOK, map[string]interface{}{
		"notifications": notifications,
		"count":         len(notifications),
	})
}

// MarkNotificationRead handles marking one notification as read
func (h *Handlers) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	marked, err := h.notifications.MarkRead(r.Context(), id)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	if !marked {
		response.Error(w, http.StatusNotFound, "Notification not found or already read")
		return
	}
	response.JSON(w, http.StatusOK, map[string]string{"message": "Notification marked as read"})
}
