package v1

import (
	"time"

	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain/reminder"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/service"
	"github.com/gin-gonic/gin"
)

type ReminderHandler struct {
	reminders *service.ReminderService
}

func NewReminderHandler(reminders *service.ReminderService) *ReminderHandler {
	return &ReminderHandler{reminders: reminders}
}

type createReminderRequest struct {
	Title     string    `json:"title"`
	Date      time.Time `json:"date"`
	PatientID string    `json:"patient_id"`
}

func (h *ReminderHandler) Create(c *gin.Context) {
	var req createReminderRequest
	if !bindJSON(c, &req) {
		return
	}
	patientID, ok := parseOptionalUUID(c, "patient_id", req.PatientID)
	if !ok {
		return
	}
	rem, err := h.reminders.Create(c.Request.Context(), principal(c), &reminder.CreateReminderCommand{
		Title:     req.Title,
		Date:      req.Date,
		PatientID: patientID,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondCreated(c, toReminderResponse(rem))
}

func (h *ReminderHandler) List(c *gin.Context) {
	rems, err := h.reminders.List(c.Request.Context(), principal(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	out := make([]ReminderResponse, 0, len(rems))
	for _, r := range rems {
		out = append(out, toReminderResponse(r))
	}
	respondOK(c, out)
}

func (h *ReminderHandler) Get(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	rem, err := h.reminders.Get(c.Request.Context(), principal(c), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, toReminderResponse(rem))
}
