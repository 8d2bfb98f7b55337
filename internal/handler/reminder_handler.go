package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-fees-api/internal/service"
	appErrors "github.com/noah-isme/sma-fees-api/pkg/errors"
	"github.com/noah-isme/sma-fees-api/pkg/response"
)

type reminderService interface {
	Run(ctx context.Context, req service.ReminderRunRequest) (*service.ReminderRunResult, error)
}

// ReminderHandler exposes the reminder sweep endpoint.
type ReminderHandler struct {
	reminders reminderService
}

// NewReminderHandler constructs ReminderHandler.
func NewReminderHandler(reminders reminderService) *ReminderHandler {
	return &ReminderHandler{reminders: reminders}
}

// Run godoc
// @Summary Sweep outstanding balances and emit reminder notifications
// @Tags Reminders
// @Accept json
// @Produce json
// @Param payload body service.ReminderRunRequest false "Sweep overrides"
// @Success 200 {object} response.Envelope
// @Router /reminders/run [post]
func (h *ReminderHandler) Run(c *gin.Context) {
	var req service.ReminderRunRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	req.Actor = claimsFromContext(c)
	req.IP = c.ClientIP()

	result, err := h.reminders.Run(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
