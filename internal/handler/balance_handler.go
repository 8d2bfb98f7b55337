package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-fees-api/internal/models"
	"github.com/noah-isme/sma-fees-api/internal/service"
	appErrors "github.com/noah-isme/sma-fees-api/pkg/errors"
	"github.com/noah-isme/sma-fees-api/pkg/response"
)

type balanceService interface {
	Create(ctx context.Context, req service.CreateBalanceRequest) (*models.Balance, error)
	Get(ctx context.Context, id string) (*models.Balance, error)
	List(ctx context.Context, filter models.BalanceFilter) ([]models.Balance, *models.Pagination, error)
	Cancel(ctx context.Context, id string, actor *models.JWTClaims, ip string) (*models.Balance, error)
}

type issuanceService interface {
	IssueFees(ctx context.Context, req service.IssueFeesRequest) (*service.IssueFeesResult, error)
}

// BalanceHandler exposes balance and bulk issuance endpoints.
type BalanceHandler struct {
	balances balanceService
	issuance issuanceService
}

// NewBalanceHandler constructs BalanceHandler.
func NewBalanceHandler(balances balanceService, issuance issuanceService) *BalanceHandler {
	return &BalanceHandler{balances: balances, issuance: issuance}
}

// BulkIssue godoc
// @Summary Issue a fee to a roster of students
// @Tags Balances
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "Replay suppression token"
// @Param payload body service.IssueFeesRequest true "Issuance payload"
// @Success 201 {object} response.Envelope
// @Router /balances/bulk [post]
func (h *BalanceHandler) BulkIssue(c *gin.Context) {
	var req service.IssueFeesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	req.Actor = claimsFromContext(c)
	req.IP = c.ClientIP()

	result, err := h.issuance.IssueFees(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Create godoc
// @Summary Add a single balance
// @Tags Balances
// @Accept json
// @Produce json
// @Param payload body service.CreateBalanceRequest true "Balance payload"
// @Success 201 {object} response.Envelope
// @Router /balances [post]
func (h *BalanceHandler) Create(c *gin.Context) {
	var req service.CreateBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.Actor = claimsFromContext(c)
	req.IP = c.ClientIP()

	balance, err := h.balances.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, balance)
}

// List godoc
// @Summary List balances
// @Tags Balances
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param status query string false "Filter by status"
// @Param type query string false "Filter by fee type"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /balances [get]
func (h *BalanceHandler) List(c *gin.Context) {
	var filter models.BalanceFilter
	filter.StudentID = c.Query("studentId")
	filter.Status = models.BalanceStatus(strings.ToUpper(c.Query("status")))
	filter.Type = c.Query("type")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	balances, pagination, err := h.balances.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, balances, pagination)
}

// Get godoc
// @Summary Get a balance
// @Tags Balances
// @Produce json
// @Param id path string true "Balance ID"
// @Success 200 {object} response.Envelope
// @Router /balances/{id} [get]
func (h *BalanceHandler) Get(c *gin.Context) {
	balance, err := h.balances.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, balance, nil)
}

// Cancel godoc
// @Summary Cancel a pending balance
// @Tags Balances
// @Produce json
// @Param id path string true "Balance ID"
// @Success 200 {object} response.Envelope
// @Router /balances/{id}/cancel [put]
func (h *BalanceHandler) Cancel(c *gin.Context) {
	balance, err := h.balances.Cancel(c.Request.Context(), c.Param("id"), claimsFromContext(c), c.ClientIP())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, balance, nil)
}
