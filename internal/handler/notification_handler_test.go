package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-fees-api/internal/middleware"
	"github.com/noah-isme/sma-fees-api/internal/models"
	appErrors "github.com/noah-isme/sma-fees-api/pkg/errors"
)

type notificationServiceMock struct {
	items      []models.NotificationDetail
	markErr    error
	lastFilter models.NotificationFilter
	marked     []string
	lastActor  *models.JWTClaims
}

func (m *notificationServiceMock) List(ctx context.Context, filter models.NotificationFilter) ([]models.NotificationDetail, *models.Pagination, error) {
	m.lastFilter = filter
	return m.items, &models.Pagination{Page: 1, PageSize: 20, TotalCount: len(m.items)}, nil
}

func (m *notificationServiceMock) MarkRead(ctx context.Context, id string, actor *models.JWTClaims, ip string) error {
	if m.markErr != nil {
		return m.markErr
	}
	m.marked = append(m.marked, id)
	m.lastActor = actor
	return nil
}

func TestNotificationHandlerListParsesFilters(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &notificationServiceMock{}
	handler := NewNotificationHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/notifications?studentId=stu-1&status=unread&kind=overdue", nil)
	c.Request = req

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "stu-1", mockSvc.lastFilter.StudentID)
	assert.Equal(t, models.NotificationStatusUnread, mockSvc.lastFilter.Status)
	assert.Equal(t, models.NotificationKindOverdue, mockSvc.lastFilter.Kind)
}

func TestNotificationHandlerMarkRead(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &notificationServiceMock{}
	handler := NewNotificationHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPut, "/notifications/not-1/read", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "not-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "usr-1", Role: models.RoleStudent})

	handler.MarkRead(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"not-1"}, mockSvc.marked)
	require.NotNil(t, mockSvc.lastActor)
	assert.Equal(t, "usr-1", mockSvc.lastActor.UserID)
}

func TestNotificationHandlerMarkReadConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &notificationServiceMock{markErr: appErrors.Clone(appErrors.ErrConflict, "notification is not unread")}
	handler := NewNotificationHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPut, "/notifications/not-1/read", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "not-1"}}

	handler.MarkRead(c)
	require.Equal(t, http.StatusConflict, w.Code)
}
