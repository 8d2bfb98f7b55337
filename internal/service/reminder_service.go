package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-fees-api/internal/models"
	"github.com/noah-isme/sma-fees-api/pkg/config"
	appErrors "github.com/noah-isme/sma-fees-api/pkg/errors"
)

type reminderBalanceRepository interface {
	ListPendingDue(ctx context.Context, requireDueDate bool, limit int) ([]models.PendingDue, error)
}

type reminderNotificationRepository interface {
	BatchCreate(ctx context.Context, notifications []models.Notification) (int, error)
}

// ReminderRunRequest overrides the configured defaults for one run.
type ReminderRunRequest struct {
	SendAll          *bool             `json:"send_all"`
	DaysThreshold    *int              `json:"days_threshold"`
	IncludeOverdue   *bool             `json:"include_overdue"`
	UpcomingTemplate string            `json:"upcoming_template"`
	OverdueTemplate  string            `json:"overdue_template"`
	Actor            *models.JWTClaims `json:"-"`
	IP               string            `json:"-"`
}

// ReminderRunResult reports one completed run.
type ReminderRunResult struct {
	ReminderCount int       `json:"reminder_count"`
	Timestamp     time.Time `json:"timestamp"`
}

// ReminderService scans pending balances against a threshold configuration
// and emits due-date reminders. It runs on demand only; cadence is the
// caller's concern.
type ReminderService struct {
	balances      reminderBalanceRepository
	notifications reminderNotificationRepository
	metrics       *MetricsService
	activity      *ActivityService
	cfg           config.RemindersConfig
	logger        *zap.Logger
	now           func() time.Time
}

// NewReminderService constructs the reminder scheduler.
func NewReminderService(balances reminderBalanceRepository, notifications reminderNotificationRepository, metrics *MetricsService, activity *ActivityService, cfg config.RemindersConfig, logger *zap.Logger) *ReminderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DaysThreshold <= 0 {
		cfg.DaysThreshold = 7
	}
	if cfg.UpcomingTemplate == "" {
		cfg.UpcomingTemplate = "Your {type} of {amount} is due in {days} day(s)."
	}
	if cfg.OverdueTemplate == "" {
		cfg.OverdueTemplate = "Your {type} of {amount} is {days} day(s) overdue."
	}
	return &ReminderService{
		balances:      balances,
		notifications: notifications,
		metrics:       metrics,
		activity:      activity,
		cfg:           cfg,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Run classifies every pending balance and writes the qualifying reminders as
// one atomic batch. The whole batch commits or the run fails cleanly and can
// be retried in full; reminders already emitted by an earlier run are
// suppressed by the store.
func (s *ReminderService) Run(ctx context.Context, req ReminderRunRequest) (*ReminderRunResult, error) {
	sendAll := false
	if req.SendAll != nil {
		sendAll = *req.SendAll
	}
	threshold := s.cfg.DaysThreshold
	if req.DaysThreshold != nil {
		threshold = *req.DaysThreshold
	}
	if threshold < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "days_threshold must not be negative")
	}
	includeOverdue := s.cfg.IncludeOverdue
	if req.IncludeOverdue != nil {
		includeOverdue = *req.IncludeOverdue
	}
	upcomingTemplate := s.cfg.UpcomingTemplate
	if req.UpcomingTemplate != "" {
		upcomingTemplate = req.UpcomingTemplate
	}
	overdueTemplate := s.cfg.OverdueTemplate
	if req.OverdueTemplate != "" {
		overdueTemplate = req.OverdueTemplate
	}

	pending, err := s.balances.ListPendingDue(ctx, !sendAll, s.cfg.MaxBatchSize)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to scan pending balances")
	}

	today := truncateToDay(s.now())
	var batch []models.Notification
	upcoming, overdue := 0, 0
	for _, due := range pending {
		kind, days, ok := classify(due.DueDate, today, threshold, includeOverdue, sendAll)
		if !ok {
			continue
		}

		template := upcomingTemplate
		bucket := fmt.Sprintf("UPCOMING_%d", threshold)
		title := "Upcoming fee due"
		if kind == models.NotificationKindOverdue {
			template = overdueTemplate
			bucket = "OVERDUE"
			title = "Overdue fee"
			overdue++
		} else {
			upcoming++
		}

		batch = append(batch, models.Notification{
			StudentID:       due.StudentID,
			BalanceID:       due.BalanceID,
			Kind:            kind,
			Title:           title,
			Message:         renderTemplate(template, due.Type, due.Amount, days),
			ThresholdBucket: bucket,
			Status:          models.NotificationStatusUnread,
		})
	}

	created, err := s.notifications.BatchCreate(ctx, batch)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to write reminder batch")
	}

	s.metrics.AddRemindersEmitted(string(models.NotificationKindUpcoming), upcoming)
	s.metrics.AddRemindersEmitted(string(models.NotificationKindOverdue), overdue)
	s.recordActivity(req, created)
	s.logger.Info("reminder run complete",
		zap.Int("scanned", len(pending)),
		zap.Int("qualified", len(batch)),
		zap.Int("created", created),
	)

	return &ReminderRunResult{ReminderCount: created, Timestamp: s.now()}, nil
}

// classify decides the reminder kind for one balance. sendAll forces every
// pending balance into the upcoming bucket regardless of its date.
func classify(dueDate *time.Time, today time.Time, threshold int, includeOverdue, sendAll bool) (models.NotificationKind, int, bool) {
	if sendAll {
		days := 0
		if dueDate != nil {
			days = daysBetween(today, truncateToDay(*dueDate))
		}
		return models.NotificationKindUpcoming, days, true
	}
	if dueDate == nil {
		return "", 0, false
	}
	days := daysBetween(today, truncateToDay(*dueDate))
	switch {
	case days >= 0 && days <= threshold:
		return models.NotificationKindUpcoming, days, true
	case days < 0 && includeOverdue:
		return models.NotificationKindOverdue, days, true
	}
	return "", 0, false
}

func renderTemplate(template, feeType string, amount decimal.Decimal, days int) string {
	if days < 0 {
		days = -days
	}
	r := strings.NewReplacer(
		"{amount}", formatAmount(amount),
		"{type}", feeType,
		"{days}", strconv.Itoa(days),
	)
	return r.Replace(template)
}

// formatAmount renders the amount with thousands separators, keeping the
// fractional part only when present.
func formatAmount(amount decimal.Decimal) string {
	text := amount.StringFixed(2)
	text = strings.TrimSuffix(text, ".00")

	intPart := text
	fracPart := ""
	if i := strings.IndexByte(text, '.'); i >= 0 {
		intPart, fracPart = text[:i], text[i:]
	}
	negative := strings.HasPrefix(intPart, "-")
	if negative {
		intPart = intPart[1:]
	}

	var b strings.Builder
	for i, ch := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(ch)
	}

	out := b.String() + fracPart
	if negative {
		out = "-" + out
	}
	return out
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

func (s *ReminderService) recordActivity(req ReminderRunRequest, created int) {
	if s.activity == nil {
		return
	}
	var actorID *string
	if req.Actor != nil {
		actorID = &req.Actor.UserID
	}
	s.activity.Record(ActivityEntry{
		ActorID:   actorID,
		Action:    models.AuditActionRemindersRun,
		Resource:  "notifications",
		Detail:    map[string]interface{}{"created": created},
		IPAddress: req.IP,
	})
}
