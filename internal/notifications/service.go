// Package notifications persists per-user notifications and fans out their
// row changes. Public Service methods never return errors: failures are
// logged and mapped to an empty, zero or false result.
package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/learnhub/internal/changefeed"
	"github.com/charlesng35/learnhub/internal/models"
	"github.com/charlesng35/learnhub/pkg/logger"
	"github.com/charlesng35/learnhub/pkg/metrics"
)

// Table is the change-feed scope for notification rows.
const Table = "notifications"

// Service manages notifications and per-user live subscriptions.
type Service struct {
	db       *gorm.DB
	feed     *changefeed.Feed[models.Notification]
	registry *Registry
	log      *zap.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithRegistry injects the channel registry, e.g. one shared by several services in tests.
func WithRegistry(r *Registry) Option {
	return func(s *Service) {
		if r != nil {
			s.registry = r
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a Service. A nil feed gets a private feed.
func NewService(db *gorm.DB, feed *changefeed.Feed[models.Notification], opts ...Option) (*Service, error) {
	if db == nil {
		return nil, errors.New("notification service: db is required")
	}
	if feed == nil {
		feed = changefeed.New[models.Notification](Table)
	}
	svc := &Service{
		db:       db,
		feed:     feed,
		registry: NewRegistry(),
		log:      logger.WithModule("notifications"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Feed exposes the change feed the service publishes to.
func (s *Service) Feed() *changefeed.Feed[models.Notification] {
	return s.feed
}

// Registry exposes the channel registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Load fetches a user's notifications newest first and reports failures.
func (s *Service) Load(ctx context.Context, userID string, opts ListOptions) ([]models.Notification, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("user id is required")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if opts.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}
	if priority := strings.TrimSpace(opts.Priority); priority != "" {
		query = query.Where("priority = ?", priority)
	}

	var rows []models.Notification
	if err := query.Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return rows, nil
}

// GetNotifications returns a user's notifications newest first, or an empty slice on failure.
func (s *Service) GetNotifications(ctx context.Context, userID string, opts ListOptions) []models.Notification {
	rows, err := s.Load(ctx, userID, opts)
	if err != nil {
		s.fail("get_notifications", err, zap.String("user_id", userID))
		return []models.Notification{}
	}
	return rows
}

// GetUnreadCount counts a user's unread notifications, or returns 0 on failure.
func (s *Service) GetUnreadCount(ctx context.Context, userID string) int64 {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error; err != nil {
		s.fail("get_unread_count", err, zap.String("user_id", userID))
		return 0
	}
	return count
}

// Owner returns the owning user id of a notification.
func (s *Service) Owner(ctx context.Context, id string) (string, error) {
	row, err := s.find(ctx, id)
	if err != nil {
		return "", err
	}
	return row.UserID, nil
}

// MarkAsRead sets is_read and read_at on one notification. Marking an
// already-read notification succeeds without publishing a change.
func (s *Service) MarkAsRead(ctx context.Context, id string) bool {
	row, err := s.find(ctx, id)
	if err != nil {
		s.fail("mark_as_read", err, zap.String("notification_id", id))
		return false
	}
	if row.IsRead {
		return true
	}

	old := row
	now := s.now().UTC()
	if err := s.db.WithContext(ctx).Model(&row).Updates(map[string]any{
		"is_read":    true,
		"read_at":    now,
		"updated_at": now,
	}).Error; err != nil {
		s.fail("mark_as_read", err, zap.String("notification_id", id))
		return false
	}
	row.IsRead = true
	row.ReadAt = &now
	row.UpdatedAt = now

	s.publish(changefeed.Update, row.UserID, &row, &old)
	return true
}

// MarkAllAsRead marks every unread notification of a user as read and
// publishes one update per changed row.
func (s *Service) MarkAllAsRead(ctx context.Context, userID string) bool {
	now := s.now().UTC()
	var changed []models.Notification

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND is_read = ?", userID, false).
			Find(&changed).Error; err != nil {
			return err
		}
		if len(changed) == 0 {
			return nil
		}
		ids := make([]string, 0, len(changed))
		for _, row := range changed {
			ids = append(ids, row.ID)
		}
		return tx.Model(&models.Notification{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"is_read":    true,
				"read_at":    now,
				"updated_at": now,
			}).Error
	})
	if err != nil {
		s.fail("mark_all_as_read", err, zap.String("user_id", userID))
		return false
	}

	for i := range changed {
		old := changed[i]
		row := changed[i]
		row.IsRead = true
		row.ReadAt = &now
		row.UpdatedAt = now
		s.publish(changefeed.Update, row.UserID, &row, &old)
	}
	return true
}

// CreateNotification persists one notification and publishes an insert.
// It returns nil on failure.
func (s *Service) CreateNotification(ctx context.Context, input CreateInput) *models.Notification {
	row, err := buildNotification(input)
	if err != nil {
		s.fail("create_notification", err, zap.String("user_id", input.UserID))
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		s.fail("create_notification", err, zap.String("user_id", input.UserID))
		return nil
	}

	metrics.NotificationsCreated.WithLabelValues(row.Type).Inc()
	s.publish(changefeed.Insert, row.UserID, &row, nil)
	return &row
}

// SendBulkNotifications persists every input in one transaction. Each entry
// gets a fresh id, so retrying a call creates duplicates. It returns an empty
// slice on failure.
func (s *Service) SendBulkNotifications(ctx context.Context, inputs []CreateInput) []models.Notification {
	if len(inputs) == 0 {
		return []models.Notification{}
	}

	rows := make([]models.Notification, 0, len(inputs))
	for i, input := range inputs {
		row, err := buildNotification(input)
		if err != nil {
			s.fail("send_bulk_notifications", fmt.Errorf("entry %d: %w", i, err))
			return []models.Notification{}
		}
		rows = append(rows, row)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
	if err != nil {
		s.fail("send_bulk_notifications", err, zap.Int("count", len(rows)))
		return []models.Notification{}
	}

	for i := range rows {
		metrics.NotificationsCreated.WithLabelValues(rows[i].Type).Inc()
		row := rows[i]
		s.publish(changefeed.Insert, row.UserID, &row, nil)
	}
	return rows
}

// DeleteNotification removes one notification and publishes a delete.
func (s *Service) DeleteNotification(ctx context.Context, id string) bool {
	row, err := s.find(ctx, id)
	if err != nil {
		s.fail("delete_notification", err, zap.String("notification_id", id))
		return false
	}

	result := s.db.WithContext(ctx).Delete(&models.Notification{}, "id = ?", row.ID)
	if result.Error != nil {
		s.fail("delete_notification", result.Error, zap.String("notification_id", id))
		return false
	}
	if result.RowsAffected == 0 {
		s.fail("delete_notification", ErrNotFound, zap.String("notification_id", id))
		return false
	}

	s.publish(changefeed.Delete, row.UserID, nil, &row)
	return true
}

// Subscribe opens the live channel for userID. An existing subscription for
// the same user is torn down first; its callbacks never fire again.
func (s *Service) Subscribe(userID string, handlers Handlers) *Subscription {
	return SubscribeFeed(s.feed, s.registry, userID, handlers)
}

// SubscribeFeed attaches handlers to the changes of userID on feed and
// registers the handle in registry, replacing any previous holder of the
// user's channel.
func SubscribeFeed(feed *changefeed.Feed[models.Notification], registry *Registry, userID string, handlers Handlers) *Subscription {
	sub := &Subscription{
		channel:  ChannelName(userID),
		userID:   userID,
		handlers: handlers,
		registry: registry,
		done:     make(chan struct{}),
	}
	// The previous holder is closed before the new listener exists, so no
	// change reaches both.
	if prev := registry.swap(sub.channel, sub); prev != nil {
		prev.Unsubscribe()
	}
	sub.attach(feed.Listen(userID, func(change changefeed.Change[models.Notification]) {
		dispatch(sub, change)
	}))
	return sub
}

func dispatch(sub *Subscription, change changefeed.Change[models.Notification]) {
	if !sub.Active() {
		return
	}
	h := sub.handlers
	switch change.Type {
	case changefeed.Insert:
		if h.OnInsert != nil && change.New != nil {
			h.OnInsert(*change.New)
		}
	case changefeed.Update:
		if h.OnUpdate != nil && change.New != nil {
			h.OnUpdate(*change.New)
		}
	case changefeed.Delete:
		if h.OnDelete != nil && change.Old != nil {
			h.OnDelete(*change.Old)
		}
	}
}

// GetNotificationStats aggregates notifications created within r across all
// users. It returns zeroed stats on failure.
func (s *Service) GetNotificationStats(ctx context.Context, r TimeRange) Stats {
	since := s.now().UTC().Add(-r.Duration())

	type bucket struct {
		Type     string
		Priority string
		IsRead   bool
		Count    int64
	}
	var buckets []bucket
	if err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Select("type, priority, is_read, COUNT(*) AS count").
		Where("created_at >= ?", since).
		Group("type, priority, is_read").
		Scan(&buckets).Error; err != nil {
		s.fail("get_notification_stats", err, zap.String("range", string(r)))
		return emptyStats()
	}

	stats := emptyStats()
	var read int64
	for _, b := range buckets {
		stats.Total += b.Count
		stats.ByType[b.Type] += b.Count
		stats.ByPriority[b.Priority] += b.Count
		if b.IsRead {
			read += b.Count
		}
	}
	if stats.Total > 0 {
		stats.ReadPercentage = float64(read) / float64(stats.Total) * 100
	}
	return stats
}

// CleanupOldNotifications deletes notifications created more than daysOld
// days ago (30 when daysOld <= 0) and returns the number removed.
func (s *Service) CleanupOldNotifications(ctx context.Context, daysOld int) int64 {
	if daysOld <= 0 {
		daysOld = defaultRetention
	}
	cutoff := s.now().UTC().AddDate(0, 0, -daysOld)

	var expired []models.Notification
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("created_at < ?", cutoff).Find(&expired).Error; err != nil {
			return err
		}
		if len(expired) == 0 {
			return nil
		}
		ids := make([]string, 0, len(expired))
		for _, row := range expired {
			ids = append(ids, row.ID)
		}
		return tx.Where("id IN ?", ids).Delete(&models.Notification{}).Error
	})
	if err != nil {
		s.fail("cleanup_old_notifications", err, zap.Int("days_old", daysOld))
		return 0
	}

	for i := range expired {
		row := expired[i]
		s.publish(changefeed.Delete, row.UserID, nil, &row)
	}
	if len(expired) > 0 {
		s.log.Info("purged old notifications", zap.Int("count", len(expired)), zap.Time("cutoff", cutoff))
	}
	return int64(len(expired))
}

// Cleanup tears down every open subscription.
func (s *Service) Cleanup() {
	s.registry.Close()
}

func (s *Service) find(ctx context.Context, id string) (models.Notification, error) {
	var row models.Notification
	id = strings.TrimSpace(id)
	if id == "" {
		return row, ErrNotFound
	}
	err := s.db.WithContext(ctx).Take(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return row, ErrNotFound
	}
	if err != nil {
		return row, fmt.Errorf("load notification: %w", err)
	}
	return row, nil
}

func (s *Service) publish(event changefeed.EventType, ownerID string, newRow, oldRow *models.Notification) {
	s.feed.Publish(changefeed.Change[models.Notification]{
		Table:   Table,
		Type:    event,
		OwnerID: ownerID,
		New:     newRow,
		Old:     oldRow,
		At:      s.now().UTC(),
	})
}

func (s *Service) fail(op string, err error, fields ...zap.Field) {
	metrics.NotificationServiceErrors.WithLabelValues(op).Inc()
	fields = append(fields, zap.String("operation", op), zap.Error(err))
	if errors.Is(err, ErrNotFound) {
		s.log.Warn("notification not found", fields...)
		return
	}
	s.log.Error("notification operation failed", fields...)
}

func buildNotification(input CreateInput) (models.Notification, error) {
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return models.Notification{}, errors.New("user id is required")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return models.Notification{}, errors.New("title is required")
	}

	notificationType := defaultIfEmpty(input.Type, models.NotificationTypeInfo)
	if !slices.Contains(models.NotificationTypes(), notificationType) {
		return models.Notification{}, fmt.Errorf("unsupported notification type %q", notificationType)
	}
	priority := defaultIfEmpty(input.Priority, models.NotificationPriorityMedium)
	if !slices.Contains(models.NotificationPriorities(), priority) {
		return models.Notification{}, fmt.Errorf("unsupported notification priority %q", priority)
	}

	row := models.Notification{
		UserID:    userID,
		Title:     title,
		Message:   strings.TrimSpace(input.Message),
		Type:      notificationType,
		Priority:  priority,
		ActionURL: strings.TrimSpace(input.ActionURL),
	}
	if len(input.Metadata) > 0 {
		data, err := json.Marshal(input.Metadata)
		if err != nil {
			return models.Notification{}, fmt.Errorf("marshal metadata: %w", err)
		}
		row.Metadata = datatypes.JSON(data)
	}
	return row, nil
}

func defaultIfEmpty(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	return value
}
