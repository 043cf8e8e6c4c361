package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/bankrec_backend/config"
	"github.com/mmdatafocus/bankrec_backend/models"
	"github.com/mmdatafocus/bankrec_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PublishFunc sends one outbox message and returns the broker message id.
type PublishFunc func(ctx context.Context, msg config.PubSubMessage) (string, error)

type OutboxDispatcher struct {
	DB           *gorm.DB
	Logger       *logrus.Logger
	DispatcherID string
	Publish      PublishFunc

	BatchSize      int
	PollInterval   time.Duration
	LockTimeout    time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func NewOutboxDispatcher(db *gorm.DB, logger *logrus.Logger) *OutboxDispatcher {
	return &OutboxDispatcher{
		DB:             db,
		Logger:         logger,
		DispatcherID:   uuid.NewString(),
		Publish:        config.PublishReconciliationEventWithResult,
		BatchSize:      50,
		PollInterval:   500 * time.Millisecond,
		LockTimeout:    30 * time.Second,
		MaxAttempts:    20,
		InitialBackoff: 5 * time.Second,
		MaxBackoff:     10 * time.Minute,
	}
}

func (d *OutboxDispatcher) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	// Outbox rows of every business are claimed.
	ctx = utils.SetSkipTenantScopeInContext(ctx, true)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.dispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.PollInterval):
		}
	}
}

// claim locks ready rows with SKIP LOCKED so several instances can dispatch side by side.
// Rows over the attempt budget go DEAD here and are not returned.
func (d *OutboxDispatcher) claim(ctx context.Context, now time.Time) ([]models.PubSubMessageRecord, error) {
	staleBefore := now.Add(-d.LockTimeout)
	var ready []models.PubSubMessageRecord
	err := d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.
			Where(`(publish_status IN ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?))
				OR (publish_status = ? AND locked_at IS NOT NULL AND locked_at <= ?)`,
				[]string{models.OutboxPublishStatusPending, models.OutboxPublishStatusFailed}, now,
				models.OutboxPublishStatusProcessing, staleBefore).
			Order("id ASC").
			Limit(d.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Find(&ready).Error
		if err != nil {
			return err
		}

		claimed := ready[:0]
		for _, rec := range ready {
			if d.exhausted(rec.PublishAttempts) {
				msg := fmt.Sprintf("max publish attempts exceeded (%d)", d.MaxAttempts)
				if err := tx.Model(&models.PubSubMessageRecord{}).Where("id = ?", rec.ID).
					Updates(deadUpdates(msg)).Error; err != nil {
					return err
				}
				continue
			}
			rec.PublishStatus = models.OutboxPublishStatusProcessing
			rec.PublishAttempts++
			if err := tx.Model(&models.PubSubMessageRecord{}).Where("id = ?", rec.ID).Updates(map[string]interface{}{
				"publish_status":     rec.PublishStatus,
				"locked_at":          &now,
				"locked_by":          &d.DispatcherID,
				"publish_attempts":   gorm.Expr("publish_attempts + 1"),
				"last_publish_error": nil,
				"next_attempt_at":    nil,
			}).Error; err != nil {
				return err
			}
			claimed = append(claimed, rec)
		}
		ready = claimed
		return nil
	})
	return ready, err
}

func (d *OutboxDispatcher) dispatchOnce(ctx context.Context) int {
	if d.DB == nil {
		return 0
	}
	now := time.Now().UTC()
	claimed, err := d.claim(ctx, now)
	if err != nil {
		if d.Logger != nil {
			config.LogError(d.Logger, "outboxDispatcher.go", "dispatchOnce", "claim", nil, err)
		}
		return 0
	}

	for _, rec := range claimed {
		pubID, pubErr := d.Publish(ctx, models.ConvertToPubSubMessage(rec))
		if pubErr != nil {
			d.markPublishFailed(ctx, rec, pubErr)
			continue
		}
		d.markPublishSent(ctx, rec.ID, pubID, now)
	}
	return len(claimed)
}

func (d *OutboxDispatcher) exhausted(attempts int) bool {
	return d.MaxAttempts > 0 && attempts >= d.MaxAttempts
}

// backoff doubles from InitialBackoff per attempt, capped at MaxBackoff.
func (d *OutboxDispatcher) backoff(attempt int) time.Duration {
	wait := d.InitialBackoff
	for i := 1; i < attempt; i++ {
		wait *= 2
		if d.MaxBackoff > 0 && wait >= d.MaxBackoff {
			return d.MaxBackoff
		}
	}
	return wait
}

func deadUpdates(msg string) map[string]interface{} {
	return map[string]interface{}{
		"publish_status":     models.OutboxPublishStatusDead,
		"last_publish_error": &msg,
		"next_attempt_at":    nil,
		"locked_at":          nil,
		"locked_by":          nil,
	}
}

func (d *OutboxDispatcher) markPublishSent(ctx context.Context, recordID int, pubsubMsgID string, now time.Time) {
	id := pubsubMsgID
	err := d.DB.WithContext(ctx).Model(&models.PubSubMessageRecord{}).
		Where("id = ?", recordID).
		Updates(map[string]interface{}{
			"publish_status":     models.OutboxPublishStatusSent,
			"published_at":       &now,
			"pub_sub_message_id": &id,
			"locked_at":          nil,
			"locked_by":          nil,
			"next_attempt_at":    nil,
		}).Error
	d.logStatusUpdate("markPublishSent", recordID, err)
}

// logStatusUpdate reports a lost status write; the row stays PROCESSING until the stale lock is reclaimed.
func (d *OutboxDispatcher) logStatusUpdate(funcName string, recordID int, err error) {
	if err == nil || d.Logger == nil {
		return
	}
	config.LogError(d.Logger, "outboxDispatcher.go", funcName, "update publish status",
		map[string]interface{}{"record_id": recordID}, err)
}

func (d *OutboxDispatcher) markPublishFailed(ctx context.Context, rec models.PubSubMessageRecord, err error) {
	db := d.DB.WithContext(ctx).Model(&models.PubSubMessageRecord{}).Where("id = ?", rec.ID)
	msg := err.Error()
	fields := logrus.Fields{
		"module":         "outboxDispatcher.go",
		"business_id":    rec.BusinessId,
		"record_id":      rec.ID,
		"reference_type": rec.ReferenceType,
		"attempt":        rec.PublishAttempts,
	}

	if d.exhausted(rec.PublishAttempts) {
		d.logStatusUpdate("markPublishFailed", rec.ID, db.Updates(deadUpdates(msg)).Error)
		if d.Logger != nil {
			d.Logger.WithFields(fields).Error("outbox publish moved to DEAD after max attempts: " + msg)
		}
		return
	}

	next := time.Now().UTC().Add(d.backoff(rec.PublishAttempts))
	updateErr := db.Updates(map[string]interface{}{
		"publish_status":     models.OutboxPublishStatusFailed,
		"last_publish_error": &msg,
		"next_attempt_at":    &next,
		"locked_at":          nil,
		"locked_by":          nil,
	}).Error
	d.logStatusUpdate("markPublishFailed", rec.ID, updateErr)
	if d.Logger != nil {
		fields["next_attempt_at"] = next.Format(time.RFC3339Nano)
		d.Logger.WithFields(fields).Error("outbox publish failed: " + msg)
	}
}
