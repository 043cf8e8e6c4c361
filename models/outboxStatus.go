package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/bankrec_backend/config"
	"github.com/mmdatafocus/bankrec_backend/utils"
	"gorm.io/gorm"
)

// OutboxStatus is the ops view of the latest outbox row for a statement line or batch.
type OutboxStatus struct {
	RecordId         int                 `json:"record_id"`
	ReferenceType    OutboxReferenceType `json:"reference_type"`
	ReferenceId      int                 `json:"reference_id"`
	Action           OutboxAction        `json:"action"`
	PublishStatus    string              `json:"publish_status"`
	PublishAttempts  int                 `json:"publish_attempts"`
	NextAttemptAt    *time.Time          `json:"next_attempt_at"`
	LastPublishError *string             `json:"last_publish_error"`
	CreatedAt        time.Time           `json:"created_at"`
	PublishedAt      *time.Time          `json:"published_at"`
}

func GetOutboxStatus(ctx context.Context, referenceType OutboxReferenceType, referenceId int) (*OutboxStatus, error) {
	businessId, err := utils.RequireBusinessId(ctx)
	if err != nil {
		return nil, err
	}

	var rec PubSubMessageRecord
	if err := config.GetDB().WithContext(ctx).
		Where("business_id = ? AND reference_type = ? AND reference_id = ?", businessId, referenceType, referenceId).
		Order("id DESC").
		First(&rec).Error; err != nil {
		return nil, err
	}

	return &OutboxStatus{
		RecordId:         rec.ID,
		ReferenceType:    rec.ReferenceType,
		ReferenceId:      rec.ReferenceId,
		Action:           rec.Action,
		PublishStatus:    rec.PublishStatus,
		PublishAttempts:  rec.PublishAttempts,
		NextAttemptAt:    rec.NextAttemptAt,
		LastPublishError: rec.LastPublishError,
		CreatedAt:        rec.CreatedAt,
		PublishedAt:      rec.PublishedAt,
	}, nil
}

// ReplayOutbox puts FAILED and DEAD rows of a reference back in the dispatch queue with a fresh attempt budget.
func ReplayOutbox(ctx context.Context, referenceType OutboxReferenceType, referenceId int) (*OutboxStatus, error) {
	businessId, err := utils.RequireBusinessId(ctx)
	if err != nil {
		return nil, err
	}

	res := config.GetDB().WithContext(ctx).
		Model(&PubSubMessageRecord{}).
		Where("business_id = ? AND reference_type = ? AND reference_id = ? AND publish_status IN ?",
			businessId, referenceType, referenceId,
			[]string{OutboxPublishStatusFailed, OutboxPublishStatusDead}).
		Updates(map[string]interface{}{
			"locked_at":        nil,
			"locked_by":        nil,
			"publish_status":   OutboxPublishStatusPending,
			"publish_attempts": 0,
			"next_attempt_at":  nil,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return GetOutboxStatus(ctx, referenceType, referenceId)
}

// ParseOutboxReferenceType accepts the reference types the ops endpoint can replay.
func ParseOutboxReferenceType(s string) (OutboxReferenceType, error) {
	switch t := OutboxReferenceType(s); t {
	case OutboxReferenceStatementLine, OutboxReferenceBatchPayment:
		return t, nil
	}
	return "", errors.New("unknown outbox reference type " + s)
}
