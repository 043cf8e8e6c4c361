package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/bankrec_backend/config"
	"github.com/mmdatafocus/bankrec_backend/utils"
	"gorm.io/gorm"
)

// Outbox publish statuses for PubSubMessageRecord.PublishStatus.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

type OutboxReferenceType string

const (
	OutboxReferenceStatementLine OutboxReferenceType = "STATEMENT_LINE"
	OutboxReferenceBatchPayment  OutboxReferenceType = "BATCH_PAYMENT"
)

type OutboxAction string

const (
	OutboxActionReconciled  OutboxAction = "RECONCILED"
	OutboxActionStateChange OutboxAction = "STATE_CHANGED"
)

// PubSubMessageRecord is the transactional outbox row. It is written in the same transaction
// as the journal entry it describes and published by the dispatcher after commit.
type PubSubMessageRecord struct {
	ID                  int                 `gorm:"primary_key;index:idx_outbox_dispatch,priority:3" json:"id"`
	BusinessId          string              `gorm:"size:64;not null;index" json:"business_id"`
	TransactionDateTime time.Time           `gorm:"index;not null" json:"transaction_date_time"`
	ReferenceId         int                 `gorm:"index" json:"reference_id"`
	ReferenceType       OutboxReferenceType `gorm:"size:32;not null" json:"reference_type"`
	Action              OutboxAction        `gorm:"size:32;not null" json:"action"`
	Payload             []byte              `gorm:"type:blob" json:"payload"`
	PublishStatus       string              `gorm:"size:20;index;not null;default:'PENDING';index:idx_outbox_dispatch,priority:1" json:"publish_status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	PublishedAt         *time.Time          `gorm:"index" json:"published_at"`
	PubSubMessageId     *string             `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts     int                 `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt       *time.Time          `gorm:"index;index:idx_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt            *time.Time          `gorm:"index" json:"locked_at"`
	LockedBy            *string             `gorm:"size:100" json:"locked_by"`
	LastPublishError    *string             `gorm:"type:text" json:"last_publish_error"`
	CorrelationId       string              `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt           time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

func ConvertToPubSubMessage(record PubSubMessageRecord) config.PubSubMessage {
	return config.PubSubMessage{
		ID:                  record.ID,
		BusinessId:          record.BusinessId,
		TransactionDateTime: record.TransactionDateTime,
		ReferenceId:         record.ReferenceId,
		ReferenceType:       string(record.ReferenceType),
		Action:              string(record.Action),
		Payload:             record.Payload,
		CorrelationId:       record.CorrelationId,
	}
}

// PublishToOutbox appends an event row on db, which must be the caller's transaction.
func PublishToOutbox(ctx context.Context, db *gorm.DB, businessId string, at time.Time, refId int, refType OutboxReferenceType, action OutboxAction, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	record := PubSubMessageRecord{
		BusinessId:          businessId,
		TransactionDateTime: at,
		ReferenceId:         refId,
		ReferenceType:       refType,
		Action:              action,
		Payload:             data,
		PublishStatus:       OutboxPublishStatusPending,
		CorrelationId:       correlationIdFromContextOrNew(ctx),
	}
	return db.Create(&record).Error
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
