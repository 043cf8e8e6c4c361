package workflow

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/mmdatafocus/bankrec_backend/bankrec"
	"github.com/mmdatafocus/bankrec_backend/config"
	"github.com/mmdatafocus/bankrec_backend/models"
	"github.com/mmdatafocus/bankrec_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("bankrec-workflow")

const validateHandlerName = "bankrec.validate"

// ValidationResult is what a validation request answers, first time or replayed.
type ValidationResult struct {
	SessionId       string              `json:"session_id"`
	StatementLineId int                 `json:"statement_line_id"`
	MoveId          int                 `json:"move_id"`
	Replayed        bool                `json:"replayed"`
	Validation      *bankrec.Validation `json:"validation,omitempty"`
}

// ReconciledEvent is the outbox payload of a validated statement line.
type ReconciledEvent struct {
	SessionId                 string `json:"session_id"`
	StatementLineId           int    `json:"statement_line_id"`
	JournalId                 int    `json:"journal_id"`
	MoveId                    int    `json:"move_id"`
	ReconciledAmlIds          []int  `json:"reconciled_aml_ids"`
	ValidatedPaymentIds       []int  `json:"validated_payment_ids"`
	ReconciledBatchPaymentIds []int  `json:"reconciled_batch_payment_ids"`
}

// Validator posts widget sessions to the ledger.
type Validator struct {
	DB         *gorm.DB
	Settings   bankrec.Settings
	Logger     *logrus.Logger
	Extensions []bankrec.Extension
}

// SettingsFromEnv reads the reconciliation settings from the environment.
func SettingsFromEnv() (bankrec.Settings, error) {
	policy, err := bankrec.ParseRemainderPolicy(config.BatchRemainderPolicy())
	if err != nil {
		return bankrec.Settings{}, err
	}
	return bankrec.Settings{BatchRemainderPolicy: policy}, nil
}

// Engine returns an engine reading the ledger through db.
func (w *Validator) Engine(db *gorm.DB, businessId string) *bankrec.Engine {
	return bankrec.NewEngine(NewGormHost(db, businessId), w.Settings, w.Logger, w.Extensions...)
}

// ValidateSession posts s in one transaction and marks it validated. idempotencyKey
// defaults to the session id, so validating the same session twice answers the first result.
func (w *Validator) ValidateSession(ctx context.Context, s *bankrec.Session, idempotencyKey string) (*ValidationResult, error) {
	ctx, span := tracer.Start(ctx, "bankrec.validate_session", trace.WithAttributes(
		attribute.String("business_id", s.BusinessId),
		attribute.String("session_id", s.ID),
		attribute.Int("statement_line_id", s.StatementLineId),
	))
	defer span.End()

	if idempotencyKey == "" {
		idempotencyKey = "session:" + s.ID
	}
	var result *ValidationResult
	err := w.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		done, err := BeginIdempotency(tx, s.BusinessId, validateHandlerName, idempotencyKey)
		if err != nil {
			return err
		}
		if done != nil {
			result, err = replayedResult(s, done)
			return err
		}

		result, err = w.post(ctx, tx, s)
		if err != nil {
			return err
		}
		return MarkIdempotencySucceeded(tx, s.BusinessId, validateHandlerName, idempotencyKey, strconv.Itoa(result.MoveId))
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.recordFailure(ctx, s, idempotencyKey, err)
		return nil, err
	}
	s.State = bankrec.SessionStateValidated
	return result, nil
}

func replayedResult(s *bankrec.Session, done *models.IdempotencyKey) (*ValidationResult, error) {
	result := &ValidationResult{SessionId: s.ID, StatementLineId: s.StatementLineId, Replayed: true}
	if done.ResultRef != nil {
		moveId, err := strconv.Atoi(*done.ResultRef)
		if err != nil {
			return nil, fmt.Errorf("idempotency key %d: bad result ref %q", done.ID, *done.ResultRef)
		}
		result.MoveId = moveId
	}
	return result, nil
}

// recordFailure keeps the last error on the idempotency key; the posting transaction
// rolled back together with its own key row.
func (w *Validator) recordFailure(ctx context.Context, s *bankrec.Session, idempotencyKey string, cause error) {
	if errors.Is(cause, ErrIdempotencyInProgress) {
		return
	}
	err := w.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		done, err := BeginIdempotency(tx, s.BusinessId, validateHandlerName, idempotencyKey)
		if err != nil || done != nil {
			return err
		}
		return MarkIdempotencyFailed(tx, s.BusinessId, validateHandlerName, idempotencyKey, cause)
	})
	if err != nil && w.Logger != nil {
		config.LogError(w.Logger, "validateSession.go", "recordFailure", "mark idempotency failed", idempotencyKey, err)
	}
}

func (w *Validator) post(ctx context.Context, tx *gorm.DB, s *bankrec.Session) (*ValidationResult, error) {
	release, err := AcquireJournalPostingLock(tx, w.Logger, s.BusinessId, s.JournalId)
	if err != nil {
		return nil, err
	}
	defer release()

	st, err := models.LockStatementLine(tx, s.StatementLineId)
	if err != nil {
		return nil, err
	}
	if st.IsReconciled {
		return nil, fmt.Errorf("%w: statement line %d is already reconciled", bankrec.ErrReconciliationConflict, st.ID)
	}

	v, err := w.Engine(tx, s.BusinessId).Validate(ctx, s)
	if err != nil {
		return nil, err
	}

	move, err := createStatementMove(tx, s, v)
	if err != nil {
		return nil, err
	}

	var reconciledAmlIds []int
	for _, r := range v.ToReconcile {
		lineId := move.Lines[r.CommandIndex].ID
		if _, err := models.ReconcileLines(tx, lineId, r.AmlIds); err != nil {
			if errors.Is(err, models.ErrAlreadyReconciled) {
				return nil, fmt.Errorf("%w: %v", bankrec.ErrReconciliationConflict, err)
			}
			return nil, err
		}
		reconciledAmlIds = append(reconciledAmlIds, r.AmlIds...)
	}

	now := time.Now().UTC()
	if err := tx.Model(&models.StatementLine{}).Where("id = ?", st.ID).
		Updates(reconciledUpdates(ctx, move.ID, now)).Error; err != nil {
		return nil, err
	}

	var reconciledBatchIds []int
	for _, batchId := range v.SettledBatchPaymentIds {
		reconciled, err := settleBatchPayment(tx, batchId)
		if err != nil {
			return nil, err
		}
		if !reconciled {
			continue
		}
		reconciledBatchIds = append(reconciledBatchIds, batchId)
		if err := models.PublishToOutbox(ctx, tx, s.BusinessId, now, batchId,
			models.OutboxReferenceBatchPayment, models.OutboxActionStateChange,
			map[string]interface{}{"batch_payment_id": batchId, "state": models.BatchPaymentStateReconciled}); err != nil {
			return nil, err
		}
	}

	slices.Sort(reconciledAmlIds)
	event := ReconciledEvent{
		SessionId:                 s.ID,
		StatementLineId:           st.ID,
		JournalId:                 s.JournalId,
		MoveId:                    move.ID,
		ReconciledAmlIds:          slices.Compact(reconciledAmlIds),
		ValidatedPaymentIds:       v.ValidatedPaymentIds,
		ReconciledBatchPaymentIds: reconciledBatchIds,
	}
	if err := models.PublishToOutbox(ctx, tx, s.BusinessId, now, st.ID,
		models.OutboxReferenceStatementLine, models.OutboxActionReconciled, event); err != nil {
		return nil, err
	}

	if w.Logger != nil {
		w.Logger.WithFields(logrus.Fields{
			"module":            "validateSession.go",
			"business_id":       s.BusinessId,
			"session_id":        s.ID,
			"statement_line_id": st.ID,
			"move_id":           move.ID,
		}).Info("statement line reconciled")
	}
	return &ValidationResult{
		SessionId:       s.ID,
		StatementLineId: st.ID,
		MoveId:          move.ID,
		Validation:      v,
	}, nil
}

func displayTypeFor(flag bankrec.Flag) models.DisplayType {
	switch flag {
	case bankrec.FlagLiquidity:
		return models.DisplayTypeLiquidity
	case bankrec.FlagNewAml:
		return models.DisplayTypeCounterpart
	default:
		return models.DisplayTypeWriteoff
	}
}

// createStatementMove books the line commands as one posted entry, lines in command order.
func createStatementMove(tx *gorm.DB, s *bankrec.Session, v *bankrec.Validation) (*models.AccountMove, error) {
	var accountIds []int
	for _, cmd := range v.LineCommands {
		accountIds = append(accountIds, cmd.AccountId)
	}
	accounts, err := models.GetAccountsByIds(tx, accountIds)
	if err != nil {
		return nil, err
	}
	reconcilable := map[int]bool{}
	for _, a := range accounts {
		reconcilable[a.ID] = a.IsReconcilable()
	}

	move := models.AccountMove{
		BusinessId:      s.BusinessId,
		JournalId:       s.JournalId,
		Name:            fmt.Sprintf("BNK/%d", s.StatementLineId),
		Ref:             s.PaymentRef,
		Date:            s.Date,
		State:           models.MoveStatePosted,
		PartnerId:       s.PartnerId,
		CurrencyId:      s.JournalCurrencyId,
		StatementLineId: s.StatementLineId,
	}
	for _, cmd := range v.LineCommands {
		line := models.AccountMoveLine{
			BusinessId:      s.BusinessId,
			JournalId:       s.JournalId,
			AccountId:       cmd.AccountId,
			PartnerId:       cmd.PartnerId,
			CurrencyId:      cmd.CurrencyId,
			Name:            cmd.Name,
			Date:            s.Date,
			DisplayType:     displayTypeFor(cmd.Flag),
			ParentState:     models.MoveStatePosted,
			AmountCurrency:  cmd.AmountCurrency,
			Balance:         cmd.Balance,
			StatementLineId: s.StatementLineId,
		}
		line.OpenResidual(reconcilable[cmd.AccountId])
		move.Lines = append(move.Lines, line)
	}
	if err := tx.Create(&move).Error; err != nil {
		return nil, err
	}
	return &move, nil
}

// settleBatchPayment moves members whose outstanding entries are fully matched to paid,
// and the batch to reconciled once no member is left in process.
func settleBatchPayment(tx *gorm.DB, batchId int) (bool, error) {
	batches, err := models.GetBatchPayments(tx, []int{batchId})
	if err != nil {
		return false, err
	}
	if len(batches) == 0 {
		return false, fmt.Errorf("%w: batch payment %d disappeared during validation", bankrec.ErrReconciliationConflict, batchId)
	}
	batch := batches[0]

	open := 0
	for _, p := range batch.ValidPayments() {
		if p.MoveId == 0 {
			open++
			continue
		}
		var unmatched int64
		if err := tx.Model(&models.AccountMoveLine{}).
			Where("move_id = ? AND account_id = ? AND reconciled = ?", p.MoveId, p.OutstandingAccountId, false).
			Count(&unmatched).Error; err != nil {
			return false, err
		}
		if unmatched > 0 {
			open++
			continue
		}
		if err := tx.Model(&models.Payment{}).Where("id = ?", p.ID).Update("state", models.PaymentStatePaid).Error; err != nil {
			return false, err
		}
	}
	if open > 0 {
		return false, nil
	}
	err = tx.Model(&models.BatchPayment{}).Where("id = ?", batch.ID).Update("state", models.BatchPaymentStateReconciled).Error
	return err == nil, err
}

// reconciledUpdates settles a statement line with its move, stamped with the acting user.
func reconciledUpdates(ctx context.Context, moveId int, at time.Time) map[string]interface{} {
	userName, _ := utils.GetUserNameFromContext(ctx)
	return map[string]interface{}{
		"is_reconciled": true,
		"move_id":       moveId,
		"reconciled_by": userName,
		"reconciled_at": &at,
	}
}
