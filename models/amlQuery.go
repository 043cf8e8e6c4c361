package models

import (
	"slices"

	"gorm.io/gorm"
)

// AmlQuery is the matching domain over account move lines. The same value can be
// pushed down to SQL (Apply) or evaluated against already loaded lines (Matches);
// both must agree.
//
// Id restrictions follow the same rule everywhere: nil means unrestricted,
// a non-nil empty slice matches nothing.
type AmlQuery struct {
	BusinessId string

	Ids                    []int
	ParentState            MoveState
	ExcludeDisplayTypes    []DisplayType
	OnlyUnreconciled       bool
	ReconcilableOnly       bool
	ExcludeStatementLineId int
	PartnerId              int
	CurrencyIds            []int

	// Receivable/payable lines created by a payment are settled through its liquidity line instead.
	SkipPaymentCounterparts bool

	WithBatchPayment   bool
	BatchPaymentIds    []int
	ExcludeBatchStates []BatchPaymentState
	BatchJournalId     int
	PaymentStates      []PaymentState
}

// IsEmpty reports whether an explicit empty id restriction makes the query match nothing.
func (q AmlQuery) IsEmpty() bool {
	return (q.Ids != nil && len(q.Ids) == 0) ||
		(q.BatchPaymentIds != nil && len(q.BatchPaymentIds) == 0) ||
		(q.CurrencyIds != nil && len(q.CurrencyIds) == 0) ||
		(q.PaymentStates != nil && len(q.PaymentStates) == 0)
}

// InBatchPayments narrows q to lines whose payment belongs to one of batchIds (nil: any batch).
func (q AmlQuery) InBatchPayments(batchIds []int, excludeStates []BatchPaymentState, paymentStates []PaymentState) AmlQuery {
	q.WithBatchPayment = true
	if batchIds != nil {
		q.BatchPaymentIds = append([]int{}, batchIds...)
	}
	q.ExcludeBatchStates = append([]BatchPaymentState{}, excludeStates...)
	if paymentStates != nil {
		q.PaymentStates = append([]PaymentState{}, paymentStates...)
	}
	return q
}

// Apply expects the joins of SearchAmls (accounts, payments, batch_payments).
func (q AmlQuery) Apply(db *gorm.DB) *gorm.DB {
	if q.BusinessId != "" {
		db = db.Where("account_move_lines.business_id = ?", q.BusinessId)
	}
	if q.Ids != nil {
		db = db.Where("account_move_lines.id IN ?", q.Ids)
	}
	if q.ParentState != "" {
		db = db.Where("account_move_lines.parent_state = ?", q.ParentState)
	}
	if len(q.ExcludeDisplayTypes) > 0 {
		db = db.Where("account_move_lines.display_type NOT IN ?", q.ExcludeDisplayTypes)
	}
	if q.OnlyUnreconciled {
		db = db.Where("account_move_lines.reconciled = ?", false)
	}
	if q.ReconcilableOnly {
		db = db.Where("accounts.reconcilable = ?", true)
	}
	if q.ExcludeStatementLineId > 0 {
		db = db.Where("account_move_lines.statement_line_id <> ?", q.ExcludeStatementLineId)
	}
	if q.PartnerId > 0 {
		db = db.Where("account_move_lines.partner_id = ?", q.PartnerId)
	}
	if q.CurrencyIds != nil {
		db = db.Where("account_move_lines.currency_id IN ?", q.CurrencyIds)
	}
	if q.SkipPaymentCounterparts {
		db = db.Where("(accounts.account_type NOT IN ? OR account_move_lines.payment_id = 0)",
			[]AccountType{AccountTypeReceivable, AccountTypePayable})
	}
	if q.WithBatchPayment {
		db = db.Where("payments.batch_payment_id > 0")
	}
	if q.BatchPaymentIds != nil {
		db = db.Where("payments.batch_payment_id IN ?", q.BatchPaymentIds)
	}
	if len(q.ExcludeBatchStates) > 0 {
		db = db.Where("batch_payments.state NOT IN ?", q.ExcludeBatchStates)
	}
	if q.BatchJournalId > 0 {
		db = db.Where("batch_payments.journal_id = ?", q.BatchJournalId)
	}
	if q.PaymentStates != nil {
		db = db.Where("payments.state IN ?", q.PaymentStates)
	}
	return db
}

// Matches is the in-memory twin of Apply. l must carry the joined fields.
func (q AmlQuery) Matches(l AccountMoveLine) bool {
	if q.IsEmpty() {
		return false
	}
	if q.BusinessId != "" && l.BusinessId != q.BusinessId {
		return false
	}
	if q.Ids != nil && !slices.Contains(q.Ids, l.ID) {
		return false
	}
	if q.ParentState != "" && l.ParentState != q.ParentState {
		return false
	}
	if slices.Contains(q.ExcludeDisplayTypes, l.DisplayType) {
		return false
	}
	if q.OnlyUnreconciled && l.Reconciled {
		return false
	}
	if q.ReconcilableOnly && !l.AccountReconcilable {
		return false
	}
	if q.ExcludeStatementLineId > 0 && l.StatementLineId == q.ExcludeStatementLineId {
		return false
	}
	if q.PartnerId > 0 && l.PartnerId != q.PartnerId {
		return false
	}
	if q.CurrencyIds != nil && !slices.Contains(q.CurrencyIds, l.CurrencyId) {
		return false
	}
	if q.SkipPaymentCounterparts && l.PaymentId != 0 &&
		(l.AccountType == AccountTypeReceivable || l.AccountType == AccountTypePayable) {
		return false
	}
	if q.WithBatchPayment && l.BatchPaymentId == 0 {
		return false
	}
	if q.BatchPaymentIds != nil && !slices.Contains(q.BatchPaymentIds, l.BatchPaymentId) {
		return false
	}
	if len(q.ExcludeBatchStates) > 0 && (l.BatchPaymentId == 0 || slices.Contains(q.ExcludeBatchStates, l.BatchPaymentState)) {
		return false
	}
	if q.BatchJournalId > 0 && l.BatchJournalId != q.BatchJournalId {
		return false
	}
	if q.PaymentStates != nil && !slices.Contains(q.PaymentStates, l.PaymentState) {
		return false
	}
	return true
}

// Filter is filtered_domain: keeps the lines q matches, preserving order.
func (q AmlQuery) Filter(lines []AccountMoveLine) []AccountMoveLine {
	var out []AccountMoveLine
	for _, l := range lines {
		if q.Matches(l) {
			out = append(out, l)
		}
	}
	return out
}
