package models

import (
	"encoding/json"
	"errors"
)

type DecimalPlaces string

const (
	DecimalPlacesZero  DecimalPlaces = "0"
	DecimalPlacesTwo   DecimalPlaces = "2"
	DecimalPlacesThree DecimalPlaces = "3"
)

type AccountType string

const (
	AccountTypeReceivable AccountType = "Receivable"
	AccountTypePayable    AccountType = "Payable"
	AccountTypeLiquidity  AccountType = "Liquidity"
	AccountTypeIncome     AccountType = "Income"
	AccountTypeExpense    AccountType = "Expense"
	AccountTypeOther      AccountType = "Other"
)

func (t *AccountType) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("account type must be string")
	}
	switch AccountType(str) {
	case AccountTypeReceivable, AccountTypePayable, AccountTypeLiquidity,
		AccountTypeIncome, AccountTypeExpense, AccountTypeOther:
		*t = AccountType(str)
	default:
		return errors.New("invalid account type")
	}
	return nil
}

type MoveState string

const (
	MoveStateDraft  MoveState = "draft"
	MoveStatePosted MoveState = "posted"
	MoveStateCancel MoveState = "cancel"
)

// DisplayType tells what role a move line plays inside its entry.
type DisplayType string

const (
	DisplayTypeProduct     DisplayType = "product"
	DisplayTypePaymentTerm DisplayType = "payment_term"
	DisplayTypeLiquidity   DisplayType = "liquidity"
	DisplayTypeCounterpart DisplayType = "counterpart"
	DisplayTypeWriteoff    DisplayType = "writeoff"
	DisplayTypeLineSection DisplayType = "line_section"
	DisplayTypeLineNote    DisplayType = "line_note"
)

type PaymentState string

const (
	PaymentStateDraft     PaymentState = "draft"
	PaymentStateInProcess PaymentState = "in_process"
	PaymentStatePaid      PaymentState = "paid"
	PaymentStateCanceled  PaymentState = "canceled"
	PaymentStateRejected  PaymentState = "rejected"
)

func (s *PaymentState) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("payment state must be string")
	}
	switch PaymentState(str) {
	case PaymentStateDraft, PaymentStateInProcess, PaymentStatePaid, PaymentStateCanceled, PaymentStateRejected:
		*s = PaymentState(str)
	default:
		return errors.New("invalid payment state")
	}
	return nil
}

type PaymentType string

const (
	PaymentTypeInbound  PaymentType = "inbound"
	PaymentTypeOutbound PaymentType = "outbound"
)

type BatchPaymentState string

const (
	BatchPaymentStateDraft      BatchPaymentState = "draft"
	BatchPaymentStateSent       BatchPaymentState = "sent"
	BatchPaymentStateReconciled BatchPaymentState = "reconciled"
)

type JournalType string

const (
	JournalTypeBank    JournalType = "bank"
	JournalTypeCash    JournalType = "cash"
	JournalTypeGeneral JournalType = "general"
	JournalTypeSale    JournalType = "sale"
)
