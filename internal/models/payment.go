package models

import (
	"fmt"
	"math/big"
)

// PaymentStatus payment lifecycle status
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"   // submitted, not yet mined
	PaymentStatusConfirmed PaymentStatus = "confirmed" // mined successfully
	PaymentStatusFailed    PaymentStatus = "failed"    // reverted or dropped
)

// Valid reports whether s is a known status
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusConfirmed, PaymentStatusFailed:
		return true
	}
	return false
}

// Payment one observed token transfer through SendCash, keyed by tx hash.
// Amount and Fee are base-10 integers in the token's smallest unit.
type Payment struct {
	TxHash       string        `json:"txHash" gorm:"primaryKey;type:varchar(66)"`
	FromAddress  string        `json:"fromAddress" gorm:"type:varchar(42);index;not null"`
	ToAddress    string        `json:"toAddress" gorm:"type:varchar(42);index;not null"`
	FromUsername *string       `json:"fromUsername" gorm:"type:varchar(32)"`
	ToUsername   *string       `json:"toUsername" gorm:"type:varchar(32)"`
	TokenAddress string        `json:"tokenAddress" gorm:"type:varchar(42);not null"`
	Amount       string        `json:"amount" gorm:"type:varchar(78);not null"`
	Fee          string        `json:"fee" gorm:"type:varchar(78);not null;default:'0'"`
	Status       PaymentStatus `json:"status" gorm:"type:varchar(16);index;not null;default:'pending'"`
	CreatedAt    int64         `json:"createdAt" gorm:"index;autoCreateTime"` // unix seconds

	// reminder bookkeeping, owned by the scheduler
	NotifiedAt     *int64 `json:"notifiedAt,omitempty" gorm:"index"`
	LastRemindedAt *int64 `json:"-"`
	ReminderCount  int    `json:"-" gorm:"not null;default:0"`

	UpdatedAt int64 `json:"-" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for Payment
func (Payment) TableName() string {
	return "payments"
}

// AmountInt parses Amount
func (p *Payment) AmountInt() (*big.Int, error) {
	return parseUnits(p.Amount, "amount")
}

// FeeInt parses Fee; an empty fee is zero
func (p *Payment) FeeInt() (*big.Int, error) {
	if p.Fee == "" {
		return new(big.Int), nil
	}
	return parseUnits(p.Fee, "fee")
}

func parseUnits(s, field string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%s %q is not a base-10 integer", field, s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%s must not be negative", field)
	}
	return v, nil
}

// PaymentDirection role of an address in a payment
type PaymentDirection string

const (
	DirectionSent     PaymentDirection = "sent"
	DirectionReceived PaymentDirection = "received"
)

// DirectedPayment a payment tagged with the queried address's role
type DirectedPayment struct {
	Payment
	Direction PaymentDirection `json:"type"`
}
