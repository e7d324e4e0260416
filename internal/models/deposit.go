package models

import (
	"time"

	"github.com/uptrace/bun"
)

type DepositType string

const (
	DepositGrant18    DepositType = "GRANT_18"
	DepositGrant15_17 DepositType = "GRANT_15_17"
)

type RecreditType string

const (
	Recredit16 RecreditType = "RECREDIT_16"
	Recredit17 RecreditType = "RECREDIT_17"
)

type Deposit struct {
	bun.BaseModel `bun:"table:deposits"`

	ID             int64       `bun:"id,pk,autoincrement" json:"id"`
	UserID         int64       `bun:"user_id,notnull" json:"user_id"`
	Amount         int64       `bun:"amount,notnull" json:"amount"`
	Type           DepositType `bun:"type,notnull" json:"type"`
	Source         string      `bun:"source,notnull" json:"source"`
	DateCreated    time.Time   `bun:"date_created,notnull" json:"date_created"`
	ExpirationDate *time.Time  `bun:"expiration_date" json:"expiration_date,omitempty"`

	Recredits []*Recredit `bun:"rel:has-many,join:id=deposit_id" json:"recredits,omitempty"`
}

func (d *Deposit) IsExpired(now time.Time) bool {
	return d.ExpirationDate != nil && !d.ExpirationDate.After(now)
}

type Recredit struct {
	bun.BaseModel `bun:"table:recredits"`

	ID           int64        `bun:"id,pk,autoincrement" json:"id"`
	DepositID    int64        `bun:"deposit_id,notnull" json:"deposit_id"`
	Amount       int64        `bun:"amount,notnull" json:"amount"`
	RecreditType RecreditType `bun:"recredit_type,notnull" json:"recredit_type"`
	DateCreated  time.Time    `bun:"date_created,notnull" json:"date_created"`
}

// Wallet is the computed spending state of a deposit.
type Wallet struct {
	Deposit       *Deposit `json:"deposit"`
	Initial       int64    `json:"initial"`
	Spent         int64    `json:"spent"`
	Remaining     int64    `json:"remaining"`
	HasDigitalCap bool     `json:"has_digital_cap"`
	DigitalCap    int64    `json:"digital_cap,omitempty"`
	DigitalSpent  int64    `json:"digital_spent,omitempty"`
	DigitalLeft   int64    `json:"digital_left,omitempty"`
}
