package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// assignID gives a new row a UUID primary key when the caller left it empty.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// RoundMoney rounds an amount to two decimals and floors it at zero.
func RoundMoney(amount decimal.Decimal) decimal.Decimal {
	rounded := amount.Round(2)
	if rounded.IsNegative() {
		return decimal.Zero
	}
	return rounded
}
