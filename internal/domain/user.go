package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// InitialBalance is granted to every account at registration.
var InitialBalance = decimal.NewFromFloat(10000.0)

type User struct {
	ID           int64           `json:"id"`
	UserID       string          `json:"userid"`
	Email        string          `json:"email"`
	Phone        string          `json:"phone"`
	PasswordHash string          `json:"-"`
	FullName     string          `json:"full_name"`
	Balance      decimal.Decimal `json:"balance"`
	CreatedAt    time.Time       `json:"created_at"`
}
