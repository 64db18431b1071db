package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction of a transaction relative to the user it was listed for.
const (
	DirectionSent     = "sent"
	DirectionReceived = "received"
)

// Transaction is an immutable record of one completed transfer.
// It references accounts by userid, not by internal key.
type Transaction struct {
	ID         int64           `json:"id"`
	FromUserID string          `json:"from_userid"`
	ToUserID   string          `json:"to_userid"`
	Amount     decimal.Decimal `json:"amount"`
	Timestamp  time.Time       `json:"timestamp"`
}
