package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"

	"github.com/kodbank/kodbank/internal/domain"
	"github.com/shopspring/decimal"
)

// historyLimit caps the transaction list at the 10 most recent records.
const historyLimit = 10

const timestampLayout = "2006-01-02 15:04:05"

type TransferRepository interface {
	// Transfer applies debit, credit and log append as one atomic unit and
	// returns the sender's new balance. It reports ErrSenderNotFound,
	// ErrInsufficientBalance, ErrRecipientNotFound or ErrSelfTransfer in
	// that order of precedence.
	Transfer(ctx context.Context, fromUserID, toUserID string, amount decimal.Decimal) (decimal.Decimal, error)
}

type TransactionRepository interface {
	TransactionsForUser(ctx context.Context, userID string, limit int) ([]domain.Transaction, error)
}

type TransferResult struct {
	Amount     decimal.Decimal
	NewBalance decimal.Decimal
}

// TransactionView is a log record tagged relative to the requesting user.
type TransactionView struct {
	ID         int64  `json:"id"`
	FromUserID string `json:"from_userid"`
	ToUserID   string `json:"to_userid"`
	Amount     string `json:"amount"`
	Type       string `json:"type"`
	Timestamp  string `json:"timestamp"`
}

type TransferService struct {
	transfers    TransferRepository
	transactions TransactionRepository
	logger       *slog.Logger
}

func NewTransferService(transfers TransferRepository, transactions TransactionRepository, logger *slog.Logger) *TransferService {
	return &TransferService{
		transfers:    transfers,
		transactions: transactions,
		logger:       logger,
	}
}

// Transfer moves rawAmount from the acting user to toUserID. Input checks
// run here; existence, sufficiency and the self-transfer check run inside
// the repository's atomic unit, after which no partial effect can remain.
func (s *TransferService) Transfer(ctx context.Context, fromUserID, toUserID string, rawAmount json.RawMessage) (*TransferResult, error) {
	raw := strings.TrimSpace(string(rawAmount))
	if toUserID == "" || raw == "" || raw == "null" {
		return nil, domain.ErrMissingTransfer
	}

	amount, err := parseAmount(raw)
	if err != nil {
		return nil, domain.ErrInvalidAmount
	}

	if !amount.IsPositive() {
		return nil, domain.ErrNonPositiveAmount
	}

	newBalance, err := s.transfers.Transfer(ctx, fromUserID, toUserID, amount)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Transfer completed",
		slog.String("from", fromUserID),
		slog.String("to", toUserID),
		slog.String("amount", amount.String()),
	)

	return &TransferResult{Amount: amount, NewBalance: newBalance}, nil
}

// parseAmount accepts the amount as a JSON number or a quoted numeric string.
func parseAmount(raw string) (decimal.Decimal, error) {
	if strings.HasPrefix(raw, `"`) {
		unquoted, err := strconv.Unquote(raw)
		if err != nil {
			return decimal.Zero, err
		}
		raw = unquoted
	}
	return decimal.NewFromString(strings.TrimSpace(raw))
}

// History returns the user's most recent transfers, newest first, each
// tagged sent or received.
func (s *TransferService) History(ctx context.Context, userID string) ([]TransactionView, error) {
	records, err := s.transactions.TransactionsForUser(ctx, userID, historyLimit)
	if err != nil {
		return nil, err
	}

	views := make([]TransactionView, len(records))
	for i, record := range records {
		direction := domain.DirectionReceived
		if record.FromUserID == userID {
			direction = domain.DirectionSent
		}
		views[i] = TransactionView{
			ID:         record.ID,
			FromUserID: record.FromUserID,
			ToUserID:   record.ToUserID,
			Amount:     record.Amount.String(),
			Type:       direction,
			Timestamp:  record.Timestamp.Format(timestampLayout),
		}
	}

	return views, nil
}
