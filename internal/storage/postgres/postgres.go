package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kodbank/kodbank/internal/domain"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type Storage struct {
	db     *sql.DB
	logger *slog.Logger
}

func New(dbUrl string, logger *slog.Logger) (*Storage, error) {
	db, err := sql.Open("postgres", dbUrl)
	if err != nil {
		return nil, fmt.Errorf("database connection error %s", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect database error %s", err)
	}

	return &Storage{db: db, logger: logger}, nil
}

func (s *Storage) Stop() error {
	return s.db.Close()
}

func (s *Storage) SaveUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	const op = "storage.postgres.SaveUser"

	saved := *user
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users (userid, email, phone, password_hash, full_name, balance)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, balance, created_at`,
		user.UserID, user.Email, user.Phone, user.PasswordHash, user.FullName, domain.InitialBalance,
	).Scan(&saved.ID, &saved.Balance, &saved.CreatedAt)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" { // unique_violation
			switch pqErr.Constraint {
			case "users_email_key":
				return nil, domain.ErrEmailTaken
			default:
				return nil, domain.ErrUserIDTaken
			}
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &saved, nil
}

func (s *Storage) UserByUserID(ctx context.Context, userID string) (*domain.User, error) {
	const op = "storage.postgres.UserByUserID"

	return s.userBy(ctx, op, "userid", userID)
}

func (s *Storage) UserByEmail(ctx context.Context, email string) (*domain.User, error) {
	const op = "storage.postgres.UserByEmail"

	return s.userBy(ctx, op, "email", email)
}

func (s *Storage) userBy(ctx context.Context, op, column, value string) (*domain.User, error) {
	var user domain.User

	query := fmt.Sprintf(
		"SELECT id, userid, email, phone, password_hash, full_name, balance, created_at FROM users WHERE %s = $1",
		column,
	)
	err := s.db.QueryRowContext(ctx, query, value).Scan(
		&user.ID, &user.UserID, &user.Email, &user.Phone,
		&user.PasswordHash, &user.FullName, &user.Balance, &user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &user, nil
}

// Transfer debits the sender, credits the recipient and appends the
// transaction record as one unit. Both rows are locked lowest-userid-first
// so two transfers targeting each other's accounts cannot deadlock, and
// concurrent transfers from one sender serialize on the sender row.
func (s *Storage) Transfer(ctx context.Context, fromUserID, toUserID string, amount decimal.Decimal) (decimal.Decimal, error) {
	const op = "storage.postgres.Transfer"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.logger.Error("Failed to roll back transfer", "error", err)
		}
	}()

	first, second := fromUserID, toUserID
	if second < first {
		first, second = second, first
	}

	balances := make(map[string]decimal.Decimal, 2)
	for _, uid := range []string{first, second} {
		if _, ok := balances[uid]; ok {
			continue
		}
		var balance decimal.Decimal
		err := tx.QueryRowContext(ctx, "SELECT balance FROM users WHERE userid = $1 FOR UPDATE", uid).
			Scan(&balance)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return decimal.Zero, fmt.Errorf("%s: %w", op, err)
		}
		balances[uid] = balance
	}

	senderBalance, senderFound := balances[fromUserID]
	_, recipientFound := balances[toUserID]

	switch {
	case !senderFound:
		return decimal.Zero, domain.ErrSenderNotFound
	case senderBalance.LessThan(amount):
		return decimal.Zero, domain.ErrInsufficientBalance
	case !recipientFound:
		return decimal.Zero, domain.ErrRecipientNotFound
	case fromUserID == toUserID:
		return decimal.Zero, domain.ErrSelfTransfer
	}

	var newBalance decimal.Decimal
	err = tx.QueryRowContext(ctx,
		"UPDATE users SET balance = balance - $1 WHERE userid = $2 AND balance >= $1 RETURNING balance",
		amount, fromUserID,
	).Scan(&newBalance)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, domain.ErrInsufficientBalance
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE users SET balance = balance + $1 WHERE userid = $2",
		amount, toUserID,
	); err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO transactions (from_userid, to_userid, amount) VALUES ($1, $2, $3)",
		fromUserID, toUserID, amount,
	); err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", op, err)
	}

	return newBalance, nil
}

func (s *Storage) TransactionsForUser(ctx context.Context, userID string, limit int) ([]domain.Transaction, error) {
	const op = "storage.postgres.TransactionsForUser"

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, from_userid, to_userid, amount, timestamp
		 FROM transactions
		 WHERE from_userid = $1 OR to_userid = $1
		 ORDER BY timestamp DESC, id DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			s.logger.Error("Failed to close transactions rows", "error", err)
		}
	}(rows)

	var transactions []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.ID, &t.FromUserID, &t.ToUserID, &t.Amount, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		transactions = append(transactions, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return transactions, nil
}
