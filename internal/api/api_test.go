package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/kodbank/kodbank/internal/config"
	"github.com/kodbank/kodbank/internal/domain"
	"github.com/kodbank/kodbank/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStorage backs the whole API for tests: users, balances and the
// transaction log under one mutex.
type memStorage struct {
	mu     sync.Mutex
	users  map[string]*domain.User
	emails map[string]*domain.User
	log    []domain.Transaction
	nextID int64
}

func newMemStorage() *memStorage {
	return &memStorage{
		users:  make(map[string]*domain.User),
		emails: make(map[string]*domain.User),
	}
}

func (m *memStorage) SaveUser(_ context.Context, user *domain.User) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.UserID]; ok {
		return nil, domain.ErrUserIDTaken
	}
	if _, ok := m.emails[user.Email]; ok {
		return nil, domain.ErrEmailTaken
	}
	m.nextID++
	saved := *user
	saved.ID = m.nextID
	saved.CreatedAt = time.Now()
	m.users[saved.UserID] = &saved
	m.emails[saved.Email] = &saved
	return &saved, nil
}

func (m *memStorage) UserByUserID(_ context.Context, userID string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (m *memStorage) UserByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.emails[email]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (m *memStorage) Transfer(_ context.Context, fromUserID, toUserID string, amount decimal.Decimal) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sender, senderFound := m.users[fromUserID]
	_, recipientFound := m.users[toUserID]

	switch {
	case !senderFound:
		return decimal.Zero, domain.ErrSenderNotFound
	case sender.Balance.LessThan(amount):
		return decimal.Zero, domain.ErrInsufficientBalance
	case !recipientFound:
		return decimal.Zero, domain.ErrRecipientNotFound
	case fromUserID == toUserID:
		return decimal.Zero, domain.ErrSelfTransfer
	}

	sender.Balance = sender.Balance.Sub(amount)
	recipient := m.users[toUserID]
	recipient.Balance = recipient.Balance.Add(amount)
	m.nextID++
	m.log = append(m.log, domain.Transaction{
		ID:         m.nextID,
		FromUserID: fromUserID,
		ToUserID:   toUserID,
		Amount:     amount,
		Timestamp:  time.Now(),
	})

	return sender.Balance, nil
}

func (m *memStorage) TransactionsForUser(_ context.Context, userID string, limit int) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var records []domain.Transaction
	for i := len(m.log) - 1; i >= 0 && len(records) < limit; i-- {
		t := m.log[i]
		if t.FromUserID == userID || t.ToUserID == userID {
			records = append(records, t)
		}
	}
	return records, nil
}

func newTestServer() *APIServer {
	cfg := &config.Config{
		ApiHost:   "localhost",
		ApiPort:   8080,
		JwtSecret: "test-secret",
		TokenTTL:  24 * time.Hour,
		StaticDir: "./does-not-exist",
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := newMemStorage()
	users := service.NewUserService(store, logger)
	transfers := service.NewTransferService(store, store, logger)
	return New(cfg, logger, users, transfers)
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	var decoded map[string]any
	if rr.Body.Len() > 0 {
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&decoded))
	}
	return rr, decoded
}

func register(t *testing.T, handler http.Handler, userID, email string) {
	t.Helper()
	rr, _ := doJSON(t, handler, "POST", "/api/register", "", map[string]string{
		"userid":    userID,
		"email":     email,
		"phone":     "+100200300",
		"password":  "hunter22",
		"full_name": "Test User",
	})
	require.Equal(t, http.StatusCreated, rr.Code)
}

func login(t *testing.T, handler http.Handler, userID string) string {
	t.Helper()
	rr, resp := doJSON(t, handler, "POST", "/api/login", "", map[string]string{
		"userid":   userID,
		"password": "hunter22",
	})
	require.Equal(t, http.StatusOK, rr.Code)
	token, _ := resp["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestEndToEndTransferFlow(t *testing.T) {
	srv := newTestServer()
	router := srv.Router()

	register(t, router, "alice", "alice@example.com")
	register(t, router, "bob", "bob@example.com")

	tokenA := login(t, router, "alice")
	tokenB := login(t, router, "bob")

	rr, resp := doJSON(t, router, "GET", "/api/balance", tokenA, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "10000", resp["balance"])
	assert.Equal(t, "alice", resp["userid"])

	rr, resp = doJSON(t, router, "POST", "/api/transfer", tokenA, map[string]any{
		"to_userid": "bob",
		"amount":    2500,
	})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "7500", resp["new_balance"])
	assert.Equal(t, "Successfully transferred 2500 to bob", resp["message"])

	rr, resp = doJSON(t, router, "GET", "/api/balance", tokenB, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "12500", resp["balance"])

	rr, resp = doJSON(t, router, "GET", "/api/transactions", tokenA, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	sent := resp["transactions"].([]any)
	require.Len(t, sent, 1)
	first := sent[0].(map[string]any)
	assert.Equal(t, "sent", first["type"])
	assert.Equal(t, "2500", first["amount"])
	assert.Equal(t, "alice", first["from_userid"])

	rr, resp = doJSON(t, router, "GET", "/api/transactions", tokenB, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	received := resp["transactions"].([]any)
	require.Len(t, received, 1)
	assert.Equal(t, "received", received[0].(map[string]any)["type"])
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	srv := newTestServer()
	router := srv.Router()

	register(t, router, "alice", "alice@example.com")

	rr, resp := doJSON(t, router, "POST", "/api/register", "", map[string]string{
		"userid":    "alice",
		"email":     "other@example.com",
		"phone":     "+1",
		"password":  "hunter22",
		"full_name": "Someone Else",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "UserID already exists", resp["message"])

	rr, resp = doJSON(t, router, "POST", "/api/register", "", map[string]string{
		"userid":    "bob",
		"email":     "alice@example.com",
		"phone":     "+1",
		"password":  "hunter22",
		"full_name": "Someone Else",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Email already exists", resp["message"])
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	srv := newTestServer()
	router := srv.Router()

	register(t, router, "alice", "alice@example.com")

	rr, resp := doJSON(t, router, "POST", "/api/login", "", map[string]string{
		"userid":   "alice",
		"password": "wrongpassword",
	})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Invalid credentials", resp["message"])

	rr, _ = doJSON(t, router, "POST", "/api/login", "", map[string]string{
		"userid": "alice",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestTransferErrorMapping(t *testing.T) {
	srv := newTestServer()
	router := srv.Router()

	register(t, router, "alice", "alice@example.com")
	register(t, router, "bob", "bob@example.com")
	token := login(t, router, "alice")

	tests := []struct {
		name       string
		body       map[string]any
		wantStatus int
		wantMsg    string
	}{
		{"missing recipient", map[string]any{"amount": 10}, http.StatusBadRequest, "Recipient and amount are required"},
		{"invalid amount", map[string]any{"to_userid": "bob", "amount": "abc"}, http.StatusBadRequest, "Invalid amount"},
		{"zero amount", map[string]any{"to_userid": "bob", "amount": 0}, http.StatusBadRequest, "Amount must be greater than 0"},
		{"insufficient", map[string]any{"to_userid": "bob", "amount": 999999}, http.StatusBadRequest, "Insufficient balance"},
		{"unknown recipient", map[string]any{"to_userid": "ghost", "amount": 10}, http.StatusNotFound, "Recipient not found"},
		{"self transfer", map[string]any{"to_userid": "alice", "amount": 10}, http.StatusBadRequest, "Cannot transfer to yourself"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr, resp := doJSON(t, router, "POST", "/api/transfer", token, tc.body)
			assert.Equal(t, tc.wantStatus, rr.Code)
			assert.Equal(t, tc.wantMsg, resp["message"])
			assert.Equal(t, false, resp["success"])
		})
	}

	// none of the failures may have moved money
	rr, resp := doJSON(t, router, "GET", "/api/balance", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "10000", resp["balance"])
}

func TestAuthenticateMiddleware(t *testing.T) {
	srv := newTestServer()
	router := srv.Router()

	rr, _ := doJSON(t, router, "GET", "/api/balance", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr, _ = doJSON(t, router, "GET", "/api/balance", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest("GET", "/api/balance", nil)
	req.Header.Set("Authorization", "NotBearer token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthAndIndex(t *testing.T) {
	srv := newTestServer()
	router := srv.Router()

	rr, resp := doJSON(t, router, "GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "healthy", resp["status"])

	rr, resp = doJSON(t, router, "GET", "/", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "KodBank API is running", resp["message"])
	assert.NotEmpty(t, rr.Header().Get("X-Request-Id"))
}
