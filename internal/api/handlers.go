package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/kodbank/kodbank/internal/domain"
	"github.com/kodbank/kodbank/internal/lib/jwt"
	"github.com/kodbank/kodbank/internal/service"
)

func (s *APIServer) registerHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var req service.RegisterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "Invalid request format")
			return
		}

		_, err := s.users.Register(r.Context(), req)
		if err != nil {
			var missing *domain.MissingFieldError
			switch {
			case errors.As(err, &missing):
				s.respondError(w, http.StatusBadRequest, missing.Error())
			case errors.Is(err, domain.ErrUserIDTaken):
				s.respondError(w, http.StatusBadRequest, "UserID already exists")
			case errors.Is(err, domain.ErrEmailTaken):
				s.respondError(w, http.StatusBadRequest, "Email already exists")
			case errors.Is(err, domain.ErrPasswordTooShort):
				s.respondError(w, http.StatusBadRequest, "Password must be at least 6 characters")
			default:
				s.logger.Error("Failed to register user", "error", err)
				s.respondError(w, http.StatusInternalServerError, "Registration failed")
			}
			return
		}

		s.respond(w, http.StatusCreated, envelope{
			"success": true,
			"message": "Registration successful! Please login.",
		})
	}
}

type loginRequest struct {
	UserID   string `json:"userid"`
	Password string `json:"password"`
}

func (s *APIServer) loginHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "Invalid request format")
			return
		}

		if req.UserID == "" || req.Password == "" {
			s.respondError(w, http.StatusBadRequest, "UserID and password are required")
			return
		}

		user, err := s.users.Login(r.Context(), req.UserID, req.Password)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidCredentials) {
				s.respondError(w, http.StatusUnauthorized, "Invalid credentials")
				return
			}
			s.logger.Error("Failed to log user in", "error", err)
			s.respondError(w, http.StatusInternalServerError, "Login failed")
			return
		}

		token, err := jwt.NewToken(user.UserID, string(s.jwtSecret), s.config.TokenTTL)
		if err != nil {
			s.logger.Error("Failed to issue token", "error", err)
			s.respondError(w, http.StatusInternalServerError, "Login failed")
			return
		}

		s.respond(w, http.StatusOK, envelope{
			"success": true,
			"message": "Login successful!",
			"token":   token,
			"user": envelope{
				"userid":    user.UserID,
				"full_name": user.FullName,
				"email":     user.Email,
				"balance":   user.Balance,
			},
		})
	}
}

func (s *APIServer) balanceHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.users.Profile(r.Context(), actingUserID(r))
		if err != nil {
			if errors.Is(err, domain.ErrUserNotFound) {
				s.respondError(w, http.StatusNotFound, "User not found")
				return
			}
			s.logger.Error("Failed to fetch balance", "error", err)
			s.respondError(w, http.StatusInternalServerError, "Balance inquiry failed")
			return
		}

		s.respond(w, http.StatusOK, envelope{
			"success":   true,
			"balance":   user.Balance,
			"userid":    user.UserID,
			"full_name": user.FullName,
			"email":     user.Email,
		})
	}
}

type transferRequest struct {
	ToUserID string          `json:"to_userid"`
	Amount   json.RawMessage `json:"amount"`
}

func (s *APIServer) transferHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var req transferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "Invalid request format")
			return
		}

		result, err := s.transfers.Transfer(r.Context(), actingUserID(r), req.ToUserID, req.Amount)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrMissingTransfer):
				s.respondError(w, http.StatusBadRequest, "Recipient and amount are required")
			case errors.Is(err, domain.ErrInvalidAmount):
				s.respondError(w, http.StatusBadRequest, "Invalid amount")
			case errors.Is(err, domain.ErrNonPositiveAmount):
				s.respondError(w, http.StatusBadRequest, "Amount must be greater than 0")
			case errors.Is(err, domain.ErrSenderNotFound):
				s.respondError(w, http.StatusNotFound, "Sender not found")
			case errors.Is(err, domain.ErrInsufficientBalance):
				s.respondError(w, http.StatusBadRequest, "Insufficient balance")
			case errors.Is(err, domain.ErrRecipientNotFound):
				s.respondError(w, http.StatusNotFound, "Recipient not found")
			case errors.Is(err, domain.ErrSelfTransfer):
				s.respondError(w, http.StatusBadRequest, "Cannot transfer to yourself")
			default:
				s.logger.Error("Failed to transfer", "error", err)
				s.respondError(w, http.StatusInternalServerError, "Transfer failed")
			}
			return
		}

		s.respond(w, http.StatusOK, envelope{
			"success":     true,
			"message":     fmt.Sprintf("Successfully transferred %s to %s", result.Amount, req.ToUserID),
			"new_balance": result.NewBalance,
		})
	}
}

func (s *APIServer) transactionsHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		transactions, err := s.transfers.History(r.Context(), actingUserID(r))
		if err != nil {
			s.logger.Error("Failed to fetch transactions", "error", err)
			s.respondError(w, http.StatusInternalServerError, "Transaction history failed")
			return
		}

		if transactions == nil {
			transactions = []service.TransactionView{}
		}

		s.respond(w, http.StatusOK, envelope{
			"success":      true,
			"transactions": transactions,
		})
	}
}

func (s *APIServer) indexHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		page := filepath.Join(s.config.StaticDir, "index.html")
		if _, err := os.Stat(page); err == nil {
			http.ServeFile(w, r, page)
			return
		}

		s.respond(w, http.StatusOK, envelope{
			"message": "KodBank API is running",
			"status":  "ok",
		})
	}
}

func (s *APIServer) healthHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		s.respond(w, http.StatusOK, envelope{"status": "healthy"})
	}
}
