package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/kodbank/kodbank/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

type UserRepository interface {
	SaveUser(ctx context.Context, user *domain.User) (*domain.User, error)
	UserByUserID(ctx context.Context, userID string) (*domain.User, error)
	UserByEmail(ctx context.Context, email string) (*domain.User, error)
}

type RegisterRequest struct {
	UserID   string `json:"userid"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type UserService struct {
	repo   UserRepository
	logger *slog.Logger
}

func NewUserService(repo UserRepository, logger *slog.Logger) *UserService {
	return &UserService{
		repo:   repo,
		logger: logger,
	}
}

// Register creates an account with the fixed starting balance. The password
// is persisted only as a bcrypt hash.
func (s *UserService) Register(ctx context.Context, req RegisterRequest) (*domain.User, error) {
	required := []struct {
		name  string
		value string
	}{
		{"userid", req.UserID},
		{"email", req.Email},
		{"phone", req.Phone},
		{"password", req.Password},
		{"full_name", req.FullName},
	}
	for _, field := range required {
		if field.value == "" {
			return nil, &domain.MissingFieldError{Field: field.name}
		}
	}

	if _, err := s.repo.UserByUserID(ctx, req.UserID); err == nil {
		return nil, domain.ErrUserIDTaken
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, fmt.Errorf("checking userid: %w", err)
	}

	if _, err := s.repo.UserByEmail(ctx, req.Email); err == nil {
		return nil, domain.ErrEmailTaken
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, fmt.Errorf("checking email: %w", err)
	}

	if utf8.RuneCountInString(req.Password) < minPasswordLength {
		return nil, domain.ErrPasswordTooShort
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("Failed to hash password", "error", err)
		return nil, err
	}

	user, err := s.repo.SaveUser(ctx, &domain.User{
		UserID:       req.UserID,
		Email:        req.Email,
		Phone:        req.Phone,
		PasswordHash: string(passHash),
		FullName:     req.FullName,
		Balance:      domain.InitialBalance,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Registered new user", slog.String("userid", user.UserID))

	return user, nil
}

// Login verifies the credentials and returns the account.
func (s *UserService) Login(ctx context.Context, userID, password string) (*domain.User, error) {
	user, err := s.repo.UserByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Warn("Incorrect password", slog.String("userid", userID))
		return nil, domain.ErrInvalidCredentials
	}

	return user, nil
}

// Profile returns the account for balance inquiry.
func (s *UserService) Profile(ctx context.Context, userID string) (*domain.User, error) {
	return s.repo.UserByUserID(ctx, userID)
}
