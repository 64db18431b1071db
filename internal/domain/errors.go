package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrUserIDTaken         = errors.New("userid already exists")
	ErrEmailTaken          = errors.New("email already exists")
	ErrPasswordTooShort    = errors.New("password must be at least 6 characters")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrMissingTransfer     = errors.New("recipient and amount are required")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrNonPositiveAmount   = errors.New("amount must be greater than 0")
	ErrSenderNotFound      = errors.New("sender not found")
	ErrRecipientNotFound   = errors.New("recipient not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrSelfTransfer        = errors.New("cannot transfer to yourself")
)

// MissingFieldError reports which required request field was absent.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}
