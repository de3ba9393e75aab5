// internal/error/error.go

package error

import (
	"errors"
	"fmt"
)

type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

type ErrorType int

const (
	ConfigError ErrorType = iota
	ConnectionError
	CryptoError
	FileError
	ValidationError
	AuthenticationError
	TunnelError
	ChannelError
	InProgressError
)

// ErrInProgress zgłaszany gdy start/stop/reconnect trwa już w innej gorutynie
var ErrInProgress = New(InProgressError, "connection already in progress", nil)

// ErrAuthFailed to błąd protokołu zwracany po nieudanym uwierzytelnieniu
var ErrAuthFailed = New(AuthenticationError, "authentication failed", nil)

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is dopasowuje błędy po typie, więc errors.Is(err, ErrInProgress) działa
// także dla kopii z inną przyczyną.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

func New(errType ErrorType, message string, err error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// IsType sprawdza czy w łańcuchu błędów jest AppError danego typu
func IsType(err error, errType ErrorType) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Type == errType
}
