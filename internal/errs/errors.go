// Package errs defines the application error taxonomy. Every error carries a
// stable code so callers can branch with errors.Is or Code without matching
// on message text.
package errs

import (
	"errors"
	"fmt"
)

// Standard error codes for the application.
const (
	CodeUnknown           = "UNKNOWN"
	CodeConfigNotFound    = "CONFIG_NOT_FOUND"
	CodeBotNotMounted     = "BOT_NOT_MOUNTED"
	CodeBotAlreadyMounted = "BOT_ALREADY_MOUNTED"
	CodeValidation        = "VALIDATION"
	CodeDatabase          = "DATABASE"
	CodeEngine            = "ENGINE"
	CodeConfig            = "CONFIG"
)

// Sentinels for errors.Is. Errors built by the constructors below match the
// sentinel with the same code.
var (
	ErrConfigurationNotFound = &Error{code: CodeConfigNotFound, message: "bot configuration not found"}
	ErrBotNotMounted         = &Error{code: CodeBotNotMounted, message: "bot not mounted"}
	ErrBotAlreadyMounted     = &Error{code: CodeBotAlreadyMounted, message: "bot already mounted"}
	ErrValidation            = &Error{code: CodeValidation, message: "validation error"}
	ErrDatabase              = &Error{code: CodeDatabase, message: "database error"}
	ErrEngine                = &Error{code: CodeEngine, message: "engine error"}
	ErrConfig                = &Error{code: CodeConfig, message: "configuration error"}
)

// ApplicationError is the interface that all our custom errors implement.
type ApplicationError interface {
	error
	Code() string
	Unwrap() error
}

// Error represents an application error with a code, message and optional cause.
type Error struct {
	code    string
	message string
	botID   string
	err     error
}

func (e *Error) Error() string {
	msg := e.message
	if e.botID != "" {
		msg = fmt.Sprintf("%s: %q", msg, e.botID)
	}
	if e.err != nil {
		return fmt.Sprintf("%s: %v", msg, e.err)
	}
	return msg
}

func (e *Error) Code() string {
	return e.code
}

func (e *Error) Unwrap() error {
	return e.err
}

// BotID returns the bot the error refers to, if any.
func (e *Error) BotID() string {
	return e.botID
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.code == e.code
}

// Code returns the code of the first ApplicationError in err's chain,
// or CodeUnknown if it doesn't have one.
func Code(err error) string {
	var appErr ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Code()
	}

	return CodeUnknown
}

func ConfigurationNotFound(botID string) error {
	return &Error{code: CodeConfigNotFound, message: ErrConfigurationNotFound.message, botID: botID}
}

func BotNotMounted(botID string) error {
	return &Error{code: CodeBotNotMounted, message: ErrBotNotMounted.message, botID: botID}
}

func BotAlreadyMounted(botID string) error {
	return &Error{code: CodeBotAlreadyMounted, message: ErrBotAlreadyMounted.message, botID: botID}
}

func NewValidationError(message string, cause error) error {
	return &Error{code: CodeValidation, message: message, err: cause}
}

func NewDatabaseError(message string, cause error) error {
	return &Error{code: CodeDatabase, message: message, err: cause}
}

func NewEngineError(message string, cause error) error {
	return &Error{code: CodeEngine, message: message, err: cause}
}

func NewConfigError(message string, cause error) error {
	return &Error{code: CodeConfig, message: message, err: cause}
}
