package webchat

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorCodeIdentityUnavailable ErrorCode = "identity_unavailable"
	ErrorCodeSessionStart        ErrorCode = "session_start"
	ErrorCodeSessionResume       ErrorCode = "session_resume"
	ErrorCodeProtocol            ErrorCode = "protocol"
	ErrorCodeSend                ErrorCode = "send"
	ErrorCodeProfileSave         ErrorCode = "profile_save"
	ErrorCodeSummarySend         ErrorCode = "summary_send"
)

const (
	msgStartFailed       = "Could not start the conversation. Please try again."
	msgResumeFailed      = "Could not load the conversation. Please try again."
	msgInvalidResponse   = "Invalid response from the server."
	msgSendFailed        = "Could not send the message. Please try again."
	msgProfileSaveFailed = "Could not save your contact details. Please try again."
	msgGeneric           = "Something went wrong. Please try again later."
)

// Error is a failure of one of the widget operations. Message is the text
// shown in the widget error slot.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsCode reports whether err carries a webchat error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var wErr *Error
	return errors.As(err, &wErr) && wErr.Code == code
}

// StatusError is returned for non-2xx backend responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// userMessage picks the text for the error slot.
func userMessage(err error) string {
	var wErr *Error
	if errors.As(err, &wErr) && wErr.Message != "" {
		return wErr.Message
	}
	return msgGeneric
}

// errStale marks a result that arrived after the widget was dismissed or torn down.
var errStale = errors.New("webchat: stale result discarded")
