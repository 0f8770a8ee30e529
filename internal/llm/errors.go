package llm

import (
	"errors"
	"strings"

	"github.com/aws/smithy-go"
)

var (
	// ErrConfiguration means the invoker cannot run with its current config.
	ErrConfiguration = errors.New("configuration error")
	// ErrModelNotReady means the model was still warming up on every attempt.
	ErrModelNotReady = errors.New("model not ready")
	// ErrTransport covers every other provider or network failure.
	ErrTransport = errors.New("transport error")
	// ErrParse means the response body was not a decodable JSON object.
	ErrParse = errors.New("parse error")
)

// modelNotReadyCode is the provider error code that triggers a retry.
const modelNotReadyCode = "ModelNotReadyException"

// Error is the failure type returned by the invoker and normalizer.
// Kind is one of the sentinels above.
type Error struct {
	Kind     error
	Attempts int
	Message  string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("llm: ")
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	}
	switch {
	case e.Message != "":
		b.WriteString(": ")
		b.WriteString(e.Message)
	case e.Err != nil:
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// IsModelNotReady reports whether err is a not-ready failure.
func IsModelNotReady(err error) bool {
	return errors.Is(err, ErrModelNotReady)
}

// isNotReadySignal matches the provider's warming-up error by its code name.
func isNotReadySignal(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == modelNotReadyCode
	}
	return false
}

// providerMessage extracts the provider's own message when one is present.
func providerMessage(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorMessage() != "" {
		return apiErr.ErrorMessage()
	}
	return err.Error()
}
