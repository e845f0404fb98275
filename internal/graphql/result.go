package graphql

import (
	"context"
	"errors"

	"github.com/tournevent/postershop/internal/domain"
	"github.com/tournevent/postershop/pkg/carrier"
)

// Error kinds that are not carrier kinds.
const (
	KindNotFoundRecord    = "not_found_record"
	KindValidation        = "validation"
	KindIneligible        = "ineligible"
	KindInvalidTransition = "invalid_transition"
	KindConflict          = "conflict"
	KindTimeout           = "timeout"
	KindInternal          = "internal"
)

// Result is the envelope every operation answers with.
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error is a failure as seen by API clients. Carrier failures keep the
// carrier's kind, HTTP status and diagnostics.
type Error struct {
	Kind        string               `json:"kind"`
	Message     string               `json:"message"`
	Status      int                  `json:"status,omitempty"`
	Code        string               `json:"code,omitempty"`
	Field       string               `json:"field,omitempty"`
	Capability  string               `json:"capability,omitempty"`
	Diagnostics *carrier.Diagnostics `json:"diagnostics,omitempty"`
}

func ok(data any) *Result {
	return &Result{Success: true, Data: data}
}

func fail(err error) *Result {
	return &Result{Error: toError(err)}
}

// toError maps service errors onto API error kinds. A missing business
// record is not_found_record; not_found alone means the carrier endpoint
// does not exist.
func toError(err error) *Error {
	if err == nil {
		return nil
	}

	if cerr, ok := carrier.AsError(err); ok {
		return &Error{
			Kind:        string(cerr.Kind),
			Message:     cerr.Message,
			Status:      cerr.StatusCode,
			Code:        cerr.Code,
			Capability:  string(cerr.Capability),
			Diagnostics: cerr.Diagnostics,
		}
	}

	var (
		notFound   *domain.NotFoundError
		validation *domain.ValidationError
		ineligible *domain.IneligibleError
		transition *domain.InvalidTransitionError
		conflict   *domain.ConflictError
	)
	switch {
	case errors.As(err, &notFound):
		return &Error{Kind: KindNotFoundRecord, Message: err.Error()}
	case errors.As(err, &validation):
		return &Error{Kind: KindValidation, Message: err.Error(), Field: validation.Field}
	case errors.As(err, &ineligible):
		return &Error{Kind: KindIneligible, Message: ineligible.Reason}
	case errors.As(err, &transition):
		return &Error{Kind: KindInvalidTransition, Message: err.Error()}
	case errors.As(err, &conflict):
		return &Error{Kind: KindConflict, Message: err.Error()}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return &Error{Kind: KindTimeout, Message: err.Error()}
	}
	return &Error{Kind: KindInternal, Message: "internal error"}
}
