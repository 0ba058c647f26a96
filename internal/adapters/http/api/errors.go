package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/okian/tourney/internal/adapters/repository"
	service "github.com/okian/tourney/internal/app"
	"github.com/okian/tourney/internal/domain/match"
	"github.com/okian/tourney/internal/domain/pairing"
	"github.com/okian/tourney/internal/domain/rating"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest      = errors.New("bad request")
	ErrRouteNotFound   = errors.New("route not found")
	ErrLimitExceeded   = errors.New("limit exceeded")
	ErrRateLimited     = errors.New("rate limited")
	ErrUnsupportedMIME = errors.New("content type must be application/json")
)

// OpError records the handler operation that failed together with an API
// kind and the underlying cause. Both Kind and Err match with errors.Is.
type OpError struct {
	Op   string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	switch {
	case e.Err == nil && e.Kind == nil:
		return e.Op
	case e.Err == nil:
		return e.Op + ": " + e.Kind.Error()
	case e.Kind == nil:
		return e.Op + ": " + e.Err.Error()
	default:
		return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
	}
}

func (e *OpError) Unwrap() []error {
	var out []error
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NewKind returns an error of kind raised by op.
func NewKind(op string, kind error) error {
	return &OpError{Op: op, Kind: kind}
}

// Wrap annotates err with op. A nil err stays nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Err: err}
}

// WrapKind annotates err with op and classifies it as kind.
func WrapKind(op string, kind, err error) error {
	return &OpError{Op: op, Kind: kind, Err: err}
}

type statusRule struct {
	kinds  []error
	status int
	code   string
}

// statusRules is matched in order; the first rule with a matching kind wins.
var statusRules = []statusRule{
	{[]error{ErrUnsupportedMIME}, http.StatusUnsupportedMediaType, "unsupported_media_type"},
	{[]error{ErrRateLimited}, http.StatusTooManyRequests, "rate_limit"},
	{[]error{ErrLimitExceeded}, http.StatusBadRequest, "limit_exceeded"},
	{[]error{
		ErrBadRequest,
		service.ErrInvalidInput,
		repository.ErrInvalidLimit,
	}, http.StatusBadRequest, "bad_request"},
	{[]error{service.ErrInvalidSettings}, http.StatusBadRequest, "invalid_settings"},
	{[]error{rating.ErrInvalidOutcome}, http.StatusBadRequest, "invalid_outcome"},
	{[]error{
		ErrRouteNotFound,
		service.ErrTournamentNotFound,
		service.ErrMatchNotFound,
		repository.ErrNotFound,
	}, http.StatusNotFound, "not_found"},
	{[]error{pairing.ErrNoValidPairing}, http.StatusConflict, "no_valid_pairing"},
	{[]error{pairing.ErrSearchBudgetExceeded}, http.StatusConflict, "search_budget_exceeded"},
	{[]error{service.ErrRoundIncomplete}, http.StatusConflict, "round_incomplete"},
	{[]error{service.ErrTournamentComplete}, http.StatusConflict, "tournament_complete"},
	{[]error{
		service.ErrRegistrationClosed,
		service.ErrTournamentFull,
		service.ErrAlreadyRegistered,
		service.ErrNotEnoughPlayers,
		service.ErrTournamentNotStarted,
		match.ErrMatchNotReportable,
		repository.ErrVersionConflict,
		repository.ErrDuplicatePair,
		repository.ErrAlreadyExists,
	}, http.StatusConflict, "conflict"},
	{[]error{rating.ErrNumericDomain}, http.StatusUnprocessableEntity, "numeric_domain"},
	{[]error{context.DeadlineExceeded}, http.StatusServiceUnavailable, "timeout"},
}

// statusFor maps err to an HTTP status and a stable error code.
func statusFor(err error) (int, string) {
	for _, rule := range statusRules {
		for _, kind := range rule.kinds {
			if errors.Is(err, kind) {
				return rule.status, rule.code
			}
		}
	}
	return http.StatusInternalServerError, "internal_error"
}
