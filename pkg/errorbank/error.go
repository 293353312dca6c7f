package errorbank

import (
	"errors"
	"fmt"
	"maps"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind enumerates supported application error categories.
type Kind string

const (
	KindBadRequest          Kind = "bad_request"
	KindUnauthorized        Kind = "unauthorized"
	KindForbidden           Kind = "forbidden"
	KindNotFound            Kind = "not_found"
	KindConflict            Kind = "conflict"
	KindPayloadTooLarge     Kind = "payload_too_large"
	KindUnprocessableEntity Kind = "unprocessable_entity"
	KindBadGateway          Kind = "bad_gateway"
	KindInternal            Kind = "internal"
)

type mapping struct {
	status int
	code   codes.Code
}

var kinds = map[Kind]mapping{
	KindBadRequest:          {http.StatusBadRequest, codes.InvalidArgument},
	KindUnauthorized:        {http.StatusUnauthorized, codes.Unauthenticated},
	KindForbidden:           {http.StatusForbidden, codes.PermissionDenied},
	KindNotFound:            {http.StatusNotFound, codes.NotFound},
	KindConflict:            {http.StatusConflict, codes.AlreadyExists},
	KindPayloadTooLarge:     {http.StatusRequestEntityTooLarge, codes.ResourceExhausted},
	KindUnprocessableEntity: {http.StatusUnprocessableEntity, codes.FailedPrecondition},
	KindBadGateway:          {http.StatusBadGateway, codes.Unavailable},
	KindInternal:            {http.StatusInternalServerError, codes.Internal},
}

// AppError is an error with a category that transports translate into
// HTTP statuses or gRPC codes.
type AppError struct {
	kind    Kind
	message string
	details map[string]any
	cause   error
}

// Option configures an AppError.
type Option func(*AppError)

// WithCause wraps err.
func WithCause(err error) Option {
	return func(e *AppError) { e.cause = err }
}

// WithDetail sets one detail value.
func WithDetail(key string, value any) Option {
	return func(e *AppError) {
		if e.details == nil {
			e.details = map[string]any{}
		}
		e.details[key] = value
	}
}

// WithDetails merges details.
func WithDetails(details map[string]any) Option {
	return func(e *AppError) {
		if len(details) == 0 {
			return
		}
		if e.details == nil {
			e.details = make(map[string]any, len(details))
		}
		maps.Copy(e.details, details)
	}
}

// New builds an AppError. An empty message defaults to the kind name.
func New(kind Kind, message string, opts ...Option) *AppError {
	if message == "" {
		message = string(kind)
	}
	e := &AppError{kind: kind, message: message}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *AppError) Error() string {
	switch {
	case e == nil:
		return "<nil>"
	case e.cause != nil:
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	default:
		return e.message
	}
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Kind returns the category. A nil error reports KindInternal.
func (e *AppError) Kind() Kind {
	if e == nil {
		return KindInternal
	}
	return e.kind
}

// Message is the client-facing text. It never includes the cause.
func (e *AppError) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *AppError) Details() map[string]any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *AppError) mapping() mapping {
	if m, ok := kinds[e.Kind()]; ok {
		return m
	}
	return kinds[KindInternal]
}

// StatusCode is the HTTP status for the kind.
func (e *AppError) StatusCode() int { return e.mapping().status }

// GRPCCode is the gRPC code for the kind.
func (e *AppError) GRPCCode() codes.Code { return e.mapping().code }

// GRPCStatus lets grpc-go send AppErrors returned from handlers with the
// matching code and the client-facing message.
func (e *AppError) GRPCStatus() *status.Status {
	return status.New(e.GRPCCode(), e.Message())
}

func BadRequest(message string, opts ...Option) *AppError {
	return New(KindBadRequest, message, opts...)
}

func Unauthorized(message string, opts ...Option) *AppError {
	return New(KindUnauthorized, message, opts...)
}

func Forbidden(message string, opts ...Option) *AppError {
	return New(KindForbidden, message, opts...)
}

func NotFound(message string, opts ...Option) *AppError {
	return New(KindNotFound, message, opts...)
}

func Conflict(message string, opts ...Option) *AppError {
	return New(KindConflict, message, opts...)
}

func PayloadTooLarge(message string, opts ...Option) *AppError {
	return New(KindPayloadTooLarge, message, opts...)
}

func Unprocessable(message string, opts ...Option) *AppError {
	return New(KindUnprocessableEntity, message, opts...)
}

// BadGateway reports a failing upstream dependency.
func BadGateway(message string, opts ...Option) *AppError {
	return New(KindBadGateway, message, opts...)
}

func Internal(message string, opts ...Option) *AppError {
	return New(KindInternal, message, opts...)
}

// From returns the AppError in err's chain, or wraps err as an internal error.
func From(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("internal error", WithCause(err))
}
