package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	BridgeErrorBadInput          = "BRIDGE_BAD_INPUT"
	BridgeErrorInvalidLaunch     = "BRIDGE_INVALID_LAUNCH"
	BridgeErrorUnauthorized      = "BRIDGE_UNAUTHORIZED"
	BridgeErrorGradeRange        = "BRIDGE_GRADE_RANGE"
	BridgeErrorNoPendingCallback = "BRIDGE_NO_PENDING_CALLBACK"
	BridgeErrorUnknownConsumer   = "BRIDGE_UNKNOWN_CONSUMER"
	BridgeErrorOutcomeRejected   = "BRIDGE_OUTCOME_REJECTED"
	BridgeErrorOutcomeTransport  = "BRIDGE_OUTCOME_TRANSPORT"
	BridgeErrorRateLimited       = "BRIDGE_RATE_LIMITED"
	BridgeErrorInternal          = "BRIDGE_INTERNAL_ERROR"
)

func bridgeErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureBridgeErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "signature"), strings.Contains(msg, "unauthorized"), strings.Contains(msg, "consumer key"):
		return newBridgeError(err.Error(), goerrors.CategoryAuth, BridgeErrorUnauthorized)
	case strings.Contains(msg, "grade"):
		return newBridgeError(err.Error(), goerrors.CategoryBadInput, BridgeErrorGradeRange)
	case strings.Contains(msg, "no pending callback"), strings.Contains(msg, "already consumed"):
		return newBridgeError(err.Error(), goerrors.CategoryNotFound, BridgeErrorNoPendingCallback)
	case strings.Contains(msg, "throttl"), strings.Contains(msg, "rate limit"):
		return newBridgeError(err.Error(), goerrors.CategoryRateLimit, BridgeErrorRateLimited)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newBridgeError(err.Error(), goerrors.CategoryBadInput, BridgeErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureBridgeErrorEnvelope(mapped)
}

func newBridgeError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureBridgeErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureBridgeErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = bridgeHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultBridgeTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultBridgeTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput:
		return BridgeErrorBadInput
	case goerrors.CategoryValidation:
		return BridgeErrorInvalidLaunch
	case goerrors.CategoryNotFound:
		return BridgeErrorNoPendingCallback
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return BridgeErrorUnauthorized
	case goerrors.CategoryRateLimit:
		return BridgeErrorRateLimited
	case goerrors.CategoryOperation:
		return BridgeErrorOutcomeRejected
	case goerrors.CategoryExternal:
		return BridgeErrorOutcomeTransport
	default:
		return BridgeErrorInternal
	}
}

func bridgeHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryOperation, goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
