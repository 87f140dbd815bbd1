package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	MailhooksErrorBadInput     = "MAILHOOKS_BAD_INPUT"
	MailhooksErrorUnauthorized = "MAILHOOKS_UNAUTHORIZED"
	MailhooksErrorNotFound     = "MAILHOOKS_NOT_FOUND"
	MailhooksErrorStoreFailed  = "MAILHOOKS_STORE_FAILED"
	MailhooksErrorNotifyFailed = "MAILHOOKS_NOTIFY_FAILED"
	MailhooksErrorInternal     = "MAILHOOKS_INTERNAL_ERROR"
)

// MapError normalizes any error into the go-errors envelope with an
// HTTP-mappable category and a mailhooks text code.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "signature"):
		return newMailhooksError(err.Error(), goerrors.CategoryAuth, MailhooksErrorUnauthorized)
	case strings.Contains(msg, "not found"):
		return newMailhooksError(err.Error(), goerrors.CategoryNotFound, MailhooksErrorNotFound)
	case strings.Contains(msg, "crm"), strings.Contains(msg, "notify"):
		return newMailhooksError(err.Error(), goerrors.CategoryExternal, MailhooksErrorNotifyFailed)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "parse"):
		return newMailhooksError(err.Error(), goerrors.CategoryBadInput, MailhooksErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func newMailhooksError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = mailhooksHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultMailhooksTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultMailhooksTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return MailhooksErrorBadInput
	case goerrors.CategoryNotFound:
		return MailhooksErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return MailhooksErrorUnauthorized
	case goerrors.CategoryExternal:
		return MailhooksErrorNotifyFailed
	default:
		return MailhooksErrorInternal
	}
}

func mailhooksHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
