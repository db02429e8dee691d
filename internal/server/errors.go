package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/fapiaolink/internal/invoice/domain"
	"github.com/smallbiznis/fapiaolink/internal/ledger"
	"github.com/smallbiznis/fapiaolink/internal/provider"
	"github.com/smallbiznis/fapiaolink/internal/submit"
	"github.com/smallbiznis/fapiaolink/internal/tenantdir"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var ErrInvalidRequest = errors.New("invalid_request")

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	var missing *submit.MissingInvoicesError
	if errors.As(err, &missing) {
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: missing.Error(),
		}
	}

	var providerErr *provider.Error
	if errors.As(err, &providerErr) {
		return http.StatusBadGateway, errorPayload{
			Type:    "provider_error",
			Message: providerErr.Error(),
		}
	}

	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, invoicedomain.ErrInvalidTenant),
		errors.Is(err, invoicedomain.ErrInvalidStatus),
		errors.Is(err, submit.ErrTooFewInvoices),
		errors.Is(err, submit.ErrMixedCustomers),
		errors.Is(err, submit.ErrMalformedToken),
		errors.Is(err, provider.ErrEmptyLines):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_request",
			Message: err.Error(),
		}
	case errors.Is(err, invoicedomain.ErrNotFound),
		errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, tenantdir.ErrSettingsNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: err.Error(),
		}
	case errors.Is(err, submit.ErrAlreadySubmitted),
		errors.Is(err, submit.ErrNotSubmitted),
		errors.Is(err, invoicedomain.ErrAlreadyCached):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case errors.Is(err, tenantdir.ErrSettingsIncomplete):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "settings_incomplete",
			Message: err.Error(),
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}
