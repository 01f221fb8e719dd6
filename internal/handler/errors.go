package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/daybook-io/daybook/internal/domain"
	"github.com/daybook-io/daybook/pkg/response"
)

// respondError maps a domain error to its HTTP shape. Classification drives
// the status: missing entities are 404, terminal state violations 422,
// exhausted resources 409 with a dedicated code, detected races 409 with a
// retryable code, and provider failures 502.
func respondError(c *gin.Context, err error) {
	switch {
	case domain.IsValidationError(err):
		response.BadRequest(c, err.Error())
	case domain.IsNotFoundError(err):
		response.NotFound(c, err.Error())
	case domain.IsInvalidStateError(err):
		response.UnprocessableEntity(c, "INVALID_STATE", err.Error())
	case domain.IsInsufficientError(err):
		response.Error(c, http.StatusConflict, "INSUFFICIENT_RESOURCE", err.Error(), "")
	case domain.IsConflictError(err):
		response.Error(c, http.StatusConflict, "CONFLICT_RETRYABLE", err.Error(), "")
	case errors.Is(err, domain.ErrPaymentProvider):
		response.Error(c, http.StatusBadGateway, "PAYMENT_PROVIDER_ERROR", err.Error(), "")
	default:
		response.InternalError(c, err)
	}
}
