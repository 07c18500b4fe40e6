package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	pricingdomain "github.com/quotabl/quotabl/internal/pricing/domain"
	quotedomain "github.com/quotabl/quotabl/internal/quote/domain"
	validationdomain "github.com/quotabl/quotabl/internal/validation/domain"
	"gorm.io/gorm"
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
	switch {
	case isBadRequestError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, validationdomain.ErrAlreadyDecided):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "request already decided",
		}
	case errors.Is(err, pricingdomain.ErrPriceUnavailable):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "price_unavailable",
			Message: "no supplier cost resolvable for this article",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isBadRequestError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, pricingdomain.ErrInvalidContext),
		errors.Is(err, pricingdomain.ErrInvalidCase),
		errors.Is(err, pricingdomain.ErrInvalidID),
		errors.Is(err, pricingdomain.ErrInvalidOverride),
		errors.Is(err, validationdomain.ErrInvalidID),
		errors.Is(err, validationdomain.ErrInvalidVerdict),
		errors.Is(err, quotedomain.ErrInvalidRequest),
		errors.Is(err, quotedomain.ErrInvalidID):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, pricingdomain.ErrNotFound),
		errors.Is(err, validationdomain.ErrNotFound),
		errors.Is(err, quotedomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}
