package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/federation"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
	"github.com/dmitrijs2005/gophauth/internal/server/validation"
	"github.com/gin-gonic/gin"
)

const unexpectedMessage = "an unexpected error occurred"

var errMalformedRequest = errors.New("malformed request")

// statusOf maps domain errors to HTTP status codes. Zero means unexpected.
func statusOf(err error) int {
	switch {
	case errors.Is(err, common.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, common.ErrUnknownVerificationToken),
		errors.Is(err, services.ErrFederationDisabled):
		return http.StatusNotFound
	case errors.Is(err, errMalformedRequest):
		return http.StatusBadRequest
	case common.IsAuthError(err):
		return http.StatusUnauthorized
	}
	return 0
}

// writeError renders err and aborts the request. Expected failures are
// logged at warn level with their message sent to the client; anything else
// is logged in full and hidden behind a generic message.
func writeError(c *gin.Context, logger logging.Logger, err error) {
	ctx := c.Request.Context()

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"errors": verrs})
		return
	}

	if status := statusOf(err); status != 0 {
		logger.Warn(ctx, "request rejected", "status", status, "error", err.Error())
		c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
		return
	}

	_ = c.Error(err)
	status := http.StatusInternalServerError
	if errors.Is(err, federation.ErrUpstream) {
		status = http.StatusBadGateway
	}
	logger.Error(ctx, "request failed", "status", status, "error", err.Error())
	c.AbortWithStatusJSON(status, gin.H{"error": unexpectedMessage})
}
