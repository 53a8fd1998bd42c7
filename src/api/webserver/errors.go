package webserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stake-plus/stratomai-agents/src/api/apierr"
)

// writeError renders err with the public body for its class. Internal causes
// are logged, not returned.
func writeError(c *gin.Context, log *slog.Logger, err error) {
	status, body := errorBody(err)
	if status >= http.StatusInternalServerError && log != nil {
		log.Error("request failed", "path", c.FullPath(), "user_id", c.GetString(userIDKey), "status", status, "err", err)
	}
	c.JSON(status, body)
}

func abortWithError(c *gin.Context, err error) {
	status, body := errorBody(err)
	c.AbortWithStatusJSON(status, body)
}

func errorBody(err error) (int, gin.H) {
	status := apierr.HTTPStatus(err)
	var (
		invalid  *apierr.ValidationError
		upstream *apierr.UpstreamError
	)
	switch {
	case errors.As(err, &invalid):
		return status, gin.H{"error": "Validation error", "details": invalid.Fields}
	case errors.Is(err, apierr.ErrUnauthorized):
		return status, gin.H{"error": "Unauthorized"}
	case errors.Is(err, apierr.ErrForbidden):
		return status, gin.H{"error": "Forbidden"}
	case errors.Is(err, apierr.ErrNotFound):
		return status, gin.H{"error": "Not found"}
	case errors.As(err, &upstream):
		return status, gin.H{"error": upstream.PublicMessage()}
	case errors.Is(err, context.DeadlineExceeded):
		return status, gin.H{"error": "Request timed out"}
	default:
		return status, gin.H{"error": "Internal server error"}
	}
}

// bindError turns a body decoding failure into a validation error, naming the
// offending field when the decoder knows it.
func bindError(err error) error {
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &typeErr) && typeErr.Field != "":
		return apierr.Invalid(typeErr.Field, "invalid type %s", typeErr.Value)
	case errors.Is(err, io.EOF):
		return apierr.Invalid("body", "request body is required")
	default:
		return apierr.Invalid("body", "must be a valid JSON object")
	}
}
