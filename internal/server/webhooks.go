package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/eksporyuk/internal/observability/context"
)

func (s *Server) HandleXenditWebhook(c *gin.Context) {
	s.ingest(c, "xendit")
}

func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	s.ingest(c, c.Param("provider"))
}

// ingest acknowledges every callback that reached the inbox. Fan-out
// failures stay in logs and metrics; only a failure to record the
// callback itself is a 5xx, so the provider retries.
func (s *Server) ingest(c *gin.Context, provider string) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	c.Set(obscontext.GinKeyWebhookProvider, provider)

	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			AbortWithError(c, newValidationError("body", "too_large", "payload too large"))
			return
		}
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.paymentSvc.IngestWebhook(c.Request.Context(), provider, payload, c.Request.Header)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if result != nil {
		c.Set(obscontext.GinKeyWebhookOutcome, result.Outcome)
	}
	c.JSON(http.StatusOK, gin.H{"status": "received"})
}
