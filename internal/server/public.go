package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mankindli/sub-gateway/internal/accesslog"
	"github.com/mankindli/sub-gateway/internal/logging"
	"github.com/mankindli/sub-gateway/internal/store"
	"github.com/mankindli/sub-gateway/internal/subscription"
	"go.uber.org/zap"
)

// handleSubscription serves the public read surface. Unknown token, disabled
// record and unknown format all produce the same generic refusal so the
// response carries no token-enumeration signal.
func (h *httpHandler) handleSubscription(c *gin.Context) {
	token := c.Param("token")

	format, err := subscription.ParseFormat(c.Param("format"))
	if err != nil {
		h.denySubscription(c, token, c.Param("format"), "")
		return
	}

	body, customer, err := h.subscriptions.Render(c.Request.Context(), token, format)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		h.denySubscription(c, token, string(format), "")
		return
	case errors.Is(err, subscription.ErrDisabled):
		h.denySubscription(c, token, string(format), customer.Name)
		return
	default:
		h.logger.Error("subscription render failed",
			zap.String("token_prefix", logging.TokenPrefix(token)),
			zap.String("format", string(format)),
			zap.Error(err))
		h.recordAccess(c, token, string(format), customer.Name, http.StatusInternalServerError)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	h.logger.Info("subscription served",
		zap.String("token_prefix", logging.TokenPrefix(token)),
		zap.String("customer", customer.Name),
		zap.String("format", string(format)),
		zap.String("client_ip", clientIP(c)))
	h.recordAccess(c, token, string(format), customer.Name, http.StatusOK)

	c.Data(http.StatusOK, format.ContentType(), body)
}

func (h *httpHandler) denySubscription(c *gin.Context, token, format, customerName string) {
	h.logger.Info("subscription denied",
		zap.String("token_prefix", logging.TokenPrefix(token)),
		zap.String("format", format),
		zap.String("client_ip", clientIP(c)))
	h.recordAccess(c, token, format, customerName, http.StatusForbidden)
	c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
}

// recordAccess is best effort: a broken audit database must never block a
// subscription response. Failures are already logged by the recorder.
func (h *httpHandler) recordAccess(c *gin.Context, token, format, customerName string, status int) {
	if h.accessLog == nil {
		return
	}
	_ = h.accessLog.Record(c.Request.Context(), accesslog.AccessRecord{
		TokenPrefix:  logging.TokenPrefix(token),
		CustomerName: customerName,
		Format:       format,
		ClientIP:     clientIP(c),
		UserAgent:    c.GetHeader("User-Agent"),
		StatusCode:   status,
	})
}

// clientIP prefers reverse-proxy headers, matching the expected nginx
// deployment in front of the gateway.
func clientIP(c *gin.Context) string {
	if forwarded := c.GetHeader("X-Forwarded-For"); forwarded != "" {
		if first, _, found := strings.Cut(forwarded, ","); found {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(forwarded)
	}
	if realIP := c.GetHeader("X-Real-IP"); realIP != "" {
		return realIP
	}
	return c.ClientIP()
}
