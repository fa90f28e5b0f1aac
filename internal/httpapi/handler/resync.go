package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// resyncSvc is the interface expected by ResyncHandler, satisfied by
// *profile.Service.
type resyncSvc interface {
	ResyncAll(ctx context.Context) (int, error)
}

// ResyncHandler exposes the scheduled bulk-resync endpoint. The endpoint is
// called by an external cron scheduler (Upstash QStash) which signs every
// request with an HS256 JWT in the Upstash-Signature header.
type ResyncHandler struct {
	profiles   resyncSvc
	signingKey []byte
	logger     *zap.Logger
}

// NewResyncHandler creates a ResyncHandler. An empty signing key disables
// the endpoint (requests respond 503).
func NewResyncHandler(profiles resyncSvc, signingKey []byte, logger *zap.Logger) *ResyncHandler {
	return &ResyncHandler{profiles: profiles, signingKey: signingKey, logger: logger}
}

// Register mounts the resync route on the provided router group.
func (h *ResyncHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/internal/sync-profiles", h.SyncProfiles)
}

// SyncProfiles handles POST /internal/sync-profiles — refreshes every
// published profile from GitHub regardless of staleness.
func (h *ResyncHandler) SyncProfiles(c *gin.Context) {
	if len(h.signingKey) == 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scheduled resync is not configured"})
		return
	}

	sig := c.GetHeader("Upstash-Signature")
	if sig == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing signature"})
		return
	}
	if err := h.verifySignature(sig); err != nil {
		h.logger.Warn("rejected resync request", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	n, err := h.profiles.ResyncAll(c.Request.Context())
	if err != nil {
		h.logger.Error("scheduled resync", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "resync failed"})
		return
	}

	h.logger.Info("scheduled resync complete", zap.Int("refreshed", n))
	c.JSON(http.StatusOK, gin.H{"refreshed": n})
}

// verifySignature validates the scheduler's HS256 JWT. Expiry and
// not-before are enforced by the parser.
func (h *ResyncHandler) verifySignature(sig string) error {
	token, err := jwt.Parse(
		sig,
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return h.signingKey, nil
		},
		jwt.WithIssuer("Upstash"),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return fmt.Errorf("parse signature: %w", err)
	}
	if !token.Valid {
		return fmt.Errorf("signature token invalid")
	}
	return nil
}
