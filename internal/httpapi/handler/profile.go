package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/octodevs/octodevs/internal/github"
	"github.com/octodevs/octodevs/internal/identity"
	"github.com/octodevs/octodevs/internal/profile"
	"github.com/octodevs/octodevs/internal/users"
)

// profileSvc is the interface expected by ProfileHandler, satisfied by
// *profile.Service.
type profileSvc interface {
	PublishedProfiles(ctx context.Context) ([]profile.Profile, error)
	Paginated(ctx context.Context, limit int, cursor string) (*profile.Page, error)
	Publish(ctx context.Context, userID uuid.UUID) (*profile.Profile, error)
	Unpublish(ctx context.Context, userID uuid.UUID) (*profile.Profile, error)
	Me(ctx context.Context, userID uuid.UUID) (*profile.Profile, error)
}

// ProfileHandler handles the public leaderboard and profile publishing routes.
type ProfileHandler struct {
	profiles profileSvc
	sessions *identity.SessionIssuer
	logger   *zap.Logger
}

// NewProfileHandler creates a ProfileHandler.
func NewProfileHandler(profiles profileSvc, sessions *identity.SessionIssuer, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, sessions: sessions, logger: logger}
}

// Register mounts all profile routes on the provided router group.
func (h *ProfileHandler) Register(rg *gin.RouterGroup) {
	profiles := rg.Group("/profiles")
	{
		profiles.GET("", h.List)
		profiles.GET("/paginated", h.Paginated)

		auth := profiles.Group("", identity.RequireSession(h.sessions))
		{
			auth.GET("/me", h.Me)
			auth.POST("/publish", h.Publish)
			auth.DELETE("/publish", h.Unpublish)
		}
	}
}

// List handles GET /profiles — the full published leaderboard, refreshing
// stale entries from GitHub on the way out.
func (h *ProfileHandler) List(c *gin.Context) {
	ps, err := h.profiles.PublishedProfiles(c.Request.Context())
	if err != nil {
		h.logger.Error("list published profiles", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load profiles"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"profiles": ps, "count": len(ps)})
}

// Paginated handles GET /profiles/paginated?limit=N&cursor=LOGIN.
func (h *ProfileHandler) Paginated(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
			return
		}
		limit = n
	}

	page, err := h.profiles.Paginated(c.Request.Context(), limit, c.Query("cursor"))
	if err != nil {
		switch {
		case errors.Is(err, profile.ErrInvalidLimit), errors.Is(err, profile.ErrInvalidCursor):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.Error("paginated profiles", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load profiles"})
		}
		return
	}
	c.JSON(http.StatusOK, page)
}

// Me handles GET /profiles/me — the caller's own profile, published or not.
func (h *ProfileHandler) Me(c *gin.Context) {
	userID, ok := sessionUserID(c)
	if !ok {
		return
	}

	p, err := h.profiles.Me(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
			return
		}
		h.logger.Error("get own profile", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load profile"})
		return
	}
	c.JSON(http.StatusOK, p)
}

// Publish handles POST /profiles/publish — creates or republishes the
// caller's profile from their GitHub account data.
func (h *ProfileHandler) Publish(c *gin.Context) {
	userID, ok := sessionUserID(c)
	if !ok {
		return
	}

	p, err := h.profiles.Publish(c.Request.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, users.ErrNoLinkedAccount):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "no linked github account"})
		case errors.Is(err, github.ErrUnavailable):
			c.JSON(http.StatusBadGateway, gin.H{"error": "github api unavailable"})
		default:
			h.logger.Error("publish profile", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to publish profile"})
		}
		return
	}
	c.JSON(http.StatusOK, p)
}

// Unpublish handles DELETE /profiles/publish — hides the caller's profile
// from the leaderboard while retaining its data.
func (h *ProfileHandler) Unpublish(c *gin.Context) {
	userID, ok := sessionUserID(c)
	if !ok {
		return
	}

	p, err := h.profiles.Unpublish(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
			return
		}
		h.logger.Error("unpublish profile", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to unpublish profile"})
		return
	}
	c.JSON(http.StatusOK, p)
}

// sessionUserID extracts the authenticated user's UUID from the session
// claims. Writes the error response itself when the claims are unusable.
func sessionUserID(c *gin.Context) (uuid.UUID, bool) {
	claims := identity.SessionFromCtx(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session required"})
		return uuid.Nil, false
	}
	userID, err := claims.UserUUID()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user ID in token"})
		return uuid.Nil, false
	}
	return userID, true
}
