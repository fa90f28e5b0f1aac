package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	oauthgithub "golang.org/x/oauth2/github"

	"github.com/octodevs/octodevs/internal/github"
	"github.com/octodevs/octodevs/internal/identity"
	"github.com/octodevs/octodevs/internal/users"
)

// OAuthConfig holds the GitHub OAuth app credentials.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// userSvc is the interface expected by AuthHandler, satisfied by *users.Service.
type userSvc interface {
	GetOrCreateFromGitHub(ctx context.Context, githubID int64, login, email, name, avatarURL, accessToken string) (*users.User, bool, error)
}

// githubAPI is the slice of the GitHub client used during login.
type githubAPI interface {
	AuthenticatedUser(ctx context.Context, token string) (*github.User, error)
	PrimaryEmail(ctx context.Context, token string) (string, error)
}

// AuthHandler handles the GitHub OAuth login flow.
type AuthHandler struct {
	users       userSvc
	gh          githubAPI
	sessions    *identity.SessionIssuer
	oauthCfg    *oauth2.Config
	frontendURL string // used to redirect after OAuth callback
	logger      *zap.Logger
}

// NewAuthHandler creates an AuthHandler. An empty client ID disables the
// OAuth routes (they respond 422).
func NewAuthHandler(userSvc userSvc, gh githubAPI, sessions *identity.SessionIssuer, cfg OAuthConfig, logger *zap.Logger) *AuthHandler {
	var oc *oauth2.Config
	if cfg.ClientID != "" && cfg.ClientSecret != "" {
		oc = &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     oauthgithub.Endpoint,
		}
	}
	return &AuthHandler{
		users:       userSvc,
		gh:          gh,
		sessions:    sessions,
		oauthCfg:    oc,
		frontendURL: "http://localhost:3000",
		logger:      logger,
	}
}

// SetFrontendURL sets the base URL of the frontend for OAuth callback redirects.
func (h *AuthHandler) SetFrontendURL(url string) {
	h.frontendURL = url
}

// Register mounts all auth routes on the provided router group.
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	auth := rg.Group("/auth")
	{
		auth.GET("/github", h.OAuthRedirect)
		auth.GET("/github/callback", h.OAuthCallback)
		auth.POST("/logout", h.Logout)
	}
}

// OAuthRedirect handles GET /auth/github — redirects to GitHub's consent page.
func (h *AuthHandler) OAuthRedirect(c *gin.Context) {
	if h.oauthCfg == nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "github oauth is not configured"})
		return
	}

	state, err := h.sessions.IssueOAuthState(c.Query("redirect_to"))
	if err != nil {
		h.logger.Error("generate oauth state", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate OAuth state"})
		return
	}

	url := h.oauthCfg.AuthCodeURL(state, oauth2.AccessTypeOnline)
	c.Redirect(http.StatusFound, url)
}

// OAuthCallback handles GET /auth/github/callback.
func (h *AuthHandler) OAuthCallback(c *gin.Context) {
	if h.oauthCfg == nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "github oauth is not configured"})
		return
	}

	// Validate state to prevent CSRF
	redirectTo, err := h.sessions.VerifyOAuthState(c.Query("state"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid OAuth state"})
		return
	}

	code := c.Query("code")
	if code == "" {
		errMsg := c.Query("error_description")
		if errMsg == "" {
			errMsg = c.Query("error")
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "OAuth authorization failed: " + errMsg})
		return
	}

	oauthToken, err := h.oauthCfg.Exchange(c.Request.Context(), code)
	if err != nil {
		h.logger.Error("oauth code exchange", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "OAuth code exchange failed"})
		return
	}

	ghUser, err := h.gh.AuthenticatedUser(c.Request.Context(), oauthToken.AccessToken)
	if err != nil {
		h.logger.Error("fetch github user after oauth", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to fetch user info from github"})
		return
	}

	name := ""
	if ghUser.Name != nil {
		name = *ghUser.Name
	}
	email := ""
	if ghUser.Email != nil {
		email = *ghUser.Email
	}
	// A private email is absent from /user; ask the emails endpoint instead.
	if email == "" {
		email, _ = h.gh.PrimaryEmail(c.Request.Context(), oauthToken.AccessToken)
	}

	u, created, err := h.users.GetOrCreateFromGitHub(
		c.Request.Context(),
		ghUser.ID, ghUser.Login, email, name, ghUser.AvatarURL,
		oauthToken.AccessToken,
	)
	if err != nil {
		h.logger.Error("get or create github user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process login"})
		return
	}
	if created {
		h.logger.Info("new user via github oauth", zap.String("login", ghUser.Login))
	}

	tok, err := h.sessions.Issue(u.ID, u.Email, ghUser.Login)
	if err != nil {
		h.logger.Error("issue session after oauth", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}

	// Redirect the browser to the frontend callback page with the token in the
	// URL fragment (#). Fragments are never sent to the server, so the token
	// stays client-side only.
	target := h.frontendURL + "/oauth/callback#token=" + tok
	if redirectTo != "" {
		target = fmt.Sprintf("%s/oauth/callback#token=%s&redirect_to=%s", h.frontendURL, tok, redirectTo)
	}
	c.Redirect(http.StatusFound, target)
}

// Logout handles POST /auth/logout.
// Sessions are stateless JWTs so revocation is client-side: the client
// discards the token.
func (h *AuthHandler) Logout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "logged out — discard your token client-side",
	})
}
