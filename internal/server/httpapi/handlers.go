// Package httpapi exposes the session service over HTTP using gin.
// Handlers stay thin: bind input, call the service, set cookies.
package httpapi

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/cookies"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Sessions is the part of services.SessionService used by the handlers.
type Sessions interface {
	Signup(ctx context.Context, req services.SignupRequest) error
	Login(ctx context.Context, email, password string) (*services.Session, error)
	Refresh(ctx context.Context, secret string) (*services.Session, error)
	ChangePassword(ctx context.Context, userID int64, current, next string) error
	VerifyEmail(ctx context.Context, token uuid.UUID) error
	AuthorizationURL() (string, string, error)
	OAuthCallback(ctx context.Context, code string) (*services.Session, error)
	Authenticate(ctx context.Context, token string) (int64, error)
}

// Handlers binds the HTTP routes to a Sessions implementation and moves
// session material in and out of cookies.
type Handlers struct {
	sessions Sessions
	codec    *cookies.Codec
	logger   logging.Logger
}

// NewHandlers returns handlers that encode cookies with codec.
func NewHandlers(s Sessions, codec *cookies.Codec, l logging.Logger) *Handlers {
	return &Handlers{sessions: s, codec: codec, logger: l.With("module", "http")}
}

type signupRequest struct {
	Name     string `form:"name" json:"name"`
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

type loginRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `form:"current_password" json:"current_password"`
	NewPassword     string `form:"new_password" json:"new_password"`
}

// bind decodes a form or JSON body depending on Content-Type.
func (h *Handlers) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBind(dst); err != nil {
		writeError(c, h.logger, fmt.Errorf("%w: %v", errMalformedRequest, err))
		return false
	}
	return true
}

// Signup handles POST /auth/signup.
func (h *Handlers) Signup(c *gin.Context) {
	var req signupRequest
	if !h.bind(c, &req) {
		return
	}

	err := h.sessions.Signup(c.Request.Context(), services.SignupRequest{
		Name: req.Name, Email: req.Email, Password: req.Password,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusCreated)
}

// Login handles POST /auth/login.
func (h *Handlers) Login(c *gin.Context) {
	var req loginRequest
	if !h.bind(c, &req) {
		return
	}

	s, err := h.sessions.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.writeSession(c, s)
}

// Refresh exchanges the refresh cookie for a new access token.
func (h *Handlers) Refresh(c *gin.Context) {
	secret, ok := h.codec.Decode(c.Request, cookies.RefreshTokenName)
	if !ok {
		if _, err := c.Request.Cookie(cookies.RefreshTokenName); err == nil {
			writeError(c, h.logger, common.ErrInvalidRefreshToken)
			return
		}
	}

	s, err := h.sessions.Refresh(c.Request.Context(), secret)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.writeSession(c, s)
}

func (h *Handlers) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if !h.bind(c, &req) {
		return
	}

	if err := h.sessions.ChangePassword(c.Request.Context(), userID(c), req.CurrentPassword, req.NewPassword); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handlers) VerifyEmail(c *gin.Context) {
	token, err := uuid.Parse(c.Query("token"))
	if err != nil {
		writeError(c, h.logger, fmt.Errorf("%w: token: %v", errMalformedRequest, err))
		return
	}

	if err := h.sessions.VerifyEmail(c.Request.Context(), token); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusOK)
}

// GoogleLogin sets the state cookie and redirects to the consent screen.
func (h *Handlers) GoogleLogin(c *gin.Context) {
	target, state, err := h.sessions.AuthorizationURL()
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	ck, err := h.codec.StateCookie(state)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	http.SetCookie(c.Writer, ck)
	c.Redirect(http.StatusFound, target)
}

func (h *Handlers) GoogleCallback(c *gin.Context) {
	want, ok := h.codec.Decode(c.Request, cookies.OAuthStateName)
	got := c.Query("state")
	if !ok || got == "" || subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		writeError(c, h.logger, fmt.Errorf("%w: state mismatch", errMalformedRequest))
		return
	}
	http.SetCookie(c.Writer, h.codec.Expire(cookies.OAuthStateName, cookies.CallbackPath))

	code := c.Query("code")
	if code == "" {
		writeError(c, h.logger, fmt.Errorf("%w: missing code", errMalformedRequest))
		return
	}

	s, err := h.sessions.OAuthCallback(c.Request.Context(), code)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.writeSession(c, s)
}

// HealthCheck answers 200 with an empty body.
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.Status(http.StatusOK)
}

func (h *Handlers) writeSession(c *gin.Context, s *services.Session) {
	access, err := h.codec.AccessCookie(s.AccessToken)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	refresh, err := h.codec.RefreshCookie(s.RefreshToken)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	http.SetCookie(c.Writer, access)
	http.SetCookie(c.Writer, refresh)
	c.Status(http.StatusOK)
}
