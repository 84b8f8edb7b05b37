package server

import (
	"context"
	_ "embed"
	"errors"
	"html/template"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ixlab/aibox/internal/auth"
)

//go:embed templates/login.html
var loginHTML string

var loginTmpl = template.Must(template.New("login").Parse(loginHTML))

// Cognito tokens travel in their own cookies so refresh and sign-out work
// without the browser ever seeing them in page content.
const (
	authCookie    = "auth"
	accessCookie  = "cognito_access"
	refreshCookie = "cognito_refresh"
)

// Authenticator is the slice of the Cognito wrapper the handler needs.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*auth.Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.Tokens, error)
	User(ctx context.Context, accessToken string) (*auth.User, error)
	Logout(ctx context.Context, accessToken string) error
}

// AuthHandler serves the login page and the token endpoints.
type AuthHandler struct {
	Auth     Authenticator
	Secret   []byte
	TokenTTL time.Duration
	Logger   *log.Logger
}

func (h *AuthHandler) Register(e *echo.Echo) {
	e.GET("/login", h.loginPage)
	e.POST("/auth", h.login)
	e.POST("/auth/refresh", h.refresh)
	e.POST("/auth/logout", h.logout)
}

// RegisterProtected adds the identity endpoint to the JWT-protected group.
func (h *AuthHandler) RegisterProtected(g *echo.Group) {
	g.GET("/me", h.me)
}

func (h *AuthHandler) loginPage(c echo.Context) error {
	return h.renderLogin(c, http.StatusOK, "")
}

func (h *AuthHandler) renderLogin(c echo.Context, status int, errMsg string) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(status)
	return loginTmpl.Execute(c.Response(), map[string]string{"Error": errMsg})
}

func (h *AuthHandler) login(c echo.Context) error {
	username := c.FormValue("username")
	password := c.FormValue("password")
	if username == "" || password == "" {
		loginsTotal.WithLabelValues("rejected").Inc()
		return h.renderLogin(c, http.StatusBadRequest, "username and password are required")
	}

	tokens, err := h.Auth.Login(c.Request().Context(), username, password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		loginsTotal.WithLabelValues("rejected").Inc()
		return h.renderLogin(c, http.StatusUnauthorized, "invalid username or password")
	}
	if err != nil {
		loginsTotal.WithLabelValues("error").Inc()
		return err
	}

	// The app session token is ours; the Cognito pair rides along for
	// refresh and global sign-out.
	appToken, err := auth.SignJWT(username, h.Secret, h.TokenTTL)
	if err != nil {
		return err
	}
	h.setCookie(c, authCookie, appToken, h.TokenTTL)
	h.setCookie(c, accessCookie, tokens.AccessToken, h.TokenTTL)
	if tokens.RefreshToken != "" {
		h.setCookie(c, refreshCookie, tokens.RefreshToken, 30*24*time.Hour)
	}
	loginsTotal.WithLabelValues("ok").Inc()

	if wantsJSON(c) {
		return c.JSON(http.StatusOK, map[string]string{"token": appToken})
	}
	return c.Redirect(http.StatusFound, "/")
}

func (h *AuthHandler) refresh(c echo.Context) error {
	ck, err := c.Cookie(refreshCookie)
	if err != nil || ck.Value == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "no refresh token")
	}
	tokens, err := h.Auth.Refresh(c.Request().Context(), ck.Value)
	if err != nil {
		return err
	}
	user, err := h.Auth.User(c.Request().Context(), tokens.AccessToken)
	if err != nil {
		return err
	}
	appToken, err := auth.SignJWT(user.Username, h.Secret, h.TokenTTL)
	if err != nil {
		return err
	}
	h.setCookie(c, authCookie, appToken, h.TokenTTL)
	h.setCookie(c, accessCookie, tokens.AccessToken, h.TokenTTL)
	return c.JSON(http.StatusOK, map[string]string{"token": appToken})
}

func (h *AuthHandler) logout(c echo.Context) error {
	if ck, err := c.Cookie(accessCookie); err == nil && ck.Value != "" {
		if err := h.Auth.Logout(c.Request().Context(), ck.Value); err != nil && h.Logger != nil {
			h.Logger.Printf("global sign-out failed: %v", err)
		}
	}
	for _, name := range []string{authCookie, accessCookie, refreshCookie} {
		h.setCookie(c, name, "", -time.Hour)
	}
	return c.Redirect(http.StatusFound, "/login")
}

func (h *AuthHandler) me(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)
	return c.JSON(http.StatusOK, map[string]string{"user_id": userID})
}

func (h *AuthHandler) setCookie(c echo.Context, name, value string, ttl time.Duration) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  time.Now().Add(ttl),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func wantsJSON(c echo.Context) bool {
	accept := c.Request().Header.Get(echo.HeaderAccept)
	return accept == echo.MIMEApplicationJSON
}
