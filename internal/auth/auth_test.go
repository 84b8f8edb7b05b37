package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	cogtypes "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/aws/smithy-go"
	"github.com/labstack/echo/v4"
)

var secret = []byte("test-secret")

func protected(t *testing.T) (*echo.Echo, echo.HandlerFunc) {
	t.Helper()
	e := echo.New()
	handler := func(c echo.Context) error {
		sub, ok := SubjectFromContext(c.Request().Context())
		if !ok {
			t.Fatal("subject missing from context")
		}
		return c.String(http.StatusOK, sub)
	}
	return e, handler
}

func TestMiddlewareAcceptsBearerToken(t *testing.T) {
	tok, err := SignJWT("alice", secret, time.Hour)
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}

	e, handler := protected(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := EchoMiddleware(secret)(handler)(c); err != nil {
		t.Fatalf("middleware: %v", err)
	}
	if rec.Body.String() != "alice" {
		t.Fatalf("subject = %q", rec.Body.String())
	}
	if c.Get("user_id") != "alice" {
		t.Fatalf("user_id = %v", c.Get("user_id"))
	}
}

func TestMiddlewareAcceptsCookie(t *testing.T) {
	tok, _ := SignJWT("bob", secret, time.Hour)

	e, handler := protected(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "auth", Value: tok})
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := EchoMiddleware(secret)(handler)(c); err != nil {
		t.Fatalf("middleware: %v", err)
	}
}

func TestMiddlewareRejects(t *testing.T) {
	expired, _ := SignJWT("alice", secret, -time.Minute)
	wrongKey, _ := SignJWT("alice", []byte("other-secret"), time.Hour)

	cases := map[string]string{
		"missing":      "",
		"garbage":      "not-a-token",
		"expired":      expired,
		"wrong secret": wrongKey,
	}
	e := echo.New()
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tok != "" {
				req.Header.Set("Authorization", "Bearer "+tok)
			}
			c := e.NewContext(req, httptest.NewRecorder())
			err := EchoMiddleware(secret)(func(echo.Context) error {
				t.Fatal("handler must not run")
				return nil
			})(c)
			var httpErr *echo.HTTPError
			if !errors.As(err, &httpErr) || httpErr.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %v", err)
			}
		})
	}
}

type fakeCognito struct {
	authErr error
	result  *cogtypes.AuthenticationResultType
	lastIn  *cognitoidentityprovider.InitiateAuthInput
	signOut bool
}

func (f *fakeCognito) InitiateAuth(_ context.Context, params *cognitoidentityprovider.InitiateAuthInput, _ ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.InitiateAuthOutput, error) {
	f.lastIn = params
	if f.authErr != nil {
		return nil, f.authErr
	}
	return &cognitoidentityprovider.InitiateAuthOutput{AuthenticationResult: f.result}, nil
}

func (f *fakeCognito) GetUser(_ context.Context, _ *cognitoidentityprovider.GetUserInput, _ ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.GetUserOutput, error) {
	return &cognitoidentityprovider.GetUserOutput{
		Username: aws.String("alice"),
		UserAttributes: []cogtypes.AttributeType{
			{Name: aws.String("email"), Value: aws.String("alice@example.com")},
		},
	}, nil
}

func (f *fakeCognito) GlobalSignOut(_ context.Context, _ *cognitoidentityprovider.GlobalSignOutInput, _ ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.GlobalSignOutOutput, error) {
	f.signOut = true
	return &cognitoidentityprovider.GlobalSignOutOutput{}, nil
}

func TestLogin(t *testing.T) {
	fake := &fakeCognito{result: &cogtypes.AuthenticationResultType{
		AccessToken:  aws.String("at"),
		RefreshToken: aws.String("rt"),
		ExpiresIn:    3600,
	}}
	a := NewAuthenticator(fake, "pool-1", "client-1")

	tokens, err := a.Login(context.Background(), "alice", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if tokens.AccessToken != "at" || tokens.RefreshToken != "rt" {
		t.Fatalf("unexpected tokens: %+v", tokens)
	}
	if fake.lastIn.AuthFlow != cogtypes.AuthFlowTypeUserPasswordAuth {
		t.Fatalf("auth flow = %v", fake.lastIn.AuthFlow)
	}
	if fake.lastIn.AuthParameters["USERNAME"] != "alice" {
		t.Fatalf("auth params = %v", fake.lastIn.AuthParameters)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	fake := &fakeCognito{authErr: &smithy.GenericAPIError{Code: "NotAuthorizedException"}}
	a := NewAuthenticator(fake, "pool-1", "client-1")
	if _, err := a.Login(context.Background(), "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	fake.authErr = &smithy.GenericAPIError{Code: "UserNotFoundException"}
	if _, err := a.Login(context.Background(), "ghost", "pw"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user must look like bad credentials, got %v", err)
	}
}

func TestRefreshKeepsRefreshToken(t *testing.T) {
	fake := &fakeCognito{result: &cogtypes.AuthenticationResultType{AccessToken: aws.String("new-at")}}
	a := NewAuthenticator(fake, "pool-1", "client-1")

	tokens, err := a.Refresh(context.Background(), "rt-old")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if tokens.RefreshToken != "rt-old" || tokens.AccessToken != "new-at" {
		t.Fatalf("unexpected tokens: %+v", tokens)
	}
	if fake.lastIn.AuthFlow != cogtypes.AuthFlowTypeRefreshTokenAuth {
		t.Fatalf("auth flow = %v", fake.lastIn.AuthFlow)
	}
}

func TestUserAndLogout(t *testing.T) {
	fake := &fakeCognito{}
	a := NewAuthenticator(fake, "pool-1", "client-1")

	user, err := a.User(context.Background(), "at")
	if err != nil {
		t.Fatalf("User: %v", err)
	}
	if user.Username != "alice" || user.Attrs["email"] != "alice@example.com" {
		t.Fatalf("unexpected user: %+v", user)
	}

	if err := a.Logout(context.Background(), "at"); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if !fake.signOut {
		t.Fatal("GlobalSignOut was not called")
	}
}
