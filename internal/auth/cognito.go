package auth

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	cogtypes "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/aws/smithy-go"
)

// ErrInvalidCredentials is returned for wrong username/password and unknown
// users alike, so login responses do not leak which one it was.
var ErrInvalidCredentials = errors.New("invalid credentials")

// CognitoAPI is the slice of the Cognito IDP client the authenticator needs.
type CognitoAPI interface {
	InitiateAuth(ctx context.Context, params *cognitoidentityprovider.InitiateAuthInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.InitiateAuthOutput, error)
	GetUser(ctx context.Context, params *cognitoidentityprovider.GetUserInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.GetUserOutput, error)
	GlobalSignOut(ctx context.Context, params *cognitoidentityprovider.GlobalSignOutInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.GlobalSignOutOutput, error)
}

// NewCognitoClient builds a Cognito IDP client for the configured region.
func NewCognitoClient(ctx context.Context, region string) (*cognitoidentityprovider.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return cognitoidentityprovider.NewFromConfig(awsCfg), nil
}

// Tokens holds the Cognito token set handed back on login or refresh.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	ExpiresIn    int32  `json:"expires_in"`
}

// User is the identity resolved from a Cognito access token.
type User struct {
	Username string            `json:"username"`
	Attrs    map[string]string `json:"attrs,omitempty"`
}

// Authenticator wraps the user pool operations the app uses. All identity
// decisions stay in Cognito; this code only relays them.
type Authenticator struct {
	api        CognitoAPI
	userPoolID string
	clientID   string
	logger     *log.Logger
}

func NewAuthenticator(api CognitoAPI, userPoolID, clientID string) *Authenticator {
	return &Authenticator{
		api:        api,
		userPoolID: userPoolID,
		clientID:   clientID,
		logger:     log.New(log.Writer(), "[AUTH] ", log.LstdFlags),
	}
}

// Login runs the USER_PASSWORD_AUTH flow.
func (a *Authenticator) Login(ctx context.Context, username, password string) (*Tokens, error) {
	out, err := a.api.InitiateAuth(ctx, &cognitoidentityprovider.InitiateAuthInput{
		AuthFlow: cogtypes.AuthFlowTypeUserPasswordAuth,
		ClientId: aws.String(a.clientID),
		AuthParameters: map[string]string{
			"USERNAME": username,
			"PASSWORD": password,
		},
	})
	if err != nil {
		a.logger.Printf("login rejected by pool %s: %v", a.userPoolID, err)
		return nil, mapCognitoError(err)
	}
	return tokensFromResult(out.AuthenticationResult)
}

// Refresh exchanges a refresh token for a new access token.
func (a *Authenticator) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	out, err := a.api.InitiateAuth(ctx, &cognitoidentityprovider.InitiateAuthInput{
		AuthFlow: cogtypes.AuthFlowTypeRefreshTokenAuth,
		ClientId: aws.String(a.clientID),
		AuthParameters: map[string]string{
			"REFRESH_TOKEN": refreshToken,
		},
	})
	if err != nil {
		return nil, mapCognitoError(err)
	}
	tokens, err := tokensFromResult(out.AuthenticationResult)
	if err != nil {
		return nil, err
	}
	// Cognito does not rotate the refresh token on this flow.
	tokens.RefreshToken = refreshToken
	return tokens, nil
}

// User resolves the identity behind an access token.
func (a *Authenticator) User(ctx context.Context, accessToken string) (*User, error) {
	out, err := a.api.GetUser(ctx, &cognitoidentityprovider.GetUserInput{
		AccessToken: aws.String(accessToken),
	})
	if err != nil {
		return nil, mapCognitoError(err)
	}
	user := &User{Username: aws.ToString(out.Username)}
	if len(out.UserAttributes) > 0 {
		user.Attrs = make(map[string]string, len(out.UserAttributes))
		for _, attr := range out.UserAttributes {
			user.Attrs[aws.ToString(attr.Name)] = aws.ToString(attr.Value)
		}
	}
	return user, nil
}

// Logout revokes every token issued to the user.
func (a *Authenticator) Logout(ctx context.Context, accessToken string) error {
	if _, err := a.api.GlobalSignOut(ctx, &cognitoidentityprovider.GlobalSignOutInput{
		AccessToken: aws.String(accessToken),
	}); err != nil {
		return mapCognitoError(err)
	}
	return nil
}

func tokensFromResult(result *cogtypes.AuthenticationResultType) (*Tokens, error) {
	if result == nil {
		// Happens when the pool demands a challenge (MFA, forced reset); the
		// app only supports the plain password flow.
		return nil, fmt.Errorf("authentication requires an unsupported challenge")
	}
	return &Tokens{
		AccessToken:  aws.ToString(result.AccessToken),
		RefreshToken: aws.ToString(result.RefreshToken),
		IDToken:      aws.ToString(result.IdToken),
		ExpiresIn:    result.ExpiresIn,
	}, nil
}

func mapCognitoError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotAuthorizedException", "UserNotFoundException", "UserNotConfirmedException":
			return ErrInvalidCredentials
		case "PasswordResetRequiredException":
			return fmt.Errorf("password reset required")
		}
	}
	return fmt.Errorf("cognito: %w", err)
}
