package opencloud

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const codeVerifierCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"

// OAuth2App is an OAuth2 application registered on the Creator Dashboard. It
// builds authorization URIs, exchanges codes for tokens and verifies the
// OpenID id_token.
type OAuth2App struct {
	ID          int64
	RedirectURI string

	// SkipIDTokenVerification decodes id_token claims without checking the
	// signature. Only use it against a trusted test server.
	SkipIDTokenVerification bool

	secret   string
	client   *Client
	config   oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// NewOAuth2App creates an app from its client id, secret and the redirect URI
// registered with it. Options configure the underlying unauthenticated client.
func NewOAuth2App(id int64, secret, redirectURI string, opts ...Option) (*OAuth2App, error) {
	if err := validation.Validate(id, validation.Required.Error("a client id is required")); err != nil {
		return nil, err
	}
	if err := validation.Validate(secret, validation.Required.Error("a client secret is required")); err != nil {
		return nil, err
	}

	client, err := newClient("", opts...)
	if err != nil {
		return nil, err
	}

	clientID := strconv.FormatInt(id, 10)
	base := client.BaseURL()
	keySet := oidc.NewRemoteKeySet(
		oidc.ClientContext(context.Background(), client.http.Client()),
		base+"oauth/v1/certs",
	)

	return &OAuth2App{
		ID:          id,
		RedirectURI: redirectURI,
		secret:      secret,
		client:      client,
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: secret,
			RedirectURL:  redirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:   base + "oauth/v1/authorize",
				TokenURL:  base + "oauth/v1/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		verifier: oidc.NewVerifier("", keySet, &oidc.Config{
			ClientID:             clientID,
			SupportedSigningAlgs: []string{oidc.ES256},
			SkipIssuerCheck:      true,
		}),
	}, nil
}

func (a *OAuth2App) String() string {
	return fmt.Sprintf("OAuth2App(%d, redirect=%q)", a.ID, a.RedirectURI)
}

// GenerateCodeVerifier returns a random PKCE code verifier of length
// characters, between 43 and 128.
func GenerateCodeVerifier(length int) (string, error) {
	if err := validation.Validate(length, validation.Min(43), validation.Max(128)); err != nil {
		return "", fmt.Errorf("code verifier length: %w", err)
	}

	max := big.NewInt(int64(len(codeVerifierCharset)))
	verifier := make([]byte, length)
	for i := range verifier {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate code verifier: %w", err)
		}
		verifier[i] = codeVerifierCharset[n.Int64()]
	}
	return string(verifier), nil
}

// GenerateState returns a random state value for an authorization request
func GenerateState() string {
	return uuid.NewString()
}

// GenerateURI returns the authorization URI to send the user to. state and
// codeVerifier may be empty; a verifier adds an S256 code challenge.
func (a *OAuth2App) GenerateURI(scopes []string, state, codeVerifier string) string {
	config := a.config
	config.Scopes = scopes

	var opts []oauth2.AuthCodeOption
	if codeVerifier != "" {
		opts = append(opts, oauth2.S256ChallengeOption(codeVerifier))
	}
	return config.AuthCodeURL(state, opts...)
}

// oauthContext routes x/oauth2 requests through the app's transport
func (a *OAuth2App) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, a.client.http.Client())
}

// tokenError converts a token endpoint failure into an HTTPError, rejected
// codes and refresh tokens becoming ErrInvalidCode.
func tokenError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) || retrieveErr.Response == nil {
		return err
	}

	status := retrieveErr.Response.StatusCode
	httpErr := NewHTTPError(status, errorTypeForStatus(status))
	if status == http.StatusBadRequest || status == http.StatusUnauthorized {
		httpErr.WithType(ErrorTypeInvalidCode)
	}
	httpErr.Code = retrieveErr.ErrorCode
	if retrieveErr.ErrorDescription != "" {
		httpErr.WithMessage(retrieveErr.ErrorDescription)
	} else if httpErr.Type == ErrorTypeInvalidCode {
		httpErr.WithMessage("The code is invalid")
	}
	return httpErr
}

// ExchangeCode exchanges an authorization code for an access token.
// codeVerifier must match the one used to generate the URI, if any.
func (a *OAuth2App) ExchangeCode(ctx context.Context, code, codeVerifier string) (*AccessToken, error) {
	opts := []oauth2.AuthCodeOption{}
	if codeVerifier != "" {
		opts = append(opts, oauth2.VerifierOption(codeVerifier))
	}

	token, err := a.config.Exchange(a.oauthContext(ctx), code, opts...)
	if err != nil {
		return nil, tokenError(err)
	}
	return a.newAccessToken(ctx, token)
}

// RefreshToken exchanges a refresh token for a new access token. The returned
// token carries a new refresh token to store in place of the old one.
func (a *OAuth2App) RefreshToken(ctx context.Context, refreshToken string) (*AccessToken, error) {
	source := a.config.TokenSource(a.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, tokenError(err)
	}
	return a.newAccessToken(ctx, token)
}

// RevokeToken revokes an access or refresh token
func (a *OAuth2App) RevokeToken(ctx context.Context, token string) error {
	_, err := a.client.Do(ctx, &Request{
		Method:         http.MethodPost,
		Path:           "oauth/v1/token/revoke",
		Form:           a.credentialForm(token),
		ExpectedStatus: []int{http.StatusOK},
	})
	return err
}

// FromAccessTokenString wraps an access token obtained earlier
func (a *OAuth2App) FromAccessTokenString(token string) *PartialAccessToken {
	return &PartialAccessToken{App: a, Token: token}
}

func (a *OAuth2App) credentialForm(token string) url.Values {
	return url.Values{
		"token":         {token},
		"client_id":     {strconv.FormatInt(a.ID, 10)},
		"client_secret": {a.secret},
	}
}

func (a *OAuth2App) newAccessToken(ctx context.Context, token *oauth2.Token) (*AccessToken, error) {
	access := &AccessToken{
		PartialAccessToken: PartialAccessToken{App: a, Token: token.AccessToken},
		RefreshToken:       token.RefreshToken,
		ExpiresAt:          token.Expiry,
	}
	if scope, ok := token.Extra("scope").(string); ok && scope != "" {
		access.Scope = strings.Fields(scope)
	}

	rawIDToken, _ := token.Extra("id_token").(string)
	if rawIDToken == "" {
		return access, nil
	}
	access.IDToken = rawIDToken

	claims, err := a.idTokenClaims(ctx, rawIDToken)
	if err != nil {
		return nil, err
	}
	access.User = claims.user(access.Client())
	return access, nil
}

// idTokenClaims verifies the id_token against the published certificates and
// decodes its claims.
func (a *OAuth2App) idTokenClaims(ctx context.Context, raw string) (*userClaims, error) {
	var claims userClaims

	if a.SkipIDTokenVerification {
		mapClaims := jwt.MapClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(raw, mapClaims); err != nil {
			return nil, fmt.Errorf("failed to decode id_token: %w", err)
		}
		claims.fromMap(mapClaims)
		return &claims, nil
	}

	idToken, err := a.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to verify id_token: %w", err)
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to decode id_token claims: %w", err)
	}
	return &claims, nil
}

// userClaims are the OpenID claims shared by id_tokens and userinfo
type userClaims struct {
	ID                flexInt `json:"id"`
	Subject           flexInt `json:"sub"`
	PreferredUsername string  `json:"preferred_username"`
	Nickname          string  `json:"nickname"`
	Picture           string  `json:"picture"`
	CreatedAt         flexInt `json:"created_at"`
}

func (c *userClaims) fromMap(m jwt.MapClaims) {
	toInt := func(v any) flexInt {
		switch n := v.(type) {
		case float64:
			return flexInt(n)
		case string:
			id, _ := strconv.ParseInt(n, 10, 64)
			return flexInt(id)
		}
		return 0
	}
	c.ID = toInt(m["id"])
	c.Subject = toInt(m["sub"])
	c.PreferredUsername, _ = m["preferred_username"].(string)
	c.Nickname, _ = m["nickname"].(string)
	c.Picture, _ = m["picture"].(string)
	c.CreatedAt = toInt(m["created_at"])
}

func (c *userClaims) user(client *Client) *User {
	id := int64(c.ID)
	if id == 0 {
		id = int64(c.Subject)
	}
	user := newUser(id, client)
	user.Username = c.PreferredUsername
	user.DisplayName = c.Nickname
	user.HeadshotURI = c.Picture
	if c.CreatedAt != 0 {
		user.Created = time.Unix(int64(c.CreatedAt), 0).UTC()
	}
	return user
}
