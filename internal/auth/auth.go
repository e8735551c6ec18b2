// Package auth validates Google ID tokens on incoming requests and mints
// service ID tokens for calls to the remote store.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/idtoken"
	"google.golang.org/api/option"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid id token")
)

// Anonymous is the user of requests when no verifier is configured.
var Anonymous = User{ID: "local"}

type User struct {
	ID    string
	Email string
	Token string
}

// Verifier checks a raw ID token and returns its user.
type Verifier interface {
	Verify(ctx context.Context, token string) (User, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, token string) (User, error)

func (f VerifierFunc) Verify(ctx context.Context, token string) (User, error) { return f(ctx, token) }

// GoogleVerifier validates tokens issued by Google for one OAuth client.
type GoogleVerifier struct {
	ClientID string
	validate func(ctx context.Context, token, audience string) (*idtoken.Payload, error)
}

func NewGoogleVerifier(clientID string) *GoogleVerifier {
	return &GoogleVerifier{ClientID: clientID, validate: idtoken.Validate}
}

func (v *GoogleVerifier) Verify(ctx context.Context, token string) (User, error) {
	payload, err := v.validate(ctx, token, v.ClientID)
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	u := User{ID: payload.Subject, Token: token}
	if email, ok := payload.Claims["email"].(string); ok {
		u.Email = email
	}
	return u, nil
}

type userKey struct{}

func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// UserFrom returns the request user, Anonymous when none was set.
func UserFrom(ctx context.Context) User {
	if u, ok := ctx.Value(userKey{}).(User); ok {
		return u
	}
	return Anonymous
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, error) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if h == "" {
		return "", ErrMissingToken
	}
	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tok) == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(tok), nil
}

// Authenticate resolves the request user. With a nil verifier every request
// is Anonymous.
func Authenticate(r *http.Request, v Verifier) (User, error) {
	if v == nil {
		return Anonymous, nil
	}
	tok, err := BearerToken(r)
	if err != nil {
		return User{}, err
	}
	return v.Verify(r.Context(), tok)
}

// ServiceTokenSource returns ID tokens for audience signed by the service
// account in credentialsJSON, or by the ambient credentials when empty.
func ServiceTokenSource(ctx context.Context, audience string, credentialsJSON []byte) (oauth2.TokenSource, error) {
	var opts []idtoken.ClientOption
	if len(credentialsJSON) > 0 {
		opts = append(opts, option.WithCredentialsJSON(credentialsJSON))
	}
	ts, err := idtoken.NewTokenSource(ctx, audience, opts...)
	if err != nil {
		return nil, fmt.Errorf("id token source for %s: %w", audience, err)
	}
	return ts, nil
}
