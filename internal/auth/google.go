// Package auth verifies third-party identity assertions.
package auth

import (
	"context"
	"errors"

	"google.golang.org/api/idtoken"
)

// GoogleIdentity is the subset of a Google ID token the API uses.
type GoogleIdentity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// GoogleVerifier checks a Google ID token and returns who it belongs to.
type GoogleVerifier interface {
	Verify(ctx context.Context, rawToken string) (*GoogleIdentity, error)
}

// ErrGoogleDisabled is returned when no client id is configured.
var ErrGoogleDisabled = errors.New("google sign-in is not configured")

// IDTokenVerifier validates tokens against Google's published keys with the
// configured OAuth client id as audience.
type IDTokenVerifier struct {
	clientID  string
	validator *idtoken.Validator
}

// NewGoogleVerifier returns a verifier for clientID.
func NewGoogleVerifier(ctx context.Context, clientID string) (*IDTokenVerifier, error) {
	if clientID == "" {
		return nil, ErrGoogleDisabled
	}
	v, err := idtoken.NewValidator(ctx)
	if err != nil {
		return nil, err
	}
	return &IDTokenVerifier{clientID: clientID, validator: v}, nil
}

func (v *IDTokenVerifier) Verify(ctx context.Context, rawToken string) (*GoogleIdentity, error) {
	p, err := v.validator.Validate(ctx, rawToken, v.clientID)
	if err != nil {
		return nil, err
	}
	return identityFromClaims(p.Subject, p.Claims), nil
}

func identityFromClaims(sub string, claims map[string]any) *GoogleIdentity {
	id := &GoogleIdentity{Subject: sub}
	id.Email, _ = claims["email"].(string)
	id.Name, _ = claims["name"].(string)
	id.Picture, _ = claims["picture"].(string)
	switch v := claims["email_verified"].(type) {
	case bool:
		id.EmailVerified = v
	case string:
		id.EmailVerified = v == "true"
	}
	return id
}
