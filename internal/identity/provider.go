package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"firebase.google.com/go/v4/auth"
)

// ErrUnauthenticated is returned when a provider token cannot be verified.
var ErrUnauthenticated = errors.New("unauthenticated")

// Provider verifies a token issued by an external identity provider.
type Provider interface {
	Verify(ctx context.Context, token string) (User, error)
}

// tokenVerifier is the subset of *auth.Client used by FirebaseProvider.
type tokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
	GetUser(ctx context.Context, uid string) (*auth.UserRecord, error)
}

// FirebaseProvider verifies Firebase Authentication ID tokens.
type FirebaseProvider struct {
	client tokenVerifier
}

// NewFirebaseProvider wraps a Firebase auth client.
func NewFirebaseProvider(client *auth.Client) *FirebaseProvider {
	return &FirebaseProvider{client: client}
}

// Verify checks the ID token and returns the email and display name it carries.
func (p *FirebaseProvider) Verify(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, ErrUnauthenticated
	}
	tok, err := p.client.VerifyIDToken(ctx, token)
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	email, _ := tok.Claims["email"].(string)
	name, _ := tok.Claims["name"].(string)
	if name == "" && tok.UID != "" {
		// display names set after sign-up are not in the token until it is refreshed
		if rec, err := p.client.GetUser(ctx, tok.UID); err == nil && rec.UserInfo != nil {
			name = rec.DisplayName
			if email == "" {
				email = rec.Email
			}
		}
	}
	if email == "" {
		return User{}, fmt.Errorf("%w: token has no email", ErrInvalidIdentity)
	}
	return User{Email: email, Name: name}, nil
}

// DevProvider trusts the token itself: "email" or "email|Display Name".
// It is meant for local development only.
type DevProvider struct{}

// Verify parses the token without any cryptographic check.
func (DevProvider) Verify(_ context.Context, token string) (User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return User{}, ErrUnauthenticated
	}
	email, name, _ := strings.Cut(token, "|")
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return User{}, fmt.Errorf("%w: %q is not an email", ErrInvalidIdentity, email)
	}
	return User{Email: email, Name: strings.TrimSpace(name)}, nil
}
