package staff

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/idtoken"
)

// Identity is what an identity provider asserts about the signed-in person.
type Identity struct {
	Email string
	Name  string
}

// Verifier checks an identity assertion and returns the identity it proves.
type Verifier interface {
	Verify(ctx context.Context, credential string) (Identity, error)
}

// GoogleVerifier validates Google Sign-In ID tokens against a client id.
type GoogleVerifier struct {
	ClientID string
}

// Verify checks signature, expiry and audience of a Google ID token.
func (g GoogleVerifier) Verify(ctx context.Context, credential string) (Identity, error) {
	if g.ClientID == "" {
		return Identity{}, errors.New("google client id not configured")
	}
	payload, err := idtoken.Validate(ctx, credential, g.ClientID)
	if err != nil {
		return Identity{}, fmt.Errorf("validate id token: %w", err)
	}
	email, _ := payload.Claims["email"].(string)
	if email == "" {
		return Identity{}, errors.New("id token carries no email")
	}
	if verified, ok := payload.Claims["email_verified"].(bool); ok && !verified {
		return Identity{}, errors.New("email not verified")
	}
	name, _ := payload.Claims["name"].(string)
	return Identity{Email: strings.ToLower(email), Name: name}, nil
}
