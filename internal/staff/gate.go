package staff

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"eventgate/internal/apperr"
	"eventgate/internal/auth"
	"eventgate/internal/metrics"
)

// Store is the allow-list persistence the gate needs.
type Store interface {
	FindByEmail(ctx context.Context, email string) (*Member, error)
	BackfillName(ctx context.Context, id int64, name string) error
}

// User is the claim set returned to the client after login.
type User struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Session is a successful login.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      User      `json:"user"`
}

// Gate authenticates staff with an external identity and authorizes them
// against the allow-list before issuing a session token.
type Gate struct {
	verifier Verifier
	store    Store
	tokens   *auth.Tokens
	log      zerolog.Logger
}

// NewGate wires the gate.
func NewGate(verifier Verifier, store Store, tokens *auth.Tokens, log zerolog.Logger) *Gate {
	return &Gate{
		verifier: verifier,
		store:    store,
		tokens:   tokens,
		log:      log.With().Str("component", "auth_gate").Logger(),
	}
}

// Login exchanges an identity credential for a session token.
func (g *Gate) Login(ctx context.Context, credential string) (Session, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		metrics.Logins.WithLabelValues("invalid").Inc()
		return Session{}, apperr.New(apperr.Validation, "Google credential is required")
	}

	id, err := g.verifier.Verify(ctx, credential)
	if err != nil {
		metrics.Logins.WithLabelValues("invalid").Inc()
		g.log.Warn().Err(err).Msg("identity token rejected")
		return Session{}, apperr.Wrap(apperr.Validation, "Invalid Google token", err)
	}
	email := strings.ToLower(strings.TrimSpace(id.Email))

	member, err := g.store.FindByEmail(ctx, email)
	if err != nil {
		metrics.Logins.WithLabelValues("error").Inc()
		return Session{}, apperr.Wrap(apperr.Internal, "Login failed", err)
	}
	if member == nil {
		metrics.Logins.WithLabelValues("forbidden").Inc()
		g.log.Warn().Str("email", email).Msg("login outside allow-list")
		return Session{}, apperr.New(apperr.Forbidden, "Access denied. You are not part of the ISTE team.")
	}

	// The token mirrors the allow-list row; a missing name is filled from the profile first.
	var name string
	switch {
	case member.Name != nil:
		name = *member.Name
	case id.Name != "":
		name = id.Name
		if err := g.store.BackfillName(ctx, member.ID, name); err != nil {
			g.log.Warn().Err(err).Int64("staff_id", member.ID).Msg("name backfill failed")
		}
	}

	token, exp, err := g.tokens.Issue(member.ID, member.Email, name)
	if err != nil {
		metrics.Logins.WithLabelValues("error").Inc()
		return Session{}, apperr.Wrap(apperr.Internal, "Login failed", err)
	}
	metrics.Logins.WithLabelValues("ok").Inc()
	g.log.Info().Int64("staff_id", member.ID).Msg("staff signed in")

	return Session{
		Token:     token,
		ExpiresAt: exp,
		User:      User{ID: member.ID, Email: member.Email, Name: name},
	}, nil
}
