package registration

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"eventgate/internal/apperr"
	"eventgate/internal/metrics"
)

const (
	defaultLimit = 50
	maxLimit     = 100
)

// Store is the persistence the service needs.
type Store interface {
	Insert(ctx context.Context, reg *Registration) error
	Get(ctx context.Context, id int64) (*Registration, error)
	List(ctx context.Context, search string, limit, offset int) ([]Registration, int, error)
	Stats(ctx context.Context) (Stats, error)
}

// Notifier delivers the confirmation for a new registration.
type Notifier interface {
	SendConfirmation(ctx context.Context, reg Registration) error
}

// Service handles sign-ups and read-only projections over registrations.
type Service struct {
	store    Store
	notifier Notifier
	validate *validator.Validate
	log      zerolog.Logger
}

// NewService creates a service backed by a store and a confirmation notifier.
func NewService(store Store, notifier Notifier, log zerolog.Logger) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		validate: validator.New(),
		log:      log.With().Str("component", "registration").Logger(),
	}
}

// Register validates and stores a submission, then dispatches its confirmation.
// A failed dispatch is reported as an internal error; the stored row is kept.
func (s *Service) Register(ctx context.Context, in Input) (Registration, error) {
	in = normalize(in)
	if err := s.check(in); err != nil {
		metrics.Registrations.WithLabelValues("invalid").Inc()
		return Registration{}, err
	}

	reg := Registration{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Phone:     in.Phone,
		Year:      in.Year,
		Branch:    in.Branch,
	}
	if err := s.store.Insert(ctx, &reg); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			metrics.Registrations.WithLabelValues("duplicate").Inc()
			return Registration{}, apperr.Wrap(apperr.DuplicateEmail, "This email is already registered for the event", err)
		}
		metrics.Registrations.WithLabelValues("error").Inc()
		return Registration{}, apperr.Wrap(apperr.Internal, "Registration failed. Please try again.", err)
	}
	metrics.Registrations.WithLabelValues("created").Inc()
	s.log.Info().Int64("registration_id", reg.ID).Str("email", reg.Email).Msg("registration stored")

	if err := s.notifier.SendConfirmation(ctx, reg); err != nil {
		s.log.Error().Err(err).Int64("registration_id", reg.ID).Msg("confirmation dispatch failed")
		return reg, apperr.Wrap(apperr.Internal, "Registration failed. Please try again.", err)
	}
	return reg, nil
}

// Get returns one registration.
func (s *Service) Get(ctx context.Context, id int64) (Registration, error) {
	if id <= 0 {
		return Registration{}, apperr.New(apperr.Validation, "Invalid user ID")
	}
	reg, err := s.store.Get(ctx, id)
	if err != nil {
		return Registration{}, apperr.Wrap(apperr.Internal, "Failed to get user details", err)
	}
	if reg == nil {
		return Registration{}, apperr.New(apperr.NotFound, "User not found")
	}
	return *reg, nil
}

// List returns a page of registrations. Page and limit outside their ranges are clamped.
func (s *Service) List(ctx context.Context, q Query) (Page, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	q.Search = strings.TrimSpace(q.Search)

	regs, total, err := s.store.List(ctx, q.Search, q.Limit, (q.Page-1)*q.Limit)
	if err != nil {
		return Page{}, apperr.Wrap(apperr.Internal, "Failed to get registrations", err)
	}
	return Page{
		Registrations: regs,
		Total:         total,
		CurrentPage:   q.Page,
		TotalPages:    int(math.Ceil(float64(total) / float64(q.Limit))),
	}, nil
}

// Stats returns aggregate attendance figures.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return Stats{}, apperr.Wrap(apperr.Internal, "Failed to get statistics", err)
	}
	return st, nil
}

func normalize(in Input) Input {
	return Input{
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Email:     strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:     strings.TrimSpace(in.Phone),
		Year:      strings.TrimSpace(in.Year),
		Branch:    strings.TrimSpace(in.Branch),
	}
}

func (s *Service) check(in Input) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Wrap(apperr.Validation, "Invalid registration", err)
	}
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			return apperr.Wrap(apperr.Validation, "All fields are required", err)
		}
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "email":
		return apperr.Wrap(apperr.Validation, "Please enter a valid email address", err)
	case "max":
		return apperr.Wrap(apperr.Validation, fe.Field()+" is too long", err)
	default:
		return apperr.Wrap(apperr.Validation, "Invalid "+fe.Field(), err)
	}
}
