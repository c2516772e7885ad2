package attendance

import (
	"context"

	"github.com/rs/zerolog"

	"eventgate/internal/apperr"
	"eventgate/internal/metrics"
	"eventgate/internal/qrpass"
	"eventgate/internal/registration"
)

// Store is the persistence attendance marking needs.
type Store interface {
	Get(ctx context.Context, id int64) (*registration.Registration, error)
	MarkAttended(ctx context.Context, id int64, staffEmail string) (*registration.Registration, error)
}

// Service flips the attended flag of registrants exactly once.
type Service struct {
	store Store
	log   zerolog.Logger
}

// NewService creates a service backed by a store.
func NewService(store Store, log zerolog.Logger) *Service {
	return &Service{store: store, log: log.With().Str("component", "attendance").Logger()}
}

// Mark sets attended for id on behalf of staffEmail.
//
// The transition is a single conditional update, so of several concurrent
// calls for the same id exactly one succeeds. The others get an AlreadyMarked
// error together with the current record. An unknown id yields NotFound.
func (s *Service) Mark(ctx context.Context, id int64, staffEmail string) (registration.Registration, error) {
	if id <= 0 {
		return registration.Registration{}, apperr.New(apperr.Validation, "User ID is required")
	}

	reg, err := s.store.MarkAttended(ctx, id, staffEmail)
	if err != nil {
		metrics.Attendance.WithLabelValues("error").Inc()
		return registration.Registration{}, apperr.Wrap(apperr.Internal, "Failed to update attendance", err)
	}
	if reg != nil {
		metrics.Attendance.WithLabelValues("marked").Inc()
		s.log.Info().Int64("registration_id", id).Str("staff", staffEmail).Msg("attendance marked")
		return *reg, nil
	}

	// No row moved from false to true: either the id is unknown or it was already marked.
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		metrics.Attendance.WithLabelValues("error").Inc()
		return registration.Registration{}, apperr.Wrap(apperr.Internal, "Failed to update attendance", err)
	}
	if existing == nil {
		metrics.Attendance.WithLabelValues("not_found").Inc()
		return registration.Registration{}, apperr.New(apperr.NotFound, "Registration not found")
	}
	metrics.Attendance.WithLabelValues("already_marked").Inc()
	return *existing, apperr.New(apperr.AlreadyMarked, "Attendance already marked for this user")
}

// Scan decodes a scanned QR payload and marks the registrant it names.
func (s *Service) Scan(ctx context.Context, qrData, staffEmail string) (registration.Registration, error) {
	id, err := qrpass.Parse(qrData)
	if err != nil {
		metrics.Attendance.WithLabelValues("invalid").Inc()
		return registration.Registration{}, err
	}
	return s.Mark(ctx, id, staffEmail)
}
