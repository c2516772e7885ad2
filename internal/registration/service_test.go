package registration_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventgate/internal/apperr"
	"eventgate/internal/registration"
	"eventgate/internal/testutil"
)

func validInput() registration.Input {
	return registration.Input{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "ada@example.edu",
		Phone:     "9876543210",
		Year:      "TE",
		Branch:    "Computer",
	}
}

func newService() (*registration.Service, *testutil.Registrations, *testutil.Notifier) {
	store := testutil.NewRegistrations()
	notifier := &testutil.Notifier{}
	return registration.NewService(store, notifier, zerolog.Nop()), store, notifier
}

func TestRegister(t *testing.T) {
	svc, store, notifier := newService()
	ctx := context.Background()

	in := validInput()
	in.Email = "  Ada@Example.EDU "
	in.FirstName = " Ada "
	reg, err := svc.Register(ctx, in)
	require.NoError(t, err)

	assert.NotZero(t, reg.ID)
	assert.Equal(t, "ada@example.edu", reg.Email)
	assert.Equal(t, "Ada", reg.FirstName)
	assert.False(t, reg.Attended)
	assert.Equal(t, 1, store.Count())
	require.Len(t, notifier.Sent, 1)
	assert.Equal(t, reg.ID, notifier.Sent[0].ID)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, store, _ := newService()
	ctx := context.Background()

	_, err := svc.Register(ctx, validInput())
	require.NoError(t, err)

	again := validInput()
	again.Email = "ADA@example.edu"
	again.FirstName = "Someone"
	_, err = svc.Register(ctx, again)
	require.Error(t, err)
	assert.Equal(t, apperr.DuplicateEmail, apperr.KindOf(err))
	assert.Equal(t, 1, store.Count())
}

func TestRegisterValidation(t *testing.T) {
	blank := func(f func(*registration.Input)) registration.Input {
		in := validInput()
		f(&in)
		return in
	}
	cases := map[string]struct {
		in  registration.Input
		msg string
	}{
		"first name":  {blank(func(i *registration.Input) { i.FirstName = "" }), "All fields are required"},
		"last name":   {blank(func(i *registration.Input) { i.LastName = "  " }), "All fields are required"},
		"email":       {blank(func(i *registration.Input) { i.Email = "" }), "All fields are required"},
		"phone":       {blank(func(i *registration.Input) { i.Phone = "" }), "All fields are required"},
		"year":        {blank(func(i *registration.Input) { i.Year = "" }), "All fields are required"},
		"branch":      {blank(func(i *registration.Input) { i.Branch = "\t" }), "All fields are required"},
		"bad email":   {blank(func(i *registration.Input) { i.Email = "not-an-email" }), "Please enter a valid email address"},
		"long phone":  {blank(func(i *registration.Input) { i.Phone = "012345678901234567890" }), "Phone is too long"},
		"both issues": {blank(func(i *registration.Input) { i.Email = "nope"; i.Branch = "" }), "All fields are required"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			svc, store, notifier := newService()
			_, err := svc.Register(context.Background(), tc.in)
			require.Error(t, err)
			assert.Equal(t, apperr.Validation, apperr.KindOf(err))

			var ae *apperr.Error
			require.True(t, errors.As(err, &ae))
			assert.Equal(t, tc.msg, ae.Msg)
			assert.Zero(t, store.Count())
			assert.Empty(t, notifier.Sent)
		})
	}
}

func TestRegisterNotifierFailureKeepsRow(t *testing.T) {
	svc, store, notifier := newService()
	notifier.Err = errors.New("smtp down")

	reg, err := svc.Register(context.Background(), validInput())
	require.Error(t, err)
	assert.Equal(t, apperr.Internal, apperr.KindOf(err))
	assert.NotZero(t, reg.ID)
	assert.Equal(t, 1, store.Count())
}

func TestRegisterStoreFailure(t *testing.T) {
	svc, store, _ := newService()
	store.Err = errors.New("db gone")

	_, err := svc.Register(context.Background(), validInput())
	assert.Equal(t, apperr.Internal, apperr.KindOf(err))
}

func TestGet(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()
	reg, err := svc.Register(ctx, validInput())
	require.NoError(t, err)

	got, err := svc.Get(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, reg.Email, got.Email)

	_, err = svc.Get(ctx, 999)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))

	_, err = svc.Get(ctx, 0)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
}

func TestListAndStats(t *testing.T) {
	svc, store, _ := newService()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		in := validInput()
		in.Email = fmt.Sprintf("user%d@example.edu", i)
		in.LastName = fmt.Sprintf("Person%d", i)
		_, err := svc.Register(ctx, in)
		require.NoError(t, err)
	}
	_, err := store.MarkAttended(ctx, 1, "")
	require.NoError(t, err)

	page, err := svc.List(ctx, registration.Query{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 1, page.CurrentPage)
	require.Len(t, page.Registrations, 2)
	assert.Equal(t, "user4@example.edu", page.Registrations[0].Email)

	page, err = svc.List(ctx, registration.Query{Page: 3, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Registrations, 1)
	assert.Equal(t, "user0@example.edu", page.Registrations[0].Email)

	page, err = svc.List(ctx, registration.Query{Search: "PERSON3"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	page, err = svc.List(ctx, registration.Query{Page: -1, Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, 1, page.CurrentPage)
	assert.Equal(t, 1, page.TotalPages)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, registration.Stats{
		TotalRegistrations:   5,
		TotalAttended:        1,
		TotalNotAttended:     4,
		AttendancePercentage: 20,
	}, stats)
}

func TestStatsEmpty(t *testing.T) {
	svc, _, _ := newService()
	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.AttendancePercentage)
	assert.Zero(t, stats.TotalRegistrations)
}
