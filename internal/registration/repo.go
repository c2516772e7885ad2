package registration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicateEmail is returned by Insert when the email is already registered.
var ErrDuplicateEmail = errors.New("email already registered")

// uniqueViolation is the Postgres SQLSTATE for unique constraint failures.
const uniqueViolation = "23505"

const columns = `id, first_name, last_name, email, phone, year, branch, attended, attended_at, checked_in_by, created_at`

// Repository persists registrations in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRegistration(row scanner) (Registration, error) {
	var r Registration
	err := row.Scan(&r.ID, &r.FirstName, &r.LastName, &r.Email, &r.Phone, &r.Year, &r.Branch,
		&r.Attended, &r.AttendedAt, &r.CheckedInBy, &r.CreatedAt)
	return r, err
}

// Insert writes a new registration and fills in its id and creation time.
func (r *Repository) Insert(ctx context.Context, reg *Registration) error {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO registrations (first_name, last_name, email, phone, year, branch)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, attended, created_at
	`, reg.FirstName, reg.LastName, reg.Email, reg.Phone, reg.Year, reg.Branch)
	if err := row.Scan(&reg.ID, &reg.Attended, &reg.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}

// Get returns a registration by id, or nil when it does not exist.
func (r *Repository) Get(ctx context.Context, id int64) (*Registration, error) {
	reg, err := scanRegistration(r.db.QueryRowContext(ctx,
		`SELECT `+columns+` FROM registrations WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &reg, nil
}

// MarkAttended flips attended from false to true in one statement.
// It returns the updated row, or nil when no row was in the not-attended state.
func (r *Repository) MarkAttended(ctx context.Context, id int64, staffEmail string) (*Registration, error) {
	var by any
	if staffEmail != "" {
		by = staffEmail
	}
	reg, err := scanRegistration(r.db.QueryRowContext(ctx, `
		UPDATE registrations
		SET attended = TRUE, attended_at = NOW(), checked_in_by = $2
		WHERE id = $1 AND attended = FALSE
		RETURNING `+columns, id, by))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &reg, nil
}

// List returns registrations newest first, optionally filtered by a case-insensitive
// match on first name, last name or email, and the total number of matches.
func (r *Repository) List(ctx context.Context, search string, limit, offset int) ([]Registration, int, error) {
	where := ""
	args := []any{}
	if search != "" {
		where = " WHERE first_name ILIKE $1 OR last_name ILIKE $1 OR email ILIKE $1"
		args = append(args, "%"+escapeLike(search)+"%")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM registrations`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count registrations: %w", err)
	}

	query := `SELECT ` + columns + ` FROM registrations` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	res := []Registration{}
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, 0, err
		}
		res = append(res, reg)
	}
	return res, total, rows.Err()
}

// Stats aggregates attendance counts.
func (r *Repository) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE attended),
			COUNT(*) FILTER (WHERE NOT attended),
			COALESCE(ROUND(COUNT(*) FILTER (WHERE attended) * 100.0 / NULLIF(COUNT(*), 0), 2), 0)::float8
		FROM registrations
	`).Scan(&s.TotalRegistrations, &s.TotalAttended, &s.TotalNotAttended, &s.AttendancePercentage)
	return s, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
