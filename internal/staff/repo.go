package staff

import (
	"context"
	"database/sql"
	"errors"
)

// Member is an allow-listed staff account.
type Member struct {
	ID    int64
	Email string
	Name  *string
}

// Repository reads and backfills the staff allow-list in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// FindByEmail returns the member with email, or nil when not allow-listed.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*Member, error) {
	var m Member
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, name FROM authorized_staff WHERE email = $1
	`, email).Scan(&m.ID, &m.Email, &m.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// BackfillName sets the display name only when none is stored yet.
func (r *Repository) BackfillName(ctx context.Context, id int64, name string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE authorized_staff SET name = $2 WHERE id = $1 AND name IS NULL
	`, id, name)
	return err
}
