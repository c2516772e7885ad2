package registration

import "time"

// Registration is one attendee row.
type Registration struct {
	ID          int64      `json:"id"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Email       string     `json:"email"`
	Phone       string     `json:"phone"`
	Year        string     `json:"year"`
	Branch      string     `json:"branch"`
	Attended    bool       `json:"attended"`
	AttendedAt  *time.Time `json:"attended_at,omitempty"`
	CheckedInBy *string    `json:"checked_in_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// FullName joins first and last name.
func (r Registration) FullName() string {
	return r.FirstName + " " + r.LastName
}

// Summary is the compact view returned to the scanner.
type Summary struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Year     string `json:"year"`
	Branch   string `json:"branch"`
	Attended bool   `json:"attended"`
}

// Summary returns the scanner view of r.
func (r Registration) Summary() Summary {
	return Summary{
		ID:       r.ID,
		Name:     r.FullName(),
		Email:    r.Email,
		Year:     r.Year,
		Branch:   r.Branch,
		Attended: r.Attended,
	}
}

// Input is a registration form submission.
type Input struct {
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email,max=255"`
	Phone     string `json:"phone" validate:"required,max=20"`
	Year      string `json:"year" validate:"required,max=10"`
	Branch    string `json:"branch" validate:"required,max=100"`
}

// Query selects a page of registrations.
type Query struct {
	Page   int
	Limit  int
	Search string
}

// Page is one page of a listing.
type Page struct {
	Registrations []Registration `json:"registrations"`
	Total         int            `json:"total"`
	CurrentPage   int            `json:"currentPage"`
	TotalPages    int            `json:"totalPages"`
}

// Stats aggregates attendance over all registrations.
type Stats struct {
	TotalRegistrations   int     `json:"total_registrations"`
	TotalAttended        int     `json:"total_attended"`
	TotalNotAttended     int     `json:"total_not_attended"`
	AttendancePercentage float64 `json:"attendance_percentage"`
}
