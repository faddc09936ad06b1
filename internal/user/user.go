package user

import "time"

// User owns reminders. Timezone is an IANA zone name ("America/New_York")
// and decides when that user's reminders are due.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Timezone  string    `json:"timezone"`
	CreatedAt time.Time `json:"created_at"`
}

func New(id, name, email, timezone string) *User {
	if timezone == "" {
		timezone = "UTC"
	}
	return &User{
		ID:        id,
		Name:      name,
		Email:     email,
		Timezone:  timezone,
		CreatedAt: time.Now().UTC(),
	}
}
