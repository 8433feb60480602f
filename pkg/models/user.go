package models

import "time"

// User is the scoring view of an account. Identity and sessions live elsewhere.
type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}
