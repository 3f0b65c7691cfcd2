package domain

import "time"

// User is an account. PasswordHash is nil for accounts created through OAuth.
type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash *string
	GoogleID     *string
	CreatedAt    time.Time
}

// Profile holds the public, user-editable part of an account.
type Profile struct {
	UserID    string
	Bio       string
	AvatarURL *string
	HomeTown  *string
	UpdatedAt time.Time
}
