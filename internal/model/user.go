package model

import "time"

type User struct {
	UserID       int64
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
