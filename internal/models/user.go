package models

import (
	"time"

	"github.com/google/uuid"
)

// SignupBonusCredits is granted to every new account at registration.
const SignupBonusCredits = 10

type User struct {
	ID              uuid.UUID `json:"id"`
	Email           string    `json:"email"`
	DisplayName     string    `json:"display_name"`
	PasswordHash    string    `json:"-"`
	Credits         int       `json:"credits"`
	Subscribed      bool      `json:"subscribed"`
	DailyCreditCap  *int      `json:"daily_credit_cap,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
