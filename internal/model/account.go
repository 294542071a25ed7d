package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Account is the server-side user record. The credential material never
// crosses the API boundary.
type Account struct {
	ID          uuid.UUID
	Username    string
	DisplayName string
	Email       string
	PwdHash     []byte
	Salt        []byte
	QuickAccess []string
	CreatedAt   time.Time
}

// Public returns the wire-format view of the account.
func (a Account) Public() User {
	return User{
		ID:                        a.ID.String(),
		Username:                  a.Username,
		DisplayName:               a.DisplayName,
		Email:                     a.Email,
		QuickAccessConfigurations: a.QuickAccess,
	}
}
