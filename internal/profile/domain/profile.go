package domain

import (
	"errors"
	"time"
)

// AccountType is the closed set of profile account categories.
type AccountType string

const (
	AccountTypeIndividual AccountType = "individual"
	AccountTypeBusiness   AccountType = "business"
	AccountTypeAgent      AccountType = "agent"
)

// Valid reports whether the account type is a known value.
func (t AccountType) Valid() bool {
	return t == AccountTypeIndividual || t == AccountTypeBusiness || t == AccountTypeAgent
}

// Profile is the durable, one-per-account identity record (stored in the profiles
// table, unique on account_id). First writer wins; created once, updated many times.
type Profile struct {
	AccountID   string
	Email       string
	DisplayName string
	AccountType AccountType
	// Completed reports whether onboarding finished.
	Completed bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the fields the storage layer cannot.
func (p *Profile) Validate() error {
	if p.AccountID == "" {
		return errors.New("profile: account id is required")
	}
	if p.Email == "" {
		return errors.New("profile: email is required")
	}
	if !p.AccountType.Valid() {
		return errors.New("profile: unknown account type")
	}
	return nil
}
