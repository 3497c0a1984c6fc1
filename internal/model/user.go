package model

import "time"

// Client represents a registered user as stored in the `client` table.
// PasswordHash and GoogleID never leave the server.  AddressID is nil for
// accounts created through Google sign-in until the user completes their
// profile.
type Client struct {
	ID               uint64    `json:"id"`
	Username         string    `json:"username"`
	Email            string    `json:"email"`
	PasswordHash     string    `json:"-"`
	Street           string    `json:"street"`
	StreetNumber     string    `json:"street_number"`
	AddressID        *uint64   `json:"address_id"`
	City             *string   `json:"city,omitempty"`
	PostalCode       *string   `json:"postal_code,omitempty"`
	IsAdmin          bool      `json:"is_admin"`
	RegistrationDate time.Time `json:"registration_date"`
	Photo            *string   `json:"photo"`
	GoogleID         *string   `json:"-"`
}

// Address is a (city, postal code) pair imported from the open-data API.
// Rows are reference data: created once and shared by clients and posts.
type Address struct {
	ID         uint64 `json:"id"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
}
