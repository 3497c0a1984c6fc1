package model

import "time"

// Post statuses.
const (
	PostAvailable   = "available"
	PostUnavailable = "unavailable"
)

// Post is a listing of goods with a number of reservable places.
type Post struct {
	ID             uint64    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	NumberOfPlaces int       `json:"number_of_places"`
	Status         string    `json:"post_status"`
	Photo          *string   `json:"photo"`
	Street         string    `json:"street"`
	StreetNumber   string    `json:"street_number"`
	AddressID      uint64    `json:"address_id"`
	ClientID       uint64    `json:"client_id"`
	Date           time.Time `json:"post_date"`
}

// PostDetail adds the joined and computed fields returned by read endpoints.
// PlacesRemaining is number_of_places minus confirmed reservations, computed
// on every read.
type PostDetail struct {
	Post
	Username        string     `json:"username"`
	City            string     `json:"city"`
	PostalCode      string     `json:"postal_code"`
	PlacesRemaining int        `json:"places_remaining"`
	Categories      []Category `json:"categories"`
}

// IsValidPostStatus reports whether s is a known post status.
func IsValidPostStatus(s string) bool {
	return s == PostAvailable || s == PostUnavailable
}

// Category is a product type a post can be tagged with.
type Category struct {
	ID   uint64 `json:"id"`
	Name string `json:"name_category"`
}

// Comment is a message left by a client on a post.
type Comment struct {
	ID       uint64    `json:"id"`
	Content  string    `json:"content"`
	Date     time.Time `json:"date"`
	PostID   uint64    `json:"post_id"`
	ClientID uint64    `json:"client_id"`
	Username string    `json:"username,omitempty"`
}

// Stats aggregates the dashboard counters.
type Stats struct {
	TotalPosts        int64 `json:"total_posts"`
	TotalReservations int64 `json:"total_reservations"`
	Withdrawals       int64 `json:"withdrawals"`
	ActiveUsers       int64 `json:"active_users"`
}
