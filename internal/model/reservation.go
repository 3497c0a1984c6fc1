package model

import "time"

// Reservation statuses.  Only Confirmed and Cancelled can be set through the
// update endpoint; Withdrawal marks goods that were collected and is written
// by administrative tooling.
const (
	ReservationConfirmed  = "confirmed"
	ReservationCancelled  = "cancelled"
	ReservationWithdrawal = "withdrawal"
)

// Reservation binds one client to one place of a post.
type Reservation struct {
	ID       uint64    `json:"id"`
	PostID   uint64    `json:"post_id"`
	ClientID uint64    `json:"client_id"`
	Date     time.Time `json:"reservation_date"`
	Status   string    `json:"reservation_status"`
}

// ReservationDetail is a reservation joined with the data list screens show:
// the post title and owner, the reserving client's name and the post's city.
type ReservationDetail struct {
	Reservation
	PostTitle   string  `json:"post_title"`
	PostOwnerID uint64  `json:"post_owner_id"`
	Username    string  `json:"username"`
	City        *string `json:"city"`
}

// IsUpdatableStatus reports whether s may be set through the update endpoint.
func IsUpdatableStatus(s string) bool {
	return s == ReservationConfirmed || s == ReservationCancelled
}
