package models

import (
	"time"
)

// Reading is a single volume measurement reported by a device.
// Readings are append-only; the service never updates or deletes them.
type Reading struct {
	ID        int64     `db:"id" json:"-"`
	DeviceID  string    `db:"device_id" json:"device_id"`
	VolumeML  int64     `db:"volume_ml" json:"volume_ml"`
	Timestamp time.Time `db:"timestamp" json:"timestamp"`
}

// Device represents a reporting device. Devices are created lazily on the
// first reading from an unseen device_id, with name and organisation unset.
type Device struct {
	DeviceID       string  `db:"device_id" json:"device_id"`
	Name           *string `db:"name" json:"name"`
	OrganisationID *int64  `db:"organisation_id" json:"organisation_id"`
}

// User represents a registered dashboard user
type User struct {
	ID             int64   `db:"id" json:"id"`
	Email          string  `db:"email" json:"email"`
	PasswordHash   string  `db:"password_hash" json:"-"` // bcrypt hash, never returned in JSON
	OrganisationID *int64  `db:"organisation_id" json:"organisation_id"`
	RoleID         *int64  `db:"role_id" json:"role_id"`
}

// Organisation groups users and devices
type Organisation struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// Role names a user's role within an organisation
type Role struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// Identity is the request-scoped user context derived from the session
// cookie. It lives for one request and is never persisted.
type Identity struct {
	UserID         int64
	Email          string
	OrganisationID *int64
}

// TimeRange is an optional [Start, End] filter with inclusive bounds.
// A nil bound leaves that side unbounded.
type TimeRange struct {
	Start *time.Time
	End   *time.Time
}

// Empty reports whether the range can match no timestamp at all
// (both bounds set and start after end).
func (r TimeRange) Empty() bool {
	return r.Start != nil && r.End != nil && r.Start.After(*r.End)
}

// Contains reports whether t falls within the range, bounds inclusive.
func (r TimeRange) Contains(t time.Time) bool {
	if r.Start != nil && t.Before(*r.Start) {
		return false
	}
	if r.End != nil && t.After(*r.End) {
		return false
	}
	return true
}

// DeviceUpdate is the allow-listed partial update for a device. Fields left
// nil are not touched; unknown JSON keys are dropped during binding.
type DeviceUpdate struct {
	Name           *string `json:"name"`
	OrganisationID *int64  `json:"organisation_id"`
}

// UserUpdate is the allow-listed partial update for a user.
type UserUpdate struct {
	Email          *string `json:"email"`
	OrganisationID *int64  `json:"organisation_id"`
	RoleID         *int64  `json:"role_id"`
}

// Bucket is one histogram entry: the bucket start (timestamp truncated to
// the requested interval) and the summed volume within it.
type Bucket struct {
	Timestamp   time.Time `db:"bucket" json:"timestamp"`
	TotalVolume int64     `db:"total" json:"total_volume"`
}

// DeviceTotal is a dashboard row: a device and its all-time volume total.
type DeviceTotal struct {
	DeviceID    string  `db:"device_id" json:"device_id"`
	Name        *string `db:"name" json:"name"`
	TotalVolume int64   `db:"total_volume" json:"total_volume"`
}
