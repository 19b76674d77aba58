// Package state defines the canonical membership document — users, payments
// and the audit log — together with the scoring and merge rules every
// persistence and replication decision is based on.
//
// Timestamps are stored as RFC3339 strings rather than time.Time: legacy
// state files may carry empty or malformed values, and the document must
// still load. Use ParseTime for lenient comparison.
package state

import (
	"strings"
	"time"
	"unicode"
)

// Collection bounds. Oldest entries are trimmed when a cap is exceeded.
const (
	MaxPayments = 20000
	MaxAudit    = 5000
)

// User is a member record. Users are never physically removed; deletion is
// the IsDeleted flag.
type User struct {
	ID           string `json:"id"`
	Login        string `json:"login"`
	Salt         string `json:"salt,omitempty"`
	PasswordHash string `json:"passwordHash,omitempty"`
	IsActive     bool   `json:"isActive"`
	IsDeleted    bool   `json:"isDeleted"`
	CreatedAt    string `json:"createdAt,omitempty"`
	LastLoginAt  string `json:"lastLoginAt,omitempty"`
	LastSeenAt   string `json:"lastSeenAt,omitempty"`
}

// Payment records one member's dues for one month. Uniqueness of
// (UserID, Month) is enforced by the mutation layer, not here.
type Payment struct {
	ID     string  `json:"id,omitempty"`
	UserID string  `json:"userId"`
	Month  string  `json:"month"`
	PaidAt string  `json:"paidAt,omitempty"`
	Amount float64 `json:"amount,omitempty"`
	Method string  `json:"method,omitempty"`
	Notes  string  `json:"notes,omitempty"`
}

// AuditRecord is one append-only audit log entry.
type AuditRecord struct {
	ID      string `json:"id,omitempty"`
	At      string `json:"at"`
	Action  string `json:"action"`
	Target  string `json:"target,omitempty"`
	Details string `json:"details,omitempty"`
}

// Document is the full application state. All three collections are always
// present; Normalize coerces nil slices after JSON decoding.
type Document struct {
	Users    []User        `json:"users"`
	Payments []Payment     `json:"payments"`
	Audit    []AuditRecord `json:"audit"`
}

// New returns an empty, normalized document.
func New() *Document {
	return &Document{
		Users:    []User{},
		Payments: []Payment{},
		Audit:    []AuditRecord{},
	}
}

// Normalize coerces nil collections to empty slices and applies the
// collection caps, trimming from the oldest end.
func (d *Document) Normalize() {
	if d.Users == nil {
		d.Users = []User{}
	}
	if d.Payments == nil {
		d.Payments = []Payment{}
	}
	if d.Audit == nil {
		d.Audit = []AuditRecord{}
	}
	if len(d.Payments) > MaxPayments {
		d.Payments = append([]Payment{}, d.Payments[len(d.Payments)-MaxPayments:]...)
	}
	if len(d.Audit) > MaxAudit {
		d.Audit = append([]AuditRecord{}, d.Audit[len(d.Audit)-MaxAudit:]...)
	}
}

// Score is the weighted richness metric used to compare snapshots. A higher
// score means more data; zero means the document is empty.
func (d *Document) Score() int64 {
	return int64(len(d.Users))*1_000_000 + int64(len(d.Payments))*1_000 + int64(len(d.Audit))
}

// Clone returns a deep copy, safe to hand to background writers while the
// original keeps being mutated.
func (d *Document) Clone() *Document {
	c := &Document{
		Users:    make([]User, len(d.Users)),
		Payments: make([]Payment, len(d.Payments)),
		Audit:    make([]AuditRecord, len(d.Audit)),
	}
	copy(c.Users, d.Users)
	copy(c.Payments, d.Payments)
	copy(c.Audit, d.Audit)
	return c
}

// UserByID returns a pointer into d.Users for the given id, or nil.
func (d *Document) UserByID(id string) *User {
	for i := range d.Users {
		if d.Users[i].ID == id {
			return &d.Users[i]
		}
	}
	return nil
}

// UserByLogin returns a pointer into d.Users whose normalized login matches,
// or nil. Soft-deleted users are still found; callers decide what deletion
// means for them.
func (d *Document) UserByLogin(login string) *User {
	want := NormalizeLogin(login)
	for i := range d.Users {
		if NormalizeLogin(d.Users[i].Login) == want {
			return &d.Users[i]
		}
	}
	return nil
}

// NormalizeLogin reduces a login to its comparable form. Logins are usually
// phone numbers entered in arbitrary formats, so when the value contains any
// digits only the digits are kept; otherwise it is lowercased and trimmed.
func NormalizeLogin(login string) string {
	var digits strings.Builder
	for _, r := range login {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}
	if digits.Len() > 0 {
		return digits.String()
	}
	return strings.ToLower(strings.TrimSpace(login))
}

// ParseTime parses an RFC3339 timestamp leniently: empty or malformed values
// come back as the zero time instead of an error.
func ParseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Now renders the current UTC time in the document's timestamp format.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
