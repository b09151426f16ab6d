// Package types holds the domain model shared across the pagenotify engine:
// notification rules, delivery bookkeeping records, mail addressing, and the
// error and logging contracts every other package builds on.
package types

import (
	"fmt"
	"strings"
	"time"
)

// SkipStrategy selects how a rule's rendered text is matched against the
// configured skip pattern before a send is attempted.
type SkipStrategy string

// Skip strategy values as stored in the notifications table. The string
// values match the admin form options, including the spelled-out negative.
const (
	SkipNone        SkipStrategy = "none"
	SkipContains    SkipStrategy = "contains"
	SkipNotContains SkipStrategy = "does not contain"
	SkipRegex       SkipStrategy = "regex"
)

// Valid reports whether s is one of the recognized skip strategies.
func (s SkipStrategy) Valid() bool {
	switch s {
	case SkipNone, SkipContains, SkipNotContains, SkipRegex, "":
		return true
	}
	return false
}

// NotificationRule is a configured recurring notification: a content page,
// a set of target groups, a cron-style schedule, and the suppression
// heuristics applied before each send.
//
// Rules are created and edited by the administrative layer; the dispatch
// engine only reads them.
type NotificationRule struct {
	ID           int64
	Groups       []string
	PageID       int64
	Subject      string
	Frequency    string
	MustDiffer   bool
	SkipStrategy SkipStrategy
	SkipText     string
	Enabled      bool
	CreatedBy    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Validate checks the rule invariants that hold independently of the
// content platform: at least one target group, a page reference, and a
// recognized skip strategy. Page existence is only checkable at dispatch
// time and is deliberately not validated here.
func (r *NotificationRule) Validate() error {
	if len(r.Groups) == 0 {
		return fmt.Errorf("notification rule: groups must not be empty")
	}
	if r.PageID <= 0 {
		return fmt.Errorf("notification rule: page reference is required")
	}
	if !r.SkipStrategy.Valid() {
		return fmt.Errorf("notification rule: unknown skip strategy %q", r.SkipStrategy)
	}
	return nil
}

// SentRecord is the aggregate delivery record written once per dispatch run
// of a rule. Text is the canonical (default-locale) plaintext actually sent;
// it doubles as the "last sent text" oracle for the must-differ check.
type SentRecord struct {
	NotificationID int64
	Text           string
	Recipients     int
	CreatedAt      time.Time
}

// UnsubscribeRecord permanently excludes a user from a single rule until the
// record is removed. The (NotificationID, UserID) pair is the natural key.
type UnsubscribeRecord struct {
	NotificationID int64
	UserID         int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EventTypeRead is the only engagement event type currently recorded: the
// tracking pixel of a sent message was fetched.
const EventTypeRead = "read"

// EngagementEvent records that a sent message was later opened. The
// NotificationDatetime is the dispatch run timestamp recovered from the
// tracking token, not the time the event arrived.
type EngagementEvent struct {
	NotificationID       int64
	NotificationDatetime string
	MessageID            string
	Type                 string
	CreatedAt            time.Time
}

// Address is a mail address with an optional display name.
type Address struct {
	Email string
	Name  string
}

// String formats the address for a mail header: "Name <email>" when a
// display name is present, the bare address otherwise.
func (a Address) String() string {
	if a.Name == "" {
		return a.Email
	}
	return fmt.Sprintf("%s <%s>", a.Name, a.Email)
}

// UserContact is the slice of a platform user the dispatch engine needs:
// a delivery address, a display name for the To header, and the locale the
// content should be rendered in. Email may be empty for users who never
// confirmed an address; such users are skipped per recipient, not per rule.
type UserContact struct {
	ID     int64
	Email  string
	Name   string
	Locale string
}

// HasEmail reports whether the user has a usable delivery address.
func (u UserContact) HasEmail() bool {
	return strings.TrimSpace(u.Email) != ""
}

// Attachment is a single independently attached file.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// TimestampLayout is the wire format for run timestamps embedded in tracking
// tokens and stored in notifications_events.notification_datetime.
const TimestampLayout = "2006-01-02 15:04:05"
