package moutamayiz

import (
	"fmt"
	"strings"
	"time"
)

// Role identifies the privilege tier attached to a resolved profile.
type Role string

const (
	// RoleStudent is the default tier for resolved profiles.
	RoleStudent Role = "user"
	// RoleAdmin is the elevated tier granted through the allow-list overlay.
	RoleAdmin Role = "admin"

	// teacherRolePrefix marks subject-scoped moderation roles such as
	// "teacher_math" or "teacher_physics".
	teacherRolePrefix = "teacher_"
)

// Staff reports whether the role can see moderation surfaces, which gates
// the unreplied-message counter refresh.
func (r Role) Staff() bool {
	return r == RoleAdmin || strings.HasPrefix(string(r), teacherRolePrefix)
}

// MessageRecord is one community message inside a topic thread.
type MessageRecord struct {
	// ID is the backend-assigned message identifier and the dedup key for
	// cache appends.
	ID string
	// TopicID identifies the topic thread this message belongs to.
	TopicID string
	// AuthorID identifies the sending user.
	AuthorID string
	// AuthorName is the display name captured at send time.
	AuthorName string
	// Content is the message body.
	Content string
	// CreatedAt is the backend-assigned creation timestamp. Topic threads
	// are ordered ascending by this field.
	CreatedAt time.Time
}

// Validate checks that mandatory message fields are present.
func (m MessageRecord) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("validate message: missing id")
	}
	if m.TopicID == "" {
		return fmt.Errorf("validate message %s: missing topic id", m.ID)
	}
	if m.CreatedAt.IsZero() {
		return fmt.Errorf("validate message %s: missing created_at", m.ID)
	}

	return nil
}

// NotificationRecord is one inbox notification.
//
// An empty UserID means the notification is a broadcast delivered to every
// session; otherwise it targets exactly one user.
type NotificationRecord struct {
	ID      string
	Title   string
	Content string
	UserID  string
	// CreatedAt orders the inbox newest-first.
	CreatedAt time.Time
}

// Targets reports whether this notification should reach the given user.
func (n NotificationRecord) Targets(userID string) bool {
	return n.UserID == "" || n.UserID == userID
}

// ReadReceipt is the backend-owned last-read marker for one (user, topic)
// pair. This core only reads receipts; writing them back is a collaborator
// concern.
type ReadReceipt struct {
	UserID     string
	TopicID    string
	LastReadAt time.Time
}

// ProfileRecord is the resolved user profile for the active session,
// including the allow-list privilege overlay when it applies.
type ProfileRecord struct {
	ID            string
	Name          string
	Email         string
	Role          Role
	Avatar        string
	Volume        int
	Streak        int
	TotalEarnings int
	XP            int
	ReferralCode  string
	ReferredBy    string
	ReferralCount int
}

// LessonRecord is one lesson content row for a section. The cache treats the
// row as opaque beyond its identifiers.
type LessonRecord struct {
	ID        string
	SectionID string
	Title     string
	Content   string
	Position  int
}

// Topic is one configured discussion subject.
type Topic struct {
	// ID is the stable topic identifier used as the message namespace key.
	ID string
	// Name is the display name used when delivering message notifications.
	Name string
}

// Session carries the authenticated identity through every component entry
// point, replacing the ambient shared state the original client relied on.
type Session struct {
	// UserID is the authenticated user's identity id.
	UserID string
	// Email is the normalized (lowercased, trimmed) sign-in email.
	Email string
	// Profile is the resolved profile record, including any privilege
	// overlay applied at resolution time.
	Profile ProfileRecord
}

// Validate checks that the session carries a usable identity.
func (s Session) Validate() error {
	if s.UserID == "" {
		return fmt.Errorf("validate session: missing user id")
	}

	return nil
}

// NormalizeEmail lowercases and trims an email for allow-list comparison and
// session identity.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
