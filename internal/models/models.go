package models

import (
	"time"
)

// Target types a flag or vote can point at.
const (
	TargetPost  = "post"
	TargetReply = "reply"
)

// Flag statuses.
const (
	FlagPending  = "pending"
	FlagReviewed = "reviewed"
)

// SystemReporterID marks flags raised by rules rather than by a user.
const SystemReporterID uint = 0

// User is an account. Only the credential hash may change after creation.
type User struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	EmailLookup  string    `gorm:"size:64;not null;uniqueIndex" json:"-"`
	PasswordHash string    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"-"`
}

// Post is a top-level feed entry. Never deleted, only hidden. Body holds the
// plaintext in memory and BodySealed is what reaches the database.
type Post struct {
	ID            uint      `gorm:"primarykey" json:"id"`
	AuthorID      uint      `gorm:"not null;index" json:"-"` // Never serialized
	Body          string    `gorm:"-" json:"body"`
	BodySealed    string    `gorm:"not null" json:"-"`
	FlagsCount    int       `gorm:"not null;default:0" json:"flagsCount"`
	Hidden        bool      `gorm:"not null;default:false;index" json:"-"`
	KindnessVotes int       `gorm:"not null;default:0" json:"kindnessVotes"`
	CreatedAt     time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt     time.Time `json:"-"`
	Replies       []Reply   `gorm:"foreignKey:PostID" json:"-"`
}

// Reply belongs to a Post and follows the same lifecycle.
type Reply struct {
	ID            uint      `gorm:"primarykey" json:"id"`
	PostID        uint      `gorm:"not null;index" json:"postId"`
	AuthorID      uint      `gorm:"not null;index" json:"-"`
	Body          string    `gorm:"-" json:"body"`
	BodySealed    string    `gorm:"not null" json:"-"`
	FlagsCount    int       `gorm:"not null;default:0" json:"flagsCount"`
	Hidden        bool      `gorm:"not null;default:false" json:"-"`
	KindnessVotes int       `gorm:"not null;default:0" json:"kindnessVotes"`
	CreatedAt     time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt     time.Time `json:"-"`
}

// Flag is a moderation report. At most one per (reporter, target).
type Flag struct {
	ID         uint       `gorm:"primarykey" json:"id"`
	TargetType string     `gorm:"size:16;not null;uniqueIndex:ux_flag_reporter_target,priority:2;index:ix_flag_target,priority:1" json:"targetType"`
	TargetID   uint       `gorm:"not null;uniqueIndex:ux_flag_reporter_target,priority:3;index:ix_flag_target,priority:2" json:"targetId"`
	ReporterID uint       `gorm:"not null;uniqueIndex:ux_flag_reporter_target,priority:1" json:"-"`
	Reason     string     `gorm:"size:64;not null" json:"reason"`
	Details    string     `gorm:"size:500" json:"details,omitempty"`
	Status     string     `gorm:"size:16;not null;default:'pending';index" json:"status"`
	CreatedAt  time.Time  `gorm:"index" json:"createdAt"`
	ReviewedAt *time.Time `json:"reviewedAt,omitempty"`
}

// Conversation is a two-party thread anchored to the post it was started from.
// ParticipantA < ParticipantB always, so the unique index is the canonical pair key.
type Conversation struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	ParticipantA uint      `gorm:"not null;uniqueIndex:ux_conversation_key,priority:1;index" json:"-"`
	ParticipantB uint      `gorm:"not null;uniqueIndex:ux_conversation_key,priority:2;index" json:"-"`
	OriginPostID uint      `gorm:"not null;uniqueIndex:ux_conversation_key,priority:3" json:"originPostId"`
	CreatedAt    time.Time `gorm:"index" json:"createdAt"`
}

// HasParticipant reports whether userID is one of the two parties.
func (c *Conversation) HasParticipant(userID uint) bool {
	return c.ParticipantA == userID || c.ParticipantB == userID
}

// Other returns the counterpart of userID.
func (c *Conversation) Other(userID uint) uint {
	if c.ParticipantA == userID {
		return c.ParticipantB
	}
	return c.ParticipantA
}

// Message is append-only. ID doubles as the insertion sequence for ordering ties.
type Message struct {
	ID             uint      `gorm:"primarykey" json:"id"`
	ConversationID uint      `gorm:"not null;index:ix_message_conversation,priority:1" json:"-"`
	AuthorID       uint      `gorm:"not null" json:"-"`
	Body           string    `gorm:"-" json:"body"`
	BodySealed     string    `gorm:"not null" json:"-"`
	CreatedAt      time.Time `gorm:"index:ix_message_conversation,priority:2" json:"createdAt"`
}

// IPBan blocks every address inside Prefix while Active. Inactive bans are kept for audit.
type IPBan struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	Prefix    string    `gorm:"size:64;not null;uniqueIndex" json:"ipPrefix"`
	Reason    string    `gorm:"size:200" json:"reason"`
	Active    bool      `gorm:"not null;index" json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (IPBan) TableName() string {
	return "ip_bans"
}

// BanRevision is a single-row counter bumped by every ban write, so guards in
// other processes notice the change on their next check.
type BanRevision struct {
	ID       uint  `gorm:"primarykey"`
	Revision int64 `gorm:"not null;default:0"`
}

// Session event actions.
const (
	ActionRegister = "register"
	ActionLogin    = "login"
	ActionPost     = "post"
	ActionReply    = "reply"
	ActionFlag     = "flag"
	ActionDM       = "dm"
)

// SessionEvent is an append-only audit row tying an account action to the
// caller's address. IPLookup is a keyed hash of the address's ban prefix, so
// events can be found by prefix without storing the address in the clear.
type SessionEvent struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"userId"`
	Action    string    `gorm:"size:32;not null" json:"action"`
	IP        string    `gorm:"-" json:"ip"`
	IPLookup  string    `gorm:"size:64;not null;index" json:"-"`
	IPSealed  string    `gorm:"not null" json:"-"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
}

// KindnessVote records one vote per (voter, target).
type KindnessVote struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	VoterID    uint      `gorm:"not null;uniqueIndex:ux_vote_voter_target,priority:1" json:"-"`
	TargetType string    `gorm:"size:16;not null;uniqueIndex:ux_vote_voter_target,priority:2" json:"targetType"`
	TargetID   uint      `gorm:"not null;uniqueIndex:ux_vote_voter_target,priority:3" json:"targetId"`
	CreatedAt  time.Time `json:"createdAt"`
}

// All lists every entity for AutoMigrate.
func All() []any {
	return []any{
		&User{},
		&Post{},
		&Reply{},
		&Flag{},
		&Conversation{},
		&Message{},
		&IPBan{},
		&BanRevision{},
		&KindnessVote{},
		&SessionEvent{},
	}
}
