// Package domain defines the persistence models for conversations, messages,
// collected onboarding data, error events, sports centers, and feedback.
// These types are mapped with GORM and form the core data layer of the
// onboarding backoffice.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Conversation represents one onboarding session. It tracks the negotiated
// language, the lifecycle status, and (after a successful provisioning call)
// a back-reference to the produced sports center.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - SessionID: stable identifier supplied by the chat layer; indexed.
//   - Language: negotiated BCP-47 tag (e.g. "es", "en").
//   - Status: lifecycle status, see status.go for the transition graph.
//   - SportsCenterID: set once when the conversation completes.
//   - CreatedAt / UpdatedAt: UpdatedAt is bumped on every state or data
//     mutation and is what the abandonment sweep inspects.
type Conversation struct {
	ID             string    `json:"id"               gorm:"type:char(36);primaryKey"`
	SessionID      string    `json:"session_id"       gorm:"type:varchar(64);not null;index:idx_conversation_session"`
	Language       string    `json:"language"         gorm:"type:varchar(16);not null;default:'es'"`
	Status         string    `json:"status"           gorm:"type:varchar(16);not null;default:'active';index;check:status IN ('active','completed','abandoned','error')"`
	SportsCenterID *string   `json:"sports_center_id,omitempty" gorm:"type:char(36)"`
	CreatedAt      time.Time `json:"created_at"       gorm:"index"`
	UpdatedAt      time.Time `json:"updated_at"       gorm:"index"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// Message represents a single utterance within a conversation. Messages are
// immutable once created and are ordered by (CreatedAt, ID) ascending; that
// order is the canonical event order consumed by the lifecycle service and
// the collected-data projector.
//
// Metadata optionally carries structured assistant output: model and token
// usage, a detected function call, a collected-data partial, or an attached
// error. It is stored as a JSON column and parsed into MessageMetadata.
type Message struct {
	ID             string         `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID string         `json:"conversation_id" gorm:"type:char(36);not null;index:idx_conversation_msgs,priority:1"`
	Role           string         `json:"role"            gorm:"type:varchar(16);not null;check:role IN ('user','assistant','system')"`
	Content        string         `json:"content"         gorm:"type:text;not null"`
	Metadata       datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"      gorm:"index:idx_conversation_msgs,priority:2"`

	// Conversation is the parent session. Messages are cascade-deleted if
	// their conversation is removed.
	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// LastError is the most recent failure attributed to a conversation. It is
// replaced (not accumulated) on each new failure; RetryCount carries the
// per-conversation retry counter governed by the configured ceiling.
type LastError struct {
	Code       string     `json:"code,omitempty"        gorm:"type:varchar(32)"`
	Message    string     `json:"message,omitempty"     gorm:"type:text"`
	RetryCount int        `json:"retry_count"           gorm:"not null;default:0"`
	OccurredAt *time.Time `json:"occurred_at,omitempty"`
}

// CollectedData is the derived, mutable projection of the onboarding form,
// scoped one-to-one with a Conversation. Fields are filled incrementally from
// assistant-message partials and never revert to null once set; Facilities is
// replaced wholesale by the latest full list supplied upstream.
type CollectedData struct {
	ID               string         `json:"id"                gorm:"type:char(36);primaryKey"`
	ConversationID   string         `json:"conversation_id"   gorm:"type:char(36);not null;uniqueIndex"`
	SportsCenterName *string        `json:"sports_center_name,omitempty" gorm:"type:varchar(255)"`
	City             *string        `json:"city,omitempty"    gorm:"type:varchar(255)"`
	AdminName        *string        `json:"admin_name,omitempty"  gorm:"type:varchar(255)"`
	AdminEmail       *string        `json:"admin_email,omitempty" gorm:"type:varchar(255);index"`
	Facilities       datatypes.JSON `json:"facilities,omitempty"`
	Confirmed        bool           `json:"confirmed"         gorm:"not null;default:false"`
	EscalatedToHuman bool           `json:"escalated_to_human" gorm:"not null;default:false"`
	EscalationReason *string        `json:"escalation_reason,omitempty" gorm:"type:text"`
	LastError        LastError      `json:"last_error"        gorm:"embedded;embeddedPrefix:last_error_"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`

	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for CollectedData.
func (CollectedData) TableName() string { return "collected_data" }

// ErrorEvent is one entry in the append-only failure ledger. Events are never
// mutated after creation; the retry counter lives on CollectedData.LastError,
// not here.
//
// ConversationID is nullable: system-wide failures are recorded without an
// owning conversation.
type ErrorEvent struct {
	ID             string         `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID *string        `json:"conversation_id,omitempty" gorm:"type:char(36);index"`
	ErrorType      string         `json:"error_type"      gorm:"type:varchar(32);not null;index;check:error_type IN ('sporttia_api_error','openai_api_error','email_failed','validation_error','internal_error')"`
	Message        string         `json:"message"         gorm:"type:text;not null"`
	Details        datatypes.JSON `json:"details,omitempty"`
	CreatedAt      time.Time      `json:"created_at"      gorm:"index"`
}

// TableName returns the database table name for ErrorEvent.
func (ErrorEvent) TableName() string { return "error_events" }

// SportsCenter is the outcome record produced by the provisioning
// collaborator on a successful completion. Immutable after creation.
type SportsCenter struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	ExternalID string    `json:"external_id" gorm:"type:varchar(64);not null;index"`
	Name       string    `json:"name"        gorm:"type:varchar(255);not null"`
	City       string    `json:"city"        gorm:"type:varchar(255);not null"`
	AdminEmail string    `json:"admin_email" gorm:"type:varchar(255);not null"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for SportsCenter.
func (SportsCenter) TableName() string { return "sports_centers" }

// Feedback is a write-once rating left at the end of a session, optionally
// linked to a conversation. Rating is 1..5 or absent.
type Feedback struct {
	ID             string    `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID *string   `json:"conversation_id,omitempty" gorm:"type:char(36);index"`
	Rating         *int      `json:"rating,omitempty" gorm:"check:rating IS NULL OR rating BETWEEN 1 AND 5"`
	Message        string    `json:"message"         gorm:"type:text"`
	Language       string    `json:"language"        gorm:"type:varchar(16)"`
	CreatedAt      time.Time `json:"created_at"      gorm:"index"`
}

// TableName returns the database table name for Feedback.
func (Feedback) TableName() string { return "feedback" }
