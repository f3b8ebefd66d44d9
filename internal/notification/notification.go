// Package notification holds the notification entity, its two-state
// lifecycle, and the service that enforces targeting and transition rules.
package notification

import (
	"time"

	"github.com/google/uuid"
)

// Type classifies the event a notification describes.
type Type string

const (
	TypeInterest             Type = "INTEREST"
	TypeContact              Type = "CONTACT"
	TypePaymentProof         Type = "PAYMENT_PROOF"
	TypePaymentOverdueNotice Type = "PAYMENT_OVERDUE_NOTICE"
	TypeListingStatusChange  Type = "LISTING_STATUS_CHANGE"
	TypeContractStatusChange Type = "CONTRACT_STATUS_CHANGE"
	TypeNewAgentAssignment   Type = "NEW_AGENT_ASSIGNMENT"
)

// Valid reports whether t is one of the known notification types.
func (t Type) Valid() bool {
	switch t {
	case TypeInterest, TypeContact, TypePaymentProof, TypePaymentOverdueNotice,
		TypeListingStatusChange, TypeContractStatusChange, TypeNewAgentAssignment:
		return true
	}
	return false
}

// Status is the delivery-independent lifecycle state.
// The only legal transition is SENT -> OPENED.
type Status string

const (
	StatusSent   Status = "SENT"
	StatusOpened Status = "OPENED"
)

// Notification is a persisted record describing a targeted alert to one
// or more users and/or raw email addresses. Whether an email was actually
// delivered is tracked separately and never reflected into Status.
type Notification struct {
	ID            uuid.UUID  `json:"id"`
	TargetUserIDs []string   `json:"target_user_ids"`
	TargetMails   []string   `json:"target_mails,omitempty"`
	Type          Type       `json:"type"`
	Status        Status     `json:"status"`
	MultimediaID  *string    `json:"multimedia_id,omitempty"`
	ViewerID      *string    `json:"viewer_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	DeletedAt     *time.Time `json:"-"`

	// Version is bumped by the store on every save. A stale save is
	// rejected with ErrVersionConflict, which is what serializes
	// concurrent open attempts on the same record.
	Version int64 `json:"-"`
}

// Clone returns a deep copy so stored records cannot be mutated through
// returned pointers.
func (n *Notification) Clone() *Notification {
	c := *n
	c.TargetUserIDs = append([]string(nil), n.TargetUserIDs...)
	c.TargetMails = append([]string(nil), n.TargetMails...)
	if n.MultimediaID != nil {
		v := *n.MultimediaID
		c.MultimediaID = &v
	}
	if n.ViewerID != nil {
		v := *n.ViewerID
		c.ViewerID = &v
	}
	if n.DeletedAt != nil {
		v := *n.DeletedAt
		c.DeletedAt = &v
	}
	return &c
}

// TargetsUser reports whether userID is among the notification's target users.
func (n *Notification) TargetsUser(userID string) bool {
	for _, id := range n.TargetUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Patch is a partial update applied by Service.Update. Nil fields are
// left unchanged; slice fields replace the stored value wholesale.
type Patch struct {
	TargetUserIDs []string `json:"target_user_ids,omitempty"`
	TargetMails   []string `json:"target_mails,omitempty"`
	Type          *Type    `json:"type,omitempty"`
	MultimediaID  *string  `json:"multimedia_id,omitempty"`
}
