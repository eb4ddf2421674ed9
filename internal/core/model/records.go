package model

import "time"

type Role string

const (
	RoleCreator  Role = "creator"
	RoleAdmin    Role = "admin"
	RoleAdvocate Role = "advocate"
	RoleAdmirer  Role = "admirer"
)

type LinkStatus string

const (
	LinkPending LinkStatus = "pending"
	LinkActive  LinkStatus = "active"
	LinkRevoked LinkStatus = "revoked"
)

// Membership of a user in a legacy. Pending members have been invited but not accepted.
type Membership struct {
	LegacyID string `json:"legacy_id"`
	UserID   string `json:"user_id"`
	Role     Role   `json:"role"`
	Pending  bool   `json:"pending"`
}

// LegacyLink federates two legacies. Each side declares how much it shares with the other.
type LegacyLink struct {
	ID                 string     `json:"id"`
	RequesterLegacyID  string     `json:"requester_legacy_id"`
	TargetLegacyID     string     `json:"target_legacy_id"`
	Status             LinkStatus `json:"status"`
	RequesterShareMode ShareMode  `json:"requester_share_mode"`
	TargetShareMode    ShareMode  `json:"target_share_mode"`
}

// Counterpart returns the other side of the link and the share mode it declared.
// ok is false when legacyID is not part of the link.
func (l LegacyLink) Counterpart(legacyID string) (id string, mode ShareMode, ok bool) {
	switch legacyID {
	case l.RequesterLegacyID:
		return l.TargetLegacyID, l.TargetShareMode, true
	case l.TargetLegacyID:
		return l.RequesterLegacyID, l.RequesterShareMode, true
	}
	return "", "", false
}

// LinkShare is an explicit grant of one resource across a selective link.
type LinkShare struct {
	ID             string `json:"id"`
	LinkID         string `json:"link_id"`
	SourceLegacyID string `json:"source_legacy_id"`
	ResourceType   string `json:"resource_type"`
	ResourceID     string `json:"resource_id"`
}

// Message is one turn of an AI conversation. Seq increases monotonically per conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Seq            int       `json:"seq"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}
