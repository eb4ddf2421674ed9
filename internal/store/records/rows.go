package records

import (
	"time"

	"github.com/agenthands/keepsake/internal/core/model"
)

// Row types map the application's tables. Only the columns the engine reads are declared.

type legacyMemberRow struct {
	LegacyID string `gorm:"column:legacy_id"`
	UserID   string `gorm:"column:user_id"`
	Role     string `gorm:"column:role"`
}

func (legacyMemberRow) TableName() string { return "legacy_members" }

func (r legacyMemberRow) toModel() model.Membership {
	m := model.Membership{
		LegacyID: r.LegacyID,
		UserID:   r.UserID,
		Role:     model.Role(r.Role),
	}
	// Invitations that were not accepted yet are stored with the "pending" role.
	if r.Role == "pending" {
		m.Pending = true
	}
	return m
}

type legacyLinkRow struct {
	ID                 string     `gorm:"column:id"`
	RequesterLegacyID  string     `gorm:"column:requester_legacy_id"`
	TargetLegacyID     string     `gorm:"column:target_legacy_id"`
	Status             string     `gorm:"column:status"`
	RequesterShareMode string     `gorm:"column:requester_share_mode"`
	TargetShareMode    string     `gorm:"column:target_share_mode"`
	RevokedAt          *time.Time `gorm:"column:revoked_at"`
}

func (legacyLinkRow) TableName() string { return "legacy_links" }

func (r legacyLinkRow) toModel() model.LegacyLink {
	status := model.LinkStatus(r.Status)
	if r.RevokedAt != nil {
		status = model.LinkRevoked
	}
	return model.LegacyLink{
		ID:                 r.ID,
		RequesterLegacyID:  r.RequesterLegacyID,
		TargetLegacyID:     r.TargetLegacyID,
		Status:             status,
		RequesterShareMode: model.ShareMode(r.RequesterShareMode),
		TargetShareMode:    model.ShareMode(r.TargetShareMode),
	}
}

type legacyLinkShareRow struct {
	ID             string `gorm:"column:id"`
	LegacyLinkID   string `gorm:"column:legacy_link_id"`
	SourceLegacyID string `gorm:"column:source_legacy_id"`
	ResourceType   string `gorm:"column:resource_type"`
	ResourceID     string `gorm:"column:resource_id"`
}

func (legacyLinkShareRow) TableName() string { return "legacy_link_shares" }

func (r legacyLinkShareRow) toModel() model.LinkShare {
	return model.LinkShare{
		ID:             r.ID,
		LinkID:         r.LegacyLinkID,
		SourceLegacyID: r.SourceLegacyID,
		ResourceType:   r.ResourceType,
		ResourceID:     r.ResourceID,
	}
}

type aiMessageRow struct {
	ID             string    `gorm:"column:id"`
	ConversationID string    `gorm:"column:conversation_id"`
	Seq            int       `gorm:"column:seq"`
	Role           string    `gorm:"column:role"`
	Content        string    `gorm:"column:content"`
	CreatedAt      time.Time `gorm:"column:created_at"`
}

func (aiMessageRow) TableName() string { return "ai_messages" }

func (r aiMessageRow) toModel() model.Message {
	return model.Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		Seq:            r.Seq,
		Role:           r.Role,
		Content:        r.Content,
		CreatedAt:      r.CreatedAt,
	}
}
