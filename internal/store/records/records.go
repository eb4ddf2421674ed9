// Package records reads membership, federation and conversation records owned by the
// application's CRUD layer. It never writes.
package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/agenthands/keepsake/internal/core/model"
	"github.com/agenthands/keepsake/internal/store"
)

type Repo struct {
	db  *gorm.DB
	log *zap.Logger
}

var (
	_ store.MembershipReader = (*Repo)(nil)
	_ store.LinkReader       = (*Repo)(nil)
	_ store.MessageReader    = (*Repo)(nil)
)

// Open connects gorm to the application database.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

func NewRepo(db *gorm.DB, log *zap.Logger) *Repo {
	if log == nil {
		log = zap.NewNop()
	}
	return &Repo{db: db, log: log.Named("records")}
}

func (r *Repo) GetMembership(ctx context.Context, legacyID, userID string) (*model.Membership, error) {
	var row legacyMemberRow
	err := r.db.WithContext(ctx).
		Where("legacy_id = ? AND user_id = ?", legacyID, userID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get membership: %w", err)
	}
	m := row.toModel()
	return &m, nil
}

func (r *Repo) ListActiveLinks(ctx context.Context, legacyID string) ([]model.LegacyLink, error) {
	var rows []legacyLinkRow
	if err := r.db.WithContext(ctx).
		Where("status = ? AND revoked_at IS NULL", string(model.LinkActive)).
		Where("requester_legacy_id = ? OR target_legacy_id = ?", legacyID, legacyID).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list active links: %w", err)
	}
	out := make([]model.LegacyLink, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

func (r *Repo) ListLinkShares(ctx context.Context, linkID, resourceType string) ([]model.LinkShare, error) {
	var rows []legacyLinkShareRow
	if err := r.db.WithContext(ctx).
		Where("legacy_link_id = ? AND resource_type = ?", linkID, resourceType).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list link shares: %w", err)
	}
	out := make([]model.LinkShare, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

func (r *Repo) ListMessagesAfter(ctx context.Context, conversationID string, afterSeq int) ([]model.Message, error) {
	var rows []aiMessageRow
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND seq > ?", conversationID, afterSeq).
		Order("seq ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	out := make([]model.Message, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}
