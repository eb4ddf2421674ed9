// Package visibility decides which content a user may retrieve from a legacy and
// from the legacies federated with it.
package visibility

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/agenthands/keepsake/internal/apperr"
	"github.com/agenthands/keepsake/internal/core/model"
	"github.com/agenthands/keepsake/internal/store"
)

var (
	fullAccess    = []model.Visibility{model.VisibilityPublic, model.VisibilityPrivate, model.VisibilityPersonal}
	admirerAccess = []model.Visibility{model.VisibilityPublic, model.VisibilityPersonal}
)

type Resolver struct {
	members store.MembershipReader
	links   store.LinkReader
	log     *zap.Logger
}

func NewResolver(members store.MembershipReader, links store.LinkReader, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{members: members, links: links, log: log.Named("visibility")}
}

// AllowedFor maps a role to its visibility classes. Unknown roles get the admirer tier.
func AllowedFor(role model.Role) []model.Visibility {
	switch role {
	case model.RoleCreator, model.RoleAdmin, model.RoleAdvocate:
		return append([]model.Visibility(nil), fullAccess...)
	default:
		return append([]model.Visibility(nil), admirerAccess...)
	}
}

// Resolve returns the filter for userID inside legacyID. Users without an active
// membership get a PermissionDenied error, never an empty filter.
func (r *Resolver) Resolve(ctx context.Context, userID, legacyID string) (model.VisibilityFilter, error) {
	m, err := r.members.GetMembership(ctx, legacyID, userID)
	if err != nil {
		return model.VisibilityFilter{}, fmt.Errorf("resolve visibility: %w", err)
	}
	if m == nil || m.Pending {
		r.log.Debug("visibility denied", zap.String("user_id", userID), zap.String("legacy_id", legacyID))
		return model.VisibilityFilter{}, apperr.PermissionDenied(userID, legacyID)
	}

	return model.VisibilityFilter{
		LegacyID:           legacyID,
		AllowedVisibility:  AllowedFor(m.Role),
		PersonalScopeOwner: userID,
	}, nil
}

// LinkedLegacyFilters returns one entry per active link whose counterpart shares
// resources of resourceType with legacyID.
func (r *Resolver) LinkedLegacyFilters(ctx context.Context, legacyID, resourceType string) ([]model.LinkedLegacyFilter, error) {
	links, err := r.links.ListActiveLinks(ctx, legacyID)
	if err != nil {
		return nil, fmt.Errorf("list active links: %w", err)
	}

	var out []model.LinkedLegacyFilter
	for _, link := range links {
		if link.Status != model.LinkActive {
			continue
		}
		counterpart, mode, ok := link.Counterpart(legacyID)
		if !ok {
			continue
		}

		switch mode {
		case model.ShareModeAll:
			out = append(out, model.LinkedLegacyFilter{LinkedLegacyID: counterpart, ShareMode: model.ShareModeAll})

		case model.ShareModeSelective:
			shares, err := r.links.ListLinkShares(ctx, link.ID, resourceType)
			if err != nil {
				return nil, fmt.Errorf("list link shares: %w", err)
			}
			var ids []string
			for _, sh := range shares {
				// Grants flowing out of legacyID are the counterpart's view, not ours.
				if sh.ResourceType != resourceType || sh.SourceLegacyID != counterpart {
					continue
				}
				ids = append(ids, sh.ResourceID)
			}
			if len(ids) == 0 {
				continue
			}
			out = append(out, model.LinkedLegacyFilter{
				LinkedLegacyID:      counterpart,
				ShareMode:           model.ShareModeSelective,
				IncludedResourceIDs: ids,
			})

		default:
			r.log.Warn("unknown share mode on link", zap.String("link_id", link.ID), zap.String("mode", string(mode)))
		}
	}
	return out, nil
}

// Scope resolves the primary filter and the linked story filters in one call.
func (r *Resolver) Scope(ctx context.Context, userID, legacyID string) (model.Scope, error) {
	filter, err := r.Resolve(ctx, userID, legacyID)
	if err != nil {
		return model.Scope{}, err
	}
	linked, err := r.LinkedLegacyFilters(ctx, legacyID, model.ResourceStory)
	if err != nil {
		return model.Scope{}, err
	}
	return model.Scope{Filter: filter, Linked: linked}, nil
}
