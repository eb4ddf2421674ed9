package model

import "slices"

type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityPrivate  Visibility = "private"
	VisibilityPersonal Visibility = "personal"
)

type ShareMode string

const (
	ShareModeAll       ShareMode = "all"
	ShareModeSelective ShareMode = "selective"
)

// ResourceStory is the resource type of story share grants.
const ResourceStory = "story"

// VisibilityFilter is the set of visibility classes one user may read inside one legacy.
// Personal content is only ever visible to PersonalScopeOwner.
type VisibilityFilter struct {
	LegacyID           string       `json:"legacy_id"`
	AllowedVisibility  []Visibility `json:"allowed_visibility"`
	PersonalScopeOwner string       `json:"personal_scope_owner"`
}

// Allows reports whether content with the given class and owner passes the filter.
func (f VisibilityFilter) Allows(vis Visibility, ownerID string) bool {
	if !slices.Contains(f.AllowedVisibility, vis) {
		return false
	}
	if vis == VisibilityPersonal {
		return ownerID != "" && ownerID == f.PersonalScopeOwner
	}
	return true
}

// LinkedLegacyFilter grants read access to public content of a federated legacy.
// A selective filter only admits the listed resource ids.
type LinkedLegacyFilter struct {
	LinkedLegacyID      string    `json:"linked_legacy_id"`
	ShareMode           ShareMode `json:"share_mode"`
	IncludedResourceIDs []string  `json:"included_resource_ids,omitempty"`
}

// Allows reports whether a resource of the linked legacy may be read.
// Federation never exposes anything but public content.
func (f LinkedLegacyFilter) Allows(vis Visibility, resourceID string) bool {
	if vis != VisibilityPublic {
		return false
	}
	if f.ShareMode == ShareModeAll {
		return true
	}
	return slices.Contains(f.IncludedResourceIDs, resourceID)
}

// Scope bundles the primary filter with the linked grants of a single request.
type Scope struct {
	Filter VisibilityFilter     `json:"filter"`
	Linked []LinkedLegacyFilter `json:"linked,omitempty"`
}

// LegacyIDs returns the primary legacy followed by every linked legacy.
func (s Scope) LegacyIDs() []string {
	ids := []string{s.Filter.LegacyID}
	for _, l := range s.Linked {
		if !slices.Contains(ids, l.LinkedLegacyID) {
			ids = append(ids, l.LinkedLegacyID)
		}
	}
	return ids
}

// Permits checks a resource from any legacy against the scope.
func (s Scope) Permits(legacyID string, vis Visibility, ownerID, resourceID string) bool {
	if legacyID == s.Filter.LegacyID {
		return s.Filter.Allows(vis, ownerID)
	}
	for _, l := range s.Linked {
		if l.LinkedLegacyID == legacyID && l.Allows(vis, resourceID) {
			return true
		}
	}
	return false
}
