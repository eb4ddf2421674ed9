package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agenthands/keepsake/internal/core/model"
)

func TestBuildChunkSearchScopes(t *testing.T) {
	q := model.ChunkQuery{
		Vector: []float32{0.1, 0.2},
		Scope: model.Scope{
			Filter: model.VisibilityFilter{
				LegacyID:           "l1",
				AllowedVisibility:  []model.Visibility{model.VisibilityPublic, model.VisibilityPersonal},
				PersonalScopeOwner: "u1",
			},
			Linked: []model.LinkedLegacyFilter{
				{LinkedLegacyID: "l2", ShareMode: model.ShareModeAll},
				{LinkedLegacyID: "l3", ShareMode: model.ShareModeSelective, IncludedResourceIDs: []string{"s7"}},
				{LinkedLegacyID: "l4", ShareMode: model.ShareModeSelective},
			},
		},
		K: 5,
	}

	sql, args := buildChunkSearch(q)

	assert.Contains(t, sql, "(legacy_id = $2 AND visibility = ANY($3) AND (visibility <> 'personal' OR owner_id = $4))")
	assert.Contains(t, sql, "(legacy_id = $5 AND visibility = 'public')")
	assert.Contains(t, sql, "(legacy_id = $6 AND visibility = 'public' AND parent_id = ANY($7))")
	assert.NotContains(t, sql, "$9")
	assert.Contains(t, sql, "ORDER BY embedding <=> $1, created_at DESC")
	assert.Contains(t, sql, "LIMIT $8")

	assert.Len(t, args, 8)
	assert.Equal(t, "l1", args[1])
	assert.Equal(t, []string{"public", "personal"}, args[2])
	assert.Equal(t, "u1", args[3])
	assert.Equal(t, []string{"s7"}, args[6])
	assert.Equal(t, 5, args[7])
}

func TestSchemaUsesDimensions(t *testing.T) {
	ddl := Schema(768)
	assert.Contains(t, ddl, "vector(768)")
	assert.Contains(t, ddl, "UNIQUE (conversation_id, message_range_start)")
	assert.Contains(t, ddl, "uq_memory_facts_key ON memory_facts(legacy_id, user_id, category, content_key)")
}
