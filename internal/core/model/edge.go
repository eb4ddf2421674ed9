package model

// Relationship types written by the indexing flow.
const (
	// RelHasStory links a Legacy to each of its stories.
	RelHasStory = "HAS_STORY"
	// RelMentions links a Story to an entity it mentions.
	RelMentions = "MENTIONS"
	// RelRelatedTo links a Legacy to a person whose relationship to the subject is known.
	RelRelatedTo = "RELATED_TO"
)
