package model

// Story is the input to indexing. Content is the full text; the rest is carried
// onto every chunk and onto the graph node.
type Story struct {
	ID         string     `json:"id"`
	LegacyID   string     `json:"legacy_id"`
	AuthorID   string     `json:"author_id"`
	Title      string     `json:"title"`
	Content    string     `json:"content"`
	Visibility Visibility `json:"visibility"`
}

// Node returns the graph projection of the story.
func (s Story) Node() StoryNode {
	return StoryNode{ID: s.ID, LegacyID: s.LegacyID, Title: s.Title, AuthorID: s.AuthorID, Visibility: s.Visibility}
}
