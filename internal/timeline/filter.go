package timeline

import (
	"github.com/mmcdole/hangar/internal/domain"
	"github.com/sahilm/fuzzy"
)

// postSource adapts posts to fuzzy.Source, matching on author and text.
type postSource []domain.Post

func (s postSource) String(i int) string {
	p := s[i]
	return p.Author.Handle + " " + p.Author.DisplayName + " " + p.Text
}

func (s postSource) Len() int { return len(s) }

// Filter returns posts fuzzily matching query, best match first.
// An empty query returns posts unchanged.
func Filter(posts []domain.Post, query string) []domain.Post {
	if query == "" {
		return posts
	}
	matches := fuzzy.FindFrom(query, postSource(posts))
	out := make([]domain.Post, 0, len(matches))
	for _, m := range matches {
		out = append(out, posts[m.Index])
	}
	return out
}
