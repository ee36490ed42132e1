package publish

import (
	"strings"
	"unicode/utf8"

	"github.com/teranos/crosspost/errors"
)

// Content is a draft shaped for one platform.
type Content struct {
	Title        string
	Body         string
	Tags         []string
	ThumbnailURL string
	CanonicalURL string
}

// Limits are the per-platform content constraints. Zero means unlimited.
type Limits struct {
	MaxTitle int // runes
	MaxTags  int
}

// MapContent shapes draft for a platform with the given limits. A title
// that does not fit is an invalid request; surplus tags are dropped in
// order, since every platform accepts a post with fewer tags.
func MapContent(draft *Draft, limits Limits) (Content, error) {
	title := strings.TrimSpace(draft.Title)
	if title == "" {
		return Content{}, errors.NewInvalidRequestError("draft %s has no title", draft.ID)
	}
	if strings.TrimSpace(draft.Body) == "" {
		return Content{}, errors.NewInvalidRequestError("draft %s has no body", draft.ID)
	}
	if n := utf8.RuneCountInString(title); limits.MaxTitle > 0 && n > limits.MaxTitle {
		return Content{}, errors.NewInvalidRequestError("title is %d characters, limit is %d", n, limits.MaxTitle)
	}

	tags := normalizeTags(draft.Tags)
	if limits.MaxTags > 0 && len(tags) > limits.MaxTags {
		tags = tags[:limits.MaxTags]
	}

	return Content{
		Title:        title,
		Body:         draft.Body,
		Tags:         tags,
		ThumbnailURL: draft.ThumbnailURL,
		CanonicalURL: draft.CanonicalURL,
	}, nil
}

// normalizeTags lowercases, trims a leading '#', and drops blanks and
// duplicates while keeping the author's order.
func normalizeTags(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(t), "#"))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
