package scraper

import (
	"regexp"
	"strings"
)

var (
	nonAlnumRe   = regexp.MustCompile(`[^a-z0-9]+`)
	repeatHyphen = regexp.MustCompile(`-{2,}`)
)

// Slug derives the stable, URL-safe identifier used as the dedup/join key
// across all entity kinds. Titles differing only in case or punctuation map
// to the same id.
func Slug(text string) string {
	s := strings.ToLower(text)
	s = nonAlnumRe.ReplaceAllString(s, "-")
	s = repeatHyphen.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// EpisodeSlug derives the composite id for an episode of a titled anime.
func EpisodeSlug(title, number string) string {
	return Slug(title + "-episode-" + number)
}
