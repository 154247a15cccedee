// Package scraper_test tests the extraction pipeline.
package scraper_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gitgitmiko/gitanime-backend/internal/scraper"
)

func TestSlug(t *testing.T) {
	t.Run("Lowercases", func(t *testing.T) {
		assert.Equal(t, "one-piece", scraper.Slug("One Piece"))
	})

	t.Run("PunctuationEquivalence", func(t *testing.T) {
		assert.Equal(t, scraper.Slug("Dr. Stone"), scraper.Slug("Dr Stone"))
		assert.Equal(t, scraper.Slug("ATTACK ON TITAN"), scraper.Slug("attack on titan"))
	})

	t.Run("CollapsesHyphenRuns", func(t *testing.T) {
		assert.Equal(t, "a-b", scraper.Slug("a -- b"))
		assert.Equal(t, "a-b", scraper.Slug("a!!!b"))
	})

	t.Run("NoLeadingOrTrailingHyphens", func(t *testing.T) {
		assert.Equal(t, "grand-blue", scraper.Slug("  Grand Blue!  "))
		assert.Equal(t, "x", scraper.Slug("--x--"))
	})

	t.Run("EmptyInput", func(t *testing.T) {
		assert.Equal(t, "", scraper.Slug(""))
		assert.Equal(t, "", scraper.Slug("!!!"))
	})
}

func TestEpisodeSlug(t *testing.T) {
	assert.Equal(t, "one-piece-episode-1120", scraper.EpisodeSlug("One Piece", "1120"))
	assert.Equal(t, "dr-stone-episode-5", scraper.EpisodeSlug("Dr. Stone", "5"))
}
