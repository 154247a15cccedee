package scraper_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gitgitmiko/gitanime-backend/internal/scraper"
)

// memStore is an in-memory Store capturing written documents.
type memStore struct {
	mu        sync.Mutex
	animeData scraper.AnimeDataDocument
	animeList scraper.AnimeListDocument
	latest    scraper.LatestEpisodesDocument
	listAt    time.Time
	hasList   bool
}

func (m *memStore) ReadAnimeData(context.Context) (scraper.AnimeDataDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.animeData, nil
}

func (m *memStore) WriteAnimeData(_ context.Context, doc scraper.AnimeDataDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.animeData = doc
	return nil
}

func (m *memStore) ReadAnimeList(context.Context) (scraper.AnimeListDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.animeList, nil
}

func (m *memStore) WriteAnimeList(_ context.Context, doc scraper.AnimeListDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.animeList = doc
	m.listAt = time.Now()
	m.hasList = true
	return nil
}

func (m *memStore) ReadLatestEpisodes(context.Context) (scraper.LatestEpisodesDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest, nil
}

func (m *memStore) WriteLatestEpisodes(_ context.Context, doc scraper.LatestEpisodesDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest = doc
	return nil
}

func (m *memStore) AnimeListUpdatedAt(context.Context) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listAt, m.hasList
}

// gatedFetcher blocks every fetch until released.
type gatedFetcher struct {
	gate chan struct{}
}

func (g *gatedFetcher) Fetch(ctx context.Context, _ scraper.Request) ([]byte, error) {
	select {
	case <-g.gate:
		return []byte("<html><body></body></html>"), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func newTestSession(f scraper.Fetcher, st scraper.Store) *scraper.Session {
	logger := zap.NewNop()
	images := scraper.NewImageResolver(nil)
	walker := scraper.NewWalker(f, baseURL, nil, 50, logger)
	locator := scraper.NewVideoLocator(f, baseURL, scraper.VideoConfig{RetryDelay: time.Millisecond}, logger)
	return scraper.NewSession(f, walker, images, locator, st, baseURL,
		scraper.SessionConfig{DetailDelay: time.Millisecond}, logger)
}

func TestSessionConcurrentTriggerIsNoOp(t *testing.T) {
	gate := make(chan struct{})
	f := &gatedFetcher{gate: gate}
	st := &memStore{}
	s := newTestSession(f, st)

	done := make(chan error, 1)
	go func() {
		done <- s.RunFullScrape(context.Background())
	}()

	// Wait for the first pass to take the guard.
	require.Eventually(t, s.Running, time.Second, time.Millisecond)

	err := s.RunFullScrape(context.Background())
	assert.ErrorIs(t, err, scraper.ErrScrapeInProgress)
	_, err = s.RunAnimeListBatch(context.Background(), 1, 2)
	assert.ErrorIs(t, err, scraper.ErrScrapeInProgress)
	_, err = s.RunLatestEpisodesBatch(context.Background(), 1, 2)
	assert.ErrorIs(t, err, scraper.ErrScrapeInProgress)

	close(gate)
	require.NoError(t, <-done)
	assert.False(t, s.Running())

	// The guard is released; a fresh trigger runs again.
	require.NoError(t, s.RunFullScrape(context.Background()))
}

func TestSessionFullScrapePreservesSiblingCollections(t *testing.T) {
	latestHTML := `<html><body><ul>
<li><h2>Attack on Titan</h2><a href="/attack-on-titan-episode-5/">Episode 5</a>
<span>Posted by: Admin
Released on: 2 days yang lalu</span></li>
</ul></body></html>`
	detailHTML := `<html><body><h1>Attack on Titan Sub Indo</h1>
<ul>
<li><a href="/attack-on-titan-episode-5/">Attack on Titan Episode 5</a></li>
<li><a href="/attack-on-titan-episode-4/">Attack on Titan Episode 4</a></li>
</ul></body></html>`

	f := &fakeFetcher{pages: map[string]string{
		baseURL + "anime-terbaru/": latestHTML,
		baseURL:                    detailHTML,
	}}
	st := &memStore{animeData: scraper.AnimeDataDocument{
		Anime: []scraper.AnimeListEntry{{ID: "grand-blue", Title: "Grand Blue"}},
	}}
	s := newTestSession(f, st)

	require.NoError(t, s.RunFullScrape(context.Background()))

	doc := st.animeData
	// The catalog collection written by earlier passes survives untouched.
	require.Len(t, doc.Anime, 1)
	assert.Equal(t, "grand-blue", doc.Anime[0].ID)
	assert.Equal(t, 1, doc.TotalAnime)

	require.Len(t, doc.LatestEpisodes, 2)
	assert.Equal(t, 2, doc.TotalEpisodes)
	assert.Equal(t, "attack-on-titan-episode-5", doc.LatestEpisodes[0].ID)
	assert.Equal(t, "attack-on-titan-episode-4", doc.LatestEpisodes[1].ID)
	// Byline carried over from the listing row for the matching episode.
	assert.Equal(t, "Admin", doc.LatestEpisodes[0].PostedBy)
	assert.Equal(t, "2 days yang lalu", doc.LatestEpisodes[0].ReleasedOn)
	assert.Empty(t, doc.LatestEpisodes[1].PostedBy)
	assert.NotEmpty(t, doc.LastUpdated)
}

func TestSessionFullScrapeKeepsListingRowsOnDetailFailure(t *testing.T) {
	latestHTML := `<html><body><ul>
<li><h2>Attack on Titan</h2><a href="/attack-on-titan-episode-5/">Episode 5</a></li>
</ul></body></html>`

	f := &fakeFetcher{pages: map[string]string{
		baseURL + "anime-terbaru/": latestHTML,
		// Detail page intentionally missing: the fetch 404s.
	}}
	st := &memStore{}
	s := newTestSession(f, st)

	require.NoError(t, s.RunFullScrape(context.Background()))

	require.Len(t, st.animeData.LatestEpisodes, 1)
	assert.Equal(t, "attack-on-titan-episode-5", st.animeData.LatestEpisodes[0].ID)
}

func TestSessionRunAnimeListBatch(t *testing.T) {
	catalog := `<html><body>
<article class="animpost">
<div class="animposx"><a href="/anime/grand-blue/"></a></div>
<div class="data"><div class="title"><h2>Grand Blue</h2></div></div>
</article>
</body></html>`

	f := &fakeFetcher{pages: map[string]string{
		baseURL + "daftar-anime-2/":        catalog,
		baseURL + "daftar-anime-2/page/2/": "<html><body></body></html>",
	}}
	st := &memStore{}
	s := newTestSession(f, st)

	doc, err := s.RunAnimeListBatch(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, doc.TotalAnime)
	assert.Equal(t, baseURL+"daftar-anime-2/", doc.Source)
	require.Len(t, doc.AnimeList, 1)
	assert.Equal(t, "Grand Blue", doc.AnimeList[0].Title)

	// Persisted through the store as well.
	assert.Equal(t, 1, st.animeList.TotalAnime)
	_, ok := st.AnimeListUpdatedAt(context.Background())
	assert.True(t, ok)
}

func TestSessionRunLatestEpisodesBatchKeepsCrossPageDuplicates(t *testing.T) {
	row := `<li><h2>One Piece</h2><a href="/one-piece-episode-1120/">Episode 1120</a></li>`
	page := "<html><body><ul>" + row + "</ul></body></html>"

	f := &fakeFetcher{pages: map[string]string{
		baseURL + "anime-terbaru/":        page,
		baseURL + "anime-terbaru/page/2/": page,
	}}
	st := &memStore{}
	s := newTestSession(f, st)

	doc, err := s.RunLatestEpisodesBatch(context.Background(), 1, 2)
	require.NoError(t, err)
	// The same episode on two pages stays as two entries.
	assert.Equal(t, 2, doc.TotalEpisodes)
	assert.Equal(t, baseURL+"anime-terbaru/", doc.Source)
	assert.Equal(t, 1, doc.LatestEpisodes[0].PageNumber)
	assert.Equal(t, 2, doc.LatestEpisodes[1].PageNumber)
}

func TestSessionSaveAnimeListRecomputesTotals(t *testing.T) {
	st := &memStore{}
	s := newTestSession(&fakeFetcher{}, st)

	entries := []scraper.AnimeListEntry{
		{ID: "a", Title: "A"},
		{ID: "b", Title: "B"},
		{ID: "c", Title: "C"},
	}
	doc, err := s.SaveAnimeList(context.Background(), entries)
	require.NoError(t, err)
	assert.Equal(t, 3, doc.TotalAnime)
	assert.Len(t, doc.AnimeList, 3)
	assert.NotEmpty(t, doc.LastUpdated)

	empty, err := s.SaveAnimeList(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.TotalAnime)
	assert.NotNil(t, empty.AnimeList)
}

func TestSessionDetailDispatch(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		baseURL + "anime/grand-blue/": `<html><body><h1>Grand Blue</h1></body></html>`,
		baseURL + "grand-blue-episode-3/": `<html><body><h1>Grand Blue Episode 3</h1>
<div><b>Posted By</b> Admin</div></body></html>`,
	}}
	s := newTestSession(f, &memStore{})

	t.Run("AnimePage", func(t *testing.T) {
		res, err := s.Detail(context.Background(), baseURL+"anime/grand-blue/")
		require.NoError(t, err)
		require.NotNil(t, res.Anime)
		assert.Nil(t, res.Episode)
		assert.Equal(t, "Grand Blue", res.Anime.Title)
	})

	t.Run("EpisodePage", func(t *testing.T) {
		res, err := s.Detail(context.Background(), baseURL+"grand-blue-episode-3/")
		require.NoError(t, err)
		require.NotNil(t, res.Episode)
		assert.Nil(t, res.Anime)
		assert.Equal(t, "3", res.Episode.EpisodeNumber)
		assert.Equal(t, "Admin", res.Episode.PostedBy)
	})

	t.Run("FetchFailure", func(t *testing.T) {
		_, err := s.Detail(context.Background(), baseURL+"anime/missing/")
		require.Error(t, err)
	})
}
