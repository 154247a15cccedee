package scraper

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Every field extraction below is independently guarded: a field that cannot
// be located yields its zero value and never aborts the sibling fields. The
// upstream markup has no stable schema, so label regexes are the primary
// parsing technique.

var (
	episodeNumRe = regexp.MustCompile(`(?i)Episode\s+(\d+)`)
	postedByRe   = regexp.MustCompile(`(?i)Posted by:\s*([^\n]+)`)
	releasedRe   = regexp.MustCompile(`(?i)Released on:\s*([^\n]+)`)
	episodeURLRe = regexp.MustCompile(`(?i)episode-(\d+)`)
	trailingSeg  = regexp.MustCompile(`/[^/]+/?$`)
	episodeTail  = regexp.MustCompile(`(?i)episode-\d+.*$`)
)

// imageExcludes are src substrings that mark site chrome, not artwork.
var imageExcludes = []string{"avatar", "logo", "icon", "wp-content"}

// imageHints are alt/title substrings that mark representative artwork.
var imageHints = []string{"anime", "cover", "poster"}

// ParseDocument turns raw markup into a queryable document. Malformed markup
// degrades to an empty tree rather than failing extraction outright.
func ParseDocument(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}
	return doc, nil
}

// ResolveURL makes href absolute against the site base URL.
func ResolveURL(base, href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "http") {
		return href
	}
	return base + strings.TrimPrefix(href, "/")
}

// ResolveImageURL makes an image src absolute, handling protocol-relative
// sources.
func ResolveImageURL(base, src string) string {
	if src == "" {
		return ""
	}
	if strings.HasPrefix(src, "http") {
		return src
	}
	if strings.HasPrefix(src, "//") {
		return "https:" + src
	}
	return base + strings.TrimPrefix(src, "/")
}

// CleanTitle strips the known suffix noise from a heading.
func CleanTitle(raw string) string {
	return strings.TrimSpace(strings.ReplaceAll(strings.TrimSpace(raw), "Sub Indo", ""))
}

// ExtractLatestEpisodes pulls all latest-release rows from a listing page.
// Rows with no discoverable title or link are discarded.
func ExtractLatestEpisodes(doc *goquery.Document, base string, page int, images *ImageResolver, now time.Time) []LatestEpisode {
	var episodes []LatestEpisode
	doc.Find("li").Each(func(_ int, sel *goquery.Selection) {
		heading := sel.Find("h2").First()
		if heading.Length() == 0 {
			return
		}
		title := strings.TrimSpace(heading.Text())
		link, _ := sel.Find("a").First().Attr("href")
		if title == "" || link == "" {
			return
		}

		text := sel.Text()
		number := firstGroup(episodeNumRe, text)
		ep := LatestEpisode{
			ID:            EpisodeSlug(title, number),
			Title:         title,
			EpisodeNumber: number,
			Link:          ResolveURL(base, link),
			PostedBy:      strings.TrimSpace(firstGroup(postedByRe, text)),
			ReleasedOn:    strings.TrimSpace(firstGroup(releasedRe, text)),
			AnimeID:       Slug(title),
			PageNumber:    page,
			CreatedAt:     now.UTC().Format(time.RFC3339),
		}
		if images != nil {
			ep.ImageURL = images.Resolve(title)
			ep.Screenshot = ep.ImageURL
		}
		episodes = append(episodes, ep)
	})
	return episodes
}

// ExtractAnimeEntries pulls all catalog rows from an anime-list page.
func ExtractAnimeEntries(doc *goquery.Document, base string, now time.Time) []AnimeListEntry {
	var entries []AnimeListEntry
	doc.Find("article.animpost").Each(func(_ int, sel *goquery.Selection) {
		title := strings.TrimSpace(sel.Find(".data .title h2").Text())
		if title == "" {
			return
		}
		link, _ := sel.Find(".animposx a").First().Attr("href")
		if link == "" {
			return
		}

		img := sel.Find(".content-thumb img.anmsa").First()
		src, ok := img.Attr("src")
		if !ok || src == "" {
			src, _ = img.Attr("data-src")
		}

		genres := []string{}
		sel.Find(".stooltip .genres .mta a").Each(func(_ int, g *goquery.Selection) {
			if t := strings.TrimSpace(g.Text()); t != "" {
				genres = append(genres, t)
			}
		})

		entries = append(entries, AnimeListEntry{
			ID:          Slug(title),
			Title:       title,
			Link:        ResolveURL(base, link),
			ImageURL:    ResolveImageURL(base, src),
			Rating:      strings.TrimSpace(sel.Find(".score").Text()),
			Status:      strings.TrimSpace(sel.Find(".data .type").Text()),
			Type:        strings.TrimSpace(sel.Find(".content-thumb .type").Text()),
			Genres:      genres,
			Description: strings.TrimSpace(sel.Find(".stooltip .ttls").Text()),
			EpisodeInfo: strings.TrimSpace(sel.Find(".metadata span").Last().Text()),
			ScrapedAt:   now.UTC().Format(time.RFC3339),
		})
	})
	return entries
}

// ExtractAnimeDetail pulls the structured detail-page fields. It never
// fails; missing fields stay empty.
func ExtractAnimeDetail(doc *goquery.Document, pageURL, base string) AnimeDetail {
	title := CleanTitle(doc.Find("h1").First().Text())

	detail := AnimeDetail{
		Title:        title,
		Japanese:     labelValue(doc, "Japanese"),
		English:      labelValue(doc, "English"),
		Status:       labelValue(doc, "Status"),
		Type:         labelValue(doc, "Type"),
		Source:       labelValue(doc, "Source"),
		Duration:     labelValue(doc, "Duration"),
		TotalEpisode: labelValue(doc, "Total Episode"),
		Season:       labelValue(doc, "Season"),
		Studio:       labelValue(doc, "Studio"),
		Released:     labelValue(doc, "Released:"),
		Genres:       extractGenres(doc),
		Episodes:     extractEpisodeRefs(doc, title, base),
		SourceURL:    pageURL,
		ID:           Slug(title),
	}

	if src := findContentImage(doc); src != "" {
		detail.ImageURL = ResolveImageURL(base, src)
	}
	return detail
}

// ExtractEpisodeDetail pulls the fields of a single episode page. The anime
// title is recovered from the URL slug; detail pages label the byline with
// "Posted By" / "Released On" rather than the listing-page phrasing.
func ExtractEpisodeDetail(doc *goquery.Document, pageURL, base string, images *ImageResolver) EpisodeDetail {
	episodeTitle := CleanTitle(doc.Find("h1").First().Text())
	animeTitle := TitleFromURL(pageURL)

	detail := EpisodeDetail{
		Title:         animeTitle,
		EpisodeNumber: firstGroup(episodeURLRe, pageURL),
		EpisodeTitle:  episodeTitle,
		PostedBy:      labelValue(doc, "Posted By"),
		ReleasedOn:    labelValue(doc, "Released On"),
		EpisodeURL:    pageURL,
		AnimeURL:      episodeTail.ReplaceAllString(pageURL, ""),
	}
	detail.ID = EpisodeSlug(animeTitle, detail.EpisodeNumber)

	if images != nil {
		detail.ImageURL = images.Resolve(animeTitle)
	}
	if detail.ImageURL == "" {
		if src := findContentImage(doc); src != "" {
			detail.ImageURL = ResolveImageURL(base, src)
		}
	}
	return detail
}

// TitleFromURL recovers a readable anime title from a page URL slug.
func TitleFromURL(pageURL string) string {
	parts := strings.Split(strings.TrimSuffix(pageURL, "/"), "/")
	if len(parts) == 0 {
		return "Anime Episode"
	}
	slugPart := parts[len(parts)-1]
	words := strings.Split(slugPart, "-")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	title := strings.Join(words, " ")
	title = episodeNumRe.ReplaceAllString(title, "")
	title = strings.TrimSpace(title)
	if title == "" {
		return "Anime Episode"
	}
	return title
}

// AnimeURLFromEpisodeLink derives the detail-page URL for an episode link by
// trimming the final path segment.
func AnimeURLFromEpisodeLink(link string) string {
	trimmed := strings.TrimSuffix(link, "/")
	return trailingSeg.ReplaceAllString(trimmed, "/")
}

// labelValue locates a bold label element whose text contains the field
// name, takes its parent's full text and strips the label substring.
func labelValue(doc *goquery.Document, label string) string {
	var value string
	doc.Find("strong, b").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if !strings.Contains(sel.Text(), label) {
			return true
		}
		parentText := sel.Parent().Text()
		value = strings.TrimSpace(strings.Replace(parentText, label, "", 1))
		return false
	})
	return value
}

func extractGenres(doc *goquery.Document) []string {
	genres := []string{}
	doc.Find("strong, b").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if !strings.Contains(sel.Text(), "Genres") {
			return true
		}
		sel.Parent().Find("a").Each(func(_ int, a *goquery.Selection) {
			if t := strings.TrimSpace(a.Text()); t != "" {
				genres = append(genres, t)
			}
		})
		return false
	})
	return genres
}

func extractEpisodeRefs(doc *goquery.Document, animeTitle, base string) []EpisodeRef {
	refs := []EpisodeRef{}
	seen := map[string]struct{}{}
	doc.Find(`a[href*="episode"]`).Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		link, _ := sel.Attr("href")
		number := firstGroup(episodeNumRe, text)
		if number == "" || link == "" {
			return
		}
		id := EpisodeSlug(animeTitle, number)
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		refs = append(refs, EpisodeRef{
			Number: number,
			Title:  text,
			Link:   ResolveURL(base, link),
			ID:     id,
		})
	})
	return refs
}

// findContentImage walks images in document order and accepts the first one
// that is not site chrome and either carries an artwork hint in alt/title or
// has an image file extension. Heuristic, not guaranteed correct.
func findContentImage(doc *goquery.Document) string {
	var found string
	doc.Find("img").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		src, ok := sel.Attr("src")
		if !ok || src == "" {
			src, _ = sel.Attr("data-src")
		}
		if src == "" {
			return true
		}
		lowerSrc := strings.ToLower(src)
		for _, excl := range imageExcludes {
			if strings.Contains(lowerSrc, excl) {
				return true
			}
		}
		hint := strings.ToLower(sel.AttrOr("alt", "") + " " + sel.AttrOr("title", ""))
		hinted := false
		for _, h := range imageHints {
			if strings.Contains(hint, h) {
				hinted = true
				break
			}
		}
		if hinted || strings.Contains(lowerSrc, ".jpg") ||
			strings.Contains(lowerSrc, ".jpeg") || strings.Contains(lowerSrc, ".png") {
			found = src
			return false
		}
		return true
	})
	return found
}

func firstGroup(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}
