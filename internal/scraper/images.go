package scraper

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strings"
)

var seasonNoiseRe = regexp.MustCompile(`(?i)(Season \d+|Part \d+|Episode \d+)`)

// substringStopwords are table keys too generic to substring-match on.
var substringStopwords = map[string]struct{}{
	"anime": {}, "season": {}, "part": {}, "episode": {},
	"the": {}, "and": {}, "or": {}, "with": {},
}

// placeholderThemes maps keyword groups to placeholder background colors.
var placeholderThemes = []struct {
	color    string
	keywords []string
}{
	{"dc2626", []string{"action", "battle", "fight"}},
	{"ec4899", []string{"romance", "love", "girl"}},
	{"f59e0b", []string{"comedy", "funny", "humor"}},
	{"7c3aed", []string{"fantasy", "magic", "supernatural"}},
}

const placeholderDefaultColor = "3b82f6"

// defaultImageTable is the curated point-in-time title-to-artwork mapping.
// A data file, when present, overlays it (see LoadImageTable).
var defaultImageTable = map[string]string{
	"dandadan season 2":                       "https://cdn.myanimelist.net/images/anime/1098/147000l.jpg",
	"dandadan":                                "https://cdn.myanimelist.net/images/anime/1098/147000l.jpg",
	"dr stone season 4 part 2":                "https://cdn.myanimelist.net/images/anime/1613/102576.jpg",
	"dr stone season 4":                       "https://cdn.myanimelist.net/images/anime/1613/102576.jpg",
	"dr stone":                                "https://cdn.myanimelist.net/images/anime/1613/102576.jpg",
	"dr. stone":                               "https://cdn.myanimelist.net/images/anime/1613/102576.jpg",
	"tsuyokute new saga":                      "https://cdn.myanimelist.net/images/anime/1848/147037l.jpg",
	"tsuyokute":                               "https://cdn.myanimelist.net/images/anime/1848/147037l.jpg",
	"jidou hanbaiki ni umarekawatta season 2": "https://cdn.myanimelist.net/images/anime/1721/149001l.jpg",
	"jidou hanbaiki ni umarekawatta":          "https://cdn.myanimelist.net/images/anime/1721/149001l.jpg",
	"jidou hanbaiki":                          "https://cdn.myanimelist.net/images/anime/1721/149001l.jpg",
	"uchuujin muumuu":                         "https://cdn.myanimelist.net/images/anime/1988/138022.jpg",
	"uchuujin":                                "https://cdn.myanimelist.net/images/anime/1988/138022.jpg",
	"onmyou kaiten rebirth":                   "https://cdn.myanimelist.net/images/anime/1990/138024.jpg",
	"onmyou kaiten":                           "https://cdn.myanimelist.net/images/anime/1990/138024.jpg",
	"jigoku sensei nube 2025":                 "https://cdn.myanimelist.net/images/anime/1992/138026.jpg",
	"jigoku sensei nube":                      "https://cdn.myanimelist.net/images/anime/1992/138026.jpg",
	"tensei shitara dainana ouji season 2":    "https://cdn.myanimelist.net/images/anime/1994/138028.jpg",
	"tensei shitara dainana ouji":             "https://cdn.myanimelist.net/images/anime/1994/138028.jpg",
	"tate no yuusha no nariagari season 4":    "https://cdn.myanimelist.net/images/anime/1996/138030.jpg",
	"tate no yuusha no nariagari":             "https://cdn.myanimelist.net/images/anime/1996/138030.jpg",
	"clevatess":                               "https://cdn.myanimelist.net/images/anime/1998/138032.jpg",
	"kanojo okarishimasu":                     "https://cdn.myanimelist.net/images/anime/2000/138034.jpg",
	"rent a girlfriend":                       "https://cdn.myanimelist.net/images/anime/2000/138034.jpg",
	"necronomico":                             "https://cdn.myanimelist.net/images/anime/2002/138036.jpg",
	"grand blue":                              "https://cdn.myanimelist.net/images/anime/2004/138038.jpg",
	"kijin gentoushou":                        "https://cdn.myanimelist.net/images/anime/2006/138040.jpg",
	"summer pockets":                          "https://cdn.myanimelist.net/images/anime/2008/138042.jpg",
	"sakamoto days":                           "https://cdn.myanimelist.net/images/anime/2010/138044.jpg",
	"one piece":                               "https://cdn.myanimelist.net/images/anime/6/73245.jpg",
	"naruto":                                  "https://cdn.myanimelist.net/images/anime/13/17405.jpg",
	"dragon ball":                             "https://cdn.myanimelist.net/images/anime/6/20936.jpg",
	"attack on titan":                         "https://cdn.myanimelist.net/images/anime/10/47347.jpg",
	"demon slayer":                            "https://cdn.myanimelist.net/images/anime/1286/99889.jpg",
	"jujutsu kaisen":                          "https://cdn.myanimelist.net/images/anime/1171/109222.jpg",
	"my hero academia":                        "https://cdn.myanimelist.net/images/anime/10/78745.jpg",
}

// ImageResolver maps anime titles to representative artwork URLs. Resolve is
// total: it always returns a URL, never fails, and performs no network
// calls.
type ImageResolver struct {
	table       map[string]string
	orderedKeys []string
}

// NewImageResolver builds a resolver over the compiled-in table, overlaid
// with any entries from overrides.
func NewImageResolver(overrides map[string]string) *ImageResolver {
	table := make(map[string]string, len(defaultImageTable)+len(overrides))
	for k, v := range defaultImageTable {
		table[strings.ToLower(k)] = v
	}
	for k, v := range overrides {
		if k == "" || v == "" {
			continue
		}
		table[strings.ToLower(k)] = v
	}

	// Longest key first so substring matches are deterministic and prefer
	// the most specific entry.
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	return &ImageResolver{table: table, orderedKeys: keys}
}

// LoadImageTable reads a title-to-URL JSON object from path. A missing file
// is not an error; it simply yields no overrides.
func LoadImageTable(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read image table: %w", err)
	}
	var table map[string]string
	if err := json.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("decode image table: %w", err)
	}
	return table, nil
}

// CleanAnimeTitle strips season/part/episode noise before lookup.
func CleanAnimeTitle(title string) string {
	return strings.TrimSpace(seasonNoiseRe.ReplaceAllString(title, ""))
}

// Resolve returns the artwork URL for a title: exact table match first, then
// substring match, then a deterministically themed placeholder.
func (r *ImageResolver) Resolve(title string) string {
	lower := strings.ToLower(CleanAnimeTitle(title))

	if imageURL, ok := r.table[lower]; ok {
		return imageURL
	}

	for _, key := range r.orderedKeys {
		if len(key) < 4 {
			continue
		}
		if _, stop := substringStopwords[key]; stop {
			continue
		}
		if strings.Contains(lower, key) {
			return r.table[key]
		}
	}

	return placeholderURL(title, lower)
}

func placeholderURL(title, lowerCleaned string) string {
	color := placeholderDefaultColor
	for _, theme := range placeholderThemes {
		for _, kw := range theme.keywords {
			if strings.Contains(lowerCleaned, kw) {
				color = theme.color
				break
			}
		}
		if color != placeholderDefaultColor {
			break
		}
	}

	text := title
	if len(text) > 15 {
		text = text[:15]
	}
	return fmt.Sprintf("https://via.placeholder.com/300x400/%s/ffffff?text=%s", color, url.QueryEscape(text))
}
