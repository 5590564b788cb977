package ingest

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"JamFM/model"
)

const (
	fetchTimeout  = 15 * time.Second
	maxPageBytes  = 4 << 20
	fetcherUAName = "jamfm-ingest"
)

// metaTagRe matches <meta property|name="..." content="..."> in raw HTML.
// Track pages embed everything we need as OpenGraph tags; the hydrated DOM
// is not available over plain HTTP, so DOM scraping is a dead end.
var metaTagRe = regexp.MustCompile(
	`<meta\s+(?:property|name)\s*=\s*["']([^"']+)["']\s+content\s*=\s*["']([^"']*)["']\s*/?>`)

// lyricsParaRe matches the server-rendered pre-wrap paragraph that carries
// lyrics when the page ships them outside the hydration payload.
var (
	lyricsParaRe = regexp.MustCompile(
		`(?is)<p[^>]*class\s*=\s*["'][^"']*\bwhitespace-pre-wrap\b[^"']*["'][^>]*>(.*?)</p>`)
	lineBreakRe = regexp.MustCompile(`(?i)<br\s*/?>`)
	tagStripRe  = regexp.MustCompile(`(?s)<[^>]+>`)
)

// PageFetcher resolves track metadata by scraping the source page's
// OpenGraph tags.
type PageFetcher struct {
	client *http.Client
}

// NewPageFetcher creates a metadata fetcher with its own HTTP client.
func NewPageFetcher() *PageFetcher {
	return &PageFetcher{
		client: &http.Client{Timeout: fetchTimeout},
	}
}

// Fetch downloads the page and extracts title, artist, audio and image URLs.
// The returned track has no ID; the ingest service assigns one.
func (f *PageFetcher) Fetch(ctx context.Context, sourceURL string) (*model.Track, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid source URL: %w", err)
	}
	req.Header.Set("User-Agent", fetcherUAName)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("page fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("page fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("page read failed: %w", err)
	}

	tags := parseMetaTags(string(body))

	track := &model.Track{
		SourceURL:   sourceURL,
		Title:       tags["og:title"],
		ImageURL:    firstNonEmpty(tags["og:image"], tags["twitter:image"]),
		RawAudioURL: firstNonEmpty(tags["og:audio"], tags["og:audio:url"], tags["og:audio:secure_url"]),
		Lyrics:      extractLyrics(string(body)),
	}
	track.Title, track.ArtistDisplay = splitTitleArtist(track.Title, tags["og:description"])

	if track.RawAudioURL == "" {
		return nil, fmt.Errorf("page has no audio URL")
	}
	if track.Title == "" {
		track.Title = "Untitled"
	}
	return track, nil
}

func parseMetaTags(pageHTML string) map[string]string {
	tags := make(map[string]string)
	for _, m := range metaTagRe.FindAllStringSubmatch(pageHTML, -1) {
		key, val := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
		if key != "" && val != "" {
			tags[key] = html.UnescapeString(val)
		}
	}
	return tags
}

// splitTitleArtist recovers "<title> by <artist>" from the description when
// the title tag alone does not carry the artist.
func splitTitleArtist(title, description string) (string, string) {
	desc := strings.TrimSpace(description)
	if idx := strings.Index(desc, " by "); idx > 0 {
		descTitle := strings.TrimSpace(desc[:idx])
		artist := strings.TrimSpace(desc[idx+len(" by "):])
		if dot := strings.Index(artist, "."); dot > 0 {
			artist = strings.TrimSpace(artist[:dot])
		}
		if title == "" {
			title = descTitle
		}
		return title, artist
	}
	return title, ""
}

// extractLyrics pulls lyrics text from the pre-wrap paragraph when the
// server HTML carries one. Pages that only ship lyrics inside streaming
// hydration payloads yield nothing; lyrics stay optional.
func extractLyrics(pageHTML string) string {
	m := lyricsParaRe.FindStringSubmatch(pageHTML)
	if m == nil {
		return ""
	}
	text := lineBreakRe.ReplaceAllString(m[1], "\n")
	text = tagStripRe.ReplaceAllString(text, "")
	return strings.TrimSpace(html.UnescapeString(text))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
