package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const trackPage = `<!DOCTYPE html><html><head>
<meta property="og:title" content="Neon Nights" />
<meta property="og:description" content="Neon Nights by Synthwave Sam. Listen and make your own on Suno." />
<meta property="og:image" content="https://cdn.example/img.jpeg" />
<meta property="og:audio" content="https://cdn.example/audio.mp3" />
</head><body>
<p class="font-sans whitespace-pre-wrap text-sm">[Verse 1]<br/>Neon lights &amp; empty streets<br>Chasing echoes in the heat</p>
</body></html>`

func TestFetchParsesOpenGraphTags(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(trackPage))
	}))
	defer server.Close()

	track, err := NewPageFetcher().Fetch(context.Background(), server.URL)
	require.NoError(t, err)

	assert.Equal(t, "Neon Nights", track.Title)
	assert.Equal(t, "Synthwave Sam", track.ArtistDisplay)
	assert.Equal(t, "https://cdn.example/audio.mp3", track.RawAudioURL)
	assert.Equal(t, "https://cdn.example/img.jpeg", track.ImageURL)
	assert.Equal(t, "[Verse 1]\nNeon lights & empty streets\nChasing echoes in the heat", track.Lyrics)
}

func TestExtractLyrics(t *testing.T) {
	// Line breaks become newlines, nested tags are stripped, entities decode.
	page := `<p class="whitespace-pre-wrap">Line one<br/><em>Line</em> two &quot;quoted&quot;</p>`
	assert.Equal(t, "Line one\nLine two \"quoted\"", extractLyrics(page))

	// Pages without a pre-wrap paragraph carry no lyrics.
	assert.Empty(t, extractLyrics(`<html><body><p class="prose">not lyrics</p></body></html>`))
}

func TestFetchRejectsPageWithoutAudio(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><meta property="og:title" content="x" /></head></html>`))
	}))
	defer server.Close()

	_, err := NewPageFetcher().Fetch(context.Background(), server.URL)
	assert.Error(t, err)
}

func TestFetchRejectsNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewPageFetcher().Fetch(context.Background(), server.URL)
	assert.Error(t, err)
}

func TestSplitTitleArtist(t *testing.T) {
	title, artist := splitTitleArtist("", "Neon Nights by Synthwave Sam. Listen on Suno.")
	assert.Equal(t, "Neon Nights", title)
	assert.Equal(t, "Synthwave Sam", artist)

	// A title from og:title wins over the description's left half.
	title, artist = splitTitleArtist("Official Title", "Other by Someone.")
	assert.Equal(t, "Official Title", title)
	assert.Equal(t, "Someone", artist)

	// No " by " separator means no artist.
	title, artist = splitTitleArtist("Solo", "just a description")
	assert.Equal(t, "Solo", title)
	assert.Empty(t, artist)
}

func TestParseMetaTagsUnescapesEntities(t *testing.T) {
	tags := parseMetaTags(`<meta property="og:title" content="Rock &amp; Roll" />`)
	assert.Equal(t, "Rock & Roll", tags["og:title"])
}
