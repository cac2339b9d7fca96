package intel

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func serveHTML(t *testing.T, html string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, html)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestStaticFetcher_OpenGraphPreferred(t *testing.T) {
	server := serveHTML(t, `<html><head>
		<title>Fallback Title</title>
		<meta property="og:title" content="Acme Widget Pro" />
		<meta property="og:description" content="The best widget." />
		<meta property="og:image" content="/media/hero.jpg" />
		<meta name="description" content="Meta description." />
	</head><body><p>Some body content that is long enough to matter here.</p></body></html>`)

	f := NewStaticFetcher(zap.NewNop())
	page, err := f.Fetch(context.Background(), server.URL, DefaultFetchOptions())
	require.NoError(t, err)

	assert.Equal(t, "Acme Widget Pro", page.Title)
	assert.Equal(t, "The best widget.", page.Description)
	assert.Equal(t, server.URL+"/media/hero.jpg", page.HeroImageURL)
	assert.Equal(t, TierStatic, page.Tier)
	assert.False(t, page.JSRendered)
}

func TestStaticFetcher_Fallbacks(t *testing.T) {
	t.Run("title falls back to document title", func(t *testing.T) {
		server := serveHTML(t, `<html><head><title>Doc Title</title></head><body></body></html>`)
		f := NewStaticFetcher(zap.NewNop())
		page, err := f.Fetch(context.Background(), server.URL, DefaultFetchOptions())
		require.NoError(t, err)
		assert.Equal(t, "Doc Title", page.Title)
	})

	t.Run("description falls back to meta then paragraph", func(t *testing.T) {
		server := serveHTML(t, `<html><head><title>T</title></head><body>
			<p>Nav</p>
			<p>This paragraph is comfortably longer than forty characters of text.</p>
		</body></html>`)
		f := NewStaticFetcher(zap.NewNop())
		page, err := f.Fetch(context.Background(), server.URL, DefaultFetchOptions())
		require.NoError(t, err)
		assert.Equal(t, "This paragraph is comfortably longer than forty characters of text.", page.Description)
	})

	t.Run("missing elements yield empty fields, not errors", func(t *testing.T) {
		server := serveHTML(t, `<html><head></head><body></body></html>`)
		f := NewStaticFetcher(zap.NewNop())
		page, err := f.Fetch(context.Background(), server.URL, DefaultFetchOptions())
		require.NoError(t, err)
		assert.Empty(t, page.Title)
		assert.Empty(t, page.Description)
		assert.Empty(t, page.HeroImageURL)
		assert.Empty(t, page.Images)
	})
}

func TestStaticFetcher_Images(t *testing.T) {
	server := serveHTML(t, `<html><body>
		<img src="/img/a.jpg" alt="Product A" width="800" height="600">
		<img data-src="/img/lazy.jpg" alt="Lazy loaded">
		<img src="https://cdn.example.test/abs.jpg" width="auto" height="50%">
		<img src="">
		<img src="data:image/gif;base64,R0lGOD">
	</body></html>`)

	f := NewStaticFetcher(zap.NewNop())
	page, err := f.Fetch(context.Background(), server.URL, DefaultFetchOptions())
	require.NoError(t, err)

	require.Len(t, page.Images, 3)

	assert.Equal(t, server.URL+"/img/a.jpg", page.Images[0].URL)
	assert.Equal(t, "Product A", page.Images[0].AltText)
	assert.Equal(t, 800, page.Images[0].Width)
	assert.Equal(t, 600, page.Images[0].Height)

	assert.Equal(t, server.URL+"/img/lazy.jpg", page.Images[1].URL)
	assert.False(t, page.Images[1].HasDimensions())

	// Non-numeric width/height attributes are treated as unknown.
	assert.Equal(t, "https://cdn.example.test/abs.jpg", page.Images[2].URL)
	assert.False(t, page.Images[2].HasDimensions())
}

func TestStaticFetcher_BodyText(t *testing.T) {
	server := serveHTML(t, `<html><body>
		<nav>Home About Contact</nav>
		<header>Site Header</header>
		<script>var x = "script noise";</script>
		<style>.a { color: red }</style>
		<main><p>Real   product    content here.</p></main>
		<aside>Sidebar junk</aside>
		<footer>Copyright</footer>
	</body></html>`)

	f := NewStaticFetcher(zap.NewNop())
	page, err := f.Fetch(context.Background(), server.URL, DefaultFetchOptions())
	require.NoError(t, err)

	assert.Equal(t, "Real product content here.", page.BodyText)
	assert.NotContains(t, page.BodyText, "script noise")
	assert.NotContains(t, page.BodyText, "Site Header")
	assert.NotContains(t, page.BodyText, "Copyright")
}

func TestStaticFetcher_BodyTextCap(t *testing.T) {
	long := strings.Repeat("word ", 3000) // 15000 chars
	server := serveHTML(t, "<html><body><p>"+long+"</p></body></html>")

	f := NewStaticFetcher(zap.NewNop())
	page, err := f.Fetch(context.Background(), server.URL, DefaultFetchOptions())
	require.NoError(t, err)

	assert.LessOrEqual(t, utf8.RuneCountInString(page.BodyText), maxBodyText)
}

func TestStaticFetcher_BodyTextCapMultibyte(t *testing.T) {
	// Non-ASCII content around the cap must never be cut mid-rune.
	long := strings.Repeat("é", maxBodyText+100)
	server := serveHTML(t, "<html><body><p>"+long+"</p></body></html>")

	f := NewStaticFetcher(zap.NewNop())
	page, err := f.Fetch(context.Background(), server.URL, DefaultFetchOptions())
	require.NoError(t, err)

	assert.True(t, utf8.ValidString(page.BodyText))
	assert.Equal(t, maxBodyText, utf8.RuneCountInString(page.BodyText))
}

func TestStaticFetcher_SPADetection(t *testing.T) {
	tests := []struct {
		name       string
		html       string
		needsTier2 bool
	}{
		{
			"react shell with no content",
			`<html><body><div id="root"></div></body></html>`,
			true,
		},
		{
			"vue shell with no content",
			`<html><body><div id="app"></div></body></html>`,
			true,
		},
		{
			"react root attribute",
			`<html><body><div data-reactroot=""></div></body></html>`,
			true,
		},
		{
			"spa marker but plenty of server-rendered text",
			`<html><body><div id="root"><p>` + strings.Repeat("content ", 50) + `</p></div></body></html>`,
			false,
		},
		{
			"no spa marker, short content",
			`<html><body><p>short</p></body></html>`,
			false,
		},
	}

	f := NewStaticFetcher(zap.NewNop())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := serveHTML(t, tt.html)
			page, err := f.Fetch(context.Background(), server.URL, DefaultFetchOptions())
			require.NoError(t, err)
			assert.Equal(t, tt.needsTier2, page.NeedsTier2)
		})
	}
}

func TestStaticFetcher_PostRedirectURL(t *testing.T) {
	target := serveHTML(t, `<html><head><title>Landed</title></head><body><img src="/i.jpg"></body></html>`)

	redirector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL+"/final", http.StatusMovedPermanently)
	}))
	t.Cleanup(redirector.Close)

	f := NewStaticFetcher(zap.NewNop())
	page, err := f.Fetch(context.Background(), redirector.URL, DefaultFetchOptions())
	require.NoError(t, err)

	assert.Equal(t, target.URL+"/final", page.URL)
	// Image URLs resolve against the post-redirect host.
	require.Len(t, page.Images, 1)
	assert.Equal(t, target.URL+"/i.jpg", page.Images[0].URL)
}

func TestStaticFetcher_TransportFailures(t *testing.T) {
	f := NewStaticFetcher(zap.NewNop())

	t.Run("non-2xx status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		t.Cleanup(server.Close)

		_, err := f.Fetch(context.Background(), server.URL, DefaultFetchOptions())
		require.Error(t, err)

		var failure *FetchFailure
		require.ErrorAs(t, err, &failure)
		assert.Equal(t, TierStatic, failure.Tier)
		assert.Equal(t, server.URL, failure.URL)
	})

	t.Run("hanging host times out", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(30 * time.Second):
			}
		}))
		t.Cleanup(server.Close)

		start := time.Now()
		_, err := f.Fetch(context.Background(), server.URL, FetchOptions{Timeout: 200 * time.Millisecond})
		require.Error(t, err)
		assert.Less(t, time.Since(start), 5*time.Second)

		var failure *FetchFailure
		require.ErrorAs(t, err, &failure)
		assert.Equal(t, TierStatic, failure.Tier)
	})

	t.Run("unreachable host", func(t *testing.T) {
		_, err := f.Fetch(context.Background(), "http://127.0.0.1:1", DefaultFetchOptions())
		var failure *FetchFailure
		require.ErrorAs(t, err, &failure)
	})
}

func TestStaticFetcher_SendsBrowserHeaders(t *testing.T) {
	var gotUA, gotLang string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		fmt.Fprint(w, "<html></html>")
	}))
	t.Cleanup(server.Close)

	f := NewStaticFetcher(zap.NewNop())
	_, err := f.Fetch(context.Background(), server.URL, DefaultFetchOptions())
	require.NoError(t, err)

	assert.Contains(t, gotUA, "Mozilla/5.0")
	assert.NotEmpty(t, gotLang)
}
