package web_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"swarm/web"
)

const samplePage = `<!DOCTYPE html>
<html>
<head><title>Sample</title><style>body { color: red; }</style></head>
<body>
<nav>Home | About</nav>
<h1>Release Notes</h1>
<p>Version 2.0 ships today.</p>
<script>console.log("tracking")</script>
<ul><li>Faster queue</li><li>Bug fixes</li></ul>
<footer>Copyright</footer>
</body>
</html>`

func TestExtractText(t *testing.T) {
	text, err := web.ExtractText(samplePage)
	require.NoError(t, err)

	assert.Contains(t, text, "Release Notes")
	assert.Contains(t, text, "Version 2.0 ships today.")
	assert.Contains(t, text, "Faster queue")
	assert.NotContains(t, text, "console.log", "scripts should be stripped")
	assert.NotContains(t, text, "color: red", "styles should be stripped")
	assert.NotContains(t, text, "Home | About", "navigation should be stripped")
}

func TestExtractTextNoBlocks(t *testing.T) {
	text, err := web.ExtractText("<html><body>just   some\n text</body></html>")
	require.NoError(t, err)
	assert.Equal(t, "just some text", text)
}

func TestExtractTextEmpty(t *testing.T) {
	_, err := web.ExtractText("<html><body><script>x</script></body></html>")
	assert.Error(t, err)
}

func TestFetchReadable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(samplePage))
	}))
	defer server.Close()

	fetcher := web.NewFetcher(5*time.Second, 1024*1024)
	text, err := fetcher.FetchReadable(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Contains(t, text, "Release Notes")
}

func TestFetchReadableBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	fetcher := web.NewFetcher(5*time.Second, 1024*1024)
	_, err := fetcher.FetchReadable(context.Background(), server.URL)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status code")
}

func TestFetchReadableSizeLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><p>" + string(make([]byte, 4096)) + "</p></body></html>"))
	}))
	defer server.Close()

	fetcher := web.NewFetcher(5*time.Second, 64)
	_, err := fetcher.FetchReadable(context.Background(), server.URL)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "maximum size")
}

func TestFetchReadableRejectsScheme(t *testing.T) {
	fetcher := web.NewFetcher(time.Second, 1024)
	_, err := fetcher.FetchReadable(context.Background(), "ftp://example.com/file")
	assert.Error(t, err)
}
