package fetch

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownload_Success(t *testing.T) {
	var gotUA, gotReferer string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotReferer = r.Header.Get("Referer")
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte("mp4-bytes"))
	}))
	defer server.Close()

	d := NewDownloader(&Options{Referer: "https://compass.example.com/"})
	var buf bytes.Buffer
	n, err := d.Download(context.Background(), server.URL+"/v/abc.mp4", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)
	assert.Equal(t, "mp4-bytes", buf.String())
	assert.Equal(t, DefaultUserAgent, gotUA)
	assert.Equal(t, "https://compass.example.com/", gotReferer)
}

func TestDownload_InvalidURL(t *testing.T) {
	_, err := NewDownloader(nil).Download(context.Background(), "not-a-valid-url", &bytes.Buffer{})
	require.Error(t, err)

	var fetchErr *Error
	assert.ErrorAs(t, err, &fetchErr)
	assert.Contains(t, err.Error(), "invalid URL")
}

func TestDownload_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	var buf bytes.Buffer
	_, err := NewDownloader(nil).Download(context.Background(), server.URL, &buf)
	require.Error(t, err)

	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusForbidden, fetchErr.StatusCode)
	assert.Contains(t, err.Error(), "403")
	assert.Zero(t, buf.Len())
}

func TestDownload_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	d := NewDownloader(&Options{Timeout: 50 * time.Millisecond})
	_, err := d.Download(context.Background(), server.URL, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP request failed")
}

func TestDownload_CancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("x"))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewDownloader(nil).Download(ctx, server.URL, &bytes.Buffer{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
