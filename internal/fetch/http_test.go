package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"gantry/internal/transfer"
)

func newTestFetcher() *HTTPFetcher {
	f := NewHTTPFetcher()
	f.interval = 0
	return f
}

func TestFetchDownloadsAndReportsProgress(t *testing.T) {
	payload := []byte("this is the disc image body")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "image.iso")
	var mu sync.Mutex
	var samples [][2]int64
	err := newTestFetcher().Fetch(context.Background(), server.URL, dest, func(bytes, total int64) {
		mu.Lock()
		samples = append(samples, [2]int64{bytes, total})
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read dest: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatal("downloaded contents differ")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(samples) < 2 {
		t.Fatalf("expected at least initial and final progress, got %d", len(samples))
	}
	final := samples[len(samples)-1]
	if final[0] != int64(len(payload)) || final[1] != int64(len(payload)) {
		t.Fatalf("final sample = %v, want bytes=total=%d", final, len(payload))
	}
	for i := 1; i < len(samples); i++ {
		if samples[i][0] < samples[i-1][0] {
			t.Fatalf("bytes regressed: %v", samples)
		}
	}
}

func TestFetchClassifiesStatusCodes(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, transfer.ErrNotFound},
		{http.StatusGone, transfer.ErrNotFound},
		{http.StatusUnauthorized, transfer.ErrAuth},
		{http.StatusForbidden, transfer.ErrAuth},
		{http.StatusInternalServerError, transfer.ErrTransient},
		{http.StatusBadGateway, transfer.ErrTransient},
		{http.StatusTooManyRequests, transfer.ErrTransient},
	}
	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		dest := filepath.Join(t.TempDir(), "image.iso")
		err := newTestFetcher().Fetch(context.Background(), server.URL, dest, nil)
		server.Close()
		if !errors.Is(err, tc.want) {
			t.Errorf("status %d: got %v, want %v", tc.status, err, tc.want)
		}
	}
}

func TestFetchHonorsContextCancel(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-release
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	dest := filepath.Join(t.TempDir(), "image.iso")

	var once sync.Once
	err := newTestFetcher().Fetch(ctx, server.URL, dest, func(bytes, total int64) {
		once.Do(cancel)
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFetchRejectsShortBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		_, _ = w.Write([]byte("short"))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "image.iso")
	err := newTestFetcher().Fetch(context.Background(), server.URL, dest, nil)
	if !errors.Is(err, transfer.ErrTransient) {
		t.Fatalf("expected transient short-body failure, got %v", err)
	}
}
