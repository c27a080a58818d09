package content

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/samvad-hq/samvad-publisher/internal/domain"
)

func TestHTTPStoreGetArticle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Fatalf("Authorization = %q", got)
		}
		switch r.URL.Path {
		case "/api/articles/a1":
			_, _ = w.Write([]byte(`{"id":"a1","title":"Hello","slug":"hello","tags":["go"]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	store, err := NewHTTPStore(srv.URL+"/api/", "secret", nil)
	if err != nil {
		t.Fatalf("NewHTTPStore: %v", err)
	}

	article, err := store.GetArticle(context.Background(), "a1")
	if err != nil {
		t.Fatalf("GetArticle: %v", err)
	}
	if article.Title != "Hello" || article.Slug != "hello" || len(article.Tags) != 1 {
		t.Fatalf("unexpected article %+v", article)
	}

	if _, err := store.GetArticle(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHTTPStoreUpdateArticleStatus(t *testing.T) {
	var got statusPatch
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/articles/a1/status" {
			t.Fatalf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	store, err := NewHTTPStore(srv.URL, "", nil)
	if err != nil {
		t.Fatalf("NewHTTPStore: %v", err)
	}
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := store.UpdateArticleStatus(context.Background(), "a1", "published", &ts); err != nil {
		t.Fatalf("UpdateArticleStatus: %v", err)
	}
	if got.Status != "published" || got.PublishedAt == nil || !got.PublishedAt.Equal(ts) {
		t.Fatalf("unexpected patch %+v", got)
	}
}

func TestNewHTTPStoreRequiresURL(t *testing.T) {
	if _, err := NewHTTPStore("  ", "", nil); err == nil {
		t.Fatalf("expected error for empty base url")
	}
}
