package content

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samvad-hq/samvad-publisher/internal/domain"
	"github.com/samvad-hq/samvad-publisher/pkg/httpclient"
)

// Store is the content-store collaborator the orchestrator reads articles from.
type Store interface {
	GetArticle(ctx context.Context, id string) (*domain.Article, error)
	UpdateArticleStatus(ctx context.Context, id, status string, publishedAt *time.Time) error
}

// HTTPStore talks to the CMS content API over HTTP.
type HTTPStore struct {
	baseURL string
	token   string
	client  httpclient.Client
}

// NewHTTPStore builds a content API client. A nil client uses a resty client with a 10s timeout.
func NewHTTPStore(baseURL, token string, client httpclient.Client) (*HTTPStore, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("content api url is empty")
	}
	if client == nil {
		client = httpclient.NewRestyClient(10 * time.Second)
	}
	return &HTTPStore{baseURL: baseURL, token: strings.TrimSpace(token), client: client}, nil
}

func (s *HTTPStore) headers() map[string]string {
	h := map[string]string{"Accept": "application/json"}
	if s.token != "" {
		h["Authorization"] = "Bearer " + s.token
	}
	return h
}

func (s *HTTPStore) articleURL(id string) string {
	return s.baseURL + "/articles/" + url.PathEscape(id)
}

// GetArticle fetches one article; a 404 maps to domain.ErrNotFound.
func (s *HTTPStore) GetArticle(ctx context.Context, id string) (*domain.Article, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("article id is empty: %w", domain.ErrNotFound)
	}

	resp, err := s.client.Get(ctx, s.articleURL(id), s.headers())
	if err != nil {
		return nil, fmt.Errorf("fetch article %s: %w", id, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("article %s: %w", id, domain.ErrNotFound)
	}
	if !httpclient.IsSuccess(resp) {
		return nil, fmt.Errorf("content api returned status %d body: %s", resp.StatusCode(), httpclient.Snippet(resp.Body()))
	}

	var article domain.Article
	if err := json.Unmarshal(resp.Body(), &article); err != nil {
		return nil, fmt.Errorf("decode article %s: %w", id, err)
	}
	if article.ID == "" {
		article.ID = id
	}
	return &article, nil
}

type statusPatch struct {
	Status      string     `json:"status"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// UpdateArticleStatus patches the article's publication status.
func (s *HTTPStore) UpdateArticleStatus(ctx context.Context, id, status string, publishedAt *time.Time) error {
	resp, err := s.client.Do(ctx, httpclient.Request{
		Method:  http.MethodPatch,
		URL:     s.articleURL(id) + "/status",
		Headers: s.headers(),
		Body:    statusPatch{Status: status, PublishedAt: publishedAt},
	})
	if err != nil {
		return fmt.Errorf("update article %s status: %w", id, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return fmt.Errorf("article %s: %w", id, domain.ErrNotFound)
	}
	if !httpclient.IsSuccess(resp) {
		return fmt.Errorf("content api returned status %d body: %s", resp.StatusCode(), httpclient.Snippet(resp.Body()))
	}
	return nil
}
