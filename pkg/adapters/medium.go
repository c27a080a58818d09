package adapters

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/samvad-hq/samvad-publisher/internal/domain"
	"github.com/samvad-hq/samvad-publisher/pkg/httpclient"
)

const (
	mediumDefaultBaseURL = "https://api.medium.com"
	credMediumToken      = "token"
	credMediumAuthorID   = "author_id"
)

// mediumAdapter can only create posts. The stored reference is the post URL,
// returned as-is on repeated publishes.
type mediumAdapter struct {
	base
	baseURL  string
	token    string
	authorID string
}

func newMediumAdapter(cfg DestinationConfig, deps Deps) (Adapter, error) {
	return &mediumAdapter{
		base:     newBase(cfg, deps),
		baseURL:  cfg.baseURL(mediumDefaultBaseURL),
		token:    cfg.Credential(credMediumToken),
		authorID: cfg.Credential(credMediumAuthorID),
	}, nil
}

type mediumPost struct {
	Title           string   `json:"title"`
	ContentFormat   string   `json:"contentFormat"`
	Content         string   `json:"content"`
	Tags            []string `json:"tags,omitempty"`
	CanonicalURL    string   `json:"canonicalUrl,omitempty"`
	PublishStatus   string   `json:"publishStatus"`
	NotifyFollowers bool     `json:"notifyFollowers"`
}

type mediumResponse struct {
	Data struct {
		ID          string `json:"id"`
		URL         string `json:"url"`
		PublishedAt int64  `json:"publishedAt"`
	} `json:"data"`
}

func mediumStatus(visibility string) string {
	switch visibility {
	case "draft", "unlisted":
		return visibility
	default:
		return "public"
	}
}

func (m *mediumAdapter) Publish(ctx context.Context, post Post) (PublishResult, error) {
	if m.token == "" {
		return PublishResult{}, failure("integration token not configured")
	}
	if m.authorID == "" {
		return PublishResult{}, failure("author id required")
	}
	if ref, ok, err := m.ref(ctx, post.ArticleID); err != nil {
		return PublishResult{}, err
	} else if ok {
		return PublishResult{URL: ref, PublishedAt: m.now().UTC(), RemoteID: ref}, nil
	}

	var out mediumResponse
	err := m.call(ctx, httpclient.Request{
		Method:  http.MethodPost,
		URL:     m.baseURL + "/v1/users/" + url.PathEscape(m.authorID) + "/posts",
		Headers: bearer(m.token),
		Body: mediumPost{
			Title:           post.Title,
			ContentFormat:   post.ContentFormat,
			Content:         post.Content,
			Tags:            post.Tags,
			CanonicalURL:    post.CanonicalURL,
			PublishStatus:   mediumStatus(post.Visibility),
			NotifyFollowers: post.NotifyFollowers,
		},
	}, &out)
	if err != nil {
		return PublishResult{}, err
	}
	if out.Data.URL == "" {
		return PublishResult{}, failure("%s response carried no post url", m.name)
	}
	if err := m.saveRef(ctx, post.ArticleID, out.Data.URL); err != nil {
		return PublishResult{}, err
	}

	published := m.now().UTC()
	if out.Data.PublishedAt > 0 {
		published = time.UnixMilli(out.Data.PublishedAt).UTC()
	}
	return PublishResult{URL: out.Data.URL, PublishedAt: published, RemoteID: out.Data.URL}, nil
}

func (m *mediumAdapter) Update(context.Context, Post) (UpdateResult, error) {
	return UpdateResult{}, unsupported(m.name, domain.OperationUpdate)
}

func (m *mediumAdapter) Delete(context.Context, string) error {
	return unsupported(m.name, domain.OperationDelete)
}

func (m *mediumAdapter) Analytics(context.Context, string) (domain.AnalyticsSnapshot, error) {
	return domain.AnalyticsSnapshot{}, nil
}

func (m *mediumAdapter) Validate(map[string]any) ValidationResult {
	var errs []string
	if m.token == "" {
		errs = append(errs, "integration token not configured")
	}
	if m.authorID == "" {
		errs = append(errs, "author id required")
	}
	return validation(errs)
}
