package adapters

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/samvad-hq/samvad-publisher/internal/domain"
	"github.com/samvad-hq/samvad-publisher/pkg/httpclient"
)

const (
	linkedInDefaultBaseURL = "https://api.linkedin.com"
	linkedInFeedURL        = "https://www.linkedin.com/feed/update/"
	linkedInCommentaryMax  = 3000
	credLinkedInToken      = "access_token"
	credLinkedInAuthor     = "author_urn"
)

// linkedInAdapter shares the article link with commentary. The stored
// reference is the share URN.
type linkedInAdapter struct {
	base
	baseURL   string
	token     string
	authorURN string
}

func newLinkedInAdapter(cfg DestinationConfig, deps Deps) (Adapter, error) {
	return &linkedInAdapter{
		base:      newBase(cfg, deps),
		baseURL:   cfg.baseURL(linkedInDefaultBaseURL),
		token:     cfg.Credential(credLinkedInToken),
		authorURN: cfg.Credential(credLinkedInAuthor),
	}, nil
}

type linkedInText struct {
	Text string `json:"text"`
}

type linkedInMedia struct {
	Status      string       `json:"status"`
	OriginalURL string       `json:"originalUrl"`
	Title       linkedInText `json:"title"`
	Description linkedInText `json:"description"`
}

type linkedInShare struct {
	ShareCommentary    linkedInText    `json:"shareCommentary"`
	ShareMediaCategory string          `json:"shareMediaCategory"`
	Media              []linkedInMedia `json:"media"`
}

type linkedInPost struct {
	Author          string                   `json:"author"`
	LifecycleState  string                   `json:"lifecycleState"`
	SpecificContent map[string]linkedInShare `json:"specificContent"`
	Visibility      map[string]string        `json:"visibility"`
}

func (l *linkedInAdapter) headers() map[string]string {
	h := bearer(l.token)
	h["X-Restli-Protocol-Version"] = "2.0.0"
	return h
}

func (l *linkedInAdapter) credentials() error {
	if l.token == "" {
		return failure("access token not configured")
	}
	if l.authorURN == "" {
		return failure("author urn required")
	}
	return nil
}

func linkedInVisibility(v string) string {
	if v == "connections" {
		return "CONNECTIONS"
	}
	return "PUBLIC"
}

// commentary is plain text: title, excerpt and link.
func commentary(post Post) string {
	parts := []string{post.Title}
	if post.Excerpt != "" {
		parts = append(parts, PlainText(post.Excerpt))
	}
	parts = append(parts, post.CanonicalURL)
	return truncateRunes(strings.Join(parts, "\n\n"), linkedInCommentaryMax)
}

func shareURL(urn string) string { return linkedInFeedURL + urn }

func (l *linkedInAdapter) Publish(ctx context.Context, post Post) (PublishResult, error) {
	if err := l.credentials(); err != nil {
		return PublishResult{}, err
	}
	if urn, ok, err := l.ref(ctx, post.ArticleID); err != nil {
		return PublishResult{}, err
	} else if ok {
		return PublishResult{URL: shareURL(urn), PublishedAt: l.now().UTC(), RemoteID: urn}, nil
	}
	if post.CanonicalURL == "" {
		return PublishResult{}, failure("canonical url required to share on %s", l.name)
	}

	body := linkedInPost{
		Author:         l.authorURN,
		LifecycleState: "PUBLISHED",
		SpecificContent: map[string]linkedInShare{
			"com.linkedin.ugc.ShareContent": {
				ShareCommentary:    linkedInText{Text: commentary(post)},
				ShareMediaCategory: "ARTICLE",
				Media: []linkedInMedia{{
					Status:      "READY",
					OriginalURL: post.CanonicalURL,
					Title:       linkedInText{Text: post.Title},
					Description: linkedInText{Text: truncateRunes(post.Excerpt, excerptRunes)},
				}},
			},
		},
		Visibility: map[string]string{"com.linkedin.ugc.MemberNetworkVisibility": linkedInVisibility(post.Visibility)},
	}

	var out struct {
		ID string `json:"id"`
	}
	err := l.call(ctx, httpclient.Request{
		Method:  http.MethodPost,
		URL:     l.baseURL + "/v2/ugcPosts",
		Headers: l.headers(),
		Body:    body,
	}, &out)
	if err != nil {
		return PublishResult{}, err
	}
	if out.ID == "" {
		return PublishResult{}, failure("%s response carried no share urn", l.name)
	}
	if err := l.saveRef(ctx, post.ArticleID, out.ID); err != nil {
		return PublishResult{}, err
	}
	return PublishResult{URL: shareURL(out.ID), PublishedAt: l.now().UTC(), RemoteID: out.ID}, nil
}

func (l *linkedInAdapter) Update(context.Context, Post) (UpdateResult, error) {
	return UpdateResult{}, unsupported(l.name, domain.OperationUpdate)
}

func (l *linkedInAdapter) Delete(ctx context.Context, articleID string) error {
	if err := l.credentials(); err != nil {
		return err
	}
	urn, err := l.requireRef(ctx, articleID)
	if err != nil {
		return err
	}
	err = l.call(ctx, httpclient.Request{
		Method:  http.MethodDelete,
		URL:     l.baseURL + "/v2/ugcPosts/" + url.PathEscape(urn),
		Headers: l.headers(),
	}, nil)
	if err != nil {
		return err
	}
	return l.dropRef(ctx, articleID)
}

func (l *linkedInAdapter) Analytics(context.Context, string) (domain.AnalyticsSnapshot, error) {
	return domain.AnalyticsSnapshot{}, nil
}

func (l *linkedInAdapter) Validate(map[string]any) ValidationResult {
	var errs []string
	if l.token == "" {
		errs = append(errs, "access token not configured")
	}
	if l.authorURN == "" {
		errs = append(errs, "author urn required")
	}
	return validation(errs)
}
