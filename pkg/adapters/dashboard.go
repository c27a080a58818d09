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
	credDashboardToken = "api_token"
	credDashboardSite  = "site_url"
)

// dashboardAdapter publishes to the self-hosted site. The site upserts by
// slug, so repeated publishes overwrite the same post.
type dashboardAdapter struct {
	base
	baseURL string
	siteURL string
	token   string
}

func newDashboardAdapter(cfg DestinationConfig, deps Deps) (Adapter, error) {
	return &dashboardAdapter{
		base:    newBase(cfg, deps),
		baseURL: cfg.BaseURL,
		siteURL: strings.TrimRight(firstNonEmpty(cfg.Credential(credDashboardSite), cfg.BaseURL), "/"),
		token:   cfg.Credential(credDashboardToken),
	}, nil
}

type dashboardPost struct {
	Title         string     `json:"title"`
	Content       string     `json:"content"`
	ContentFormat string     `json:"content_format"`
	Excerpt       string     `json:"excerpt"`
	Slug          string     `json:"slug"`
	Tags          []string   `json:"tags"`
	CoverImage    string     `json:"cover_image,omitempty"`
	Author        domainAuth `json:"author"`
	MetaTitle     string     `json:"meta_title,omitempty"`
	MetaDesc      string     `json:"meta_description,omitempty"`
	CanonicalURL  string     `json:"canonical_url,omitempty"`
	Keywords      []string   `json:"keywords,omitempty"`
	Series        string     `json:"series,omitempty"`
	Visibility    string     `json:"visibility"`
	Published     bool       `json:"published"`
}

type domainAuth struct {
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	ProfileURL string `json:"profile_url,omitempty"`
}

type dashboardResponse struct {
	URL         string `json:"url"`
	PublishedAt string `json:"published_at"`
	UpdatedAt   string `json:"updated_at"`
}

func (d *dashboardAdapter) headers() map[string]string {
	if d.token == "" {
		return nil
	}
	return bearer(d.token)
}

func (d *dashboardAdapter) articleURL(slug string) string {
	return d.baseURL + "/api/articles/" + url.PathEscape(slug)
}

func (d *dashboardAdapter) publicURL(slug string) string {
	return d.siteURL + "/blog/" + url.PathEscape(slug)
}

func slugFor(post Post) string {
	if s := strings.TrimSpace(post.Slug); s != "" {
		return s
	}
	return post.ArticleID
}

func (d *dashboardAdapter) upsert(ctx context.Context, post Post) (string, dashboardResponse, error) {
	var out dashboardResponse
	if d.baseURL == "" {
		return "", out, failure("base url not configured")
	}
	slug := slugFor(post)
	body := dashboardPost{
		Title:         post.Title,
		Content:       post.Content,
		ContentFormat: post.ContentFormat,
		Excerpt:       post.Excerpt,
		Slug:          slug,
		Tags:          post.Tags,
		CoverImage:    post.CoverImage,
		Author:        domainAuth{Name: post.Author.Name, Email: post.Author.Email, ProfileURL: post.Author.ProfileURL},
		MetaTitle:     post.SEO.MetaTitle,
		MetaDesc:      post.SEO.MetaDescription,
		CanonicalURL:  post.CanonicalURL,
		Keywords:      post.SEO.Keywords,
		Series:        post.Series,
		Visibility:    post.Visibility,
		Published:     true,
	}
	err := d.call(ctx, httpclient.Request{
		Method:  http.MethodPut,
		URL:     d.articleURL(slug),
		Headers: d.headers(),
		Body:    body,
	}, &out)
	if err != nil {
		return "", out, err
	}
	if out.URL == "" {
		out.URL = d.publicURL(slug)
	}
	return slug, out, nil
}

func (d *dashboardAdapter) Publish(ctx context.Context, post Post) (PublishResult, error) {
	slug, out, err := d.upsert(ctx, post)
	if err != nil {
		return PublishResult{}, err
	}
	if err := d.saveRef(ctx, post.ArticleID, slug); err != nil {
		return PublishResult{}, err
	}
	return PublishResult{URL: out.URL, PublishedAt: parseTime(out.PublishedAt, d.now().UTC()), RemoteID: slug}, nil
}

func (d *dashboardAdapter) Update(ctx context.Context, post Post) (UpdateResult, error) {
	slug, out, err := d.upsert(ctx, post)
	if err != nil {
		return UpdateResult{}, err
	}
	if err := d.saveRef(ctx, post.ArticleID, slug); err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{URL: out.URL, UpdatedAt: parseTime(out.UpdatedAt, d.now().UTC())}, nil
}

func (d *dashboardAdapter) Delete(ctx context.Context, articleID string) error {
	if d.baseURL == "" {
		return failure("base url not configured")
	}
	slug, err := d.requireRef(ctx, articleID)
	if err != nil {
		return err
	}
	err = d.call(ctx, httpclient.Request{
		Method:  http.MethodDelete,
		URL:     d.articleURL(slug),
		Headers: d.headers(),
	}, nil)
	if err != nil {
		return err
	}
	return d.dropRef(ctx, articleID)
}

func (d *dashboardAdapter) Analytics(ctx context.Context, articleID string) (domain.AnalyticsSnapshot, error) {
	var snap domain.AnalyticsSnapshot
	if d.baseURL == "" {
		return snap, failure("base url not configured")
	}
	slug, err := d.requireRef(ctx, articleID)
	if err != nil {
		return snap, err
	}
	err = d.call(ctx, httpclient.Request{
		Method:  http.MethodGet,
		URL:     d.articleURL(slug) + "/analytics",
		Headers: d.headers(),
	}, &snap)
	if err != nil {
		return domain.AnalyticsSnapshot{}, err
	}
	if snap.Engagement == 0 {
		snap.Engagement = engagement(snap.Views, snap.Likes+snap.Comments+snap.Shares)
	}
	return snap, nil
}

func (d *dashboardAdapter) Validate(map[string]any) ValidationResult {
	var errs []string
	if d.baseURL == "" {
		errs = append(errs, "base url not configured")
	}
	return validation(errs)
}
