package adapters

import (
	"context"
	"net/http"
	"strconv"

	"github.com/samvad-hq/samvad-publisher/internal/domain"
	"github.com/samvad-hq/samvad-publisher/pkg/httpclient"
)

const (
	devtoDefaultBaseURL = "https://dev.to"
	devtoMaxTags        = 4
	credDevtoAPIKey     = "api_key"
)

type devtoAdapter struct {
	base
	baseURL string
	apiKey  string
}

func newDevtoAdapter(cfg DestinationConfig, deps Deps) (Adapter, error) {
	return &devtoAdapter{
		base:    newBase(cfg, deps),
		baseURL: cfg.baseURL(devtoDefaultBaseURL),
		apiKey:  cfg.Credential(credDevtoAPIKey),
	}, nil
}

type devtoArticle struct {
	Title        string   `json:"title,omitempty"`
	BodyMarkdown string   `json:"body_markdown,omitempty"`
	Published    bool     `json:"published"`
	Tags         []string `json:"tags,omitempty"`
	CanonicalURL string   `json:"canonical_url,omitempty"`
	Description  string   `json:"description,omitempty"`
	MainImage    string   `json:"main_image,omitempty"`
	Series       string   `json:"series,omitempty"`
}

type devtoEnvelope struct {
	Article devtoArticle `json:"article"`
}

type devtoResponse struct {
	ID                   int64  `json:"id"`
	URL                  string `json:"url"`
	PublishedAt          string `json:"published_at"`
	EditedAt             string `json:"edited_at"`
	PageViewsCount       int64  `json:"page_views_count"`
	PublicReactionsCount int64  `json:"public_reactions_count"`
	CommentsCount        int64  `json:"comments_count"`
}

func (d *devtoAdapter) headers() map[string]string {
	return map[string]string{"api-key": d.apiKey, "Accept": "application/vnd.forem.api-v1+json"}
}

func (d *devtoAdapter) articlesURL() string { return d.baseURL + "/api/articles" }

func (d *devtoAdapter) article(post Post) devtoEnvelope {
	return devtoEnvelope{Article: devtoArticle{
		Title:        post.Title,
		BodyMarkdown: post.Content,
		Published:    true,
		Tags:         limitTags(post.Tags, devtoMaxTags),
		CanonicalURL: post.CanonicalURL,
		Description:  post.Excerpt,
		MainImage:    post.CoverImage,
		Series:       post.Series,
	}}
}

func (d *devtoAdapter) Publish(ctx context.Context, post Post) (PublishResult, error) {
	if d.apiKey == "" {
		return PublishResult{}, failure("API key not configured")
	}
	id, exists, err := d.ref(ctx, post.ArticleID)
	if err != nil {
		return PublishResult{}, err
	}

	req := httpclient.Request{Method: http.MethodPost, URL: d.articlesURL(), Headers: d.headers(), Body: d.article(post)}
	if exists {
		req.Method = http.MethodPut
		req.URL = d.articlesURL() + "/" + id
	}

	var out devtoResponse
	if err := d.call(ctx, req, &out); err != nil {
		return PublishResult{}, err
	}
	if out.ID != 0 {
		id = strconv.FormatInt(out.ID, 10)
	}
	if id == "" {
		return PublishResult{}, failure("%s response carried no article id", d.name)
	}
	if err := d.saveRef(ctx, post.ArticleID, id); err != nil {
		return PublishResult{}, err
	}
	return PublishResult{URL: out.URL, PublishedAt: parseTime(out.PublishedAt, d.now().UTC()), RemoteID: id}, nil
}

func (d *devtoAdapter) Update(ctx context.Context, post Post) (UpdateResult, error) {
	if d.apiKey == "" {
		return UpdateResult{}, failure("API key not configured")
	}
	id, err := d.requireRef(ctx, post.ArticleID)
	if err != nil {
		return UpdateResult{}, err
	}
	var out devtoResponse
	err = d.call(ctx, httpclient.Request{
		Method:  http.MethodPut,
		URL:     d.articlesURL() + "/" + id,
		Headers: d.headers(),
		Body:    d.article(post),
	}, &out)
	if err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{URL: out.URL, UpdatedAt: parseTime(out.EditedAt, d.now().UTC())}, nil
}

// Delete unpublishes the article; the platform API has no hard delete.
func (d *devtoAdapter) Delete(ctx context.Context, articleID string) error {
	if d.apiKey == "" {
		return failure("API key not configured")
	}
	id, err := d.requireRef(ctx, articleID)
	if err != nil {
		return err
	}
	err = d.call(ctx, httpclient.Request{
		Method:  http.MethodPut,
		URL:     d.articlesURL() + "/" + id,
		Headers: d.headers(),
		Body:    devtoEnvelope{Article: devtoArticle{Published: false}},
	}, nil)
	if err != nil {
		return err
	}
	return d.dropRef(ctx, articleID)
}

func (d *devtoAdapter) Analytics(ctx context.Context, articleID string) (domain.AnalyticsSnapshot, error) {
	id, err := d.requireRef(ctx, articleID)
	if err != nil {
		return domain.AnalyticsSnapshot{}, err
	}
	var out devtoResponse
	err = d.call(ctx, httpclient.Request{
		Method:  http.MethodGet,
		URL:     d.articlesURL() + "/" + id,
		Headers: d.headers(),
	}, &out)
	if err != nil {
		return domain.AnalyticsSnapshot{}, err
	}
	return domain.AnalyticsSnapshot{
		Views:      out.PageViewsCount,
		Likes:      out.PublicReactionsCount,
		Comments:   out.CommentsCount,
		Engagement: engagement(out.PageViewsCount, out.PublicReactionsCount+out.CommentsCount),
	}, nil
}

func (d *devtoAdapter) Validate(map[string]any) ValidationResult {
	var errs []string
	if d.apiKey == "" {
		errs = append(errs, "API key not configured")
	}
	return validation(errs)
}
