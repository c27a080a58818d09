package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/samvad-hq/samvad-publisher/internal/domain"
	"github.com/samvad-hq/samvad-publisher/pkg/httpclient"
)

const (
	hashnodeDefaultEndpoint = "https://gql.hashnode.com"
	hashnodeMaxTags         = 5
	credHashnodeToken       = "token"
	credHashnodePublication = "publication_id"
)

const (
	hashnodePublishMutation = `mutation PublishPost($input: PublishPostInput!) {
  publishPost(input: $input) { post { id url publishedAt } }
}`
	hashnodeUpdateMutation = `mutation UpdatePost($input: UpdatePostInput!) {
  updatePost(input: $input) { post { id url updatedAt } }
}`
	hashnodeRemoveMutation = `mutation RemovePost($input: RemovePostInput!) {
  removePost(input: $input) { post { id } }
}`
	hashnodeStatsQuery = `query PostStats($id: ID!) {
  post(id: $id) { views reactionCount responseCount }
}`
)

type hashnodeAdapter struct {
	base
	endpoint      string
	token         string
	publicationID string
}

func newHashnodeAdapter(cfg DestinationConfig, deps Deps) (Adapter, error) {
	return &hashnodeAdapter{
		base:          newBase(cfg, deps),
		endpoint:      cfg.baseURL(hashnodeDefaultEndpoint),
		token:         cfg.Credential(credHashnodeToken),
		publicationID: cfg.Credential(credHashnodePublication),
	}, nil
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type hashnodePost struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	PublishedAt   string `json:"publishedAt"`
	UpdatedAt     string `json:"updatedAt"`
	Views         int64  `json:"views"`
	ReactionCount int64  `json:"reactionCount"`
	ResponseCount int64  `json:"responseCount"`
}

type hashnodeTag struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// query runs one GraphQL operation and decodes data into out. GraphQL
// errors arrive with a 200 and are surfaced as failures.
func (h *hashnodeAdapter) query(ctx context.Context, query string, vars map[string]any, out any) error {
	var resp gqlResponse
	err := h.call(ctx, httpclient.Request{
		Method:  http.MethodPost,
		URL:     h.endpoint,
		Headers: map[string]string{"Authorization": h.token},
		Body:    gqlRequest{Query: query, Variables: vars},
	}, &resp)
	if err != nil {
		return err
	}
	if len(resp.Errors) > 0 {
		msgs := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			msgs = append(msgs, e.Message)
		}
		return failure("%s rejected request: %s", h.name, strings.Join(msgs, "; "))
	}
	if out == nil || len(resp.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return failureCause(err, "decode %s response", h.name)
	}
	return nil
}

func (h *hashnodeAdapter) publication(post Post) string {
	return firstNonEmpty(post.PublicationID, h.publicationID)
}

func (h *hashnodeAdapter) credentials(post Post) error {
	if h.token == "" {
		return failure("API token not configured")
	}
	if h.publication(post) == "" {
		return failure("publication id required")
	}
	return nil
}

func (h *hashnodeAdapter) input(post Post) map[string]any {
	tags := limitTags(post.Tags, hashnodeMaxTags)
	tagInput := make([]hashnodeTag, 0, len(tags))
	for _, t := range tags {
		tagInput = append(tagInput, hashnodeTag{Slug: t, Name: t})
	}
	in := map[string]any{
		"title":           post.Title,
		"contentMarkdown": post.Content,
		"publicationId":   h.publication(post),
		"tags":            tagInput,
		"subtitle":        post.Excerpt,
	}
	if post.Slug != "" {
		in["slug"] = post.Slug
	}
	if post.CanonicalURL != "" {
		in["originalArticleURL"] = post.CanonicalURL
	}
	if post.CoverImage != "" {
		in["coverImageOptions"] = map[string]string{"coverImageURL": post.CoverImage}
	}
	if post.Series != "" {
		in["seriesId"] = post.Series
	}
	return in
}

func (h *hashnodeAdapter) Publish(ctx context.Context, post Post) (PublishResult, error) {
	if err := h.credentials(post); err != nil {
		return PublishResult{}, err
	}
	id, exists, err := h.ref(ctx, post.ArticleID)
	if err != nil {
		return PublishResult{}, err
	}
	if exists {
		upd, err := h.update(ctx, id, post)
		if err != nil {
			return PublishResult{}, err
		}
		return PublishResult{URL: upd.URL, PublishedAt: upd.UpdatedAt, RemoteID: id}, nil
	}

	var out struct {
		PublishPost struct {
			Post hashnodePost `json:"post"`
		} `json:"publishPost"`
	}
	if err := h.query(ctx, hashnodePublishMutation, map[string]any{"input": h.input(post)}, &out); err != nil {
		return PublishResult{}, err
	}
	p := out.PublishPost.Post
	if p.ID == "" {
		return PublishResult{}, failure("%s response carried no post id", h.name)
	}
	if err := h.saveRef(ctx, post.ArticleID, p.ID); err != nil {
		return PublishResult{}, err
	}
	return PublishResult{URL: p.URL, PublishedAt: parseTime(p.PublishedAt, h.now().UTC()), RemoteID: p.ID}, nil
}

func (h *hashnodeAdapter) update(ctx context.Context, id string, post Post) (UpdateResult, error) {
	in := h.input(post)
	in["id"] = id
	var out struct {
		UpdatePost struct {
			Post hashnodePost `json:"post"`
		} `json:"updatePost"`
	}
	if err := h.query(ctx, hashnodeUpdateMutation, map[string]any{"input": in}, &out); err != nil {
		return UpdateResult{}, err
	}
	p := out.UpdatePost.Post
	return UpdateResult{URL: p.URL, UpdatedAt: parseTime(p.UpdatedAt, h.now().UTC())}, nil
}

func (h *hashnodeAdapter) Update(ctx context.Context, post Post) (UpdateResult, error) {
	if err := h.credentials(post); err != nil {
		return UpdateResult{}, err
	}
	id, err := h.requireRef(ctx, post.ArticleID)
	if err != nil {
		return UpdateResult{}, err
	}
	return h.update(ctx, id, post)
}

func (h *hashnodeAdapter) Delete(ctx context.Context, articleID string) error {
	if h.token == "" {
		return failure("API token not configured")
	}
	id, err := h.requireRef(ctx, articleID)
	if err != nil {
		return err
	}
	if err := h.query(ctx, hashnodeRemoveMutation, map[string]any{"input": map[string]string{"id": id}}, nil); err != nil {
		return err
	}
	return h.dropRef(ctx, articleID)
}

func (h *hashnodeAdapter) Analytics(ctx context.Context, articleID string) (domain.AnalyticsSnapshot, error) {
	id, err := h.requireRef(ctx, articleID)
	if err != nil {
		return domain.AnalyticsSnapshot{}, err
	}
	var out struct {
		Post hashnodePost `json:"post"`
	}
	if err := h.query(ctx, hashnodeStatsQuery, map[string]any{"id": id}, &out); err != nil {
		return domain.AnalyticsSnapshot{}, err
	}
	p := out.Post
	return domain.AnalyticsSnapshot{
		Views:      p.Views,
		Likes:      p.ReactionCount,
		Comments:   p.ResponseCount,
		Engagement: engagement(p.Views, p.ReactionCount+p.ResponseCount),
	}, nil
}

func (h *hashnodeAdapter) Validate(settings map[string]any) ValidationResult {
	var errs []string
	if h.token == "" {
		errs = append(errs, "API token not configured")
	}
	if settingString(settings, SettingPublicationID, h.publicationID) == "" {
		errs = append(errs, "publication id required")
	}
	return validation(errs)
}
