package adapters

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/samvad-hq/samvad-publisher/internal/domain"
)

// Setting keys understood by the transform step.
const (
	SettingPublicationID   = "publication_id"
	SettingCanonicalURL    = "canonical_url"
	SettingSeries          = "series"
	SettingVisibility      = "visibility"
	SettingTags            = "tags"
	SettingNotifyFollowers = "notify_followers"
)

const excerptRunes = 200

// Post is the per-destination view of an article. It owns its slices; the
// canonical article is never modified by a transform.
type Post struct {
	ArticleID       string
	Title           string
	Content         string
	ContentFormat   string
	PlainText       string
	Excerpt         string
	Slug            string
	Tags            []string
	CoverImage      string
	Author          domain.Author
	SEO             domain.SEO
	CanonicalURL    string
	PublicationID   string
	Series          string
	Visibility      string
	NotifyFollowers bool
	Settings        map[string]any
}

// Transform maps the canonical article onto one destination, merging the
// destination settings and the request-wide options into a fresh copy.
func Transform(article domain.Article, spec domain.DestinationSpec, opts domain.PublishOptions) Post {
	settings := domain.CopySettings(spec.Settings)

	seo := domain.SEO{
		MetaTitle:       article.SEO.MetaTitle,
		MetaDescription: article.SEO.MetaDescription,
		CanonicalURL:    article.SEO.CanonicalURL,
		Keywords:        append([]string(nil), article.SEO.Keywords...),
	}
	if o := opts.SEO; o != nil {
		if o.MetaTitle != "" {
			seo.MetaTitle = o.MetaTitle
		}
		if o.MetaDescription != "" {
			seo.MetaDescription = o.MetaDescription
		}
		if o.CanonicalURL != "" {
			seo.CanonicalURL = o.CanonicalURL
		}
		if len(o.Keywords) > 0 {
			seo.Keywords = append([]string(nil), o.Keywords...)
		}
	}

	format := strings.ToLower(strings.TrimSpace(article.ContentFormat))
	if format == "" {
		format = domain.ContentFormatMarkdown
	}

	plain := PlainText(article.Content)
	excerpt := strings.TrimSpace(article.Excerpt)
	if excerpt == "" {
		excerpt = firstNonEmpty(seo.MetaDescription, truncateRunes(plain, excerptRunes))
	}

	return Post{
		ArticleID:       article.ID,
		Title:           article.Title,
		Content:         article.Content,
		ContentFormat:   format,
		PlainText:       plain,
		Excerpt:         excerpt,
		Slug:            article.Slug,
		Tags:            mergeTags(article.Tags, opts.Tags, settingStrings(settings, SettingTags)),
		CoverImage:      article.CoverImage,
		Author:          article.Author,
		SEO:             seo,
		CanonicalURL:    settingString(settings, SettingCanonicalURL, seo.CanonicalURL),
		PublicationID:   settingString(settings, SettingPublicationID, ""),
		Series:          settingString(settings, SettingSeries, ""),
		Visibility:      strings.ToLower(settingString(settings, SettingVisibility, "public")),
		NotifyFollowers: settingBool(settings, SettingNotifyFollowers, false),
		Settings:        settings,
	}
}

// PlainText strips markup from an HTML (or markdown-with-inline-HTML) body.
func PlainText(body string) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return strings.TrimSpace(body)
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n])) + "..."
}

// mergeTags concatenates tag lists, dropping blanks and case-insensitive duplicates.
func mergeTags(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, tag := range list {
			tag = strings.TrimSpace(tag)
			key := strings.ToLower(tag)
			if tag == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, tag)
		}
	}
	return out
}

// limitTags normalizes tags to lowercase alphanumerics and keeps at most max entries.
func limitTags(tags []string, max int) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		var b strings.Builder
		for _, r := range strings.ToLower(tag) {
			if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
				b.WriteRune(r)
			}
		}
		if b.Len() == 0 {
			continue
		}
		out = append(out, b.String())
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}

func settingString(settings map[string]any, key, fallback string) string {
	if settings == nil {
		return fallback
	}
	raw, ok := settings[key]
	if !ok || raw == nil {
		return fallback
	}
	var val string
	switch v := raw.(type) {
	case string:
		val = v
	case fmt.Stringer:
		val = v.String()
	default:
		val = fmt.Sprint(v)
	}
	if trimmed := strings.TrimSpace(val); trimmed != "" {
		return trimmed
	}
	return fallback
}

func settingBool(settings map[string]any, key string, fallback bool) bool {
	if settings == nil {
		return fallback
	}
	switch v := settings[key].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return fallback
}

func settingStrings(settings map[string]any, key string) []string {
	if settings == nil {
		return nil
	}
	switch v := settings[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return strings.Split(v, ",")
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
