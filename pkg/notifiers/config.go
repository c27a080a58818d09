package notifiers

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/samvad-hq/samvad-publisher/pkg/configfile"
)

const (
	// Supported notifier types.
	TypeHTTP   = "http"
	TypeSQS    = "sqs"
	TypeSNS    = "sns"
	TypePubSub = "gcp_pubsub"

	httpDefaultMethod         = "POST"
	httpDefaultTimeoutSeconds = 5
)

// configFile represents the structure of the notifiers configuration file.
type configFile struct {
	Notifiers []NotifierConfig `json:"notifiers" yaml:"notifiers"`
}

// NotifierConfig represents a single notifier entry declared in config files.
type NotifierConfig struct {
	ID      string        `json:"id" yaml:"id"`
	Type    string        `json:"type" yaml:"type"`
	Enabled *bool         `json:"enabled" yaml:"enabled"`
	HTTP    *HTTPConfig   `json:"http" yaml:"http"`
	SQS     *SQSConfig    `json:"sqs" yaml:"sqs"`
	SNS     *SNSConfig    `json:"sns" yaml:"sns"`
	PubSub  *PubSubConfig `json:"gcp_pubsub" yaml:"gcp_pubsub"`
}

// HTTPConfig holds generic webhook settings.
type HTTPConfig struct {
	URL            string            `json:"url" yaml:"url"`
	Method         string            `json:"method" yaml:"method"`
	Headers        map[string]string `json:"headers" yaml:"headers"`
	TimeoutSeconds int               `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// SQSConfig holds AWS SQS specific settings.
type SQSConfig struct {
	QueueURL string `json:"uri" yaml:"uri"`
	Region   string `json:"region" yaml:"region"`
	AWSKeys  `yaml:",inline"`
}

// SNSConfig holds AWS SNS specific settings.
type SNSConfig struct {
	TopicARN string `json:"topic_arn" yaml:"topic_arn"`
	Region   string `json:"region" yaml:"region"`
	AWSKeys  `yaml:",inline"`
}

// PubSubConfig holds Google Cloud Pub/Sub settings.
type PubSubConfig struct {
	ProjectID string `json:"project_id" yaml:"project_id"`
	Topic     string `json:"topic" yaml:"topic"`
}

// ConfigRegistry holds the notifiers declared in a registry file. It is
// immutable once loaded.
type ConfigRegistry struct {
	list []NotifierConfig
	byID map[string]int
}

// LoadRegistry loads the notifier registry from a YAML/JSON file. An empty
// list is valid and yields a registry without notifiers.
func LoadRegistry(path string) (*ConfigRegistry, error) {
	var file configFile
	if err := configfile.Decode(path, "notifiers", &file); err != nil {
		return nil, err
	}

	reg := &ConfigRegistry{byID: make(map[string]int, len(file.Notifiers))}
	for i, entry := range file.Notifiers {
		cfg := entry.normalized()
		if err := cfg.validate(); err != nil {
			return nil, fmt.Errorf("notifiers[%d]: %w", i, err)
		}
		if _, dup := reg.byID[cfg.ID]; dup {
			return nil, fmt.Errorf("duplicate notifier id %q", cfg.ID)
		}
		reg.byID[cfg.ID] = len(reg.list)
		reg.list = append(reg.list, cfg)
	}
	return reg, nil
}

func (cfg NotifierConfig) normalized() NotifierConfig {
	cfg.ID = strings.TrimSpace(cfg.ID)
	cfg.Type = strings.ToLower(strings.TrimSpace(cfg.Type))
	if cfg.Enabled == nil {
		on := true
		cfg.Enabled = &on
	}

	if h := cfg.HTTP; h != nil {
		cp := HTTPConfig{
			URL:            expandTrim(h.URL),
			Method:         strings.ToUpper(strings.TrimSpace(h.Method)),
			Headers:        configfile.ExpandMap(h.Headers),
			TimeoutSeconds: h.TimeoutSeconds,
		}
		if cp.Method == "" {
			cp.Method = httpDefaultMethod
		}
		if cp.TimeoutSeconds <= 0 {
			cp.TimeoutSeconds = httpDefaultTimeoutSeconds
		}
		cfg.HTTP = &cp
	}
	if q := cfg.SQS; q != nil {
		cfg.SQS = &SQSConfig{QueueURL: strings.TrimSpace(q.QueueURL), Region: strings.TrimSpace(q.Region), AWSKeys: q.AWSKeys.expanded()}
	}
	if t := cfg.SNS; t != nil {
		cfg.SNS = &SNSConfig{TopicARN: strings.TrimSpace(t.TopicARN), Region: strings.TrimSpace(t.Region), AWSKeys: t.AWSKeys.expanded()}
	}
	if ps := cfg.PubSub; ps != nil {
		cfg.PubSub = &PubSubConfig{ProjectID: strings.TrimSpace(ps.ProjectID), Topic: strings.TrimSpace(ps.Topic)}
	}
	return cfg
}

// validate checks that the sink-specific block for cfg.Type is complete.
func (cfg NotifierConfig) validate() error {
	if cfg.ID == "" {
		return errors.New("id is required")
	}
	var missing string
	switch cfg.Type {
	case "":
		return fmt.Errorf("type is required for notifier %q", cfg.ID)
	case TypeHTTP:
		if cfg.HTTP == nil || cfg.HTTP.URL == "" {
			missing = "http.url"
		}
	case TypeSQS:
		if cfg.SQS == nil || cfg.SQS.QueueURL == "" || cfg.SQS.Region == "" {
			missing = "sqs.uri and sqs.region"
		}
	case TypeSNS:
		if cfg.SNS == nil || cfg.SNS.TopicARN == "" || cfg.SNS.Region == "" {
			missing = "sns.topic_arn and sns.region"
		}
	case TypePubSub:
		if cfg.PubSub == nil || cfg.PubSub.ProjectID == "" || cfg.PubSub.Topic == "" {
			missing = "gcp_pubsub.project_id and gcp_pubsub.topic"
		}
	}
	if missing != "" {
		return fmt.Errorf("%s required for notifier %q", missing, cfg.ID)
	}
	return nil
}

func expandTrim(v string) string { return strings.TrimSpace(os.ExpandEnv(v)) }

// ByID returns the notifier config by id.
func (r *ConfigRegistry) ByID(id string) (NotifierConfig, bool) {
	if r == nil {
		return NotifierConfig{}, false
	}
	i, ok := r.byID[strings.TrimSpace(id)]
	if !ok {
		return NotifierConfig{}, false
	}
	return r.list[i], true
}

// All returns a copy of every declared notifier.
func (r *ConfigRegistry) All() []NotifierConfig {
	if r == nil {
		return nil
	}
	return append([]NotifierConfig(nil), r.list...)
}

// Enabled returns notifiers that are switched on.
func (r *ConfigRegistry) Enabled() []NotifierConfig {
	var out []NotifierConfig
	for _, cfg := range r.All() {
		if cfg.EnabledValue() {
			out = append(out, cfg)
		}
	}
	return out
}

// EnabledValue returns enabled flag defaulting to true.
func (cfg NotifierConfig) EnabledValue() bool {
	return cfg.Enabled == nil || *cfg.Enabled
}
