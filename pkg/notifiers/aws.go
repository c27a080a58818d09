package notifiers

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// AWSKeys optionally pins a sink to static credentials instead of the default chain.
type AWSKeys struct {
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
}

func (k AWSKeys) expanded() AWSKeys {
	return AWSKeys{AccessKeyID: expandTrim(k.AccessKeyID), SecretAccessKey: expandTrim(k.SecretAccessKey)}
}

// loadAWSConfig resolves the SDK config for region. Static keys are used only when both are set.
func loadAWSConfig(ctx context.Context, region string, keys AWSKeys) (aws.Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	opts := []func(*awscfg.LoadOptions) error{awscfg.WithRegion(region)}
	if keys.AccessKeyID != "" && keys.SecretAccessKey != "" {
		opts = append(opts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(keys.AccessKeyID, keys.SecretAccessKey, ""),
		))
	}
	return awscfg.LoadDefaultConfig(ctx, opts...)
}
