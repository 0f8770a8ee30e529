package llm

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

const defaultRegion = "us-east-1"

// Runtime is the slice of the Bedrock runtime API the invoker needs.
// *bedrockruntime.Client satisfies it.
type Runtime interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// ClientFactory builds a runtime client. It is called once per invocation and
// again before every retry, so it must be cheap and free of network I/O.
type ClientFactory func() Runtime

// AWSConfig holds the provider settings read from the environment.
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// HasStaticCredentials reports whether both key parts were supplied.
func (c AWSConfig) HasStaticCredentials() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// LoadAWSConfig resolves the shared AWS configuration. Without static keys the
// SDK default chain applies (env, shared files, instance role).
func LoadAWSConfig(ctx context.Context, c AWSConfig) (aws.Config, error) {
	region := c.Region
	if region == "" {
		region = defaultRegion
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if c.HasStaticCredentials() {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("llm: load aws config: %w", err)
	}
	return awsCfg, nil
}

// NewBedrockFactory returns a ClientFactory that builds a Bedrock runtime
// client with its own HTTP transport, so a retried call never reuses a
// connection from the previous client. SDK-level retries are disabled; the
// invoker owns the retry policy.
func NewBedrockFactory(awsCfg aws.Config) ClientFactory {
	return func() Runtime {
		return bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) {
			o.HTTPClient = awshttp.NewBuildableClient()
			o.Retryer = aws.NopRetryer{}
		})
	}
}
