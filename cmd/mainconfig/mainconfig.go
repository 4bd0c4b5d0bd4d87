// Package mainconfig builds the AWS configuration shared by the binaries.
package mainconfig

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/frontdesk-dispatch/internal/config"
)

// LoadAWSConfig resolves region and credentials. Static keys win over the
// default chain when both halves are set.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}
	return config.LoadDefaultConfig(ctx, loaders...)
}

// S3Options points the voicemail archive client at AWS_ENDPOINT_OVERRIDE
// (LocalStack, MinIO) with path-style addressing.
func S3Options(cfg *appconfig.Config) func(*s3.Options) {
	endpoint := strings.TrimSpace(cfg.AWSEndpointOverride)
	return func(o *s3.Options) {
		if endpoint == "" {
			return
		}
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	}
}

// SESOptions points the operator e-mail client at AWS_ENDPOINT_OVERRIDE.
// Bedrock never follows the override; local stacks do not emulate it.
func SESOptions(cfg *appconfig.Config) func(*sesv2.Options) {
	endpoint := strings.TrimSpace(cfg.AWSEndpointOverride)
	return func(o *sesv2.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}
}
