package mainconfig

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/frontdesk-dispatch/internal/config"
)

func TestLoadAWSConfigStaticCredentials(t *testing.T) {
	cfg := &appconfig.Config{
		AWSRegion:          "us-west-2",
		AWSAccessKeyID:     "test",
		AWSSecretAccessKey: "secret",
	}
	awsCfg, err := LoadAWSConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("LoadAWSConfig: %v", err)
	}
	if awsCfg.Region != "us-west-2" {
		t.Fatalf("expected region us-west-2, got %s", awsCfg.Region)
	}
	creds, err := awsCfg.Credentials.Retrieve(context.Background())
	if err != nil {
		t.Fatalf("retrieve credentials: %v", err)
	}
	if creds.AccessKeyID != "test" {
		t.Fatalf("expected static access key, got %s", creds.AccessKeyID)
	}
}

func TestEndpointOverride(t *testing.T) {
	cfg := &appconfig.Config{AWSEndpointOverride: "http://localhost:4566"}

	var s3Opts s3.Options
	S3Options(cfg)(&s3Opts)
	if s3Opts.BaseEndpoint == nil || *s3Opts.BaseEndpoint != "http://localhost:4566" || !s3Opts.UsePathStyle {
		t.Fatalf("expected s3 override with path style, got %+v", s3Opts)
	}

	var sesOpts sesv2.Options
	SESOptions(cfg)(&sesOpts)
	if sesOpts.BaseEndpoint == nil || *sesOpts.BaseEndpoint != "http://localhost:4566" {
		t.Fatalf("expected ses override, got %v", sesOpts.BaseEndpoint)
	}

	var plain s3.Options
	S3Options(&appconfig.Config{})(&plain)
	if plain.BaseEndpoint != nil || plain.UsePathStyle {
		t.Fatalf("no override expected, got %+v", plain)
	}
}
