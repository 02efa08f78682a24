package di

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/savaki/static-site-cn/internal/assets"
	"github.com/savaki/static-site-cn/internal/dns"
	"github.com/savaki/static-site-cn/internal/services"
	"github.com/savaki/static-site-cn/internal/stack"
)

func ProvideAWSConfig(ctx context.Context, region Region) (aws.Config, error) {
	var optFns []func(*config.LoadOptions) error
	if region != "" {
		optFns = append(optFns, config.WithRegion(string(region)))
	}

	cfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

func ProvideCloudFormationClient(config aws.Config) *cloudformation.Client {
	return cloudformation.NewFromConfig(config)
}

func ProvideS3Client(config aws.Config) *s3.Client {
	return s3.NewFromConfig(config)
}

// ProvideRoute53Client provides a Route 53 client. Route 53 is a global
// service, the resolver maps either China region to the aws-cn endpoint.
func ProvideRoute53Client(config aws.Config) *route53.Client {
	return route53.NewFromConfig(config)
}

func ProvideIAMClient(config aws.Config) *iam.Client {
	return iam.NewFromConfig(config)
}

func ProvideSTSClient(config aws.Config) *sts.Client {
	return sts.NewFromConfig(config)
}

func ProvideDeployer(client *cloudformation.Client) *stack.Deployer {
	return stack.New(client)
}

func ProvideUploader(client *s3.Client) *assets.Uploader {
	return assets.New(client)
}

func ProvideResolver(client *route53.Client) *dns.Resolver {
	return dns.NewResolver(client)
}

func ProvideIAMService(client *iam.Client, stsClient *sts.Client) *services.IAMService {
	return services.NewIAMService(client, stsClient)
}
