package main

import (
	"context"
	"os"

	"github.com/savaki/static-site-cn/cmd/static-site-cn/commands"
	"github.com/savaki/static-site-cn/internal/di"
	"github.com/urfave/cli/v2"
)

func main() {
	logger := di.ProvideLogger()
	ctx := logger.WithContext(context.Background())

	app := &cli.App{
		Name:  "static-site-cn",
		Usage: "Deploy static sites to S3 and CloudFront in AWS China regions",
		Description: `Provisions a private S3 bucket, an origin access identity, a CloudFront
distribution using an IAM server certificate and, optionally, a Route 53 CNAME
record, then uploads the built site to the bucket.

The site is described by a YAML config file (static-site.yaml by default).
Values of the form ssm:/path are read from SSM Parameter Store.`,
		Commands: []*cli.Command{
			commands.SynthCommand(&logger),
			commands.DeployCommand(&logger),
			commands.DestroyCommand(&logger),
			commands.StatusCommand(&logger),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}
