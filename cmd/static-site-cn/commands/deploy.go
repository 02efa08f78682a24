package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/savaki/static-site-cn/internal/assets"
	"github.com/savaki/static-site-cn/internal/stack"
	"github.com/savaki/static-site-cn/internal/staticsite"
	"github.com/savaki/static-site-cn/internal/utils"
	"github.com/urfave/cli/v2"
)

// DeployCommand returns the deploy command, which provisions the site stack
// and uploads the site assets to its bucket.
func DeployCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "deploy",
		Usage: "Build the site, deploy its stack and upload its assets",
		Description: `Synthesizes the site template, creates or updates the CloudFormation stack,
then syncs the built site to the stack's bucket. Objects in the bucket with no
matching local file are removed.

Examples:
  static-site-cn deploy --config static-site.yaml

  # Rotate the IAM server certificate
  static-site-cn deploy --parameter IamCertificateId=ASCANEWCERT`,
		Flags: append(siteFlags(),
			&cli.BoolFlag{
				Name:  "skip-build",
				Usage: "Do not run the build command",
			},
			&cli.BoolFlag{
				Name:  "no-prune",
				Usage: "Keep objects in the bucket that have no matching local file",
			},
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "Number of parallel uploads",
				Value: assets.DefaultConcurrency,
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Maximum time to wait for the stack operation",
				Value: stack.DefaultMaxWait,
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "Output format (text or json)",
				Value: formatText,
			},
		),
		Action: func(c *cli.Context) error {
			ctx := logger.WithContext(c.Context)

			s, err := loadSettings(c)
			if err != nil {
				return err
			}

			h, err := newSiteHandler(ctx, s.Config.Region)
			if err != nil {
				return err
			}

			status, err := h.deploy(ctx, s, deployOptions{
				SkipBuild:   c.Bool("skip-build"),
				Timeout:     c.Duration("timeout"),
				Concurrency: c.Int("concurrency"),
				Prune:       !c.Bool("no-prune"),
			})
			if err != nil {
				return err
			}

			return printOutputs(c.App.Writer, c.String("format"), status)
		},
	}
}

type deployOptions struct {
	SkipBuild   bool
	Timeout     time.Duration
	Concurrency int
	Prune       bool
}

// deploy synthesizes the site, deploys its stack, then syncs the built site
// to the bucket the stack reports.
func (h *siteHandler) deploy(ctx context.Context, s *settings, opts deployOptions) (*stack.Status, error) {
	logger := zerolog.Ctx(ctx)

	env := h.env()
	account, err := h.accounts.GetAWSAccountID(ctx)
	if err != nil {
		return nil, err
	}
	env.Account = account

	logger.Info().
		Str("account", account).
		Str("region", env.Region).
		Str("stack", s.Config.StackName).
		Msg("Deploying site")

	site, err := h.synthesize(ctx, s, env, opts.SkipBuild)
	if err != nil {
		return nil, err
	}

	body, err := site.Template.JSON()
	if err != nil {
		return nil, fmt.Errorf("failed to render template: %w", err)
	}

	begin := time.Now()
	deployer := h.newDeployer(opts.Timeout)
	result, err := deployer.Deploy(ctx, stack.Input{
		StackName:    s.Config.StackName,
		TemplateBody: string(body),
		Parameters:   utils.MergeParameters(site.Parameters, s.Parameters),
		Tags:         s.Config.Tags,
	})
	if err != nil {
		return nil, err
	}

	status, err := deployer.Status(ctx, result.StackName)
	if err != nil {
		return nil, err
	}

	bucket := status.Outputs[staticsite.OutputBucketName]
	if bucket == "" {
		return nil, fmt.Errorf("stack %s has no %s output", result.StackName, staticsite.OutputBucketName)
	}

	synced, err := h.newUploader(opts.Concurrency, opts.Prune).Sync(ctx, bucket, site.SourceDir)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("stack", result.StackName).
		Str("operation", result.Operation).
		Int("uploaded", synced.Uploaded).
		Int("deleted", synced.Deleted).
		Dur("duration", time.Since(begin)).
		Msg("Site deployed")

	return status, nil
}
