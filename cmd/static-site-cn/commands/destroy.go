package commands

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/savaki/static-site-cn/internal/assets"
	siteerrors "github.com/savaki/static-site-cn/internal/errors"
	"github.com/savaki/static-site-cn/internal/stack"
	"github.com/savaki/static-site-cn/internal/staticsite"
	"github.com/urfave/cli/v2"
)

// DestroyCommand returns the destroy command, which empties the site bucket and
// deletes the stack.
func DestroyCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "destroy",
		Usage: "Empty the site bucket and delete the stack",
		Description: `The bucket is emptied first since CloudFormation cannot delete a bucket
that still holds objects. Without --force the stack is only looked up and the
bucket that would be emptied is reported.

Examples:
  static-site-cn destroy --config static-site.yaml --force`,
		Flags: append(siteFlags(),
			&cli.BoolFlag{
				Name:    "force",
				Aliases: []string{"f"},
				Usage:   "Required to actually delete the stack",
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

			return h.destroy(ctx, s.Config.StackName, c.Bool("force"))
		},
	}
}

// destroy empties the site bucket, then deletes the stack. Unless force is
// set it only reports what would be removed.
func (h *siteHandler) destroy(ctx context.Context, stackName string, force bool) error {
	logger := zerolog.Ctx(ctx)
	deployer := h.newDeployer(stack.DefaultMaxWait)

	outputs, err := deployer.Outputs(ctx, stackName)
	if errors.Is(err, siteerrors.ErrStackNotFound) {
		logger.Info().Str("stack", stackName).Msg("Stack does not exist, nothing to destroy")
		return nil
	}
	if err != nil {
		return err
	}

	bucket := outputs[staticsite.OutputBucketName]
	if !force {
		logger.Warn().
			Str("stack", stackName).
			Str("bucket", bucket).
			Msg("Dry run: pass --force to empty the bucket and delete the stack")
		return nil
	}

	if bucket != "" {
		if _, err := h.newUploader(assets.DefaultConcurrency, true).Empty(ctx, bucket); err != nil {
			return err
		}
	}

	if err := deployer.Delete(ctx, stackName); err != nil {
		return err
	}

	logger.Info().Str("stack", stackName).Msg("Site destroyed")
	return nil
}
