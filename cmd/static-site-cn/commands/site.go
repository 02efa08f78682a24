package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/rs/zerolog"
	"github.com/savaki/static-site-cn/internal/assets"
	"github.com/savaki/static-site-cn/internal/build"
	"github.com/savaki/static-site-cn/internal/di"
	"github.com/savaki/static-site-cn/internal/dns"
	"github.com/savaki/static-site-cn/internal/errors"
	"github.com/savaki/static-site-cn/internal/policy"
	"github.com/savaki/static-site-cn/internal/services"
	"github.com/savaki/static-site-cn/internal/stack"
	"github.com/savaki/static-site-cn/internal/staticsite"
	"github.com/savaki/static-site-cn/internal/utils"
	"github.com/urfave/cli/v2"
)

const defaultConfigFile = "static-site.yaml"

func siteFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to the site config file",
			Value:   defaultConfigFile,
			EnvVars: []string{"STATIC_SITE_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "stack",
			Aliases: []string{"s"},
			Usage:   "CloudFormation stack name (overrides stackName in the config)",
			EnvVars: []string{"STATIC_SITE_STACK"},
		},
		&cli.StringFlag{
			Name:    "region",
			Aliases: []string{"r"},
			Usage:   "AWS region (overrides region in the config, then the AWS profile)",
			EnvVars: []string{"STATIC_SITE_REGION"},
		},
		&cli.StringSliceFlag{
			Name:    "parameter",
			Aliases: []string{"p"},
			Usage:   "Template parameter as KEY=VALUE (can be specified multiple times); VALUE may be an ssm: reference",
		},
	}
}

// settings are the site config with command line overrides applied.
type settings struct {
	Config     *staticsite.Config
	Parameters map[string]string
}

func loadSettings(c *cli.Context) (*settings, error) {
	cfg, err := staticsite.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}

	if v := c.String("stack"); v != "" {
		cfg.StackName = v
	}
	if v := c.String("region"); v != "" {
		cfg.Region = v
	}

	parameters, err := utils.ParseParameters(c.StringSlice("parameter"))
	if err != nil {
		return nil, err
	}

	return &settings{
		Config:     cfg,
		Parameters: parameters,
	}, nil
}

type certificateResolver interface {
	ResolveCertificate(ctx context.Context, domain *staticsite.DomainProps) error
}

type zoneResolver interface {
	HostedZoneID(ctx context.Context, zoneName string) (string, error)
}

type builder interface {
	Run(ctx context.Context, spec build.Spec) error
}

type templateValidator interface {
	ValidateTemplate(ctx context.Context, template map[string]any, region string) (*policy.ValidationResult, error)
}

type accountResolver interface {
	GetAWSAccountID(ctx context.Context) (string, error)
}

type stackDeployer interface {
	Deploy(ctx context.Context, input stack.Input) (*stack.Result, error)
	Status(ctx context.Context, stackName string) (*stack.Status, error)
	Outputs(ctx context.Context, stackName string) (map[string]string, error)
	Delete(ctx context.Context, stackName string) error
}

type assetUploader interface {
	Sync(ctx context.Context, bucket, dir string) (*assets.SyncResult, error)
	Empty(ctx context.Context, bucket string) (int, error)
}

// siteHandler carries the collaborators shared by the site commands.
type siteHandler struct {
	region       string
	parameters   services.ParameterStore
	certificates certificateResolver
	zones        zoneResolver
	builder      builder
	validator    templateValidator
	accounts     accountResolver

	// newDeployer and newUploader return clients tuned for a single command.
	newDeployer func(maxWait time.Duration) stackDeployer
	newUploader func(concurrency int, prune bool) assetUploader
}

func newSiteHandler(ctx context.Context, region string) (*siteHandler, error) {
	container, err := di.New(
		di.WithContext(ctx),
		di.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	awsConfig, err := di.Get[aws.Config](container)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	if awsConfig.Region == "" {
		return nil, errors.ErrRegionRequired
	}

	validator, err := di.Get[*policy.Validator](container)
	if err != nil {
		return nil, fmt.Errorf("failed to load site policy: %w", err)
	}

	iamService := di.MustGet[*services.IAMService](container)
	deployer := di.MustGet[*stack.Deployer](container)
	uploader := di.MustGet[*assets.Uploader](container)

	return &siteHandler{
		region:       awsConfig.Region,
		parameters:   di.MustGet[services.ParameterStore](container),
		certificates: iamService,
		zones:        di.MustGet[*dns.Resolver](container),
		builder:      di.MustGet[*build.Runner](container),
		validator:    validator,
		accounts:     iamService,
		newDeployer: func(maxWait time.Duration) stackDeployer {
			return deployer.WithMaxWait(maxWait)
		},
		newUploader: func(concurrency int, prune bool) assetUploader {
			return uploader.WithConcurrency(concurrency).WithPrune(prune)
		},
	}, nil
}

// synthesize resolves references, runs the build and renders the site, then
// checks the rendered template against the site policy.
func (h *siteHandler) synthesize(ctx context.Context, s *settings, env staticsite.Env, skipBuild bool) (*staticsite.Site, error) {
	logger := zerolog.Ctx(ctx)
	props := s.Config.Props

	if err := services.ResolveProps(ctx, h.parameters, &props); err != nil {
		return nil, fmt.Errorf("failed to resolve parameters: %w", err)
	}
	for key, value := range s.Parameters {
		resolved, err := services.Resolve(ctx, h.parameters, value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		s.Parameters[key] = resolved
	}

	// Fail before building anything when the config is incomplete.
	if err := props.Validate(); err != nil {
		return nil, err
	}

	if err := h.certificates.ResolveCertificate(ctx, &props.CustomDomain); err != nil {
		return nil, err
	}

	if props.CustomDomain.ManagesDNS() && props.CustomDomain.HostedZoneID == "" {
		id, err := h.zones.HostedZoneID(ctx, props.CustomDomain.HostedZone)
		if err != nil {
			return nil, err
		}
		props.CustomDomain.HostedZoneID = id
	}

	if props.BuildCommand != "" {
		if skipBuild {
			logger.Info().Msg("Skipping build")
		} else {
			err := h.builder.Run(ctx, build.Spec{
				Command:     props.BuildCommand,
				Dir:         props.Path,
				OutputDir:   props.SourceDir(),
				Purge:       props.PurgeFiles,
				Environment: props.Environment,
			})
			if err != nil {
				return nil, err
			}
		}
	}

	site, err := staticsite.New(env, props)
	if err != nil {
		return nil, err
	}

	doc, err := staticsite.Document(site.Template)
	if err != nil {
		return nil, err
	}
	result, err := h.validator.ValidateTemplate(ctx, doc, env.Region)
	if err != nil {
		return nil, fmt.Errorf("failed to validate template: %w", err)
	}
	if !result.Allowed {
		for _, violation := range result.Violations {
			logger.Error().Str("violation", violation).Msg("Policy violation")
		}
		return nil, fmt.Errorf("%w: %s", errors.ErrPolicyViolation, strings.Join(result.Violations, "; "))
	}

	logger.Info().
		Str("domain", site.DomainName).
		Str("region", env.Region).
		Int("resources", len(site.Template.Resources)).
		Msg("Synthesized site")

	return site, nil
}

func (h *siteHandler) env() staticsite.Env {
	return staticsite.Env{Region: h.region}
}
