package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/awslabs/goformation/v7/cloudformation"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

const (
	formatYAML = "yaml"
	formatJSON = "json"
)

// SynthCommand returns the synth command, which renders the site template
// without deploying it.
func SynthCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "synth",
		Usage: "Build the site and print its CloudFormation template",
		Description: `Loads the site config, runs the build command, renders the CloudFormation
template and checks it against the site policy.

Examples:
  # Print the template as YAML
  static-site-cn synth --config static-site.yaml

  # Write JSON to a file without rebuilding
  static-site-cn synth --skip-build --format json --out template.json`,
		Flags: append(siteFlags(),
			&cli.BoolFlag{
				Name:  "skip-build",
				Usage: "Do not run the build command",
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "Template format (yaml or json)",
				Value: formatYAML,
			},
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "Write the template to this file instead of stdout",
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

			site, err := h.synthesize(ctx, s, h.env(), c.Bool("skip-build"))
			if err != nil {
				return err
			}

			text, err := renderTemplate(site.Template, c.String("format"))
			if err != nil {
				return err
			}

			if out := c.String("out"); out != "" {
				if err := os.WriteFile(out, []byte(text), 0o644); err != nil {
					return fmt.Errorf("failed to write template: %w", err)
				}
				logger.Info().Str("file", out).Msg("Wrote template")
				return nil
			}

			return writeString(c.App.Writer, text)
		},
	}
}

func renderTemplate(template *cloudformation.Template, format string) (string, error) {
	var (
		data []byte
		err  error
	)
	switch format {
	case formatYAML, "":
		data, err = template.YAML()
	case formatJSON:
		data, err = template.JSON()
	default:
		return "", fmt.Errorf("unsupported format %q, want yaml or json", format)
	}
	if err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return string(data), nil
}

func writeString(w io.Writer, s string) error {
	if w == nil {
		w = os.Stdout
	}
	_, err := io.WriteString(w, s)
	return err
}
