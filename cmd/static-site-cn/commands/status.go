package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/rs/zerolog"
	"github.com/savaki/static-site-cn/internal/errors"
	"github.com/savaki/static-site-cn/internal/stack"
	"github.com/urfave/cli/v2"
)

const formatText = "text"

// StatusCommand returns the status command, which prints the stack status and
// outputs.
func StatusCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the site stack status and outputs",
		Flags: append(siteFlags(),
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

			status, err := h.newDeployer(stack.DefaultMaxWait).Status(ctx, s.Config.StackName)
			if err != nil {
				return err
			}

			if err := printOutputs(c.App.Writer, c.String("format"), status); err != nil {
				return err
			}
			return checkStatus(status)
		},
	}
}

// checkStatus fails for stacks left in a failed or rolled back state so the
// status command exits non-zero.
func checkStatus(status *stack.Status) error {
	if !stack.IsFailedStatus(types.StackStatus(status.Status)) {
		return nil
	}
	return fmt.Errorf("%w: %s is %s", errors.ErrStackFailed, status.StackName, status.Status)
}

func printOutputs(w io.Writer, format string, status *stack.Status) error {
	if w == nil {
		w = os.Stdout
	}

	switch format {
	case formatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(status)

	case formatText, "":
		fmt.Fprintf(w, "Stack:  %s\n", status.StackName)
		fmt.Fprintf(w, "Status: %s\n", status.Status)
		if reason := aws.ToString(status.StatusReason); reason != "" {
			fmt.Fprintf(w, "Reason: %s\n", reason)
		}
		if len(status.Outputs) > 0 {
			fmt.Fprintln(w, "Outputs:")
			for _, key := range slices.Sorted(maps.Keys(status.Outputs)) {
				fmt.Fprintf(w, "  %-24s %s\n", key, status.Outputs[key])
			}
		}
		return nil

	default:
		return fmt.Errorf("unsupported format %q, want text or json", format)
	}
}
