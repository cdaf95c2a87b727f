package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/phrazzld/fesoni/internal/orchestrator"
	"github.com/phrazzld/fesoni/internal/platform/logger"
	"github.com/spf13/cobra"
)

type askOptions struct {
	simple bool
	userID string
}

func newAskCmd(root *rootOptions) *cobra.Command {
	opts := &askOptions{}

	cmd := &cobra.Command{
		Use:   "ask <description>",
		Short: "Run one shopping request and print the result as JSON",
		Example: `  fesoni ask "cozy cottagecore reading nook"
  fesoni ask --simple "minimalist black workwear"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := strings.TrimSpace(strings.Join(args, " "))
			if input == "" {
				return fmt.Errorf("description cannot be empty")
			}
			return runAsk(cmd.Context(), root.configPath, input, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().BoolVar(&opts.simple, "simple", false, "use the simplified pipeline")
	cmd.Flags().StringVar(&opts.userID, "user", "", "user id attached to generated documents")
	return cmd
}

func runAsk(ctx context.Context, configPath, input string, opts *askOptions, out, logOut io.Writer) error {
	app, err := setupOneShot(ctx, configPath, logOut)
	if err != nil {
		return err
	}
	defer app.cleanup()

	var res *orchestrator.Result
	if opts.simple {
		res, err = app.orchestrator.ProcessShoppingRequest(ctx, input, opts.userID)
	} else {
		res, err = app.orchestrator.ProcessEnhancedShoppingRequest(ctx, input, opts.userID)
	}
	if err != nil {
		return err
	}
	return writeJSON(out, res)
}

// setupOneShot builds the application for a single command run. Logs go to
// logOut so that stdout carries only the command's JSON output.
func setupOneShot(ctx context.Context, configPath string, logOut io.Writer) (*application, error) {
	cfg, err := loadConfig(configPath, false)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	log, err := logger.SetupWithWriter(cfg.Server, logOut)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}
	return newApplication(ctx, cfg, log, nil, nil)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
