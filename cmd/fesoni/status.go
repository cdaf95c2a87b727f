package main

import (
	"context"
	"errors"
	"io"

	"github.com/spf13/cobra"
)

var errDegraded = errors.New("system is degraded")

func newStatusCmd(root *rootOptions) *cobra.Command {
	var failDegraded bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Probe the gateway, bus and model service and print their health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), root.configPath, failDegraded, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().BoolVar(&failDegraded, "fail-degraded", false, "exit non-zero when the gateway or bus is down")
	return cmd
}

func runStatus(ctx context.Context, configPath string, failDegraded bool, out, logOut io.Writer) error {
	app, err := setupOneShot(ctx, configPath, logOut)
	if err != nil {
		return err
	}
	defer app.cleanup()

	status := app.orchestrator.GetSystemStatus(ctx)
	if err := writeJSON(out, status); err != nil {
		return err
	}
	if failDegraded && status.Degraded() {
		return errDegraded
	}
	return nil
}
