// File: cmd/connect.go
package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"github.com/xkilldash9x/vision-assistant/internal/observability"
	"github.com/xkilldash9x/vision-assistant/internal/taskqueue"
	"github.com/xkilldash9x/vision-assistant/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newConnectCmd(opts *options) *cobra.Command {
	var emrSystem string

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect to the relay server and execute the tasks it sends",
		Long: `Connect keeps a websocket session to the relay server open, queues each
incoming patient message and runs the configured tasks for it. Progress is
reported back on the same connection. A "kill" message or the
Esc+Ctrl+Shift hotkey cancels the running message.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()
			a, err := newApp(opts.cfg, emrSystem, logger)
			if err != nil {
				return err
			}

			client := transport.NewClient(opts.cfg.Transport, logger)
			manager, err := taskqueue.New(a.assistant, a.finder, client, opts.cfg.Queue, a.emrSystem, opts.cfg.Templates.Tasks, logger)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			armAbort(ctx, func() {
				if manager.Kill() {
					logger.Warn("Abort hotkey pressed, running message cancelled")
				}
			}, logger)

			logger.Info("Connecting to relay server",
				zap.String("server", opts.cfg.Transport.ServerURL),
				zap.Strings("tasks", opts.cfg.Templates.Tasks))

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return manager.Run(gctx) })
			g.Go(func() error { return client.Run(gctx, manager) })
			if err := g.Wait(); err != nil && !isCancellation(err) {
				return err
			}
			return ctx.Err()
		},
	}

	cmd.Flags().StringVar(&emrSystem, "emr", "", "EMR system selected at startup (default from templates.default_emr)")
	return cmd
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
