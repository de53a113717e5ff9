// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/xkilldash9x/vision-assistant/internal/emr"
	"github.com/xkilldash9x/vision-assistant/internal/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// errTaskFailed marks a run that ended with a failed event. The details were
// already printed.
var errTaskFailed = errors.New("task failed")

func newRunCmd(opts *options) *cobra.Command {
	var dataFile, emrSystem string

	cmd := &cobra.Command{
		Use:   "run <task>",
		Short: "Run one task against the EMR window on screen",
		Long: `Run loads the EMR template tree, takes patient data from a JSON file and
executes the named task. Press Esc+Ctrl+Shift to abort.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()

			values, err := readData(dataFile)
			if err != nil {
				return err
			}

			a, err := newApp(opts.cfg, emrSystem, logger)
			if err != nil {
				return err
			}
			data := a.assistant.Data()
			data.Update(values)
			data.Display(logger)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			armAbort(ctx, func() {
				logger.Warn("Abort hotkey pressed, stopping task")
				cancel()
			}, logger)

			err = printEvents(cmd.OutOrStdout(), a.assistant.Run(ctx, args[0]))
			if ctx.Err() != nil {
				// An aborted task stops quietly.
				fmt.Fprintln(cmd.OutOrStdout(), "Task aborted.")
				return cmd.Context().Err()
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&dataFile, "data", "d", "", "JSON file with the patient record")
	cmd.Flags().StringVar(&emrSystem, "emr", "", "EMR system to drive (default from templates.default_emr)")
	return cmd
}

// readData decodes a patient record. An empty path yields an empty record.
func readData(path string) (map[string]any, error) {
	values := make(map[string]any)
	if path == "" {
		return values, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read data file: %w", err)
	}
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("data file %s must hold a JSON object: %w", path, err)
	}
	return values, nil
}

// printEvents writes every event to w until the stream closes. A failed
// event turns into errTaskFailed.
func printEvents(w io.Writer, events <-chan emr.Event) error {
	var failed bool
	for ev := range events {
		switch ev.Status {
		case emr.StatusFailed:
			failed = true
			color.New(color.FgRed, color.Bold).Fprintf(w, "[%s] %s: %s\n", ev.Status, ev.Message, ev.Error)
		case emr.StatusCritical:
			color.New(color.FgYellow).Fprintf(w, "[%s] %s\n", ev.Status, ev.Message)
		case emr.StatusComplete, emr.StatusAllDone:
			color.New(color.FgGreen).Fprintf(w, "[%s] %s\n", ev.Status, ev.Message)
		default:
			fmt.Fprintf(w, "[%s] %s\n", ev.Status, ev.Message)
		}
	}
	if failed {
		return errTaskFailed
	}
	return nil
}
