package main

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/nao1215/icapscan/internal/icap"
	"github.com/spf13/cobra"
)

// NewOptionsCmd creates the options command.
func NewOptionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "options",
		Short: "Query the capabilities of the ICAP service",
		Long: `Options sends a single OPTIONS request to the ICAP service and prints the
status code and response headers, such as Methods, Preview, ISTag and
Transfer-Preview.

Use it to check that the server is reachable and that the endpoint exists
before scanning.

Examples:
  # Probe the default server
  icapscan options

  # Probe a c-icap ClamAV service
  icapscan options --host av.example.com -e srv_clamav`,
		Args: cobra.NoArgs,
		RunE: runOptionsCmd,
	}
}

// runOptionsCmd executes the options command.
func runOptionsCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd, lookupEnv)
	if err != nil {
		return err
	}
	if err := cfg.ValidateServer(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd.ErrOrStderr(), cfg.Verbose)

	ctx, cancel := signalContext(cmd.Context(), logger)
	defer cancel()

	client, err := newICAPClient(cfg, logger)
	if err != nil {
		return err
	}

	resp, err := client.Options(ctx)
	if resp != nil {
		printOptions(cmd.OutOrStdout(), client.Server(), resp)
	}
	return err
}

// printOptions writes the status and headers of an OPTIONS response,
// headers sorted by name.
func printOptions(w io.Writer, server icap.Server, resp *icap.Response) {
	fmt.Fprintf(w, "Service: %s\n", server.ServiceURI())
	fmt.Fprintf(w, "Status:  %d\n", resp.StatusCode)
	if len(resp.Headers) == 0 {
		return
	}
	fmt.Fprintln(w)
	for _, name := range slices.Sorted(maps.Keys(resp.Headers)) {
		fmt.Fprintf(w, "%s: %s\n", name, resp.Headers[name])
	}
}
