package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/nao1215/icapscan/internal/config"
	"github.com/nao1215/icapscan/internal/log"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for icapscan.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "icapscan",
		Short: "Scan files for malware through an ICAP server",
		Long: `icapscan submits files to an ICAP antivirus service and reports whether
each one is clean or infected.

Every scan negotiates with OPTIONS and then submits the file with RESPMOD
over a single TCP connection. The server is taken, in increasing priority,
from the built-in defaults, the config file (.icapscan), the ICAP_SERVER_HOST,
ICAP_SERVER_PORT, ICAP_ENDPOINT and ICAP_SERVER_TIMEOUT (milliseconds)
environment variables, and the command line flags.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.BoolP("verbose", "v", false, "Enable verbose logging, including raw ICAP headers")
	flags.StringP("config", "c", "",
		"Configuration file path (default: .icapscan in current directory, XDG config directory or home directory)")
	flags.StringP("server", "s", "", "Named server profile from the configuration file")
	flags.String("host", config.DefaultHost, "ICAP server host")
	flags.IntP("port", "p", config.DefaultPort, "ICAP server port")
	flags.StringP("endpoint", "e", config.DefaultEndpoint, "ICAP service name (e.g. avscan, srv_clamav)")
	flags.DurationP("timeout", "t", config.DefaultTimeout, "Deadline for each ICAP exchange")
	flags.String("proxy", "", "Proxy URL used to reach the ICAP server (e.g. socks5://127.0.0.1:1080)")
	flags.String("user-agent", "", "User-Agent sent with every ICAP request")
	flags.String("db-dir", "", "Directory of the scan history database (default: XDG data directory)")

	cmd.AddCommand(NewScanCmd())
	cmd.AddCommand(NewOptionsCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps a command error to the process exit status: 1 when files
// were infected or could not be scanned, 2 for any other failure.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errFindings):
		return 1
	default:
		return 2
	}
}

// loadConfig builds the configuration shared by all commands from the
// defaults, the config file, the environment and the persistent flags.
func loadConfig(cmd *cobra.Command, lookupEnv func(string) (string, bool)) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	if cfg.Verbose, err = flags.GetBool("verbose"); err != nil {
		return nil, err
	}
	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	if cfg.ServerName, err = flags.GetString("server"); err != nil {
		return nil, err
	}
	dbDir, err := flags.GetString("db-dir")
	if err != nil {
		return nil, err
	}
	if dbDir != "" {
		cfg.DBDir = dbDir
	}

	// An explicit config path must exist; the default search may find nothing.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		cfg.Servers, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	case explicitConfigPath:
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	default:
		cfg.Servers = &config.File{Servers: make(map[string]config.ServerConfig)}
	}

	sc, err := cfg.Servers.GetServerConfig(cfg.ServerName)
	if err != nil {
		return nil, err
	}
	cfg.ApplyServerConfig(sc)

	if err := cfg.ApplyEnv(lookupEnv); err != nil {
		return nil, err
	}

	if err := applyServerFlags(cmd, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyServerFlags overrides server settings with flags given explicitly.
func applyServerFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	var err error
	if flags.Changed("host") {
		if cfg.Host, err = flags.GetString("host"); err != nil {
			return err
		}
	}
	if flags.Changed("port") {
		if cfg.Port, err = flags.GetInt("port"); err != nil {
			return err
		}
	}
	if flags.Changed("endpoint") {
		if cfg.Endpoint, err = flags.GetString("endpoint"); err != nil {
			return err
		}
	}
	if flags.Changed("timeout") {
		if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
			return err
		}
	}
	if flags.Changed("proxy") {
		if cfg.Proxy, err = flags.GetString("proxy"); err != nil {
			return err
		}
	}
	if flags.Changed("user-agent") {
		if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
			return err
		}
	}
	return nil
}

// setupLogger creates the secure logger. It is passed explicitly to every
// component instead of replacing slog's default logger.
func setupLogger(w io.Writer, verbose bool) *slog.Logger {
	return log.NewSecureLogger(w, verbose)
}

// lockedWriter serializes writes from concurrent scans to one stream.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}

// lookupEnv reads the ICAP_* environment variables.
var lookupEnv = os.LookupEnv

// errFindings is returned when a scan found infected files or failed files,
// so that the process exits non-zero.
var errFindings = errors.New("scan finished with findings")
