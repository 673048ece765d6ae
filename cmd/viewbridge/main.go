package main

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/vango-dev/viewbridge/internal/config"
	"github.com/vango-dev/viewbridge/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// globalFlags are shared by every command.
type globalFlags struct {
	configPath string
	socket     string
	logLevel   string
	debug      bool
}

func main() {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "viewbridge",
		Short: "Render pages and stream patches across a Unix socket",
		Long: `viewbridge splits a web request between a controller and a render
service that owns the view layer. The two talk over a Unix socket.

  • serve   runs the render service
  • page    renders a page through the service
  • stream  renders a batch of patch operations
  • health  checks that the service is up`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(flags.logLevel)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Configuration file (default: viewbridge.toml or viewbridge.json in the working directory)")
	rootCmd.PersistentFlags().StringVar(&flags.socket, "socket", "", "Render socket path (overrides the configuration)")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Expose error detail in 5xx responses")

	rootCmd.AddCommand(
		serveCmd(flags),
		pageCmd(flags),
		streamCmd(flags),
		healthCmd(flags),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		var ve *errors.Error
		if stderrors.As(err, &ve) {
			fmt.Fprint(os.Stderr, ve.Format())
		} else {
			fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		}
		os.Exit(1)
	}
}

func setupLogging(level string) error {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", level, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
	return nil
}

// loadConfig loads the configuration named by --config, or the one in the
// working directory. Without either, defaults are used.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if flags.configPath != "" {
		cfg, err = config.LoadFile(flags.configPath)
	} else {
		cfg, err = config.Load(".")
		var ve *errors.Error
		if stderrors.As(err, &ve) && ve.Code == "E141" {
			cfg, err = config.New(), nil
		}
	}
	if err != nil {
		return nil, err
	}

	if flags.socket != "" {
		cfg.Socket = flags.socket
	}
	if flags.debug {
		cfg.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}

// errorMsg prints an error message.
func errorMsg(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "\033[31m✗\033[0m %s\n", fmt.Sprintf(format, args...))
}
