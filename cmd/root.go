package cmd

import (
	"log/slog"
	"os"
	"path"

	"github.com/encodeous/tint"
	slogmulti "github.com/samber/slog-multi"
	"github.com/spf13/cobra"
)

var (
	verbose bool
	logPath string
)

var rootCmd = &cobra.Command{
	Use:   "weft",
	Short: "Weft routing and reliable transport toolkit",
	Long: `Weft bundles two protocol cores: distance-vector and link-state
routing automata runnable against a simulated network, and a reliable
byte-stream transport (RTP) layered over UDP.`,
	SilenceUsage: true,
}

// Execute runs the root command and exits with status 1 on error.
// Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(&cobra.Group{
		ID:    "rtp",
		Title: "Reliable Transport",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "sim",
		Title: "Routing Simulation",
	})
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logPath, "log-file", "", "also write logs to this file")
}

// newLogger builds the stderr logger, fanned out to a file sink when
// --log-file is set. Stdout stays clean for the data stream.
func newLogger(prefix string) (*slog.Logger, error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handlers := []slog.Handler{
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:        level,
			AddSource:    false,
			TimeFormat:   "15:04:05",
			CustomPrefix: prefix,
		}),
	}
	if logPath != "" {
		if err := os.MkdirAll(path.Dir(logPath), 0700); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(logPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0700)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(slogmulti.Fanout(handlers...)), nil
}
