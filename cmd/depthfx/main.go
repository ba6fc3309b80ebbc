// Command depthfx renders depth-aware effects headlessly: parallax,
// rack focus and shaped portals over images, frame sequences, cameras
// or a test pattern, written out as PNG frames.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gogpu/depthfx"
	_ "github.com/gogpu/depthfx/backend/native"
	_ "github.com/gogpu/depthfx/backend/wgpu"
)

// Build-time variables (set via ldflags).
var (
	version = "dev"
	commit  = "unknown"
)

var (
	cfgFile  string
	logLevel string

	vp = viper.New()

	rootCmd = &cobra.Command{
		Use:   "depthfx",
		Short: "Depth-aware visual effects renderer",
		Long: `depthfx drives parallax, rack-focus and portal effects from a
per-pixel depth map, precomputed or estimated live through an ONNX
model, on a GPU compute backend with a pure-Go fallback.

Configuration comes from a config file (--config, ./depthfx.yaml or
~/.config/depthfx/depthfx.yaml), DEPTHFX_* environment variables and
flags, in rising precedence. The render command re-reads the file on
change and rebuilds the effect with the new values.`,
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := setupLogging(); err != nil {
				return err
			}
			return loadConfig()
		},
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "depthfx:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug|info|warn|error|off)")

	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(bakeCmd)
}

func setupLogging() error {
	if logLevel == "off" {
		return nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(logLevel))); err != nil {
		return fmt.Errorf("bad --log-level %q: %w", logLevel, err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	depthfx.SetLogger(logger)
	return nil
}

func loadConfig() error {
	if cfgFile != "" {
		vp.SetConfigFile(cfgFile)
	} else {
		vp.SetConfigName("depthfx")
		vp.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			vp.AddConfigPath(filepath.Join(dir, "depthfx"))
		}
	}
	vp.SetEnvPrefix("DEPTHFX")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	setDefaults(vp)

	if err := vp.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && cfgFile == "" {
			// No file is fine; defaults, env and flags carry it.
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	slog.Debug("config loaded", "file", vp.ConfigFileUsed())
	return nil
}
