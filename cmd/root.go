// Package cmd provides the command-line interface of the IP lookup service.
// The root command holds the shared configuration flag; subcommands register
// themselves from their init() hooks.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gtriggiano/ip-lookup-service/pkg/config"
	"github.com/gtriggiano/ip-lookup-service/pkg/logging"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "ip-lookup-service",
	Short: "Look up the public IP address and keep a history of lookups",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to an optional YAML configuration file; environment variables take precedence")
}

// Execute runs the root Cobra command.
func Execute() error {
	return rootCmd.Execute()
}

// bootstrap loads the configuration and builds the base logger.
func bootstrap() (*config.Config, *zap.Logger, error) {
	path := cfgFile
	if path != "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve config path: %w", err)
		}
		path = abs
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// printJSON writes v as indented JSON followed by a newline.
func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
