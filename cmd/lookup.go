package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gtriggiano/ip-lookup-service/pkg/provider"
)

var lookupProvider string

type lookupOutput struct {
	MyIP     string `json:"myIP"`
	Provider string `json:"provider"`
}

func init() {
	rootCmd.AddCommand(lookupCmd)
	lookupCmd.Flags().StringVar(&lookupProvider, "provider", "", "Registry key of the provider to use, defaults to the active provider")
}

var lookupCmd = &cobra.Command{
	Use:   "lookup",
	Short: "Fetch the public IP address once and print it as JSON",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		registry, err := provider.BuildRegistry(
			logger.With(zap.String("component", "provider")),
			provider.NewHTTPClient(cfg.Provider.ProviderTimeout()),
			cfg.Providers,
		)
		if err != nil {
			return err
		}

		key := lookupProvider
		if key == "" {
			key = cfg.Provider.Active
		}
		source, err := registry.Get(key)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Provider.ProviderTimeout())
		defer cancel()

		result := source.Fetch(ctx)
		if !result.OK() {
			return fmt.Errorf("lookup with %s failed: %w", source.Name(), result.Err)
		}

		return printJSON(cmd.OutOrStdout(), lookupOutput{MyIP: result.IP, Provider: source.Name()})
	},
}
