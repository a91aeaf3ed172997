package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gtriggiano/ip-lookup-service/pkg/store"
)

var historyLimit int

type historyOutput struct {
	Count   int            `json:"count"`
	History []store.Record `json:"history"`
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", store.MaxRecentRecords, fmt.Sprintf("Number of records to print (1-%d)", store.MaxRecentRecords))
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the most recent lookups as JSON",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		historyStore, err := store.New(cfg.Database, logger.With(zap.String("component", "store")))
		if err != nil {
			return err
		}
		defer func() { _ = historyStore.Close() }()

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.DatabaseConnectionTimeout()*2)
		defer cancel()

		records, err := historyStore.ListRecent(ctx, historyLimit)
		if err != nil {
			return err
		}
		if records == nil {
			records = []store.Record{}
		}
		return printJSON(cmd.OutOrStdout(), historyOutput{Count: len(records), History: records})
	},
}
