package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adaletdata/uploader/internal/app"
	"github.com/adaletdata/uploader/internal/config"
	"github.com/adaletdata/uploader/internal/logging"
	"github.com/adaletdata/uploader/internal/uploader"
)

var (
	readID      string
	readDaire   string
	readEsasNo  string
	readKararNo string
	readKeyword string
	readYear    string
	readLimit   int
)

// newReadCmd creates the query side of the CLI: search the persisted
// decisions by index fields, or load one decision with its full text.
func newReadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read [--id <identity> | --daire/--esas-no/--karar-no/--keyword/--year ...]",
		Short: "Searches stored decisions, or prints one decision with its full text.",
		Long: `read queries the storage backend selected by STORAGE_MODE. Without --id it
lists index metadata for the matching decisions; with --id it loads that one
decision, retrieving the full text from blob storage when it was offloaded.`,

		SilenceUsage: true,
		RunE:         runRead,
	}

	cmd.Flags().StringVar(&readID, "id", "", "identity of a single decision to read in full")
	cmd.Flags().StringVar(&readDaire, "daire", "", "chamber name, substring match")
	cmd.Flags().StringVar(&readEsasNo, "esas-no", "", "docket number, exact match")
	cmd.Flags().StringVar(&readKararNo, "karar-no", "", "verdict number, exact match")
	cmd.Flags().StringVar(&readKeyword, "keyword", "", "keyword, matched against the summary")
	cmd.Flags().StringVar(&readYear, "year", "", "verdict year (YYYY)")
	cmd.Flags().IntVar(&readLimit, "limit", 20, "maximum number of search results")

	return cmd
}

func runRead(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logging.InitLogger(cfg.Logging.Development)

	application, err := app.New(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("initialize application services: %w", err)
	}
	defer application.Close()
	defer application.Store.Close()

	reader, ok := application.Store.(uploader.Reader)
	if !ok {
		return fmt.Errorf("storage backend %T does not support reads", application.Store)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	if readID != "" {
		rec, err := reader.Get(cmd.Context(), readID)
		if err != nil {
			return fmt.Errorf("read decision %s: %w", readID, err)
		}
		return enc.Encode(rec)
	}

	records, err := reader.Search(cmd.Context(), uploader.Filter{
		Daire:   readDaire,
		EsasNo:  readEsasNo,
		KararNo: readKararNo,
		Keyword: readKeyword,
		Year:    readYear,
		Limit:   readLimit,
	})
	if err != nil {
		return fmt.Errorf("search decisions: %w", err)
	}
	if len(records) == 0 {
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), "No results found."); err != nil {
			return err
		}
		return nil
	}
	return enc.Encode(records)
}
