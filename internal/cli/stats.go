package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"quotesearch/internal/app"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show record counts per namespace",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output as JSON")
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	svc, err := app.Open(cmd.Context(), cfg, GetRootDir(), GetLogger())
	if err != nil {
		return err
	}
	defer svc.Close()

	stats, err := svc.Index.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read index stats: %w", err)
	}

	if statsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	fmt.Printf("Index %s (%s)\n", cfg.Index.Name, cfg.Index.Backend)
	fmt.Printf("  Model:     %s\n", svc.Embedder.ModelName())
	fmt.Printf("  Dimension: %d\n", stats.Dimension)
	fmt.Printf("  Records:   %d\n", stats.Total)

	names := make([]string, 0, len(stats.Namespaces))
	for ns := range stats.Namespaces {
		names = append(names, ns)
	}
	sort.Strings(names)
	for _, ns := range names {
		label := ns
		if label == "" {
			label = "(default)"
		}
		fmt.Printf("    %-24s %d\n", label, stats.Namespaces[ns])
	}
	return nil
}
