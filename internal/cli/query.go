package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"quotesearch/internal/app"
	"quotesearch/internal/domain"
	"quotesearch/internal/render"
)

var (
	queryTopK      int
	queryNamespace string
	queryFormat    string
)

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Find the quotes closest to text",
	Long: `Run one retrieval through the same pipeline the server uses.

Examples:
  quotesearch query "doh"
  quotesearch query "get your facts first" -n authors -k 3 --format json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (default from config)")
	queryCmd.Flags().StringVarP(&queryNamespace, "namespace", "n", "", "namespace to search")
	queryCmd.Flags().StringVar(&queryFormat, "format", "text", "output format: text, json or html")
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	format, err := render.ParseFormat(queryFormat)
	if err != nil {
		return err
	}

	svc, err := app.Open(cmd.Context(), cfg, GetRootDir(), GetLogger())
	if err != nil {
		return err
	}
	defer svc.Close()

	result, err := svc.Retriever.Retrieve(cmd.Context(), domain.Query{
		Text:      strings.Join(args, " "),
		TopK:      queryTopK,
		Namespace: queryNamespace,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	switch format {
	case render.FormatJSON:
		return render.JSON(os.Stdout, result)
	case render.FormatHTML:
		return render.HTML(os.Stdout, result.Query, result.Matches)
	default:
		return render.Text(os.Stdout, result)
	}
}
