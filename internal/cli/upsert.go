package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"quotesearch/internal/app"
	"quotesearch/internal/domain"
)

var (
	upsertFile      string
	upsertNamespace string
)

var upsertCmd = &cobra.Command{
	Use:   "upsert",
	Short: "Embed records from a file and write them to the index",
	Long: `Embed each record's text (or its metadata quote) and upsert it into a
namespace. Records whose id already exists are replaced.

The file is YAML or JSON, either a list of records or:

  namespace: simpsons
  records:
    - id: s01e01-001
      metadata: {character: Homer, quote: "D'oh!"}

Examples:
  quotesearch upsert -f simpsons.yaml
  quotesearch upsert -f twain.json -n authors/twain`,
	RunE: runUpsert,
}

func init() {
	rootCmd.AddCommand(upsertCmd)
	upsertCmd.Flags().StringVarP(&upsertFile, "file", "f", "", "records file (required)")
	upsertCmd.Flags().StringVarP(&upsertNamespace, "namespace", "n", "", "target namespace (overrides the file)")
	upsertCmd.MarkFlagRequired("file")
}

type recordsFile struct {
	Namespace string               `yaml:"namespace"`
	Records   []domain.RecordInput `yaml:"records"`
}

// loadRecords reads a records file. JSON parses as YAML.
func loadRecords(path string) (recordsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return recordsFile{}, err
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return recordsFile{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	var out recordsFile
	if len(node.Content) > 0 && node.Content[0].Kind == yaml.SequenceNode {
		err = node.Content[0].Decode(&out.Records)
	} else {
		err = node.Decode(&out)
	}
	if err != nil {
		return recordsFile{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return out, nil
}

func runUpsert(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	file, err := loadRecords(upsertFile)
	if err != nil {
		return err
	}
	namespace := file.Namespace
	if cmd.Flags().Changed("namespace") {
		namespace = upsertNamespace
	}
	if len(file.Records) == 0 {
		fmt.Println("No records to upsert.")
		return nil
	}

	svc, err := app.Open(cmd.Context(), cfg, GetRootDir(), GetLogger())
	if err != nil {
		return err
	}
	defer svc.Close()

	start := time.Now()
	bar := progressbar.NewOptions(len(file.Records),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]Embedding[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Println()
		}),
	)

	n, err := svc.Upsert.Upsert(cmd.Context(), namespace, file.Records, func(done int) {
		bar.Set(done)
	})
	if err != nil {
		return fmt.Errorf("upsert failed: %w", err)
	}

	fmt.Printf("\nUpsert complete:\n")
	fmt.Printf("  Records:   %d\n", n)
	fmt.Printf("  Namespace: %q\n", namespace)
	fmt.Printf("  Backend:   %s (%s)\n", cfg.Index.Backend, cfg.Index.Name)
	fmt.Printf("  Took:      %s\n", formatDuration(time.Since(start)))
	return nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
