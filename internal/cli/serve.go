package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"quotesearch/internal/app"
	"quotesearch/internal/httpapi"
	"quotesearch/internal/render"
)

var (
	serveAddr      string
	serveStaticDir string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve GET /retrieve over HTTP",
	Long: `Load the embedding model and open the vector index once, then serve
retrieval requests until interrupted.

Examples:
  quotesearch serve
  quotesearch serve --addr :8080 --static ./web`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().StringVar(&serveStaticDir, "static", "", "directory with index.html and styles.css")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	logger := GetLogger()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := app.Open(ctx, cfg, GetRootDir(), logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	staticDir := cfg.Server.StaticDir
	if serveStaticDir != "" {
		staticDir = serveStaticDir
	}

	server := httpapi.NewServer(svc.Retriever, svc.Embedder, svc.Index, httpapi.Options{
		Format:      render.Format(cfg.Retrieve.Format),
		DefaultTopK: cfg.Retrieve.DefaultTopK,
		StaticDir:   staticDir,
		RateLimit:   cfg.Server.RateLimit,
		RateBurst:   cfg.Server.RateBurst,
		Backend:     cfg.Index.Backend,
		CORSOrigins: cfg.Server.CORSOrigins,
	}, logger)

	return server.ListenAndServe(ctx, addr)
}
