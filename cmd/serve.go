package cmd

import (
	"github.com/docuchat/docuchat/internal/serve"
	"github.com/spf13/cobra"
)

var (
	serveAddr     string
	serveProvider string
	servePprof    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a local development backend",
	Long: `Run a local backend that speaks the DocuChat protocol: POST and GET on
the configured chat path, a websocket stream on /ws/chat, /healthz and
/metrics.

The echo provider needs no credentials. The openai provider streams from
the OpenAI API using serve.openai_api_key or OPENAI_API_KEY.

Examples:
  docuchat serve
  docuchat serve --addr :9000 --provider openai`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from serve.addr)")
	serveCmd.Flags().StringVar(&serveProvider, "provider", "", "Responder: echo or openai (default from serve.provider)")
	serveCmd.Flags().BoolVar(&servePprof, "pprof", false, "Expose runtime profiles under /debug/pprof")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Serve.Addr = serveAddr
	}
	if serveProvider != "" {
		cfg.Serve.Provider = serveProvider
	}

	responder, err := serve.NewResponder(cfg.Serve)
	if err != nil {
		return err
	}

	srv := serve.NewServer(cfg, responder, newLogger(false))
	srv.Version = Version
	srv.Profiling = servePprof
	return srv.Run(ctx)
}
