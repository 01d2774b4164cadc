package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/agenticgokit/crewview/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve <crew|flow> <id>",
	Short: "Expose live state as a local JSON API",
	Long: `Follow a crew or flow like watch does and serve the mirrored state over HTTP.

Endpoints:
  GET /healthz
  GET /api/state
  GET /api/traces
  GET /api/traces/:id
  GET /api/traces/:id/spans
  GET /api/metrics?trace_id=<id>

Examples:
  crewview serve crew research
  crewview serve flow poem --addr 127.0.0.1:9000`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseKind(args[0])
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.ServeAddr = serveAddr
		}

		log := GetLogger()
		store, watcher, err := newWatcher(cfg, log)
		if err != nil {
			return err
		}
		watcher.Track(kind, args[1])

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Info().Str("addr", cfg.ServeAddr).Str("kind", string(kind)).Str("id", args[1]).Msg("serving live state")

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error { return watcher.Run(ctx) })
		g.Go(func() error { return server.New(store, log).Start(ctx, cfg.ServeAddr) })
		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default 127.0.0.1:8686)")
}
