package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/agenticgokit/crewview/internal/api"
	"github.com/agenticgokit/crewview/internal/audit"
	"github.com/agenticgokit/crewview/internal/config"
	"github.com/agenticgokit/crewview/internal/live"
	"github.com/agenticgokit/crewview/internal/protocol"
	"github.com/agenticgokit/crewview/internal/transport"
	"github.com/agenticgokit/crewview/internal/tui"
)

var (
	watchPlain   bool
	watchLogFile string
)

var watchCmd = &cobra.Command{
	Use:   "watch <crew|flow> <id>",
	Short: "Follow a crew or flow live",
	Long: `Connect to the backend's live endpoint for a crew or flow and show its
agents, tasks, methods and traces as they change.

The connection reconnects with exponential backoff. Once the attempts are
exhausted press r in the dashboard to try again.

Examples:
  crewview watch crew research
  crewview watch flow poem --plain`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseKind(args[0])
		if err != nil {
			return err
		}
		return watchEntity(cmd, kind, args[1])
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().BoolVar(&watchPlain, "plain", false, "Log state changes instead of opening the dashboard")
	watchCmd.Flags().StringVar(&watchLogFile, "log-file", "", "Write watcher logs to this file while the dashboard is open")
}

// newWatcher wires a store and a watcher for one backend
func newWatcher(cfg config.Config, log *zerolog.Logger) (*live.Store, *live.Watcher, error) {
	client := api.NewClient(cfg.ServerURL, cfg.Timeout, log)
	dialer, err := transport.NewDialer(cfg.ServerURL, log)
	if err != nil {
		return nil, nil, err
	}

	store := live.NewStore(log)
	watcher := live.NewWatcher(store, dialer, client, live.WatcherConfig{
		SessionID:     uuid.NewString(),
		Heartbeat:     cfg.Heartbeat,
		ReconnectBase: cfg.ReconnectBase,
		ReconnectMax:  cfg.ReconnectMax,
		MaxAttempts:   cfg.ReconnectAttempts,
		PollInterval:  cfg.PollInterval,
	}, log)
	return store, watcher, nil
}

func watchEntity(cmd *cobra.Command, kind protocol.Kind, id string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := GetLogger()
	if !watchPlain {
		var closeLog func() error
		log, closeLog, err = dashboardLogger()
		if err != nil {
			return err
		}
		defer closeLog()
	}

	store, watcher, err := newWatcher(cfg, log)
	if err != nil {
		return err
	}
	watcher.Track(kind, id)

	done := make(chan error, 1)
	go func() { done <- watcher.Run(ctx) }()

	if watchPlain {
		err = followPlain(ctx, store, log)
	} else {
		dashboard := tui.NewDashboard(store, watcher.Retry)
		defer dashboard.Close()
		_, err = tea.NewProgram(dashboard, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
		if err != nil && ctx.Err() == nil {
			err = fmt.Errorf("failed to run TUI: %w", err)
		} else {
			err = nil
		}
	}

	stop()
	if runErr := <-done; runErr != nil && err == nil {
		err = runErr
	}
	return err
}

// dashboardLogger keeps logs off the terminal while the TUI owns it.
// The returned func closes the --log-file, if one was opened.
func dashboardLogger() (*zerolog.Logger, func() error, error) {
	if watchLogFile == "" {
		nop := zerolog.Nop()
		return &nop, func() error { return nil }, nil
	}
	f, err := os.OpenFile(watchLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	l := zerolog.New(f).Level(level).With().Timestamp().Logger()
	return &l, f.Close, nil
}

// followPlain logs connection changes and entity status transitions until ctx ends
func followPlain(ctx context.Context, store *live.Store, log *zerolog.Logger) error {
	updates, cancel := store.Subscribe()
	defer cancel()

	var lastConn live.ConnState
	statuses := make(map[string]string)
	traces := make(map[string]string)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-updates:
		}

		conn, connErr := store.Conn()
		if conn != lastConn {
			ev := log.Info()
			if connErr != nil {
				ev = log.Warn().Err(connErr)
			}
			ev.Str("state", string(conn)).Msg("connection")
			lastConn = conn
		}
		if msg := store.LastError(); msg != "" && statuses["__error"] != msg {
			log.Error().Str("error", msg).Msg("backend error")
			statuses["__error"] = msg
		}

		state := store.Snapshot()
		if root := state.Root(); root != nil {
			logStatus(log, statuses, string(state.Kind), *root)
		}
		for _, e := range state.SortedAgents() {
			logStatus(log, statuses, "agent", e)
		}
		for _, e := range state.SortedTasks() {
			logStatus(log, statuses, "task", e)
		}
		for _, e := range state.SortedMethods() {
			logStatus(log, statuses, "method", e)
		}
		for _, t := range state.Traces.Items() {
			if traces[t.ID] == string(t.Status) {
				continue
			}
			traces[t.ID] = string(t.Status)
			s := audit.Summarize(t, time.Now())
			log.Info().
				Str("trace_id", t.ID).
				Str("status", string(t.Status)).
				Int("spans", s.TotalSpans).
				Int("llm_calls", s.Metrics.TotalLLMCalls).
				Int64("tokens", s.TokensUsed).
				Msg("trace")
		}
	}
}

func logStatus(log *zerolog.Logger, seen map[string]string, kind string, e protocol.Entity) {
	key := kind + "/" + e.ID
	if seen[key] == e.Status {
		return
	}
	seen[key] = e.Status
	ev := log.Info()
	if e.Error != "" {
		ev = log.Error().Str("error", e.Error)
	}
	ev.Str("kind", kind).Str("id", e.ID).Str("name", e.Label()).Str("status", e.Status).Msg("status changed")
}
