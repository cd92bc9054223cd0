package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	orchestration "github.com/koscakluka/ema-battle/core"
	"github.com/koscakluka/ema-battle/core/events"
	"github.com/koscakluka/ema-battle/core/push"
	"github.com/koscakluka/ema-battle/core/records"
	"github.com/koscakluka/ema-battle/core/session"
	"github.com/koscakluka/ema-battle/internal/config"
	"github.com/koscakluka/ema-battle/internal/telemetry"
	"github.com/spf13/cobra"
)

type runOptions struct {
	first    string
	second   string
	topic    string
	category string
	listen   string
	player   string
	turns    int
	width    int
}

func newRunCommand() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a rap battle",
		Long: `Run a rap battle between two participants.

Provider credentials and defaults are read from the environment
(OPENAI_API_KEY, GROQ_API_KEY, DEEPGRAM_API_KEY and the BATTLE_* variables).
With --listen the battle state is pushed to websocket clients, which may
acknowledge playback themselves when --player=remote.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBattle(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.first, "first", "", "Name of the first participant (required)")
	cmd.Flags().StringVar(&opts.second, "second", "", "Name of the second participant (required)")
	cmd.Flags().StringVar(&opts.topic, "topic", "", "Battle topic (required)")
	cmd.Flags().StringVar(&opts.category, "category", "", "Topic category")
	cmd.Flags().StringVar(&opts.listen, "listen", "", "Address to serve the websocket push channel on, e.g. :8080")
	cmd.Flags().StringVar(&opts.player, "player", playerMiniaudio, "Audio player: miniaudio, portaudio, silent or remote")
	cmd.Flags().IntVar(&opts.turns, "turns", 0, "Total number of turns, overrides BATTLE_TOTAL_TURNS")
	cmd.Flags().IntVar(&opts.width, "width", defaultWidth, "Wrap verses at this width")
	_ = cmd.MarkFlagRequired("first")
	_ = cmd.MarkFlagRequired("second")
	_ = cmd.MarkFlagRequired("topic")

	return cmd
}

func runBattle(ctx context.Context, cmd *cobra.Command, opts runOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if opts.turns > 0 {
		cfg.TotalTurns = opts.turns
	}

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.OTelEndpoint, serviceName)
	if err != nil {
		return fmt.Errorf("set up telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	p, err := newProviders(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			logger.Warn("closing records failed", "error", err)
		}
	}()

	first, err := records.Lookup(ctx, p.records, opts.first)
	if err != nil {
		return fmt.Errorf("look up %s: %w", opts.first, err)
	}
	second, err := records.Lookup(ctx, p.records, opts.second)
	if err != nil {
		return fmt.Errorf("look up %s: %w", opts.second, err)
	}

	firstVoice, secondVoice, announcerVoice := voicesFor(cfg)
	orchestrator := orchestration.NewOrchestrator(
		orchestration.WithScopeFactory(p.scope),
		orchestration.WithTotalTurns(cfg.TotalTurns),
		orchestration.WithMaxTokens(cfg.MaxTokens),
		orchestration.WithVoices(firstVoice, secondVoice, announcerVoice),
		orchestration.WithPlaybackTimeout(cfg.PlaybackTimeout),
		orchestration.WithVerseAnalysis(cfg.VerseAnalysis),
	)
	defer orchestrator.Close()

	player, closePlayer, err := newPlayer(opts.player)
	if err != nil {
		return err
	}
	defer func() {
		if err := closePlayer(); err != nil {
			logger.Warn("closing audio player failed", "error", err)
		}
	}()
	if player != nil {
		queue := startQueue(ctx, player)
		orchestrator.Subscribe(playbackBridge(queue, orchestrator.SignalPlaybackComplete))
	} else if opts.listen == "" {
		return errors.New("--player=remote needs --listen so clients can acknowledge playback")
	}

	orchestrator.Subscribe(newPrinter(cmd.OutOrStdout(), opts.width).Handle)

	if opts.listen != "" {
		hub := push.NewHub(orchestrator, push.WithCurrentState(orchestrator.CurrentState))
		defer hub.Close()
		orchestrator.Subscribe(hub.Handle)

		server := &http.Server{Addr: opts.listen, Handler: hub, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("push server stopped", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
		fmt.Fprintf(cmd.ErrOrStderr(), "pushing battle state on ws://%s\n", opts.listen)
	}

	done := make(chan session.State, 1)
	unsubscribe := orchestrator.Subscribe(func(event events.Event) error {
		switch event.Kind() {
		case events.KindSessionFinished, events.KindSessionFailed:
			select {
			case done <- event.Snapshot():
			default:
			}
		}
		return nil
	})
	defer unsubscribe()

	orchestrator.Start(ctx, first, second, session.Topic{Title: opts.topic, Category: opts.category})

	select {
	case <-ctx.Done():
		orchestrator.Reset()
		return nil
	case final := <-done:
		if final.Phase == session.PhaseFailed {
			return fmt.Errorf("battle failed: %s", final.ErrorMessage)
		}
		return nil
	}
}
