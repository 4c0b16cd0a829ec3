package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"golang.org/x/sync/errgroup"

	skipsilence "github.com/lokutor-ai/skip-silence"
	"github.com/lokutor-ai/skip-silence/internal/config"
	"github.com/lokutor-ai/skip-silence/internal/observe"
	"github.com/lokutor-ai/skip-silence/pkg/audio"
	"github.com/lokutor-ai/skip-silence/pkg/device"
	"github.com/lokutor-ai/skip-silence/pkg/skipper"
)

var (
	version = "0.1.0"
)

// CLI defines the command-line interface
type CLI struct {
	Version      bool    `short:"v" help:"Show version information"`
	Config       string  `short:"c" type:"path" help:"Path to YAML settings file, reloaded on change"`
	EnvFile      string  `name:"env-file" default:".env" help:"File with SKIP_SILENCE_* overrides"`
	Source       string  `short:"s" help:"Analysis source: element, microphone or loopback"`
	MetricsAddr  string  `name:"metrics-addr" help:"Serve Prometheus metrics on this address"`
	SilenceSpeed float64 `name:"silence-speed" help:"Playback rate during silence"`
	Mute         bool    `help:"Mute audio while skipping silence"`
	Quiet        bool    `short:"q" help:"Do not draw the volume meter"`
	File         string  `arg:"" name:"file" type:"existingfile" optional:"" help:"WAV or MP3 file to play"`
}

// apply layers the command-line flags over cfg.
func (c *CLI) apply(cfg *config.File) error {
	if c.Source != "" {
		cfg.Source = config.Source(c.Source)
	}
	if c.MetricsAddr != "" {
		cfg.MetricsAddr = c.MetricsAddr
	}
	if c.SilenceSpeed > 0 {
		cfg.Skipper.SilenceSpeed = c.SilenceSpeed
	}
	if c.Mute {
		cfg.Skipper.MuteSilence = true
	}
	return config.Validate(cfg)
}

func (c *CLI) load() (*config.File, error) {
	cfg := config.Default()
	if c.Config != "" {
		var err error
		if cfg, err = config.Load(c.Config); err != nil {
			return nil, err
		}
	}
	if err := config.ApplyEnv(cfg, c.EnvFile); err != nil {
		return nil, err
	}
	if err := c.apply(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	cliArgs := &CLI{}
	kctx := kong.Parse(cliArgs,
		kong.Name("skipsilence"),
		kong.Description("Play audio and speed through the silent parts"),
		kong.UsageOnError(),
	)

	if cliArgs.Version {
		fmt.Printf("skipsilence %s\n", version)
		os.Exit(0)
	}
	if cliArgs.File == "" {
		fmt.Fprintln(os.Stderr, "Error: no input file specified")
		_ = kctx.PrintUsage(false)
		os.Exit(1)
	}

	if err := run(cliArgs); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cliArgs *CLI) error {
	cfg, err := cliArgs.load()
	if err != nil {
		return err
	}

	logger := observe.NewLogger(os.Stderr, string(cfg.LogLevel))
	slog.SetDefault(logger)

	provider, err := observe.NewProvider(observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = provider.Shutdown(ctx)
	}()
	metrics, err := observe.NewMetrics(provider.MeterProvider)
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}

	clip, err := audio.Load(cliArgs.File)
	if err != nil {
		return err
	}
	player := audio.NewPlayer(clip)

	timing := cfg.Tuning.Timing()
	var source skipper.AudioSourceProvider
	switch cfg.Source {
	case config.SourceMicrophone:
		source = device.NewCaptureSource(device.ModeMicrophone, timing.FrameSize, logger)
	case config.SourceLoopback:
		source = device.NewCaptureSource(device.ModeLoopback, timing.FrameSize, logger)
	default:
		source = audio.NewElementSource(player, timing.FrameSize)
	}

	store := config.NewStore(cfg.Skipper.ToSkipper())
	session, err := skipsilence.NewSession(player, source, store,
		skipper.WithLogger(logger),
		skipper.WithMetrics(metrics),
		skipper.WithTiming(timing),
		skipper.WithEstimator(cfg.Tuning.Estimator()),
	)
	if err != nil {
		return err
	}
	defer session.Close()

	out, err := device.OpenOutput(player, logger)
	if err != nil {
		return err
	}
	defer out.Close()
	if err := out.Start(); err != nil {
		return err
	}

	fmt.Printf("Playing %s (%s, %d Hz, %d ch) | source=%s\n",
		cliArgs.File, clip.Duration().Round(time.Second), clip.SampleRate, clip.Channels, source.Name())
	fmt.Println("Press Ctrl+C to exit")

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case <-player.Done():
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	if cliArgs.Config != "" {
		w, err := config.NewWatcher(cliArgs.Config, func(_, next *config.File) {
			updated := *next
			if err := config.ApplyEnv(&updated, cliArgs.EnvFile); err != nil {
				logger.Warn("ignoring reloaded settings", "err", err)
				return
			}
			if err := cliArgs.apply(&updated); err != nil {
				logger.Warn("ignoring reloaded settings", "err", err)
				return
			}
			store.Replace(updated.Skipper.ToSkipper())
		}, config.WithWatcherLogger(logger))
		if err != nil {
			return err
		}
		g.Go(func() error { return w.Run(gctx) })
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", provider.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			logger.Info("serving metrics", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		printEvents(gctx, session, cliArgs.Quiet)
		return nil
	})

	err = g.Wait()

	stats := session.Stats()
	fmt.Printf("\nSkipped silence %d times, %s at speed, saved %s\n",
		stats.SpeedUps, stats.SpedUpTime.Round(time.Millisecond), stats.TimeSaved.Round(time.Millisecond))
	return err
}

// printEvents draws a one-line volume meter and logs state changes.
func printEvents(ctx context.Context, session *skipsilence.Session, quiet bool) {
	var volume float64
	state := skipper.StateNormal

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-session.Events():
			if !ok {
				return
			}
			switch event.Type {
			case skipper.VolumeUpdate:
				volume, _ = event.Data.(float64)
			case skipper.SpeedTransition:
				state, _ = event.Data.(skipper.SpeedState)
			case skipper.ThresholdUpdate:
				th, _ := event.Data.(float64)
				fmt.Printf("\r\033[K[THRESHOLD] %.1f\n", th)
			case skipper.CaptureUnavailable:
				fmt.Printf("\r\033[K[ERROR] capture source %v unavailable, silence skipping stopped\n", event.Data)
			}
			if !quiet {
				drawMeter(volume, session.Threshold(), state)
			}
		}
	}
}

func drawMeter(volume, threshold float64, state skipper.SpeedState) {
	const width = 40
	bars := int(volume / 200 * width)
	if bars > width {
		bars = width
	}
	mark := int(threshold / 200 * width)
	if mark >= width {
		mark = width - 1
	}

	var b strings.Builder
	for i := 0; i < width; i++ {
		switch {
		case i == mark:
			b.WriteByte('!')
		case i < bars:
			b.WriteByte('|')
		default:
			b.WriteByte(' ')
		}
	}
	fmt.Printf("\r[VOLUME: %s] %6.1f %-8s", b.String(), volume, state)
}
