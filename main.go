package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/jfreymuth/pulse"
	"github.com/rs/zerolog"
	log "github.com/rs/zerolog/log"

	"github.com/kc2g-flex-tools/nBEAT/internal/audio"
	"github.com/kc2g-flex-tools/nBEAT/internal/preset"
	"github.com/kc2g-flex-tools/nBEAT/internal/session"
)

var cfg struct {
	Preset    string
	Base      float64
	Beat      float64
	Volume    float64
	Master    float64
	AudioSink string
	Latency   float64
	LogLevel  string
	UI        string
	Duration  time.Duration
	List      bool
}

func init() {
	flag.StringVar(&cfg.Preset, "preset", "custom", "preset to start with (see -list)")
	flag.Float64Var(&cfg.Base, "base", 0, "base frequency in Hz, 0 for the preset's own")
	flag.Float64Var(&cfg.Beat, "beat", -1, "beat frequency in Hz, negative for the preset's own")
	flag.Float64Var(&cfg.Volume, "volume", 0.5, "session volume, 0 to 1")
	flag.Float64Var(&cfg.Master, "master", 1, "master output volume, 0 to 1")
	flag.StringVar(&cfg.AudioSink, "sink", "default", "audio sink to play through, or \"null\" for no output")
	flag.Float64Var(&cfg.Latency, "latency", 0.05, "playback latency in seconds")
	flag.StringVar(&cfg.LogLevel, "log-level", "info", "minimum level of messages to log to console")
	flag.StringVar(&cfg.UI, "ui", "auto", "front end: tui, keys, none or auto")
	flag.DurationVar(&cfg.Duration, "duration", 0, "stop after this long (0 runs until interrupted or the session ends)")
	flag.BoolVar(&cfg.List, "list", false, "list presets and exit")
}

func main() {
	log.Logger = zerolog.New(
		zerolog.ConsoleWriter{
			Out: os.Stderr,
		},
	).With().Timestamp().Logger()

	flag.Parse()

	logLevel, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal().Str("level", cfg.LogLevel).Msg("Unknown log level")
	}
	zerolog.SetGlobalLevel(logLevel)

	if cfg.List {
		listPresets(os.Stdout, preset.Default())
		return
	}

	ui := cfg.UI
	if ui == "auto" {
		ui = "none"
		if isTerminal(os.Stdin) && isTerminal(os.Stdout) {
			ui = "tui"
		}
	}

	var host audio.Host = audio.NullHost{}
	var mic audio.Microphone
	if cfg.AudioSink != "null" {
		pc, err := pulse.NewClient(
			pulse.ClientApplicationName("nBEAT"),
		)
		if err != nil {
			log.Fatal().Err(err).Msg("pulse.NewClient failed")
		}
		defer pc.Close()

		ph := audio.PulseHost{Client: pc, Latency: cfg.Latency}
		if cfg.AudioSink != "default" {
			ph.Sink, err = pc.SinkByID(cfg.AudioSink)
			if err != nil {
				log.Fatal().Err(err).Str("sink", cfg.AudioSink).Msg("SinkByID failed")
			}
		}
		host = ph
		mic = audio.PulseMicrophone{Client: pc}
	}

	scfg := session.DefaultConfig()
	scfg.MasterVolume = cfg.Master
	ctl := session.New(scfg, host, mic, nil, nil)
	if !ctl.Initialize() {
		log.Fatal().Msg("audio output unavailable")
	}
	defer ctl.Cleanup()

	panel, err := NewPanel(ctl, cfg.Preset, cfg.Base, cfg.Beat, cfg.Volume)
	if err != nil {
		log.Fatal().Err(err).Send()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.Duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, cfg.Duration)
		defer cancel()
	}

	go ctl.Run(ctx)

	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		select {
		case <-c:
			log.Info().Msg("Exit on signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := panel.Start(); err != nil {
		log.Fatal().Err(err).Msg("start failed")
	}

	switch ui {
	case "tui":
		err = runTUI(ctx, panel, ctl)
	case "keys":
		err = runKeys(ctx, cancel, panel, ctl)
	default:
		err = runHeadless(ctx, ctl)
	}
	if err != nil {
		log.Error().Err(err).Msg("front end")
	}

	shutdown(ctl)
}

func runTUI(ctx context.Context, panel *Panel, ctl *session.Controller) error {
	logs := &LogPane{}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: logs, NoColor: true, TimeFormat: time.Kitchen})
	defer func() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}()

	var prog *tea.Program
	model := NewUI(panel, ctl, logs, func(msg tea.Msg) { go prog.Send(msg) })
	prog = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := prog.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// runHeadless plays until ctx ends or the session goes idle by itself.
func runHeadless(ctx context.Context, ctl *session.Controller) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if ctl.State() == session.Idle {
				log.Info().Msg("session ended")
				return nil
			}
		}
	}
}

// shutdown stops the session and waits out the stop grace.
func shutdown(ctl *session.Controller) {
	done := make(chan struct{})
	ctl.Stop(func() { close(done) })
	wait, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go ctl.Run(wait)
	select {
	case <-done:
	case <-wait.Done():
		log.Warn().Msg("stop did not complete")
	}
}

func listPresets(w io.Writer, catalog *preset.Catalog) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCATEGORY\tBASE\tBEAT\tMINUTES\tNAME")
	for _, d := range catalog.All() {
		fmt.Fprintf(tw, "%s\t%s\t%g\t%g\t%g\t%s\n", d.ID, d.Category, d.BaseFrequency, d.BeatFrequency, d.RecommendedMinutes, d.Name)
	}
	tw.Flush()
}
