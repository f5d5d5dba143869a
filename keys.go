package main

import (
	"context"
	"time"

	"github.com/eiannone/keyboard"
	log "github.com/rs/zerolog/log"

	"github.com/kc2g-flex-tools/nBEAT/internal/engine"
	"github.com/kc2g-flex-tools/nBEAT/internal/session"
)

// runKeys is the plain hotkey loop: no screen, status goes to the log.
func runKeys(ctx context.Context, cancel context.CancelFunc, panel *Panel, ctl *session.Controller) error {
	keypresses, err := keyboard.GetKeys(1)
	if err != nil {
		return err
	}
	defer keyboard.Close()

	events := make(chan engine.Event, 16)
	ctl.OnEvent(func(e engine.Event) {
		select {
		case events <- e:
		default:
		}
	})
	status := time.NewTicker(time.Minute)
	defer status.Stop()

	logSession := func() {
		s := ctl.Session()
		log.Info().Str("preset", s.PresetID).Stringer("state", s.State).Float64("base", s.BaseFrequency).Float64("beat", s.BeatFrequency).Float64("volume", s.Volume).Send()
	}

	log.Info().Msg("space start/stop, tab next, arrows beat/base, +/- volume, esc quit")

LOOP:
	for {
		select {
		case <-ctx.Done():
			break LOOP
		case e := <-events:
			log.Info().Stringer("event", e.Kind).Str("detail", e.Detail).Float64("value", e.Value).Send()
		case <-status.C:
			if ctl.IsPlaying() {
				log.Info().Dur("elapsed", ctl.Elapsed().Truncate(time.Second)).Int("progress", ctl.SessionProgress()).Send()
			}
		case key := <-keypresses:
			if key.Err != nil {
				return key.Err
			}
			var err error
			switch key.Rune {
			case '-':
				panel.NudgeVolume(-volumeStep)
				logSession()
			case '=', '+':
				panel.NudgeVolume(volumeStep)
				logSession()
			case 'n':
				err = panel.Step(1)
				logSession()
			case 'p':
				err = panel.Step(-1)
				logSession()
			case 's':
				panel.ToggleSuspend()
				log.Info().Bool("suspended", ctl.Suspended()).Send()
			case 'q':
				cancel()
			case 0:
				switch key.Key {
				case keyboard.KeyEsc, keyboard.KeyCtrlC:
					cancel()
				case keyboard.KeySpace:
					err = panel.Toggle(func() { log.Info().Msg("stopped") })
					logSession()
				case keyboard.KeyTab:
					err = panel.Step(1)
					logSession()
				case keyboard.KeyArrowUp:
					panel.NudgeBeat(beatStep)
					logSession()
				case keyboard.KeyArrowDown:
					panel.NudgeBeat(-beatStep)
					logSession()
				case keyboard.KeyPgup, keyboard.KeyArrowRight:
					panel.NudgeBase(baseStep)
					logSession()
				case keyboard.KeyPgdn, keyboard.KeyArrowLeft:
					panel.NudgeBase(-baseStep)
					logSession()
				}
			default:
				var msg string
				msg, err = panel.Extension(key.Rune)
				if msg != "" {
					log.Info().Msg(msg)
				}
			}
			if err != nil {
				log.Error().Err(err).Send()
			}
		}
	}
	return nil
}
