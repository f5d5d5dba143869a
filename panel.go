package main

import (
	"errors"
	"fmt"
	"slices"

	log "github.com/rs/zerolog/log"

	"github.com/kc2g-flex-tools/nBEAT/internal/engine"
	"github.com/kc2g-flex-tools/nBEAT/internal/preset"
	"github.com/kc2g-flex-tools/nBEAT/internal/session"
)

const (
	beatStep   = 0.5
	baseStep   = 10
	volumeStep = 0.05
)

var (
	protocolOrder = []engine.Protocol{engine.CRV, engine.ERV, engine.ARV}
	focusOrder    = []engine.FocusLevel{engine.Focus10, engine.Focus12, engine.Focus15, engine.Focus21}
)

// Panel is the front-end state shared by the TUI and the raw key loop: the
// selected preset and the values the next start will request.
type Panel struct {
	ctl     *session.Controller
	presets []preset.Descriptor
	idx     int
	base    float64
	beat    float64
	volume  float64
}

func NewPanel(ctl *session.Controller, id string, base, beat, volume float64) (*Panel, error) {
	p := &Panel{ctl: ctl, presets: ctl.Catalog().All(), volume: volume}
	p.idx = slices.IndexFunc(p.presets, func(d preset.Descriptor) bool { return d.ID == id })
	if p.idx < 0 {
		return nil, fmt.Errorf("%w: %s", preset.ErrUnknownPreset, id)
	}
	p.selectPreset(p.idx)
	if base > 0 {
		p.base = base
	}
	if beat >= 0 {
		p.beat = beat
	}
	return p, nil
}

func (p *Panel) Selected() preset.Descriptor {
	return p.presets[p.idx]
}

func (p *Panel) selectPreset(i int) {
	n := len(p.presets)
	p.idx = ((i % n) + n) % n
	d := p.presets[p.idx]
	p.base, p.beat = d.BaseFrequency, d.BeatFrequency
}

// follow moves the selection to id when the controller switched presets
// on its own.
func (p *Panel) follow(id string) {
	if i := slices.IndexFunc(p.presets, func(d preset.Descriptor) bool { return d.ID == id }); i >= 0 {
		p.selectPreset(i)
	}
}

func (p *Panel) Start() error {
	return p.ctl.Start(p.base, p.beat, p.volume, p.Selected().ID)
}

// Toggle starts the selected preset, or stops the session and calls done
// when it is idle again.
func (p *Panel) Toggle(done func()) error {
	if p.ctl.IsPlaying() {
		p.ctl.Stop(done)
		return nil
	}
	return p.Start()
}

// Step moves the selection by n, restarting if something is playing.
func (p *Panel) Step(n int) error {
	p.selectPreset(p.idx + n)
	if p.ctl.IsPlaying() {
		return p.Start()
	}
	return nil
}

func (p *Panel) NudgeBeat(d float64) {
	p.beat = max(p.beat+d, 0)
	p.ctl.SetBeatFrequency(p.beat)
}

func (p *Panel) NudgeBase(d float64) {
	p.base = max(p.base+d, 20)
	p.ctl.SetBaseFrequency(p.base)
}

func (p *Panel) NudgeVolume(d float64) {
	p.volume = min(max(p.volume+d, 0), 1)
	p.ctl.SetVolume(p.volume)
}

func (p *Panel) Volume() float64 { return p.volume }

func (p *Panel) ToggleSuspend() {
	if p.ctl.Suspended() {
		p.ctl.Resume()
	} else {
		p.ctl.Suspend()
	}
}

// Extension runs the preset-specific action bound to r and describes what
// it did. Keys that do not apply to the playing preset report nothing.
func (p *Panel) Extension(r rune) (string, error) {
	ctl := p.ctl
	if !ctl.IsPlaying() {
		return "", nil
	}
	switch kind := engine.KindFor(p.Selected()); {
	case kind == engine.KindLucid && r == 'r':
		if ctl.RealityCheckInterval() > 0 {
			ctl.DisableRealityCheck()
			return "reality checks off", nil
		}
		ctl.EnableRealityCheck(0)
		return fmt.Sprintf("reality check every %v", ctl.RealityCheckInterval()), nil
	case kind == engine.KindLucid && r == 'w':
		ctl.StartWBTBTimer(0)
		return fmt.Sprintf("wake tone in %v", engine.DefaultWBTB), nil
	case kind == engine.KindLucid && r == 'W':
		ctl.CancelWBTB()
		return "wake timer cancelled", nil
	case kind == engine.KindAstral && r == 'b':
		ctl.EnableReturnSignal()
		return "return signal on", nil
	case kind == engine.KindAstral && r == 'B':
		ctl.DisableReturnSignal()
		return "return signal off", nil
	case kind == engine.KindRemote && r == 'c':
		ctl.ClearEnergy(engine.DefaultClearEnergy)
		return "clearing energy", nil
	case kind == engine.KindRemote && r == 't':
		cfg := engine.DefaultTargetFocus()
		ctl.StartTargetFocus(cfg)
		return fmt.Sprintf("target focus for %v", cfg.Total()), nil
	case kind == engine.KindRemote && r == 'o':
		next := protocolOrder[(slices.Index(protocolOrder, ctl.CurrentProtocol())+1)%len(protocolOrder)]
		if err := ctl.SetProtocol(next); err != nil {
			return "", err
		}
		return fmt.Sprintf("protocol %s", next), nil
	case kind == engine.KindRemote && r == 'm':
		if ctl.Recording() {
			data, _ := ctl.StopRecording()
			log.Info().Int("bytes", len(data)).Msg("recording captured")
			return fmt.Sprintf("recorded %d bytes", len(data)), nil
		}
		if err := ctl.StartRecording(); err != nil {
			if errors.Is(err, engine.ErrMicrophoneUnavailable) {
				return "microphone unavailable", err
			}
			return "", err
		}
		return "recording", nil
	case kind == engine.KindGateway && r == 'f':
		next := focusOrder[(slices.Index(focusOrder, ctl.CurrentFocusLevel())+1)%len(focusOrder)]
		if err := ctl.SetFocusLevel(next); err != nil {
			return "", err
		}
		p.follow(ctl.CurrentPreset())
		return fmt.Sprintf("focus level %s", next), nil
	}
	return "", nil
}
