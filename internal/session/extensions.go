package session

import (
	"fmt"
	"time"

	log "github.com/rs/zerolog/log"

	"github.com/kc2g-flex-tools/nBEAT/internal/engine"
)

// active returns the playing engine when it has type T.
func active[T engine.Engine](c *Controller) (T, bool) {
	var zero T
	if c.state != Playing {
		return zero, false
	}
	e, ok := c.manager.ActiveEngine().(T)
	if !ok || !e.Playing() {
		return zero, false
	}
	return e, true
}

func (c *Controller) EnableRealityCheck(minutes float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := active[*engine.Lucid](c); ok {
		l.EnableRealityCheck(minutes)
	}
}

func (c *Controller) DisableRealityCheck() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := active[*engine.Lucid](c); ok {
		l.DisableRealityCheck()
	}
}

func (c *Controller) RealityCheckInterval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := active[*engine.Lucid](c); ok {
		return l.RealityCheckInterval()
	}
	return 0
}

func (c *Controller) StartWBTBTimer(minutes float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := active[*engine.Lucid](c); ok {
		l.StartWBTBTimer(minutes)
	}
}

func (c *Controller) CancelWBTB() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := active[*engine.Lucid](c); ok {
		l.CancelWBTB()
	}
}

func (c *Controller) EnableReturnSignal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a, ok := active[*engine.Astral](c); ok {
		a.EnableReturnSignal()
	}
}

func (c *Controller) DisableReturnSignal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a, ok := active[*engine.Astral](c); ok {
		a.DisableReturnSignal()
	}
}

// JourneyPhase is the progressive journey phase, or -1.
func (c *Controller) JourneyPhase() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a, ok := active[*engine.Astral](c); ok {
		return a.Phase()
	}
	return -1
}

func (c *Controller) StartTargetFocus(cfg engine.TargetFocus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := active[*engine.Remote](c); ok {
		r.StartTargetFocus(cfg)
	}
}

func (c *Controller) ClearEnergy(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := active[*engine.Remote](c); ok {
		r.ClearEnergy(d)
	}
}

// StartRecording fails with engine.ErrMicrophoneUnavailable when there is
// no microphone to open. Outside a remote viewing session it does nothing.
func (c *Controller) StartRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := active[*engine.Remote](c)
	if !ok {
		log.Debug().Msg("recording needs a remote viewing session")
		return nil
	}
	if err := r.StartRecording(); err != nil {
		return fmt.Errorf("session: start recording: %w", err)
	}
	return nil
}

func (c *Controller) StopRecording() ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := active[*engine.Remote](c); ok {
		return r.StopRecording()
	}
	return nil, false
}

func (c *Controller) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := active[*engine.Remote](c); ok {
		return r.Recording()
	}
	return false
}

// SetProtocol rejects unknown protocols and otherwise only acts on a
// playing remote viewing session.
func (c *Controller) SetProtocol(p engine.Protocol) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, err := engine.ParseProtocol(string(p))
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	r, ok := active[*engine.Remote](c)
	if !ok {
		return nil
	}
	if err := r.SetProtocol(p); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	c.refreshLocked()
	return nil
}

func (c *Controller) CurrentProtocol() engine.Protocol {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.manager.Engine(engine.KindRemote).(*engine.Remote).Protocol()
}

// SetFocusLevel restarts a playing gateway session at level l.
func (c *Controller) SetFocusLevel(l engine.FocusLevel) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, err := engine.ParseFocusLevel(string(l))
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	g, ok := active[*engine.Gateway](c)
	if !ok {
		return nil
	}
	if err := g.SetFocusLevel(l); err != nil {
		c.state = Idle
		c.session = Session{}
		return fmt.Errorf("session: focus level %s: %w", l, err)
	}
	c.session.PresetID = "gateway-" + string(l)
	c.refreshLocked()
	return nil
}

func (c *Controller) CurrentFocusLevel() engine.FocusLevel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.manager.Engine(engine.KindGateway).(*engine.Gateway).FocusLevel()
}

// SessionProgress is the gateway progress in [0, 100], zero otherwise.
func (c *Controller) SessionProgress() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if g, ok := active[*engine.Gateway](c); ok {
		return g.Progress()
	}
	return 0
}
