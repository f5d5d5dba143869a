// Package effect holds the audio building blocks sessions are assembled
// from. Each component owns the nodes and timers it creates and releases
// all of them on Stop.
package effect

import (
	"errors"
	"fmt"
	"math/rand/v2"

	log "github.com/rs/zerolog/log"
	"go.uber.org/multierr"

	"github.com/kc2g-flex-tools/nBEAT/internal/audio"
	"github.com/kc2g-flex-tools/nBEAT/internal/scheduler"
)

// Options carry the session parameters a component is built from. Volume
// is the session volume in [0, 1]; each component applies its own ratio.
type Options struct {
	BaseFrequency float64
	BeatFrequency float64
	Volume        float64
}

type Component interface {
	Setup(opts Options) error
	UpdateVolume(volume float64)
	Stop() error
}

// Env is what components need from their surroundings.
type Env struct {
	Audio *audio.Context
	Sched *scheduler.Scheduler
	Rand  *rand.Rand
}

// Nodes is the set of graph nodes owned by one component.
type Nodes struct {
	list []audio.Node
}

func (n *Nodes) Track(nodes ...audio.Node) {
	n.list = append(n.list, nodes...)
}

func (n *Nodes) Len() int { return len(n.list) }

// Release stops and disconnects every tracked node. Nodes that were never
// connected or already stopped are expected during teardown and only
// logged; anything else is collected into the returned error.
func (n *Nodes) Release() error {
	var errs error
	for _, nd := range n.list {
		if err := nd.Stop(); err != nil {
			errs = multierr.Append(errs, tolerate(nd, "stop", err, audio.ErrAlreadyStopped))
		}
		if err := nd.Disconnect(); err != nil {
			errs = multierr.Append(errs, tolerate(nd, "disconnect", err, audio.ErrNotConnected))
		}
	}
	n.list = nil
	return errs
}

func tolerate(nd audio.Node, op string, err, expected error) error {
	if errors.Is(err, expected) {
		log.Debug().Str("node", nd.Label()).Str("op", op).Err(err).Msg("teardown fault ignored")
		return nil
	}
	return fmt.Errorf("%s %s: %w", op, nd.Label(), err)
}

// abandon releases whatever a failed Setup managed to build and returns
// the setup error.
func abandon(nodes *Nodes, err error) error {
	if rerr := nodes.Release(); rerr != nil {
		log.Warn().Err(rerr).Msg("release after failed setup")
	}
	return err
}
