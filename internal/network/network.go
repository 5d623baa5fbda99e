// Package network models the message-delay/loss behaviour between nodes:
// every broadcast is either dropped with the configured omission probability
// or delivered after a uniformly random delay.
package network

import (
	"fmt"
	"math/rand"

	"github.com/rs/zerolog"

	"github.com/adred-codev/bftsim/internal/monitoring"
	"github.com/adred-codev/bftsim/internal/sim"
)

// Config holds the stochastic parameters of the model.
type Config struct {
	// OmissionProbability is the per-broadcast loss probability in [0,1].
	OmissionProbability float64
	// DelayMin and DelayMax bound the uniform delivery delay in
	// milliseconds; the delay is exactly DelayMin when they coincide.
	DelayMin uint32
	DelayMax uint32
	// Seed initializes the model's RNG. Zero seeds from entropy, which
	// forfeits reproducibility.
	Seed int64
}

// Model owns the RNG so that a fixed seed makes the whole run replayable:
// the scheduler is deterministic and this is the only randomness source.
type Model struct {
	omission float64
	delayMin uint32
	delayMax uint32
	rng      *rand.Rand
	logger   zerolog.Logger
}

// New validates the configuration and builds a Model.
func New(cfg Config, logger zerolog.Logger) (*Model, error) {
	if cfg.OmissionProbability < 0 || cfg.OmissionProbability > 1 {
		return nil, fmt.Errorf("network: omission_probability must be in [0,1], got %g", cfg.OmissionProbability)
	}
	if cfg.DelayMax < cfg.DelayMin {
		return nil, fmt.Errorf("network: delay_max (%d) must be >= delay_min (%d)", cfg.DelayMax, cfg.DelayMin)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}

	return &Model{
		omission: cfg.OmissionProbability,
		delayMin: cfg.DelayMin,
		delayMax: cfg.DelayMax,
		rng:      rand.New(rand.NewSource(seed)),
		logger:   logger,
	}, nil
}

// HandleBroadcast turns a broadcast into a delayed reception at the
// recipient, or drops it. ok=false means the message was omitted.
func (m *Model) HandleBroadcast(now sim.Time, b sim.Broadcast) (sim.Event, bool) {
	if m.omission > 0 && m.rng.Float64() <= m.omission {
		m.logger.Debug().
			Int("from", b.From).
			Int("to", b.To).
			Msg("message omitted")
		monitoring.RecordOmission()
		return sim.Event{}, false
	}

	delay := uint64(m.delayMin)
	if m.delayMin != m.delayMax {
		delay = uint64(m.delayMin) + uint64(m.rng.Int63n(int64(m.delayMax-m.delayMin)))
	}

	return sim.NewReception(b.To, b.Message, now.Add(delay)), true
}
