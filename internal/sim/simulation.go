package sim

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/adred-codev/bftsim/internal/monitoring"
)

// Default idle-drain parameters. With stochastic omissions the queue can run
// dry before every request reaches a terminal state; once the queue has been
// empty for IdleTimeout of wall-clock time, the scheduler stops itself.
const (
	defaultIdleTimeout = 1 * time.Second
	defaultDrainSleep  = 500 * time.Millisecond
)

// Params wires a Simulation. Nodes, Network and Results are mandatory;
// zero durations fall back to the defaults above.
type Params struct {
	// Nodes maps node id to handler. Ids are 1-based and dense.
	Nodes map[int]Node
	// Network delays or drops broadcasts.
	Network NetworkModel
	// Results receives per-transition records and the final
	// "Simulation finished" line.
	Results ResultLogger
	// Logger is the simulation debug logger.
	Logger zerolog.Logger

	// ClientTimeoutMillis is added to a Timeout event's pop time to
	// materialize it into a delayed reception.
	ClientTimeoutMillis uint64

	// RequestTarget is the node id client request batches are addressed to.
	RequestTarget int
	// NewRequest builds a protocol client-request message for an operation id.
	NewRequest func(op uint64) Message

	// IdleTimeout and DrainSleep tune the idle-drain shutdown. Tests shrink
	// them; production runs keep the defaults.
	IdleTimeout time.Duration
	DrainSleep  time.Duration
}

// Simulation owns the single-timeline event loop: a time-ordered queue, the
// node map, the network model and the virtual clock. All handlers run
// sequentially on the loop goroutine; the only auxiliary goroutine bridges
// the external admin channel into the queue.
type Simulation struct {
	queue   *eventQueue
	nodes   map[int]Node
	network NetworkModel
	results ResultLogger
	logger  zerolog.Logger

	now            Time
	requestCounter uint64

	clientTimeout uint64
	requestTarget int
	newRequest    func(op uint64) Message

	idleTimeout time.Duration
	drainSleep  time.Duration

	external chan AdminEvent
}

// New builds a Simulation and starts the admin listener goroutine.
func New(p Params) (*Simulation, error) {
	if len(p.Nodes) == 0 {
		return nil, fmt.Errorf("sim: no nodes configured")
	}
	if p.Network == nil {
		return nil, fmt.Errorf("sim: network model is required")
	}
	if p.Results == nil {
		return nil, fmt.Errorf("sim: result logger is required")
	}
	if p.NewRequest == nil {
		return nil, fmt.Errorf("sim: request factory is required")
	}
	if p.IdleTimeout <= 0 {
		p.IdleTimeout = defaultIdleTimeout
	}
	if p.DrainSleep <= 0 {
		p.DrainSleep = defaultDrainSleep
	}

	s := &Simulation{
		queue:          newEventQueue(),
		nodes:          p.Nodes,
		network:        p.Network,
		results:        p.Results,
		logger:         p.Logger,
		requestCounter: 1,
		clientTimeout:  p.ClientTimeoutMillis,
		requestTarget:  p.RequestTarget,
		newRequest:     p.NewRequest,
		idleTimeout:    p.IdleTimeout,
		drainSleep:     p.DrainSleep,
		external:       make(chan AdminEvent, 16),
	}
	go s.receive()
	return s, nil
}

// Sender returns the endpoint external callers use to inject admin events.
// Closing the channel is not part of the contract; send AdminStop instead.
func (s *Simulation) Sender() chan<- AdminEvent {
	return s.external
}

// receive bridges the external channel into the shared queue. Its only
// operation is push-under-mutex; it exits after forwarding a stop.
func (s *Simulation) receive() {
	s.logger.Debug().Msg("admin listener started")
	for admin := range s.external {
		s.logger.Debug().Int("admin_kind", int(admin.Kind)).Msg("admin event received")
		switch admin.Kind {
		case AdminStop:
			s.queue.push(NewAdminStop())
			s.logger.Debug().Msg("admin listener terminating")
			return
		case AdminClientRequests:
			s.queue.push(NewAdminRequests(admin.Batch))
		default:
			panic(fmt.Sprintf("sim: unknown admin kind %d on external channel", admin.Kind))
		}
	}
}

// Run executes the event loop until an admin stop arrives, either injected
// externally or raised by the idle drain. It blocks the calling goroutine.
func (s *Simulation) Run() {
	s.logger.Info().Int("nodes", len(s.nodes)).Msg("simulation started")

	var idleSince *time.Time

	for {
		event, ok := s.queue.pop()
		if !ok {
			if idleSince == nil {
				t := time.Now()
				idleSince = &t
				continue
			}
			if time.Since(*idleSince) > s.idleTimeout {
				// The queue ran dry for a full drain window; request a stop
				// through the regular admin path so it pops next iteration.
				s.logger.Info().Msg("queue drained, sending termination signal")
				s.external <- AdminEvent{Kind: AdminStop}
				t := time.Now()
				idleSince = &t
			}
			time.Sleep(s.drainSleep)
			continue
		}
		idleSince = nil

		s.logger.Debug().
			Stringer("kind", event.Kind).
			Uint64("time", event.Time.Millis()).
			Msg("processing event")
		monitoring.RecordEvent(event.Kind.String())
		monitoring.SetQueueDepth(s.queue.len())

		switch event.Kind {
		case KindAdmin:
			switch event.Admin.Kind {
			case AdminStop:
				s.logger.Info().Msg("received admin stop event, stopping simulation")
				s.results.Record(s.now.Millis(), -1, "Simulation finished")
				return
			case AdminClientRequests:
				events := event.Admin.Batch.createEvents(&s.requestCounter, s.now, s.requestTarget, s.newRequest)
				s.pushAll(events)
			}
		case KindReception:
			s.advance(event.Time)
			node, ok := s.nodes[event.Reception.To]
			if !ok {
				panic(fmt.Sprintf("sim: message addressed to non-existent node id %d", event.Reception.To))
			}
			monitoring.RecordDelivery()
			s.pushAll(node.HandleEvent(event.Reception, s.now))
		case KindBroadcast:
			s.advance(event.Time)
			if reception, ok := s.network.HandleBroadcast(s.now, event.Broadcast); ok {
				s.queue.push(reception)
			}
		case KindTimeout:
			s.advance(event.Time)
			at := s.now.Add(s.clientTimeout)
			s.queue.push(NewReception(event.Timeout.ClientID, event.Timeout.Message, at))
		case KindNetwork:
			s.logger.Warn().Msg("network events are not implemented yet")
		}
	}
}

// advance moves the virtual clock to the popped event's timestamp. An event
// from the past means the queue ordering broke, which is unrecoverable.
func (s *Simulation) advance(to Time) {
	if to.Before(s.now) {
		panic(fmt.Sprintf("sim: popped event at %s behind current time %s", to, s.now))
	}
	s.now = to
}

func (s *Simulation) pushAll(events []Event) {
	for _, e := range events {
		s.logger.Debug().
			Stringer("kind", e.Kind).
			Uint64("time", e.Time.Millis()).
			Msg("queueing event")
		s.queue.push(e)
	}
}
