package zyzzyva

import (
	"github.com/rs/zerolog"

	"github.com/adred-codev/bftsim/internal/sim"
)

// processingDelayMillis models the local work a node performs before its
// outgoing messages hit the wire.
const processingDelayMillis = 5

// Node hosts one Zyzzyva cluster member (client, primary or backup) inside
// the simulation.
type Node struct {
	id     int
	state  *State
	logger zerolog.Logger
}

// NewNode builds a Zyzzyva node for the given configured cluster size
// (replicas plus the client).
func NewNode(id, numOfNodes int, results sim.ResultLogger, logger zerolog.Logger) *Node {
	return &Node{
		id:     id,
		state:  NewState(id, numOfNodes, results, logger),
		logger: logger,
	}
}

// HandleEvent implements sim.Node. A ClientTimeout addressed back to the
// emitting client becomes a timeout event, which the scheduler re-delivers
// after the configured client timeout; everything else is broadcast.
func (n *Node) HandleEvent(r sim.Reception, now sim.Time) []sim.Event {
	n.logger.Debug().
		Int("node", n.id).
		Uint64("time", now.Millis()).
		Msg("zyzzyva node processing reception")

	out := n.state.handleMessage(r.Message, now)
	if len(out) == 0 {
		return nil
	}

	events := make([]sim.Event, 0, len(out))
	for _, d := range out {
		if _, isTimeout := d.msg.(ClientTimeout); isTimeout && d.to == n.id {
			events = append(events, sim.NewTimeout(n.id, d.msg, now))
			continue
		}
		events = append(events, sim.NewBroadcast(n.id, d.to, d.msg, now.Add(processingDelayMillis)))
	}
	return events
}
