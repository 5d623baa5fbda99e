package pbft

import (
	"github.com/rs/zerolog"

	"github.com/adred-codev/bftsim/internal/sim"
)

// processingDelayMillis models the local work a replica performs before its
// outgoing messages hit the wire.
const processingDelayMillis = 5

// Node hosts one replica inside the simulation: it unwraps receptions,
// feeds the state machine and turns its deliveries into broadcast events.
type Node struct {
	id     int
	state  *ReplicaState
	logger zerolog.Logger
}

// NewNode builds a PBFT node for the given cluster size.
func NewNode(id, numOfNodes int, results sim.ResultLogger, logger zerolog.Logger) *Node {
	return &Node{
		id:     id,
		state:  NewReplicaState(id, numOfNodes, results, logger),
		logger: logger,
	}
}

// HandleEvent implements sim.Node.
func (n *Node) HandleEvent(r sim.Reception, now sim.Time) []sim.Event {
	n.logger.Debug().
		Int("node", n.id).
		Uint64("time", now.Millis()).
		Msg("pbft node processing reception")

	out := n.state.handleMessage(r.Message, now)
	if len(out) == 0 {
		return nil
	}

	events := make([]sim.Event, 0, len(out))
	for _, d := range out {
		events = append(events, sim.NewBroadcast(n.id, d.to, d.msg, now.Add(processingDelayMillis)))
	}
	return events
}
