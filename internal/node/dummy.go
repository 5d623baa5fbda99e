package node

import (
	"github.com/rs/zerolog"

	"github.com/adred-codev/bftsim/internal/sim"
)

// DummyNode is the reference handler used to exercise the scheduler and
// network model without protocol logic: node 1 pings node 2 twice, node 2
// pongs back once.
type DummyNode struct {
	id     int
	logger zerolog.Logger
}

// NewDummyNode builds a dummy node.
func NewDummyNode(id int, logger zerolog.Logger) *DummyNode {
	return &DummyNode{id: id, logger: logger}
}

// HandleEvent implements sim.Node.
func (n *DummyNode) HandleEvent(r sim.Reception, now sim.Time) []sim.Event {
	n.logger.Debug().Int("node", n.id).Msg("dummy node processing reception")

	switch n.id {
	case 1:
		return []sim.Event{
			sim.NewBroadcast(n.id, 2, sim.DummyMessage{}, now.Add(5)),
			sim.NewBroadcast(n.id, 2, sim.DummyMessage{}, now.Add(10)),
		}
	case 2:
		return []sim.Event{
			sim.NewBroadcast(n.id, 1, sim.DummyMessage{}, now.Add(50)),
		}
	default:
		return nil
	}
}
