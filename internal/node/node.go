// Package node selects and builds the simulated node implementations.
package node

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/adred-codev/bftsim/internal/node/pbft"
	"github.com/adred-codev/bftsim/internal/node/zyzzyva"
	"github.com/adred-codev/bftsim/internal/sim"
)

// Type enumerates the available node implementations.
type Type int

const (
	TypeDummy Type = iota
	TypePBFT
	TypeZyzzyva
	// TypeRBFT is accepted by the parser but has no implementation yet.
	TypeRBFT
)

// ParseType maps the node.node_type configuration value to a Type.
func ParseType(s string) (Type, error) {
	switch s {
	case "dummy":
		return TypeDummy, nil
	case "pbft":
		return TypePBFT, nil
	case "zyzzyva":
		return TypeZyzzyva, nil
	case "rbft":
		return TypeRBFT, nil
	default:
		return 0, fmt.Errorf("node: unknown node_type %q (allowed: dummy, pbft, zyzzyva, rbft)", s)
	}
}

func (t Type) String() string {
	switch t {
	case TypeDummy:
		return "dummy"
	case TypePBFT:
		return "pbft"
	case TypeZyzzyva:
		return "zyzzyva"
	case TypeRBFT:
		return "rbft"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// BuildCluster constructs the node map for one simulation run. Ids are
// 1-based to match the protocol role assignments.
func BuildCluster(t Type, numOfNodes int, results sim.ResultLogger, logger zerolog.Logger) (map[int]sim.Node, error) {
	nodes := make(map[int]sim.Node, numOfNodes)
	for id := 1; id <= numOfNodes; id++ {
		switch t {
		case TypeDummy:
			nodes[id] = NewDummyNode(id, logger)
		case TypePBFT:
			nodes[id] = pbft.NewNode(id, numOfNodes, results, logger)
		case TypeZyzzyva:
			nodes[id] = zyzzyva.NewNode(id, numOfNodes, results, logger)
		default:
			return nil, fmt.Errorf("node: type %s is not implemented", t)
		}
	}
	return nodes, nil
}

// RequestTarget returns the node id client request batches are injected at:
// the PBFT primary, or the Zyzzyva client.
func RequestTarget(t Type) int {
	if t == TypeZyzzyva {
		return zyzzyva.ClientID
	}
	return 1
}

// NewRequest builds the protocol client-request message for a generated
// operation id. The sender id is a sentinel for "the simulation harness";
// the Zyzzyva client rewrites it before forwarding.
func NewRequest(t Type, op uint64) sim.Message {
	const harnessSenderID = 31415

	switch t {
	case TypePBFT:
		return pbft.ClientRequest{Operation: op, SenderID: harnessSenderID}
	case TypeZyzzyva:
		return zyzzyva.ClientRequest{Operation: op, SenderID: harnessSenderID}
	default:
		return sim.DummyMessage{}
	}
}
