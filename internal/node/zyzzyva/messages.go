package zyzzyva

import "github.com/adred-codev/bftsim/internal/sim"

// The Zyzzyva message catalog.

// ClientRequest asks the cluster to execute an operation. The simulation
// injects it at the client, which re-issues it to the primary with its own
// sender id.
type ClientRequest struct {
	Operation uint64
	SenderID  int
}

func (ClientRequest) Protocol() sim.Protocol { return sim.ProtocolZyzzyva }

// ClientTimeout fires at the client when a request has not completed within
// the configured timeout and decides between the 4.b and 4.c fallbacks.
type ClientTimeout struct {
	ReqID uint64
}

func (ClientTimeout) Protocol() sim.Protocol { return sim.ProtocolZyzzyva }

// OrderRequest is the primary's ordering assignment, broadcast to backups.
type OrderRequest struct {
	Req      ClientRequest
	View     uint64
	Seq      uint64
	SenderID int
}

func (OrderRequest) Protocol() sim.Protocol { return sim.ProtocolZyzzyva }

// SpeculativeResponse is a replica's reply after speculatively executing a
// request; the client aggregates them into the commit certificate.
type SpeculativeResponse struct {
	Req      ClientRequest
	View     uint64
	Seq      uint64
	SenderID int
}

func (SpeculativeResponse) Protocol() sim.Protocol { return sim.ProtocolZyzzyva }

// Commit carries the client's commit certificate to the replicas on the
// slow path (Zyzzyva 4.b).
type Commit struct {
	ReqID       uint64
	Certificate []SpeculativeResponse
	SenderID    int
}

func (Commit) Protocol() sim.Protocol { return sim.ProtocolZyzzyva }

// LocalCommit is a replica's acknowledgment of a Commit, collected by the
// client toward slow-path completion.
type LocalCommit struct {
	Req      ClientRequest
	View     uint64
	Seq      uint64
	SenderID int
}

func (LocalCommit) Protocol() sim.Protocol { return sim.ProtocolZyzzyva }
