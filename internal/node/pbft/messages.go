package pbft

import "github.com/adred-codev/bftsim/internal/sim"

// The PBFT message catalog. All messages are plain value types so quorum
// sets can rely on structural equality for deduplication.

// ClientRequest asks the cluster to execute an operation. Operation doubles
// as the stable request identifier replicas key their logs on.
type ClientRequest struct {
	Operation uint64
	SenderID  int
}

func (ClientRequest) Protocol() sim.Protocol { return sim.ProtocolPBFT }

// ClientResponse is sent back to a client after a replica committed locally.
// Replicas never receive one.
type ClientResponse struct {
	Result   uint64
	SenderID int
}

func (ClientResponse) Protocol() sim.Protocol { return sim.ProtocolPBFT }

// PrePrepare is sent by the primary to start agreement on a request.
type PrePrepare struct {
	Req      ClientRequest
	View     uint64
	Seq      uint64
	SenderID int
}

func (PrePrepare) Protocol() sim.Protocol { return sim.ProtocolPBFT }

// Prepare is a backup's vote for the primary's ordering.
type Prepare struct {
	Req      ClientRequest
	View     uint64
	Seq      uint64
	SenderID int
}

func (Prepare) Protocol() sim.Protocol { return sim.ProtocolPBFT }

// Commit is a replica's vote to commit a prepared request.
type Commit struct {
	Req      ClientRequest
	View     uint64
	Seq      uint64
	SenderID int
}

func (Commit) Protocol() sim.Protocol { return sim.ProtocolPBFT }
