package zyzzyva

import (
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adred-codev/bftsim/internal/sim"
)

type recorder struct {
	lines []string
}

func (r *recorder) Record(timeMillis uint64, nodeID int, message string) {
	r.lines = append(r.lines, fmt.Sprintf("%d;%d;%s", timeMillis, nodeID, message))
}

func (r *recorder) countPhase(phase string) int {
	count := 0
	for _, l := range r.lines {
		if strings.HasSuffix(l, ";"+phase) {
			count++
		}
	}
	return count
}

func newTestState(id, n int) (*State, *recorder) {
	rec := &recorder{}
	return NewState(id, n, rec, zerolog.Nop()), rec
}

func specResponse(op uint64, sender int) SpeculativeResponse {
	return SpeculativeResponse{
		Req:      ClientRequest{Operation: op, SenderID: ClientID},
		View:     1,
		Seq:      1,
		SenderID: sender,
	}
}

func TestNewStatePanicsBelowMinimum(t *testing.T) {
	require.Panics(t, func() {
		NewState(1, 4, &recorder{}, zerolog.Nop())
	})
}

func TestRolesAndQuorum(t *testing.T) {
	primary, _ := newTestState(1, 5)
	client, _ := newTestState(2, 5)
	backup, _ := newTestState(3, 5)

	assert.Equal(t, Primary, primary.role)
	assert.Equal(t, Client, client.role)
	assert.Equal(t, Backup, backup.role)

	// 4 internal replicas, f = 1, quorum = 3; the client is not a replica.
	assert.Equal(t, 4, primary.numOfNodes)
	assert.Equal(t, 3, primary.quorumSize)
	assert.ElementsMatch(t, []int{3, 4, 5}, primary.peers)
	assert.ElementsMatch(t, []int{1, 3, 4, 5}, client.peers)
}

func TestClientForwardsRequestAndArmsTimeout(t *testing.T) {
	s, rec := newTestState(ClientID, 5)

	out := s.handleMessage(ClientRequest{Operation: 7, SenderID: 31415}, sim.Time(0))

	require.Len(t, out, 2)

	forwarded, ok := out[0].msg.(ClientRequest)
	require.True(t, ok)
	assert.Equal(t, 1, out[0].to)
	assert.Equal(t, ClientID, forwarded.SenderID)

	timeout, ok := out[1].msg.(ClientTimeout)
	require.True(t, ok)
	assert.Equal(t, ClientID, out[1].to)
	assert.Equal(t, uint64(7), timeout.ReqID)

	assert.Contains(t, s.log, uint64(7))
	assert.Empty(t, rec.lines)
}

func TestPrimarySpeculativelyExecutes(t *testing.T) {
	s, rec := newTestState(1, 5)

	out := s.handleMessage(ClientRequest{Operation: 7, SenderID: ClientID}, sim.Time(3))

	require.Len(t, out, 4)

	resp, ok := out[0].msg.(SpeculativeResponse)
	require.True(t, ok)
	assert.Equal(t, ClientID, out[0].to)
	assert.Equal(t, uint64(1), resp.Seq)

	for _, d := range out[1:] {
		_, ok := d.msg.(OrderRequest)
		require.True(t, ok)
	}

	assert.Equal(t, 1, rec.countPhase("speculative_commit"))
	assert.True(t, s.log[7].speculativeExecution)
}

func TestBackupPanicsOnClientRequest(t *testing.T) {
	s, _ := newTestState(3, 5)
	require.Panics(t, func() {
		s.handleMessage(ClientRequest{Operation: 7, SenderID: ClientID}, sim.Time(0))
	})
}

func TestBackupExecutesOrderRequest(t *testing.T) {
	s, rec := newTestState(3, 5)
	req := ClientRequest{Operation: 7, SenderID: ClientID}

	out := s.handleMessage(OrderRequest{Req: req, View: 1, Seq: 1, SenderID: 1}, sim.Time(4))

	require.Len(t, out, 1)
	assert.Equal(t, ClientID, out[0].to)
	_, ok := out[0].msg.(SpeculativeResponse)
	assert.True(t, ok)
	assert.Equal(t, 1, rec.countPhase("speculative_commit"))
}

func TestOrderRequestWithExistingEntryPanics(t *testing.T) {
	s, _ := newTestState(3, 5)
	order := OrderRequest{
		Req:      ClientRequest{Operation: 7, SenderID: ClientID},
		View:     1,
		Seq:      1,
		SenderID: 1,
	}
	s.handleMessage(order, sim.Time(0))

	require.Panics(t, func() {
		s.handleMessage(order, sim.Time(1))
	})
}

// Fast path (4.a): responses from every replica complete the request without
// any Commit traffic.
func TestFastPathCompletes(t *testing.T) {
	s, rec := newTestState(ClientID, 5)
	s.handleMessage(ClientRequest{Operation: 7, SenderID: 31415}, sim.Time(0))

	for _, sender := range []int{1, 3, 4} {
		out := s.handleMessage(specResponse(7, sender), sim.Time(10))
		assert.Nil(t, out)
	}
	assert.Equal(t, 1, rec.countPhase("commit_certificate"))
	assert.Equal(t, 0, rec.countPhase("completed"))

	out := s.handleMessage(specResponse(7, 5), sim.Time(11))
	assert.Nil(t, out)
	assert.Equal(t, 1, rec.countPhase("completed"))

	// Completed requests are garbage-collected and late traffic is dropped.
	assert.Empty(t, s.log)
	assert.Contains(t, s.committed, uint64(7))
	out = s.handleMessage(specResponse(7, 1), sim.Time(12))
	assert.Nil(t, out)
}

func TestDuplicateResponsesDoNotGrowCertificate(t *testing.T) {
	s, rec := newTestState(ClientID, 5)
	s.handleMessage(ClientRequest{Operation: 7, SenderID: 31415}, sim.Time(0))

	s.handleMessage(specResponse(7, 1), sim.Time(1))
	s.handleMessage(specResponse(7, 1), sim.Time(2))

	assert.Len(t, s.log[7].commitCertificate, 1)
	assert.Equal(t, 0, rec.countPhase("commit_certificate"))
}

// Slow path (4.b): a quorum-sized but incomplete certificate triggers the
// Commit broadcast on timeout, and a quorum of LocalCommits completes.
func TestSlowPathCommitAfterTimeout(t *testing.T) {
	s, rec := newTestState(ClientID, 5)
	s.handleMessage(ClientRequest{Operation: 7, SenderID: 31415}, sim.Time(0))

	for _, sender := range []int{1, 3, 4} {
		s.handleMessage(specResponse(7, sender), sim.Time(10))
	}

	out := s.handleMessage(ClientTimeout{ReqID: 7}, sim.Time(500))
	require.Len(t, out, 4)
	for _, d := range out {
		commit, ok := d.msg.(Commit)
		require.True(t, ok)
		assert.Len(t, commit.Certificate, 3)
		assert.Equal(t, ClientID, commit.SenderID)
	}
	assert.True(t, s.log[7].timedOut)

	// Responses arriving after the timeout no longer count.
	s.handleMessage(specResponse(7, 5), sim.Time(501))
	assert.Len(t, s.log[7].commitCertificate, 3)

	req := ClientRequest{Operation: 7, SenderID: ClientID}
	for _, sender := range []int{1, 3, 4} {
		out := s.handleMessage(LocalCommit{Req: req, View: 1, Seq: 1, SenderID: sender}, sim.Time(510))
		assert.Nil(t, out)
	}

	assert.Equal(t, 1, rec.countPhase("completed"))
	assert.Empty(t, s.log)
}

// Slow path (4.c): below quorum there is nothing to salvage.
func TestTimeoutBelowQuorumLogsTimedOut(t *testing.T) {
	s, rec := newTestState(ClientID, 5)
	s.handleMessage(ClientRequest{Operation: 7, SenderID: 31415}, sim.Time(0))

	s.handleMessage(specResponse(7, 1), sim.Time(10))
	s.handleMessage(specResponse(7, 3), sim.Time(11))

	out := s.handleMessage(ClientTimeout{ReqID: 7}, sim.Time(500))
	assert.Nil(t, out)
	assert.Equal(t, 1, rec.countPhase("timed-out"))
	assert.Equal(t, 0, rec.countPhase("completed"))
}

func TestTimeoutAfterCompletionIsNoOp(t *testing.T) {
	s, rec := newTestState(ClientID, 5)
	s.handleMessage(ClientRequest{Operation: 7, SenderID: 31415}, sim.Time(0))
	for _, sender := range []int{1, 3, 4, 5} {
		s.handleMessage(specResponse(7, sender), sim.Time(10))
	}
	require.Equal(t, 1, rec.countPhase("completed"))

	out := s.handleMessage(ClientTimeout{ReqID: 7}, sim.Time(500))
	assert.Nil(t, out)
	assert.Equal(t, 0, rec.countPhase("timed-out"))
}

func TestCertificateSnapshotIsSenderOrdered(t *testing.T) {
	entry := newLogEntry(ClientRequest{Operation: 7, SenderID: ClientID}, 1, 1)
	for _, sender := range []int{5, 1, 4} {
		entry.commitCertificate[specResponse(7, sender)] = struct{}{}
	}

	snapshot := entry.certificateSnapshot()
	require.Len(t, snapshot, 3)
	assert.Equal(t, 1, snapshot[0].SenderID)
	assert.Equal(t, 4, snapshot[1].SenderID)
	assert.Equal(t, 5, snapshot[2].SenderID)
}

func TestReplicaCommitWithExistingEntry(t *testing.T) {
	s, rec := newTestState(3, 5)
	req := ClientRequest{Operation: 7, SenderID: ClientID}
	s.handleMessage(OrderRequest{Req: req, View: 1, Seq: 1, SenderID: 1}, sim.Time(4))

	commit := Commit{
		ReqID:       7,
		Certificate: []SpeculativeResponse{specResponse(7, 1), specResponse(7, 3), specResponse(7, 4)},
		SenderID:    ClientID,
	}
	out := s.handleMessage(commit, sim.Time(500))

	require.Len(t, out, 1)
	assert.Equal(t, ClientID, out[0].to)
	lc, ok := out[0].msg.(LocalCommit)
	require.True(t, ok)
	assert.Equal(t, 3, lc.SenderID)

	assert.Empty(t, s.log)
	assert.Contains(t, s.committed, uint64(7))
	assert.Equal(t, 0, rec.countPhase("committed_local"))
}

// A replica that never saw the OrderRequest reconstructs the entry from the
// certificate before answering.
func TestReplicaCommitReconstructsEntry(t *testing.T) {
	s, rec := newTestState(4, 5)

	commit := Commit{
		ReqID:       7,
		Certificate: []SpeculativeResponse{specResponse(7, 1), specResponse(7, 3), specResponse(7, 5)},
		SenderID:    ClientID,
	}
	out := s.handleMessage(commit, sim.Time(500))

	require.Len(t, out, 1)
	lc, ok := out[0].msg.(LocalCommit)
	require.True(t, ok)
	assert.Equal(t, uint64(7), lc.Req.Operation)
	assert.Equal(t, 4, lc.SenderID)

	assert.Equal(t, 1, rec.countPhase("committed_local"))
	assert.Contains(t, s.committed, uint64(7))
}

func TestGarbageCollectedRequestIgnoresLateTraffic(t *testing.T) {
	s, rec := newTestState(3, 5)
	req := ClientRequest{Operation: 7, SenderID: ClientID}
	s.handleMessage(OrderRequest{Req: req, View: 1, Seq: 1, SenderID: 1}, sim.Time(4))
	s.handleMessage(Commit{
		ReqID:       7,
		Certificate: []SpeculativeResponse{specResponse(7, 1)},
		SenderID:    ClientID,
	}, sim.Time(500))

	before := len(rec.lines)
	out := s.handleMessage(OrderRequest{Req: req, View: 1, Seq: 1, SenderID: 1}, sim.Time(501))
	assert.Nil(t, out)
	assert.Len(t, rec.lines, before)
}

func TestClientPanicsOnCommit(t *testing.T) {
	s, _ := newTestState(ClientID, 5)
	require.Panics(t, func() {
		s.handleMessage(Commit{ReqID: 7, SenderID: 3}, sim.Time(0))
	})
}

func TestNonClientPanicsOnSpeculativeResponse(t *testing.T) {
	s, _ := newTestState(3, 5)
	require.Panics(t, func() {
		s.handleMessage(specResponse(7, 1), sim.Time(0))
	})
}

func TestNonClientPanicsOnClientTimeout(t *testing.T) {
	s, _ := newTestState(1, 5)
	require.Panics(t, func() {
		s.handleMessage(ClientTimeout{ReqID: 7}, sim.Time(0))
	})
}
