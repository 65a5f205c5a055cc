package p2p

import (
	"github.com/google/uuid"

	"github.com/RedPaladin7/peerbattler/battle"
)

// PeerSession tracks one connection attempt through disconnect. Exactly one
// exists per client at a time; reconnecting means building a new one.
type PeerSession struct {
	LocalID  string
	RemoteID string
	Role     Role
	Conn     ConnectionState
}

func NewPeerSession(remoteID string, role Role) *PeerSession {
	return &PeerSession{
		LocalID:  uuid.NewString(),
		RemoteID: remoteID,
		Role:     role,
		Conn:     ConnOpen,
	}
}

// roundSeedStride spaces the per-round seeds apart so they never repeat
// across rounds of one session.
const roundSeedStride = 100

// RoundSeeds is generated once by the host at session start, transmitted to
// the guest, and immutable thereafter.
type RoundSeeds struct {
	HostPlayerSeed   int64
	GuestPlayerSeed  int64
	SharedBattleSeed int64
	Lives            int
}

// RoundSeed derives the battle seed for one round. Both peers must compute
// this identically or their resolutions diverge.
func (s RoundSeeds) RoundSeed(round int) int64 {
	return s.SharedBattleSeed + int64(round)*roundSeedStride
}

// ReadinessState is the per-round handshake bookkeeping. Zeroed right after
// each resolution.
type ReadinessState struct {
	SelfReady     bool
	OpponentReady bool
	OpponentBoard battle.Board
	TimerTicks    int
}

func (r *ReadinessState) reset() {
	*r = ReadinessState{}
}
