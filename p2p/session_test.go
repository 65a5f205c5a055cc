package p2p

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundSeedDerivation(t *testing.T) {
	seeds := RoundSeeds{
		HostPlayerSeed:   11,
		GuestPlayerSeed:  22,
		SharedBattleSeed: 100,
		Lives:            3,
	}

	assert.Equal(t, int64(200), seeds.RoundSeed(1))
	assert.Equal(t, int64(300), seeds.RoundSeed(2))
	assert.Equal(t, int64(1100), seeds.RoundSeed(10))
}

func TestRoundSeedUniqueAcrossRounds(t *testing.T) {
	seeds := RoundSeeds{SharedBattleSeed: 7777}

	seen := map[int64]int{}
	for round := 1; round <= 100; round++ {
		s := seeds.RoundSeed(round)
		prev, dup := seen[s]
		require.False(t, dup, "round %d reuses the seed of round %d", round, prev)
		seen[s] = round
	}
}

func TestNewPeerSession(t *testing.T) {
	s := NewPeerSession("localhost:3001", RoleHost)

	assert.NotEmpty(t, s.LocalID)
	assert.Equal(t, "localhost:3001", s.RemoteID)
	assert.Equal(t, RoleHost, s.Role)
	assert.Equal(t, ConnOpen, s.Conn)

	other := NewPeerSession("localhost:3002", RoleGuest)
	assert.NotEqual(t, s.LocalID, other.LocalID)
}

func TestReadinessStateReset(t *testing.T) {
	r := ReadinessState{SelfReady: true, OpponentReady: true, OpponentBoard: someBoard(), TimerTicks: 12}
	r.reset()

	assert.False(t, r.SelfReady)
	assert.False(t, r.OpponentReady)
	assert.Nil(t, r.OpponentBoard)
	assert.Zero(t, r.TimerTicks)
}
