package p2p

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RedPaladin7/peerbattler/battle"
)

func someBoard() battle.Board {
	return battle.Board{
		{TemplateID: "grunt"},
		{TemplateID: "bruiser", AttackDelta: 1},
	}
}

func otherBoard() battle.Board {
	return battle.Board{
		{TemplateID: "tank"},
		{TemplateID: "enrage", HealthDelta: 1},
	}
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

// sink collects resolved battle outputs from a coordinator.
type sink struct {
	mu   sync.Mutex
	outs []battle.Output
}

func (s *sink) record(round int, seed int64, out battle.Output) {
	s.mu.Lock()
	s.outs = append(s.outs, out)
	s.mu.Unlock()
}

func (s *sink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outs)
}

func (s *sink) last() battle.Output {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outs[len(s.outs)-1]
}

// newTestPair builds a connected host/guest coordinator pair with fixed
// seeds and a fast readiness tick.
func newTestPair(t *testing.T) (host, guest *Coordinator, hostSink, guestSink *sink) {
	t.Helper()
	hostAddr := freeAddr(t)
	guestAddr := freeAddr(t)

	hostSink = &sink{}
	guestSink = &sink{}

	host = NewCoordinator(CoordinatorConfig{
		Version:      "1.0.0",
		ListenAddr:   hostAddr,
		TickInterval: 5 * time.Millisecond,
	}, battle.SimEngine{}, hostSink.record)
	host.newSeeds = func() RoundSeeds {
		return RoundSeeds{HostPlayerSeed: 11, GuestPlayerSeed: 22, SharedBattleSeed: 100, Lives: 3}
	}
	t.Cleanup(host.Stop)

	guest = NewCoordinator(CoordinatorConfig{
		Version:      "1.0.0",
		ListenAddr:   guestAddr,
		TickInterval: 5 * time.Millisecond,
	}, battle.SimEngine{}, guestSink.record)
	t.Cleanup(guest.Stop)

	host.Host()
	require.Eventually(t, func() bool {
		if guest.Session() != nil {
			return true
		}
		return guest.Join(hostAddr) == nil
	}, 2*time.Second, 10*time.Millisecond, "guest could not reach host")

	require.Eventually(t, func() bool {
		return host.Session() != nil && guest.Session() != nil
	}, 2*time.Second, time.Millisecond, "sessions never formed")

	assert.Equal(t, RoleHost, host.Session().Role)
	assert.Equal(t, RoleGuest, guest.Session().Role)
	return host, guest, hostSink, guestSink
}

func beginSession(t *testing.T, host, guest *Coordinator) {
	t.Helper()
	require.NoError(t, host.BeginSession())
	require.Eventually(t, func() bool {
		_, ok := guest.Seeds()
		return ok
	}, 2*time.Second, time.Millisecond, "guest never received seeds")
}

func TestSeedDistribution(t *testing.T) {
	host, guest, _, _ := newTestPair(t)
	beginSession(t, host, guest)

	hostSeeds, ok := host.Seeds()
	require.True(t, ok)
	guestSeeds, ok := guest.Seeds()
	require.True(t, ok)

	assert.Equal(t, int64(11), hostSeeds.HostPlayerSeed)
	assert.Equal(t, int64(22), guestSeeds.GuestPlayerSeed, "guest starts with its own player seed")
	assert.Equal(t, int64(100), guestSeeds.SharedBattleSeed)
	assert.Equal(t, 3, guestSeeds.Lives)

	// Round 1 derives to 100 + 1*100 on both sides.
	assert.Equal(t, int64(200), hostSeeds.RoundSeed(1))
	assert.Equal(t, int64(200), guestSeeds.RoundSeed(1))

	assert.Equal(t, 1, host.Round())
	assert.Equal(t, 1, guest.Round())
	assert.Equal(t, StateInRound, host.State())
	assert.Equal(t, StateInRound, guest.State())
}

func TestBeginSessionIsIdempotent(t *testing.T) {
	host, guest, _, _ := newTestPair(t)
	beginSession(t, host, guest)

	before, _ := guest.Seeds()
	require.NoError(t, host.BeginSession())
	require.NoError(t, host.BeginSession())

	time.Sleep(30 * time.Millisecond)
	after, _ := guest.Seeds()
	assert.Equal(t, before, after, "duplicate BeginSession must not regenerate or resend seeds")
	assert.Equal(t, 1, host.Round())
}

func TestBeginSessionGuestRejected(t *testing.T) {
	host, guest, _, _ := newTestPair(t)
	_ = host

	require.Error(t, guest.BeginSession())
}

func TestFullRoundResolvesOnBothSides(t *testing.T) {
	host, guest, hostSink, guestSink := newTestPair(t)
	beginSession(t, host, guest)

	require.NoError(t, host.SubmitReady(someBoard()))
	require.NoError(t, guest.SubmitReady(otherBoard()))

	require.Eventually(t, func() bool {
		return hostSink.count() == 1 && guestSink.count() == 1
	}, 2*time.Second, time.Millisecond, "round never resolved on both sides")

	hostOut := hostSink.last()
	guestOut := guestSink.last()

	// Each side sees itself as the player, so the outcomes mirror.
	assert.Equal(t, len(hostOut.Events), len(guestOut.Events))
	switch hostOut.Winner {
	case battle.SidePlayer:
		assert.Equal(t, battle.SideEnemy, guestOut.Winner)
	case battle.SideEnemy:
		assert.Equal(t, battle.SidePlayer, guestOut.Winner)
	default:
		assert.Equal(t, battle.SideNone, guestOut.Winner)
	}
	assert.Equal(t, len(someBoard()), len(hostOut.InitialPlayer))
	assert.Equal(t, len(otherBoard()), len(hostOut.InitialEnemy))

	// Readiness resets and the round advances on both sides.
	require.Eventually(t, func() bool {
		return host.Round() == 2 && guest.Round() == 2
	}, time.Second, time.Millisecond)
	hr := host.Readiness()
	assert.False(t, hr.SelfReady)
	assert.False(t, hr.OpponentReady)
	assert.Nil(t, hr.OpponentBoard)
}

func TestEmptyBoardResolvesRound(t *testing.T) {
	// A player may legitimately field zero units. gob drops the zero-length
	// slice on the wire, so the receiver must still count the board as
	// received and resolve instead of stalling the round on one side.
	host, guest, hostSink, guestSink := newTestPair(t)
	beginSession(t, host, guest)

	require.NoError(t, host.SubmitReady(someBoard()))
	require.NoError(t, guest.SubmitReady(battle.Board{}))

	require.Eventually(t, func() bool {
		return hostSink.count() == 1 && guestSink.count() == 1
	}, 2*time.Second, time.Millisecond, "empty-board round never resolved on both sides")

	assert.Equal(t, battle.SidePlayer, hostSink.last().Winner)
	assert.Equal(t, battle.SideEnemy, guestSink.last().Winner)
	assert.Empty(t, hostSink.last().InitialEnemy)

	require.Eventually(t, func() bool {
		return host.Round() == 2 && guest.Round() == 2
	}, time.Second, time.Millisecond, "both sides advance past the empty-board round")
}

func TestForcedSubmitWithUnsetBoardResolves(t *testing.T) {
	// The countdown submits CurrentBoard(), which is nil when the shop never
	// set one. That must behave like an explicit zero-unit submission.
	host, guest, hostSink, guestSink := newTestPair(t)
	beginSession(t, host, guest)

	require.NoError(t, guest.SubmitReady(otherBoard()))

	require.Eventually(t, func() bool {
		return hostSink.count() == 1 && guestSink.count() == 1
	}, 2*time.Second, time.Millisecond, "nil-board timeout never resolved the round")

	assert.Empty(t, hostSink.last().InitialPlayer)
	assert.Equal(t, battle.SideEnemy, hostSink.last().Winner)
}

func TestSubmitReadyIsIdempotent(t *testing.T) {
	host, guest, hostSink, _ := newTestPair(t)
	beginSession(t, host, guest)

	require.NoError(t, host.SubmitReady(someBoard()))
	require.NoError(t, host.SubmitReady(someBoard()))
	require.NoError(t, host.SubmitReady(someBoard()))

	require.NoError(t, guest.SubmitReady(otherBoard()))
	require.Eventually(t, func() bool {
		return hostSink.count() == 1
	}, 2*time.Second, time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, hostSink.count(), "repeat SubmitReady must not resolve twice")
}

func TestReadinessTimeoutForcesSubmission(t *testing.T) {
	// Opponent goes ready while the local player sits in the shop: after
	// the full countdown the current board is submitted for them, once.
	host, guest, hostSink, guestSink := newTestPair(t)
	beginSession(t, host, guest)

	host.SetCurrentBoard(someBoard())
	require.NoError(t, guest.SubmitReady(otherBoard()))

	require.Eventually(t, func() bool {
		return host.Readiness().OpponentReady
	}, 2*time.Second, time.Millisecond)
	assert.False(t, host.Readiness().SelfReady)

	// 20 ticks at 5ms: the forced submission lands well within a second.
	require.Eventually(t, func() bool {
		return hostSink.count() == 1 && guestSink.count() == 1
	}, 2*time.Second, time.Millisecond, "forced submission never resolved the round")

	assert.Equal(t, len(someBoard()), len(hostSink.last().InitialPlayer),
		"the board captured at timeout is the one that fought")

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, hostSink.count(), "the countdown must force exactly one submission")
	assert.Equal(t, 2, host.Round())
}

func TestTimerCancelledWhenSelfReady(t *testing.T) {
	host, guest, hostSink, _ := newTestPair(t)
	beginSession(t, host, guest)

	require.NoError(t, guest.SubmitReady(otherBoard()))
	require.Eventually(t, func() bool {
		return host.Readiness().OpponentReady
	}, 2*time.Second, time.Millisecond)

	// Submit manually before the countdown can elapse.
	require.NoError(t, host.SubmitReady(someBoard()))
	require.Eventually(t, func() bool {
		return hostSink.count() == 1
	}, 2*time.Second, time.Millisecond)

	time.Sleep(150 * time.Millisecond) // past where the countdown would fire
	assert.Equal(t, 1, hostSink.count(), "no forced submission after manual ready")
	assert.Zero(t, host.Readiness().TimerTicks)
}

func TestDisconnectTearsDownSession(t *testing.T) {
	host, guest, _, _ := newTestPair(t)
	beginSession(t, host, guest)

	guest.Stop()

	require.Eventually(t, func() bool {
		return host.State() == StateDisconnected
	}, 2*time.Second, time.Millisecond)
	assert.Nil(t, host.Session())
	_, ok := host.Seeds()
	assert.False(t, ok, "no in-flight round state survives a disconnect")
	assert.Equal(t, 0, host.Round())
}

func TestUnexpectedMessageIsIgnored(t *testing.T) {
	// A START_GAME arriving at the host is a protocol error: logged and
	// dropped, never a crash or a state change.
	host, guest, _, _ := newTestPair(t)
	beginSession(t, host, guest)

	guest.lock.RLock()
	peer := guest.peer
	guest.lock.RUnlock()
	require.NoError(t, guest.sendPayload(peer, MessageStartGame{PlayerSeed: 1, BattleSeed: 2, Lives: 9}))

	time.Sleep(50 * time.Millisecond)
	seeds, ok := host.Seeds()
	require.True(t, ok)
	assert.Equal(t, int64(100), seeds.SharedBattleSeed, "host seeds untouched")
	assert.Equal(t, StateInRound, host.State())
}

func TestExtraPeerIsRefused(t *testing.T) {
	host, guest, _, _ := newTestPair(t)
	beginSession(t, host, guest)
	hostAddr := host.ListenAddr

	third := NewCoordinator(CoordinatorConfig{
		Version:    "1.0.0",
		ListenAddr: freeAddr(t),
	}, battle.SimEngine{}, nil)
	t.Cleanup(third.Stop)

	require.NoError(t, third.Join(hostAddr))

	// The host closes the extra connection; its own session is untouched.
	require.Eventually(t, func() bool {
		return third.State() == StateDisconnected
	}, 2*time.Second, time.Millisecond)
	require.NotNil(t, host.Session())
	assert.Equal(t, guest.ListenAddr, host.Session().RemoteID)
}

func TestJoinUnreachableHostReturnsToIdle(t *testing.T) {
	c := NewCoordinator(CoordinatorConfig{
		Version:    "1.0.0",
		ListenAddr: freeAddr(t),
	}, battle.SimEngine{}, nil)
	t.Cleanup(c.Stop)

	// Nothing listens on this address.
	require.Error(t, c.Join(freeAddr(t)))
	assert.Equal(t, StateIdle, c.State())
}

func TestAuthoritativeOutcomeIsTrusted(t *testing.T) {
	host, guest, hostSink, _ := newTestPair(t)
	beginSession(t, host, guest)

	reported, err := battle.SimEngine{}.Resolve(someBoard(), otherBoard(), 200)
	require.NoError(t, err)
	reported.Winner = battle.SideEnemy // deliberately diverge

	host.SetAuthoritative(func(round int, seed int64) (battle.Output, bool) {
		return reported, true
	})

	require.NoError(t, host.SubmitReady(someBoard()))
	require.NoError(t, guest.SubmitReady(otherBoard()))

	require.Eventually(t, func() bool {
		return hostSink.count() == 1
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, battle.SideEnemy, hostSink.last().Winner, "reported outcome wins on mismatch")
}
