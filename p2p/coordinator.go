package p2p

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/RedPaladin7/peerbattler/battle"
)

const (
	dialTimeout  = 3 * time.Second
	defaultLives = 3
)

type CoordinatorConfig struct {
	Version    string
	ListenAddr string
	// TickInterval is the readiness countdown tick, one second in play.
	// Injectable so tests do not wait out real seconds.
	TickInterval time.Duration
}

// BattleSink receives the outcome of one resolved round. The coordinator and
// the replay layer are connected only through this value.
type BattleSink func(round int, seed int64, out battle.Output)

// AuthoritativeSource optionally supplies an externally reported outcome for
// a round. When present, the locally computed outcome is checked against it
// and the reported one is trusted on mismatch.
type AuthoritativeSource func(round int, seed int64) (battle.Output, bool)

// Coordinator owns the session lifecycle: hosting/joining, the advisory
// handshake, seed distribution, per-round readiness negotiation and the
// automatic resolution trigger. All round math is local; the only things on
// the wire are seeds and boards, never outcomes.
type Coordinator struct {
	CoordinatorConfig
	engine    battle.Engine
	transport *TCPTransport
	addPeer   chan *Peer
	delPeer   chan *Peer
	msgch     chan *Message
	quit      chan struct{}

	state *AtomicInt

	lock         sync.RWMutex
	peer         *Peer
	session      *PeerSession
	seeds        *RoundSeeds
	readiness    ReadinessState
	round        int
	currentBoard battle.Board
	started      bool
	timer        *ReadinessTimer

	newSeeds      func() RoundSeeds
	onBattle      BattleSink
	authoritative AuthoritativeSource
	stopOnce      sync.Once
}

func NewCoordinator(cfg CoordinatorConfig, engine battle.Engine, onBattle BattleSink) *Coordinator {
	if cfg.TickInterval == 0 {
		cfg.TickInterval = time.Second
	}
	c := &Coordinator{
		CoordinatorConfig: cfg,
		engine:            engine,
		addPeer:           make(chan *Peer, 10),
		delPeer:           make(chan *Peer, 10),
		msgch:             make(chan *Message, 100),
		quit:              make(chan struct{}),
		state:             NewAtomicInt(int32(StateIdle)),
		onBattle:          onBattle,
	}
	seedRng := rand.New(rand.NewSource(time.Now().UnixNano()))
	c.newSeeds = func() RoundSeeds {
		return RoundSeeds{
			HostPlayerSeed:   seedRng.Int63(),
			GuestPlayerSeed:  seedRng.Int63(),
			SharedBattleSeed: seedRng.Int63(),
			Lives:            defaultLives,
		}
	}
	tr := NewTCPTransport(cfg.ListenAddr)
	c.transport = tr
	tr.AddPeer = c.addPeer
	tr.DelPeer = c.delPeer

	go c.loop()
	return c
}

// SetAuthoritative wires an external outcome source for determinism checks.
func (c *Coordinator) SetAuthoritative(src AuthoritativeSource) {
	c.lock.Lock()
	c.authoritative = src
	c.lock.Unlock()
}

func (c *Coordinator) State() SessionState { return SessionState(c.state.Get()) }

func (c *Coordinator) Session() *PeerSession {
	c.lock.RLock()
	defer c.lock.RUnlock()
	if c.session == nil {
		return nil
	}
	cp := *c.session
	return &cp
}

func (c *Coordinator) Round() int {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.round
}

func (c *Coordinator) Seeds() (RoundSeeds, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	if c.seeds == nil {
		return RoundSeeds{}, false
	}
	return *c.seeds, true
}

func (c *Coordinator) Readiness() ReadinessState {
	c.lock.RLock()
	defer c.lock.RUnlock()
	r := c.readiness
	r.OpponentBoard = cloneBoard(r.OpponentBoard)
	if c.timer != nil {
		r.TimerTicks = c.timer.Remaining()
	}
	return r
}

// CurrentBoard is the locally held shop board, captured at submission time
// before any opponent round effects can touch local state.
func (c *Coordinator) CurrentBoard() battle.Board {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return cloneBoard(c.currentBoard)
}

func (c *Coordinator) SetCurrentBoard(board battle.Board) {
	c.lock.Lock()
	c.currentBoard = cloneBoard(board)
	c.lock.Unlock()
}

// Host opens the channel acceptor. The first inbound connection becomes the
// session with role Host. If the transport cannot initialize, the failure is
// logged and the coordinator stays Idle.
func (c *Coordinator) Host() {
	if c.State() != StateIdle {
		logrus.Warnf("cannot host from state %s", c.State())
		return
	}
	c.state.Set(int32(StateHosting))
	go func() {
		if err := c.transport.ListenAndAccept(); err != nil {
			logrus.WithFields(logrus.Fields{
				"addr": c.ListenAddr,
				"err":  err,
			}).Error("transport failed")
			if c.State() == StateHosting {
				c.state.Set(int32(StateIdle))
			}
		}
	}()
	logrus.WithFields(logrus.Fields{
		"addr": c.ListenAddr,
	}).Info("hosting, waiting for a challenger")
}

// Join dials an existing host. On timeout or error it logs the failure and
// returns to Idle; it never retries automatically.
func (c *Coordinator) Join(remoteAddr string) error {
	if c.State() != StateIdle {
		return fmt.Errorf("cannot join from state %s", c.State())
	}
	c.state.Set(int32(StateJoining))
	conn, err := net.DialTimeout("tcp", remoteAddr, dialTimeout)
	if err != nil {
		c.state.Set(int32(StateIdle))
		logrus.WithFields(logrus.Fields{
			"remote": remoteAddr,
			"err":    err,
		}).Error("join failed")
		return err
	}
	c.addPeer <- &Peer{
		conn:       conn,
		outbound:   true,
		listenAddr: remoteAddr,
	}
	return nil
}

// BeginSession generates the session seeds and distributes them to the
// guest. Host only, and guarded so a re-entrant second call is a no-op.
func (c *Coordinator) BeginSession() error {
	c.lock.Lock()
	if c.started {
		c.lock.Unlock()
		logrus.Debug("session already started, ignoring duplicate BeginSession")
		return nil
	}
	if c.session == nil || c.session.Role != RoleHost {
		c.lock.Unlock()
		return fmt.Errorf("only the host of an open session can begin it")
	}
	c.started = true
	seeds := c.newSeeds()
	c.seeds = &seeds
	c.round = 1
	c.state.Set(int32(StateSeedDistributed))
	peer := c.peer
	c.lock.Unlock()

	msg := MessageStartGame{
		PlayerSeed: seeds.GuestPlayerSeed,
		BattleSeed: seeds.SharedBattleSeed,
		Lives:      seeds.Lives,
	}
	if err := c.sendPayload(peer, msg); err != nil {
		logrus.Errorf("failed to send start game: %s", err)
		return err
	}
	c.state.Set(int32(StateInRound))
	logrus.WithFields(logrus.Fields{
		"lives": seeds.Lives,
		"round": 1,
	}).Info("session started, seeds distributed")
	return nil
}

// SubmitReady finalizes the local turn: marks the player ready and transmits
// the board. Idempotent — once ready for the round, further calls are no-ops
// and nothing is re-sent.
func (c *Coordinator) SubmitReady(board battle.Board) error {
	c.lock.Lock()
	if c.readiness.SelfReady {
		c.lock.Unlock()
		return nil
	}
	if c.seeds == nil || c.peer == nil {
		c.lock.Unlock()
		return fmt.Errorf("no round in progress")
	}
	// Zero units is a legal turn; the forced-timeout path can also hand us a
	// nil board when the shop never set one.
	if board == nil {
		board = battle.Board{}
	}
	c.readiness.SelfReady = true
	c.currentBoard = cloneBoard(board)
	c.cancelTimerLocked()
	if !c.readiness.OpponentReady {
		c.state.Set(int32(StateAwaitingReadiness))
	}
	peer := c.peer
	deliver := c.maybeResolveLocked()
	c.lock.Unlock()

	if err := c.sendPayload(peer, MessageEndTurnReady{Board: board}); err != nil {
		logrus.Errorf("failed to send end turn: %s", err)
	}
	if deliver != nil {
		deliver()
	}
	return nil
}

func (c *Coordinator) loop() {
	for {
		select {
		case <-c.quit:
			return
		case peer := <-c.delPeer:
			c.handleDelPeer(peer)
		case peer := <-c.addPeer:
			c.handleNewPeer(peer)
		case msg := <-c.msgch:
			if err := c.handleMessage(msg); err != nil {
				logrus.Errorf("message handler error: %s", err)
			}
		}
	}
}

func (c *Coordinator) handleNewPeer(peer *Peer) {
	c.lock.Lock()
	if c.peer != nil {
		c.lock.Unlock()
		logrus.WithFields(logrus.Fields{
			"remote": peer.conn.RemoteAddr(),
		}).Warn("already in a session, refusing extra peer")
		peer.conn.Close()
		return
	}
	role := RoleHost
	if peer.outbound {
		role = RoleGuest
	}
	if peer.listenAddr == "" {
		peer.listenAddr = peer.conn.RemoteAddr().String()
	}
	c.peer = peer
	c.session = NewPeerSession(peer.listenAddr, role)
	c.state.Set(int32(StateHandshaking))
	c.lock.Unlock()

	go peer.ReadLoop(c.msgch, c.delPeer)

	if err := c.sendPayload(peer, Handshake{Version: c.Version, ListenAddr: c.ListenAddr}); err != nil {
		logrus.Errorf("failed to send handshake: %s", err)
	}
	logrus.WithFields(logrus.Fields{
		"remote": peer.listenAddr,
		"role":   role,
	}).Info("peer connected")
}

// handleDelPeer is the single escape hatch: channel close or error from any
// state forces Disconnected and drops all in-flight round state. Continuing
// requires a fresh host/join.
func (c *Coordinator) handleDelPeer(peer *Peer) {
	c.lock.Lock()
	if c.peer != peer {
		c.lock.Unlock()
		return
	}
	c.cancelTimerLocked()
	remote := peer.listenAddr
	c.peer = nil
	c.session = nil
	c.seeds = nil
	c.started = false
	c.round = 0
	c.currentBoard = nil
	c.readiness.reset()
	c.state.Set(int32(StateDisconnected))
	c.lock.Unlock()

	logrus.WithFields(logrus.Fields{
		"remote": remote,
	}).Info("peer disconnected, session torn down")
}

func (c *Coordinator) handleMessage(msg *Message) error {
	switch v := msg.Payload.(type) {
	case Handshake:
		c.handleHandshake(msg.From, v)
	case MessageStartGame:
		c.handleStartGame(v)
	case MessageEndTurnReady:
		c.handleOpponentReady(v.Board)
	default:
		// Protocol errors never crash the session.
		logrus.Warnf("ignoring unexpected message type from %s", msg.From)
	}
	return nil
}

// handleHandshake records the greeting. It is advisory: a version mismatch
// is worth a warning but never blocks game start.
func (c *Coordinator) handleHandshake(from string, hs Handshake) {
	c.lock.Lock()
	if c.peer != nil && hs.ListenAddr != "" {
		c.peer.listenAddr = hs.ListenAddr
		if c.session != nil {
			c.session.RemoteID = hs.ListenAddr
		}
	}
	c.lock.Unlock()

	if hs.Version != c.Version {
		logrus.WithFields(logrus.Fields{
			"ours":   c.Version,
			"theirs": hs.Version,
			"remote": from,
		}).Warn("version mismatch in handshake")
		return
	}
	logrus.WithFields(logrus.Fields{
		"remote":  from,
		"version": hs.Version,
	}).Info("handshake received")
}

func (c *Coordinator) handleStartGame(msg MessageStartGame) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.session == nil || c.session.Role != RoleGuest {
		logrus.Warn("ignoring START_GAME: not a guest in an open session")
		return
	}
	if c.seeds != nil {
		logrus.Warn("ignoring duplicate START_GAME")
		return
	}
	c.seeds = &RoundSeeds{
		GuestPlayerSeed:  msg.PlayerSeed,
		SharedBattleSeed: msg.BattleSeed,
		Lives:            msg.Lives,
	}
	c.round = 1
	c.state.Set(int32(StateSeedDistributed))
	c.state.Set(int32(StateInRound))
	logrus.WithFields(logrus.Fields{
		"lives": msg.Lives,
		"round": 1,
	}).Info("received seeds, round started")
}

func (c *Coordinator) handleOpponentReady(board battle.Board) {
	c.lock.Lock()
	if c.seeds == nil {
		c.lock.Unlock()
		logrus.Warn("ignoring END_TURN_READY before seed distribution")
		return
	}
	// gob drops zero-length slices on the wire, so an empty board arrives as
	// nil. Normalize before storing: a board with zero units is a valid
	// submission, and the resolution trigger reads nil as "not received yet".
	if board == nil {
		board = battle.Board{}
	}
	c.readiness.OpponentReady = true
	c.readiness.OpponentBoard = cloneBoard(board)
	inShop := c.shopPhaseLocked()
	c.state.Set(int32(StateAwaitingReadiness))
	if !c.readiness.SelfReady && inShop {
		c.startTimerLocked()
	}
	deliver := c.maybeResolveLocked()
	c.lock.Unlock()

	logrus.WithFields(logrus.Fields{
		"units": len(board),
	}).Info("opponent is ready")
	if deliver != nil {
		deliver()
	}
}

func (c *Coordinator) shopPhaseLocked() bool {
	st := SessionState(c.state.Get())
	return st == StateInRound || st == StateAwaitingReadiness || st == StateRoundComplete
}

func (c *Coordinator) startTimerLocked() {
	// Last write wins: a new countdown always clears any pending one so a
	// stale callback cannot force a second submission.
	c.cancelTimerLocked()
	t := NewReadinessTimer(readinessTicks, c.TickInterval)
	c.timer = t
	c.readiness.TimerTicks = readinessTicks
	t.Start(func() {
		if err := c.SubmitReady(c.CurrentBoard()); err != nil {
			logrus.Errorf("forced turn submission failed: %s", err)
		}
	})
	logrus.WithFields(logrus.Fields{
		"ticks": readinessTicks,
	}).Info("opponent waiting, readiness countdown started")
}

func (c *Coordinator) cancelTimerLocked() {
	if c.timer != nil {
		c.timer.Cancel()
		c.timer = nil
	}
	c.readiness.TimerTicks = 0
}

// maybeResolveLocked fires the resolution trigger once both readiness flags
// are up and the opponent board is in hand. It returns the delivery closure
// to run outside the lock, or nil if the round is not ready to resolve.
func (c *Coordinator) maybeResolveLocked() func() {
	r := c.readiness
	if !r.SelfReady || !r.OpponentReady || r.OpponentBoard == nil {
		return nil
	}
	c.state.Set(int32(StateBothReady))
	round := c.round
	seed := c.seeds.RoundSeed(round)
	c.state.Set(int32(StateResolving))

	out, err := c.engine.Resolve(c.currentBoard, r.OpponentBoard, seed)
	if err != nil {
		logrus.Errorf("battle resolution failed for round %d: %s", round, err)
		c.readiness.reset()
		c.cancelTimerLocked()
		c.state.Set(int32(StateInRound))
		return nil
	}
	if c.authoritative != nil {
		if reported, ok := c.authoritative(round, seed); ok {
			out = battle.VerifyOutcome(out, reported)
		}
	}

	c.readiness.reset()
	c.cancelTimerLocked()
	c.round++
	c.state.Set(int32(StateRoundComplete))
	sink := c.onBattle

	logrus.WithFields(logrus.Fields{
		"round":  round,
		"seed":   seed,
		"events": len(out.Events),
		"winner": out.Winner,
	}).Info("round resolved")

	return func() {
		if sink != nil {
			sink(round, seed, out)
		}
		c.state.Set(int32(StateInRound))
	}
}

func (c *Coordinator) sendPayload(peer *Peer, payload any) error {
	if peer == nil {
		return fmt.Errorf("no peer connected")
	}
	msg := NewMessage(c.ListenAddr, payload)
	buf := new(bytes.Buffer)
	if err := gob.NewEncoder(buf).Encode(msg); err != nil {
		return err
	}
	return peer.Send(buf.Bytes())
}

// Stop tears the coordinator down: acceptor closed, peer dropped, countdown
// cancelled, loop stopped. Safe to call more than once.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		c.lock.Lock()
		c.cancelTimerLocked()
		if c.peer != nil {
			c.peer.conn.Close()
		}
		c.lock.Unlock()
		c.transport.Close()
		close(c.quit)
	})
}

func cloneBoard(b battle.Board) battle.Board {
	if b == nil {
		return nil
	}
	out := make(battle.Board, len(b))
	copy(out, b)
	return out
}
