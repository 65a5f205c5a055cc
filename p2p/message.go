package p2p

import (
	"encoding/gob"

	"github.com/RedPaladin7/peerbattler/battle"
)

// Message is the envelope for everything on the wire. From carries the
// sender's listen address so the receiver knows who is talking even on an
// inbound connection.
type Message struct {
	Payload any
	From    string
}

func NewMessage(from string, payload any) *Message {
	return &Message{
		From:    from,
		Payload: payload,
	}
}

// Handshake is the version-tagged greeting each side emits when the channel
// opens. Advisory only: a mismatch is logged, never blocks game start.
type Handshake struct {
	Version    string
	ListenAddr string
}

// MessageStartGame distributes the round seeds. Host -> Guest, exactly once
// per session.
type MessageStartGame struct {
	PlayerSeed int64
	BattleSeed int64
	Lives      int
}

func (msg MessageStartGame) String() string {
	return "MSG: START-GAME"
}

// MessageEndTurnReady announces the sender has finalized its turn, carrying
// the full board the opponent needs to resolve combat locally.
type MessageEndTurnReady struct {
	Board battle.Board
}

func (msg MessageEndTurnReady) String() string {
	return "MSG: END-TURN-READY"
}

func init() {
	gob.Register(Handshake{})
	gob.Register(MessageStartGame{})
	gob.Register(MessageEndTurnReady{})
}
