package p2p

import (
	"fmt"
	"sync/atomic"
)

type SessionState int32

const (
	StateIdle SessionState = iota
	StateHosting
	StateJoining
	StateHandshaking
	StateSeedDistributed
	StateInRound
	StateAwaitingReadiness
	StateBothReady
	StateResolving
	StateRoundComplete
	StateDisconnected
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateHosting:
		return "HOSTING"
	case StateJoining:
		return "JOINING"
	case StateHandshaking:
		return "HANDSHAKING"
	case StateSeedDistributed:
		return "SEED-DISTRIBUTED"
	case StateInRound:
		return "IN-ROUND"
	case StateAwaitingReadiness:
		return "AWAITING-READINESS"
	case StateBothReady:
		return "BOTH-READY"
	case StateResolving:
		return "RESOLVING"
	case StateRoundComplete:
		return "ROUND-COMPLETE"
	case StateDisconnected:
		return "DISCONNECTED"
	default:
		return "INVALID"
	}
}

type Role byte

const (
	RoleNone Role = iota
	RoleHost
	RoleGuest
)

func (r Role) String() string {
	switch r {
	case RoleHost:
		return "HOST"
	case RoleGuest:
		return "GUEST"
	case RoleNone:
		return "NONE"
	default:
		return "INVALID"
	}
}

type ConnectionState byte

const (
	ConnIdle ConnectionState = iota
	ConnConnecting
	ConnOpen
	ConnClosed
)

func (c ConnectionState) String() string {
	switch c {
	case ConnIdle:
		return "IDLE"
	case ConnConnecting:
		return "CONNECTING"
	case ConnOpen:
		return "OPEN"
	case ConnClosed:
		return "CLOSED"
	default:
		return "INVALID"
	}
}

type AtomicInt struct {
	value int32
}

func NewAtomicInt(value int32) *AtomicInt {
	return &AtomicInt{value: value}
}

func (a *AtomicInt) String() string  { return fmt.Sprintf("%d", a.Get()) }
func (a *AtomicInt) Get() int32      { return atomic.LoadInt32(&a.value) }
func (a *AtomicInt) Set(value int32) { atomic.StoreInt32(&a.value, value) }
func (a *AtomicInt) Inc()            { a.Set(a.Get() + 1) }
