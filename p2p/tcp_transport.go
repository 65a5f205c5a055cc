package p2p

import (
	"encoding/gob"
	"net"

	"github.com/sirupsen/logrus"
)

type Peer struct {
	conn       net.Conn
	outbound   bool
	listenAddr string
}

func (p *Peer) Send(b []byte) error {
	_, err := p.conn.Write(b)
	return err
}

// ReadLoop decodes gob message envelopes off the connection until it breaks,
// then reports the peer on delPeer. Unexpected but decodable payloads are
// dropped further up by the coordinator; an undecodable stream has lost gob
// framing, so there is no safe way to skip one message and the session ends.
// There is no resume.
func (p *Peer) ReadLoop(msgch chan *Message, delPeer chan *Peer) {
	for {
		// Every send uses a fresh encoder, so every read needs a fresh
		// decoder to pick up the re-sent type info.
		msg := &Message{}
		if err := gob.NewDecoder(p.conn).Decode(msg); err != nil {
			logrus.WithFields(logrus.Fields{
				"peer": p.listenAddr,
				"err":  err,
			}).Info("peer read loop ended")
			break
		}
		msgch <- msg
	}
	p.conn.Close()
	delPeer <- p
}

type TCPTransport struct {
	listenAddr string
	listener   net.Listener
	AddPeer    chan *Peer
	DelPeer    chan *Peer
}

func NewTCPTransport(addr string) *TCPTransport {
	return &TCPTransport{
		listenAddr: addr,
	}
}

// ListenAndAccept opens the acceptor and hands every inbound connection to
// AddPeer. The coordinator refuses extras beyond the single remote peer.
func (t *TCPTransport) ListenAndAccept() error {
	ln, err := net.Listen("tcp", t.listenAddr)
	if err != nil {
		return err
	}
	t.listener = ln
	for {
		conn, err := ln.Accept()
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"addr": t.listenAddr,
				"err":  err,
			}).Info("acceptor closed")
			return err
		}
		t.AddPeer <- &Peer{
			conn:     conn,
			outbound: false,
		}
	}
}

func (t *TCPTransport) Close() {
	if t.listener != nil {
		t.listener.Close()
	}
}
