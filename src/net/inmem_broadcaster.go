package net

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultInmemTimeout bounds the delivery of a message to one peer.
const DefaultInmemTimeout = 50 * time.Millisecond

// InmemBroadcaster implements the Broadcaster interface in memory, to allow
// nodes to be tested without going over a network.
type InmemBroadcaster struct {
	sync.RWMutex
	consumerCh chan *Message
	localAddr  string
	peers      map[string]*InmemBroadcaster
	timeout    time.Duration
}

// NewInmemBroadcaster is used to initialize a new broadcaster and generates a
// random local address if none is specified.
func NewInmemBroadcaster(addr string) (string, *InmemBroadcaster) {
	if addr == "" {
		addr = uuid.NewString()
	}
	trans := &InmemBroadcaster{
		consumerCh: make(chan *Message, 64),
		localAddr:  addr,
		peers:      make(map[string]*InmemBroadcaster),
		timeout:    DefaultInmemTimeout,
	}
	return addr, trans
}

// Consumer implements the Broadcaster interface.
func (i *InmemBroadcaster) Consumer() <-chan *Message {
	return i.consumerCh
}

// LocalAddr implements the Broadcaster interface.
func (i *InmemBroadcaster) LocalAddr() string {
	return i.localAddr
}

// Broadcast implements the Broadcaster interface. Every connected peer gets its
// own copy of msg. Peers that do not accept the message within the timeout are
// reported in the returned error, the others still receive it.
func (i *InmemBroadcaster) Broadcast(ctx context.Context, msg *Message) error {
	i.RLock()
	peers := make(map[string]*InmemBroadcaster, len(i.peers))
	for addr, p := range i.peers {
		peers[addr] = p
	}
	i.RUnlock()

	var failed []string

	for addr, peer := range peers {
		cp := *msg
		cp.Payload = append([]byte(nil), msg.Payload...)

		select {
		case peer.consumerCh <- &cp:
		case <-time.After(i.timeout):
			failed = append(failed, addr)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("broadcast timed out for %d peer(s): %v", len(failed), failed)
	}

	return nil
}

// Connect is used to connect this broadcaster to another one for a given peer
// name. This allows for local routing.
func (i *InmemBroadcaster) Connect(peer string, b Broadcaster) {
	trans := b.(*InmemBroadcaster)
	i.Lock()
	defer i.Unlock()
	i.peers[peer] = trans
}

// Disconnect is used to remove the ability to route to a given peer.
func (i *InmemBroadcaster) Disconnect(peer string) {
	i.Lock()
	defer i.Unlock()
	delete(i.peers, peer)
}

// DisconnectAll is used to remove all routes to peers.
func (i *InmemBroadcaster) DisconnectAll() {
	i.Lock()
	defer i.Unlock()
	i.peers = make(map[string]*InmemBroadcaster)
}

// Close is used to permanently disable the broadcaster.
func (i *InmemBroadcaster) Close() error {
	i.DisconnectAll()
	return nil
}

// ConnectAll fully connects a set of in-memory broadcasters.
func ConnectAll(broadcasters ...*InmemBroadcaster) {
	for _, a := range broadcasters {
		for _, b := range broadcasters {
			if a != b {
				a.Connect(b.LocalAddr(), b)
			}
		}
	}
}
