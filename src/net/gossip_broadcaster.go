package net

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec"
	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	p2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	p2phost "github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/sirupsen/logrus"
)

// TopicDeltas is the GossipSub topic carrying every consensus message.
const TopicDeltas = "deltas/v1"

// GossipOptions holds libp2p configuration for the gossip host.
type GossipOptions struct {
	// ListenAddrs are the multiaddrs the host listens on.
	ListenAddrs []string

	// Options are passed when creating the libp2p host, after the listen
	// addresses.
	Options []libp2p.Option

	// PubSubOptions are applied to NewGossipSub.
	PubSubOptions []pubsub.Option
}

// IdentityFromKey returns a libp2p option deriving the host identity from a
// producer key, so that the peer id and the producer id share the same key.
func IdentityFromKey(priv *btcec.PrivateKey) (libp2p.Option, error) {
	key, err := p2pcrypto.UnmarshalSecp256k1PrivateKey(priv.Serialize())
	if err != nil {
		return nil, err
	}
	return libp2p.Identity(key), nil
}

// GossipBroadcaster implements the Broadcaster interface over a libp2p
// GossipSub topic.
type GossipBroadcaster struct {
	host  p2phost.Host
	ps    *pubsub.PubSub
	topic *pubsub.Topic
	sub   *pubsub.Subscription

	consumerCh chan *Message

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	logger *logrus.Entry
}

// NewGossipBroadcaster starts a libp2p host, joins the deltas topic and starts
// forwarding the messages of other nodes to the consumer channel. The
// broadcaster stops when ctx is done or Close is called.
func NewGossipBroadcaster(ctx context.Context, opts GossipOptions, logger *logrus.Entry) (*GossipBroadcaster, error) {
	hostOpts := []libp2p.Option{}
	if len(opts.ListenAddrs) > 0 {
		hostOpts = append(hostOpts, libp2p.ListenAddrStrings(opts.ListenAddrs...))
	}
	hostOpts = append(hostOpts, opts.Options...)

	h, err := libp2p.New(hostOpts...)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)

	ps, err := pubsub.NewGossipSub(ctx, h, opts.PubSubOptions...)
	if err != nil {
		cancel()
		h.Close()
		return nil, err
	}

	topic, err := ps.Join(TopicDeltas)
	if err != nil {
		cancel()
		h.Close()
		return nil, err
	}

	sub, err := topic.Subscribe()
	if err != nil {
		cancel()
		topic.Close()
		h.Close()
		return nil, err
	}

	g := &GossipBroadcaster{
		host:       h,
		ps:         ps,
		topic:      topic,
		sub:        sub,
		consumerCh: make(chan *Message, 64),
		cancel:     cancel,
		logger:     logger,
	}

	g.wg.Add(1)
	go g.readLoop(ctx)

	logger.WithFields(logrus.Fields{
		"id":    h.ID(),
		"addrs": g.Addrs(),
	}).Info("Gossip host started")

	return g, nil
}

func (g *GossipBroadcaster) readLoop(ctx context.Context) {
	defer g.wg.Done()

	self := g.host.ID()

	for {
		msg, err := g.sub.Next(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, pubsub.ErrSubscriptionCancelled) {
				g.logger.WithError(err).Info("Quitting gossip subscription")
			}
			return
		}

		// our own messages are delivered by the subscription too
		if msg.ReceivedFrom == self {
			continue
		}

		m := new(Message)
		if err := m.Unmarshal(msg.Data); err != nil {
			g.logger.WithError(err).WithField("from", msg.ReceivedFrom).Debug("Dropped undecodable gossip message")
			continue
		}

		select {
		case g.consumerCh <- m:
		case <-ctx.Done():
			return
		}
	}
}

// Broadcast implements the Broadcaster interface.
func (g *GossipBroadcaster) Broadcast(ctx context.Context, msg *Message) error {
	data, err := msg.Marshal()
	if err != nil {
		return err
	}
	return g.topic.Publish(ctx, data)
}

// Consumer implements the Broadcaster interface.
func (g *GossipBroadcaster) Consumer() <-chan *Message {
	return g.consumerCh
}

// LocalAddr implements the Broadcaster interface. It returns the first full
// p2p multiaddr of the host.
func (g *GossipBroadcaster) LocalAddr() string {
	addrs := g.Addrs()
	if len(addrs) == 0 {
		return ""
	}
	return addrs[0]
}

// Addrs returns every full p2p multiaddr of the host.
func (g *GossipBroadcaster) Addrs() []string {
	res := []string{}
	for _, a := range g.host.Addrs() {
		res = append(res, fmt.Sprintf("%s/p2p/%s", a, g.host.ID()))
	}
	return res
}

// ID returns the libp2p peer id of the host.
func (g *GossipBroadcaster) ID() peer.ID {
	return g.host.ID()
}

// Connect dials a peer given its full p2p multiaddr.
func (g *GossipBroadcaster) Connect(ctx context.Context, addr string) error {
	maddr, err := ma.NewMultiaddr(addr)
	if err != nil {
		return err
	}

	info, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		return err
	}

	return g.host.Connect(ctx, *info)
}

// WaitForPeers blocks until at least n peers joined the deltas topic, or ctx
// is done. Gossip only reaches peers once the topic mesh is set up, which
// happens in the background after connecting.
func (g *GossipBroadcaster) WaitForPeers(ctx context.Context, n int) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if len(g.topic.ListPeers()) >= n {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%d topic peer(s) after waiting for %d: %w", len(g.topic.ListPeers()), n, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Close implements the Broadcaster interface.
func (g *GossipBroadcaster) Close() error {
	var err error

	g.closeOnce.Do(func() {
		g.sub.Cancel()
		if cerr := g.topic.Close(); cerr != nil && !errors.Is(cerr, context.Canceled) {
			g.logger.WithError(cerr).Info("Error closing gossip topic")
		}

		g.cancel()
		g.wg.Wait()

		err = g.host.Close()
	})

	return err
}
