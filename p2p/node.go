package p2p

import (
	"bytes"
	"context"
	"fmt"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/rlp"
	golibp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/sirupsen/logrus"

	"clutch-node/chain"
)

// Config is the subset of the node's runtime configuration the P2P
// engine needs.
type Config struct {
	Topic          string
	ListenAddrs    []string
	BootstrapPeers []string
}

// Node is the single-task P2P event loop: it owns the libp2p swarm and
// a bounded command mailbox; every other task (authoring, sync, RPC)
// only ever talks to it through the Send*/Get* methods below, never by
// touching the host or pubsub directly.
type Node struct {
	host   host.Host
	ps     *pubsub.PubSub
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	bc     *chain.Blockchain
	log    *logrus.Logger
	cmdCh  chan command
	nextID uint64
}

// NewNode builds the libp2p host, joins the gossip topic, registers
// the sync stream handler, and starts mDNS discovery. The event loop
// itself is started separately by Run so callers control its
// lifecycle explicitly.
func NewNode(cfg Config, bc *chain.Blockchain, log *logrus.Logger) (*Node, error) {
	opts := make([]golibp2p.Option, 0, len(cfg.ListenAddrs))
	if len(cfg.ListenAddrs) > 0 {
		opts = append(opts, golibp2p.ListenAddrStrings(cfg.ListenAddrs...))
	}
	h, err := golibp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("p2p: create host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(context.Background(), h)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("p2p: create gossipsub: %w", err)
	}

	topic, err := ps.Join(cfg.Topic)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("p2p: join topic %s: %w", cfg.Topic, err)
	}
	sub, err := topic.Subscribe()
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("p2p: subscribe topic %s: %w", cfg.Topic, err)
	}

	n := &Node{
		host:  h,
		ps:    ps,
		topic: topic,
		sub:   sub,
		bc:    bc,
		log:   log,
		cmdCh: make(chan command, 32), // bounded; producers block when full
	}

	h.SetStreamHandler(protocol.ID(SyncProtocolID), n.handleDirectStream)
	if err := mdns.NewMdnsService(h, cfg.Topic, n).Start(); err != nil {
		log.Warnf("p2p: start mDNS discovery: %v", err)
	}

	for _, addr := range cfg.BootstrapPeers {
		info, err := peer.AddrInfoFromString(addr)
		if err != nil {
			log.Warnf("p2p: bad bootstrap address %s: %v", addr, err)
			continue
		}
		if err := h.Connect(context.Background(), *info); err != nil {
			log.Warnf("p2p: bootstrap dial %s failed: %v", addr, err)
		}
	}

	return n, nil
}

// HandlePeerFound implements mdns.Notifee, connecting to peers found on
// the local network.
func (n *Node) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == n.host.ID() {
		return
	}
	if err := n.host.Connect(context.Background(), info); err != nil {
		n.log.Warnf("p2p: mDNS connect to %s failed: %v", info.ID, err)
		return
	}
	n.log.Infof("p2p: connected to %s via mDNS", info.ID)
}

var _ mdns.Notifee = (*Node)(nil)

// Run is the event loop: it multiplexes the command mailbox against
// inbound gossip until ctx is cancelled or the gossip subscription
// dies for good. Exactly one goroutine must ever call Run for a given
// Node. Its return (nil on a clean ctx cancellation, non-nil if the
// subscription failed) is meant to be fed into the same completion
// channel the WebSocket task reports to, so either task's exit shuts
// the process down.
func (n *Node) Run(ctx context.Context) error {
	gossip, gossipErr := n.gossipNext(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-n.cmdCh:
			n.dispatch(ctx, cmd)
		case msg, ok := <-gossip:
			if !ok {
				if err := <-gossipErr; err != nil {
					return fmt.Errorf("p2p: gossip subscription ended: %w", err)
				}
				return nil
			}
			n.handleGossip(msg)
			gossip, gossipErr = n.gossipNext(ctx)
		}
	}
}

// gossipNext returns a channel yielding the next pubsub message, or a
// closed channel once ctx is done. pubsub.Subscription.Next blocks, so
// this runs it in its own goroutine per call rather than holding the
// event loop hostage.
func (n *Node) gossipNext(ctx context.Context) (<-chan *pubsub.Message, <-chan error) {
	out := make(chan *pubsub.Message, 1)
	errc := make(chan error, 1)
	go func() {
		msg, err := n.sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				errc <- nil
			} else {
				errc <- err
			}
			close(out)
			return
		}
		out <- msg
	}()
	return out, errc
}

func (n *Node) dispatch(ctx context.Context, cmd command) {
	switch c := cmd.(type) {
	case SendGossipMessage:
		err := n.topic.Publish(ctx, c.Bytes)
		id := MessageID(atomic.AddUint64(&n.nextID, 1))
		c.Reply <- SendGossipResult{ID: id, Err: err}
	case GetConnectedPeers:
		c.Reply <- n.host.Network().Peers()
	case SendDirectMessage:
		n.sendDirect(ctx, c)
	case GetLocalPeerID:
		c.Reply <- n.host.ID()
	default:
		n.log.Errorf("p2p: unknown mailbox command %T", cmd)
	}
}

func (n *Node) sendDirect(ctx context.Context, c SendDirectMessage) {
	id := RequestID(atomic.AddUint64(&n.nextID, 1))
	s, err := n.host.NewStream(ctx, c.Peer, protocol.ID(SyncProtocolID))
	if err != nil {
		c.Reply <- SendDirectResult{ID: id, Err: fmt.Errorf("p2p: open stream to %s: %w", c.Peer, err)}
		return
	}
	defer s.Close()

	if _, err := s.Write(c.RequestBytes); err != nil {
		c.Reply <- SendDirectResult{ID: id, Err: fmt.Errorf("p2p: write request: %w", err)}
		return
	}

	r := streamReader(s)
	kind, err := readDirectKind(r)
	if err != nil {
		c.Reply <- SendDirectResult{ID: id, Err: err}
		return
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		c.Reply <- SendDirectResult{ID: id, Err: fmt.Errorf("p2p: read response: %w", err)}
		return
	}
	c.Reply <- SendDirectResult{ID: id, ResponseKind: kind, ResponseBody: buf.Bytes()}
}

// handleGossip decodes an inbound gossip message by kind and applies
// it to the blockchain. Failures are logged, never propagated back to
// the sender.
func (n *Node) handleGossip(msg *pubsub.Message) {
	if msg.ReceivedFrom == n.host.ID() {
		return
	}
	kind, body, err := decodeGossipKind(msg.Data)
	if err != nil {
		n.log.Warnf("p2p: %v", err)
		return
	}
	switch kind {
	case GossipTransaction:
		var tx chain.Transaction
		if err := rlp.DecodeBytes(body, &tx); err != nil {
			n.log.Warnf("p2p: decode gossiped transaction: %v", err)
			return
		}
		if err := n.bc.AddTransactionToPool(tx); err != nil {
			n.log.Warnf("p2p: admit gossiped transaction %s: %v", tx.Hash, err)
		}
	case GossipBlock:
		var b chain.Block
		if err := rlp.DecodeBytes(body, &b); err != nil {
			n.log.Warnf("p2p: decode gossiped block: %v", err)
			return
		}
		if err := n.bc.Import(b); err != nil {
			n.log.Warnf("p2p: import gossiped block %s: %v", b.Hash, err)
		}
	default:
		n.log.Warnf("p2p: unknown gossip kind %d", kind)
	}
}

// handleDirectStream answers inbound sync requests: Handshake,
// GetBlockHeaders, GetBlockBodies. Unknown kinds are dropped with a
// warning and the peer stays connected.
func (n *Node) handleDirectStream(s network.Stream) {
	defer s.Close()
	r := streamReader(s)
	kind, err := readDirectKind(r)
	if err != nil {
		n.log.Warnf("p2p: %v", err)
		return
	}

	switch kind {
	case DirectHandshake:
		var req chain.Handshake
		if err := rlp.Decode(r, &req); err != nil {
			n.log.Warnf("p2p: decode handshake: %v", err)
			return
		}
		genesisHash, latestIndex, latestHash := n.bc.Handshake()
		resp := chain.Handshake{GenesisHash: genesisHash, LatestIndex: latestIndex, LatestHash: latestHash}
		if err := writeDirect(s, DirectHandshake, resp); err != nil {
			n.log.Warnf("p2p: reply handshake: %v", err)
		}
	case DirectGetBlockHeaders:
		var req chain.GetBlockHeaders
		if err := rlp.Decode(r, &req); err != nil {
			n.log.Warnf("p2p: decode get_block_headers: %v", err)
			return
		}
		step := req.Skip + 1
		var headers []chain.BlockHeader
		for i := uint64(0); i < req.Limit; i++ {
			b, ok := n.bc.GetBlockByIndex(req.StartIndex + i*step)
			if !ok {
				break
			}
			headers = append(headers, b.Header())
		}
		if err := writeDirect(s, DirectBlockHeaders, chain.BlockHeaders{Headers: headers}); err != nil {
			n.log.Warnf("p2p: reply block_headers: %v", err)
		}
	case DirectGetBlockBodies:
		var req chain.GetBlockBodies
		if err := rlp.Decode(r, &req); err != nil {
			n.log.Warnf("p2p: decode get_block_bodies: %v", err)
			return
		}
		blocks := make([]chain.Block, 0, len(req.Indexes))
		for _, idx := range req.Indexes {
			if b, ok := n.bc.GetBlockByIndex(idx); ok {
				blocks = append(blocks, b)
			}
		}
		if err := writeDirect(s, DirectBlockBodies, chain.BlockBodies{Blocks: blocks}); err != nil {
			n.log.Warnf("p2p: reply block_bodies: %v", err)
		}
	default:
		n.log.Warnf("p2p: unknown direct-message kind %d", kind)
	}
}

// --- mailbox-facing API: the only way any other task touches the swarm ---

func (n *Node) SendGossipMessage(bytes []byte) (MessageID, error) {
	reply := make(chan SendGossipResult, 1)
	n.cmdCh <- SendGossipMessage{Bytes: bytes, Reply: reply}
	res := <-reply
	return res.ID, res.Err
}

func (n *Node) GetConnectedPeers() []peer.ID {
	reply := make(chan []peer.ID, 1)
	n.cmdCh <- GetConnectedPeers{Reply: reply}
	return <-reply
}

func (n *Node) SendDirectMessage(p peer.ID, requestBytes []byte) SendDirectResult {
	reply := make(chan SendDirectResult, 1)
	n.cmdCh <- SendDirectMessage{Peer: p, RequestBytes: requestBytes, Reply: reply}
	return <-reply
}

func (n *Node) GetLocalPeerID() peer.ID {
	reply := make(chan peer.ID, 1)
	n.cmdCh <- GetLocalPeerID{Reply: reply}
	return <-reply
}

// GossipTransactionBytes builds a kind-tagged gossip frame for tx.
func GossipTransactionBytes(tx chain.Transaction) ([]byte, error) {
	return encodeGossip(GossipTransaction, tx)
}

// GossipBlockBytes builds a kind-tagged gossip frame for b.
func GossipBlockBytes(b chain.Block) ([]byte, error) {
	return encodeGossip(GossipBlock, b)
}

// DirectHandshakeBytes builds a kind-tagged direct-message frame
// carrying this node's own handshake as the request payload.
func DirectHandshakeBytes(h chain.Handshake) ([]byte, error) {
	return encodeDirectRequest(DirectHandshake, h)
}

// Close tears the node down.
func (n *Node) Close() error {
	return n.host.Close()
}
