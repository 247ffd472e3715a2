package p2p

import "github.com/libp2p/go-libp2p/core/peer"

// MessageID and RequestID are opaque handles returned to a command's
// caller. The underlying libp2p APIs don't hand out such IDs, so these
// are synthesized locally from a monotonically increasing counter,
// purely for callers that want something to log or correlate against.
type MessageID uint64
type RequestID uint64

// command is the unexported marker every mailbox command implements.
// Like FunctionCall's payload tag, this exists only so the event loop
// can dispatch with a single exhaustive switch — never per-command
// methods.
type command interface {
	isCommand()
}

// SendGossipMessage asks the event loop to publish Bytes on the node's
// single topic.
type SendGossipMessage struct {
	Bytes []byte
	Reply chan<- SendGossipResult
}

type SendGossipResult struct {
	ID  MessageID
	Err error
}

func (SendGossipMessage) isCommand() {}

// GetConnectedPeers asks the event loop for the current peer set.
type GetConnectedPeers struct {
	Reply chan<- []peer.ID
}

func (GetConnectedPeers) isCommand() {}

// SendDirectMessage asks the event loop to open a stream to Peer, write
// RequestBytes, and return whatever response bytes come back.
type SendDirectMessage struct {
	Peer         peer.ID
	RequestBytes []byte
	Reply        chan<- SendDirectResult
}

type SendDirectResult struct {
	ID           RequestID
	ResponseKind DirectKind
	ResponseBody []byte
	Err          error
}

func (SendDirectMessage) isCommand() {}

// GetLocalPeerID asks the event loop for this node's own peer ID.
type GetLocalPeerID struct {
	Reply chan<- peer.ID
}

func (GetLocalPeerID) isCommand() {}
