package p2p

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"clutch-node/chain"
)

// RunAuthoringLoop ticks every tickInterval (one second when
// tickInterval is not positive), and on each tick — if enabled
// and it is this node's slot — authors a block and gossips it. The
// Blockchain mutex is released (AuthorNewBlock returns) before the
// gossip call runs; authoring must never hold the lock across network
// I/O. Failures are logged at debug and the loop keeps ticking.
func RunAuthoringLoop(ctx context.Context, bc *chain.Blockchain, node *Node, selfAddress chain.Address, tickInterval time.Duration, enabled func() bool, log *logrus.Logger) {
	if tickInterval <= 0 {
		tickInterval = time.Second
	}
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !enabled() {
				continue
			}
			ts := uint64(now.Unix())
			if bc.AuthorityAt(ts) != selfAddress {
				log.Debugf("authoring: not my slot at t=%d", ts)
				continue
			}
			b, err := bc.AuthorNewBlock(ts)
			if err != nil {
				log.Debugf("authoring: author_new_block failed: %v", err)
				continue
			}
			gossipBytes, err := GossipBlockBytes(b)
			if err != nil {
				log.Warnf("authoring: encode authored block %s: %v", b.Hash, err)
				continue
			}
			if _, err := node.SendGossipMessage(gossipBytes); err != nil {
				log.Warnf("authoring: gossip authored block %s: %v", b.Hash, err)
			}
		}
	}
}
