package p2p

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/sirupsen/logrus"

	"clutch-node/chain"
)

// headerFetchLimit bounds a single GetBlockHeaders request; a node far
// behind catches up over several ticks rather than one giant response.
const headerFetchLimit = 128

// RunSyncLoop periodically handshakes with every connected peer,
// selects the one reporting the highest index beyond our own, and pulls
// headers then bodies from it, importing in index order and stopping
// at the first import error. Retries are implicit: the next tick
// starts over from the current tip.
func RunSyncLoop(ctx context.Context, bc *chain.Blockchain, node *Node, tickInterval time.Duration, log *logrus.Logger) {
	if tickInterval <= 0 {
		tickInterval = time.Second
	}
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			syncOnce(ctx, bc, node, log)
		}
	}
}

func syncOnce(ctx context.Context, bc *chain.Blockchain, node *Node, log *logrus.Logger) {
	peers := node.GetConnectedPeers()
	if len(peers) == 0 {
		return
	}

	genesisHash, latestIndex, latestHash := bc.Handshake()
	localHandshake := chain.Handshake{GenesisHash: genesisHash, LatestIndex: latestIndex, LatestHash: latestHash}

	var bestPeer peer.ID = peers[0]
	var bestIndex = latestIndex
	found := false
	for _, p := range peers {
		req, err := DirectHandshakeBytes(localHandshake)
		if err != nil {
			log.Warnf("sync: encode handshake: %v", err)
			return
		}
		res := node.SendDirectMessage(p, req)
		if res.Err != nil {
			log.Debugf("sync: handshake with %s failed: %v", p, res.Err)
			continue
		}
		var peerHandshake chain.Handshake
		if err := rlp.DecodeBytes(res.ResponseBody, &peerHandshake); err != nil {
			log.Warnf("sync: decode handshake reply from %s: %v", p, err)
			continue
		}
		if peerHandshake.GenesisHash != genesisHash {
			log.Debugf("sync: peer %s on a different chain, skipping", p)
			continue
		}
		if peerHandshake.LatestIndex > bestIndex {
			bestIndex = peerHandshake.LatestIndex
			bestPeer = p
			found = true
		}
	}
	if !found {
		return
	}

	if err := syncFrom(ctx, bc, node, bestPeer, latestIndex+1, log); err != nil {
		log.Warnf("sync: import from %s: %v", bestPeer, err)
	}
}

// syncFrom pulls a header range then the matching bodies from a single
// peer already known to have a longer chain.
func syncFrom(ctx context.Context, bc *chain.Blockchain, node *Node, p peer.ID, from uint64, log *logrus.Logger) error {
	headersReq, err := encodeDirectRequest(DirectGetBlockHeaders, chain.GetBlockHeaders{StartIndex: from, Skip: 0, Limit: headerFetchLimit})
	if err != nil {
		return fmt.Errorf("encode get_block_headers: %w", err)
	}
	headersRes := node.SendDirectMessage(p, headersReq)
	if headersRes.Err != nil {
		return fmt.Errorf("get_block_headers: %w", headersRes.Err)
	}
	if headersRes.ResponseKind != DirectBlockHeaders {
		return fmt.Errorf("unexpected response kind %d to get_block_headers", headersRes.ResponseKind)
	}
	var headers chain.BlockHeaders
	if err := rlp.DecodeBytes(headersRes.ResponseBody, &headers); err != nil {
		return fmt.Errorf("decode block_headers: %w", err)
	}
	if len(headers.Headers) == 0 {
		return nil
	}

	indexes := make([]uint64, len(headers.Headers))
	for i, h := range headers.Headers {
		indexes[i] = h.Index
	}

	bodiesReq, err := encodeDirectRequest(DirectGetBlockBodies, chain.GetBlockBodies{Indexes: indexes})
	if err != nil {
		return fmt.Errorf("encode get_block_bodies: %w", err)
	}
	bodiesRes := node.SendDirectMessage(p, bodiesReq)
	if bodiesRes.Err != nil {
		return fmt.Errorf("get_block_bodies: %w", bodiesRes.Err)
	}
	if bodiesRes.ResponseKind != DirectBlockBodies {
		return fmt.Errorf("unexpected response kind %d to get_block_bodies", bodiesRes.ResponseKind)
	}
	var bodies chain.BlockBodies
	if err := rlp.DecodeBytes(bodiesRes.ResponseBody, &bodies); err != nil {
		return fmt.Errorf("decode block_bodies: %w", err)
	}

	blocks := bodies.Blocks
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].Index < blocks[j].Index })
	for _, b := range blocks {
		if err := bc.Import(b); err != nil {
			return fmt.Errorf("import block %s: %w", b.Hash, err)
		}
	}
	return nil
}
