// Package rpc implements the client-facing JSON-RPC 2.0 surface over a
// WebSocket connection: send_transaction, import_block,
// author_new_block, and get_next_nonce.
package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"clutch-node/chain"
	"clutch-node/p2p"
)

const (
	codeParseError      = -32700
	codeMissingMethod   = -32600
	codeUnknownMethod   = -32601
	codeInvalidParams   = -32602
	codeBlockchainError = -32000
)

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Server answers JSON-RPC requests against a single Blockchain
// instance.
type Server struct {
	bc       *chain.Blockchain
	upgrader websocket.Upgrader
	log      *logrus.Logger
	gossip   func(bytes []byte) error
}

// NewServer builds a Server. gossip, if non-nil, is called with the
// codec-encoded, kind-tagged frame of anything send_transaction or
// import_block admits and of every block author_new_block builds, so the RPC task never touches the swarm
// directly — it only has a narrow callback, same spirit as the p2p
// mailbox.
func NewServer(bc *chain.Blockchain, log *logrus.Logger, gossip func(bytes []byte) error) *Server {
	return &Server{
		bc:       bc,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		log:      log,
		gossip:   gossip,
	}
}

// ServeHTTP upgrades the connection and reads JSON-RPC 2.0 requests as
// individual WebSocket text frames until the client disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("rpc: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		resp := s.handle(data)
		encoded, err := json.Marshal(resp)
		if err != nil {
			s.log.Errorf("rpc: marshal response: %v", err)
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, encoded); err != nil {
			return
		}
	}
}

func (s *Server) handle(data []byte) response {
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		return response{JSONRPC: "2.0", Error: &rpcError{Code: codeParseError, Message: "parse error"}}
	}
	if req.Method == "" {
		return response{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: codeMissingMethod, Message: "missing method"}}
	}

	var result interface{}
	var rpcErr *rpcError
	switch req.Method {
	case "send_transaction":
		result, rpcErr = s.sendTransaction(req.Params)
	case "import_block":
		result, rpcErr = s.importBlock(req.Params)
	case "author_new_block":
		result, rpcErr = s.authorNewBlock()
	case "get_next_nonce":
		result, rpcErr = s.getNextNonce(req.Params)
	default:
		rpcErr = &rpcError{Code: codeUnknownMethod, Message: "unknown method " + req.Method}
	}

	return response{JSONRPC: "2.0", ID: req.ID, Result: result, Error: rpcErr}
}

func (s *Server) sendTransaction(params json.RawMessage) (interface{}, *rpcError) {
	var tx chain.Transaction
	if err := json.Unmarshal(params, &tx); err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	if err := s.bc.AddTransactionToPool(tx); err != nil {
		return nil, &rpcError{Code: codeBlockchainError, Message: err.Error()}
	}
	if s.gossip != nil {
		if frame, err := p2p.GossipTransactionBytes(tx); err == nil {
			_ = s.gossip(frame)
		}
	}
	return "Transaction imported", nil
}

func (s *Server) importBlock(params json.RawMessage) (interface{}, *rpcError) {
	var b chain.Block
	if err := json.Unmarshal(params, &b); err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	if err := s.bc.Import(b); err != nil {
		return nil, &rpcError{Code: codeBlockchainError, Message: err.Error()}
	}
	if s.gossip != nil {
		if frame, err := p2p.GossipBlockBytes(b); err == nil {
			_ = s.gossip(frame)
		}
	}
	return "Block imported", nil
}

func (s *Server) authorNewBlock() (interface{}, *rpcError) {
	b, err := s.bc.AuthorNewBlock(uint64(time.Now().Unix()))
	if err != nil {
		return nil, &rpcError{Code: codeBlockchainError, Message: err.Error()}
	}
	if s.gossip != nil {
		if frame, err := p2p.GossipBlockBytes(b); err == nil {
			_ = s.gossip(frame)
		}
	}
	return "New block authored", nil
}

type nonceParams struct {
	Address chain.Address `json:"address"`
}

func (s *Server) getNextNonce(params json.RawMessage) (interface{}, *rpcError) {
	var p nonceParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	return map[string]uint64{"nonce": s.bc.GetNextNonce(p.Address)}, nil
}

func Run(ctx context.Context, addr string, srv *Server) error {
	mux := http.NewServeMux()
	mux.Handle("/", srv)
	httpSrv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return httpSrv.Close()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
