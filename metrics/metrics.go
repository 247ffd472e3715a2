// Package metrics exposes the node's Prometheus text-format endpoint:
// gauges latest_block_index and latest_block_hash, refreshed from the
// chain tip on every scrape.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"clutch-node/chain"
)

// Collector samples the blockchain's tip on demand to keep the two
// gauges current without the blockchain itself depending on metrics.
type Collector struct {
	latestBlockIndex prometheus.Gauge
	latestBlockHash  *prometheus.GaugeVec
	bc               *chain.Blockchain
}

// NewCollector registers the gauges against a fresh registry and
// returns a Collector that refreshes them from bc.
func NewCollector(bc *chain.Blockchain) (*Collector, *prometheus.Registry) {
	reg := prometheus.NewRegistry()

	c := &Collector{
		latestBlockIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "latest_block_index",
			Help: "Index of the most recently committed block.",
		}),
		latestBlockHash: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "latest_block_hash",
			Help: "Hash of the most recently committed block, carried as a label (an info-style gauge; value is always 1).",
		}, []string{"hash"}),
		bc: bc,
	}
	reg.MustRegister(c.latestBlockIndex, c.latestBlockHash)
	return c, reg
}

// refresh samples the current tip and updates both gauges. The hash
// gauge is reset first so a changed tip doesn't leave a stale label
// exposed alongside the new one.
func (c *Collector) refresh() {
	b := c.bc.GetLatestBlock()
	c.latestBlockIndex.Set(float64(b.Index))
	c.latestBlockHash.Reset()
	c.latestBlockHash.WithLabelValues(string(b.Hash)).Set(1)
}

// Serve runs the /metrics HTTP server until ctx is cancelled,
// refreshing the gauges on every scrape.
func Serve(ctx context.Context, addr string, c *Collector, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", refreshingHandler{c: c, next: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})})

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

type refreshingHandler struct {
	c    *Collector
	next http.Handler
}

func (h refreshingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.c.refresh()
	h.next.ServeHTTP(w, r)
}
