// Command clutchnode runs a single permissioned ride-sharing
// blockchain node: the P2P engine, the authoring loop, the sync loop,
// the JSON-RPC/WebSocket server, and the metrics endpoint, all wired
// against one Blockchain instance.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"clutch-node/chain"
	"clutch-node/internalconfig"
	"clutch-node/metrics"
	"clutch-node/p2p"
	"clutch-node/rpc"
)

func main() {
	var env, configDir, baseDir string

	root := &cobra.Command{
		Use:   "clutchnode",
		Short: "Run a permissioned ride-sharing blockchain node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(env, configDir, baseDir)
		},
	}
	root.Flags().StringVar(&env, "env", "dev", "configuration profile to load")
	root.Flags().StringVar(&configDir, "config-dir", "./config", "directory containing <env>.yaml")
	root.Flags().StringVar(&baseDir, "base-dir", "./data", "directory holding the chain's on-disk database")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(env, configDir, baseDir string) error {
	cfg, err := internalconfig.Load(configDir, env)
	if err != nil {
		return fmt.Errorf("clutchnode: %w", err)
	}

	log := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	authorities := make([]chain.Address, len(cfg.Authorities))
	for i, a := range cfg.Authorities {
		authorities[i] = chain.Address(a)
	}

	var selfKey *chain.KeyPair
	if cfg.BlockAuthoringEnabled {
		selfKey, err = chain.KeyPairFromHex(cfg.AuthorSecretKey)
		if err != nil {
			return fmt.Errorf("clutchnode: %w", err)
		}
	}

	store, err := chain.OpenStore(baseDir, cfg.BlockchainName)
	if err != nil {
		return fmt.Errorf("clutchnode: %w", err)
	}

	bc, err := chain.NewBlockchain(store, authorities, selfKey)
	if err != nil {
		return fmt.Errorf("clutchnode: %w", err)
	}

	node, err := p2p.NewNode(p2p.Config{
		Topic:          cfg.Topic,
		ListenAddrs:    cfg.ListenAddrs,
		BootstrapPeers: cfg.BootstrapPeers,
	}, bc, log)
	if err != nil {
		return fmt.Errorf("clutchnode: %w", err)
	}
	defer node.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 3)
	go func() { done <- node.Run(ctx) }()

	if cfg.BlockAuthoringEnabled {
		go p2p.RunAuthoringLoop(ctx, bc, node, selfKey.Address(), time.Second,
			func() bool { return cfg.BlockAuthoringEnabled }, log)
	}
	if cfg.SyncEnabled {
		go p2p.RunSyncLoop(ctx, bc, node, time.Second, log)
	}

	if cfg.MetricsEnabled {
		collector, reg := metrics.NewCollector(bc)
		go func() { done <- metrics.Serve(ctx, cfg.MetricsAddr, collector, reg) }()
	}

	rpcSrv := rpc.NewServer(bc, log, func(b []byte) error {
		_, err := node.SendGossipMessage(b)
		return err
	})
	go func() { done <- rpc.Run(ctx, cfg.WebSocketAddr, rpcSrv) }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sig:
		log.Info("clutchnode: shutdown requested")
	case err := <-done:
		if err != nil {
			log.Errorf("clutchnode: task exited: %v", err)
		}
	}

	cancel()
	return bc.Shutdown(cfg.BlockchainName, baseDir, cfg.DeveloperMode)
}
