// Command gateway runs the REST+WebSocket bridge process.
//
// Startup sequence:
//  1. Parse flags and load configuration (JSON file or defaults).
//  2. Build the logger.
//  3. Construct the Cookie Vault and Auth Manager.
//  4. Build the browser-fingerprinted HTTP client and RPC Transport.
//  5. Wire the Cursor Engine, Thread Expander, Event Bus, and WebChannel.
//  6. Start the WebChannel, its keepalive, and the mark-as-read queue.
//  7. Start the Gateway's HTTP server.
//  8. Block until OS signals SIGINT or SIGTERM, then perform a clean shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kdevan/gchat-bridge/auth"
	"github.com/kdevan/gchat-bridge/config"
	"github.com/kdevan/gchat-bridge/cookievault"
	"github.com/kdevan/gchat-bridge/cursor"
	"github.com/kdevan/gchat-bridge/eventbus"
	"github.com/kdevan/gchat-bridge/gateway"
	"github.com/kdevan/gchat-bridge/logger"
	"github.com/kdevan/gchat-bridge/metrics"
	"github.com/kdevan/gchat-bridge/threadexpander"
	"github.com/kdevan/gchat-bridge/transport"
	"github.com/kdevan/gchat-bridge/webchannel"
)

func main() {
	// ── Flags ──────────────────────────────────────────────────────────────
	configFile := flag.String("config", "", "Path to JSON config file (optional; uses defaults if omitted)")
	cacheDirFlag := flag.String("cache-dir", "", "Override the cache directory (default: $GCHAT_CACHE_DIR or ~/.gchat)")
	listenAddr := flag.String("listen", "", "Override the gateway's listen address (default: from config)")
	browser := flag.String("browser", "", "Override the browser cookie store to read from")
	profile := flag.String("profile", "", "Override the browser profile to read from")
	debug := flag.Bool("debug", false, "Enable debug-level logging")
	flag.Parse()

	level := logger.LevelInfo
	if *debug {
		level = logger.LevelDebug
	}
	log := logger.New(level)
	log.Info("gchat-bridge gateway starting up")

	// ── Configuration ──────────────────────────────────────────────────────
	var cfg *config.Config
	if *configFile != "" {
		var err error
		cfg, err = config.LoadConfig(*configFile)
		if err != nil {
			log.Errorf("failed to load config from %q: %v", *configFile, err)
			os.Exit(2)
		}
		log.Infof("configuration loaded from %q", *configFile)
	} else {
		cfg = config.DefaultConfig()
		log.Info("using default configuration")
	}
	cfg.CacheDir = config.ResolveCacheDir(*cacheDirFlag)
	if *browser != "" {
		cfg.Browser = *browser
	}
	if *profile != "" {
		cfg.Profile = *profile
	}
	if *listenAddr != "" {
		cfg.GatewayListenAddr = *listenAddr
	}

	// ── Metrics ────────────────────────────────────────────────────────────
	m := metrics.NewMetrics()

	// ── Auth Manager ───────────────────────────────────────────────────────
	vault := cookievault.New(log)
	bootstrapClient := transport.NewClient(cfg)
	authMgr := auth.NewManager(vault, bootstrapClient, cfg.CacheDir, cfg.Browser, cfg.Profile, cfg.XSRFTokenTTL, log)
	go authMgr.WatchLoop(context.Background(), cfg.XSRFTokenTTL)

	// ── RPC Transport ──────────────────────────────────────────────────────
	rpcClient := transport.NewClient(cfg)
	rpc := transport.New(rpcClient, authMgr, m, log)

	// ── Cursor Engine & Thread Expander ────────────────────────────────────
	cursorEng := cursor.New(rpc, m, cfg.CursorMaxPages)
	expander := threadexpander.New(rpc, cfg.ThreadExpanderParallelism, log)

	// ── Event Bus & WebChannel ─────────────────────────────────────────────
	bus := eventbus.New()
	wcClient := transport.NewClient(cfg)
	channel := webchannel.New(wcClient, authMgr, bus, m, cfg.WebChannelFrameTimeout, log)
	keepalive := webchannel.NewKeepalive(channel, cfg.WebChannelPingInterval, cfg.WebChannelPresenceTimeout, log)

	// ── Gateway ────────────────────────────────────────────────────────────
	proxyClient := transport.NewClient(cfg)
	proxy := gateway.NewMediaProxy(proxyClient, authMgr, cfg.PermittedProxyDomains)
	markRead := gateway.NewMarkReadQueue(rpc, cfg.MarkReadSpacing, m, log)
	server := gateway.NewServer(rpc, cursorEng, expander, channel, markRead, proxy, cfg, m, log)
	server.Hub().Subscribe(bus)

	ctx, cancel := context.WithCancel(context.Background())

	go channel.Run(ctx)
	log.Info("webchannel run loop started")

	go keepalive.Start(ctx)
	log.Infof("webchannel keepalive started, interval=%s", cfg.WebChannelPingInterval)

	go markRead.Run(ctx)
	log.Info("mark-as-read queue started")

	go func() {
		if err := server.ListenAndServe(cfg.GatewayListenAddr); err != nil {
			log.Errorf("gateway server error: %v", err)
		}
	}()
	log.Infof("gateway listening on %s", cfg.GatewayListenAddr)

	// ── Graceful shutdown ──────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	fmt.Println() // newline after ^C
	log.Infof("received signal %s; shutting down", sig)

	markRead.Stop()
	keepalive.Stop()
	channel.Close()
	authMgr.Stop()
	cancel()

	snap := m.Snapshot()
	log.Infof("final metrics – rpc: %d (%d ok, %d failed) | cursor pages: %d | webchannel reconnects: %d | mark-read dispatched: %d, dropped: %d",
		snap.RPCTotal, snap.RPCSuccess, snap.RPCFailed, snap.CursorPagesFetched, snap.WebChannelReconnects, snap.MarkReadDispatched, snap.MarkReadDropped)
	log.Info("gchat-bridge gateway shut down cleanly")
}
