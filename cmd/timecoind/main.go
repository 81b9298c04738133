// Command timecoind runs one instant-finality node: it accepts peer
// connections, admits broadcast transactions, tallies masternode votes,
// and fans UTXO state notifications out to subscribers.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/time-coin/timecoin"
	"github.com/time-coin/timecoin/chaincfg"
	"github.com/time-coin/timecoin/chainquery"
	"github.com/time-coin/timecoin/metrics"
)

type cliOptions struct {
	TestNet       bool     `long:"testnet" description:"use the test network"`
	Listen        []string `long:"listen" description:"address to listen for peer connections on"`
	ConnectPeer   []string `long:"connect" description:"static peer address to keep connected"`
	VoteKey       string   `long:"votekey" description:"hex-encoded secp256k1 key used to sign this node's votes"`
	ValidateAddrs bool     `long:"validateaddresses" description:"decode output addresses during admission instead of treating them as opaque"`
	SnapshotDir   string   `long:"snapshotdir" description:"directory for the leveldb UTXO snapshot store"`
	LogDir        string   `long:"logdir" description:"directory for log files"`
	DebugLevel    string   `long:"debuglevel" default:"info" description:"logging level for all subsystems"`
	RPCHost       string   `long:"rpchost" description:"backing node JSON-RPC host:port"`
	RPCUser       string   `long:"rpcuser" description:"backing node JSON-RPC username"`
	RPCPass       string   `long:"rpcpass" description:"backing node JSON-RPC password"`
	MetricsAddr   string   `long:"metricsaddr" description:"address to serve Prometheus metrics on"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var opts cliOptions
	if _, err := flags.Parse(&opts); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return nil
		}
		return err
	}

	cfg := timecoin.DefaultConfig()
	if opts.TestNet {
		cfg.NetParams = chaincfg.TestNetParams
	}
	cfg.ListenAddrs = opts.Listen
	cfg.ConnectPeers = opts.ConnectPeer
	cfg.VotePrivKey = opts.VoteKey
	cfg.ValidateAddresses = opts.ValidateAddrs
	cfg.SnapshotDir = opts.SnapshotDir
	cfg.LogDir = opts.LogDir
	cfg.DebugLevel = opts.DebugLevel
	cfg.RPCHost = opts.RPCHost
	cfg.RPCUser = opts.RPCUser
	cfg.RPCPass = opts.RPCPass
	cfg.MetricsAddr = opts.MetricsAddr

	if cfg.LogDir == "" {
		cfg.LogDir = "."
	}
	logFile := filepath.Join(cfg.LogDir, "timecoind.log")
	rotator, err := timecoin.InitLogRotator(cfg, logFile)
	if err != nil {
		return fmt.Errorf("init log rotator: %w", err)
	}
	defer rotator.Close()

	var chainClient *chainquery.Client
	if cfg.RPCHost != "" {
		chainClient, err = chainquery.Dial(chainquery.Config{
			RPCHost: cfg.RPCHost,
			RPCUser: cfg.RPCUser,
			RPCPass: cfg.RPCPass,
			RPCCert: []byte(cfg.RPCCert),
		}, nil)
		if err != nil {
			return fmt.Errorf("dial backing node: %w", err)
		}
		defer chainClient.Shutdown()
	}

	var metricsReg *metrics.Registry
	if cfg.MetricsAddr != "" {
		promReg := prometheus.NewRegistry()
		metricsReg = metrics.NewRegistry(promReg)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				fmt.Fprintf(os.Stderr, "metrics server stopped: %v\n", err)
			}
		}()
	}

	server, err := timecoin.NewServer(cfg, chainClient, metricsReg)
	if err != nil {
		return fmt.Errorf("construct server: %w", err)
	}

	if chainClient != nil {
		height, err := chainClient.TipHeight(context.Background())
		if err != nil {
			return fmt.Errorf("query backing node height: %w", err)
		}
		server.SetHeight(height)
	}

	if err := server.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	return server.Stop()
}
