package timecoin

import (
	"time"

	"github.com/time-coin/timecoin/build"
	"github.com/time-coin/timecoin/chaincfg"
)

const (
	// DefaultFinalityWindow bounds how long a broadcast transaction
	// collects votes before its inputs are released back to Unspent.
	DefaultFinalityWindow = 3 * time.Second

	// DefaultMaxLogFileSize is the size, in MiB, at which the log
	// rotator starts a new file.
	DefaultMaxLogFileSize = 10

	// DefaultMaxLogFiles is how many rotated log files are retained.
	DefaultMaxLogFiles = 3
)

// Config holds every daemon-level parameter a timecoind instance needs,
// whether sourced from the command line, a config file, or defaults.
// ListenAddrs must be set; NetParams defaults to mainnet in
// DefaultConfig, and the RPC and LogDir fields have no defaults.
type Config struct {
	// NetParams selects mainnet or testnet.
	NetParams chaincfg.Params

	// ListenAddrs are the local addresses this node accepts peer
	// connections on.
	ListenAddrs []string

	// ConnectPeers are outbound peer addresses to dial and keep
	// connected regardless of connmgr's address-book discovery.
	ConnectPeers []string

	// TargetOutboundPeers is how many outbound connections connmgr
	// tries to maintain.
	TargetOutboundPeers uint32

	// FinalityWindow overrides DefaultFinalityWindow; see
	// finality.Coordinator.
	FinalityWindow time.Duration

	// VotePrivKey is the hex-encoded secp256k1 private key this node
	// votes with. Empty means the node relays and tallies but casts no
	// votes of its own.
	VotePrivKey string

	// ValidateAddresses makes admission decode every output's
	// destination against NetParams instead of treating addresses as
	// opaque strings.
	ValidateAddresses bool

	// SnapshotDir is where the leveldb-backed utxo.SnapshotStore
	// persists output state between restarts. Empty disables
	// persistence.
	SnapshotDir string

	// RPCHost, RPCUser, RPCPass, RPCCert configure the chainquery
	// client's connection to the backing node.
	RPCHost string
	RPCUser string
	RPCPass string
	RPCCert string

	// MetricsAddr, if set, serves Prometheus metrics on this address.
	MetricsAddr string

	// LogDir is where rotated log files are written.
	LogDir string

	// DebugLevel is the slog level string applied to every subsystem,
	// e.g. "info" or "debug".
	DebugLevel string
}

// DefaultConfig returns a Config with every optional field set to its
// package default, with NetParams set to mainnet. ListenAddrs and RPC
// credentials still need to be filled in by the caller.
func DefaultConfig() Config {
	return Config{
		NetParams:           chaincfg.MainNetParams,
		TargetOutboundPeers: 8,
		FinalityWindow:      DefaultFinalityWindow,
		DebugLevel:          "info",
	}
}

// InitLogRotator wires cfg.LogDir into a build.RotatingLogWriter and
// runs SetupLoggers against it, in the same two-step
// rotator-then-subloggers sequence the daemon startup expects.
func InitLogRotator(cfg Config, logFileName string) (*build.RotatingLogWriter, error) {
	writer := build.NewRotatingLogWriter()
	if err := writer.InitLogRotator(logFileName, DefaultMaxLogFileSize, DefaultMaxLogFiles); err != nil {
		return nil, err
	}

	SetupLoggers(writer)
	writer.SetLogLevels(cfg.DebugLevel)

	return writer, nil
}
