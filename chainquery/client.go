// Package chainquery gives the instant-finality core read-only access to
// the underlying chain's current height and tip hash, which the
// masternode registry needs to evaluate collateral maturity and which
// peers advertise during the handshake. Full block validation, mining,
// and reorg handling live in the chain-sync component; this package only
// talks to an already-running node's RPC server.
package chainquery

import (
	"context"
	"fmt"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrjson/v3"
	chainjson "github.com/decred/dcrd/rpc/jsonrpc/types/v3"
	"github.com/decred/dcrd/rpcclient/v7"
	"github.com/decred/dcrd/wire"
	"github.com/go-errors/errors"
	lru "github.com/hashicorp/golang-lru"
)

// utxoCacheSize bounds the number of GetTxOut cross-check results kept in
// memory. Sized generously since each entry is a handful of bytes.
const utxoCacheSize = 4096

// ErrChainRPC is returned when the backing node rejected a request
// outright, as opposed to a transport error the caller may retry.
var ErrChainRPC = errors.New("chainquery: backing node rejected request")

// Config holds the connection details for the backing node's JSON-RPC
// server.
type Config struct {
	RPCHost string
	RPCUser string
	RPCPass string
	RPCCert []byte
}

// backend is the narrow subset of rpcclient.Client this package calls.
// Factoring it out lets tests substitute a fake without dialing a real
// node.
type backend interface {
	GetBlockCount(ctx context.Context) (int64, error)
	GetBestBlockHash(ctx context.Context) (*chainhash.Hash, error)
	GetTxOut(ctx context.Context, txHash *chainhash.Hash, index uint32, tree int8, mempool bool) (*chainjson.GetTxOutResult, error)
	Shutdown()
}

// Client wraps an rpcclient.Client with the narrow subset of chain
// queries the core actually needs.
type Client struct {
	rpc       backend
	utxoCache *lru.Cache
}

// Dial connects to the node described by cfg. notifyHandlers may be nil,
// which selects HTTP POST mode; when set, the handlers are passed to
// rpcclient over a websocket connection. TipHeight queries the node on
// every call either way.
func Dial(cfg Config, notifyHandlers *rpcclient.NotificationHandlers) (*Client, error) {
	connCfg := &rpcclient.ConnConfig{
		Host:         cfg.RPCHost,
		User:         cfg.RPCUser,
		Pass:         cfg.RPCPass,
		Certificates: cfg.RPCCert,
		HTTPPostMode: notifyHandlers == nil,
		DisableTLS:   len(cfg.RPCCert) == 0,
	}

	rpc, err := rpcclient.New(connCfg, notifyHandlers)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}

	cache, err := lru.New(utxoCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}

	return &Client{rpc: rpc, utxoCache: cache}, nil
}

// Shutdown closes the underlying RPC connection.
func (c *Client) Shutdown() {
	c.rpc.Shutdown()
}

// TipHeight returns the backing node's current best block height.
func (c *Client) TipHeight(ctx context.Context) (int64, error) {
	height, err := c.rpc.GetBlockCount(ctx)
	if err != nil {
		return 0, wrapRPCErr(err)
	}
	return height, nil
}

// TipHash returns the backing node's current best block hash.
func (c *Client) TipHash(ctx context.Context) (chainhash.Hash, error) {
	hash, err := c.rpc.GetBestBlockHash(ctx)
	if err != nil {
		return chainhash.Hash{}, wrapRPCErr(err)
	}
	return *hash, nil
}

// UTXOExists reports whether the backing node still considers txid:index
// unspent in its own view, used as a cross-check before admitting a
// transaction that spends it alongside the in-memory utxo.Manager. Results
// are cached; call InvalidateUTXO once the in-memory manager observes a
// transition on the same output so a stale cache entry can't shadow it.
func (c *Client) UTXOExists(ctx context.Context, txid chainhash.Hash, index uint32) (bool, error) {
	key := utxoCacheKey(txid, index)
	if c.utxoCache != nil {
		if v, ok := c.utxoCache.Get(key); ok {
			return v.(bool), nil
		}
	}

	out, err := c.rpc.GetTxOut(ctx, &txid, index, wire.TxTreeRegular, true)
	if err != nil {
		return false, wrapRPCErr(err)
	}

	exists := out != nil
	if c.utxoCache != nil {
		c.utxoCache.Add(key, exists)
	}
	return exists, nil
}

// InvalidateUTXO drops any cached GetTxOut result for txid:index.
func (c *Client) InvalidateUTXO(txid chainhash.Hash, index uint32) {
	if c.utxoCache != nil {
		c.utxoCache.Remove(utxoCacheKey(txid, index))
	}
}

// wrapRPCErr distinguishes a server-side rejection, which will not
// succeed on retry, from a transport failure, which may.
func wrapRPCErr(err error) error {
	if rpcErr, ok := err.(*dcrjson.RPCError); ok {
		return fmt.Errorf("%s: %w", rpcErr.Error(), ErrChainRPC)
	}
	return errors.Wrap(err, 0)
}

func utxoCacheKey(txid chainhash.Hash, index uint32) string {
	return fmt.Sprintf("%s:%d", txid, index)
}
