// Package tcwire implements the instant-finality core's own wire protocol:
// a length-prefixed, magic-tagged JSON message union carrying transactions,
// votes, state queries, and state-change notifications between masternodes
// and client wallets.
//
// The name mirrors the convention used elsewhere in the ecosystem of giving
// a protocol's own message set a short prefixed name (lnwire for the
// Lightning wire protocol) distinct from the low level transaction wire
// format in github.com/decred/dcrd/wire. This package does not use dcrd/wire;
// it defines its own output references and carries amounts as int64.
package tcwire

import (
	"encoding/json"
	"fmt"

	"github.com/decred/dcrd/chaincfg/chainhash"
)

// MessageType is the discriminant carried in every message envelope's "type"
// field.
type MessageType string

// The full message grammar. GetBlocks, BlocksData, and UpdateTip belong
// to the block-storage component; the core must decode and forward them,
// never reject them outright.
const (
	MsgHandshake             MessageType = "Handshake"
	MsgTransactionBroadcast  MessageType = "TransactionBroadcast"
	MsgVote                  MessageType = "Vote"
	MsgUTXOStateQuery        MessageType = "UTXOStateQuery"
	MsgUTXOStateResponse     MessageType = "UTXOStateResponse"
	MsgUTXOStateNotification MessageType = "UTXOStateNotification"
	MsgUTXOSubscribe         MessageType = "UTXOSubscribe"
	MsgUTXOUnsubscribe       MessageType = "UTXOUnsubscribe"
	MsgPing                  MessageType = "Ping"
	MsgPong                  MessageType = "Pong"
	MsgGetBlocks             MessageType = "GetBlocks"
	MsgBlocksData            MessageType = "BlocksData"
	MsgUpdateTip             MessageType = "UpdateTip"
)

// Envelope is the outer shape every frame's JSON payload takes: a
// discriminant plus the raw, type-specific body. Decoding is two-phase so
// that an unrecognized Type can be skipped rather than treated as fatal,
// which is what keeps old nodes compatible with newer message sets.
type Envelope struct {
	Type MessageType     `json:"type"`
	Body json.RawMessage `json:"body"`
}

// Message is implemented by every concrete payload type below.
type Message interface {
	MsgType() MessageType
}

// Encode wraps a Message in its envelope and marshals it to JSON.
func Encode(m Message) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal %s body: %w", m.MsgType(), err)
	}

	return json.Marshal(Envelope{Type: m.MsgType(), Body: body})
}

// Decode unmarshals a raw JSON frame into its envelope and, for recognized
// types, the concrete Message. ok is false for an unknown tag; callers must
// skip such frames rather than treat them as a protocol violation.
func Decode(raw []byte) (msg Message, ok bool, err error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, false, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case MsgHandshake:
		var m Handshake
		err = json.Unmarshal(env.Body, &m)
		msg = &m
	case MsgTransactionBroadcast:
		var m TransactionBroadcast
		err = json.Unmarshal(env.Body, &m)
		msg = &m
	case MsgVote:
		var m VoteMsg
		err = json.Unmarshal(env.Body, &m)
		msg = &m
	case MsgUTXOStateQuery:
		var m UTXOStateQuery
		err = json.Unmarshal(env.Body, &m)
		msg = &m
	case MsgUTXOStateResponse:
		var m UTXOStateResponse
		err = json.Unmarshal(env.Body, &m)
		msg = &m
	case MsgUTXOStateNotification:
		var m UTXOStateNotification
		err = json.Unmarshal(env.Body, &m)
		msg = &m
	case MsgUTXOSubscribe:
		var m UTXOSubscribe
		err = json.Unmarshal(env.Body, &m)
		msg = &m
	case MsgUTXOUnsubscribe:
		var m UTXOUnsubscribe
		err = json.Unmarshal(env.Body, &m)
		msg = &m
	case MsgPing:
		var m Ping
		err = json.Unmarshal(env.Body, &m)
		msg = &m
	case MsgPong:
		var m Pong
		err = json.Unmarshal(env.Body, &m)
		msg = &m
	case MsgGetBlocks:
		var m GetBlocks
		err = json.Unmarshal(env.Body, &m)
		msg = &m
	case MsgBlocksData:
		var m BlocksData
		err = json.Unmarshal(env.Body, &m)
		msg = &m
	case MsgUpdateTip:
		var m UpdateTip
		err = json.Unmarshal(env.Body, &m)
		msg = &m
	default:
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("decode %s body: %w", env.Type, err)
	}

	return msg, true, nil
}

// OutRef identifies one transaction output by the id of the transaction
// that produced it and its index within that transaction's output list.
type OutRef struct {
	TxID  chainhash.Hash `json:"txid"`
	Index uint32         `json:"index"`
}

func (o OutRef) String() string {
	return fmt.Sprintf("%s:%d", o.TxID, o.Index)
}

// TxInput is one spend authorization inside a Transaction. PubKey is
// carried alongside Signature, rather than looked up from the output
// being spent, since the core's UTXO records bind an output to a
// destination address string, not a script or key.
type TxInput struct {
	PrevOut   OutRef `json:"prev_out"`
	PubKey    []byte `json:"pubkey"`
	Signature []byte `json:"signature"`
}

// TxOutput is one value destination inside a Transaction.
type TxOutput struct {
	Amount  int64  `json:"amount"`
	Address string `json:"address"`
}

// Tx is the wire representation of an immutable transaction record. Its
// Inputs and Outputs are ordered; order is significant for output indexing.
type Tx struct {
	ID        chainhash.Hash `json:"id"`
	Inputs    []TxInput      `json:"inputs"`
	Outputs   []TxOutput     `json:"outputs"`
	Timestamp int64          `json:"timestamp"`
}

// Handshake is the first frame sent in each direction after a connection is
// opened.
type Handshake struct {
	ProtocolVersion uint32         `json:"protocol_version"`
	Network         string         `json:"network"`
	GenesisHash     chainhash.Hash `json:"genesis_hash"`
	Height          uint64         `json:"height"`
	CommitID        string         `json:"commit_id"`
}

func (h *Handshake) MsgType() MessageType { return MsgHandshake }

// TransactionBroadcast introduces a new transaction for voting.
type TransactionBroadcast struct {
	Tx Tx `json:"tx"`
}

func (m *TransactionBroadcast) MsgType() MessageType { return MsgTransactionBroadcast }

// VoteMsg carries one masternode's approval or rejection of a transaction.
type VoteMsg struct {
	TxID      chainhash.Hash `json:"txid"`
	VoterID   string         `json:"voter_id"`
	Approve   bool           `json:"approve"`
	Signature []byte         `json:"signature"`
	Timestamp int64          `json:"timestamp"`
}

func (m *VoteMsg) MsgType() MessageType { return MsgVote }

// UTXOStateQuery asks for the current state of a list of outputs.
type UTXOStateQuery struct {
	OutRefs []OutRef `json:"outrefs"`
}

func (m *UTXOStateQuery) MsgType() MessageType { return MsgUTXOStateQuery }

// StateEntry is one (outref, state) pair in a UTXOStateResponse.
type StateEntry struct {
	OutRef OutRef `json:"outref"`
	State  string `json:"state"`
}

// UTXOStateResponse answers a UTXOStateQuery.
type UTXOStateResponse struct {
	Entries []StateEntry `json:"entries"`
}

func (m *UTXOStateResponse) MsgType() MessageType { return MsgUTXOStateResponse }

// UTXOStateNotification pushes a single state transition to a subscriber.
type UTXOStateNotification struct {
	OutRef     OutRef `json:"outref"`
	OldState   string `json:"old_state"`
	NewState   string `json:"new_state"`
	Originator string `json:"originator"`
	Timestamp  int64  `json:"timestamp"`
}

func (m *UTXOStateNotification) MsgType() MessageType { return MsgUTXOStateNotification }

// UTXOSubscribe registers a subscriber's interest in a set of outputs and
// addresses.
type UTXOSubscribe struct {
	SubscriberID string   `json:"subscriber_id"`
	OutRefs      []OutRef `json:"outrefs"`
	Addresses    []string `json:"addresses"`
}

func (m *UTXOSubscribe) MsgType() MessageType { return MsgUTXOSubscribe }

// UTXOUnsubscribe drops a previously registered subscription.
type UTXOUnsubscribe struct {
	SubscriberID string `json:"subscriber_id"`
}

func (m *UTXOUnsubscribe) MsgType() MessageType { return MsgUTXOUnsubscribe }

// Ping is a keepalive request carrying a monotonic nonce.
type Ping struct {
	Nonce uint64 `json:"nonce"`
}

func (m *Ping) MsgType() MessageType { return MsgPing }

// Pong answers a Ping with the same nonce.
type Pong struct {
	Nonce uint64 `json:"nonce"`
}

func (m *Pong) MsgType() MessageType { return MsgPong }

// GetBlocks, BlocksData, and UpdateTip belong to the block-storage and
// chain-sync component. The core only needs to be able to decode and
// relay them without treating an unimplemented handler as a protocol
// violation.

// GetBlocks requests blocks starting after a known locator hash.
type GetBlocks struct {
	LocatorHashes []chainhash.Hash `json:"locator_hashes"`
}

func (m *GetBlocks) MsgType() MessageType { return MsgGetBlocks }

// BlocksData carries raw, opaque block bytes in response to GetBlocks.
type BlocksData struct {
	Blocks [][]byte `json:"blocks"`
}

func (m *BlocksData) MsgType() MessageType { return MsgBlocksData }

// UpdateTip announces a peer's current best block height and hash.
type UpdateTip struct {
	Height int64          `json:"height"`
	Hash   chainhash.Hash `json:"hash"`
}

func (m *UpdateTip) MsgType() MessageType { return MsgUpdateTip }
