package chain

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/rpc"
)

// ErrNotFound marks a block or transaction the node does not have (yet).
var ErrNotFound = errors.New("not found")

// Client wraps the CometBFT JSON-RPC surface of a CosmWasm chain. The
// connection is established on first use and Close is idempotent.
type Client struct {
	endpoint string

	mu  sync.Mutex
	rpc *rpc.Client
}

// NodeStatus is the subset of the node's status result the indexer needs.
type NodeStatus struct {
	ChainID      string
	LatestHeight uint64
	CatchingUp   bool
}

// Block carries the canonical block id and the ordered tx hashes of one block.
type Block struct {
	Height   uint64
	Hash     string
	Time     time.Time
	ChainID  string
	TxHashes []string
}

// TxResult is one executed transaction with its ordered event list.
// Code == 0 means success; failed transactions emit no durable projection.
type TxResult struct {
	Hash   string
	Height uint64
	Code   uint32
	Log    string
	Events []Event
}

// Event is a single emitted event: a type plus an ordered attribute list.
type Event struct {
	Type       string
	Attributes []Attribute
}

// Attribute is one (key, value) pair of an event.
type Attribute struct {
	Key   string
	Value string
}

func NewClient(endpoint string) *Client {
	return &Client{endpoint: endpoint}
}

func (c *Client) conn(ctx context.Context) (*rpc.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rpc != nil {
		return c.rpc, nil
	}
	client, err := rpc.DialContext(ctx, c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc endpoint %s: %w", c.endpoint, err)
	}
	c.rpc = client
	return c.rpc, nil
}

// Close tears the RPC connection down. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rpc != nil {
		c.rpc.Close()
		c.rpc = nil
	}
}

func (c *Client) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	client, err := c.conn(ctx)
	if err != nil {
		return err
	}
	if err := client.CallContext(ctx, result, method, args...); err != nil {
		if isNotFoundMessage(err) {
			return fmt.Errorf("%s: %s: %w", method, err.Error(), ErrNotFound)
		}
		return fmt.Errorf("%s call failed: %w", method, err)
	}
	return nil
}

// wire shapes of the CometBFT JSON-RPC results we consume

type statusResult struct {
	NodeInfo struct {
		Network string `json:"network"`
	} `json:"node_info"`
	SyncInfo struct {
		LatestBlockHeight string `json:"latest_block_height"`
		CatchingUp        bool   `json:"catching_up"`
	} `json:"sync_info"`
}

type blockResult struct {
	BlockID struct {
		Hash string `json:"hash"`
	} `json:"block_id"`
	Block struct {
		Header struct {
			ChainID string    `json:"chain_id"`
			Height  string    `json:"height"`
			Time    time.Time `json:"time"`
		} `json:"header"`
		Data struct {
			Txs []string `json:"txs"`
		} `json:"data"`
	} `json:"block"`
}

type txResult struct {
	Hash     string `json:"hash"`
	Height   string `json:"height"`
	TxResult struct {
		Code   uint32      `json:"code"`
		Log    string      `json:"log"`
		Events []wireEvent `json:"events"`
	} `json:"tx_result"`
}

type wireEvent struct {
	Type       string `json:"type"`
	Attributes []struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	} `json:"attributes"`
}

// Status queries the node's status endpoint.
func (c *Client) Status(ctx context.Context) (*NodeStatus, error) {
	var res statusResult
	if err := c.call(ctx, &res, "status"); err != nil {
		return nil, err
	}
	height, err := strconv.ParseUint(res.SyncInfo.LatestBlockHeight, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse latest block height %q: %w", res.SyncInfo.LatestBlockHeight, err)
	}
	return &NodeStatus{
		ChainID:      res.NodeInfo.Network,
		LatestHeight: height,
		CatchingUp:   res.SyncInfo.CatchingUp,
	}, nil
}

// LatestHeight returns the chain tip height.
func (c *Client) LatestHeight(ctx context.Context) (uint64, error) {
	status, err := c.Status(ctx)
	if err != nil {
		return 0, err
	}
	return status.LatestHeight, nil
}

// VerifyChainID compares the node's network id against the expected one.
func (c *Client) VerifyChainID(ctx context.Context, expected string) error {
	status, err := c.Status(ctx)
	if err != nil {
		return err
	}
	if status.ChainID != expected {
		return fmt.Errorf("chain id mismatch: node reports %q, config expects %q", status.ChainID, expected)
	}
	return nil
}

// Block fetches the block at height. Tx hashes are derived from the raw tx
// bytes the way the chain derives them (sha256), hex lowercase, in block
// order. Heights the node does not have yet map to ErrNotFound.
func (c *Client) Block(ctx context.Context, height uint64) (*Block, error) {
	var res blockResult
	if err := c.call(ctx, &res, "block", strconv.FormatUint(height, 10)); err != nil {
		return nil, err
	}

	parsedHeight, err := strconv.ParseUint(res.Block.Header.Height, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse block height %q: %w", res.Block.Header.Height, err)
	}
	if parsedHeight != height {
		return nil, fmt.Errorf("block response height %d does not match requested %d", parsedHeight, height)
	}

	hashes := make([]string, 0, len(res.Block.Data.Txs))
	for i, raw := range res.Block.Data.Txs {
		txBytes, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode tx %d in block %d: %w", i, height, err)
		}
		hashes = append(hashes, TxHash(txBytes))
	}

	return &Block{
		Height:   parsedHeight,
		Hash:     strings.ToLower(res.BlockID.Hash),
		Time:     res.Block.Header.Time,
		ChainID:  res.Block.Header.ChainID,
		TxHashes: hashes,
	}, nil
}

// Tx fetches an executed transaction by its hex hash.
func (c *Client) Tx(ctx context.Context, hash string) (*TxResult, error) {
	hashBytes, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(hash), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid tx hash %q: %w", hash, err)
	}

	var res txResult
	if err := c.call(ctx, &res, "tx", base64.StdEncoding.EncodeToString(hashBytes), false); err != nil {
		return nil, err
	}

	height, err := strconv.ParseUint(res.Height, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse tx height %q: %w", res.Height, err)
	}

	events := make([]Event, 0, len(res.TxResult.Events))
	for _, ev := range res.TxResult.Events {
		events = append(events, normalizeEvent(ev))
	}

	return &TxResult{
		Hash:   strings.ToLower(res.Hash),
		Height: height,
		Code:   res.TxResult.Code,
		Log:    res.TxResult.Log,
		Events: events,
	}, nil
}

// TxHash derives the canonical hash of raw tx bytes, hex lowercase.
func TxHash(txBytes []byte) string {
	sum := sha256.Sum256(txBytes)
	return hex.EncodeToString(sum[:])
}

// normalizeEvent copies a wire event into the exported shape. Older node
// lines base64-encode attribute keys and values; when a wasm event carries
// no recognizable contract-address key in plain form but does after base64
// decoding, the decoded form wins.
func normalizeEvent(ev wireEvent) Event {
	out := Event{Type: ev.Type, Attributes: make([]Attribute, 0, len(ev.Attributes))}
	for _, attr := range ev.Attributes {
		out.Attributes = append(out.Attributes, Attribute{Key: attr.Key, Value: attr.Value})
	}
	if ev.Type != "wasm" || hasContractAddressKey(out.Attributes) {
		return out
	}
	if decoded, ok := decodeBase64Attributes(out.Attributes); ok && hasContractAddressKey(decoded) {
		out.Attributes = decoded
	}
	return out
}

func hasContractAddressKey(attrs []Attribute) bool {
	for _, a := range attrs {
		if a.Key == "_contract_address" || a.Key == "contract_address" {
			return true
		}
	}
	return false
}

func decodeBase64Attributes(attrs []Attribute) ([]Attribute, bool) {
	decoded := make([]Attribute, 0, len(attrs))
	for _, a := range attrs {
		key, ok := decodeBase64String(a.Key)
		if !ok {
			return nil, false
		}
		value, ok := decodeBase64String(a.Value)
		if !ok {
			return nil, false
		}
		decoded = append(decoded, Attribute{Key: key, Value: value})
	}
	return decoded, true
}

func decodeBase64String(s string) (string, bool) {
	if s == "" {
		return "", true
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil || !utf8.Valid(raw) {
		return "", false
	}
	return string(raw), true
}

func isNotFoundMessage(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") ||
		strings.Contains(msg, "must be less than or equal to")
}

// IsNotFound reports whether err marks a missing block or transaction.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
