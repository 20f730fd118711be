package ethereum

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Event topics emitted by the merge contract.
const (
	// MassUpdateTopic is keccak256("MassUpdate(uint256,uint256,uint256)").
	MassUpdateTopic = "0x7ba170514e8ea35827dbbd10c6d3376ca77ff64b62e4b0a395bac9b142dc81dc"
	// TransferTopic is the standard ERC-721 Transfer topic.
	TransferTopic = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"
)

// Function selectors of the merge contract views.
const (
	selTotalSupply   = "0x18160ddd" // totalSupply()
	selGetValueOf    = "0x0ab2b6b9" // getValueOf(uint256)
	selGetMergeCount = "0x2ca1aa1b" // getMergeCount(uint256)
)

// ErrNonexistentToken is returned when a state query reverts because the
// token does not exist. This is an expected determination ("the token is
// burned"), never a transient failure, and must not be retried.
var ErrNonexistentToken = errors.New("nonexistent token")

// IsNonexistentToken reports whether err is the "token does not exist"
// determination.
func IsNonexistentToken(err error) bool {
	return errors.Is(err, ErrNonexistentToken)
}

// Contract is a read-only binding to the merge contract's view methods.
type Contract struct {
	client  *HTTPClient
	address string
}

// NewContract creates a contract binding for the given address.
func NewContract(client *HTTPClient, address string) *Contract {
	return &Contract{client: client, address: strings.ToLower(address)}
}

// Address returns the bound contract address.
func (c *Contract) Address() string {
	return c.address
}

// SnapshotBlock returns the current head block, used to pin a consistent
// read snapshot across a batched scan.
func (c *Contract) SnapshotBlock(ctx context.Context) (int64, error) {
	return c.client.BlockNumber(ctx)
}

// TotalSupply returns the number of alive tokens at the given block
// (non-positive block means latest).
func (c *Contract) TotalSupply(ctx context.Context, block int64) (int64, error) {
	out, err := c.client.CallContract(ctx, c.address, selTotalSupply, BlockTag(block))
	if err != nil {
		return 0, mapRevert(err)
	}
	return ParseHexInt64(out)
}

// GetValueOf returns the packed (tier, mass) value of a token at the
// given block. Returns ErrNonexistentToken when the token is burned at
// that block.
func (c *Contract) GetValueOf(ctx context.Context, tokenID int, block int64) (int64, error) {
	out, err := c.client.CallContract(ctx, c.address, encodeUintCall(selGetValueOf, uint64(tokenID)), BlockTag(block))
	if err != nil {
		return 0, mapRevert(err)
	}
	return ParseHexInt64(out)
}

// GetMergeCount returns how many tokens have been merged into tokenID.
func (c *Contract) GetMergeCount(ctx context.Context, tokenID int, block int64) (int64, error) {
	out, err := c.client.CallContract(ctx, c.address, encodeUintCall(selGetMergeCount, uint64(tokenID)), BlockTag(block))
	if err != nil {
		return 0, mapRevert(err)
	}
	return ParseHexInt64(out)
}

// encodeUintCall builds eth_call data: 4-byte selector followed by one
// ABI-encoded uint256 argument.
func encodeUintCall(selector string, arg uint64) string {
	return selector + fmt.Sprintf("%064s", strconv.FormatUint(arg, 16))
}

// PadTopic left-pads an address or integer to the 32-byte topic form
// used by indexed log filters.
func PadTopic(value string) string {
	return "0x" + fmt.Sprintf("%064s", strings.TrimPrefix(strings.ToLower(value), "0x"))
}

// ZeroTopic is the all-zero topic (the mint "from" address).
var ZeroTopic = PadTopic("0x0")

// mapRevert converts the contract's "nonexistent token" revert into
// ErrNonexistentToken; all other errors pass through.
func mapRevert(err error) error {
	if err == nil {
		return nil
	}
	var rpcErr *rpcError
	if errors.As(err, &rpcErr) {
		msg := strings.ToLower(rpcErr.Message + " " + rpcErr.Data)
		if strings.Contains(msg, "nonexistent") {
			return ErrNonexistentToken
		}
	}
	return err
}
