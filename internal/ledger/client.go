// Package ledger wraps the signing account and RPC connection used to anchor
// skill ratings on chain. One call anchors one skill line and waits for the
// transaction to be included in a block. Calls are not idempotent at the
// ledger level; the orchestrator gates resubmission on the line's on_chain
// flag.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nspcc-dev/neo-go/pkg/core/state"
	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/nspcc-dev/neo-go/pkg/rpcclient"
	"github.com/nspcc-dev/neo-go/pkg/rpcclient/actor"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/vmstate"
	"github.com/nspcc-dev/neo-go/pkg/wallet"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-anchor/internal/hashing"
)

// AnchorMethod is the entry point the deployed contract exposes for skill
// rating anchoring.
const AnchorMethod = "anchorSkillRating"

// ErrInvalidConfig indicates a required ledger secret or address is missing
// or malformed. Fatal at startup, never recovered.
var ErrInvalidConfig = errors.New("invalid ledger configuration")

// ErrSubmission indicates the RPC node rejected the transaction or the
// invocation faulted. The transaction may or may not have landed; callers
// must rely on the on_chain gate, not on this error, to decide resubmission.
var ErrSubmission = errors.New("ledger submission failed")

// ErrConfirmation indicates the transaction was accepted but not confirmed
// within the wait policy. As with ErrSubmission, it does not imply the
// transaction failed to land.
var ErrConfirmation = errors.New("ledger confirmation timed out")

// Config holds the secrets and addresses required to talk to the ledger.
type Config struct {
	RPCURL         string
	WIF            string
	Contract       string
	ConfirmTimeout time.Duration
}

// AnchorRequest carries one skill line's anchoring payload.
type AnchorRequest struct {
	SessionHash hashing.Digest
	TaskHash    hashing.Digest
	SubjectHash hashing.Digest
	RaterDID    string
	RatedDID    string
	SkillID     uint   `validate:"required"`
	SkillName   string `validate:"required"`
	Stars       int    `validate:"min=1,max=5"`
}

// AnchorReceipt reports a confirmed anchoring transaction.
type AnchorReceipt struct {
	TxHash      string
	BlockNumber uint32
}

// contractActor is the slice of actor.Actor the client uses; narrowed for tests.
type contractActor interface {
	SendCall(contract util.Uint160, method string, params ...any) (util.Uint256, uint32, error)
	Wait(h util.Uint256, vub uint32, err error) (*state.AppExecResult, error)
}

// heightSource resolves the block a confirmed transaction landed in.
type heightSource interface {
	GetTransactionHeight(hash util.Uint256) (uint32, error)
}

// Client submits anchoring transactions from a single signing account.
type Client struct {
	act            contractActor
	heights        heightSource
	contract       util.Uint160
	confirmTimeout time.Duration
	validator      *validator.Validate
	logger         zerolog.Logger
}

// New validates the configuration, opens the RPC connection and prepares the
// signing actor. Any missing secret fails fast.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("%w: rpc url must be provided", ErrInvalidConfig)
	}
	if cfg.WIF == "" {
		return nil, fmt.Errorf("%w: signing key must be provided", ErrInvalidConfig)
	}
	if cfg.Contract == "" {
		return nil, fmt.Errorf("%w: contract address must be provided", ErrInvalidConfig)
	}

	contract, err := util.Uint160DecodeStringLE(strings.TrimPrefix(cfg.Contract, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: bad contract address: %v", ErrInvalidConfig, err)
	}

	priv, err := keys.NewPrivateKeyFromWIF(cfg.WIF)
	if err != nil {
		return nil, fmt.Errorf("%w: bad signing key: %v", ErrInvalidConfig, err)
	}

	rpc, err := rpcclient.New(ctx, cfg.RPCURL, rpcclient.Options{})
	if err != nil {
		return nil, fmt.Errorf("create rpc client: %w", err)
	}
	if err := rpc.Init(); err != nil {
		return nil, fmt.Errorf("init rpc client: %w", err)
	}

	act, err := actor.NewSimple(rpc, wallet.NewAccountFromPrivateKey(priv))
	if err != nil {
		return nil, fmt.Errorf("init transaction sender from signing account: %w", err)
	}

	confirmTimeout := cfg.ConfirmTimeout
	if confirmTimeout <= 0 {
		confirmTimeout = 3 * time.Minute
	}

	return &Client{
		act:            act,
		heights:        rpc,
		contract:       contract,
		confirmTimeout: confirmTimeout,
		validator:      validator.New(validator.WithRequiredStructEnabled()),
		logger:         logger.With().Str("component", "ledger_client").Logger(),
	}, nil
}

// AnchorSkillRating submits one anchoring transaction and blocks until it is
// included in a block or the wait policy gives up.
func (c *Client) AnchorSkillRating(ctx context.Context, req AnchorRequest) (AnchorReceipt, error) {
	if err := c.validator.Struct(req); err != nil {
		return AnchorReceipt{}, fmt.Errorf("%w: %v", ErrSubmission, err)
	}

	txHash, vub, err := c.act.SendCall(c.contract, AnchorMethod,
		req.SessionHash.Bytes(),
		req.TaskHash.Bytes(),
		req.SubjectHash.Bytes(),
		req.RaterDID,
		req.RatedDID,
		int64(req.SkillID),
		req.SkillName,
		int64(req.Stars),
	)
	if err != nil {
		return AnchorReceipt{}, fmt.Errorf("%w: %v", ErrSubmission, err)
	}

	c.logger.Debug().
		Str("tx_hash", txHash.StringLE()).
		Uint32("valid_until_block", vub).
		Uint("skill_id", req.SkillID).
		Msg("anchoring transaction sent")

	res, err := c.waitForInclusion(ctx, txHash, vub)
	if err != nil {
		return AnchorReceipt{}, err
	}

	if res.VMState != vmstate.Halt {
		return AnchorReceipt{}, fmt.Errorf("%w: invocation faulted with state %s", ErrSubmission, res.VMState)
	}

	height, err := c.heights.GetTransactionHeight(txHash)
	if err != nil {
		return AnchorReceipt{}, fmt.Errorf("%w: confirmed but height lookup failed: %v", ErrConfirmation, err)
	}

	return AnchorReceipt{TxHash: txHash.StringLE(), BlockNumber: height}, nil
}

func (c *Client) waitForInclusion(ctx context.Context, txHash util.Uint256, vub uint32) (*state.AppExecResult, error) {
	type waitResult struct {
		res *state.AppExecResult
		err error
	}

	// The actor's wait is bounded by the transaction's ValidUntilBlock
	// horizon; the timer below adds a wall-clock bound on top.
	done := make(chan waitResult, 1)
	go func() {
		res, err := c.act.Wait(txHash, vub, nil)
		done <- waitResult{res: res, err: err}
	}()

	timer := time.NewTimer(c.confirmTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrConfirmation, ctx.Err())
	case <-timer.C:
		return nil, fmt.Errorf("%w: transaction %s not confirmed within %s", ErrConfirmation, txHash.StringLE(), c.confirmTimeout)
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfirmation, r.err)
		}
		return r.res, nil
	}
}
