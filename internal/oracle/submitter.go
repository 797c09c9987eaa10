package oracle

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"math/rand"
	"strings"
	"time"

	"github.com/obralink/oraculo/internal/backoff"
	"github.com/obralink/oraculo/internal/metrics"
	"github.com/obralink/oraculo/pkg/domain"
	"github.com/obralink/oraculo/pkg/persistence"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Options parameterizes a Submitter. Zero values are filled with the same
// defaults the config layer applies.
type Options struct {
	Contract       common.Address
	ChainID        *big.Int
	GasLimit       uint64
	MaxAttempts    int
	FeeBumpPercent int64
	ReceiptWait    time.Duration
	PollBase       time.Duration
	PollMax        time.Duration
	BackoffPolicy  string
	InFlightTTL    time.Duration
}

// Submitter drives a milestone confirmation through the chain exactly once
// per idempotency key. All state lives in the ledger; the submitter itself is
// stateless between calls and safe for concurrent use.
type Submitter struct {
	backend ChainBackend
	ledger  persistence.LedgerStorage
	nonces  persistence.NonceStorage
	signKey *ecdsa.PrivateKey
	from    common.Address
	opts    Options
	logger  *slog.Logger

	// Injectable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	rng   *rand.Rand
}

func NewSubmitter(backend ChainBackend, ledger persistence.LedgerStorage, nonces persistence.NonceStorage, privateKeyHex string, opts Options, logger *slog.Logger) (*Submitter, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	if opts.ChainID == nil {
		opts.ChainID = big.NewInt(1)
	}
	if opts.GasLimit == 0 {
		opts.GasLimit = 300000
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.FeeBumpPercent <= 0 {
		opts.FeeBumpPercent = 15
	}
	if opts.ReceiptWait <= 0 {
		opts.ReceiptWait = 120 * time.Second
	}
	if opts.PollBase <= 0 {
		opts.PollBase = 500 * time.Millisecond
	}
	if opts.PollMax <= 0 {
		opts.PollMax = 10 * time.Second
	}
	if opts.BackoffPolicy == "" {
		opts.BackoffPolicy = "exponential"
	}
	if opts.InFlightTTL <= 0 {
		// Long enough to cover every broadcast cycle plus its receipt wait.
		opts.InFlightTTL = time.Duration(opts.MaxAttempts)*opts.ReceiptWait + time.Minute
	}
	return &Submitter{
		backend: backend,
		ledger:  ledger,
		nonces:  nonces,
		signKey: key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		opts:    opts,
		logger:  logger,
		now:     time.Now,
		sleep:   sleepCtx,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// From returns the signing address.
func (s *Submitter) From() common.Address { return s.from }

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Submit confirms the milestone on chain, or returns the prior outcome when
// the key already reached a terminal state. A second caller arriving while an
// attempt is in flight gets the PENDING record back without a second
// broadcast.
func (s *Submitter) Submit(ctx context.Context, key domain.IdempotencyKey, ref domain.MilestoneReference) (*domain.SubmissionRecord, error) {
	start := s.now()

	rec, err := s.ledger.Get(ctx, key)
	if err != nil && !errors.Is(err, persistence.ErrNotFound) {
		return nil, fmt.Errorf("ledger get: %w", err)
	}
	if rec != nil && rec.State.Terminal() {
		metrics.OracleIdempotentHitsTotal.Inc()
		return rec, nil
	}

	ok, err := s.ledger.AcquireInFlight(ctx, key, s.opts.InFlightTTL)
	if err != nil {
		return nil, fmt.Errorf("ledger acquire: %w", err)
	}
	if !ok {
		// Someone else is mid-attempt. Hand back what the ledger has.
		metrics.OracleIdempotentHitsTotal.Inc()
		if rec != nil {
			return rec, nil
		}
		return &domain.SubmissionRecord{
			Key:       key,
			Milestone: ref,
			State:     domain.SubmissionPending,
			CreatedAt: start,
			UpdatedAt: start,
		}, nil
	}
	defer func() {
		if err := s.ledger.ReleaseInFlight(context.WithoutCancel(ctx), key); err != nil {
			s.logger.Warn("release in-flight marker", "key", key, "error", err)
		}
	}()

	if rec == nil {
		rec = &domain.SubmissionRecord{
			Key:       key,
			Milestone: ref,
			State:     domain.SubmissionPending,
			CreatedAt: start,
			UpdatedAt: start,
		}
	} else {
		rec.State = domain.SubmissionPending
		rec.UpdatedAt = start
	}
	if err := s.ledger.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("ledger save: %w", err)
	}

	// A crashed attempt may have left a broadcast transaction behind. Resume
	// by waiting on it instead of burning a new nonce.
	if rec.TxHash != "" {
		return s.resume(ctx, rec, start)
	}

	return s.submit(ctx, rec, start)
}

func (s *Submitter) submit(ctx context.Context, rec *domain.SubmissionRecord, start time.Time) (*domain.SubmissionRecord, error) {
	calldata, err := packConfirmMilestone(rec.Milestone)
	if err != nil {
		return s.finish(ctx, rec, start, domain.FailureChainRejected, err)
	}

	// Price and estimate before taking a nonce. A confirmation the contract
	// would revert must never consume a sequence number.
	gasPrice, err := s.suggestGasPrice(ctx)
	if err != nil {
		return s.finish(ctx, rec, start, domain.FailureUnavailable, err)
	}
	gasLimit, failure, err := s.estimateGas(ctx, calldata)
	if err != nil {
		return s.finish(ctx, rec, start, failure, err)
	}

	nonce, err := s.nonces.Next(ctx, s.from.Hex(), func(ctx context.Context) (uint64, error) {
		return s.backend.PendingNonceAt(ctx, s.from)
	})
	if err != nil {
		return s.finish(ctx, rec, start, domain.FailureUnavailable, fmt.Errorf("acquire nonce: %w", err))
	}
	rec.Nonce = nonce

	broadcast := false
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		tx := types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gasLimit,
			To:       &s.opts.Contract,
			Data:     calldata,
		})
		signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.opts.ChainID), s.signKey)
		if err != nil {
			s.rollbackNonce(ctx, nonce, broadcast)
			return s.finish(ctx, rec, start, domain.FailureUnavailable, fmt.Errorf("sign transaction: %w", err))
		}

		if err := s.backend.SendTransaction(ctx, signed); err != nil {
			if isRevertError(err) {
				s.rollbackNonce(ctx, nonce, broadcast)
				return s.finish(ctx, rec, start, domain.FailureChainRejected, fmt.Errorf("send transaction: %w", err))
			}
			if attempt == s.opts.MaxAttempts {
				s.rollbackNonce(ctx, nonce, broadcast)
				return s.finish(ctx, rec, start, domain.FailureUnavailable, fmt.Errorf("send transaction: %w", err))
			}
			delay := backoff.Delay(s.opts.BackoffPolicy, s.opts.PollBase, s.opts.PollMax, attempt, s.rng)
			s.logger.Warn("broadcast failed, retrying", "key", rec.Key, "attempt", attempt, "delay", delay, "error", err)
			if serr := s.sleep(ctx, delay); serr != nil {
				s.rollbackNonce(ctx, nonce, broadcast)
				return s.finish(ctx, rec, start, domain.FailureUnavailable, serr)
			}
			continue
		}

		kind := "initial"
		if broadcast {
			kind = "rebroadcast"
		}
		metrics.OracleBroadcastsTotal.WithLabelValues(kind).Inc()
		if !broadcast {
			// The chain owns the transaction now. Caller disconnects must not
			// abandon it half-tracked.
			ctx = context.WithoutCancel(ctx)
		}
		broadcast = true

		rec.TxHash = signed.Hash().Hex()
		rec.Attempts = attempt
		rec.UpdatedAt = s.now()
		if err := s.ledger.Save(ctx, rec); err != nil {
			s.logger.Error("ledger save after broadcast", "key", rec.Key, "error", err)
		}
		s.logger.Info("transaction broadcast", "key", rec.Key, "tx", rec.TxHash, "nonce", nonce, "attempt", attempt)

		receipt, err := s.waitReceipt(ctx, signed.Hash())
		if err == nil {
			return s.settle(ctx, rec, start, receipt)
		}
		if attempt == s.opts.MaxAttempts {
			return s.finish(ctx, rec, start, domain.FailureTimeout, fmt.Errorf("receipt for %s: %w", rec.TxHash, err))
		}

		// Same nonce, strictly higher price. Nodes drop replacements that do
		// not outbid the pending transaction.
		gasPrice = bumpGasPrice(gasPrice, s.opts.FeeBumpPercent)
		s.logger.Warn("receipt wait exhausted, rebroadcasting with higher fee",
			"key", rec.Key, "nonce", nonce, "gasPrice", gasPrice, "attempt", attempt)
	}

	return s.finish(ctx, rec, start, domain.FailureTimeout, errors.New("broadcast attempts exhausted"))
}

// resume picks up a submission whose in-flight marker expired after a
// broadcast. The transaction may have landed in the meantime.
func (s *Submitter) resume(ctx context.Context, rec *domain.SubmissionRecord, start time.Time) (*domain.SubmissionRecord, error) {
	receipt, err := s.waitReceipt(ctx, common.HexToHash(rec.TxHash))
	if err != nil {
		return s.finish(ctx, rec, start, domain.FailureTimeout, fmt.Errorf("receipt for %s: %w", rec.TxHash, err))
	}
	return s.settle(ctx, rec, start, receipt)
}

func (s *Submitter) suggestGasPrice(ctx context.Context) (*big.Int, error) {
	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		price, err := s.backend.SuggestGasPrice(ctx)
		if err == nil {
			return price, nil
		}
		lastErr = err
		if attempt < s.opts.MaxAttempts {
			if serr := s.sleep(ctx, backoff.Delay(s.opts.BackoffPolicy, s.opts.PollBase, s.opts.PollMax, attempt, s.rng)); serr != nil {
				return nil, serr
			}
		}
	}
	return nil, fmt.Errorf("suggest gas price: %w", lastErr)
}

// estimateGas probes the call. A revert here is deterministic and fails the
// submission outright; transient RPC errors are retried.
func (s *Submitter) estimateGas(ctx context.Context, calldata []byte) (uint64, domain.FailureReason, error) {
	msg := ethereum.CallMsg{From: s.from, To: &s.opts.Contract, Data: calldata}
	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		estimate, err := s.backend.EstimateGas(ctx, msg)
		if err == nil {
			if s.opts.GasLimit > estimate {
				return s.opts.GasLimit, "", nil
			}
			// Headroom for state drift between estimate and execution.
			return estimate + estimate/4, "", nil
		}
		if isRevertError(err) {
			return 0, domain.FailureChainRejected, fmt.Errorf("estimate gas: %w", err)
		}
		lastErr = err
		if attempt < s.opts.MaxAttempts {
			if serr := s.sleep(ctx, backoff.Delay(s.opts.BackoffPolicy, s.opts.PollBase, s.opts.PollMax, attempt, s.rng)); serr != nil {
				return 0, domain.FailureUnavailable, serr
			}
		}
	}
	return 0, domain.FailureUnavailable, fmt.Errorf("estimate gas: %w", lastErr)
}

func (s *Submitter) waitReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	deadline := s.now().Add(s.opts.ReceiptWait)
	for poll := 1; ; poll++ {
		receipt, err := s.backend.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			s.logger.Debug("receipt poll error", "tx", txHash.Hex(), "error", err)
		}
		if !s.now().Before(deadline) {
			return nil, errors.New("receipt wait deadline exceeded")
		}
		delay := backoff.Delay(s.opts.BackoffPolicy, s.opts.PollBase, s.opts.PollMax, poll, s.rng)
		if remaining := deadline.Sub(s.now()); delay > remaining {
			delay = remaining
		}
		if err := s.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// settle records the terminal state from a mined receipt.
func (s *Submitter) settle(ctx context.Context, rec *domain.SubmissionRecord, start time.Time, receipt *types.Receipt) (*domain.SubmissionRecord, error) {
	status := "success"
	if receipt.Status != types.ReceiptStatusSuccessful {
		status = "reverted"
	}
	rec.Result = &domain.OracleResult{
		TransactionHash: rec.TxHash,
		BlockNumber:     receipt.BlockNumber.Uint64(),
		GasUsed:         receipt.GasUsed,
		Status:          status,
	}
	if receipt.Status == types.ReceiptStatusSuccessful {
		rec.State = domain.SubmissionConfirmed
		rec.Reason = ""
		rec.Error = ""
	} else {
		rec.State = domain.SubmissionFailed
		rec.Reason = domain.FailureChainRejected
		rec.Error = "transaction reverted on chain"
	}
	rec.UpdatedAt = s.now()
	if err := s.ledger.Save(context.WithoutCancel(ctx), rec); err != nil {
		return nil, fmt.Errorf("ledger save terminal: %w", err)
	}
	s.observe(rec, start)
	s.logger.Info("submission settled", "key", rec.Key, "state", rec.State, "tx", rec.TxHash, "block", receipt.BlockNumber.Uint64())
	return rec, nil
}

// finish records a terminal failure. The record is persisted before control
// returns so a restart never repeats a decided submission.
func (s *Submitter) finish(ctx context.Context, rec *domain.SubmissionRecord, start time.Time, reason domain.FailureReason, cause error) (*domain.SubmissionRecord, error) {
	rec.State = domain.SubmissionFailed
	rec.Reason = reason
	rec.Error = cause.Error()
	rec.UpdatedAt = s.now()
	if err := s.ledger.Save(context.WithoutCancel(ctx), rec); err != nil {
		return nil, fmt.Errorf("ledger save terminal: %w", err)
	}
	s.observe(rec, start)
	s.logger.Warn("submission failed", "key", rec.Key, "reason", reason, "error", cause)
	return rec, nil
}

func (s *Submitter) observe(rec *domain.SubmissionRecord, start time.Time) {
	metrics.OracleSubmissionsTotal.WithLabelValues(string(rec.State), string(rec.Reason)).Inc()
	metrics.OracleSubmissionLatencySeconds.WithLabelValues(string(rec.State)).Observe(s.now().Sub(start).Seconds())
}

// rollbackNonce gives an unburned nonce back. Once anything was broadcast the
// nonce belongs to the chain and must stay allocated.
func (s *Submitter) rollbackNonce(ctx context.Context, nonce uint64, broadcast bool) {
	if broadcast {
		return
	}
	if err := s.nonces.Rollback(context.WithoutCancel(ctx), s.from.Hex(), nonce); err != nil {
		s.logger.Warn("nonce rollback", "nonce", nonce, "error", err)
	}
}

func bumpGasPrice(price *big.Int, percent int64) *big.Int {
	bumped := new(big.Int).Mul(price, big.NewInt(100+percent))
	bumped.Div(bumped, big.NewInt(100))
	if bumped.Cmp(price) <= 0 {
		bumped = new(big.Int).Add(price, big.NewInt(1))
	}
	return bumped
}

func isRevertError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "revert") ||
		strings.Contains(msg, "invalid opcode") ||
		strings.Contains(msg, "always failing transaction")
}
