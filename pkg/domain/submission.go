package domain

import (
	"encoding"
	"time"
)

type SubmissionState string

const (
	SubmissionNotAttempted SubmissionState = "NOT_ATTEMPTED"
	SubmissionPending      SubmissionState = "PENDING"
	SubmissionConfirmed    SubmissionState = "CONFIRMED"
	SubmissionFailed       SubmissionState = "FAILED"
)

var (
	_ encoding.BinaryMarshaler = SubmissionState("")
	_ encoding.TextMarshaler   = SubmissionState("")
)

func (s SubmissionState) MarshalBinary() ([]byte, error) { return []byte(s), nil }
func (s SubmissionState) MarshalText() ([]byte, error)   { return []byte(s), nil }

// Terminal reports whether the state can no longer change.
func (s SubmissionState) Terminal() bool {
	return s == SubmissionConfirmed || s == SubmissionFailed
}

// FailureReason classifies a terminal FAILED submission.
type FailureReason string

const (
	// FailureChainRejected marks a deterministic revert; retrying cannot help.
	FailureChainRejected FailureReason = "CHAIN_REJECTED"
	// FailureTimeout marks a receipt that never arrived within the wait budget.
	FailureTimeout FailureReason = "TIMEOUT"
	// FailureUnavailable marks RPC/network failure after exhausting retries.
	FailureUnavailable FailureReason = "UNAVAILABLE"
)

// OracleResult is the client-facing outcome of a terminal submission. The field
// names mirror the escrow contract response surfaced to API consumers.
type OracleResult struct {
	TransactionHash string `json:"transaction_hash"`
	BlockNumber     uint64 `json:"block_number"`
	GasUsed         uint64 `json:"gas_used"`
	Status          string `json:"status"`
}

// SubmissionRecord is one row of the idempotency ledger. The submitter owns it
// for the duration of an attempt; everyone else only reads it.
type SubmissionRecord struct {
	Key       IdempotencyKey     `json:"key"`
	Milestone MilestoneReference `json:"milestone"`
	State     SubmissionState    `json:"state"`
	TxHash    string             `json:"txHash,omitempty"`
	Nonce     uint64             `json:"nonce,omitempty"`
	Attempts  int                `json:"attempts,omitempty"`
	Result    *OracleResult      `json:"result,omitempty"`
	Reason    FailureReason      `json:"reason,omitempty"`
	Error     string             `json:"error,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// EscrowInfo is the read-only escrow view for a building, straight from the
// contract's getEscrowInfo call.
type EscrowInfo struct {
	TotalEscrowed         string `json:"total_escrowed"`
	TotalReleased         string `json:"total_released"`
	LastReleasedMilestone uint64 `json:"last_released_milestone"`
	TotalMilestones       uint64 `json:"total_milestones"`
	Developer             string `json:"developer"`
}
