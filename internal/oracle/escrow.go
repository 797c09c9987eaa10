package oracle

import (
	"context"
	"fmt"

	"github.com/obralink/oraculo/pkg/domain"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// EscrowReader reads the per-building escrow summary from the contract. Calls
// go against the latest block; no signing key is involved.
type EscrowReader struct {
	backend  ChainBackend
	contract common.Address
}

func NewEscrowReader(backend ChainBackend, contract common.Address) *EscrowReader {
	return &EscrowReader{backend: backend, contract: contract}
}

func (r *EscrowReader) EscrowInfo(ctx context.Context, buildingID uint64) (*domain.EscrowInfo, error) {
	calldata, err := packGetEscrowInfo(buildingID)
	if err != nil {
		return nil, err
	}
	out, err := r.backend.CallContract(ctx, ethereum.CallMsg{To: &r.contract, Data: calldata}, nil)
	if err != nil {
		return nil, fmt.Errorf("call getEscrowInfo: %w", err)
	}
	return unpackEscrowInfo(out)
}
