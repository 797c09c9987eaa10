package oracle

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/obralink/oraculo/pkg/domain"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// escrowABIJSON covers the two entry points of the escrow contract the oracle
// talks to: the milestone confirmation that releases funds, and the read-only
// escrow summary per building.
const escrowABIJSON = `[
  {
    "type": "function",
    "name": "confirmMilestone",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "buildingId", "type": "uint256"},
      {"name": "milestoneNumber", "type": "uint8"}
    ],
    "outputs": []
  },
  {
    "type": "function",
    "name": "getEscrowInfo",
    "stateMutability": "view",
    "inputs": [
      {"name": "buildingId", "type": "uint256"}
    ],
    "outputs": [
      {"name": "totalEscrowed", "type": "uint256"},
      {"name": "totalReleased", "type": "uint256"},
      {"name": "lastReleasedMilestone", "type": "uint256"},
      {"name": "totalMilestones", "type": "uint256"},
      {"name": "developer", "type": "address"}
    ]
  }
]`

var escrowABI = mustParseABI(escrowABIJSON)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(fmt.Sprintf("escrow ABI: %v", err))
	}
	return parsed
}

func packConfirmMilestone(ref domain.MilestoneReference) ([]byte, error) {
	data, err := escrowABI.Pack("confirmMilestone", new(big.Int).SetUint64(ref.BuildingID), ref.MilestoneNumber)
	if err != nil {
		return nil, fmt.Errorf("pack confirmMilestone: %w", err)
	}
	return data, nil
}

func packGetEscrowInfo(buildingID uint64) ([]byte, error) {
	data, err := escrowABI.Pack("getEscrowInfo", new(big.Int).SetUint64(buildingID))
	if err != nil {
		return nil, fmt.Errorf("pack getEscrowInfo: %w", err)
	}
	return data, nil
}

func unpackEscrowInfo(data []byte) (*domain.EscrowInfo, error) {
	out, err := escrowABI.Unpack("getEscrowInfo", data)
	if err != nil {
		return nil, fmt.Errorf("unpack getEscrowInfo: %w", err)
	}
	if len(out) != 5 {
		return nil, fmt.Errorf("unpack getEscrowInfo: %d values, want 5", len(out))
	}
	totalEscrowed, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack getEscrowInfo: totalEscrowed is %T", out[0])
	}
	totalReleased, ok := out[1].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack getEscrowInfo: totalReleased is %T", out[1])
	}
	lastReleased, ok := out[2].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack getEscrowInfo: lastReleasedMilestone is %T", out[2])
	}
	totalMilestones, ok := out[3].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack getEscrowInfo: totalMilestones is %T", out[3])
	}
	developer, ok := out[4].(common.Address)
	if !ok {
		return nil, fmt.Errorf("unpack getEscrowInfo: developer is %T", out[4])
	}
	return &domain.EscrowInfo{
		TotalEscrowed:         totalEscrowed.String(),
		TotalReleased:         totalReleased.String(),
		LastReleasedMilestone: lastReleased.Uint64(),
		TotalMilestones:       totalMilestones.Uint64(),
		Developer:             developer.Hex(),
	}, nil
}
