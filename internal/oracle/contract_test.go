package oracle

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/obralink/oraculo/pkg/domain"

	"github.com/ethereum/go-ethereum/common"
)

func TestPackConfirmMilestone(t *testing.T) {
	ref := domain.MilestoneReference{BuildingID: 42, MilestoneNumber: 3}
	data, err := packConfirmMilestone(ref)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	method := escrowABI.Methods["confirmMilestone"]
	if !bytes.HasPrefix(data, method.ID) {
		t.Fatalf("selector mismatch: %x", data[:4])
	}
	// Selector plus two 32-byte words.
	if len(data) != 4+64 {
		t.Fatalf("calldata length = %d, want 68", len(data))
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		t.Fatalf("unpack args: %v", err)
	}
	if got := args[0].(*big.Int).Uint64(); got != 42 {
		t.Fatalf("buildingId = %d, want 42", got)
	}
	if got := args[1].(uint8); got != 3 {
		t.Fatalf("milestoneNumber = %d, want 3", got)
	}
}

func TestUnpackEscrowInfo(t *testing.T) {
	dev := common.HexToAddress("0x1111111111111111111111111111111111111111")
	data, err := escrowABI.Methods["getEscrowInfo"].Outputs.Pack(
		big.NewInt(5_000_000), big.NewInt(1_250_000), big.NewInt(2), big.NewInt(8), dev,
	)
	if err != nil {
		t.Fatalf("pack outputs: %v", err)
	}

	info, err := unpackEscrowInfo(data)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if info.TotalEscrowed != "5000000" || info.TotalReleased != "1250000" {
		t.Fatalf("amounts: %+v", info)
	}
	if info.LastReleasedMilestone != 2 || info.TotalMilestones != 8 {
		t.Fatalf("milestones: %+v", info)
	}
	if info.Developer != dev.Hex() {
		t.Fatalf("developer = %s, want %s", info.Developer, dev.Hex())
	}
}

func TestEscrowReader(t *testing.T) {
	dev := common.HexToAddress("0x2222222222222222222222222222222222222222")
	out, err := escrowABI.Methods["getEscrowInfo"].Outputs.Pack(
		big.NewInt(100), big.NewInt(40), big.NewInt(1), big.NewInt(4), dev,
	)
	if err != nil {
		t.Fatalf("pack outputs: %v", err)
	}
	backend := &fakeBackend{callOut: out}
	reader := NewEscrowReader(backend, common.HexToAddress("0xaa"))

	info, err := reader.EscrowInfo(context.Background(), 9)
	if err != nil {
		t.Fatalf("escrow info: %v", err)
	}
	if info.TotalEscrowed != "100" || info.TotalMilestones != 4 || info.Developer != dev.Hex() {
		t.Fatalf("info: %+v", info)
	}
}

func TestEscrowReaderCallError(t *testing.T) {
	backend := &fakeBackend{callErr: errors.New("node down")}
	reader := NewEscrowReader(backend, common.HexToAddress("0xaa"))
	if _, err := reader.EscrowInfo(context.Background(), 9); err == nil {
		t.Fatal("expected error")
	}
}
