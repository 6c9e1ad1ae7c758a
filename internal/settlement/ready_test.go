package settlement

import (
	"bytes"
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/dmarch/polymarket-trader/pkg/ratelimit"
)

// fakeReader serves contract reads from fixed state.
type fakeReader struct {
	erc20Balances map[common.Address]*big.Int // keyed by token contract
	allowance     *big.Int
	approvedAll   bool
	gasBalance    *big.Int
}

func (f *fakeReader) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return f.gasBalance, nil
}

func (f *fakeReader) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	selector := msg.Data[:4]

	switch {
	case bytes.Equal(selector, erc20ABI.Methods["balanceOf"].ID):
		bal, ok := f.erc20Balances[*msg.To]
		if !ok {
			bal = big.NewInt(0)
		}
		return erc20ABI.Methods["balanceOf"].Outputs.Pack(bal)
	case bytes.Equal(selector, erc20ABI.Methods["allowance"].ID):
		return erc20ABI.Methods["allowance"].Outputs.Pack(f.allowance)
	case bytes.Equal(selector, conditionalTokensABI.Methods["isApprovedForAll"].ID):
		return conditionalTokensABI.Methods["isApprovedForAll"].Outputs.Pack(f.approvedAll)
	}
	return nil, nil
}

func testClientWith(reader chainReader) *Client {
	return &Client{
		reader:  reader,
		logger:  zap.NewNop(),
		limiter: ratelimit.New(ratelimit.Config{Logger: zap.NewNop()}),
		address: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		funder:  common.HexToAddress("0x2222222222222222222222222222222222222222"),
		chainID: big.NewInt(137),
	}
}

func unlimited() *big.Int {
	return new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
}

func TestCheckReadyForCTF_FullyReady(t *testing.T) {
	c := testClientWith(&fakeReader{
		erc20Balances: map[common.Address]*big.Int{
			USDCeAddress: big.NewInt(100_000_000), // $100
		},
		allowance:   unlimited(),
		approvedAll: true,
		gasBalance:  big.NewInt(1e18),
	})

	r, err := c.CheckReadyForCTF(context.Background(), 10)
	if err != nil {
		t.Fatalf("CheckReadyForCTF() error = %v", err)
	}
	if !r.Ready {
		t.Errorf("Ready = false, want true: %+v", r)
	}
	if r.USDCeBalance != 100 {
		t.Errorf("USDCeBalance = %v, want 100", r.USDCeBalance)
	}
	if r.MaticBalance != 1 {
		t.Errorf("MaticBalance = %v, want 1", r.MaticBalance)
	}
}

func TestCheckReadyForCTF_NativeOnlySuggestsConversion(t *testing.T) {
	c := testClientWith(&fakeReader{
		erc20Balances: map[common.Address]*big.Int{
			USDCNativeAddress: big.NewInt(50_000_000), // $50 in the wrong form
		},
		allowance:   unlimited(),
		approvedAll: true,
		gasBalance:  big.NewInt(1e18),
	})

	r, err := c.CheckReadyForCTF(context.Background(), 10)
	if err != nil {
		t.Fatalf("CheckReadyForCTF() error = %v", err)
	}
	if r.Ready {
		t.Error("Ready = true with no bridged collateral, want false")
	}
	if r.NativeUSDCBalance != 50 {
		t.Errorf("NativeUSDCBalance = %v, want 50", r.NativeUSDCBalance)
	}
	if r.Suggestion == "" || !bytes.Contains([]byte(r.Suggestion), []byte("USDC.e")) {
		t.Errorf("Suggestion = %q, want bridged-conversion hint", r.Suggestion)
	}
}

func TestCheckReadyForCTF_MissingApprovals(t *testing.T) {
	c := testClientWith(&fakeReader{
		erc20Balances: map[common.Address]*big.Int{
			USDCeAddress: big.NewInt(100_000_000),
		},
		allowance:   big.NewInt(1000), // finite allowance is not enough
		approvedAll: false,
		gasBalance:  big.NewInt(1e18),
	})

	r, err := c.CheckReadyForCTF(context.Background(), 10)
	if err != nil {
		t.Fatalf("CheckReadyForCTF() error = %v", err)
	}
	if r.Ready {
		t.Error("Ready = true without unlimited approvals, want false")
	}
	for name, ok := range r.CollateralApprovals {
		if ok {
			t.Errorf("collateral approval %s = true, want false", name)
		}
	}
	if r.Suggestion == "" {
		t.Error("Suggestion empty, want approve-flow hint")
	}
}

func TestCheckReadyForCTF_NoGas(t *testing.T) {
	c := testClientWith(&fakeReader{
		erc20Balances: map[common.Address]*big.Int{
			USDCeAddress: big.NewInt(100_000_000),
		},
		allowance:   unlimited(),
		approvedAll: true,
		gasBalance:  big.NewInt(0),
	})

	r, err := c.CheckReadyForCTF(context.Background(), 10)
	if err != nil {
		t.Fatalf("CheckReadyForCTF() error = %v", err)
	}
	if r.Ready {
		t.Error("Ready = true with zero gas balance, want false")
	}
}
