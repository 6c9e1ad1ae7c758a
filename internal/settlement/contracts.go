// Package settlement is the on-chain client for conditional-token
// operations: split, merge and redeem against the standard conditional
// tokens contract or the negative-risk adapter, plus the approval and
// balance plumbing both exchanges require.
package settlement

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Polygon mainnet contract addresses.
var (
	ConditionalTokensAddress = common.HexToAddress("0x4D97DCd97eC945f40cF65F87097ACe5EA0476045")
	NegRiskAdapterAddress    = common.HexToAddress("0xd91E80cF2E7be2e162c6513ceD06f1dD0dA35296")
	ExchangeAddress          = common.HexToAddress("0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E")
	NegRiskExchangeAddress   = common.HexToAddress("0xC5d563A36AE78145C45a50134d48A1215220f80a")

	// USDCe is the bridged collateral the exchange settles in; USDCNative is
	// Circle's native issue, which the exchange does NOT accept.
	USDCeAddress      = common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
	USDCNativeAddress = common.HexToAddress("0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359")
)

const conditionalTokensABIJSON = `[
	{"name":"splitPosition","type":"function","inputs":[{"name":"collateralToken","type":"address"},{"name":"parentCollectionId","type":"bytes32"},{"name":"conditionId","type":"bytes32"},{"name":"partition","type":"uint256[]"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"name":"mergePositions","type":"function","inputs":[{"name":"collateralToken","type":"address"},{"name":"parentCollectionId","type":"bytes32"},{"name":"conditionId","type":"bytes32"},{"name":"partition","type":"uint256[]"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"name":"redeemPositions","type":"function","inputs":[{"name":"collateralToken","type":"address"},{"name":"parentCollectionId","type":"bytes32"},{"name":"conditionId","type":"bytes32"},{"name":"indexSets","type":"uint256[]"}],"outputs":[]},
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"id","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"payoutNumerators","type":"function","stateMutability":"view","inputs":[{"name":"","type":"bytes32"},{"name":"","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"payoutDenominator","type":"function","stateMutability":"view","inputs":[{"name":"","type":"bytes32"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"setApprovalForAll","type":"function","inputs":[{"name":"operator","type":"address"},{"name":"approved","type":"bool"}],"outputs":[]},
	{"name":"isApprovedForAll","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"operator","type":"address"}],"outputs":[{"name":"","type":"bool"}]}
]`

const negRiskAdapterABIJSON = `[
	{"name":"splitPosition","type":"function","inputs":[{"name":"conditionId","type":"bytes32"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"name":"mergePositions","type":"function","inputs":[{"name":"conditionId","type":"bytes32"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"name":"redeemPositions","type":"function","inputs":[{"name":"conditionId","type":"bytes32"},{"name":"amounts","type":"uint256[]"}],"outputs":[]}
]`

const erc20ABIJSON = `[
	{"name":"approve","type":"function","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

//nolint:gochecknoglobals // parsed once at startup
var (
	conditionalTokensABI abi.ABI
	negRiskAdapterABI    abi.ABI
	erc20ABI             abi.ABI
)

//nolint:gochecknoinits // ABI parsing of compile-time constants
func init() {
	var err error
	conditionalTokensABI, err = abi.JSON(strings.NewReader(conditionalTokensABIJSON))
	if err != nil {
		panic(err)
	}
	negRiskAdapterABI, err = abi.JSON(strings.NewReader(negRiskAdapterABIJSON))
	if err != nil {
		panic(err)
	}
	erc20ABI, err = abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic(err)
	}
}
