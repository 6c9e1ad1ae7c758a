package settlement

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Outcome index sets for a binary condition.
const (
	IndexSetYes = 1
	IndexSetNo  = 2
)

// CollectionID derives the outcome collection id:
// keccak256(parentCollectionId ‖ conditionId ‖ indexSet), all 32-byte words,
// with the root parent collection of zero.
func CollectionID(conditionID common.Hash, indexSet uint64) common.Hash {
	var parent common.Hash // zero
	indexWord := common.BigToHash(new(big.Int).SetUint64(indexSet))
	return crypto.Keccak256Hash(parent.Bytes(), conditionID.Bytes(), indexWord.Bytes())
}

// PositionID derives the ERC1155 token id for an outcome:
// keccak256(collateralToken ‖ collectionId) with the address tightly packed
// at 20 bytes.
func PositionID(collateral common.Address, collectionID common.Hash) *big.Int {
	hash := crypto.Keccak256Hash(collateral.Bytes(), collectionID.Bytes())
	return new(big.Int).SetBytes(hash.Bytes())
}

// PositionIDs returns the (YES, NO) token ids for a condition under the
// standard collateral.
func PositionIDs(conditionID common.Hash) (yes, no *big.Int) {
	yes = PositionID(USDCeAddress, CollectionID(conditionID, IndexSetYes))
	no = PositionID(USDCeAddress, CollectionID(conditionID, IndexSetNo))
	return yes, no
}
