package clob

import (
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/dmarch/polymarket-trader/pkg/types"
)

// signer holds the L1 key material. Two authentication layers hang off it:
// an EIP-712 "ClobAuth" signature used once to derive L2 credentials, and
// HMAC-SHA256 request signing with the derived secret for everything else.
type signer struct {
	key     *ecdsa.PrivateKey
	address common.Address // EOA derived from key
	funder  common.Address // proxy/funder wallet, == address without a proxy
	chainID *big.Int
	sigType int
}

func newSigner(privateKeyHex, funderAddress string, sigType int, chainID int64) (*signer, error) {
	keyHex := privateKeyHex
	if len(keyHex) >= 2 && keyHex[:2] == "0x" {
		keyHex = keyHex[2:]
	}
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	address := crypto.PubkeyToAddress(key.PublicKey)
	funder := address
	if funderAddress != "" {
		funder = common.HexToAddress(funderAddress)
	}

	return &signer{
		key:     key,
		address: address,
		funder:  funder,
		chainID: big.NewInt(chainID),
		sigType: sigType,
	}, nil
}

// l1Headers builds the headers for the credential-management endpoints.
func (s *signer) l1Headers(nonce int64) (map[string]string, error) {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)

	sig, err := s.signClobAuth(timestamp, nonce)
	if err != nil {
		return nil, fmt.Errorf("sign clob auth: %w", err)
	}

	return map[string]string{
		"POLY_ADDRESS":   s.address.Hex(),
		"POLY_SIGNATURE": sig,
		"POLY_TIMESTAMP": timestamp,
		"POLY_NONCE":     strconv.FormatInt(nonce, 10),
	}, nil
}

// l2Headers builds the HMAC headers for trading endpoints. The signature
// covers timestamp + method + path + body, byte for byte.
func (s *signer) l2Headers(creds *types.APICreds, method, path, body string) (map[string]string, error) {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)

	sig, err := hmacSignature(creds.Secret, timestamp, method, path, body)
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"POLY_ADDRESS":    s.address.Hex(),
		"POLY_SIGNATURE":  sig,
		"POLY_TIMESTAMP":  timestamp,
		"POLY_API_KEY":    creds.Key,
		"POLY_PASSPHRASE": creds.Passphrase,
	}, nil
}

// signClobAuth signs the attestation message the exchange requires to hand
// out L2 credentials.
func (s *signer) signClobAuth(timestamp string, nonce int64) (string, error) {
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"ClobAuth": {
				{Name: "address", Type: "address"},
				{Name: "timestamp", Type: "string"},
				{Name: "nonce", Type: "uint256"},
				{Name: "message", Type: "string"},
			},
		},
		PrimaryType: "ClobAuth",
		Domain: apitypes.TypedDataDomain{
			Name:    "ClobAuthDomain",
			Version: "1",
			ChainId: (*ethmath.HexOrDecimal256)(new(big.Int).Set(s.chainID)),
		},
		Message: apitypes.TypedDataMessage{
			"address":   s.address.Hex(),
			"timestamp": timestamp,
			"nonce":     fmt.Sprintf("%d", nonce),
			"message":   "This message attests that I control the given wallet",
		},
	}

	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return "", fmt.Errorf("typed data hash: %w", err)
	}

	sig, err := crypto.Sign(hash, s.key)
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}

	return "0x" + common.Bytes2Hex(sig), nil
}

// hmacSignature computes the URL-safe base64 HMAC over
// timestamp + method + path + body. Secrets arrive URL-safe base64 encoded,
// but tolerate the other base64 variants.
func hmacSignature(secret, timestamp, method, path, body string) (string, error) {
	decoders := []*base64.Encoding{
		base64.URLEncoding,
		base64.RawURLEncoding,
		base64.StdEncoding,
		base64.RawStdEncoding,
	}

	var secretBytes []byte
	var err error
	for _, dec := range decoders {
		secretBytes, err = dec.DecodeString(secret)
		if err == nil {
			break
		}
	}
	if err != nil {
		return "", fmt.Errorf("decode secret: %w", err)
	}

	mac := hmac.New(sha256.New, secretBytes)
	mac.Write([]byte(timestamp + method + path + body))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil)), nil
}
