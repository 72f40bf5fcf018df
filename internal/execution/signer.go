package execution

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"hip3-taker/pkg/types"
)

// agentDomain is the venue's fixed EIP-712 domain for the phantom-agent
// struct hash.
var agentDomain = apitypes.TypedDataDomain{
	Name:              "Exchange",
	Version:           "1",
	ChainId:           (*ethmath.HexOrDecimal256)(big.NewInt(1337)),
	VerifyingContract: "0x0000000000000000000000000000000000000000",
}

var agentTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"Agent": {
		{Name: "source", Type: "string"},
		{Name: "connectionId", Type: "bytes32"},
	},
}

// Signer is stateless except for the private key material, which is held
// by exactly one owner, zeroized on Close, and never logged. Identical
// inputs always produce identical signatures - there is no randomness
// anywhere in this file.
type Signer struct {
	privateKey  *ecdsa.PrivateKey
	keyBytes    []byte // retained only so Close can zero it
	chainSource string // "a" (mainnet) or "b" (testnet)
}

// NewSigner builds a signer from a hex-encoded private key and the network
// source byte. chainSource must be "a" or "b".
func NewSigner(privateKeyHex, chainSource string) (*Signer, error) {
	if chainSource != "a" && chainSource != "b" {
		return nil, fmt.Errorf("signer: chain source must be \"a\" or \"b\", got %q", chainSource)
	}

	hexKey := privateKeyHex
	if len(hexKey) >= 2 && hexKey[:2] == "0x" {
		hexKey = hexKey[2:]
	}
	keyBytes := common.FromHex("0x" + hexKey)

	priv, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("signer: parse private key: %w", err)
	}

	return &Signer{privateKey: priv, keyBytes: keyBytes, chainSource: chainSource}, nil
}

// Close zeroizes the retained key bytes. The ecdsa.PrivateKey's internal
// big.Int is not separately scrubbed - that would require replacing
// go-ethereum's type - but the caller's own copy of the hex/bytes is wiped.
func (s *Signer) Close() {
	for i := range s.keyBytes {
		s.keyBytes[i] = 0
	}
}

// Address returns the signer's Ethereum address.
func (s *Signer) Address() common.Address {
	return crypto.PubkeyToAddress(s.privateKey.PublicKey)
}

// Sign computes the two-stage EIP-712 signature for an outbound action:
//
//  1. action_hash = hash over (action, nonce, optional vault_address,
//     optional expires_after).
//  2. A phantom-agent struct hash keyed by network source, signed under the
//     venue's fixed EIP-712 domain.
//
// The raw 65-byte secp256k1 signature is split into (r, s, v) with
// v normalized into {27, 28}.
func (s *Signer) Sign(action any, nonce uint64, vaultAddress string, expiresAfterMs *int64) (types.Signature, error) {
	actionHash, err := s.actionHash(action, nonce, vaultAddress, expiresAfterMs)
	if err != nil {
		return types.Signature{}, fmt.Errorf("signer: action hash: %w", err)
	}

	var connID [32]byte
	copy(connID[:], actionHash)

	typedData := apitypes.TypedData{
		Types:       agentTypes,
		PrimaryType: "Agent",
		Domain:      agentDomain,
		Message: apitypes.TypedDataMessage{
			"source":       s.chainSource,
			"connectionId": connID[:],
		},
	}

	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return types.Signature{}, fmt.Errorf("signer: typed data hash: %w", err)
	}

	sig, err := crypto.Sign(hash, s.privateKey)
	if err != nil {
		return types.Signature{}, fmt.Errorf("signer: sign: %w", err)
	}

	v := int(sig[64])
	if v < 27 {
		v += 27
	}

	return types.Signature{
		R: "0x" + common.Bytes2Hex(sig[0:32]),
		S: "0x" + common.Bytes2Hex(sig[32:64]),
		V: v,
	}, nil
}

// actionHash hashes the action payload together with the nonce and the
// optional vault address / expiry. The action is serialized deterministically
// via encoding/json with sorted map keys (Go's json.Marshal sorts map keys),
// so identical inputs always produce identical bytes.
func (s *Signer) actionHash(action any, nonce uint64, vaultAddress string, expiresAfterMs *int64) ([]byte, error) {
	actionBytes, err := json.Marshal(action)
	if err != nil {
		return nil, fmt.Errorf("marshal action: %w", err)
	}

	buf := make([]byte, 0, len(actionBytes)+8+20+8+2)
	buf = append(buf, actionBytes...)
	buf = append(buf, encodeUint64BE(nonce)...)

	if vaultAddress != "" {
		buf = append(buf, 0x01)
		buf = append(buf, common.HexToAddress(vaultAddress).Bytes()...)
	} else {
		buf = append(buf, 0x00)
	}

	if expiresAfterMs != nil {
		buf = append(buf, 0x01)
		buf = append(buf, encodeUint64BE(uint64(*expiresAfterMs))...)
	} else {
		buf = append(buf, 0x00)
	}

	return crypto.Keccak256(buf), nil
}

func encodeUint64BE(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}
