// Package crypto wraps the secp256k1 signature oracle and the
// ripemd160 hash chain used for delegate secrets and the per-block
// random seed (spec.md treats signature verification as a black-box
// oracle; this package is that oracle). Adapted from the teacher's
// pkg/crypto/signer.go, trimmed to what the evaluator and block
// processor actually call.
package crypto

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/ripemd160"

	"github.com/bts-go/chaincore/pkg/types"
)

// Signer manages a secp256k1 key pair for signing transactions and
// block headers.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	publicKey  *ecdsa.PublicKey
	address    common.Address
}

// GenerateKey creates a new random secp256k1 key pair.
func GenerateKey() (*Signer, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return newSigner(privateKey)
}

// FromPrivateKeyHex loads a Signer from a hex-encoded private key.
func FromPrivateKeyHex(hexKey string) (*Signer, error) {
	privateKey, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return newSigner(privateKey)
}

func newSigner(privateKey *ecdsa.PrivateKey) (*Signer, error) {
	publicKey, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("cast public key to ECDSA")
	}
	return &Signer{
		privateKey: privateKey,
		publicKey:  publicKey,
		address:    crypto.PubkeyToAddress(*publicKey),
	}, nil
}

// Address is the signer's identity: an account's owner/active key and
// a delegate's block-signing key are both addresses.
func (s *Signer) Address() common.Address { return s.address }

// PublicKeyBytes returns the uncompressed public key, for embedding in
// an Account's active-key history (spec §3).
func (s *Signer) PublicKeyBytes() []byte { return crypto.FromECDSAPub(s.publicKey) }

// Sign signs a 32-byte digest, returning a 65-byte [R || S || V] signature.
func (s *Signer) Sign(digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("digest must be 32 bytes, got %d", len(digest))
	}
	return crypto.Sign(digest, s.privateKey)
}

// SigningDigest domain-separates a payload by the chain id before
// signing or verifying (spec §4.D "verified against the chain id,
// domain-separated").
func SigningDigest(chainID types.Hash, payload []byte) []byte {
	buf := make([]byte, 0, 32+len(payload))
	buf = append(buf, chainID[:]...)
	buf = append(buf, payload...)
	return crypto.Keccak256(buf)
}

// AddressFromPubkey derives the address controlling an uncompressed
// public key, for verifying a block or account active-key owner
// (spec §4.D, §4.F step 2).
func AddressFromPubkey(pubkeyBytes []byte) (common.Address, error) {
	pubkey, err := crypto.UnmarshalPubkey(pubkeyBytes)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pubkey), nil
}

// VerifySignature reports whether signature was produced by signer
// for digest, per the chain-id domain separation above.
func VerifySignature(signer common.Address, digest []byte, signature []byte) bool {
	if len(signature) != 65 || len(digest) != 32 {
		return false
	}
	pubkeyBytes, err := crypto.Ecrecover(digest, signature)
	if err != nil {
		return false
	}
	pubkey, err := crypto.UnmarshalPubkey(pubkeyBytes)
	if err != nil {
		return false
	}
	return crypto.PubkeyToAddress(*pubkey) == signer
}

// Ripemd160 returns the ripemd160 digest of b, used for the delegate
// secret-hash chain and the per-block random seed update (spec §4.F
// steps 4 and 9).
func Ripemd160(b []byte) types.Hash {
	h := ripemd160.New()
	h.Write(b) //nolint:errcheck // hash.Hash.Write never errors
	sum := h.Sum(nil)
	var out types.Hash
	copy(out[:], sum) // ripemd160 output is 20 bytes; remainder stays zero
	return out
}

// NextSecretHash computes the commitment a delegate publishes for its
// next production slot: ripemd160(secret) (spec §4.F step 4,
// "ripemd160(previous_secret) == stored next_secret_hash").
func NextSecretHash(secret types.Hash) types.Hash {
	return Ripemd160(secret[:])
}

// UpdateRandomSeed folds a delegate's revealed secret into the running
// chain random seed: seed' = ripemd160(hash(new_secret || seed))
// (spec §4.F step 9).
func UpdateRandomSeed(seed, newSecret types.Hash) types.Hash {
	buf := make([]byte, 0, 64)
	buf = append(buf, newSecret[:]...)
	buf = append(buf, seed[:]...)
	return Ripemd160(types.HashBytes(buf)[:])
}
