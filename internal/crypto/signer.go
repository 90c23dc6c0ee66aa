package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/predictamm/internal/domain"
)

// resolutionTag domain-separates resolution digests from any other message a
// resolver key might sign.
var resolutionTag = []byte("predictamm:resolve")

// Attestation is a resolver's signed statement of a market outcome. It lets a
// resolver running outside this process prove its identity to the engine.
type Attestation struct {
	MarketID     common.Address `json:"marketId"`
	OutcomeIsYes bool           `json:"outcomeIsYes"`
	// Signature is the hex-encoded 65-byte r || s || v signature, v in {27,28}.
	Signature string `json:"signature"`
}

// Signer signs resolution attestations with a secp256k1 key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return signerFromKey(pk), nil
}

func signerFromKey(pk *ecdsa.PrivateKey) *Signer {
	return &Signer{privateKey: pk, address: ethcrypto.PubkeyToAddress(pk.PublicKey)}
}

// Address returns the address derived from the signer's key. A market whose
// resolver is this address accepts the signer's attestations.
func (s *Signer) Address() common.Address {
	return s.address
}

// Attest signs the outcome of marketID.
func (s *Signer) Attest(marketID common.Address, outcomeIsYes bool) (Attestation, error) {
	sig, err := s.signDigest(ResolutionDigest(marketID, outcomeIsYes))
	if err != nil {
		return Attestation{}, err
	}
	return Attestation{MarketID: marketID, OutcomeIsYes: outcomeIsYes, Signature: sig}, nil
}

// ResolutionDigest returns keccak256("predictamm:resolve" || marketID || outcome)
// where outcome is a single byte, 1 for YES.
func ResolutionDigest(marketID common.Address, outcomeIsYes bool) []byte {
	outcome := byte(0)
	if outcomeIsYes {
		outcome = 1
	}
	return ethcrypto.Keccak256(concatBytes(resolutionTag, marketID.Bytes(), []byte{outcome}))
}

// RecoverResolver returns the address that produced att.
func RecoverResolver(att Attestation) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(att.Signature, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/signer: decoding signature: %w", err)
	}
	if len(sig) != ethcrypto.SignatureLength {
		return common.Address{}, fmt.Errorf("crypto/signer: signature is %d bytes, want %d",
			len(sig), ethcrypto.SignatureLength)
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(ResolutionDigest(att.MarketID, att.OutcomeIsYes), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/signer: recovering key: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// VerifyResolver checks that att was signed by resolver. A valid signature
// from any other key fails with domain.ErrUnauthorized.
func VerifyResolver(att Attestation, resolver common.Address) error {
	signer, err := RecoverResolver(att)
	if err != nil {
		return err
	}
	if signer != resolver {
		return fmt.Errorf("crypto/signer: attestation signed by %s: %w", signer.Hex(), domain.ErrUnauthorized)
	}
	return nil
}

// signDigest signs a 32-byte digest using secp256k1 and returns the
// hex-encoded signature (r || s || v, 65 bytes).
func (s *Signer) signDigest(digest []byte) (string, error) {
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w: %w", domain.ErrSigningFailed, err)
	}

	// go-ethereum returns v in {0,1}; wallets expect v in {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}

	return "0x" + hex.EncodeToString(sig), nil
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
