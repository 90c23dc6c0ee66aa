// Package crypto holds the resolver key: encrypted storage of the key on disk
// and secp256k1 attestations of market outcomes.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/pbkdf2"
)

const (
	keyFileVersion = 1
	kdfName        = "pbkdf2-sha256"
	// pbkdf2Iterations is the OWASP-recommended minimum for HMAC-SHA256.
	pbkdf2Iterations = 480_000
	// minIterations rejects files sealed with a weakened KDF.
	minIterations = 100_000
	saltLen       = 16
	aesKeyLen     = 32
)

var (
	// ErrNoKey is returned by LoadSigner when neither key source is configured.
	ErrNoKey = errors.New("crypto: no resolver key configured (set private_key or encrypted_key_path)")
	// ErrKeyMismatch means a key file decrypted to a key other than the
	// address it declares.
	ErrKeyMismatch = errors.New("crypto: key file address does not match its key")
)

// keyFile is the on-disk form of a sealed resolver key. Address is readable
// without the password and is also bound into the ciphertext as additional
// data.
type keyFile struct {
	Version    int            `json:"version"`
	Address    common.Address `json:"address"`
	KDF        kdfParams      `json:"kdf"`
	Nonce      hexutil.Bytes  `json:"nonce"`
	Ciphertext hexutil.Bytes  `json:"ciphertext"`
}

type kdfParams struct {
	Name       string        `json:"name"`
	Iterations int           `json:"iterations"`
	Salt       hexutil.Bytes `json:"salt"`
}

// KeyConfig is filled from the [resolver] config section. RawPrivateKey wins
// over EncryptedKeyPath when both are set.
type KeyConfig struct {
	// RawPrivateKey is the hex-encoded private key, 0x prefix optional.
	RawPrivateKey    string
	EncryptedKeyPath string
	KeyPassword      string
}

// SealKey encrypts a hex-encoded secp256k1 key under password with
// PBKDF2-HMAC-SHA256 and AES-256-GCM and returns the key file JSON.
func SealKey(privateKeyHex, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key: %w", err)
	}

	kf := keyFile{
		Version: keyFileVersion,
		Address: ethcrypto.PubkeyToAddress(pk.PublicKey),
		KDF:     kdfParams{Name: kdfName, Iterations: pbkdf2Iterations, Salt: make([]byte, saltLen)},
	}
	if _, err := rand.Read(kf.KDF.Salt); err != nil {
		return nil, fmt.Errorf("crypto: salt: %w", err)
	}
	aead, err := newAEAD(password, kf.KDF)
	if err != nil {
		return nil, err
	}
	kf.Nonce = make([]byte, aead.NonceSize())
	if _, err := rand.Read(kf.Nonce); err != nil {
		return nil, fmt.Errorf("crypto: nonce: %w", err)
	}
	kf.Ciphertext = aead.Seal(nil, kf.Nonce, ethcrypto.FromECDSA(pk), kf.Address.Bytes())

	return json.MarshalIndent(kf, "", "  ")
}

// OpenKey decrypts a key file produced by SealKey.
func OpenKey(data []byte, password string) (*ecdsa.PrivateKey, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("crypto: parse key file: %w", err)
	}
	switch {
	case kf.Version != keyFileVersion:
		return nil, fmt.Errorf("crypto: unsupported key file version %d", kf.Version)
	case kf.KDF.Name != kdfName:
		return nil, fmt.Errorf("crypto: unsupported kdf %q", kf.KDF.Name)
	case kf.KDF.Iterations < minIterations:
		return nil, fmt.Errorf("crypto: kdf iterations %d below %d", kf.KDF.Iterations, minIterations)
	}

	aead, err := newAEAD(password, kf.KDF)
	if err != nil {
		return nil, err
	}
	if len(kf.Nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("crypto: nonce is %d bytes, want %d", len(kf.Nonce), aead.NonceSize())
	}
	plain, err := aead.Open(nil, kf.Nonce, kf.Ciphertext, kf.Address.Bytes())
	if err != nil {
		return nil, fmt.Errorf("crypto: decryption failed (wrong password?): %w", err)
	}
	pk, err := ethcrypto.ToECDSA(plain)
	if err != nil {
		return nil, fmt.Errorf("crypto: decrypted key: %w", err)
	}
	if ethcrypto.PubkeyToAddress(pk.PublicKey) != kf.Address {
		return nil, ErrKeyMismatch
	}
	return pk, nil
}

func newAEAD(password string, kdf kdfParams) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), kdf.Salt, kdf.Iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: gcm: %w", err)
	}
	return aead, nil
}

// LoadSigner builds the resolver Signer described by cfg. It returns ErrNoKey
// when cfg names no key.
func LoadSigner(cfg KeyConfig) (*Signer, error) {
	switch {
	case cfg.RawPrivateKey != "":
		return NewSigner(cfg.RawPrivateKey)
	case cfg.EncryptedKeyPath != "":
		data, err := os.ReadFile(cfg.EncryptedKeyPath)
		if err != nil {
			return nil, fmt.Errorf("crypto: read key file: %w", err)
		}
		pk, err := OpenKey(data, cfg.KeyPassword)
		if err != nil {
			return nil, err
		}
		return signerFromKey(pk), nil
	default:
		return nil, ErrNoKey
	}
}
