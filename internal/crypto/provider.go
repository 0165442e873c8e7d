// Package crypto implements the two ciphers the chat protocol relies on: a
// raw RSA keypair used to wrap group keys in transit, and an authenticated
// secret box (XChaCha20-Poly1305) used for group chat content.
//
// The server never calls into this package; it only relays the opaque values
// produced here.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// GroupKeySize is the symmetric group key length in bytes.
	GroupKeySize = chacha20poly1305.KeySize

	// DefaultKeypairBits is the RSA modulus size clients generate at login.
	DefaultKeypairBits = 512
)

var (
	// ErrIntegrity reports an authentication failure: tampered token or
	// wrong key.
	ErrIntegrity = errors.New("crypto: message integrity check failed")

	// ErrMessageTooLarge reports an asymmetric plaintext whose integer
	// value is not below the modulus.
	ErrMessageTooLarge = errors.New("crypto: plaintext must be lower than the modulus")

	// ErrBadKeyEncoding reports key material that does not parse as hex.
	ErrBadKeyEncoding = errors.New("crypto: invalid key encoding")
)

// PublicKey is the encryption half of an RSA keypair.
type PublicKey struct {
	E *big.Int
	N *big.Int
}

// PrivateKey is the decryption half of an RSA keypair.
type PrivateKey struct {
	D *big.Int
	N *big.Int
}

var one = big.NewInt(1)

// GenerateKeypair returns an RSA keypair with a modulus of the given bit
// size: two distinct primes of bits/2, public exponent 65537.
func GenerateKeypair(bits int) (*PublicKey, *PrivateKey, error) {
	if bits < 64 {
		return nil, nil, fmt.Errorf("crypto: keypair size %d too small", bits)
	}

	e := big.NewInt(65537)
	half := bits / 2

	for {
		p, err := rand.Prime(rand.Reader, half)
		if err != nil {
			return nil, nil, fmt.Errorf("crypto: prime generation: %w", err)
		}
		q, err := rand.Prime(rand.Reader, half)
		if err != nil {
			return nil, nil, fmt.Errorf("crypto: prime generation: %w", err)
		}
		if p.Cmp(q) == 0 {
			continue
		}

		pm1 := new(big.Int).Sub(p, one)
		qm1 := new(big.Int).Sub(q, one)

		// e must be coprime with p-1 and q-1 for the inverse to exist
		if new(big.Int).GCD(nil, nil, e, pm1).Cmp(one) != 0 {
			continue
		}
		if new(big.Int).GCD(nil, nil, e, qm1).Cmp(one) != 0 {
			continue
		}

		n := new(big.Int).Mul(p, q)
		phi := new(big.Int).Mul(pm1, qm1)

		d := new(big.Int).ModInverse(e, phi)
		if d == nil {
			continue
		}

		pub := &PublicKey{E: new(big.Int).Set(e), N: n}
		priv := &PrivateKey{D: d, N: new(big.Int).Set(n)}
		return pub, priv, nil
	}
}

// Encrypt performs raw RSA encryption of plaintext and returns the
// ciphertext as a hex string. Fails with ErrMessageTooLarge when the
// plaintext's integer value is not below the modulus.
func (k *PublicKey) Encrypt(plaintext []byte) (string, error) {
	m := new(big.Int).SetBytes(plaintext)
	if m.Cmp(k.N) >= 0 {
		return "", ErrMessageTooLarge
	}

	c := new(big.Int).Exp(m, k.E, k.N)
	return hex.EncodeToString(c.Bytes()), nil
}

// Decrypt reverses Encrypt with the private exponent.
func (k *PrivateKey) Decrypt(cipherHex string) ([]byte, error) {
	c, ok := new(big.Int).SetString(cipherHex, 16)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBadKeyEncoding, cipherHex)
	}

	m := new(big.Int).Exp(c, k.D, k.N)
	return m.Bytes(), nil
}

// Hex returns the wire form of the public key: exponent and modulus as hex.
func (k *PublicKey) Hex() (exp, mod string) {
	return k.E.Text(16), k.N.Text(16)
}

// PublicKeyFromHex rebuilds a public key from its wire form.
func PublicKeyFromHex(exp, mod string) (*PublicKey, error) {
	e, ok := new(big.Int).SetString(exp, 16)
	if !ok {
		return nil, fmt.Errorf("%w: exponent %q", ErrBadKeyEncoding, exp)
	}
	n, ok := new(big.Int).SetString(mod, 16)
	if !ok {
		return nil, fmt.Errorf("%w: modulus %q", ErrBadKeyEncoding, mod)
	}
	return &PublicKey{E: e, N: n}, nil
}

// NewGroupKey returns a fresh random symmetric group key. The leading byte
// is kept nonzero: the RSA wrap round-trips keys as big-endian integers, and
// a leading zero byte would not survive it.
func NewGroupKey() ([]byte, error) {
	key := make([]byte, GroupKeySize)
	for {
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("crypto: group key generation: %w", err)
		}
		if key[0] != 0 {
			return key, nil
		}
	}
}

// SealMessage encrypts plaintext under the group key and returns a self
// contained token: base64(nonce || ciphertext+tag).
func SealMessage(key []byte, plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", fmt.Errorf("crypto: bad group key: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("crypto: nonce generation: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// OpenMessage decrypts a token produced by SealMessage. Any tampering, or a
// key other than the one used to seal, yields ErrIntegrity.
func OpenMessage(key []byte, token string) (string, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", fmt.Errorf("crypto: bad group key: %w", err)
	}

	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIntegrity, err)
	}
	if len(raw) < aead.NonceSize() {
		return "", fmt.Errorf("%w: token too short", ErrIntegrity)
	}

	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrIntegrity
	}
	return string(plaintext), nil
}
