// Package keyring owns the process-wide RSA signing key pair. The pair is
// loaded from the signing_keys table on first use and generated if absent; a
// sync.Once guard ensures concurrent first-use cannot create duplicate pairs.
// The private key never leaves this package. Rotation is a manual
// administrative operation (insert a new active row, restart), never automatic.
package keyring

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/media-gateway/media-gateway/internal/db/models"
)

// ErrSigningUnavailable is returned when no private key is present, either
// because Ensure was never called or because initialization failed.
var ErrSigningUnavailable = errors.New("signing unavailable: no active key pair")

// KeyBits is the RSA modulus size for generated pairs.
const KeyBits = 2048

// Store is the persistence surface the key ring needs.
type Store interface {
	ActiveKey(ctx context.Context) (*models.SigningKey, error)
	CreateKey(ctx context.Context, key *models.SigningKey) error
}

// KeyRing holds the active asymmetric key pair and produces/verifies
// signatures over canonical request strings. Immutable after Ensure.
type KeyRing struct {
	store Store

	once    sync.Once
	onceErr error

	keyID string
	priv  *rsa.PrivateKey
	pub   *rsa.PublicKey
}

// New creates a key ring backed by the given store. No keys are touched
// until Ensure is called.
func New(store Store) *KeyRing {
	return &KeyRing{store: store}
}

// Ensure idempotently loads the active key pair, generating and persisting a
// new 2048-bit RSA pair with a random key identifier if none exists. Safe for
// concurrent first use; only one initialization ever runs per process.
func (k *KeyRing) Ensure(ctx context.Context) error {
	k.once.Do(func() {
		k.onceErr = k.initialize(ctx)
	})
	return k.onceErr
}

func (k *KeyRing) initialize(ctx context.Context) error {
	existing, err := k.store.ActiveKey(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active signing key: %w", err)
	}

	if existing != nil {
		priv, err := parsePrivateKeyPEM(existing.PrivateKeyPEM)
		if err != nil {
			return fmt.Errorf("failed to parse stored private key: %w", err)
		}
		k.keyID = existing.KeyID
		k.priv = priv
		k.pub = &priv.PublicKey
		slog.Info("signing key loaded", "key_id", k.keyID)
		return nil
	}

	priv, err := rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		return fmt.Errorf("failed to generate RSA key pair: %w", err)
	}

	keyID, err := randomKeyID()
	if err != nil {
		return fmt.Errorf("failed to generate key id: %w", err)
	}

	record := &models.SigningKey{
		KeyID:         keyID,
		PrivateKeyPEM: encodePrivateKeyPEM(priv),
		PublicKeyPEM:  encodePublicKeyPEM(&priv.PublicKey),
	}
	if err := k.store.CreateKey(ctx, record); err != nil {
		return fmt.Errorf("failed to persist signing key: %w", err)
	}

	k.keyID = keyID
	k.priv = priv
	k.pub = &priv.PublicKey
	slog.Info("signing key generated", "key_id", k.keyID, "bits", KeyBits)
	return nil
}

// KeyID returns the public key identifier embedded in URLs as Key-Pair-Id.
// Empty until Ensure succeeds.
func (k *KeyRing) KeyID() string {
	return k.keyID
}

// Available reports whether the ring holds a usable key pair. Exposed for the
// readiness endpoint's crypto_available boolean.
func (k *KeyRing) Available() bool {
	return k.priv != nil
}

// Sign computes an RSA-SHA256 signature over payload and returns it
// base64url-encoded without padding, ready for URL embedding.
func (k *KeyRing) Sign(payload string) (string, error) {
	if k.priv == nil {
		return "", ErrSigningUnavailable
	}

	digest := sha256.Sum256([]byte(payload))
	sig, err := rsa.SignPKCS1v15(rand.Reader, k.priv, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("failed to sign payload: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(sig), nil
}

// Verify checks a base64url signature against payload using the stored public
// key. A mismatch or malformed signature returns false, never an error:
// verification failure is an expected outcome, not an exceptional one.
func (k *KeyRing) Verify(payload, signature string) bool {
	if k.pub == nil {
		return false
	}

	sig, err := base64.RawURLEncoding.DecodeString(signature)
	if err != nil {
		return false
	}

	digest := sha256.Sum256([]byte(payload))
	return rsa.VerifyPKCS1v15(k.pub, crypto.SHA256, digest[:], sig) == nil
}

// randomKeyID produces a short random identifier, e.g. "K7f3a9c2e1b4d8f05".
func randomKeyID() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "K" + hex.EncodeToString(buf), nil
}

func encodePrivateKeyPEM(priv *rsa.PrivateKey) string {
	block := &pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(priv),
	}
	return string(pem.EncodeToMemory(block))
}

func encodePublicKeyPEM(pub *rsa.PublicKey) string {
	block := &pem.Block{
		Type:  "RSA PUBLIC KEY",
		Bytes: x509.MarshalPKCS1PublicKey(pub),
	}
	return string(pem.EncodeToMemory(block))
}

func parsePrivateKeyPEM(pemStr string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	return x509.ParsePKCS1PrivateKey(block.Bytes)
}
