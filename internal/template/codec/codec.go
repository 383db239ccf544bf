// Package codec seals and opens template payloads. Encryption uses an AEAD
// (XChaCha20-Poly1305) with a fresh random nonce per call; an independent
// SHA-256 checksum of the plaintext is stored alongside so tampering is
// detectable even across key rotation. Key material is looked up by key id
// from a KeyProvider collaborator; the codec never generates or stores keys.
package codec

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"time"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/chacha20poly1305"

	"veriprint/internal/template/models"
	dErrors "veriprint/pkg/domain-errors"
)

// KeyProvider resolves symmetric key material by version id. Implementations
// may front an external KMS; see the keyring in this package for the static
// development provider.
type KeyProvider interface {
	// Material returns the 32-byte key for the given id.
	Material(keyID string) ([]byte, error)
	// CurrentID returns the id new encryptions should be stamped with.
	CurrentID() string
}

// Codec is a pure transform; it holds no state beyond the key provider and
// is safe for concurrent use.
type Codec struct {
	keys KeyProvider
}

func New(keys KeyProvider) *Codec {
	return &Codec{keys: keys}
}

// Encrypt seals plaintext under the provider's current key and returns the
// at-rest record. The checksum covers the plaintext, not the ciphertext.
func (c *Codec) Encrypt(plaintext []byte) (models.EncryptedRecord, error) {
	keyID := c.keys.CurrentID()
	key, err := c.keys.Material(keyID)
	if err != nil {
		return models.EncryptedRecord{}, dErrors.Wrap(err, dErrors.CodeInternal, "encryption key unavailable")
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return models.EncryptedRecord{}, dErrors.Wrap(err, dErrors.CodeInternal, "cipher init failed")
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return models.EncryptedRecord{}, dErrors.Wrap(err, dErrors.CodeInternal, "nonce generation failed")
	}

	sum := sha256.Sum256(plaintext)
	return models.EncryptedRecord{
		Ciphertext: aead.Seal(nil, nonce, plaintext, nil),
		Nonce:      nonce,
		KeyID:      keyID,
		Checksum:   sum[:],
	}, nil
}

// Decrypt opens a record and re-verifies the independent checksum. AEAD
// failures surface as CodeDecryption (possibly transient: a rotated-away
// key); checksum mismatches surface as CodeIntegrity and callers are
// expected to disable the template.
func (c *Codec) Decrypt(rec models.EncryptedRecord) ([]byte, error) {
	key, err := c.keys.Material(rec.KeyID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDecryption, "decryption key unavailable")
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "cipher init failed")
	}
	if len(rec.Nonce) != aead.NonceSize() {
		return nil, dErrors.New(dErrors.CodeDecryption, "malformed nonce")
	}

	plaintext, err := aead.Open(nil, rec.Nonce, rec.Ciphertext, nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDecryption, "authentication tag mismatch")
	}

	sum := sha256.Sum256(plaintext)
	if !bytes.Equal(sum[:], rec.Checksum) {
		Wipe(plaintext)
		return nil, dErrors.New(dErrors.CodeIntegrity, "plaintext checksum mismatch")
	}
	return plaintext, nil
}

// Wipe zeroes a plaintext buffer. Callers release decrypted template data
// through this as soon as matching completes.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Envelope is the plaintext structure sealed into a template record. CBOR
// keeps it compact and binary-safe.
type Envelope struct {
	Version    int                  `cbor:"1,keyasint"`
	Format     models.CaptureFormat `cbor:"2,keyasint"`
	Sample     []byte               `cbor:"3,keyasint"`
	CapturedAt time.Time            `cbor:"4,keyasint"`
}

const envelopeVersion = 1

// EncodeEnvelope serializes a capture into the plaintext envelope.
func EncodeEnvelope(capture models.Capture, capturedAt time.Time) ([]byte, error) {
	b, err := cbor.Marshal(Envelope{
		Version:    envelopeVersion,
		Format:     capture.Format,
		Sample:     capture.Data,
		CapturedAt: capturedAt,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "envelope encode failed")
	}
	return b, nil
}

// DecodeEnvelope parses a decrypted plaintext back into the envelope.
func DecodeEnvelope(plaintext []byte) (Envelope, error) {
	var env Envelope
	if err := cbor.Unmarshal(plaintext, &env); err != nil {
		return Envelope{}, dErrors.Wrap(err, dErrors.CodeIntegrity, "envelope decode failed")
	}
	return env, nil
}
