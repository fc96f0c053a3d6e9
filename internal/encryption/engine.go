// Package encryption implements envelope encryption for document bytes.
//
// A 32-byte master secret never touches data directly. Each document gets its
// own AES-256 key derived with PBKDF2-HMAC-SHA256 from the salt
// "documentID:ownerID:keyID", where keyID is random per encryption and must be
// stored with the document. Ciphertext layout is nonce(12) || tag(16) || data.
package encryption

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"

	"kycvault/pkg/domain"
	dErrors "kycvault/pkg/domain-errors"
	"kycvault/pkg/requestcontext"
)

const (
	Algorithm         = "AES-256-GCM"
	KDF               = "PBKDF2-HMAC-SHA256"
	DefaultIterations = 100_000
	KeySize           = 32
	NonceSize         = 12
	TagSize           = 16
)

var ErrInvalidMasterKey = errors.New("master key must be exactly 32 bytes")

// Meta describes how a ciphertext was produced. It holds no secret material.
type Meta struct {
	Algorithm   string
	KDF         string
	Iterations  int
	NonceSize   int
	TagSize     int
	KeyID       string
	EncryptedAt time.Time
}

// Envelope is the output of Encrypt.
type Envelope struct {
	Ciphertext []byte
	KeyID      string
	Meta       Meta
}

type Engine struct {
	master     []byte
	iterations int
	random     io.Reader
	logger     *slog.Logger
	metrics    *Metrics
}

type Option func(*Engine)

// WithIterations overrides the PBKDF2 work factor. Lowering it is only
// appropriate in tests.
func WithIterations(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.iterations = n
		}
	}
}

func WithRandom(r io.Reader) Option {
	return func(e *Engine) { e.random = r }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func New(masterKey []byte, opts ...Option) (*Engine, error) {
	if len(masterKey) != KeySize {
		return nil, ErrInvalidMasterKey
	}
	e := &Engine{
		master:     append([]byte(nil), masterKey...),
		iterations: DefaultIterations,
		random:     rand.Reader,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// ParseMasterKey decodes a 32-byte key given as 64 hex characters or base64.
func ParseMasterKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if len(s) == 2*KeySize {
		if b, err := hex.DecodeString(s); err == nil {
			return b, nil
		}
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(s); err == nil && len(b) == KeySize {
			return b, nil
		}
	}
	return nil, ErrInvalidMasterKey
}

// Encrypt seals plaintext under a fresh per-document key.
func (e *Engine) Encrypt(ctx context.Context, plaintext []byte, documentID domain.DocumentID, ownerID domain.OwnerID) (*Envelope, error) {
	start := time.Now()
	keyID := uuid.NewString()

	aead, err := e.aead(documentID, ownerID, keyID)
	if err != nil {
		return nil, e.fail(ctx, "encrypt", documentID, err)
	}
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(e.random, nonce); err != nil {
		return nil, e.fail(ctx, "encrypt", documentID, fmt.Errorf("read nonce: %w", err))
	}

	// Seal returns data || tag; rearrange to nonce || tag || data.
	sealed := aead.Seal(nil, nonce, plaintext, nil)
	split := len(sealed) - TagSize
	out := make([]byte, 0, NonceSize+len(sealed))
	out = append(out, nonce...)
	out = append(out, sealed[split:]...)
	out = append(out, sealed[:split]...)

	if e.metrics != nil {
		e.metrics.ObserveDuration("encrypt", time.Since(start).Seconds())
	}
	return &Envelope{
		Ciphertext: out,
		KeyID:      keyID,
		Meta: Meta{
			Algorithm:   Algorithm,
			KDF:         KDF,
			Iterations:  e.iterations,
			NonceSize:   NonceSize,
			TagSize:     TagSize,
			KeyID:       keyID,
			EncryptedAt: requestcontext.Now(ctx),
		},
	}, nil
}

// Decrypt re-derives the key from the stored keyID and opens the ciphertext.
// Any authentication failure, including truncation, is an integrity error.
func (e *Engine) Decrypt(ctx context.Context, ciphertext []byte, keyID string, documentID domain.DocumentID, ownerID domain.OwnerID) ([]byte, error) {
	start := time.Now()
	if keyID == "" {
		return nil, dErrors.New(dErrors.CodeEncryption, "key reference is required")
	}
	if len(ciphertext) < NonceSize+TagSize {
		return nil, e.integrityFailure(ctx, documentID, "ciphertext shorter than nonce and tag")
	}

	aead, err := e.aead(documentID, ownerID, keyID)
	if err != nil {
		return nil, e.fail(ctx, "decrypt", documentID, err)
	}

	nonce := ciphertext[:NonceSize]
	tag := ciphertext[NonceSize : NonceSize+TagSize]
	data := ciphertext[NonceSize+TagSize:]
	sealed := make([]byte, 0, len(data)+TagSize)
	sealed = append(sealed, data...)
	sealed = append(sealed, tag...)

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, e.integrityFailure(ctx, documentID, "authentication tag mismatch")
	}
	if e.metrics != nil {
		e.metrics.ObserveDuration("decrypt", time.Since(start).Seconds())
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}

// Hash returns the lowercase hex SHA-256 of b.
func (e *Engine) Hash(b []byte) string { return Hash(b) }

// Verify reports whether b hashes to expected, in constant time.
func (e *Engine) Verify(b []byte, expected string) bool { return Verify(b, expected) }

func Hash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func Verify(b []byte, expected string) bool {
	actual := Hash(b)
	return subtle.ConstantTimeCompare([]byte(actual), []byte(strings.ToLower(expected))) == 1
}

func (e *Engine) aead(documentID domain.DocumentID, ownerID domain.OwnerID, keyID string) (cipher.AEAD, error) {
	salt := []byte(documentID.String() + ":" + ownerID.String() + ":" + keyID)
	key := pbkdf2.Key(e.master, salt, e.iterations, KeySize, sha256.New)
	defer clear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init block cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return aead, nil
}

func (e *Engine) fail(ctx context.Context, op string, documentID domain.DocumentID, err error) error {
	if e.metrics != nil {
		e.metrics.IncFailure(op)
	}
	e.logger.ErrorContext(ctx, "encryption failure", "op", op, "document_id", documentID, "error", err)
	return dErrors.EncryptionError(err, op+" failed")
}

func (e *Engine) integrityFailure(ctx context.Context, documentID domain.DocumentID, reason string) error {
	if e.metrics != nil {
		e.metrics.IncFailure("integrity")
	}
	e.logger.WarnContext(ctx, "ciphertext failed authentication", "document_id", documentID, "reason", reason)
	return dErrors.IntegrityError("document ciphertext failed authentication")
}
