package backpack

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultWindow is the request validity window in milliseconds.
	DefaultWindow int64 = 5000
	// MaxWindow is the largest window the exchange accepts.
	MaxWindow int64 = 60000
)

// Signer produces the authentication header triple for private requests.
// A malformed secret fails at construction, never per request.
type Signer struct {
	key ed25519.PrivateKey
	now func() time.Time
}

func NewSigner(apiSecret string) (*Signer, error) {
	key, err := decodeEd25519Secret(apiSecret)
	if err != nil {
		return nil, err
	}
	return &Signer{key: key, now: time.Now}, nil
}

func decodeEd25519Secret(secret string) (ed25519.PrivateKey, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("api secret is required")
	}
	raw, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, errors.New("api secret must be base64")
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	}
	return nil, errors.New("unsupported ed25519 private key length")
}

// Sign signs the canonical message for instruction and params at the current
// wall clock. It returns the base64 signature and the X-Timestamp / X-Window
// header values.
func (s *Signer) Sign(instruction string, params map[string]string, window int64) (sig, timestamp, windowStr string) {
	return s.SignAt(instruction, params, s.now().UnixMilli(), window)
}

// SignAt is Sign with an explicit timestamp, so callers and tests get
// deterministic signatures.
func (s *Signer) SignAt(instruction string, params map[string]string, timestampMillis, window int64) (sig, timestamp, windowStr string) {
	if window <= 0 {
		window = DefaultWindow
	}
	timestamp = strconv.FormatInt(timestampMillis, 10)
	windowStr = strconv.FormatInt(window, 10)

	parts := make([]string, 0, len(params)+3)
	parts = append(parts, "instruction="+instruction)
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k+"="+params[k])
	}
	parts = append(parts, "timestamp="+timestamp, "window="+windowStr)

	raw := ed25519.Sign(s.key, []byte(strings.Join(parts, "&")))
	return base64.StdEncoding.EncodeToString(raw), timestamp, windowStr
}

// PublicKey returns the base64 public key matching the signing key.
func (s *Signer) PublicKey() string {
	pub := s.key.Public().(ed25519.PublicKey)
	return base64.StdEncoding.EncodeToString(pub)
}
