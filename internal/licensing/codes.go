package licensing

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"

	"github.com/ildocuema64/Kamba-Many-sub001/internal/shared"
)

// refAlphabet avoids characters that read ambiguously over the phone. Its
// length divides 256, so byte-mod indexing stays unbiased.
const refAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const refLength = 6

// CodeGenerator derives activation codes from a shared secret. The register
// and the vendor tool both hold the secret, so codes verify offline.
type CodeGenerator struct {
	key []byte
}

// NewCodeGenerator expands the secret into an HMAC key.
func NewCodeGenerator(secret string) (*CodeGenerator, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, shared.Validationf("licensing: activation secret required")
	}
	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte("kamba/activation/v1"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("licensing: derive key: %w", err)
	}
	return &CodeGenerator{key: key}, nil
}

// Generate computes the activation code for a reference code and plan. The
// same inputs always produce the same code; changing either changes it.
func (g *CodeGenerator) Generate(refCode string, plan Plan) string {
	mac := hmac.New(sha256.New, g.key)
	mac.Write([]byte(refCode))
	mac.Write([]byte("|"))
	mac.Write([]byte(plan))
	digest := strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))[:12]
	return fmt.Sprintf("ACT-%s-%s-%s", digest[0:4], digest[4:8], digest[8:12])
}

// Validate recomputes the expected code and compares in constant time.
func (g *CodeGenerator) Validate(refCode string, plan Plan, code string) bool {
	expected := g.Generate(refCode, plan)
	candidate := strings.ToUpper(strings.TrimSpace(code))
	return hmac.Equal([]byte(expected), []byte(candidate))
}

// NewReferenceCode draws a fresh REF-XXXXXX identifier.
func NewReferenceCode() (string, error) {
	buf := make([]byte, refLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("licensing: reference code entropy: %w", err)
	}
	chars := make([]byte, refLength)
	for i, b := range buf {
		chars[i] = refAlphabet[int(b)%len(refAlphabet)]
	}
	return "REF-" + string(chars), nil
}
