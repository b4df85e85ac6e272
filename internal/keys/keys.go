// Package keys generates and validates API key strings. Keys carry a fixed
// versioned prefix encoding the environment, so the string alone communicates
// blast radius, followed by a fixed-length lowercase-hex random suffix.
package keys

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"

	"github.com/suncrest/sungate/pkg/models"
)

const (
	// secretBytes is the entropy of the random suffix.
	secretBytes = 24

	livePrefix    = "sg_live_"
	testPrefix    = "sg_test_"
	webhookPrefix = "whsec_"

	// displayLen is how many leading characters are safe to show.
	displayLen = 16
)

// keyPattern rejects anything that is not a well-formed key before any store
// lookup happens, so malformed input leaks no timing or existence signal.
var keyPattern = regexp.MustCompile(`^sg_(live|test)_[0-9a-f]{48}$`)

// Generate produces a new plaintext API key for the environment.
func Generate(env models.Environment) (string, error) {
	suffix, err := randomHex(secretBytes)
	if err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	if env == models.EnvProduction {
		return livePrefix + suffix, nil
	}
	return testPrefix + suffix, nil
}

// NewWebhookSecret produces a random webhook signing secret, shown once at
// subscription creation.
func NewWebhookSecret() (string, error) {
	suffix, err := randomHex(secretBytes)
	if err != nil {
		return "", fmt.Errorf("generate webhook secret: %w", err)
	}
	return webhookPrefix + suffix, nil
}

// Hash returns the hex SHA-256 digest of the plaintext. Lookup is by hash
// equality; nothing is ever decrypted.
func Hash(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// ValidFormat reports whether candidate matches the strict key format.
func ValidFormat(candidate string) bool {
	return keyPattern.MatchString(candidate)
}

// DisplayPrefix returns the leading characters of a plaintext key, safe to
// show wherever the key must be referenced without exposing the secret.
func DisplayPrefix(plaintext string) string {
	if len(plaintext) <= displayLen {
		return plaintext
	}
	return plaintext[:displayLen] + "..."
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
