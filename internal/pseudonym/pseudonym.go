// Package pseudonym derives stable per-alert reporter ids for sighting reports.
//
// A reporter gets the same id on every sighting of one alert and unrelated
// ids across alerts, so the alert creator can group tips without learning
// who sent them.
package pseudonym

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Prefix marks reporter ids as pseudonyms.
const Prefix = "anon_"

const (
	keyLen  = 32
	hashLen = 12 // bytes of the HMAC kept in the id
	info    = "familyshare sighting reporter v1"
)

// ErrEmptySecret is returned when no master secret is configured.
var ErrEmptySecret = errors.New("pseudonym secret is empty")

// Generator derives reporter pseudonyms from a master secret.
type Generator struct {
	master []byte
}

// New creates a Generator.
func New(secret string) (*Generator, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &Generator{master: []byte(secret)}, nil
}

// ForReporter returns the pseudonym of userID on alertID.
func (g *Generator) ForReporter(alertID, userID string) (string, error) {
	key, err := g.alertKey(alertID)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(userID))
	return Prefix + hex.EncodeToString(mac.Sum(nil)[:hashLen]), nil
}

// alertKey expands a key bound to one alert.
func (g *Generator) alertKey(alertID string) ([]byte, error) {
	r := hkdf.New(sha256.New, g.master, []byte(alertID), []byte(info))
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive alert key: %w", err)
	}
	return key, nil
}
