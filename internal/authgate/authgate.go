// Package authgate implements spec.md §4.8's AuthGate: pre-shared-key
// authentication keyed primarily by dataset_id, falling back to client_id.
//
// Grounded on internal/server/middlewares/auth.go's header-extraction and
// constant-time comparison idiom in the teacher repo.
package authgate

import (
	"crypto/subtle"
	"errors"
)

// ErrUnauthorized is returned when no key matches the presented credential.
var ErrUnauthorized = errors.New("authgate: unauthorized")

// Gate checks a presented API key against per-dataset and per-client
// pre-shared keys. Dataset keys take priority; if the dataset has no
// registered key, the client mapping is consulted, per spec.md §4.8.
type Gate struct {
	DatasetKeys map[string]string
	ClientKeys  map[string]string
}

// New returns a Gate. Either map may be nil.
func New(datasetKeys, clientKeys map[string]string) *Gate {
	if datasetKeys == nil {
		datasetKeys = map[string]string{}
	}
	if clientKeys == nil {
		clientKeys = map[string]string{}
	}
	return &Gate{DatasetKeys: datasetKeys, ClientKeys: clientKeys}
}

// Authorize verifies presentedKey against datasetID's key, falling back to
// clientID's key. Comparison is constant-time to avoid timing side
// channels, per spec.md §4.8.
func (g *Gate) Authorize(datasetID, clientID, presentedKey string) error {
	if presentedKey == "" {
		return ErrUnauthorized
	}

	if want, ok := g.DatasetKeys[datasetID]; ok {
		if constantTimeEqual(want, presentedKey) {
			return nil
		}
		return ErrUnauthorized
	}

	if want, ok := g.ClientKeys[clientID]; ok {
		if constantTimeEqual(want, presentedKey) {
			return nil
		}
		return ErrUnauthorized
	}

	return ErrUnauthorized
}

func constantTimeEqual(want, got string) bool {
	if len(want) != len(got) {
		// Lengths differ: return without comparing bytes. Only the
		// equal-length comparison below is constant-time.
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}
