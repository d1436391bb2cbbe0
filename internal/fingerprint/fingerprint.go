// Package fingerprint decides whether a freshly assembled document differs
// from the one persisted by the previous run.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/jhosking/wtw-watcher/internal"
)

// Compute returns the content digest of a document. GeneratedAt changes every
// run and is excluded so it can never flag an unchanged document as changed.
// Serialization uses fixed struct field order, so equal content always hashes
// equal.
func Compute(doc internal.Document) (string, error) {
	doc.GeneratedAt = time.Time{}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to serialize document for hashing: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Gate persists the digest of the last published document and answers whether
// a new digest warrants regeneration.
type Gate struct {
	path string
}

func NewGate(path string) *Gate {
	return &Gate{path: path}
}

// Previous returns the stored digest, or "" when no run has published yet.
func (g *Gate) Previous() (string, error) {
	raw, err := os.ReadFile(g.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read fingerprint file: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// HasChanged reports whether digest differs from the stored one. A missing
// previous digest counts as changed so the first run always publishes.
func (g *Gate) HasChanged(digest string) (bool, error) {
	previous, err := g.Previous()
	if err != nil {
		return false, err
	}
	return previous == "" || previous != digest, nil
}

// Store records digest as the published state. Called only after the document
// and site have been written, so a crash in between re-publishes next run
// instead of losing the update.
func (g *Gate) Store(digest string) error {
	if err := os.WriteFile(g.path, []byte(digest+"\n"), 0o600); err != nil {
		return fmt.Errorf("failed to write fingerprint file: %w", err)
	}
	return nil
}
