// Package snapshot encodes an index's configuration and documents as a
// versioned JSON payload. Postings are never serialised; importing replays
// every document through the tokenizer that is active at import time.
package snapshot

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/devsearch/pkg/errors"
)

// FormatVersion is written into every payload. Payloads without a version
// field are read as version 1.
const FormatVersion = 1

type Snapshot struct {
	Version     int          `json:"version"`
	Config      index.Config `json:"config"`
	Documents   []Entry      `json:"documents"`
	LastUpdated time.Time    `json:"lastUpdated"`
}

// Entry is encoded as a two-element [id, document] array.
type Entry struct {
	ID       string
	Document document.SearchDocument
}

func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{e.ID, e.Document})
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("document entry must be an [id, document] pair: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("document entry has %d elements, want 2", len(pair))
	}
	if err := json.Unmarshal(pair[0], &e.ID); err != nil {
		return fmt.Errorf("document entry id: %w", err)
	}
	if err := json.Unmarshal(pair[1], &e.Document); err != nil {
		return fmt.Errorf("document %q: %w", e.ID, err)
	}
	if e.Document.ID == "" {
		e.Document.ID = e.ID
	}
	if e.Document.ID != e.ID {
		return fmt.Errorf("document entry id %q does not match document id %q", e.ID, e.Document.ID)
	}
	return nil
}

// FromContents builds a snapshot of an index's exported contents.
func FromContents(c index.Contents) Snapshot {
	entries := make([]Entry, len(c.Documents))
	for i, doc := range c.Documents {
		entries[i] = Entry{ID: doc.ID, Document: doc}
	}
	return Snapshot{
		Version:     FormatVersion,
		Config:      c.Config,
		Documents:   entries,
		LastUpdated: c.LastUpdated,
	}
}

// Docs returns the documents in payload order.
func (s Snapshot) Docs() []document.SearchDocument {
	docs := make([]document.SearchDocument, len(s.Documents))
	for i, e := range s.Documents {
		docs[i] = e.Document
	}
	return docs
}

// Encode renders s as JSON text.
func Encode(s Snapshot) (string, error) {
	if s.Version == 0 {
		s.Version = FormatVersion
	}
	if s.Documents == nil {
		s.Documents = []Entry{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encoding snapshot: %w", err)
	}
	return string(data), nil
}

// Decode parses and validates a payload. Malformed input wraps ErrParse and an
// unknown version wraps ErrUnsupportedVersion.
func Decode(payload string) (Snapshot, error) {
	var s Snapshot
	dec := json.NewDecoder(strings.NewReader(payload))
	if err := dec.Decode(&s); err != nil {
		return Snapshot{}, apperrors.Newf(apperrors.ErrParse, http.StatusUnprocessableEntity, "decoding snapshot: %v", err)
	}
	if dec.More() {
		return Snapshot{}, apperrors.New(apperrors.ErrParse, http.StatusUnprocessableEntity, "trailing data after snapshot")
	}
	if s.Version == 0 {
		s.Version = FormatVersion
	}
	if s.Version != FormatVersion {
		return Snapshot{}, apperrors.Newf(apperrors.ErrUnsupportedVersion, http.StatusUnprocessableEntity,
			"snapshot version %d, this build reads version %d", s.Version, FormatVersion)
	}
	if err := s.Config.Validate(); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot config: %w", err)
	}
	for i, e := range s.Documents {
		if err := e.Document.Validate(); err != nil {
			return Snapshot{}, fmt.Errorf("snapshot document %d: %w", i, err)
		}
	}
	return s, nil
}
