// Package document defines the SearchDocument record indexed by the engine,
// its tagged metadata values, and the field extractor that turns a document
// field into raw text for the tokenizer.
package document

import (
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/devsearch/pkg/errors"
)

// Type is the kind of application record a document was built from.
type Type string

const (
	TypeProfile    Type = "profile"
	TypeRepository Type = "repository"
	TypeUser       Type = "user"
	TypeSkill      Type = "skill"
)

// Valid reports whether t is one of the known document types.
func (t Type) Valid() bool {
	switch t {
	case TypeProfile, TypeRepository, TypeUser, TypeSkill:
		return true
	}
	return false
}

// Built-in field names resolved directly from the document rather than
// its metadata.
const (
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldTags        = "tags"
)

// SearchDocument is the unit stored in an index. Score is a baseline supplied
// by the document source; the engine never reads it.
type SearchDocument struct {
	ID          string               `json:"id"`
	Type        Type                 `json:"type"`
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Tags        []string             `json:"tags"`
	Metadata    map[string]MetaValue `json:"metadata,omitempty"`
	Score       float64              `json:"score"`
	Timestamp   time.Time            `json:"timestamp"`
}

// Validate checks the fields the index relies on.
func (d SearchDocument) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return apperrors.Invalidf("document id is required")
	}
	if !d.Type.Valid() {
		return apperrors.Invalidf("document %q has unknown type %q", d.ID, d.Type)
	}
	return nil
}

// Clone returns a deep copy so the index and its callers never share the
// tag slice or metadata map.
func (d SearchDocument) Clone() SearchDocument {
	out := d
	if d.Tags != nil {
		out.Tags = make([]string, len(d.Tags))
		copy(out.Tags, d.Tags)
	}
	if d.Metadata != nil {
		out.Metadata = make(map[string]MetaValue, len(d.Metadata))
		for k, v := range d.Metadata {
			out.Metadata[k] = v.clone()
		}
	}
	return out
}

// FieldValue returns the raw text of field for tokenization. Unknown or absent
// fields yield "".
func FieldValue(d SearchDocument, field string) string {
	switch field {
	case FieldTitle:
		return d.Title
	case FieldDescription:
		return d.Description
	case FieldTags:
		return strings.Join(d.Tags, " ")
	}
	v, ok := d.Metadata[field]
	if !ok {
		return ""
	}
	return v.Text()
}
