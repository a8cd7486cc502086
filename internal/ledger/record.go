// Package ledger maintains the newline-delimited JSON index of ingested
// documents kept in the object store, one record per stored object.
package ledger

import (
	"encoding/json"
	"fmt"
	"path"
)

// LedgerFileName is the ledger object name under "<prefix>/ingest/".
const LedgerFileName = "metadata.jsonl"

// Key returns the ledger object key for an upload prefix.
func Key(prefix string) string {
	return path.Join(prefix, "ingest", LedgerFileName)
}

// Record is one ledger entry. The core schema is fixed; any additional
// metadata travels in StructData.Extra so arbitrary key-value passthrough
// survives the round-trip without losing type safety on the required fields.
type Record struct {
	ID         string     `json:"id"`
	Content    Content    `json:"content"`
	StructData StructData `json:"structData"`
}

// Content identifies the stored object.
type Content struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
}

// StructData carries the searchable metadata: a fixed core plus an open
// extension map.
type StructData struct {
	SourceType string
	Title      string
	Date       string
	Extra      map[string]any
}

// Fixed StructData keys. Anything else round-trips through Extra.
const (
	keySourceType = "sourceType"
	keyTitle      = "title"
	keyDate       = "date"
)

// MarshalJSON flattens the fixed fields and the extension map into one
// object.
func (s StructData) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(s.Extra)+3)
	for k, v := range s.Extra {
		flat[k] = v
	}
	if s.SourceType != "" {
		flat[keySourceType] = s.SourceType
	}
	if s.Title != "" {
		flat[keyTitle] = s.Title
	}
	if s.Date != "" {
		flat[keyDate] = s.Date
	}
	return json.Marshal(flat)
}

// UnmarshalJSON splits the object back into fixed fields and extras.
func (s *StructData) UnmarshalJSON(data []byte) error {
	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	*s = StructData{}
	for k, v := range flat {
		switch k {
		case keySourceType:
			s.SourceType, _ = v.(string)
		case keyTitle:
			s.Title, _ = v.(string)
		case keyDate:
			s.Date, _ = v.(string)
		default:
			if s.Extra == nil {
				s.Extra = make(map[string]any)
			}
			s.Extra[k] = v
		}
	}
	return nil
}

// SetExtra stores one extension key.
func (s *StructData) SetExtra(key string, value any) {
	if s.Extra == nil {
		s.Extra = make(map[string]any)
	}
	s.Extra[key] = value
}

// MarshalLine renders the record as one ledger line (no trailing newline).
func (r Record) MarshalLine() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal ledger record %s: %w", r.ID, err)
	}
	return data, nil
}
