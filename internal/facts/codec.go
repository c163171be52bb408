package facts

import (
	"bytes"
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// wireDocument accepts the legacy "entity_type" key written by older
// checkpoint runs alongside the current "entityType".
type wireDocument struct {
	Document
	LegacyEntityType string `json:"entity_type,omitempty"`
}

// DecodeDocument parses and validates a fact document. Any parse or schema
// failure is reported as ErrMalformedDocument.
func DecodeDocument(data []byte) (*Document, error) {
	var w wireDocument
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode fact document"), ErrMalformedDocument)
	}

	doc := w.Document
	if doc.EntityType == "" && w.LegacyEntityType != "" {
		t, err := ParseEntityType(w.LegacyEntityType)
		if err != nil {
			return nil, errors.Mark(err, ErrMalformedDocument)
		}
		doc.EntityType = t
	} else if doc.EntityType != "" {
		t, err := ParseEntityType(string(doc.EntityType))
		if err != nil {
			return nil, errors.Mark(err, ErrMalformedDocument)
		}
		doc.EntityType = t
	}

	if err := doc.validate(); err != nil {
		return nil, errors.Mark(err, ErrMalformedDocument)
	}
	return &doc, nil
}

// validate checks the schema invariants that can be enforced at load time.
// Active facts carrying supersededBy are tolerated: older documents wrote the
// replaced id onto the replacing fact.
func (d *Document) validate() error {
	if d.Facts == nil {
		d.Facts = []Fact{}
	}
	seen := make(map[string]bool, len(d.Facts))
	for i := range d.Facts {
		f := &d.Facts[i]
		if f.ID == "" {
			return errors.Newf("fact %d has no id", i)
		}
		if seen[f.ID] {
			return errors.Newf("duplicate fact id %q", f.ID)
		}
		seen[f.ID] = true

		if f.Category == "" {
			f.Category = CategoryContext
		}
		if !f.Category.Valid() {
			return errors.Newf("fact %s: unknown category %q", f.ID, f.Category)
		}
		switch f.Status {
		case StatusActive, StatusSuperseded:
		default:
			return errors.Newf("fact %s: unknown status %q", f.ID, f.Status)
		}
		if f.AccessCount < 0 {
			return errors.Newf("fact %s: negative accessCount", f.ID)
		}
		if f.RelatedEntities == nil {
			f.RelatedEntities = []string{}
		}
	}
	return nil
}

// EncodeDocument renders a document as indented JSON.
func EncodeDocument(doc *Document) ([]byte, error) {
	return encodeIndented(doc)
}

// DecodeLedger parses the access ledger. Empty input is an empty ledger.
func DecodeLedger(data []byte) (map[string]LedgerEntry, error) {
	ledger := make(map[string]LedgerEntry)
	if len(bytes.TrimSpace(data)) == 0 {
		return ledger, nil
	}
	if err := json.Unmarshal(data, &ledger); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode access ledger"), ErrMalformedDocument)
	}
	for key, e := range ledger {
		if e.AccessCount < 0 {
			return nil, errors.Mark(errors.Newf("ledger entry %q: negative accessCount", key), ErrMalformedDocument)
		}
	}
	return ledger, nil
}

// EncodeLedger renders the ledger as indented JSON with sorted keys.
func EncodeLedger(ledger map[string]LedgerEntry) ([]byte, error) {
	return encodeIndented(ledger)
}

func encodeIndented(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, errors.Wrap(err, "encode json")
	}
	return buf.Bytes(), nil
}
