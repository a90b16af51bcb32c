package ontology

import (
	"encoding/json"
	"fmt"

	"github.com/tracegraph/tracegraph/internal/tracerr"
	"gopkg.in/yaml.v3"
)

// Format selects the wire encoding for schema documents.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Load parses a schema document in the given format and validates it before
// returning. An invalid document — one that fails [Schema.Validate] — is
// rejected rather than returned for the caller to validate separately,
// matching the load-then-validate contract every loader.rs load path follows.
func Load(data []byte, format Format) (*Schema, error) {
	s := &Schema{}
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, s)
	case FormatJSON:
		err = json.Unmarshal(data, s)
	default:
		return nil, tracerr.New("ontology: load", tracerr.InvalidQuery)
	}
	if err != nil {
		return nil, tracerr.Wrap("ontology: load: decode", tracerr.SchemaInvalid, err)
	}
	if s.EntityTypes == nil {
		s.EntityTypes = make(map[string]EntityType)
	}
	if s.RelationTypes == nil {
		s.RelationTypes = make(map[string]RelationType)
	}
	if verr := s.Validate(); verr != nil {
		return nil, tracerr.Wrap("ontology: load: validate", tracerr.SchemaInvalid, verr)
	}
	return s, nil
}

// Serialize encodes s in the given format. The schema is not re-validated —
// callers are expected to only ever hold a Schema that has already passed
// [Load] or [Schema.Validate].
func Serialize(s *Schema, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		b, err := yaml.Marshal(s)
		if err != nil {
			return nil, fmt.Errorf("ontology: serialize yaml: %w", err)
		}
		return b, nil
	case FormatJSON:
		b, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("ontology: serialize json: %w", err)
		}
		return b, nil
	default:
		return nil, tracerr.New("ontology: serialize", tracerr.InvalidQuery)
	}
}
