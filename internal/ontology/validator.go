package ontology

import (
	"fmt"

	"github.com/tracegraph/tracegraph/internal/tracerr"
)

// ValidationError is a single validation failure. validate_entity
// accumulates every failure found rather than stopping at the first.
type ValidationError struct {
	Kind     tracerr.Kind
	Property string
	Message  string
}

func (e *ValidationError) Error() string {
	if e.Property != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Property, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Validator checks entities and relations against an active [Schema].
type Validator struct {
	schema *Schema
}

// NewValidator returns a Validator bound to schema.
func NewValidator(schema *Schema) *Validator {
	return &Validator{schema: schema}
}

// ValidateEntity checks properties against entityTypeID's declaration,
// including inherited properties from supertypes. Unknown properties are
// permitted (open-world); every constraint on the type is checked across
// every provided property whose value-shape matches the constraint, not
// only a named property — this quirk is preserved from the source design.
//
// All failures are returned together; the caller sees nil only when every
// check passes.
func (v *Validator) ValidateEntity(entityTypeID string, properties map[string]any) []*ValidationError {
	et, ok := v.schema.EntityTypes[entityTypeID]
	if !ok {
		return []*ValidationError{{Kind: tracerr.EntityTypeUnknown, Message: entityTypeID}}
	}

	var errs []*ValidationError
	allProps := v.schema.AllProperties(entityTypeID)

	for _, def := range allProps {
		if def.Required || def.Cardinality == CardinalityOne || def.Cardinality == CardinalityOneOrMore {
			if _, present := properties[def.Name]; !present {
				errs = append(errs, &ValidationError{
					Kind:     tracerr.PropertyMissing,
					Property: def.Name,
					Message:  fmt.Sprintf("required property missing for entity type %q", entityTypeID),
				})
			}
		}
	}

	defByName := make(map[string]PropertyDefinition, len(allProps))
	for _, def := range allProps {
		defByName[def.Name] = def
	}

	for name, value := range properties {
		def, known := defByName[name]
		if !known {
			continue
		}
		if err := validatePropertyShape(name, value, def.PropertyType); err != nil {
			errs = append(errs, err)
		}
		if err := validateCardinality(name, value, def.Cardinality); err != nil {
			errs = append(errs, err)
		}
	}

	for _, c := range et.Constraints {
		errs = append(errs, validateConstraint(c, properties)...)
	}

	return errs
}

// ValidateRelation checks that sourceType and targetType are compatible with
// relationTypeID's declared domain and range (subtype-aware).
func (v *Validator) ValidateRelation(relationTypeID, sourceType, targetType string) error {
	rt, ok := v.schema.RelationTypes[relationTypeID]
	if !ok {
		return tracerr.New("ontology: validate relation: "+relationTypeID, tracerr.RelationTypeUnknown)
	}
	if !v.schema.IsSubtypeOf(sourceType, rt.Domain) || !v.schema.IsSubtypeOf(targetType, rt.Range) {
		return tracerr.Wrap("ontology: validate relation",
			tracerr.RelationEndpointsIncompatible,
			fmt.Errorf("relation %q expects domain %q and range %q, got source %q and target %q",
				relationTypeID, rt.Domain, rt.Range, sourceType, targetType))
	}
	return nil
}

func validatePropertyShape(name string, value any, pt PropertyType) *ValidationError {
	ok := false
	switch pt.Kind {
	case KindString, KindDateTime, KindReference:
		_, ok = value.(string)
	case KindNumber:
		switch value.(type) {
		case float64, float32, int, int32, int64:
			ok = true
		}
	case KindBoolean:
		_, ok = value.(bool)
	case KindObject:
		_, ok = value.(map[string]any)
	case KindArray, KindEmbedding:
		_, isSlice := value.([]any)
		_, isFloats := value.([]float32)
		ok = isSlice || isFloats
	default:
		ok = true
	}
	if !ok {
		return &ValidationError{
			Kind:     tracerr.PropertyTypeMismatch,
			Property: name,
			Message:  fmt.Sprintf("expected %s", pt.Kind),
		}
	}
	return nil
}

func validateCardinality(name string, value any, c Cardinality) *ValidationError {
	count := 1
	if arr, ok := value.([]any); ok {
		count = len(arr)
	} else if arr, ok := value.([]float32); ok {
		count = len(arr)
	}

	valid := true
	switch c {
	case CardinalityOne:
		valid = count == 1
	case CardinalityZeroOrOne:
		valid = count <= 1
	case CardinalityMany:
		valid = true
	case CardinalityOneOrMore:
		valid = count >= 1
	}
	if !valid {
		return &ValidationError{
			Kind:     tracerr.CardinalityViolation,
			Property: name,
			Message:  fmt.Sprintf("expected cardinality %s, found %d values", c, count),
		}
	}
	return nil
}

// validateConstraint scans every property of matching value-shape, per the
// source design's quirk that constraints are not attached to a single named
// property. Pattern and Custom are accepted but unenforced (spec.md §9).
func validateConstraint(c Constraint, properties map[string]any) []*ValidationError {
	var errs []*ValidationError
	switch c.Kind {
	case ConstraintValueRange:
		for name, value := range properties {
			num, ok := asFloat(value)
			if !ok {
				continue
			}
			if (c.Min != nil && num < *c.Min) || (c.Max != nil && num > *c.Max) {
				errs = append(errs, &ValidationError{
					Kind: tracerr.ConstraintViolation, Property: name,
					Message: fmt.Sprintf("value %v out of range", num),
				})
			}
		}
	case ConstraintEnum:
		for name, value := range properties {
			s, ok := value.(string)
			if !ok {
				continue
			}
			if !contains(c.Values, s) {
				errs = append(errs, &ValidationError{
					Kind: tracerr.ConstraintViolation, Property: name,
					Message: fmt.Sprintf("value %q not in enum", s),
				})
			}
		}
	case ConstraintStringLength:
		for name, value := range properties {
			s, ok := value.(string)
			if !ok {
				continue
			}
			l := len(s)
			if c.MinLen != nil && l < *c.MinLen {
				errs = append(errs, &ValidationError{Kind: tracerr.ConstraintViolation, Property: name, Message: "below minimum string length"})
			}
			if c.MaxLen != nil && l > *c.MaxLen {
				errs = append(errs, &ValidationError{Kind: tracerr.ConstraintViolation, Property: name, Message: "above maximum string length"})
			}
		}
	case ConstraintPattern, ConstraintCustom:
		// Declared but unenforced in the core (spec.md §9).
	}
	return errs
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
