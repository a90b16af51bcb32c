// Package ontology implements the lightweight description-logic fragment that
// backs tracegraph's schema model, write-time validation, and read-time
// query expansion: class hierarchies with single inheritance, property
// cardinality/typing, and relation modifiers (transitive, symmetric,
// inverse, functional, reflexive).
package ontology

// PropertyType classifies the shape of a property's value.
type PropertyType struct {
	// Kind is one of String, Number, Boolean, DateTime, Reference, Embedding,
	// Object, Array.
	Kind PropertyKind `yaml:"type" json:"type"`

	// Config carries the element PropertyType for Array. Nil for other
	// kinds; a Reference names its target in RefType.
	Config *PropertyType `yaml:"config,omitempty" json:"config,omitempty"`

	// RefType is set when Kind is Reference, naming the target entity type.
	RefType string `yaml:"ref_type,omitempty" json:"ref_type,omitempty"`
}

// PropertyKind enumerates the property-type tags.
type PropertyKind string

const (
	KindString    PropertyKind = "String"
	KindNumber    PropertyKind = "Number"
	KindBoolean   PropertyKind = "Boolean"
	KindDateTime  PropertyKind = "DateTime"
	KindReference PropertyKind = "Reference"
	KindEmbedding PropertyKind = "Embedding"
	KindObject    PropertyKind = "Object"
	KindArray     PropertyKind = "Array"
)

// Cardinality constrains how many values a property may carry.
type Cardinality string

const (
	CardinalityOne       Cardinality = "One"
	CardinalityZeroOrOne Cardinality = "ZeroOrOne"
	CardinalityMany      Cardinality = "Many"
	CardinalityOneOrMore Cardinality = "OneOrMore"
)

// PropertyDefinition declares a single property an entity type carries.
type PropertyDefinition struct {
	Name         string       `yaml:"name" json:"name"`
	PropertyType PropertyType `yaml:"property_type" json:"property_type"`
	Required     bool         `yaml:"required" json:"required"`
	Cardinality  Cardinality  `yaml:"cardinality" json:"cardinality"`
	Description  string       `yaml:"description,omitempty" json:"description,omitempty"`
}

// ConstraintKind enumerates the closed set of constraint tags.
type ConstraintKind string

const (
	ConstraintValueRange   ConstraintKind = "ValueRange"
	ConstraintPattern      ConstraintKind = "Pattern"
	ConstraintEnum         ConstraintKind = "Enum"
	ConstraintStringLength ConstraintKind = "StringLength"
	ConstraintCustom       ConstraintKind = "Custom"
)

// Constraint is a value constraint applied across all properties of a
// matching value-shape on an entity (see Validator), not attached to a
// single named property — this quirk is preserved from the source design.
type Constraint struct {
	Kind ConstraintKind `yaml:"type" json:"type"`

	// ValueRange
	Min *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max *float64 `yaml:"max,omitempty" json:"max,omitempty"`

	// Pattern / Custom: opaque payload.
	Tag string `yaml:"tag,omitempty" json:"tag,omitempty"`

	// Enum
	Values []string `yaml:"values,omitempty" json:"values,omitempty"`

	// StringLength
	MinLen *int `yaml:"min_len,omitempty" json:"min_len,omitempty"`
	MaxLen *int `yaml:"max_len,omitempty" json:"max_len,omitempty"`
}

// EntityType is an ontology class: a label, an optional single parent for
// inheritance, a list of property definitions, and a list of constraints.
type EntityType struct {
	ID          string               `yaml:"id" json:"id"`
	Label       string               `yaml:"label" json:"label"`
	Parent      string               `yaml:"parent,omitempty" json:"parent,omitempty"`
	Properties  []PropertyDefinition `yaml:"properties" json:"properties"`
	Constraints []Constraint         `yaml:"constraints" json:"constraints"`
}

// RelationType is a typed directed edge definition between a domain and a
// range entity type, carrying the modifier flags realized at query time.
type RelationType struct {
	ID         string `yaml:"id" json:"id"`
	Label      string `yaml:"label" json:"label"`
	Domain     string `yaml:"domain" json:"domain"`
	Range      string `yaml:"range" json:"range"`
	Inverse    string `yaml:"inverse,omitempty" json:"inverse,omitempty"`
	Transitive bool   `yaml:"transitive" json:"transitive"`
	Symmetric  bool   `yaml:"symmetric" json:"symmetric"`
	Functional bool   `yaml:"functional" json:"functional"`
	Reflexive  bool   `yaml:"reflexive" json:"reflexive"`
}

// Directed reports whether edges of this relation type have a meaningful
// direction. Always true unless the relation is symmetric.
func (r RelationType) Directed() bool { return !r.Symmetric }

// RuleType enumerates inference rule kinds. PropertyChain and Custom are
// accepted and round-tripped but carry no defined semantics (open question,
// see DESIGN.md): the reasoner never evaluates rules of any kind.
type RuleType string

const (
	RuleSubClassOf    RuleType = "SubClassOf"
	RuleEquivalent    RuleType = "Equivalent"
	RuleDisjoint      RuleType = "Disjoint"
	RulePropertyChain RuleType = "PropertyChain"
	RuleCustom        RuleType = "Custom"
)

// Condition and Conclusion are the subject/predicate/object triples an
// InferenceRule is built from. Neither PropertyChain nor Custom rules are
// evaluated by this implementation; they exist for forward compatibility
// with schema documents that declare them.
type Condition struct {
	Subject   string `yaml:"subject" json:"subject"`
	Predicate string `yaml:"predicate" json:"predicate"`
	Object    string `yaml:"object" json:"object"`
}

type Conclusion struct {
	Subject   string `yaml:"subject" json:"subject"`
	Predicate string `yaml:"predicate" json:"predicate"`
	Object    string `yaml:"object" json:"object"`
}

// InferenceRule is a forward-compatibility slot: schema documents may declare
// rules, and they round-trip through load/serialize, but no rule_type is
// evaluated by the reasoner.
type InferenceRule struct {
	ID          string      `yaml:"id" json:"id"`
	RuleType    RuleType    `yaml:"rule_type" json:"rule_type"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
	Conditions  []Condition `yaml:"conditions" json:"conditions"`
	Conclusion  Conclusion  `yaml:"conclusion" json:"conclusion"`
}

// Schema is the active, immutable set of entity and relation types plus
// inference rules. "Updating" a schema produces a new snapshot rather than
// mutating one in place, so that in-flight readers observe either the old or
// the new snapshot and never a mix.
type Schema struct {
	Namespace     string                  `yaml:"namespace" json:"namespace"`
	Version       string                  `yaml:"version" json:"version"`
	EntityTypes   map[string]EntityType   `yaml:"entity_types" json:"entity_types"`
	RelationTypes map[string]RelationType `yaml:"relation_types" json:"relation_types"`
	Rules         []InferenceRule         `yaml:"rules" json:"rules"`
}

// New returns an empty schema ready for population.
func New(namespace, version string) *Schema {
	return &Schema{
		Namespace:     namespace,
		Version:       version,
		EntityTypes:   make(map[string]EntityType),
		RelationTypes: make(map[string]RelationType),
	}
}

// AddEntityType inserts or replaces an entity type.
func (s *Schema) AddEntityType(et EntityType) { s.EntityTypes[et.ID] = et }

// AddRelationType inserts or replaces a relation type.
func (s *Schema) AddRelationType(rt RelationType) { s.RelationTypes[rt.ID] = rt }

// AddRule appends an inference rule.
func (s *Schema) AddRule(r InferenceRule) { s.Rules = append(s.Rules, r) }

// Subtypes returns typeID followed by every entity type that inherits from
// it, directly or transitively. Only typeID's first position is fixed; the
// order of the other entries follows map iteration and is not defined.
func (s *Schema) Subtypes(typeID string) []string {
	subtypes := []string{typeID}
	for id, et := range s.EntityTypes {
		if id == typeID {
			continue
		}
		if isSubtypeOf(s, id, et, typeID) {
			subtypes = append(subtypes, id)
		}
	}
	return subtypes
}

// Supertypes walks typeID's parent chain up to (and including) the root,
// stopping at the first parent reference that does not resolve.
func (s *Schema) Supertypes(typeID string) []string {
	supertypes := []string{typeID}
	current, ok := s.EntityTypes[typeID]
	for ok && current.Parent != "" {
		supertypes = append(supertypes, current.Parent)
		current, ok = s.EntityTypes[current.Parent]
	}
	return supertypes
}

// isSubtypeOf reports whether the entity type identified by id is a subtype
// of otherID, walking the parent chain.
func isSubtypeOf(s *Schema, id string, et EntityType, otherID string) bool {
	if id == otherID {
		return true
	}
	visited := map[string]bool{id: true}
	current := et
	for current.Parent != "" {
		if current.Parent == otherID {
			return true
		}
		if visited[current.Parent] {
			return false
		}
		visited[current.Parent] = true
		next, ok := s.EntityTypes[current.Parent]
		if !ok {
			return false
		}
		current = next
	}
	return false
}

// IsSubtypeOf reports whether typeID is equal to or inherits (directly or
// transitively) from otherID.
func (s *Schema) IsSubtypeOf(typeID, otherID string) bool {
	et, ok := s.EntityTypes[typeID]
	if !ok {
		return typeID == otherID
	}
	return isSubtypeOf(s, typeID, et, otherID)
}

// AllProperties returns typeID's own property definitions plus every
// inherited definition walking up the parent chain.
func (s *Schema) AllProperties(typeID string) []PropertyDefinition {
	et, ok := s.EntityTypes[typeID]
	if !ok {
		return nil
	}
	props := append([]PropertyDefinition(nil), et.Properties...)
	if et.Parent != "" {
		props = append(props, s.AllProperties(et.Parent)...)
	}
	return props
}

// Validate checks internal consistency: every parent, relation domain/range,
// and inverse reference resolves, and the inheritance graph is acyclic.
func (s *Schema) Validate() error {
	for id, et := range s.EntityTypes {
		if hasCircularInheritance(s, id) {
			return &schemaError{msg: "circular inheritance detected for type: " + id}
		}
		if et.Parent != "" {
			if _, ok := s.EntityTypes[et.Parent]; !ok {
				return &schemaError{msg: "parent type '" + et.Parent + "' not found for type '" + id + "'"}
			}
		}
	}
	for id, rt := range s.RelationTypes {
		if _, ok := s.EntityTypes[rt.Domain]; !ok {
			return &schemaError{msg: "domain type '" + rt.Domain + "' not found for relation '" + id + "'"}
		}
		if _, ok := s.EntityTypes[rt.Range]; !ok {
			return &schemaError{msg: "range type '" + rt.Range + "' not found for relation '" + id + "'"}
		}
		if rt.Inverse != "" {
			if _, ok := s.RelationTypes[rt.Inverse]; !ok {
				return &schemaError{msg: "inverse relation '" + rt.Inverse + "' not found for relation '" + id + "'"}
			}
		}
	}
	return nil
}

func hasCircularInheritance(s *Schema, typeID string) bool {
	visited := make(map[string]bool)
	currentID := typeID
	for {
		et, ok := s.EntityTypes[currentID]
		if !ok {
			return false
		}
		if visited[currentID] {
			return true
		}
		visited[currentID] = true
		if et.Parent == "" {
			return false
		}
		currentID = et.Parent
	}
}

type schemaError struct{ msg string }

func (e *schemaError) Error() string { return e.msg }
