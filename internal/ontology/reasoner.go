package ontology

import (
	"fmt"

	"github.com/tracegraph/tracegraph/internal/tracerr"
)

// InferenceReason names why a relation was inferred during expansion.
type InferenceReason string

const (
	ReasonSubtypeInheritance InferenceReason = "SubtypeInheritance"
	ReasonSymmetric          InferenceReason = "Symmetric"
	ReasonInverse            InferenceReason = "Inverse"
)

// InferredRelation is a relation edge the reasoner derived rather than one
// found directly in the schema.
type InferredRelation struct {
	RelationType string
	SourceType   string
	TargetType   string
	Reason       InferenceReason
}

// ExpandedQuery is the result of expanding a single entity type: its full
// subtype closure plus the relations inferable from it.
type ExpandedQuery struct {
	OriginalType      string
	ExpandedTypes     []string
	InferredRelations []InferredRelation
}

// Reasoner performs ontology-aware query expansion: subtype closure and
// modifier-driven relation inference.
type Reasoner struct {
	schema *Schema
}

// NewReasoner returns a Reasoner bound to schema.
func NewReasoner(schema *Schema) *Reasoner {
	return &Reasoner{schema: schema}
}

// Schema returns the reasoner's bound schema.
func (r *Reasoner) Schema() *Schema { return r.schema }

// UpdateSchema atomically swaps the reasoner's schema after validating it.
func (r *Reasoner) UpdateSchema(schema *Schema) error {
	if err := schema.Validate(); err != nil {
		return tracerr.Wrap("ontology: update schema", tracerr.SchemaInvalid, err)
	}
	r.schema = schema
	return nil
}

// Expand returns entityType's subtype closure and inferred relations.
func (r *Reasoner) Expand(entityType string) (*ExpandedQuery, error) {
	if _, ok := r.schema.EntityTypes[entityType]; !ok {
		return nil, tracerr.Wrap("ontology: expand", tracerr.EntityTypeUnknown, fmt.Errorf("entity type %q not found", entityType))
	}
	return &ExpandedQuery{
		OriginalType:      entityType,
		ExpandedTypes:     r.schema.Subtypes(entityType),
		InferredRelations: r.InferRelations(entityType),
	}, nil
}

// InferRelations returns, for every relation whose domain covers entityType,
// the direct edge plus (when applicable) its symmetric reversal and its
// declared inverse.
func (r *Reasoner) InferRelations(entityType string) []InferredRelation {
	var inferred []InferredRelation
	for id, rt := range r.schema.RelationTypes {
		if !r.isTypeCompatible(entityType, rt.Domain) {
			continue
		}
		inferred = append(inferred, InferredRelation{
			RelationType: id,
			SourceType:   entityType,
			TargetType:   rt.Range,
			Reason:       ReasonSubtypeInheritance,
		})
		if rt.Symmetric {
			inferred = append(inferred, InferredRelation{
				RelationType: id,
				SourceType:   rt.Range,
				TargetType:   entityType,
				Reason:       ReasonSymmetric,
			})
		}
		if rt.Inverse != "" {
			inferred = append(inferred, InferredRelation{
				RelationType: rt.Inverse,
				SourceType:   rt.Range,
				TargetType:   entityType,
				Reason:       ReasonInverse,
			})
		}
	}
	return inferred
}

// TransitiveClosure computes, over the supplied adjacency, the set of nodes
// reachable from start via relationType. If relationType is not marked
// transitive, only the direct neighbors are returned.
func (r *Reasoner) TransitiveClosure(relationType, start string, adjacency map[string][]string) map[string]bool {
	closure := make(map[string]bool)
	rt, ok := r.schema.RelationTypes[relationType]
	if !ok || !rt.Transitive {
		for _, n := range adjacency[start] {
			closure[n] = true
		}
		return closure
	}

	visited := make(map[string]bool)
	toVisit := []string{start}
	for len(toVisit) > 0 {
		current := toVisit[len(toVisit)-1]
		toVisit = toVisit[:len(toVisit)-1]
		if visited[current] {
			continue
		}
		visited[current] = true
		for _, target := range adjacency[current] {
			closure[target] = true
			toVisit = append(toVisit, target)
		}
	}
	return closure
}

// CompatibleRelations returns every relation type id that can connect
// sourceType to targetType (both subtype-compatible with domain/range).
func (r *Reasoner) CompatibleRelations(sourceType, targetType string) []string {
	var compatible []string
	for id, rt := range r.schema.RelationTypes {
		if r.isTypeCompatible(sourceType, rt.Domain) && r.isTypeCompatible(targetType, rt.Range) {
			compatible = append(compatible, id)
		}
	}
	return compatible
}

func (r *Reasoner) isTypeCompatible(actualType, expectedType string) bool {
	if actualType == expectedType {
		return true
	}
	return r.schema.IsSubtypeOf(actualType, expectedType)
}
