package ontology

import "testing"

func testSchema() *Schema {
	s := New("test", "1.0")
	s.AddEntityType(EntityType{ID: "Agent", Label: "Agent"})
	s.AddEntityType(EntityType{ID: "LLMAgent", Label: "LLM Agent", Parent: "Agent"})
	s.AddEntityType(EntityType{ID: "HumanAgent", Label: "Human Agent", Parent: "Agent"})
	s.AddEntityType(EntityType{
		ID: "Task", Label: "Task",
		Properties: []PropertyDefinition{
			{Name: "name", PropertyType: PropertyType{Kind: KindString}, Required: true, Cardinality: CardinalityOne},
		},
	})
	s.AddRelationType(RelationType{ID: "executes", Label: "executes", Domain: "Agent", Range: "Task"})
	s.AddRelationType(RelationType{ID: "collaborates_with", Label: "collaborates with", Domain: "Agent", Range: "Agent", Symmetric: true})
	return s
}

func TestSubtypeClosure(t *testing.T) {
	s := testSchema()
	got := s.Subtypes("Agent")
	want := map[string]bool{"Agent": true, "LLMAgent": true, "HumanAgent": true}
	if len(got) != len(want) {
		t.Fatalf("subtypes(Agent) = %v, want 3 entries", got)
	}
	for _, id := range got {
		if !want[id] {
			t.Errorf("unexpected subtype %q", id)
		}
	}
}

func TestSupertypes(t *testing.T) {
	s := testSchema()
	got := s.Supertypes("LLMAgent")
	want := []string{"LLMAgent", "Agent"}
	if len(got) != len(want) {
		t.Fatalf("supertypes(LLMAgent) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("supertypes[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestValidateEntity_MissingRequired(t *testing.T) {
	s := testSchema()
	v := NewValidator(s)
	errs := v.ValidateEntity("Task", map[string]any{"id": "a"})
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want exactly 1: %v", len(errs), errs)
	}
	if errs[0].Kind.Error() != "property missing" {
		t.Errorf("got kind %v, want PropertyMissing", errs[0].Kind)
	}
}

func TestValidateEntity_Success(t *testing.T) {
	s := testSchema()
	v := NewValidator(s)
	errs := v.ValidateEntity("Task", map[string]any{"name": "compile"})
	if len(errs) != 0 {
		t.Fatalf("got unexpected errors: %v", errs)
	}
}

func TestValidateRelation_DomainMismatch(t *testing.T) {
	s := testSchema()
	v := NewValidator(s)
	if err := v.ValidateRelation("executes", "Task", "Agent"); err == nil {
		t.Fatal("expected error for reversed domain/range, got nil")
	}
}

func TestValidateRelation_Success(t *testing.T) {
	s := testSchema()
	v := NewValidator(s)
	if err := v.ValidateRelation("executes", "Agent", "Task"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := v.ValidateRelation("executes", "LLMAgent", "Task"); err != nil {
		t.Fatalf("subtype should satisfy domain: %v", err)
	}
}

func TestExpand_SymmetricInference(t *testing.T) {
	s := testSchema()
	r := NewReasoner(s)
	expanded, err := r.Expand("Agent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, rel := range expanded.InferredRelations {
		if rel.RelationType == "collaborates_with" && rel.Reason == ReasonSymmetric {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a Symmetric inferred record for collaborates_with, got %+v", expanded.InferredRelations)
	}
}

func TestExpand_UnknownType(t *testing.T) {
	s := testSchema()
	r := NewReasoner(s)
	if _, err := r.Expand("Nope"); err == nil {
		t.Fatal("expected error for unknown type")
	}
}

func TestTransitiveClosure(t *testing.T) {
	s := testSchema()
	s.AddRelationType(RelationType{ID: "has_subtask", Domain: "Task", Range: "Task", Transitive: true})
	r := NewReasoner(s)

	adjacency := map[string][]string{
		"task_a": {"task_b"},
		"task_b": {"task_c"},
	}
	closure := r.TransitiveClosure("has_subtask", "task_a", adjacency)
	if !closure["task_b"] || !closure["task_c"] || len(closure) != 2 {
		t.Errorf("closure = %v, want {task_b, task_c}", closure)
	}
}

func TestSchemaValidate_CircularInheritance(t *testing.T) {
	s := New("test", "1.0")
	s.AddEntityType(EntityType{ID: "A", Parent: "B"})
	s.AddEntityType(EntityType{ID: "B", Parent: "A"})
	if err := s.Validate(); err == nil {
		t.Fatal("expected circular inheritance to be rejected")
	}
}

func TestLoadSerializeRoundTrip(t *testing.T) {
	s := testSchema()
	data, err := Serialize(s, FormatYAML)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	loaded, err := Load(data, FormatYAML)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Namespace != s.Namespace || loaded.Version != s.Version {
		t.Errorf("round trip changed namespace/version")
	}
	if len(loaded.EntityTypes) != len(s.EntityTypes) {
		t.Errorf("round trip changed entity type count: got %d want %d", len(loaded.EntityTypes), len(s.EntityTypes))
	}
}
