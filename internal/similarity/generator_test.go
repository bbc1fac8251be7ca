package similarity

import (
	"reflect"
	"testing"

	"github.com/seanblong/relatedwork/internal/query"
	"github.com/seanblong/relatedwork/pkg/models"
)

func TestBuildCandidateQueries_NoSignal(t *testing.T) {
	seed := models.Item{Key: "ABC-1", Project: "ABC"}
	if got := BuildCandidateQueries(seed); len(got) != 0 {
		t.Errorf("expected no requests, got %d: %+v", len(got), got)
	}
}

func TestBuildCandidateQueries_ComponentsOnly(t *testing.T) {
	seed := models.Item{
		Key:        "ABC-1",
		Project:    "ABC",
		Components: []models.Component{{ID: "10", Name: "payments"}, {ID: "11", Name: "api"}},
	}

	got := BuildCandidateQueries(seed)
	if len(got) != 1 {
		t.Fatalf("expected exactly one request, got %d", len(got))
	}
	if got[0].Scope.Project != "ABC" {
		t.Errorf("Scope.Project = %q, want ABC", got[0].Scope.Project)
	}
	want := "(component IN [10 11] AND key NOT IN [ABC-1])"
	if s := got[0].Predicate.String(); s != want {
		t.Errorf("Predicate = %q, want %q", s, want)
	}
}

func TestBuildCandidateQueries_AllSignals(t *testing.T) {
	seed := seedItem()

	got := BuildCandidateQueries(seed)
	if len(got) != 2 {
		t.Fatalf("expected two requests, got %d", len(got))
	}

	cross := got[0]
	if !cross.Scope.AnyProject() {
		t.Errorf("first request should span any project, got %q", cross.Scope.Project)
	}
	wantCross := "((key IN [XYZ-7 ABC-0] OR epic = 5000 OR parent = ABC-0) AND key NOT IN [ABC-1])"
	if s := cross.Predicate.String(); s != wantCross {
		t.Errorf("cross predicate = %q, want %q", s, wantCross)
	}

	scoped := got[1]
	if scoped.Scope.Project != "ABC" {
		t.Errorf("second request scope = %q, want ABC", scoped.Scope.Project)
	}
	wantScoped := "((component IN [10 11] OR labels IN [backend timeout]) AND key NOT IN [ABC-1])"
	if s := scoped.Predicate.String(); s != wantScoped {
		t.Errorf("scoped predicate = %q, want %q", s, wantScoped)
	}

	for i, r := range got {
		if !reflect.DeepEqual(r.Fields, CandidateFields) {
			t.Errorf("request %d fields = %v", i, r.Fields)
		}
		if r.OrderBy != OrderByUpdated {
			t.Errorf("request %d order = %q", i, r.OrderBy)
		}
	}
}

func TestBuildCandidateQueries_LinksOnly(t *testing.T) {
	seed := models.Item{
		Key:     "ABC-1",
		Project: "ABC",
		Links: []models.Link{
			{Inward: &models.Ref{Key: "ABC-2"}},
			{Inward: &models.Ref{Key: "ABC-2"}},
			{Type: "outward only"},
		},
	}
	got := BuildCandidateQueries(seed)
	if len(got) != 1 {
		t.Fatalf("expected one request, got %d", len(got))
	}
	want := "(key IN [ABC-2] AND key NOT IN [ABC-1])"
	if s := got[0].Predicate.String(); s != want {
		t.Errorf("Predicate = %q, want %q", s, want)
	}
}

func TestBuildCandidateQueries_ExcludesSeedEverywhere(t *testing.T) {
	seed := seedItem()
	for _, r := range BuildCandidateQueries(seed) {
		if !excludes(r.Predicate, seed.Key) {
			t.Errorf("request %s does not exclude the seed", r.Predicate)
		}
	}
}

func TestBuildCandidateQueries_FieldsNotShared(t *testing.T) {
	got := BuildCandidateQueries(seedItem())
	got[0].Fields[0] = "mutated"
	if CandidateFields[0] == "mutated" || got[1].Fields[0] == "mutated" {
		t.Error("field selections must be independent copies")
	}
}

func excludes(e query.Expr, key string) bool {
	if e.Op() == query.OpLeaf && e.Comparator() == query.CmpNotIn && e.Field() == query.FieldKey {
		for _, v := range e.Values() {
			if v == key {
				return true
			}
		}
	}
	if e.Op() == query.OpAnd {
		for _, c := range e.Children() {
			if excludes(c, key) {
				return true
			}
		}
	}
	return false
}
