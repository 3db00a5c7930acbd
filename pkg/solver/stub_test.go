package solver

import (
	"strings"
	"testing"

	"github.com/talusfx/hab/pkg/errors"
	"github.com/talusfx/hab/pkg/forest"
	"github.com/talusfx/hab/pkg/pep440"
)

func TestSolverStub(t *testing.T) {
	s := newSolver(t, map[string][]string{"maya==2020.1": nil},
		[]string{"maya", "never_installed"})
	s.StubRules = map[string]*forest.StubRule{"never_installed*": {}}

	resolved, err := s.Resolve()
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	stub, err := s.FindDistro(mustGet(t, resolved, "never_installed"))
	if err != nil {
		t.Fatalf("FindDistro() error = %v", err)
	}
	if !stub.Stub || stub.FullName() != "never_installed==STUB" {
		t.Errorf("stub = %+v", stub)
	}
	if stub.Version.String() != "0+stub" {
		t.Errorf("stub version = %q", stub.Version)
	}
	if stub.Environment != nil || len(stub.Aliases) != 0 {
		t.Error("stub carries content")
	}

	// The stub is cached, later lookups reuse it even when pinned.
	again, err := s.FindDistro(pep440.MustRequirement("never_installed==1.5"))
	if err != nil || again != stub {
		t.Errorf("second lookup = %v, %v", again, err)
	}
}

func TestSolverStubLimit(t *testing.T) {
	tests := []struct {
		req  string
		want bool
	}{
		{req: "legacy_tool==2019.0", want: true},
		{req: "legacy_tool==2021.0", want: false},
		// Pin-free requirements are always allowed by a limit.
		{req: "legacy_tool", want: true},
	}
	for _, tt := range tests {
		s := newSolver(t, map[string][]string{}, nil)
		s.StubRules = map[string]*forest.StubRule{
			"legacy_*": {Limit: "<2020"},
		}
		dv, err := s.FindDistro(pep440.MustRequirement(tt.req))
		if tt.want {
			if err != nil || !dv.Stub {
				t.Errorf("FindDistro(%q) = %v, %v, want stub", tt.req, dv, err)
			}
			continue
		}
		if !errors.Is(err, errors.ErrCodeInvalidRequirement) {
			t.Errorf("FindDistro(%q) = %v, %v, want INVALID_REQUIREMENT", tt.req, dv, err)
		}
	}
}

func TestSolverStubUnset(t *testing.T) {
	site := map[string]*forest.StubRule{"legacy_*": {}}
	rules := MergeStubRules(site, &forest.StubOverrides{Unset: []string{"legacy_*"}})

	s := newSolver(t, map[string][]string{}, nil)
	s.StubRules = rules
	_, err := s.FindDistro(pep440.MustRequirement("legacy_tool"))
	if !errors.Is(err, errors.ErrCodeInvalidRequirement) {
		t.Fatalf("FindDistro() error = %v, want INVALID_REQUIREMENT", err)
	}
	if !strings.Contains(err.Error(), "Unable to find a distro for requirement") {
		t.Errorf("error = %q", err)
	}
}

func TestMergeStubRules(t *testing.T) {
	site := map[string]*forest.StubRule{
		"legacy_*": {Limit: "<2020"},
		"beta_*":   {},
	}

	merged := MergeStubRules(site, nil)
	if len(merged) != 2 || merged["legacy_*"].Limit != "<2020" {
		t.Errorf("merged = %v", merged)
	}
	// The returned map is a copy.
	merged["extra"] = &forest.StubRule{}
	if _, ok := site["extra"]; ok {
		t.Error("MergeStubRules mutated the site rules")
	}

	merged = MergeStubRules(site, &forest.StubOverrides{
		Set:   map[string]*forest.StubRule{"legacy_*": {}},
		Unset: []string{"beta_*"},
	})
	if merged["legacy_*"] == nil || merged["legacy_*"].Limit != "" {
		t.Errorf("set override not applied: %v", merged["legacy_*"])
	}
	if merged["beta_*"] != nil {
		t.Errorf("unset not applied: %v", merged["beta_*"])
	}
}

func TestSolverStubDoesNotShadowRealVersions(t *testing.T) {
	s := newSolver(t, map[string][]string{"legacy_tool==1.0": nil}, nil)
	s.StubRules = map[string]*forest.StubRule{"legacy_*": {}}

	dv, err := s.FindDistro(pep440.MustRequirement("legacy_tool"))
	if err != nil || dv.Stub {
		t.Fatalf("FindDistro() = %v, %v, want the real version", dv, err)
	}
	// A version mismatch on a real distro is still an error, the stub
	// rule only covers names with no loaded versions.
	_, err = s.FindDistro(pep440.MustRequirement("legacy_tool==2.0"))
	if !errors.Is(err, errors.ErrCodeInvalidRequirement) {
		t.Fatalf("FindDistro(pinned) error = %v", err)
	}
}
