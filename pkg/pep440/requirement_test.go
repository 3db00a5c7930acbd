package pep440

import (
	"reflect"
	"testing"
)

func TestParseRequirement(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantName   string
		wantSpecs  string
		wantMarker string
		wantErr    bool
	}{
		{
			name:     "bare name",
			input:    "aliased",
			wantName: "aliased",
		},
		{
			name:      "exact pin",
			input:     "maya2024==2024.2",
			wantName:  "maya2024",
			wantSpecs: "==2024.2",
		},
		{
			name:      "range",
			input:     "houdini19.5>=19.5.493,<20",
			wantName:  "houdini19.5",
			wantSpecs: ">=19.5.493,<20",
		},
		{
			name:      "spaced specifier",
			input:     "the_dcc_plugin_a >=1.0",
			wantName:  "the_dcc_plugin_a",
			wantSpecs: ">=1.0",
		},
		{
			name:      "parenthesized specifier",
			input:     "pre_dist (==1.0)",
			wantName:  "pre_dist",
			wantSpecs: "==1.0",
		},
		{
			name:       "with marker",
			input:      `maya2024; platform_system == "Windows"`,
			wantName:   "maya2024",
			wantMarker: `platform_system == "Windows"`,
		},
		{
			name:       "specifier and marker",
			input:      `maya2024>=2024; platform_system != "Linux"`,
			wantName:   "maya2024",
			wantSpecs:  ">=2024",
			wantMarker: `platform_system != "Linux"`,
		},
		{
			name:    "empty",
			input:   "",
			wantErr: true,
		},
		{
			name:    "bad specifier",
			input:   "maya2024=>2",
			wantErr: true,
		},
		{
			name:    "bad marker",
			input:   "maya2024; platform_system ==",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseRequirement(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRequirement(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if req.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", req.Name, tt.wantName)
			}
			if req.Specs.String() != tt.wantSpecs {
				t.Errorf("Specs = %q, want %q", req.Specs.String(), tt.wantSpecs)
			}
			gotMarker := ""
			if req.Marker != nil {
				gotMarker = req.Marker.String()
			}
			if gotMarker != tt.wantMarker {
				t.Errorf("Marker = %q, want %q", gotMarker, tt.wantMarker)
			}
		})
	}
}

func TestRequirementString(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"aliased", "aliased"},
		{"maya2024==2024.2", "maya2024==2024.2"},
		{`maya2024>=2024; platform_system != "Linux"`, `maya2024>=2024; platform_system != "Linux"`},
	}

	for _, tt := range tests {
		req := MustRequirement(tt.input)
		if got := req.String(); got != tt.expected {
			t.Errorf("String() = %q, want %q", got, tt.expected)
		}
	}
}

func TestRequirementSetAppendMerges(t *testing.T) {
	set := NewRequirementSet()
	if err := set.Append(MustRequirement("aliased>=1.0")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := set.Append(MustRequirement("other")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := set.Append(MustRequirement("aliased<3.0")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if got := set.Names(); !reflect.DeepEqual(got, []string{"aliased", "other"}) {
		t.Errorf("Names() = %v, want [aliased other]", got)
	}

	req, ok := set.Get("aliased")
	if !ok {
		t.Fatal("Get(aliased) not found")
	}
	if !req.Specs.Check(MustVersion("2.0"), false) {
		t.Error("merged specifier should accept 2.0")
	}
	if req.Specs.Check(MustVersion("3.0"), false) {
		t.Error("merged specifier should reject 3.0")
	}
	if req.Specs.Check(MustVersion("0.5"), false) {
		t.Error("merged specifier should reject 0.5")
	}
}

func TestRequirementSetAppendCopies(t *testing.T) {
	src := MustRequirement("aliased>=1.0")
	set := NewRequirementSet()
	if err := set.Append(src); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := set.Append(MustRequirement("aliased<2.0")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	// The caller's requirement must not pick up merged specifiers.
	if src.Specs.String() != ">=1.0" {
		t.Errorf("source requirement mutated: %q", src.Specs.String())
	}
}

func TestParseRequirements(t *testing.T) {
	set, err := ParseRequirements([]string{"maya2024", "the_dcc_plugin_a>=1.0", "maya2024>=2024.1"})
	if err != nil {
		t.Fatalf("ParseRequirements() error = %v", err)
	}
	if set.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", set.Len())
	}
	if got := set.Strings(); !reflect.DeepEqual(got, []string{"maya2024>=2024.1", "the_dcc_plugin_a>=1.0"}) {
		t.Errorf("Strings() = %v", got)
	}
}

func TestRequirementSetClone(t *testing.T) {
	set := NewRequirementSet()
	if err := set.Append(MustRequirement("aliased>=1.0")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	dup := set.Clone()
	if err := dup.Append(MustRequirement("aliased<2.0")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	orig, _ := set.Get("aliased")
	if orig.Specs.String() != ">=1.0" {
		t.Errorf("clone mutated original: %q", orig.Specs.String())
	}
}
