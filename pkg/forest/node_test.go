package forest

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/talusfx/hab/pkg/errors"
	"github.com/talusfx/hab/pkg/platform"
)

func decodeDoc(t *testing.T, text string) map[string]any {
	t.Helper()
	var data map[string]any
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		t.Fatalf("bad fixture: %v", err)
	}
	return data
}

func TestParseNode(t *testing.T) {
	data := decodeDoc(t, `{
		"name": "projectDummy",
		"distros": ["maya2020", "houdini19.5>=19.5.493"],
		"environment": {"set": {"STUDIO": "dummy"}},
		"variables": {"config_root": "/shared/config"},
		"min_verbosity": {"global": 1, "hab-gui": 2},
		"optional_distros": {
			"the_dcc_plugin_b": ["Optional plugin"],
			"the_dcc_plugin_a": ["Enabled by default", true]
		},
		"stub_distros": {"set": {"maya*": {"limit": "<2021"}}, "unset": ["houdini*"]},
		"colour": "teal"
	}`)

	n := &Node{}
	if err := n.parseNode(data, "/cfg/projectDummy.json"); err != nil {
		t.Fatalf("parseNode() error = %v", err)
	}
	if n.Name != "projectDummy" {
		t.Errorf("Name = %q", n.Name)
	}
	if n.Err != nil {
		t.Errorf("Err = %v", n.Err)
	}
	if got := n.Distros.Names(); !reflect.DeepEqual(got, []string{"maya2020", "houdini19.5"}) {
		t.Errorf("Distros.Names() = %v", got)
	}
	ops := n.Environment.For(platform.Linux.Name())
	if got := ops.Set["STUDIO"]; len(got) != 1 || got[0] != "dummy" {
		t.Errorf("environment set STUDIO = %v", got)
	}
	if n.Variables["config_root"] != "/shared/config" {
		t.Errorf("Variables = %v", n.Variables)
	}
	if n.MinVerbosity["global"] != 1 || n.MinVerbosity["hab-gui"] != 2 {
		t.Errorf("MinVerbosity = %v", n.MinVerbosity)
	}
	// Optional distros are sorted by requirement for stable prompts.
	if len(n.Optional) != 2 || n.Optional[0].Requirement != "the_dcc_plugin_a" || !n.Optional[0].Default {
		t.Errorf("Optional = %+v", n.Optional)
	}
	if n.Optional[1].Description != "Optional plugin" || n.Optional[1].Default {
		t.Errorf("Optional[1] = %+v", n.Optional[1])
	}
	if rule := n.Stubs.Set["maya*"]; rule == nil || rule.Limit != "<2021" {
		t.Errorf("Stubs.Set = %v", n.Stubs.Set)
	}
	if len(n.Stubs.Unset) != 1 || n.Stubs.Unset[0] != "houdini*" {
		t.Errorf("Stubs.Unset = %v", n.Stubs.Unset)
	}
	// Plugin keys stay reachable through the raw document.
	if n.Raw["colour"] != "teal" {
		t.Errorf("Raw plugin key lost: %v", n.Raw["colour"])
	}
}

func TestParseNodeMissingName(t *testing.T) {
	n := &Node{}
	err := n.parseNode(decodeDoc(t, `{"distros": []}`), "/cfg/broken.json")
	if !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Fatalf("parseNode() error = %v, want INVALID_INPUT", err)
	}
}

func TestParseNodeBadRequirementKeepsNode(t *testing.T) {
	data := decodeDoc(t, `{"name": "broken", "distros": ["not a=requirement!!"]}`)
	n := &Node{}
	if err := n.parseNode(data, "/cfg/broken.json"); err != nil {
		t.Fatalf("parseNode() error = %v", err)
	}
	if n.Err == nil {
		t.Fatal("Err = nil, want recorded requirement defect")
	}
	if n.Distros.Len() != 0 {
		t.Errorf("Distros.Len() = %d, want 0", n.Distros.Len())
	}
}

func TestParseNodeReservedVariable(t *testing.T) {
	data := decodeDoc(t, `{"name": "bad", "variables": {"relative_root": "/x"}}`)
	n := &Node{}
	err := n.parseNode(data, "/cfg/bad.json")
	if !errors.Is(err, errors.ErrCodeReservedVariable) {
		t.Fatalf("parseNode() error = %v, want RESERVED_VARIABLE", err)
	}
}

func TestParseStubRules(t *testing.T) {
	rules, err := ParseStubRules(map[string]any{
		"maya*":    map[string]any{},
		"houdini*": map[string]any{"limit": ">=19,<20"},
		"nuke":     nil,
	})
	if err != nil {
		t.Fatalf("ParseStubRules() error = %v", err)
	}
	if rules["maya*"] == nil || rules["maya*"].Limit != "" {
		t.Errorf("maya* rule = %+v", rules["maya*"])
	}
	if rules["houdini*"].Limit != ">=19,<20" {
		t.Errorf("houdini* rule = %+v", rules["houdini*"])
	}
	if rule, ok := rules["nuke"]; !ok || rule != nil {
		t.Errorf("nuke rule = %v, %v, want explicit nil", rule, ok)
	}

	if _, err := ParseStubRules(map[string]any{"bad": map[string]any{"limit": "not-a-spec>><"}}); err == nil {
		t.Error("ParseStubRules() accepted a malformed limit")
	}
}

func TestURIHelpers(t *testing.T) {
	if got := JoinURI("project_a", "Sc001", "Animation"); got != "project_a/Sc001/Animation" {
		t.Errorf("JoinURI() = %q", got)
	}
	if got := SplitURI("/project_a//Sc001/"); !reflect.DeepEqual(got, []string{"project_a", "Sc001"}) {
		t.Errorf("SplitURI() = %v", got)
	}
	if got := ParentURI("project_a/Sc001"); got != "project_a" {
		t.Errorf("ParentURI() = %q", got)
	}
	if got := ParentURI("project_a"); got != "" {
		t.Errorf("ParentURI(root) = %q", got)
	}
}
