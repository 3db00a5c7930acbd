package forest

import (
	"reflect"
	"testing"

	"github.com/talusfx/hab/pkg/platform"
)

func TestParseAliases(t *testing.T) {
	raw := decodeDoc(t, `{"aliases": {
		"windows": [
			["maya", "{relative_root}/maya.exe"],
			["mayapy", ["{relative_root}/mayapy.exe", "-u"]]
		],
		"linux": [
			["maya", "{relative_root}/maya"],
			["as_dict", {
				"cmd": ["python", "-c", "print('hi')"],
				"environment": {"prepend": {"ALIASED_GLOBAL_A": "Local A Prepend"}},
				"min_verbosity": {"global": 1},
				"hab.gui": "icon.png"
			}]
		]
	}}`)["aliases"]

	aliases, err := parseAliases(raw, "/distros/aliased/2.0/.hab.json")
	if err != nil {
		t.Fatalf("parseAliases() error = %v", err)
	}

	win := aliases["windows"]
	if len(win) != 2 || win[0].Name != "maya" || win[1].Name != "mayapy" {
		t.Fatalf("windows aliases = %+v", win)
	}
	if win[0].Cmd.List || !reflect.DeepEqual(win[0].Cmd.Args, []string{"{relative_root}/maya.exe"}) {
		t.Errorf("simple command = %+v", win[0].Cmd)
	}
	if !win[1].Cmd.List || len(win[1].Cmd.Args) != 2 {
		t.Errorf("argv command = %+v", win[1].Cmd)
	}

	complexAlias := aliases["linux"][1]
	if !reflect.DeepEqual(complexAlias.Cmd.Args, []string{"python", "-c", "print('hi')"}) {
		t.Errorf("Cmd = %+v", complexAlias.Cmd)
	}
	ops := complexAlias.Environment.For(platform.Linux.Name())
	if got := ops.Prepend["ALIASED_GLOBAL_A"]; len(got) != 1 || got[0] != "Local A Prepend" {
		t.Errorf("scoped environment = %v", ops.Prepend)
	}
	if complexAlias.MinVerbosity["global"] != 1 {
		t.Errorf("MinVerbosity = %v", complexAlias.MinVerbosity)
	}
	// Plugin keys ride along untouched.
	if complexAlias.Extra["hab.gui"] != "icon.png" {
		t.Errorf("Extra = %v", complexAlias.Extra)
	}
	if complexAlias.Environment == nil {
		t.Error("Environment = nil")
	}
	if aliases["linux"][0].Environment != nil {
		t.Error("simple alias grew an environment")
	}
}

func TestParseAliasesRejects(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"missing cmd", `{"linux": [["x", {"environment": {}}]]}`},
		{"bad pair", `{"linux": [["only_name"]]}`},
		{"bad platform list", `{"linux": {"x": "y"}}`},
		{"metacharacter name", `{"linux": [["rm -rf;", "x"]]}`},
	}
	for _, tt := range tests {
		if _, err := parseAliases(decodeDoc(t, tt.text), "/d/.hab.json"); err == nil {
			t.Errorf("%s: parseAliases() accepted bad input", tt.name)
		}
	}
}

func TestAliasClone(t *testing.T) {
	orig := &Alias{
		Name:         "maya",
		Cmd:          Command{Args: []string{"maya", "-batch"}, List: true},
		MinVerbosity: map[string]int{"global": 2},
		Extra:        map[string]any{"hab.gui": "icon.png"},
	}
	cp := orig.Clone()
	cp.Cmd.Args[0] = "changed"
	cp.MinVerbosity["global"] = 9
	cp.Extra["hab.gui"] = "other"

	if orig.Cmd.Args[0] != "maya" || orig.MinVerbosity["global"] != 2 || orig.Extra["hab.gui"] != "icon.png" {
		t.Errorf("Clone() shares state: %+v", orig)
	}
}
