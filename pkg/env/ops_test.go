package env

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/talusfx/hab/pkg/errors"
)

func TestValueUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    Value
		wantErr bool
	}{
		{"single string", `"a"`, Value{"a"}, false},
		{"list", `["a", "b"]`, Value{"a", "b"}, false},
		{"empty list", `[]`, Value{}, false},
		{"number", `5`, nil, true},
		{"object", `{"a": 1}`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v Value
			err := json.Unmarshal([]byte(tt.data), &v)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal(%s) error = %v, wantErr %v", tt.data, err, tt.wantErr)
			}
			if err == nil && !reflect.DeepEqual(v, tt.want) {
				t.Errorf("Unmarshal(%s) = %v, want %v", tt.data, v, tt.want)
			}
		})
	}
}

func TestParseBlock(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr bool
	}{
		{"plain ops", `{"set": {"A": "1"}, "append": {"B": ["x", "y"]}}`, false},
		{"unset list", `{"unset": ["A", "B"]}`, false},
		{"os specific", `{"os_specific": true, "windows": {"set": {"A": "1"}}, "*": {"set": {"B": "2"}}}`, false},
		{"os specific false", `{"os_specific": false, "set": {"A": "1"}}`, false},
		{"empty", `{}`, false},
		{"unknown operation", `{"replace": {"A": "1"}}`, true},
		{"unknown platform", `{"os_specific": true, "amiga": {"set": {"A": "1"}}}`, true},
		{"bad os_specific", `{"os_specific": "yes"}`, true},
		{"not an object", `["set"]`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBlock([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseBlock(%s) error = %v, wantErr %v", tt.data, err, tt.wantErr)
			}
		})
	}
}

func TestBlockFor(t *testing.T) {
	data := `{
		"os_specific": true,
		"*": {"set": {"SHARED": "all", "BOTH": "wild"}, "unset": ["OLD"]},
		"windows": {"set": {"BOTH": "win"}, "append": {"PATH": "C:\\bin"}},
		"linux": {"append": {"PATH": "/usr/bin"}}
	}`
	block, err := ParseBlock([]byte(data))
	if err != nil {
		t.Fatalf("ParseBlock() error = %v", err)
	}

	win := block.For("windows")
	if got := win.Set["SHARED"]; !reflect.DeepEqual(got, Value{"all"}) {
		t.Errorf("windows SHARED = %v, want [all]", got)
	}
	if got := win.Set["BOTH"]; !reflect.DeepEqual(got, Value{"win"}) {
		t.Errorf("windows BOTH = %v, want [win]", got)
	}
	if got := win.Append["PATH"]; !reflect.DeepEqual(got, Value{`C:\bin`}) {
		t.Errorf("windows PATH append = %v", got)
	}
	if !reflect.DeepEqual(win.Unset, []string{"OLD"}) {
		t.Errorf("windows Unset = %v, want [OLD]", win.Unset)
	}

	linux := block.For("linux")
	if got := linux.Set["BOTH"]; !reflect.DeepEqual(got, Value{"wild"}) {
		t.Errorf("linux BOTH = %v, want [wild]", got)
	}
	if got := linux.Append["PATH"]; !reflect.DeepEqual(got, Value{"/usr/bin"}) {
		t.Errorf("linux PATH append = %v", got)
	}

	osx := block.For("osx")
	if got := osx.Keys(); !reflect.DeepEqual(got, []string{"BOTH", "OLD", "SHARED"}) {
		t.Errorf("osx keys = %v, want wildcard only", got)
	}
}

func TestBlockForPlain(t *testing.T) {
	block, err := ParseBlock([]byte(`{"set": {"A": "1"}}`))
	if err != nil {
		t.Fatalf("ParseBlock() error = %v", err)
	}
	for _, name := range []string{"windows", "linux", "osx"} {
		ops := block.For(name)
		if got := ops.Set["A"]; !reflect.DeepEqual(got, Value{"1"}) {
			t.Errorf("For(%q) A = %v, want [1]", name, got)
		}
	}
}

func TestOperationsValidate(t *testing.T) {
	tests := []struct {
		name     string
		ops      *Operations
		wantErr  bool
		wantCode errors.Code
	}{
		{"nil ops", nil, false, ""},
		{"plain set", &Operations{Set: map[string]Value{"A": {"1"}}}, false, ""},
		{"append path ok", &Operations{Append: map[string]Value{"PATH": {"/bin"}}}, false, ""},
		{"prepend path ok", &Operations{Prepend: map[string]Value{"PATH": {"/bin"}}}, false, ""},
		{"set path", &Operations{Set: map[string]Value{"PATH": {"/bin"}}}, true, errors.ErrCodeReservedEnvVar},
		{"set path mixed case", &Operations{Set: map[string]Value{"Path": {"/bin"}}}, true, errors.ErrCodeReservedEnvVar},
		{"unset path", &Operations{Unset: []string{"PATH"}}, true, errors.ErrCodeReservedEnvVar},
		{"set hab uri", &Operations{Set: map[string]Value{"HAB_URI": {"x"}}}, true, errors.ErrCodeReservedEnvVar},
		{"unset hab freeze", &Operations{Unset: []string{"HAB_FREEZE"}}, true, errors.ErrCodeReservedEnvVar},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ops.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && errors.GetCode(err) != tt.wantCode {
				t.Errorf("Validate() code = %v, want %v", errors.GetCode(err), tt.wantCode)
			}
		})
	}
}

func TestOperationsValidateMessages(t *testing.T) {
	err := (&Operations{Unset: []string{"PATH"}}).Validate()
	if err == nil || errors.UserMessage(err) != "You can not unset PATH" {
		t.Errorf("unset PATH message = %v", err)
	}

	err = (&Operations{Set: map[string]Value{"HAB_URI": {"x"}}}).Validate()
	if err == nil || errors.UserMessage(err) != `"HAB_URI" is a reserved environment variable` {
		t.Errorf("set HAB_URI message = %v", err)
	}
}

func TestOperationsKeys(t *testing.T) {
	ops := &Operations{
		Unset:   []string{"Z"},
		Set:     map[string]Value{"B": {"1"}},
		Prepend: map[string]Value{"A": {"2"}},
		Append:  map[string]Value{"B": {"3"}},
	}
	want := []string{"A", "B", "Z"}
	if got := ops.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}
}

func TestOperationsClone(t *testing.T) {
	ops := &Operations{Set: map[string]Value{"A": {"1"}}, Unset: []string{"B"}}
	clone := ops.Clone()
	clone.Set["A"] = Value{"changed"}
	clone.Unset[0] = "changed"

	if ops.Set["A"][0] != "1" || ops.Unset[0] != "B" {
		t.Error("Clone() shares state with the original")
	}
}
