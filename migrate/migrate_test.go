package migrate

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/satchelkv/satchel"
	"github.com/satchelkv/satchel/internal/codec"
)

// recordingDest captures the single BulkPut batch a migration emits.
type recordingDest struct {
	items         map[string][]byte
	skipIfPresent bool
	calls         int
}

func (d *recordingDest) BulkPut(items map[string][]byte, skipIfPresent bool) ([]string, error) {
	d.calls++
	d.items = items
	d.skipIfPresent = skipIfPresent
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	return keys, nil
}

func decodeValue(t *testing.T, blob []byte) codec.Value {
	t.Helper()
	v, err := codec.DecodeValue(blob)
	if err != nil {
		t.Fatalf("DecodeValue() failed: %v", err)
	}
	return v
}

func TestRun_MapsVariants(t *testing.T) {
	src := MapSource{
		"name":   "kim",
		"count":  42,
		"ratio":  0.5,
		"tags":   []any{"a", "b"},
		"limits": map[string]any{"low": 1, "high": 9},
	}
	dst := &recordingDest{}
	plan := &Plan{Keys: []string{"name", "count", "ratio", "tags", "limits"}}

	res, err := Run(dst, src, plan, nil)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if dst.calls != 1 {
		t.Fatalf("BulkPut called %d times, want exactly 1", dst.calls)
	}
	if res.Applied != 5 || len(res.Skipped) != 0 {
		t.Fatalf("Run() = applied %d skipped %v, want 5 and none", res.Applied, res.Skipped)
	}

	if v := decodeValue(t, dst.items["name"]); v.Kind != codec.KindString || v.Str != "kim" {
		t.Errorf("name = %+v, want string kim", v)
	}
	if v := decodeValue(t, dst.items["count"]); v.Kind != codec.KindInt || v.Int != 42 {
		t.Errorf("count = %+v, want int 42", v)
	}
	if v := decodeValue(t, dst.items["tags"]); v.Kind != codec.KindArray || len(v.Array) != 2 {
		t.Errorf("tags = %+v, want array of 2", v)
	}
	if v := decodeValue(t, dst.items["limits"]); v.Kind != codec.KindMap || v.Map["high"].Int != 9 {
		t.Errorf("limits = %+v, want map with high=9", v)
	}
}

// TestRun_HeterogeneousArraySkipped verifies a bad value skips only its
// own key and never aborts the rest of the migration.
func TestRun_HeterogeneousArraySkipped(t *testing.T) {
	src := MapSource{
		"bad":  []any{1, "two", 3.0},
		"good": "fine",
	}
	dst := &recordingDest{}

	res, err := Run(dst, src, &Plan{Keys: []string{"bad", "good"}}, nil)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if res.Applied != 1 {
		t.Errorf("applied = %d, want 1", res.Applied)
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != "bad" {
		t.Errorf("skipped = %v, want [bad]", res.Skipped)
	}
	if _, present := dst.items["bad"]; present {
		t.Error("heterogeneous array reached the destination")
	}
}

func TestRun_MissingKeySkipped(t *testing.T) {
	dst := &recordingDest{}
	res, err := Run(dst, MapSource{"present": 1}, &Plan{Keys: []string{"present", "absent"}}, nil)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if res.Applied != 1 || len(res.Skipped) != 1 || res.Skipped[0] != "absent" {
		t.Errorf("Run() = applied %d skipped %v, want 1 and [absent]", res.Applied, res.Skipped)
	}
}

func TestRun_BooleanCoercion(t *testing.T) {
	src := MapSource{
		"flag_int":    1,
		"flag_bool":   false,
		"flag_string": "true",
		"flag_weird":  []any{1},
	}
	dst := &recordingDest{}
	plan := &Plan{BooleanKeys: []string{"flag_int", "flag_bool", "flag_string", "flag_weird"}}

	res, err := Run(dst, src, plan, nil)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if res.Applied != 3 || len(res.Skipped) != 1 {
		t.Fatalf("Run() = applied %d skipped %v, want 3 and [flag_weird]", res.Applied, res.Skipped)
	}
	if v := decodeValue(t, dst.items["flag_int"]); v.Kind != codec.KindBool || !v.Bool {
		t.Errorf("flag_int = %+v, want bool true", v)
	}
	if v := decodeValue(t, dst.items["flag_bool"]); v.Kind != codec.KindBool || v.Bool {
		t.Errorf("flag_bool = %+v, want bool false", v)
	}
}

func TestRun_OverwriteControlsSkipIfPresent(t *testing.T) {
	dst := &recordingDest{}
	if _, err := Run(dst, MapSource{"k": 1}, &Plan{Keys: []string{"k"}}, nil); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if !dst.skipIfPresent {
		t.Error("default plan must not overwrite existing destination keys")
	}

	if _, err := Run(dst, MapSource{"k": 1}, &Plan{Keys: []string{"k"}, Overwrite: true}, nil); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if dst.skipIfPresent {
		t.Error("overwrite plan must replace existing destination keys")
	}
}

func TestRun_SourceErrorAborts(t *testing.T) {
	dst := &recordingDest{}
	src := failingSource{err: errors.New("io trouble")}
	if _, err := Run(dst, src, &Plan{Keys: []string{"k"}}, nil); err == nil {
		t.Error("Run() succeeded despite a source read failure")
	}
	if dst.calls != 0 {
		t.Error("batch was applied despite a source read failure")
	}
}

type failingSource struct{ err error }

func (s failingSource) Lookup(string) (any, bool, error) { return nil, false, s.err }

// TestRun_IntoEngine migrates end to end into a real store.
func TestRun_IntoEngine(t *testing.T) {
	e, err := satchel.Open(t.TempDir(), "migrated", nil)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer e.Close()

	src := MapSource{"greeting": "hello", "bad": []any{1, "two"}}
	res, err := Run(e, src, &Plan{Keys: []string{"greeting", "bad"}}, nil)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if res.Applied != 1 {
		t.Errorf("applied = %d, want 1", res.Applied)
	}
	if e.Get("bad") != nil {
		t.Error("rejected key reached the store")
	}
	v := decodeValue(t, e.Get("greeting"))
	if v.Kind != codec.KindString || v.Str != "hello" {
		t.Errorf("greeting = %+v, want string hello", v)
	}
}

func TestLoadPlan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.toml")
	content := `
keys = ["theme", "recent_files"]
boolean_keys = ["onboarding_done"]
overwrite = true
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	plan, err := LoadPlan(path)
	if err != nil {
		t.Fatalf("LoadPlan() failed: %v", err)
	}
	if len(plan.Keys) != 2 || plan.Keys[0] != "theme" {
		t.Errorf("Keys = %v", plan.Keys)
	}
	if len(plan.BooleanKeys) != 1 || !plan.Overwrite {
		t.Errorf("BooleanKeys = %v, Overwrite = %v", plan.BooleanKeys, plan.Overwrite)
	}
}

func TestLoadPlan_EmptyRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.toml")
	if err := os.WriteFile(path, []byte("overwrite = false\n"), 0600); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	if _, err := LoadPlan(path); err == nil {
		t.Error("LoadPlan() accepted a plan with no keys")
	}
}

func TestOpenYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.yaml")
	content := `
theme: dark
font_size: 14
recent:
  - a.txt
  - b.txt
mixed: [1, "two", 3.0]
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	src, err := OpenYAML(path)
	if err != nil {
		t.Fatalf("OpenYAML() failed: %v", err)
	}

	dst := &recordingDest{}
	res, err := Run(dst, src, &Plan{Keys: []string{"theme", "font_size", "recent", "mixed", "nope"}}, nil)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if res.Applied != 3 {
		t.Errorf("applied = %d, want 3", res.Applied)
	}
	if len(res.Skipped) != 2 {
		t.Errorf("skipped = %v, want [mixed nope]", res.Skipped)
	}
	if v := decodeValue(t, dst.items["font_size"]); v.Kind != codec.KindInt || v.Int != 14 {
		t.Errorf("font_size = %+v, want int 14", v)
	}
}
