package persist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/jabolina/networktables/internal/storage"
	"github.com/jabolina/networktables/internal/value"
)

func newStore() *storage.Instance {
	var t int64
	return storage.New(1, zerolog.Nop(), func() int64 { t++; return t })
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := newStore()

	mkPersistent := func(name string, typ value.Type, typeStr string, v value.Value) {
		h := store.GetOrCreateTopic(name)
		pub := store.Publish(h, typ, typeStr, map[string]any{"persistent": true}, storage.DefaultOptions())
		if pub == 0 {
			t.Fatalf("publish %s failed", name)
		}
		if !store.SetEntryValue(pub, v) {
			t.Fatalf("set value for %s failed", name)
		}
	}

	mkPersistent("/robot/enabled", value.Boolean, "boolean", value.MakeBoolean(true, 1))
	mkPersistent("/robot/speed", value.Double, "double", value.MakeDouble(12.5, 1))
	mkPersistent("/robot/name", value.String, "string", value.MakeString(`a "quoted" \ name`+"\t\n", 1))
	mkPersistent("/robot/flags", value.BooleanArray, "boolean[]", value.MakeBooleanArray([]bool{true, false, true}, 1))
	mkPersistent("/robot/samples", value.DoubleArray, "double[]", value.MakeDoubleArray([]float64{1, 2.5, -3}, 1))
	mkPersistent("/robot/tags", value.StringArray, "string[]", value.MakeStringArray([]string{"a", "b,c", `d"e`}, 1))
	mkPersistent("/robot/blob", value.Raw, "raw", value.MakeRaw([]byte{0, 1, 2, 255}, 1))

	// non-persistent topic should not be written
	nh := store.GetOrCreateTopic("/robot/transient")
	store.Publish(nh, value.Double, "double", nil, storage.DefaultOptions())

	dir := t.TempDir()
	path := filepath.Join(dir, "networktables.ini")
	if err := Save(store, path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data[:len(Header)]) != Header {
		t.Fatalf("missing header, got: %q", string(data))
	}
	if strContains(string(data), "/robot/transient") {
		t.Fatalf("non-persistent topic should not have been written:\n%s", data)
	}

	loaded := newStore()
	var warnings []string
	err = Load(loaded, path, func(line int, msg string) {
		warnings = append(warnings, msg)
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}

	infos := loaded.GetTopics(nil)
	byName := map[string]storage.TopicInfo{}
	for _, info := range infos {
		byName[info.Name] = info
	}

	if v := byName["/robot/enabled"].LastValue; !v.Bool {
		t.Fatalf("expected enabled=true, got %+v", v)
	}
	if v := byName["/robot/speed"].LastValue; v.F64 != 12.5 {
		t.Fatalf("expected speed=12.5, got %+v", v)
	}
	if v := byName["/robot/name"].LastValue; v.Str != `a "quoted" \ name`+"\t\n" {
		t.Fatalf("expected roundtripped name, got %q", v.Str)
	}
	if v := byName["/robot/flags"].LastValue; len(v.BoolArray) != 3 || !v.BoolArray[0] || v.BoolArray[1] || !v.BoolArray[2] {
		t.Fatalf("unexpected bool array: %+v", v)
	}
	if v := byName["/robot/samples"].LastValue; len(v.F64Array) != 3 || v.F64Array[2] != -3 {
		t.Fatalf("unexpected double array: %+v", v)
	}
	if v := byName["/robot/tags"].LastValue; len(v.StrArray) != 3 || v.StrArray[1] != "b,c" || v.StrArray[2] != `d"e` {
		t.Fatalf("unexpected string array: %+v", v)
	}
	if v := byName["/robot/blob"].LastValue; len(v.Raw) != 4 || v.Raw[3] != 255 {
		t.Fatalf("unexpected raw: %+v", v)
	}
	if _, ok := byName["/robot/transient"]; ok {
		t.Fatalf("transient topic should not have been loaded")
	}

	for _, info := range infos {
		if info.Flags&storage.FlagPersistent == 0 {
			t.Fatalf("loaded topic %s missing persistent flag", info.Name)
		}
	}
}

func TestLoadWarnsOnBadLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.ini")
	content := Header + "\nbogus \"/x\"=1\ndouble \"/ok\"=2.5\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store := newStore()
	var warnings []int
	if err := Load(store, path, func(line int, msg string) { warnings = append(warnings, line) }); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(warnings) != 1 || warnings[0] != 2 {
		t.Fatalf("expected one warning on line 2, got %v", warnings)
	}

	infos := store.GetTopics(nil)
	if len(infos) != 1 || infos[0].Name != "/ok" {
		t.Fatalf("expected only /ok to load, got %+v", infos)
	}
}

func TestLoadRejectsMissingHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "noheader.ini")
	if err := os.WriteFile(path, []byte("double \"/x\"=1\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store := newStore()
	if err := Load(store, path, nil); err == nil {
		t.Fatalf("expected error for missing header")
	}
}

func strContains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}
