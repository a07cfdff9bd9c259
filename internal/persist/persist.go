// Package persist implements the `[NetworkTables Storage 3.0]` text file
// format: the on-disk form of every topic flagged persistent. cmd/ntserver
// loads it into a storage.Instance at startup and saves it once, at
// shutdown; a change to a persistent value is not written out on its own.
//
// Grounded on original_source/src/persistent.cpp's NT_SavePersistent /
// NT_LoadPersistent: same header line, same `<type> "<name>"=<value>`
// grammar, same escaping rules, same per-line warning callback on load.
package persist

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jabolina/networktables/internal/storage"
	"github.com/jabolina/networktables/internal/value"
)

// Header is the first line of every persistent storage file.
const Header = "[NetworkTables Storage 3.0]"

// WarnFunc receives a 1-based line number and a message for a line Load
// could not parse; a nil WarnFunc silently skips bad lines, matching the
// teacher's optional `warn` callback.
type WarnFunc func(line int, msg string)

// Save writes every topic flagged persistent to path, one line each, in
// GetTopics order. It mirrors NT_SavePersistent: only persistent-flagged
// values are written, and RPC/unassigned topics are skipped.
func Save(store *storage.Instance, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("persist: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := fmt.Fprintf(w, "%s\n", Header); err != nil {
		return err
	}
	for _, t := range store.GetTopics(nil) {
		if t.Flags&storage.FlagPersistent == 0 {
			continue
		}
		if err := writeEntry(w, t); err != nil {
			return fmt.Errorf("persist: write %q: %w", t.Name, err)
		}
	}
	return w.Flush()
}

func writeEntry(w io.Writer, t storage.TopicInfo) error {
	typeTok, ok := typeToken(t.Type)
	if !ok {
		return nil
	}
	if _, err := fmt.Fprint(w, typeTok, " "); err != nil {
		return err
	}
	writeString(w, t.Name)
	if _, err := fmt.Fprint(w, "="); err != nil {
		return err
	}
	if err := writeValue(w, t.LastValue); err != nil {
		return err
	}
	_, err := fmt.Fprint(w, "\n")
	return err
}

func typeToken(t value.Type) (string, bool) {
	switch t {
	case value.Boolean:
		return "boolean", true
	case value.Double:
		return "double", true
	case value.String:
		return "string", true
	case value.Raw:
		return "raw", true
	case value.BooleanArray:
		return "array boolean", true
	case value.DoubleArray:
		return "array double", true
	case value.StringArray:
		return "array string", true
	default:
		return "", false
	}
}

// writeString quotes and escapes s the way NT_SavePersistent's WriteString
// does: backslash, tab, newline and quote get two-character escapes;
// anything else non-printable gets a `\xHH` hex escape.
func writeString(w io.Writer, s string) {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\':
			b.WriteString(`\\`)
		case '\t':
			b.WriteString(`\t`)
		case '\n':
			b.WriteString(`\n`)
		case '"':
			b.WriteString(`\"`)
		default:
			if c >= 0x20 && c < 0x7f {
				b.WriteByte(c)
			} else {
				fmt.Fprintf(&b, `\x%02x`, c)
			}
		}
	}
	b.WriteByte('"')
	io.WriteString(w, b.String())
}

func writeValue(w io.Writer, v value.Value) error {
	switch v.Type {
	case value.Boolean:
		_, err := io.WriteString(w, strconv.FormatBool(v.Bool))
		return err
	case value.Double:
		_, err := io.WriteString(w, strconv.FormatFloat(v.F64, 'g', -1, 64))
		return err
	case value.String:
		writeString(w, v.Str)
		return nil
	case value.Raw:
		_, err := io.WriteString(w, base64.StdEncoding.EncodeToString(v.Raw))
		return err
	case value.BooleanArray:
		parts := make([]string, len(v.BoolArray))
		for i, b := range v.BoolArray {
			parts[i] = strconv.FormatBool(b)
		}
		_, err := io.WriteString(w, strings.Join(parts, ","))
		return err
	case value.DoubleArray:
		parts := make([]string, len(v.F64Array))
		for i, d := range v.F64Array {
			parts[i] = strconv.FormatFloat(d, 'g', -1, 64)
		}
		_, err := io.WriteString(w, strings.Join(parts, ","))
		return err
	case value.StringArray:
		var b strings.Builder
		for i, s := range v.StrArray {
			if i > 0 {
				b.WriteByte(',')
			}
			writeString(&b, s)
		}
		_, err := io.WriteString(w, b.String())
		return err
	default:
		return nil
	}
}
