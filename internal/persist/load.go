package persist

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jabolina/networktables/internal/storage"
	"github.com/jabolina/networktables/internal/value"
)

// Load reads path and seeds store with every entry, via the same
// network-inbound entry points a real announce/value would use
// (ServerAnnounce then ServerSetValue) — a file-loaded topic looks to the
// rest of storage exactly like one a peer just announced and set, with
// the `persistent` property set so it survives being unannounced later.
//
// original_source/src/persistent.cpp's NT_LoadPersistent never finished
// parsing a value (it stops after recognizing the type token), so the
// name/value/escaping grammar below is derived from NT_SavePersistent's
// WriteString and the array/raw encodings it writes, read back in reverse.
func Load(store *storage.Instance, path string, warn WarnFunc) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("persist: open %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	lineNum := 0
	if sc.Scan() {
		lineNum++
		if strings.TrimSpace(sc.Text()) != Header {
			return fmt.Errorf("persist: %s: missing %q header", path, Header)
		}
	}

	for sc.Scan() {
		lineNum++
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := loadLine(store, line, lineNum, warn); err != nil {
			if warn != nil {
				warn(lineNum, err.Error())
			}
		}
	}
	return sc.Err()
}

func loadLine(store *storage.Instance, line string, lineNum int, warn WarnFunc) error {
	typeTok, rest, ok := cutSpace(line)
	if !ok {
		return fmt.Errorf("malformed line")
	}

	var typ value.Type
	switch typeTok {
	case "boolean":
		typ = value.Boolean
	case "double":
		typ = value.Double
	case "string":
		typ = value.String
	case "raw":
		typ = value.Raw
	case "array":
		arrTok, r, ok := cutSpace(rest)
		if !ok {
			return fmt.Errorf("malformed array type")
		}
		rest = r
		switch arrTok {
		case "boolean":
			typ = value.BooleanArray
		case "double":
			typ = value.DoubleArray
		case "string":
			typ = value.StringArray
		default:
			return fmt.Errorf("unrecognized array type %q", arrTok)
		}
	default:
		return fmt.Errorf("unrecognized type %q", typeTok)
	}

	name, rest, err := readString(rest)
	if err != nil {
		return fmt.Errorf("name: %w", err)
	}
	rest = strings.TrimPrefix(rest, "=")

	v, err := parseValue(typ, rest)
	if err != nil {
		return fmt.Errorf("value for %q: %w", name, err)
	}

	typeStr := typ.TypeString()
	store.ServerAnnounce(name, 0, typeStr, map[string]any{"persistent": true})
	if !v.Empty() {
		store.ServerSetValue(name, v)
	}
	return nil
}

// cutSpace splits on the first space, like llvm::StringRef::split(' ').
func cutSpace(s string) (before, after string, ok bool) {
	i := strings.IndexByte(s, ' ')
	if i < 0 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

// readString parses a `"..."` token with NT_SavePersistent's escapes
// (\\, \t, \n, \", \xHH) and returns the remainder of the line.
func readString(s string) (string, string, error) {
	if len(s) == 0 || s[0] != '"' {
		return "", s, fmt.Errorf("expected opening quote")
	}
	var b strings.Builder
	i := 1
	for i < len(s) {
		c := s[i]
		if c == '"' {
			return b.String(), s[i+1:], nil
		}
		if c == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case '\\':
				b.WriteByte('\\')
				i += 2
				continue
			case 't':
				b.WriteByte('\t')
				i += 2
				continue
			case 'n':
				b.WriteByte('\n')
				i += 2
				continue
			case '"':
				b.WriteByte('"')
				i += 2
				continue
			case 'x':
				if i+3 < len(s) {
					if n, err := strconv.ParseUint(s[i+2:i+4], 16, 8); err == nil {
						b.WriteByte(byte(n))
						i += 4
						continue
					}
				}
			}
		}
		b.WriteByte(c)
		i++
	}
	return "", "", fmt.Errorf("unterminated string")
}

func parseValue(typ value.Type, s string) (value.Value, error) {
	switch typ {
	case value.Boolean:
		return value.MakeBoolean(s == "true", 0), nil
	case value.Double:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return value.Value{}, err
		}
		return value.MakeDouble(f, 0), nil
	case value.String:
		str, _, err := readString(s)
		if err != nil {
			return value.Value{}, err
		}
		return value.MakeString(str, 0), nil
	case value.Raw:
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return value.Value{}, err
		}
		return value.MakeRaw(raw, 0), nil
	case value.BooleanArray:
		if s == "" {
			return value.MakeBooleanArray(nil, 0), nil
		}
		parts := strings.Split(s, ",")
		out := make([]bool, len(parts))
		for i, p := range parts {
			out[i] = p == "true"
		}
		return value.MakeBooleanArray(out, 0), nil
	case value.DoubleArray:
		if s == "" {
			return value.MakeDoubleArray(nil, 0), nil
		}
		parts := strings.Split(s, ",")
		out := make([]float64, len(parts))
		for i, p := range parts {
			f, err := strconv.ParseFloat(p, 64)
			if err != nil {
				return value.Value{}, err
			}
			out[i] = f
		}
		return value.MakeDoubleArray(out, 0), nil
	case value.StringArray:
		if s == "" {
			return value.MakeStringArray(nil, 0), nil
		}
		var out []string
		rem := s
		for len(rem) > 0 {
			str, r, err := readString(rem)
			if err != nil {
				return value.Value{}, err
			}
			out = append(out, str)
			rem = strings.TrimPrefix(r, ",")
		}
		return value.MakeStringArray(out, 0), nil
	default:
		return value.Value{}, fmt.Errorf("unhandled type %v", typ)
	}
}
