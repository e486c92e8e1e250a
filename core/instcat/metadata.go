package instcat

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// intTolerance decides whether a header value is stored as an integer:
// values within it of their truncation are integers.
const intTolerance = 1e-10

// Value is one header value, numeric with an integer/float distinction
// preserved from the source text.
type Value struct {
	Float float64
	Int   int64
	IsInt bool
}

func parseValue(s string) (Value, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Value{}, err
	}
	i := int64(f)
	if math.Abs(f-float64(i)) > intTolerance {
		return Value{Float: f}, nil
	}
	return Value{Float: f, Int: i, IsInt: true}, nil
}

// Metadata is the parsed header of a visit's top-level catalog file.
type Metadata struct {
	Params       map[string]Value
	CatalogFiles []string // includeobj targets, in order, not followed
}

// VisitID returns the obshistid header value.
func (m *Metadata) VisitID() (int64, error) {
	v, ok := m.Params["obshistid"]
	if !ok {
		return 0, fmt.Errorf("catalog header has no obshistid")
	}
	if !v.IsInt {
		return 0, fmt.Errorf("obshistid %v is not an integer", v.Float)
	}
	return v.Int, nil
}

// ReadMetadata parses the header of the top-level catalog file: comment
// lines are skipped, includeobj directives are recorded without being
// followed, and every other line is a key/value pair.
func ReadMetadata(path string) (*Metadata, error) {
	f, rd, err := openMaybeGzip(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m := &Metadata{Params: make(map[string]Value)}
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 0, 1<<16), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		if fields[0] == "includeobj" {
			m.CatalogFiles = append(m.CatalogFiles, fields[1])
			continue
		}
		v, err := parseValue(fields[1])
		if err != nil {
			return nil, fmt.Errorf("header line %q: %w", line, err)
		}
		m.Params[fields[0]] = v
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// openMaybeGzip opens path, falling back between the gzipped and plain
// names the same way Open does, and returns a transparently
// decompressed reader.
func openMaybeGzip(path string) (io.Closer, io.Reader, error) {
	candidate := path
	if _, err := os.Stat(candidate); err != nil {
		if strings.HasSuffix(path, ".gz") {
			candidate = strings.TrimSuffix(path, ".gz")
		} else {
			candidate = path + ".gz"
		}
		if _, err := os.Stat(candidate); err != nil {
			return nil, nil, fmt.Errorf("instance catalog %s does not exist", path)
		}
	}
	f, err := os.Open(candidate)
	if err != nil {
		return nil, nil, err
	}
	if strings.HasSuffix(candidate, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("instance catalog %s: %w", candidate, err)
		}
		return f, gz, nil
	}
	return f, f, nil
}
