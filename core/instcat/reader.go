// Package instcat reads, corrects and rewrites instance catalogs: the
// whitespace-delimited text files describing the objects of one visit.
package instcat

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Reader iterates over the lines of an instance catalog. Gzipped files
// are decompressed transparently, and `includeobj <path>` directives
// are followed recursively, relative to the including file's directory.
type Reader struct {
	stack []*fileFrame
}

type fileFrame struct {
	file    *os.File
	gz      *gzip.Reader
	scanner *bufio.Scanner
	dir     string
}

// Open opens an instance catalog for reading. If the path ends in .gz
// but does not exist, the uncompressed name is tried, and vice versa.
func Open(path string) (*Reader, error) {
	r := &Reader{}
	if err := r.push(path); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Reader) push(path string) error {
	candidate := path
	if _, err := os.Stat(candidate); err != nil {
		if strings.HasSuffix(path, ".gz") {
			candidate = strings.TrimSuffix(path, ".gz")
		} else {
			candidate = path + ".gz"
		}
		if _, err := os.Stat(candidate); err != nil {
			return fmt.Errorf("instance catalog %s does not exist", path)
		}
	}

	f, err := os.Open(candidate)
	if err != nil {
		return err
	}
	frame := &fileFrame{file: f, dir: filepath.Dir(candidate)}
	if strings.HasSuffix(candidate, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return fmt.Errorf("instance catalog %s: %w", candidate, err)
		}
		frame.gz = gz
		frame.scanner = bufio.NewScanner(gz)
	} else {
		frame.scanner = bufio.NewScanner(f)
	}
	frame.scanner.Buffer(make([]byte, 0, 1<<16), 1<<20)
	r.stack = append(r.stack, frame)
	return nil
}

func (r *Reader) pop() error {
	frame := r.stack[len(r.stack)-1]
	r.stack = r.stack[:len(r.stack)-1]
	if frame.gz != nil {
		frame.gz.Close()
	}
	return frame.file.Close()
}

// Next returns the next line, following includes. io.EOF marks the end
// of the catalog.
func (r *Reader) Next() (string, error) {
	for len(r.stack) > 0 {
		frame := r.stack[len(r.stack)-1]
		if !frame.scanner.Scan() {
			if err := frame.scanner.Err(); err != nil {
				return "", err
			}
			if err := r.pop(); err != nil {
				return "", err
			}
			continue
		}
		line := frame.scanner.Text()
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[0] == "includeobj" {
			if err := r.push(filepath.Join(frame.dir, fields[1])); err != nil {
				return "", err
			}
			continue
		}
		return line, nil
	}
	return "", io.EOF
}

// Close releases every open file.
func (r *Reader) Close() error {
	var first error
	for len(r.stack) > 0 {
		if err := r.pop(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
