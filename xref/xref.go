package xref

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/wudi/pdfpress/ir/raw"
	"github.com/wudi/pdfpress/scanner"
)

// Table holds object offsets for a cross-reference table.
type Table interface {
	Lookup(objNum int) (offset int64, gen int, found bool)
	Objects() []int
}

type entry struct {
	offset int64
	gen    int
}

type table struct {
	entries map[int]entry
}

func (t *table) Lookup(objNum int) (int64, int, bool) {
	e, ok := t.entries[objNum]
	if !ok {
		return 0, 0, false
	}
	return e.offset, e.gen, true
}

func (t *table) Objects() []int {
	out := make([]int, 0, len(t.entries))
	for k := range t.entries {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

const maxPrevDepth = 64

// Resolver locates and parses xref information in a PDF. When the classic
// table cannot be parsed it falls back to a full-file repair scan.
type Resolver struct {
	trailer raw.Dictionary
}

func NewResolver() *Resolver { return &Resolver{} }

// Trailer returns the trailer dictionary discovered during Resolve.
func (t *Resolver) Trailer() raw.Dictionary { return t.trailer }

func (t *Resolver) Resolve(ctx context.Context, r io.ReaderAt) (Table, error) {
	data := readAll(r)
	if len(data) == 0 {
		return nil, errors.New("xref: empty input")
	}

	tab, trailer, err := t.resolveClassic(data)
	if err == nil && trailer != nil {
		t.trailer = trailer
		return tab, nil
	}

	tab, trailer, rerr := repair(ctx, data)
	if rerr != nil {
		if err == nil {
			err = rerr
		}
		return nil, fmt.Errorf("xref: %w", err)
	}
	t.trailer = trailer
	return tab, nil
}

func (t *Resolver) resolveClassic(data []byte) (Table, raw.Dictionary, error) {
	offset, err := startxrefOffset(data)
	if err != nil {
		return nil, nil, err
	}

	entries := make(map[int]entry)
	var trailer raw.Dictionary
	seen := make(map[int64]bool)

	for depth := 0; depth < maxPrevDepth; depth++ {
		if offset <= 0 || offset >= int64(len(data)) {
			return nil, nil, fmt.Errorf("xref offset out of range: %d", offset)
		}
		if seen[offset] {
			break
		}
		seen[offset] = true

		section, err := parseSection(data, offset)
		if err != nil {
			return nil, nil, err
		}
		// Later revisions are parsed first; their entries win.
		for num, e := range section.entries {
			if _, ok := entries[num]; !ok {
				entries[num] = e
			}
		}
		if trailer == nil {
			trailer = section.trailer
		}
		prev, ok := dictInt(section.trailer, "Prev")
		if !ok {
			break
		}
		offset = prev
	}

	if len(entries) == 0 {
		return nil, nil, errors.New("empty xref table")
	}
	return &table{entries: entries}, trailer, nil
}

func startxrefOffset(data []byte) (int64, error) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, errors.New("startxref not found")
	}
	rest := data[idx+len("startxref"):]
	lines := bufio.NewScanner(bytes.NewReader(rest))
	for lines.Scan() {
		text := strings.TrimSpace(lines.Text())
		if text == "" {
			continue
		}
		val, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse startxref: %w", err)
		}
		return val, nil
	}
	return 0, errors.New("startxref value missing")
}

type section struct {
	entries map[int]entry
	trailer raw.Dictionary
}

func parseSection(data []byte, offset int64) (*section, error) {
	tableData := data[offset:]
	sc := bufio.NewScanner(bytes.NewReader(tableData))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	if !sc.Scan() || strings.TrimSpace(sc.Text()) != "xref" {
		return nil, errors.New("xref keyword not found at offset")
	}

	out := &section{entries: make(map[int]entry)}
	consumed := int64(len("xref")) + 1
	for sc.Scan() {
		line := sc.Text()
		consumed += int64(len(line)) + 1
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "trailer") {
			trailer, err := parseTrailer(data, offset+consumed)
			if err != nil {
				return nil, err
			}
			out.trailer = trailer
			return out, nil
		}
		parts := strings.Fields(trimmed)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid xref subsection header: %q", trimmed)
		}
		startObj, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("parse xref start: %w", err)
		}
		count, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("parse xref count: %w", err)
		}
		for i := 0; i < count; i++ {
			if !sc.Scan() {
				return nil, errors.New("unexpected end of xref section")
			}
			entryLine := sc.Text()
			consumed += int64(len(entryLine)) + 1
			fields := strings.Fields(strings.TrimSpace(entryLine))
			if len(fields) < 3 {
				return nil, fmt.Errorf("invalid xref entry: %q", entryLine)
			}
			off, err := strconv.ParseInt(fields[0], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parse xref offset: %w", err)
			}
			gen, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, fmt.Errorf("parse xref gen: %w", err)
			}
			if len(fields[2]) == 0 || fields[2][0] != 'n' {
				continue // free entry
			}
			out.entries[startObj+i] = entry{offset: off, gen: gen}
		}
	}
	return nil, errors.New("trailer not found after xref table")
}

func parseTrailer(data []byte, approx int64) (raw.Dictionary, error) {
	// The line scanner consumes past the trailer keyword; rescan from the
	// keyword itself so token offsets line up.
	window := approx - int64(len("trailer")) - 2
	if window < 0 {
		window = 0
	}
	idx := bytes.Index(data[window:], []byte("trailer"))
	if idx < 0 {
		return nil, errors.New("trailer keyword not found")
	}
	s := scanner.NewBytes(data, scanner.Config{})
	if err := s.Seek(window + int64(idx) + int64(len("trailer"))); err != nil {
		return nil, err
	}
	obj, err := ParseObject(s)
	if err != nil {
		return nil, fmt.Errorf("parse trailer: %w", err)
	}
	dict, ok := obj.(*raw.DictObj)
	if !ok {
		return nil, errors.New("trailer is not a dictionary")
	}
	return dict, nil
}

func dictInt(dict raw.Dictionary, key string) (int64, bool) {
	if dict == nil {
		return 0, false
	}
	obj, ok := dict.Get(raw.NameLiteral(key))
	if !ok {
		return 0, false
	}
	num, ok := obj.(raw.Number)
	if !ok {
		return 0, false
	}
	return num.Int(), true
}

func readAll(r io.ReaderAt) []byte {
	var buf bytes.Buffer
	const chunk = int64(64 * 1024)
	tmp := make([]byte, chunk)
	for off := int64(0); ; off += chunk {
		n, err := r.ReadAt(tmp, off)
		if n > 0 {
			buf.Write(tmp[:n])
		}
		if err != nil || int64(n) < chunk {
			break
		}
	}
	return buf.Bytes()
}
