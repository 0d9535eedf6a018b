package parser

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdfpress/filters"
	"github.com/wudi/pdfpress/ir/raw"
	"github.com/wudi/pdfpress/scanner"
	"github.com/wudi/pdfpress/xref"
)

// Config controls high-level PDF parsing (xref resolution + object loading).
type Config struct {
	Scanner scanner.Config
	Limits  filters.Limits
}

// DocumentParser builds a raw.Document using the xref table and an object
// loader, inflating object streams so every object is directly addressable.
type DocumentParser struct {
	cfg     Config
	filters *filters.Pipeline
}

func New(cfg Config) *DocumentParser {
	return &DocumentParser{cfg: cfg, filters: filters.Default(cfg.Limits)}
}

// ErrEncrypted is returned for password-protected documents, which this
// parser does not support.
var ErrEncrypted = errors.New("parser: encrypted documents are not supported")

func (p *DocumentParser) Parse(ctx context.Context, r io.ReaderAt) (*raw.Document, error) {
	resolver := xref.NewResolver()
	table, err := resolver.Resolve(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("resolve xref: %w", err)
	}
	trailer := resolver.Trailer()
	if trailer == nil {
		return nil, errors.New("parser: trailer not found")
	}
	if _, ok := trailer.Get(raw.NameLiteral("Encrypt")); ok {
		return nil, ErrEncrypted
	}

	doc := &raw.Document{
		Objects: make(map[raw.ObjectRef]raw.Object),
		Trailer: trailer,
		Version: detectHeaderVersion(r),
	}

	s := scanner.New(r, p.cfg.Scanner)
	for _, objNum := range table.Objects() {
		if objNum == 0 {
			continue // free list head
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		offset, gen, found := table.Lookup(objNum)
		if !found {
			continue
		}
		ref := raw.ObjectRef{Num: objNum, Gen: gen}
		obj, err := p.loadObject(s, ref, offset)
		if err != nil {
			return nil, fmt.Errorf("load object %d: %w", objNum, err)
		}
		doc.Objects[ref] = obj
	}

	if err := p.inflateObjectStreams(ctx, doc); err != nil {
		return nil, err
	}
	p.loadMetadata(doc)
	return doc, nil
}

// loadObject reads "<num> <gen> obj ... endobj" at the given offset. A
// dictionary followed by the stream keyword becomes a stream object.
func (p *DocumentParser) loadObject(s *scanner.Scanner, ref raw.ObjectRef, offset int64) (raw.Object, error) {
	if err := s.Seek(offset); err != nil {
		return nil, err
	}
	numTok, err := s.Next()
	if err != nil {
		return nil, err
	}
	if numTok.Type != scanner.TokenNumber || !numTok.IsInt || int(numTok.Int) != ref.Num {
		return nil, fmt.Errorf("object header mismatch at offset %d", offset)
	}
	genTok, err := s.Next()
	if err != nil {
		return nil, err
	}
	if genTok.Type != scanner.TokenNumber || !genTok.IsInt {
		return nil, fmt.Errorf("object header mismatch at offset %d", offset)
	}
	kwTok, err := s.Next()
	if err != nil {
		return nil, err
	}
	if kwTok.Type != scanner.TokenKeyword || kwTok.Str != "obj" {
		return nil, fmt.Errorf("obj keyword missing at offset %d", offset)
	}

	obj, err := xref.ParseObject(s)
	if err != nil {
		return nil, err
	}

	dict, isDict := obj.(*raw.DictObj)
	if !isDict {
		return obj, nil
	}

	// Peek for a stream payload.
	save := s.Position()
	if length, ok := dictDirectInt(dict, "Length"); ok {
		s.SetNextStreamLength(length)
	} else {
		s.SetNextStreamLength(-1)
	}
	next, err := s.Next()
	if err != nil {
		s.SetNextStreamLength(-1)
		if errors.Is(err, io.EOF) {
			return dict, nil
		}
		return nil, err
	}
	if next.Type != scanner.TokenStream {
		s.SetNextStreamLength(-1)
		if err := s.Seek(save); err != nil {
			return nil, err
		}
		return dict, nil
	}
	data := make([]byte, len(next.Bytes))
	copy(data, next.Bytes)
	return &raw.StreamObj{Dict: dict, Data: data}, nil
}

// inflateObjectStreams parses objects embedded in ObjStm streams so that
// compressed objects resolve like regular ones.
func (p *DocumentParser) inflateObjectStreams(ctx context.Context, doc *raw.Document) error {
	newObjects := make(map[raw.ObjectRef]raw.Object)
	for _, obj := range doc.Objects {
		stream, ok := obj.(raw.Stream)
		if !ok {
			continue
		}
		if typ, _ := dictName(stream.Dictionary(), "Type"); typ != "ObjStm" {
			continue
		}
		embedded, err := p.decodeObjectStream(ctx, doc, stream)
		if err != nil {
			// A broken object stream loses its objects, not the document.
			continue
		}
		for num, o := range embedded {
			key := raw.ObjectRef{Num: num, Gen: 0}
			if _, exists := doc.Objects[key]; !exists {
				newObjects[key] = o
			}
		}
	}
	for ref, obj := range newObjects {
		doc.Objects[ref] = obj
	}
	return nil
}

func (p *DocumentParser) decodeObjectStream(ctx context.Context, doc *raw.Document, stream raw.Stream) (map[int]raw.Object, error) {
	data, terminal, err := p.filters.DecodeStream(ctx, doc, stream)
	if err != nil {
		return nil, err
	}
	if terminal != "" {
		return nil, fmt.Errorf("object stream behind %s filter", terminal)
	}
	count, ok := resolvedInt(doc, stream.Dictionary(), "N")
	if !ok || count <= 0 {
		return nil, errors.New("invalid object stream count")
	}
	first, ok := resolvedInt(doc, stream.Dictionary(), "First")
	if !ok || first < 0 || first > len(data) {
		return nil, errors.New("invalid object stream First")
	}

	type entry struct {
		num int
		off int
	}
	entries := make([]entry, 0, count)
	reader := bufio.NewReader(bytes.NewReader(data[:first]))
	for i := 0; i < count; i++ {
		var objNum, offset int
		if _, err := fmt.Fscan(reader, &objNum, &offset); err != nil {
			return nil, fmt.Errorf("parse objstm header: %w", err)
		}
		entries = append(entries, entry{num: objNum, off: offset})
	}

	body := data[first:]
	objects := make(map[int]raw.Object, len(entries))
	for _, ent := range entries {
		if ent.off < 0 || ent.off > len(body) {
			continue
		}
		s := scanner.NewBytes(body, p.cfg.Scanner)
		if err := s.Seek(int64(ent.off)); err != nil {
			continue
		}
		obj, err := xref.ParseObject(s)
		if err != nil {
			return nil, fmt.Errorf("parse objstm object %d: %w", ent.num, err)
		}
		objects[ent.num] = obj
	}
	return objects, nil
}

func (p *DocumentParser) loadMetadata(doc *raw.Document) {
	infoObj, ok := doc.Trailer.Get(raw.NameLiteral("Info"))
	if !ok {
		return
	}
	info, ok := doc.Resolve(infoObj).(raw.Dictionary)
	if !ok {
		return
	}
	get := func(key string) string {
		obj, ok := info.Get(raw.NameLiteral(key))
		if !ok {
			return ""
		}
		if str, ok := doc.Resolve(obj).(raw.String); ok {
			return string(str.Value())
		}
		return ""
	}
	doc.Metadata = raw.DocumentMetadata{
		Producer: get("Producer"),
		Creator:  get("Creator"),
		Title:    get("Title"),
		Author:   get("Author"),
		Subject:  get("Subject"),
	}
}

func detectHeaderVersion(r io.ReaderAt) string {
	head := make([]byte, 16)
	n, _ := r.ReadAt(head, 0)
	head = head[:n]
	if !bytes.HasPrefix(head, []byte("%PDF-")) {
		return ""
	}
	end := 5
	for end < len(head) && (head[end] == '.' || (head[end] >= '0' && head[end] <= '9')) {
		end++
	}
	return string(head[5:end])
}

func dictDirectInt(dict raw.Dictionary, key string) (int64, bool) {
	obj, ok := dict.Get(raw.NameLiteral(key))
	if !ok {
		return 0, false
	}
	num, ok := obj.(raw.Number)
	if !ok || !num.IsInteger() {
		return 0, false
	}
	return num.Int(), true
}

func resolvedInt(doc *raw.Document, dict raw.Dictionary, key string) (int, bool) {
	obj, ok := dict.Get(raw.NameLiteral(key))
	if !ok {
		return 0, false
	}
	num, ok := doc.Resolve(obj).(raw.Number)
	if !ok {
		return 0, false
	}
	return int(num.Int()), true
}

func dictName(dict raw.Dictionary, key string) (string, bool) {
	obj, ok := dict.Get(raw.NameLiteral(key))
	if !ok {
		return "", false
	}
	name, ok := obj.(raw.Name)
	if !ok {
		return "", false
	}
	return name.Value(), true
}
