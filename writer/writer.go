// Package writer serializes a raw document back into PDF bytes with a
// classic cross-reference table.
package writer

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"sort"

	"github.com/wudi/pdfpress/ir/raw"
)

// Config controls serialization behavior.
type Config struct {
	// Compress flate-encodes streams that carry no filter yet. Streams with
	// an existing Filter entry pass through untouched.
	Compress bool
}

// Writer serializes raw documents.
type Writer struct {
	cfg Config
}

func New(cfg Config) *Writer { return &Writer{cfg: cfg} }

// Write emits the full document: header, body, xref table, and trailer.
func (w *Writer) Write(out io.Writer, doc *raw.Document) error {
	var buf bytes.Buffer

	version := doc.Version
	if version == "" {
		version = "1.7"
	}
	fmt.Fprintf(&buf, "%%PDF-%s\n", version)
	// Binary marker comment keeps transfer agents from treating the file as text.
	buf.WriteString("%\xe2\xe3\xcf\xd3\n")

	ordered := make([]raw.ObjectRef, 0, len(doc.Objects))
	for ref := range doc.Objects {
		ordered = append(ordered, ref)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Num != ordered[j].Num {
			return ordered[i].Num < ordered[j].Num
		}
		return ordered[i].Gen < ordered[j].Gen
	})

	offsets := make(map[int]int64, len(ordered))
	gens := make(map[int]int, len(ordered))
	for _, ref := range ordered {
		obj := doc.Objects[ref]
		if w.cfg.Compress {
			obj = w.maybeCompress(obj)
		}
		offsets[ref.Num] = int64(buf.Len())
		gens[ref.Num] = ref.Gen
		fmt.Fprintf(&buf, "%d %d obj\n", ref.Num, ref.Gen)
		writeObject(&buf, obj)
		buf.WriteString("\nendobj\n")
	}

	maxNum := 0
	if len(ordered) > 0 {
		maxNum = ordered[len(ordered)-1].Num
	}

	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", maxNum+1)
	buf.WriteString("0000000000 65535 f \n")
	for num := 1; num <= maxNum; num++ {
		if off, ok := offsets[num]; ok {
			fmt.Fprintf(&buf, "%010d %05d n \n", off, gens[num])
		} else {
			buf.WriteString("0000000000 65535 f \n")
		}
	}

	trailer := w.buildTrailer(doc, maxNum+1)
	buf.WriteString("trailer\n")
	writeObject(&buf, trailer)
	fmt.Fprintf(&buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)

	_, err := out.Write(buf.Bytes())
	return err
}

// buildTrailer carries forward the entries a rewritten file still needs.
// Incremental-update bookkeeping (/Prev, /XRefStm) is dropped: the output is
// a single full body.
func (w *Writer) buildTrailer(doc *raw.Document, size int) *raw.DictObj {
	trailer := raw.Dict()
	trailer.Set(raw.NameLiteral("Size"), raw.NumberInt(int64(size)))
	if doc.Trailer != nil {
		for _, key := range []string{"Root", "Info", "ID"} {
			if v, ok := doc.Trailer.Get(raw.NameLiteral(key)); ok {
				trailer.Set(raw.NameLiteral(key), v)
			}
		}
	}
	return trailer
}

func (w *Writer) maybeCompress(obj raw.Object) raw.Object {
	stream, ok := obj.(*raw.StreamObj)
	if !ok {
		return obj
	}
	if _, filtered := stream.Dict.Get(raw.NameLiteral("Filter")); filtered {
		return obj
	}
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(stream.Data); err != nil {
		return obj
	}
	if err := zw.Close(); err != nil {
		return obj
	}
	if buf.Len() >= len(stream.Data) {
		return obj
	}
	dict := copyDict(stream.Dict)
	dict.Set(raw.NameLiteral("Filter"), raw.NameLiteral("FlateDecode"))
	return raw.NewStream(dict, buf.Bytes())
}

func copyDict(d *raw.DictObj) *raw.DictObj {
	out := raw.Dict()
	for k, v := range d.KV {
		out.KV[k] = v
	}
	return out
}
