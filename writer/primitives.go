package writer

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	"github.com/wudi/pdfpress/ir/raw"
)

func writeObject(buf *bytes.Buffer, obj raw.Object) {
	switch v := obj.(type) {
	case raw.NameObj:
		writeName(buf, v.Value())
	case raw.NumberObj:
		writeNumber(buf, v)
	case raw.BoolObj:
		if v.Value() {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case raw.NullObj:
		buf.WriteString("null")
	case raw.StringObj:
		writeString(buf, v)
	case *raw.ArrayObj:
		buf.WriteByte('[')
		for i, item := range v.Items {
			if i > 0 {
				buf.WriteByte(' ')
			}
			writeObject(buf, item)
		}
		buf.WriteByte(']')
	case *raw.DictObj:
		writeDict(buf, v)
	case *raw.StreamObj:
		writeDict(buf, v.Dict)
		buf.WriteString("\nstream\n")
		buf.Write(v.Data)
		buf.WriteString("\nendstream")
	case raw.RefObj:
		fmt.Fprintf(buf, "%d %d R", v.Ref().Num, v.Ref().Gen)
	default:
		buf.WriteString("null")
	}
}

func writeDict(buf *bytes.Buffer, d *raw.DictObj) {
	buf.WriteString("<<")
	keys := make([]string, 0, len(d.KV))
	for k := range d.KV {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeName(buf, k)
		buf.WriteByte(' ')
		writeObject(buf, d.KV[k])
		buf.WriteByte(' ')
	}
	buf.WriteString(">>")
}

func writeNumber(buf *bytes.Buffer, n raw.NumberObj) {
	if n.IsInteger() {
		buf.WriteString(strconv.FormatInt(n.Int(), 10))
		return
	}
	buf.WriteString(strconv.FormatFloat(n.Float(), 'f', -1, 64))
}

func writeName(buf *bytes.Buffer, name string) {
	buf.WriteByte('/')
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c <= 0x20 || c >= 0x7f || isDelimiter(c) || c == '#' {
			fmt.Fprintf(buf, "#%02X", c)
			continue
		}
		buf.WriteByte(c)
	}
}

func writeString(buf *bytes.Buffer, s raw.StringObj) {
	if s.IsHex() {
		buf.WriteByte('<')
		for _, b := range s.Value() {
			fmt.Fprintf(buf, "%02X", b)
		}
		buf.WriteByte('>')
		return
	}
	buf.WriteByte('(')
	for _, c := range s.Value() {
		switch c {
		case '(', ')', '\\':
			buf.WriteByte('\\')
			buf.WriteByte(c)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if c < 0x20 || c >= 0x7f {
				fmt.Fprintf(buf, `\%03o`, c)
			} else {
				buf.WriteByte(c)
			}
		}
	}
	buf.WriteByte(')')
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}
