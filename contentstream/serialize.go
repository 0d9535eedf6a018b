package contentstream

import (
	"bytes"
	"fmt"
	"strconv"
)

// Serialize re-emits an operation sequence as content stream bytes.
func Serialize(ops []Operation) []byte {
	var buf bytes.Buffer
	for _, op := range ops {
		if op.Operator == "BI" {
			writeInlineImage(&buf, op)
			continue
		}
		for _, operand := range op.Operands {
			writeOperand(&buf, operand)
			buf.WriteByte(' ')
		}
		buf.WriteString(op.Operator)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func writeInlineImage(buf *bytes.Buffer, op Operation) {
	buf.WriteString("BI")
	if len(op.Operands) == 1 {
		if dict, ok := op.Operands[0].(DictOperand); ok {
			for _, key := range dict.Keys {
				buf.WriteByte(' ')
				writeName(buf, key)
				buf.WriteByte(' ')
				writeOperand(buf, dict.Values[key])
			}
		}
	}
	buf.WriteString(" ID ")
	buf.Write(op.InlineData)
	buf.WriteString("\nEI\n")
}

func writeOperand(buf *bytes.Buffer, operand Operand) {
	switch v := operand.(type) {
	case NumberOperand:
		buf.WriteString(formatNumber(v.Value))
	case NameOperand:
		writeName(buf, v.Value)
	case StringOperand:
		if v.Hex {
			buf.WriteByte('<')
			for _, b := range v.Value {
				fmt.Fprintf(buf, "%02X", b)
			}
			buf.WriteByte('>')
		} else {
			writeLiteralString(buf, v.Value)
		}
	case BoolOperand:
		if v.Value {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case NullOperand:
		buf.WriteString("null")
	case ArrayOperand:
		buf.WriteByte('[')
		for i, item := range v.Values {
			if i > 0 {
				buf.WriteByte(' ')
			}
			writeOperand(buf, item)
		}
		buf.WriteByte(']')
	case DictOperand:
		buf.WriteString("<<")
		for _, key := range v.Keys {
			buf.WriteByte(' ')
			writeName(buf, key)
			buf.WriteByte(' ')
			writeOperand(buf, v.Values[key])
		}
		buf.WriteString(" >>")
	}
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func writeName(buf *bytes.Buffer, name string) {
	buf.WriteByte('/')
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c <= ' ' || c > '~' || isDelimiter(c) || c == '#' {
			fmt.Fprintf(buf, "#%02X", c)
			continue
		}
		buf.WriteByte(c)
	}
}

func writeLiteralString(buf *bytes.Buffer, data []byte) {
	buf.WriteByte('(')
	for _, c := range data {
		switch c {
		case '(', ')', '\\':
			buf.WriteByte('\\')
			buf.WriteByte(c)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		default:
			buf.WriteByte(c)
		}
	}
	buf.WriteByte(')')
}
