package contentstream

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

// Parse splits a decoded content stream into its operation sequence.
func Parse(data []byte) ([]Operation, error) {
	t := &tokenizer{data: data}
	var ops []Operation
	var operands []Operand
	for {
		t.skipWhitespace()
		if t.pos >= len(t.data) {
			break
		}
		c := t.data[t.pos]
		switch {
		case c == '/' || c == '(' || c == '<' || c == '[' ||
			c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
			operand, err := t.scanOperand()
			if err != nil {
				return nil, err
			}
			operands = append(operands, operand)
		case c == ']' || c == '>' || c == '{' || c == '}':
			return nil, fmt.Errorf("contentstream: unexpected %q at %d", c, t.pos)
		default:
			word := t.scanWord()
			switch word {
			case "true":
				operands = append(operands, BoolOperand{Value: true})
			case "false":
				operands = append(operands, BoolOperand{Value: false})
			case "null":
				operands = append(operands, NullOperand{})
			case "BI":
				op, err := t.scanInlineImage()
				if err != nil {
					return nil, err
				}
				ops = append(ops, op)
				operands = nil
			case "":
				return nil, fmt.Errorf("contentstream: stray byte %q at %d", c, t.pos)
			default:
				ops = append(ops, Operation{Operator: word, Operands: operands})
				operands = nil
			}
		}
	}
	if len(operands) > 0 {
		return nil, fmt.Errorf("contentstream: %d dangling operands", len(operands))
	}
	return ops, nil
}

type tokenizer struct {
	data []byte
	pos  int
}

func (t *tokenizer) peek(ahead int) byte {
	if t.pos+ahead < len(t.data) {
		return t.data[t.pos+ahead]
	}
	return 0
}

func isWhitespace(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func (t *tokenizer) skipWhitespace() {
	for t.pos < len(t.data) {
		c := t.data[t.pos]
		if isWhitespace(c) {
			t.pos++
			continue
		}
		if c == '%' {
			for t.pos < len(t.data) && t.data[t.pos] != '\n' && t.data[t.pos] != '\r' {
				t.pos++
			}
			continue
		}
		return
	}
}

func (t *tokenizer) scanWord() string {
	start := t.pos
	for t.pos < len(t.data) {
		c := t.data[t.pos]
		if isWhitespace(c) || isDelimiter(c) {
			break
		}
		t.pos++
	}
	return string(t.data[start:t.pos])
}

func (t *tokenizer) scanName() (string, error) {
	t.pos++ // '/'
	var buf bytes.Buffer
	for t.pos < len(t.data) {
		c := t.data[t.pos]
		if isWhitespace(c) || isDelimiter(c) {
			break
		}
		if c == '#' && t.pos+2 < len(t.data) {
			if v, err := strconv.ParseUint(string(t.data[t.pos+1:t.pos+3]), 16, 8); err == nil {
				buf.WriteByte(byte(v))
				t.pos += 3
				continue
			}
		}
		buf.WriteByte(c)
		t.pos++
	}
	return buf.String(), nil
}

func (t *tokenizer) scanNumber() (float64, error) {
	start := t.pos
	for t.pos < len(t.data) {
		c := t.data[t.pos]
		if c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') {
			t.pos++
			continue
		}
		break
	}
	v, err := strconv.ParseFloat(string(t.data[start:t.pos]), 64)
	if err != nil {
		return 0, fmt.Errorf("contentstream: bad number at %d: %w", start, err)
	}
	return v, nil
}

func (t *tokenizer) scanLiteralString() ([]byte, error) {
	t.pos++ // '('
	var buf bytes.Buffer
	depth := 1
	for t.pos < len(t.data) {
		c := t.data[t.pos]
		t.pos++
		switch c {
		case '\\':
			if t.pos >= len(t.data) {
				return nil, errors.New("contentstream: unterminated escape")
			}
			e := t.data[t.pos]
			t.pos++
			switch e {
			case 'n':
				buf.WriteByte('\n')
			case 'r':
				buf.WriteByte('\r')
			case 't':
				buf.WriteByte('\t')
			case 'b':
				buf.WriteByte('\b')
			case 'f':
				buf.WriteByte('\f')
			case '(', ')', '\\':
				buf.WriteByte(e)
			case '\r':
				if t.pos < len(t.data) && t.data[t.pos] == '\n' {
					t.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && t.pos < len(t.data); i++ {
						d := t.data[t.pos]
						if d < '0' || d > '7' {
							break
						}
						v = v*8 + int(d-'0')
						t.pos++
					}
					buf.WriteByte(byte(v))
				} else {
					buf.WriteByte(e)
				}
			}
		case '(':
			depth++
			buf.WriteByte(c)
		case ')':
			depth--
			if depth == 0 {
				return buf.Bytes(), nil
			}
			buf.WriteByte(c)
		default:
			buf.WriteByte(c)
		}
	}
	return nil, errors.New("contentstream: unterminated string")
}

func (t *tokenizer) scanHexString() ([]byte, error) {
	t.pos++ // '<'
	var buf bytes.Buffer
	var hi byte
	havePair := false
	for t.pos < len(t.data) {
		c := t.data[t.pos]
		t.pos++
		if c == '>' {
			if havePair {
				buf.WriteByte(hi << 4)
			}
			return buf.Bytes(), nil
		}
		if isWhitespace(c) {
			continue
		}
		v, ok := hexVal(c)
		if !ok {
			return nil, fmt.Errorf("contentstream: bad hex digit %q", c)
		}
		if havePair {
			buf.WriteByte(hi<<4 | v)
			havePair = false
		} else {
			hi = v
			havePair = true
		}
	}
	return nil, errors.New("contentstream: unterminated hex string")
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func (t *tokenizer) scanOperand() (Operand, error) {
	t.skipWhitespace()
	if t.pos >= len(t.data) {
		return nil, errors.New("contentstream: unexpected end of data")
	}
	c := t.data[t.pos]
	switch {
	case c == '/':
		name, err := t.scanName()
		if err != nil {
			return nil, err
		}
		return NameOperand{Value: name}, nil
	case c == '(':
		s, err := t.scanLiteralString()
		if err != nil {
			return nil, err
		}
		return StringOperand{Value: s}, nil
	case c == '<' && t.peek(1) == '<':
		return t.scanDict()
	case c == '<':
		s, err := t.scanHexString()
		if err != nil {
			return nil, err
		}
		return StringOperand{Value: s, Hex: true}, nil
	case c == '[':
		return t.scanArray()
	case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
		n, err := t.scanNumber()
		if err != nil {
			return nil, err
		}
		return NumberOperand{Value: n}, nil
	default:
		word := t.scanWord()
		switch word {
		case "true":
			return BoolOperand{Value: true}, nil
		case "false":
			return BoolOperand{Value: false}, nil
		case "null":
			return NullOperand{}, nil
		}
		return nil, fmt.Errorf("contentstream: unexpected token %q", word)
	}
}

func (t *tokenizer) scanArray() (Operand, error) {
	t.pos++ // '['
	arr := ArrayOperand{}
	for {
		t.skipWhitespace()
		if t.pos >= len(t.data) {
			return nil, errors.New("contentstream: unterminated array")
		}
		if t.data[t.pos] == ']' {
			t.pos++
			return arr, nil
		}
		item, err := t.scanOperand()
		if err != nil {
			return nil, err
		}
		arr.Values = append(arr.Values, item)
	}
}

func (t *tokenizer) scanDict() (Operand, error) {
	t.pos += 2 // '<<'
	dict := DictOperand{Values: make(map[string]Operand)}
	for {
		t.skipWhitespace()
		if t.pos >= len(t.data) {
			return nil, errors.New("contentstream: unterminated dict")
		}
		if t.data[t.pos] == '>' && t.peek(1) == '>' {
			t.pos += 2
			return dict, nil
		}
		if t.data[t.pos] != '/' {
			return nil, fmt.Errorf("contentstream: expected name key at %d", t.pos)
		}
		key, err := t.scanName()
		if err != nil {
			return nil, err
		}
		val, err := t.scanOperand()
		if err != nil {
			return nil, err
		}
		if _, exists := dict.Values[key]; !exists {
			dict.Keys = append(dict.Keys, key)
		}
		dict.Values[key] = val
	}
}

// scanInlineImage consumes "BI <dict entries> ID <binary> EI" and records it
// as a single operation so it passes through serialization untouched.
func (t *tokenizer) scanInlineImage() (Operation, error) {
	op := Operation{Operator: "BI"}
	dict := DictOperand{Values: make(map[string]Operand)}
	for {
		t.skipWhitespace()
		if t.pos >= len(t.data) {
			return Operation{}, errors.New("contentstream: unterminated inline image")
		}
		if t.data[t.pos] != '/' {
			word := t.scanWord()
			if word != "ID" {
				return Operation{}, fmt.Errorf("contentstream: expected ID, got %q", word)
			}
			break
		}
		key, err := t.scanName()
		if err != nil {
			return Operation{}, err
		}
		val, err := t.scanOperand()
		if err != nil {
			return Operation{}, err
		}
		if _, exists := dict.Values[key]; !exists {
			dict.Keys = append(dict.Keys, key)
		}
		dict.Values[key] = val
	}
	// One whitespace byte separates ID from the payload.
	if t.pos < len(t.data) && isWhitespace(t.data[t.pos]) {
		t.pos++
	}
	end := findInlineImageEnd(t.data, t.pos)
	if end < 0 {
		return Operation{}, errors.New("contentstream: EI not found")
	}
	op.Operands = []Operand{dict}
	op.InlineData = t.data[t.pos:end]
	t.pos = end
	t.skipWhitespace()
	t.pos += 2 // consume EI
	return op, nil
}

func findInlineImageEnd(data []byte, from int) int {
	for i := from; i+1 < len(data); i++ {
		if data[i] == 'E' && data[i+1] == 'I' {
			before := i == 0 || isWhitespace(data[i-1])
			after := i+2 >= len(data) || isWhitespace(data[i+2]) || isDelimiter(data[i+2])
			if before && after {
				return i - 1
			}
		}
	}
	return -1
}
