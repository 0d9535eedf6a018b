package scanner

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

type TokenType int

const (
	TokenDictStart  TokenType = iota // '<<'
	TokenDictEnd                     // '>>'
	TokenArrayStart                  // '['
	TokenArrayEnd                    // ']'
	TokenName                        // '/Name'
	TokenString                      // literal or hex string
	TokenNumber                      // numeric value
	TokenBoolean                     // true/false
	TokenNull                        // null
	TokenRef                         // indirect ref '5 0 R'
	TokenStream                      // stream payload following the 'stream' keyword
	TokenKeyword                     // other keywords (obj, endobj, endstream, ...)
)

type Token struct {
	Type  TokenType
	Str   string // names and keywords
	Bytes []byte // strings and stream payloads
	Int   int64
	Float float64
	IsInt bool
	Hex   bool
	Num   int // reference target
	Gen   int
	Pos   int64
}

type Config struct {
	MaxStringLength int64
	MaxStreamLength int64
}

// ErrLimit is returned when a token exceeds a configured limit.
var ErrLimit = errors.New("scanner: token exceeds configured limit")

// Scanner tokenizes PDF syntax from an in-memory copy of the input.
type Scanner struct {
	data          []byte
	pos           int64
	cfg           Config
	nextStreamLen int64
}

// New reads all of r and returns a scanner positioned at offset 0.
func New(r io.ReaderAt, cfg Config) *Scanner {
	return &Scanner{data: readAll(r), cfg: cfg, nextStreamLen: -1}
}

// NewBytes wraps an already loaded buffer.
func NewBytes(data []byte, cfg Config) *Scanner {
	return &Scanner{data: data, cfg: cfg, nextStreamLen: -1}
}

func (s *Scanner) Position() int64 { return s.pos }

func (s *Scanner) Seek(offset int64) error {
	if offset < 0 || offset > int64(len(s.data)) {
		return fmt.Errorf("scanner: seek out of range: %d", offset)
	}
	s.pos = offset
	return nil
}

// SetNextStreamLength tells the scanner how many bytes the next stream
// payload holds. Without it the scanner searches for the endstream keyword.
func (s *Scanner) SetNextStreamLength(n int64) { s.nextStreamLen = n }

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

func (s *Scanner) skipWhitespace() {
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for s.pos < int64(len(s.data)) && s.data[s.pos] != '\n' && s.data[s.pos] != '\r' {
				s.pos++
			}
			continue
		}
		return
	}
}

// Next returns the next token. Integer triples of the form "N G R" collapse
// into a single TokenRef.
func (s *Scanner) Next() (Token, error) {
	tok, err := s.next()
	if err != nil || tok.Type != TokenNumber || !tok.IsInt || tok.Int < 0 {
		return tok, err
	}
	// Possible start of an indirect reference.
	save := s.pos
	genTok, err := s.next()
	if err != nil || genTok.Type != TokenNumber || !genTok.IsInt || genTok.Int < 0 {
		s.pos = save
		return tok, nil
	}
	kwTok, err := s.next()
	if err == nil && kwTok.Type == TokenKeyword && kwTok.Str == "R" {
		return Token{
			Type: TokenRef,
			Num:  int(tok.Int),
			Gen:  int(genTok.Int),
			Pos:  tok.Pos,
		}, nil
	}
	s.pos = save
	return tok, nil
}

func (s *Scanner) next() (Token, error) {
	s.skipWhitespace()
	if s.pos >= int64(len(s.data)) {
		return Token{}, io.EOF
	}
	start := s.pos
	c := s.data[s.pos]

	switch {
	case c == '<':
		if s.pos+1 < int64(len(s.data)) && s.data[s.pos+1] == '<' {
			s.pos += 2
			return Token{Type: TokenDictStart, Pos: start}, nil
		}
		return s.scanHexString(start)
	case c == '>':
		if s.pos+1 < int64(len(s.data)) && s.data[s.pos+1] == '>' {
			s.pos += 2
			return Token{Type: TokenDictEnd, Pos: start}, nil
		}
		s.pos++
		return Token{Type: TokenKeyword, Str: ">", Pos: start}, nil
	case c == '[':
		s.pos++
		return Token{Type: TokenArrayStart, Pos: start}, nil
	case c == ']':
		s.pos++
		return Token{Type: TokenArrayEnd, Pos: start}, nil
	case c == '(':
		return s.scanLiteralString(start)
	case c == '/':
		return s.scanName(start)
	case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
		return s.scanNumber(start)
	case c == '{' || c == '}':
		s.pos++
		return Token{Type: TokenKeyword, Str: string(c), Pos: start}, nil
	default:
		return s.scanKeyword(start)
	}
}

func (s *Scanner) scanName(start int64) (Token, error) {
	s.pos++ // consume '/'
	var buf bytes.Buffer
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) || isDelimiter(c) {
			break
		}
		if c == '#' && s.pos+2 < int64(len(s.data)) {
			if v, err := strconv.ParseUint(string(s.data[s.pos+1:s.pos+3]), 16, 8); err == nil {
				buf.WriteByte(byte(v))
				s.pos += 3
				continue
			}
		}
		buf.WriteByte(c)
		s.pos++
	}
	return Token{Type: TokenName, Str: buf.String(), Pos: start}, nil
}

func (s *Scanner) scanNumber(start int64) (Token, error) {
	end := s.pos
	for end < int64(len(s.data)) {
		c := s.data[end]
		if c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') {
			end++
			continue
		}
		break
	}
	text := string(s.data[s.pos:end])
	s.pos = end
	if !strings.Contains(text, ".") {
		if v, err := strconv.ParseInt(text, 10, 64); err == nil {
			return Token{Type: TokenNumber, Int: v, Float: float64(v), IsInt: true, Pos: start}, nil
		}
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return Token{}, fmt.Errorf("scanner: bad number %q at %d", text, start)
	}
	return Token{Type: TokenNumber, Float: v, Pos: start}, nil
}

func (s *Scanner) scanLiteralString(start int64) (Token, error) {
	s.pos++ // consume '('
	var buf bytes.Buffer
	depth := 1
	for s.pos < int64(len(s.data)) {
		if s.cfg.MaxStringLength > 0 && int64(buf.Len()) > s.cfg.MaxStringLength {
			return Token{}, ErrLimit
		}
		c := s.data[s.pos]
		s.pos++
		switch c {
		case '\\':
			if s.pos >= int64(len(s.data)) {
				return Token{}, errors.New("scanner: unterminated string escape")
			}
			e := s.data[s.pos]
			s.pos++
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
			case '\n':
				// line continuation
			case '\r':
				if s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
					s.pos++
				}
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && s.pos < int64(len(s.data)); i++ {
						d := s.data[s.pos]
						if d < '0' || d > '7' {
							break
						}
						v = v*8 + int(d-'0')
						s.pos++
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
				return Token{Type: TokenString, Bytes: buf.Bytes(), Pos: start}, nil
			}
			buf.WriteByte(c)
		default:
			buf.WriteByte(c)
		}
	}
	return Token{}, errors.New("scanner: unterminated literal string")
}

func (s *Scanner) scanHexString(start int64) (Token, error) {
	s.pos++ // consume '<'
	var buf bytes.Buffer
	var hi byte
	havePair := false
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		s.pos++
		if c == '>' {
			if havePair {
				buf.WriteByte(hi << 4) // odd count pads with zero
			}
			return Token{Type: TokenString, Bytes: buf.Bytes(), Hex: true, Pos: start}, nil
		}
		if isWhitespace(c) {
			continue
		}
		v, ok := hexVal(c)
		if !ok {
			return Token{}, fmt.Errorf("scanner: bad hex digit %q at %d", c, s.pos-1)
		}
		if havePair {
			buf.WriteByte(hi<<4 | v)
			havePair = false
		} else {
			hi = v
			havePair = true
		}
	}
	return Token{}, errors.New("scanner: unterminated hex string")
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

func (s *Scanner) scanKeyword(start int64) (Token, error) {
	end := s.pos
	for end < int64(len(s.data)) {
		c := s.data[end]
		if isWhitespace(c) || isDelimiter(c) {
			break
		}
		end++
	}
	if end == s.pos {
		s.pos++
		return Token{}, fmt.Errorf("scanner: unexpected byte %q at %d", s.data[start], start)
	}
	word := string(s.data[s.pos:end])
	s.pos = end
	switch word {
	case "true":
		return Token{Type: TokenBoolean, Int: 1, Pos: start}, nil
	case "false":
		return Token{Type: TokenBoolean, Pos: start}, nil
	case "null":
		return Token{Type: TokenNull, Pos: start}, nil
	case "stream":
		return s.scanStream(start)
	}
	return Token{Type: TokenKeyword, Str: word, Pos: start}, nil
}

func (s *Scanner) scanStream(start int64) (Token, error) {
	// The stream keyword is followed by CRLF or LF, then the payload.
	if s.pos < int64(len(s.data)) && s.data[s.pos] == '\r' {
		s.pos++
	}
	if s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
		s.pos++
	}
	n := s.nextStreamLen
	s.nextStreamLen = -1
	if s.cfg.MaxStreamLength > 0 && n > s.cfg.MaxStreamLength {
		return Token{}, ErrLimit
	}
	if n >= 0 && s.pos+n <= int64(len(s.data)) {
		data := s.data[s.pos : s.pos+n]
		s.pos += n
		s.skipEndstream()
		return Token{Type: TokenStream, Bytes: data, Pos: start}, nil
	}
	// Length unknown or inconsistent: search for the endstream keyword.
	idx := bytes.Index(s.data[s.pos:], []byte("endstream"))
	if idx < 0 {
		return Token{}, errors.New("scanner: endstream not found")
	}
	data := s.data[s.pos : s.pos+int64(idx)]
	data = bytes.TrimRight(data, "\r\n")
	s.pos += int64(idx)
	s.skipEndstream()
	return Token{Type: TokenStream, Bytes: data, Pos: start}, nil
}

func (s *Scanner) skipEndstream() {
	s.skipWhitespace()
	if bytes.HasPrefix(s.data[s.pos:], []byte("endstream")) {
		s.pos += int64(len("endstream"))
	}
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
