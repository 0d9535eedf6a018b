package scanner

import (
	"bytes"
	"errors"
	"testing"
)

func TestNextTokenKinds(t *testing.T) {
	src := []byte(`<< /Type /Page /Count 3 /Scale 0.5 /Open true /None null >>`)
	s := NewBytes(src, Config{})

	want := []struct {
		typ TokenType
		str string
	}{
		{TokenDictStart, ""},
		{TokenName, "Type"},
		{TokenName, "Page"},
		{TokenName, "Count"},
		{TokenNumber, ""},
		{TokenName, "Scale"},
		{TokenNumber, ""},
		{TokenName, "Open"},
		{TokenBoolean, ""},
		{TokenName, "None"},
		{TokenNull, ""},
		{TokenDictEnd, ""},
	}
	for i, w := range want {
		tok, err := s.Next()
		if err != nil {
			t.Fatalf("token %d: %v", i, err)
		}
		if tok.Type != w.typ {
			t.Fatalf("token %d: got type %d, want %d", i, tok.Type, w.typ)
		}
		if w.str != "" && tok.Str != w.str {
			t.Fatalf("token %d: got %q, want %q", i, tok.Str, w.str)
		}
	}
}

func TestNumbers(t *testing.T) {
	s := NewBytes([]byte("42 -17 3.14 -0.5 +6"), Config{})

	cases := []struct {
		isInt bool
		i     int64
		f     float64
	}{
		{true, 42, 0},
		{true, -17, 0},
		{false, 0, 3.14},
		{false, 0, -0.5},
		{true, 6, 0},
	}
	for i, c := range cases {
		tok, err := s.Next()
		if err != nil {
			t.Fatalf("token %d: %v", i, err)
		}
		if tok.Type != TokenNumber || tok.IsInt != c.isInt {
			t.Fatalf("token %d: type=%d isInt=%v", i, tok.Type, tok.IsInt)
		}
		if c.isInt && tok.Int != c.i {
			t.Errorf("token %d: got %d, want %d", i, tok.Int, c.i)
		}
		if !c.isInt && tok.Float != c.f {
			t.Errorf("token %d: got %g, want %g", i, tok.Float, c.f)
		}
	}
}

func TestIndirectReference(t *testing.T) {
	s := NewBytes([]byte("12 0 R 5"), Config{})
	tok, err := s.Next()
	if err != nil {
		t.Fatal(err)
	}
	if tok.Type != TokenRef || tok.Num != 12 || tok.Gen != 0 {
		t.Fatalf("got %+v, want ref 12 0", tok)
	}
	tok, err = s.Next()
	if err != nil {
		t.Fatal(err)
	}
	if tok.Type != TokenNumber || tok.Int != 5 {
		t.Fatalf("lookahead corrupted the stream: %+v", tok)
	}
}

func TestRefLookaheadNotGreedy(t *testing.T) {
	// Two numbers not followed by R must come back as plain numbers.
	s := NewBytes([]byte("3 0 obj"), Config{})
	tok, _ := s.Next()
	if tok.Type != TokenNumber || tok.Int != 3 {
		t.Fatalf("got %+v", tok)
	}
	tok, _ = s.Next()
	if tok.Type != TokenNumber || tok.Int != 0 {
		t.Fatalf("got %+v", tok)
	}
	tok, _ = s.Next()
	if tok.Type != TokenKeyword || tok.Str != "obj" {
		t.Fatalf("got %+v", tok)
	}
}

func TestLiteralString(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`(hello)`, "hello"},
		{`(a\(b\)c)`, "a(b)c"},
		{`(nested (parens) ok)`, "nested (parens) ok"},
		{`(line\nbreak)`, "line\nbreak"},
		{`(\101\102)`, "AB"},
		{`(back\\slash)`, `back\slash`},
	}
	for _, c := range cases {
		s := NewBytes([]byte(c.in), Config{})
		tok, err := s.Next()
		if err != nil {
			t.Fatalf("%s: %v", c.in, err)
		}
		if tok.Type != TokenString || string(tok.Bytes) != c.want {
			t.Errorf("%s: got %q, want %q", c.in, tok.Bytes, c.want)
		}
	}
}

func TestHexString(t *testing.T) {
	s := NewBytes([]byte("<48656C6C6F> <48656C6C6>"), Config{})
	tok, err := s.Next()
	if err != nil {
		t.Fatal(err)
	}
	if !tok.Hex || string(tok.Bytes) != "Hello" {
		t.Fatalf("got %q hex=%v", tok.Bytes, tok.Hex)
	}
	// Odd digit count pads with zero.
	tok, err = s.Next()
	if err != nil {
		t.Fatal(err)
	}
	if string(tok.Bytes) != "Hell`" {
		t.Fatalf("odd-length hex: got %q", tok.Bytes)
	}
}

func TestNameEscapes(t *testing.T) {
	s := NewBytes([]byte("/A#20B /Lime#20Green"), Config{})
	tok, _ := s.Next()
	if tok.Str != "A B" {
		t.Fatalf("got %q", tok.Str)
	}
	tok, _ = s.Next()
	if tok.Str != "Lime Green" {
		t.Fatalf("got %q", tok.Str)
	}
}

func TestCommentsSkipped(t *testing.T) {
	s := NewBytes([]byte("% a comment\n42"), Config{})
	tok, err := s.Next()
	if err != nil {
		t.Fatal(err)
	}
	if tok.Type != TokenNumber || tok.Int != 42 {
		t.Fatalf("got %+v", tok)
	}
}

func TestStreamWithKnownLength(t *testing.T) {
	src := []byte("stream\r\nABCDEF\nendstream")
	s := NewBytes(src, Config{})
	s.SetNextStreamLength(6)
	tok, err := s.Next()
	if err != nil {
		t.Fatal(err)
	}
	if tok.Type != TokenStream || !bytes.Equal(tok.Bytes, []byte("ABCDEF")) {
		t.Fatalf("got %q", tok.Bytes)
	}
}

func TestStreamSearchesEndstream(t *testing.T) {
	src := []byte("stream\npayload bytes\nendstream")
	s := NewBytes(src, Config{})
	tok, err := s.Next()
	if err != nil {
		t.Fatal(err)
	}
	if tok.Type != TokenStream || string(tok.Bytes) != "payload bytes" {
		t.Fatalf("got %q", tok.Bytes)
	}
}

func TestStringLimit(t *testing.T) {
	s := NewBytes([]byte("(abcdefgh)"), Config{MaxStringLength: 4})
	_, err := s.Next()
	if !errors.Is(err, ErrLimit) {
		t.Fatalf("got %v, want ErrLimit", err)
	}
}

func TestSeekOutOfRange(t *testing.T) {
	s := NewBytes([]byte("abc"), Config{})
	if err := s.Seek(100); err == nil {
		t.Fatal("expected error")
	}
	if err := s.Seek(-1); err == nil {
		t.Fatal("expected error")
	}
}
