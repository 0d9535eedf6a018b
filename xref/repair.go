package xref

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdfpress/ir/raw"
	"github.com/wudi/pdfpress/scanner"
)

// repair scans the entire file to reconstruct the xref table. It looks for
// "<num> <gen> obj" patterns and trailer dictionaries. Files whose xref data
// lives in cross-reference streams end up here too: their objects are found
// by the scan and the stream dictionary carrying /Root serves as trailer.
func repair(ctx context.Context, data []byte) (Table, raw.Dictionary, error) {
	s := scanner.NewBytes(data, scanner.Config{})
	entries := make(map[int]entry)
	var trailer raw.Dictionary

	for {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
		}

		tok, err := s.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			continue // skip invalid tokens during repair
		}

		switch {
		case tok.Type == scanner.TokenNumber && tok.IsInt:
			num := int(tok.Int)
			genTok, err := s.Next()
			if err != nil || genTok.Type != scanner.TokenNumber || !genTok.IsInt {
				continue
			}
			kwTok, err := s.Next()
			if err != nil {
				continue
			}
			if kwTok.Type == scanner.TokenKeyword && kwTok.Str == "obj" {
				entries[num] = entry{offset: tok.Pos, gen: int(genTok.Int)}
				if d := objectTrailerCandidate(s); d != nil {
					trailer = d
				}
				continue
			}
			// The second number may itself start an object definition.
			if err := s.Seek(genTok.Pos); err != nil {
				return nil, nil, err
			}
		case tok.Type == scanner.TokenKeyword && tok.Str == "trailer":
			obj, err := ParseObject(s)
			if err == nil {
				if dict, ok := obj.(*raw.DictObj); ok {
					trailer = dict
				}
			}
		}
	}

	if len(entries) == 0 {
		return nil, nil, errors.New("repair failed: no objects found")
	}
	if trailer == nil {
		return nil, nil, errors.New("repair failed: no trailer found")
	}
	return &table{entries: entries}, trailer, nil
}

// objectTrailerCandidate inspects the dictionary following an obj keyword and
// keeps it when it carries a /Root entry (classic trailer replacement in
// xref-stream files). The scanner position is restored either way.
func objectTrailerCandidate(s *scanner.Scanner) *raw.DictObj {
	save := s.Position()
	defer func() { _ = s.Seek(save) }()
	obj, err := ParseObject(s)
	if err != nil {
		return nil
	}
	dict, ok := obj.(*raw.DictObj)
	if !ok {
		return nil
	}
	if _, ok := dict.Get(raw.NameLiteral("Root")); !ok {
		return nil
	}
	return dict
}

// ParseObject reads one object from the token stream. Stream payloads are
// not consumed here; callers interested in stream data handle the stream
// keyword themselves.
func ParseObject(s *scanner.Scanner) (raw.Object, error) {
	tok, err := s.Next()
	if err != nil {
		return nil, err
	}
	return parseObjectToken(s, tok)
}

func parseObjectToken(s *scanner.Scanner, tok scanner.Token) (raw.Object, error) {
	switch tok.Type {
	case scanner.TokenName:
		return raw.NameLiteral(tok.Str), nil
	case scanner.TokenNumber:
		if tok.IsInt {
			return raw.NumberInt(tok.Int), nil
		}
		return raw.NumberFloat(tok.Float), nil
	case scanner.TokenBoolean:
		return raw.Bool(tok.Int == 1), nil
	case scanner.TokenNull:
		return raw.NullObj{}, nil
	case scanner.TokenString:
		return raw.StringObj{Bytes: tok.Bytes, Hex: tok.Hex}, nil
	case scanner.TokenRef:
		return raw.Ref(tok.Num, tok.Gen), nil
	case scanner.TokenArrayStart:
		arr := raw.NewArray()
		for {
			t, err := s.Next()
			if err != nil {
				return nil, err
			}
			if t.Type == scanner.TokenArrayEnd {
				return arr, nil
			}
			item, err := parseObjectToken(s, t)
			if err != nil {
				return nil, err
			}
			arr.Append(item)
		}
	case scanner.TokenDictStart:
		dict := raw.Dict()
		for {
			t, err := s.Next()
			if err != nil {
				return nil, err
			}
			if t.Type == scanner.TokenDictEnd {
				return dict, nil
			}
			if t.Type != scanner.TokenName {
				return nil, fmt.Errorf("expected name in dict, got token %d", t.Type)
			}
			val, err := ParseObject(s)
			if err != nil {
				return nil, err
			}
			dict.Set(raw.NameLiteral(t.Str), val)
		}
	}
	return nil, fmt.Errorf("unexpected token %d at %d", tok.Type, tok.Pos)
}
