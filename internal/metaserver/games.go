package metaserver

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"text/scanner"
)

// ErrSyntax is returned for a game list that cannot be parsed.
var ErrSyntax = errors.New("malformed game list")

// Game is one advertised game.
type Game struct {
	ID        int
	Version   string
	Name      string
	Addresses []string
}

// ParseGames reads the metaserver's game list, a sequence of entries like
//
//	game{id=3, version="0.1.0", name="lan", address={"tcp4://10.0.0.2:7150"}}
//
// Unknown fields are skipped.
func ParseGames(data []byte) ([]Game, error) {
	p := &parser{}
	p.s.Init(bytes.NewReader(data))
	p.s.Mode = scanner.ScanIdents | scanner.ScanInts | scanner.ScanStrings
	p.s.Error = func(s *scanner.Scanner, msg string) {
		if p.err == nil {
			p.err = fmt.Errorf("%w: %s at %s", ErrSyntax, msg, s.Position)
		}
	}
	p.next()

	var games []Game
	for p.tok != scanner.EOF && p.err == nil {
		if p.tok == ',' || p.tok == ';' {
			p.next()
			continue
		}
		g := p.game()
		if p.err != nil {
			break
		}
		games = append(games, g)
	}
	if p.err != nil {
		return nil, p.err
	}
	return games, nil
}

type parser struct {
	s   scanner.Scanner
	tok rune
	err error
}

func (p *parser) next() {
	p.tok = p.s.Scan()
}

func (p *parser) fail(format string, args ...any) {
	if p.err == nil {
		p.err = fmt.Errorf("%w: %s at %s", ErrSyntax, fmt.Sprintf(format, args...), p.s.Position)
	}
}

func (p *parser) expect(tok rune) {
	if p.tok != tok {
		p.fail("expected %s, got %q", scanner.TokenString(tok), p.s.TokenText())
		return
	}
	p.next()
}

func (p *parser) game() Game {
	var g Game
	if p.tok != scanner.Ident || p.s.TokenText() != "game" {
		p.fail("expected game entry, got %q", p.s.TokenText())
		return g
	}
	p.next()
	p.expect('{')

	for p.err == nil && p.tok != '}' {
		if p.tok != scanner.Ident {
			p.fail("expected field name, got %q", p.s.TokenText())
			break
		}
		key := p.s.TokenText()
		p.next()
		p.expect('=')

		switch key {
		case "id":
			g.ID = p.readInt()
		case "version":
			g.Version = p.readString()
		case "name":
			g.Name = p.readString()
		case "address":
			g.Addresses = p.readStrings()
		default:
			p.skipValue()
		}

		if p.tok == ',' || p.tok == ';' {
			p.next()
		} else if p.tok != '}' {
			p.fail("expected , or }, got %q", p.s.TokenText())
		}
	}
	p.expect('}')
	return g
}

func (p *parser) readInt() int {
	if p.tok != scanner.Int {
		p.fail("expected integer, got %q", p.s.TokenText())
		return 0
	}
	n, err := strconv.Atoi(p.s.TokenText())
	if err != nil {
		p.fail("bad integer %q", p.s.TokenText())
	}
	p.next()
	return n
}

func (p *parser) readString() string {
	if p.tok != scanner.String {
		p.fail("expected string, got %q", p.s.TokenText())
		return ""
	}
	v, err := strconv.Unquote(p.s.TokenText())
	if err != nil {
		p.fail("bad string %s", p.s.TokenText())
	}
	p.next()
	return v
}

func (p *parser) readStrings() []string {
	// A lone string is accepted as a one element list.
	if p.tok == scanner.String {
		return []string{p.readString()}
	}
	p.expect('{')
	var out []string
	for p.err == nil && p.tok != '}' {
		out = append(out, p.readString())
		if p.tok == ',' || p.tok == ';' {
			p.next()
		}
	}
	p.expect('}')
	return out
}

func (p *parser) skipValue() {
	if p.tok != '{' {
		p.next()
		return
	}
	depth := 0
	for p.err == nil {
		switch p.tok {
		case '{':
			depth++
		case '}':
			depth--
		case scanner.EOF:
			p.fail("unterminated table")
			return
		}
		p.next()
		if depth == 0 {
			return
		}
	}
}
