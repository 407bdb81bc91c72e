package compiler

// Lexer holds all mutable state for a single scanning pass over src.
type Lexer struct {
	src  []rune
	pos  int // index of the next rune to consume
	line int // current 1-based source line
	col  int // column of the next rune, 1-based
}

func newLexer(src string) *Lexer {
	return &Lexer{src: []rune(src), pos: 0, line: 1, col: 1}
}

// advance consumes one rune and returns it.
func (l *Lexer) advance() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	r := l.src[l.pos]
	l.pos++
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r
}

// Next returns the next significant token, skipping every character outside
// the instruction alphabet. At end of input it returns an EOF token, and keeps
// returning one on further calls.
func (l *Lexer) Next() Token {
	for l.pos < len(l.src) {
		line, col := l.line, l.col
		r := l.advance()
		if tt, ok := symbols[r]; ok {
			return Token{Type: tt, Lexeme: string(r), Line: line, Col: col}
		}
	}
	return Token{Type: EOF, Line: l.line, Col: l.col}
}

// Lex converts source text into a flat slice of tokens. The trailing EOF
// sentinel is included. Lex never fails: comments and whitespace are simply
// whatever the alphabet does not contain.
func Lex(src string) []Token {
	l := newLexer(src)
	var tokens []Token
	for {
		tok := l.Next()
		tokens = append(tokens, tok)
		if tok.Type == EOF {
			return tokens
		}
	}
}
