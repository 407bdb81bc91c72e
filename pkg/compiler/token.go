package compiler

import "fmt"

// TokenType identifies the category of a lexed token.
type TokenType int

const (
	EOF TokenType = iota // sentinel: end of input

	SHIFT_LEFT  // <
	SHIFT_RIGHT // >
	PLUS        // +
	MINUS       // -
	DOT         // .
	COMMA       // ,
	LBRACKET    // [
	RBRACKET    // ]
)

// tokenNames is indexed by TokenType.
var tokenNames = [...]string{
	EOF:         "EOF",
	SHIFT_LEFT:  "SHIFT_LEFT",
	SHIFT_RIGHT: "SHIFT_RIGHT",
	PLUS:        "PLUS",
	MINUS:       "MINUS",
	DOT:         "DOT",
	COMMA:       "COMMA",
	LBRACKET:    "LBRACKET",
	RBRACKET:    "RBRACKET",
}

// symbols maps each significant source character to its TokenType.
// Every other character is inert.
var symbols = map[rune]TokenType{
	'<': SHIFT_LEFT,
	'>': SHIFT_RIGHT,
	'+': PLUS,
	'-': MINUS,
	'.': DOT,
	',': COMMA,
	'[': LBRACKET,
	']': RBRACKET,
}

func (tt TokenType) String() string {
	if int(tt) >= 0 && int(tt) < len(tokenNames) {
		return tokenNames[tt]
	}
	return fmt.Sprintf("TokenType(%d)", int(tt))
}

// Token is a single lexical unit produced by the Lexer.
type Token struct {
	Type   TokenType
	Lexeme string // the source character that was matched
	Line   int    // 1-based source line
	Col    int    // 1-based column (in runes)
}

func (t Token) String() string {
	return fmt.Sprintf("%-11s %-4q  line %d:%d", t.Type, t.Lexeme, t.Line, t.Col)
}
