package compiler

// Parser consumes the flat token slice produced by the Lexer and builds a
// Program.
//
// Grammar:
//
//	program  = item* EOF
//	item     = "<" | ">" | "+" | "-" | "." | "," | loop | "]"
//	loop     = "[" item* ( "]" | EOF )
//
// Parsing is total. A loop left open at end of input simply ends there, and a
// "]" with no matching "[" at the outermost level is skipped.
//
// Loops are parsed by recursion, so the Go stack depth grows with the nesting
// depth of the source. Pathologically deep nesting can exhaust it.
type Parser struct {
	tokens []Token
	pos    int
}

func NewParser(tokens []Token) *Parser {
	return &Parser{tokens: tokens}
}

// peek returns the current token without consuming it.
func (p *Parser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: EOF}
	}
	return p.tokens[p.pos]
}

// advance consumes and returns the current token.
func (p *Parser) advance() Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

// ParseProgram parses every remaining token into a Program.
func (p *Parser) ParseProgram() Program {
	return Program(p.parseSequence(0))
}

// parseSequence collects nodes until EOF, or until the "]" closing the loop
// opened at depth-1.
func (p *Parser) parseSequence(depth int) []Node {
	var nodes []Node
	for {
		tok := p.advance()
		switch tok.Type {
		case EOF:
			return nodes
		case SHIFT_LEFT:
			nodes = append(nodes, ShiftBy(-1))
		case SHIFT_RIGHT:
			nodes = append(nodes, ShiftBy(1))
		case PLUS:
			nodes = append(nodes, Add(1))
		case MINUS:
			nodes = append(nodes, Add(-1))
		case DOT:
			nodes = append(nodes, Write())
		case COMMA:
			nodes = append(nodes, Read())
		case LBRACKET:
			nodes = append(nodes, LoopOf(p.parseSequence(depth+1)...))
		case RBRACKET:
			if depth > 0 {
				return nodes
			}
			// unmatched at top level: inert
		}
	}
}

// Parse lexes and parses src. It never fails.
func Parse(src string) Program {
	return NewParser(Lex(src)).ParseProgram()
}

// OpenLoops reports how many loops are still open at the end of src. A REPL
// uses it to decide whether to keep reading lines.
func OpenLoops(src string) int {
	depth := 0
	for _, tok := range Lex(src) {
		switch tok.Type {
		case LBRACKET:
			depth++
		case RBRACKET:
			if depth > 0 {
				depth--
			}
		}
	}
	return depth
}
