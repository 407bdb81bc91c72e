package compiler

import "strings"

// Stats summarises the shape of a program.
type Stats struct {
	Leaves   int // every non-Loop node
	Loops    int
	MaxDepth int // deepest Loop nesting; 0 for a loop-free program
	Inputs   int
	Outputs  int
}

// Walk visits every node of prog in source order, parents before their
// children. depth is 0 for top-level nodes and grows by one inside each Loop.
func Walk(prog Program, fn func(n Node, depth int)) {
	walkNodes(prog, 0, fn)
}

func walkNodes(nodes []Node, depth int, fn func(n Node, depth int)) {
	for _, n := range nodes {
		fn(n, depth)
		if n.Kind == Loop {
			walkNodes(n.Body, depth+1, fn)
		}
	}
}

// Analyze collects Stats for prog.
func Analyze(prog Program) Stats {
	var st Stats
	Walk(prog, func(n Node, depth int) {
		switch n.Kind {
		case Loop:
			st.Loops++
			if depth+1 > st.MaxDepth {
				st.MaxDepth = depth + 1
			}
			return
		case Input:
			st.Inputs++
		case Output:
			st.Outputs++
		}
		st.Leaves++
	})
	return st
}

// Format renders prog back to canonical source text. Parse(Format(p))
// reproduces p for any tree the parser can build.
func Format(prog Program) string {
	var sb strings.Builder
	formatNodes(&sb, prog)
	return sb.String()
}

func formatNodes(sb *strings.Builder, nodes []Node) {
	for _, n := range nodes {
		switch n.Kind {
		case Shift:
			writeRepeated(sb, n.Step, '>', '<')
		case Increment:
			writeRepeated(sb, n.Delta, '+', '-')
		case Input:
			sb.WriteByte(',')
		case Output:
			sb.WriteByte('.')
		case Loop:
			sb.WriteByte('[')
			formatNodes(sb, n.Body)
			sb.WriteByte(']')
		}
	}
}

// writeRepeated writes |amount| copies of up (amount > 0) or down (amount < 0).
func writeRepeated(sb *strings.Builder, amount int32, up, down byte) {
	c := up
	if amount < 0 {
		c, amount = down, -amount
	}
	for i := int32(0); i < amount; i++ {
		sb.WriteByte(c)
	}
}
