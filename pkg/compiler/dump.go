package compiler

import (
	"fmt"
	"io"
	"strings"
)

// Dump writes an indented, one-node-per-line description of prog to w:
//
//	Increment (1)
//	Loop [
//	  Increment (-1)
//	]
func Dump(w io.Writer, prog Program) error {
	return dumpNodes(w, prog, 0)
}

func dumpNodes(w io.Writer, nodes []Node, level int) error {
	indent := strings.Repeat("  ", level)
	for _, n := range nodes {
		var err error
		switch n.Kind {
		case Shift:
			_, err = fmt.Fprintf(w, "%sShift (%d)\n", indent, n.Step)
		case Increment:
			_, err = fmt.Fprintf(w, "%sIncrement (%d)\n", indent, n.Delta)
		case Input:
			_, err = fmt.Fprintf(w, "%sInput\n", indent)
		case Output:
			_, err = fmt.Fprintf(w, "%sOutput\n", indent)
		case Loop:
			if _, err = fmt.Fprintf(w, "%sLoop [\n", indent); err != nil {
				return err
			}
			if err = dumpNodes(w, n.Body, level+1); err != nil {
				return err
			}
			_, err = fmt.Fprintf(w, "%s]\n", indent)
		default:
			_, err = fmt.Fprintf(w, "%s%s\n", indent, n.Kind)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// DumpString returns the Dump output as a string.
func DumpString(prog Program) string {
	var sb strings.Builder
	_ = Dump(&sb, prog) // strings.Builder never fails
	return sb.String()
}
