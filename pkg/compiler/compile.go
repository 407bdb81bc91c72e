package compiler

import (
	"fmt"
	"log/slog"

	"github.com/llir/llvm/ir"
)

// DefaultEntry is the function Compile defines when no other name is given.
const DefaultEntry = "main"

// Compile runs the whole pipeline over src and returns a fresh module whose
// function entry (DefaultEntry when empty) executes the program and returns 0.
func Compile(src string, entry string) (*ir.Module, error) {
	if entry == "" {
		entry = DefaultEntry
	}

	tokens := Lex(src)
	prog := NewParser(tokens).ParseProgram()

	st := Analyze(prog)
	slog.Debug("parsed program",
		slog.Int("tokens", len(tokens)-1),
		slog.Int("leaves", st.Leaves),
		slog.Int("loops", st.Loops),
		slog.Int("max_depth", st.MaxDepth),
	)

	m := ir.NewModule()
	sess := NewSession(m)
	f, err := sess.CompileFunc(entry, prog)
	if err != nil {
		return nil, fmt.Errorf("codegen: %w", err)
	}

	slog.Debug("generated function",
		slog.String("name", f.Name()),
		slog.Int("blocks", len(f.Blocks)),
		slog.Int("globals", len(m.Globals)),
	)
	return m, nil
}
