package compiler

import (
	"strings"
	"testing"

	"github.com/llir/llvm/ir"
)

// simpleSource prints "A".
const simpleSource = "++++++++[>++++++++<-]>+."

// complexSource is a larger program with deep nesting, I/O and comments.
var complexSource = strings.Repeat(`
read two numbers  ,>,<
add them          [->+<]
copy and print    >[->+>+<<]>>[-<<+>>]<.
nest              +++[>++[>+++[>+<-]<-]<-]
`, 20)

// --- Lex benchmarks ---

func BenchmarkLex_Simple(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		Lex(simpleSource)
	}
}

func BenchmarkLex_Complex(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		Lex(complexSource)
	}
}

// --- Parse benchmarks ---
// Tokens are pre-computed outside the timed region.

func BenchmarkParse_Simple(b *testing.B) {
	tokens := Lex(simpleSource)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		NewParser(tokens).ParseProgram()
	}
}

func BenchmarkParse_Complex(b *testing.B) {
	tokens := Lex(complexSource)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		NewParser(tokens).ParseProgram()
	}
}

// --- Generate benchmarks ---
// The tree is pre-computed outside the timed region.

func BenchmarkGenerate_Simple(b *testing.B) {
	prog := Parse(simpleSource)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := NewSession(ir.NewModule()).CompileFunc("main", prog); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkGenerate_Complex(b *testing.B) {
	prog := Parse(complexSource)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := NewSession(ir.NewModule()).CompileFunc("main", prog); err != nil {
			b.Fatal(err)
		}
	}
}

// --- Full pipeline ---

func BenchmarkCompile_Complex(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		m, err := Compile(complexSource, "")
		if err != nil {
			b.Fatal(err)
		}
		_ = m.String()
	}
}
