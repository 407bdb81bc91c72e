package main

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"

	"gobf/pkg/compiler"
	"gobf/pkg/utils"
)

const testSource = `++++++++[>++++++++<-]>+.  print A
,[.,]                       echo until a zero
`

func main() {
	src := testSource
	if len(os.Args) > 1 {
		data, _, err := utils.ReadSource(os.Args[1])
		if err != nil {
			fmt.Fprintln(os.Stderr, "read error:", err)
			os.Exit(1)
		}
		src = data
	}

	fmt.Printf("Source:\n%s\n", src)

	// Lex
	tokens := compiler.Lex(src)
	tokTable := table.NewWriter()
	tokTable.SetTitle(fmt.Sprintf("Tokens (%d)", len(tokens)-1))
	tokTable.AppendHeader(table.Row{"#", "Type", "Lexeme", "Line", "Col"})
	for i, tok := range tokens {
		if tok.Type == compiler.EOF {
			break
		}
		tokTable.AppendRow(table.Row{i, tok.Type, tok.Lexeme, tok.Line, tok.Col})
	}
	fmt.Println(tokTable.Render())
	fmt.Println()

	// Parse
	prog := compiler.NewParser(tokens).ParseProgram()
	fmt.Println("AST")
	if err := compiler.Dump(os.Stdout, prog); err != nil {
		fmt.Fprintln(os.Stderr, "dump error:", err)
		os.Exit(1)
	}
	fmt.Println()

	st := compiler.Analyze(prog)
	statTable := table.NewWriter()
	statTable.SetTitle("Stats")
	statTable.AppendHeader(table.Row{"Leaves", "Loops", "Max depth", "Inputs", "Outputs"})
	statTable.AppendRow(table.Row{st.Leaves, st.Loops, st.MaxDepth, st.Inputs, st.Outputs})
	fmt.Println(statTable.Render())
	fmt.Println()

	// code Generation
	m, err := compiler.Compile(src, "")
	if err != nil {
		fmt.Fprintln(os.Stderr, "codegen error:", err)
		os.Exit(1)
	}

	fmt.Println("Generated IR")
	fmt.Print(m)
	fmt.Println()
}
