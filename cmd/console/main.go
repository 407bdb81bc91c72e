package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/llir/llvm/ir"
	"github.com/peterh/liner"
	"github.com/tebeka/atexit"

	"gobf/pkg/compiler"
	"gobf/pkg/utils"
	"gobf/pkg/vm"
)

const (
	historyFile = ".gobf_history"
	promptMain  = "bf> "
	promptCont  = "... "
	promptInput = "? "

	banner = "gobf REPL\nCtrl+C cancels input, Ctrl+D exits. Type :help for commands."
)

func main() {
	showIR := false
	var filename string
	for _, arg := range os.Args[1:] {
		if arg == "--show-ir" {
			showIR = true
			continue
		}
		filename = arg
	}

	if filename == "" {
		atexit.Exit(repl())
	}
	atexit.Exit(runFile(filename, showIR))
}

func runFile(filename string, showIR bool) int {
	source, fullPath, err := utils.ReadSource(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read source file: %v\n", err)
		return 1
	}

	m, err := compiler.Compile(source, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Compilation failed: %v\n", err)
		return 1
	}
	m.SourceFilename = fullPath
	if showIR {
		fmt.Fprintf(os.Stderr, "Generated IR:\n%s\n", m)
	}

	out := bufio.NewWriter(os.Stdout)
	atexit.Register(func() { out.Flush() })

	machine := vm.New(m, vm.NewConsole(os.Stdin, out))
	if err := machine.RunFunc(compiler.DefaultEntry); err != nil {
		fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		return 1
	}
	return int(machine.ExitCode)
}

// linerConsole reads scanf input through the REPL's line editor so prompts
// and program output interleave correctly.
type linerConsole struct {
	ln      *liner.State
	w       io.Writer
	pending []string
}

func (c *linerConsole) ReadInt() (int32, error) {
	for len(c.pending) == 0 {
		line, err := c.ln.Prompt(promptInput)
		if err != nil {
			return 0, io.EOF
		}
		c.pending = strings.Fields(line)
	}
	tok := c.pending[0]
	v, err := strconv.ParseInt(tok, 10, 32)
	if err != nil {
		// Like scanf, a token that does not match stays in the input.
		return 0, fmt.Errorf("not an integer: %q", tok)
	}
	c.pending = c.pending[1:]
	return int32(v), nil
}

// discard drops input left over from a previous entry.
func (c *linerConsole) discard() { c.pending = nil }

func (c *linerConsole) Write(p []byte) (int, error) { return c.w.Write(p) }

type session struct {
	mod     *ir.Module
	sess    *compiler.Session
	machine *vm.Machine
	entries int
}

func newSession(console vm.Console) *session {
	mod := ir.NewModule()
	return &session{
		mod:     mod,
		sess:    compiler.NewSession(mod),
		machine: vm.New(mod, console),
	}
}

// eval compiles src into a fresh function of the shared module and runs it.
func (s *session) eval(src string) error {
	if lc, ok := s.machine.Console.(*linerConsole); ok {
		lc.discard()
	}
	name := fmt.Sprintf("repl.%d", s.entries)
	s.entries++
	if _, err := s.sess.CompileFunc(name, compiler.Parse(src)); err != nil {
		return fmt.Errorf("codegen: %w", err)
	}
	return s.machine.RunFunc(name)
}

func repl() (ret int) {
	fmt.Println(banner)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigc)
	go func() {
		<-sigc
		ln.Close()
		atexit.Exit(130)
	}()

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	s := newSession(&linerConsole{ln: ln, w: os.Stdout})

	for {
		code, ok := readBalanced(ln, promptMain, promptCont)
		if !ok {
			fmt.Println()
			break
		}

		trimmed := strings.TrimSpace(code)
		if trimmed == "" {
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(code, "\n", " "))

		if strings.HasPrefix(trimmed, ":") {
			if handleReplCommand(s, trimmed) {
				return 0
			}
			continue
		}

		if err := s.eval(code); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
	return 0
}

func handleReplCommand(s *session, line string) (exit bool) {
	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case ":quit", ":q":
		return true
	case ":help":
		fmt.Println(`:help          show this message
:quit          exit
:ir            print the module built so far
:tape          print the cursor and the non-zero cells
:reset         clear the tape
:save <file>   write a tape snapshot
:load <file>   restore a tape snapshot`)
	case ":ir":
		fmt.Print(s.mod)
	case ":tape":
		fmt.Println(renderTape(s.machine.Tape()))
	case ":reset":
		s.machine.Reset()
	case ":save", ":load":
		if len(fields) != 2 {
			fmt.Printf("usage: %s <file>\n", fields[0])
			return false
		}
		var err error
		if fields[0] == ":save" {
			err = s.machine.HibernateToFile(fields[1])
		} else {
			err = s.machine.RestoreFromFile(fields[1])
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	default:
		fmt.Println("unknown command. Type :help for a list.")
	}
	return false
}

// renderTape tabulates the cells up to the last one that is non-zero or under
// the cursor, ten per row.
func renderTape(index int32, cells []int32) string {
	last := int(index)
	for i, c := range cells {
		if c != 0 && i > last {
			last = i
		}
	}
	if last >= len(cells) {
		last = len(cells) - 1
	}

	t := table.NewWriter()
	t.SetTitle(fmt.Sprintf("Tape (cursor at %d)", index))
	header := table.Row{""}
	for col := 0; col < 10; col++ {
		header = append(header, col)
	}
	t.AppendHeader(header)
	for base := 0; base <= last; base += 10 {
		row := table.Row{base}
		for i := base; i < base+10 && i < len(cells); i++ {
			cell := strconv.Itoa(int(cells[i]))
			if i == int(index) {
				cell = "[" + cell + "]"
			}
			row = append(row, cell)
		}
		t.AppendRow(row)
	}
	return t.Render()
}

// readBalanced keeps prompting until every "[" typed so far is closed.
func readBalanced(ln *liner.State, prompt, cont string) (string, bool) {
	var b strings.Builder

	for {
		var line string
		var err error
		if b.Len() == 0 {
			line, err = ln.Prompt(prompt)
		} else {
			line, err = ln.Prompt(cont)
		}
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if err != nil {
			return "", true
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		src := b.String()
		if strings.HasPrefix(strings.TrimSpace(src), ":") || compiler.OpenLoops(src) == 0 {
			return src, true
		}
	}
}
