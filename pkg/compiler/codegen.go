package compiler

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// Names and shape of the module-level state shared by all generated code.
const (
	IndexGlobal        = "brainf.index"
	CellsGlobal        = "brainf.cells"
	ScanfFormatGlobal  = "brainf.scanf.format"
	PrintfFormatGlobal = "brainf.printf.format"

	CellCount = 100

	scanfFormat  = "%d"
	printfFormat = "%c\n"
)

var cellsType = types.NewArray(CellCount, types.I32)

// Session lowers programs into one LLVM module. It owns the cursor and cell
// array globals and the runtime declarations, creating each at most once and
// reusing whatever an earlier session already put in the module.
//
// A Session is not safe for concurrent use, and only one session should
// emit into a given module at a time.
type Session struct {
	m *ir.Module

	index *ir.Global // i32 cursor
	cells *ir.Global // [100 x i32]

	scanf, printf             *ir.Func
	scanfFormat, printfFormat *ir.Global

	scratch *ir.InstAlloca // scanf destination for the current Generate call
}

func NewSession(m *ir.Module) *Session {
	return &Session{m: m}
}

// Module returns the module the session emits into.
func (s *Session) Module() *ir.Module { return s.m }

func i32(v int64) *constant.Int { return constant.NewInt(types.I32, v) }

func (s *Session) findGlobal(name string) *ir.Global {
	for _, g := range s.m.Globals {
		if g.Name() == name {
			return g
		}
	}
	return nil
}

func (s *Session) findFunc(name string) *ir.Func {
	for _, f := range s.m.Funcs {
		if f.Name() == name {
			return f
		}
	}
	return nil
}

// ensureState declares @brainf.index and @brainf.cells on first use. Weak
// linkage lets several translation units define them and keep one copy.
func (s *Session) ensureState() {
	if s.index == nil {
		if s.index = s.findGlobal(IndexGlobal); s.index == nil {
			s.index = s.m.NewGlobalDef(IndexGlobal, i32(0))
			s.index.Linkage = enum.LinkageWeak
		}
	}
	if s.cells == nil {
		if s.cells = s.findGlobal(CellsGlobal); s.cells == nil {
			s.cells = s.m.NewGlobalDef(CellsGlobal, constant.NewZeroInitializer(cellsType))
			s.cells.Linkage = enum.LinkageWeak
		}
	}
}

// runtimeFunc returns the variadic `i32 name(i8*, ...)` declaration, adding it
// to the module if needed.
func (s *Session) runtimeFunc(name string) *ir.Func {
	if f := s.findFunc(name); f != nil {
		return f
	}
	f := s.m.NewFunc(name, types.I32, ir.NewParam("format", types.I8Ptr))
	f.Sig.Variadic = true
	return f
}

// formatString returns the private NUL-terminated constant holding text.
func (s *Session) formatString(name, text string) *ir.Global {
	if g := s.findGlobal(name); g != nil {
		return g
	}
	g := s.m.NewGlobalDef(name, constant.NewCharArrayFromString(text+"\x00"))
	g.Immutable = true
	g.Linkage = enum.LinkagePrivate
	g.UnnamedAddr = enum.UnnamedAddrUnnamedAddr
	return g
}

func (s *Session) scanfDecl() (*ir.Func, *ir.Global) {
	if s.scanf == nil {
		s.scanf = s.runtimeFunc("scanf")
		s.scanfFormat = s.formatString(ScanfFormatGlobal, scanfFormat)
	}
	return s.scanf, s.scanfFormat
}

func (s *Session) printfDecl() (*ir.Func, *ir.Global) {
	if s.printf == nil {
		s.printf = s.runtimeFunc("printf")
		s.printfFormat = s.formatString(PrintfFormatGlobal, printfFormat)
	}
	return s.printf, s.printfFormat
}

// cstr returns an i8* to the first character of a string global.
func cstr(b *ir.Block, g *ir.Global) value.Value {
	return b.NewGetElementPtr(g.ContentType, g, i32(0), i32(0))
}

// cellPtr loads the cursor and returns the address of the current cell.
func (s *Session) cellPtr(b *ir.Block) value.Value {
	idx := b.NewLoad(types.I32, s.index)
	return b.NewGetElementPtr(cellsType, s.cells, i32(0), idx)
}

// Generate emits prog into b, which must belong to a function and have no
// terminator yet. It returns the block where code following prog continues;
// that is b itself unless prog contains a loop.
func (s *Session) Generate(prog Program, b *ir.Block) *ir.Block {
	s.ensureState()

	s.scratch = nil
	if Analyze(prog).Inputs > 0 {
		// b dominates every block generated below, so one slot serves every
		// Input in prog.
		s.scratch = b.NewAlloca(types.I32)
	}
	return s.genNodes(prog, b)
}

func (s *Session) genNodes(nodes []Node, b *ir.Block) *ir.Block {
	for _, n := range nodes {
		b = s.genNode(n, b)
	}
	return b
}

func (s *Session) genNode(n Node, b *ir.Block) *ir.Block {
	switch n.Kind {
	case Shift:
		idx := b.NewLoad(types.I32, s.index)
		b.NewStore(b.NewAdd(idx, i32(int64(n.Step))), s.index)

	case Increment:
		ptr := s.cellPtr(b)
		v := b.NewLoad(types.I32, ptr)
		b.NewStore(b.NewAdd(v, i32(int64(n.Delta))), ptr)

	case Input:
		scanf, format := s.scanfDecl()
		tmp := s.scratch
		if tmp == nil {
			tmp = b.NewAlloca(types.I32)
		}
		b.NewCall(scanf, cstr(b, format), tmp)
		b.NewStore(b.NewLoad(types.I32, tmp), s.cellPtr(b))

	case Output:
		printf, format := s.printfDecl()
		v := b.NewLoad(types.I32, s.cellPtr(b))
		b.NewCall(printf, cstr(b, format), v)

	case Loop:
		return s.genLoop(n.Body, b)

	default:
		panic(fmt.Sprintf("compiler: unknown node kind %d", n.Kind))
	}
	return b
}

// genLoop lowers a loop into three blocks:
//
//	start: cell > 0 ? body : end
//	body:  ...children...; br start
//	end:   (returned; code after the loop goes here)
func (s *Session) genLoop(body []Node, b *ir.Block) *ir.Block {
	f := b.Parent
	id := len(f.Blocks)
	start := f.NewBlock(fmt.Sprintf("loop%d.start", id))
	bodyBlock := f.NewBlock(fmt.Sprintf("loop%d.body", id))
	end := f.NewBlock(fmt.Sprintf("loop%d.end", id))

	b.NewBr(start)

	cell := start.NewLoad(types.I32, s.cellPtr(start))
	cond := start.NewICmp(enum.IPredSGT, cell, i32(0))
	start.NewCondBr(cond, bodyBlock, end)

	last := s.genNodes(body, bodyBlock)
	last.NewBr(start)

	return end
}

// reservedNames are the identifiers generated code defines or calls itself.
var reservedNames = map[string]bool{
	IndexGlobal:        true,
	CellsGlobal:        true,
	ScanfFormatGlobal:  true,
	PrintfFormatGlobal: true,
	"scanf":            true,
	"printf":           true,
}

// CompileFunc defines `i32 @name()` in the session's module, generates prog
// into it and returns 0 from the last block.
func (s *Session) CompileFunc(name string, prog Program) (*ir.Func, error) {
	if name == "" {
		return nil, fmt.Errorf("function name must not be empty")
	}
	if reservedNames[name] {
		return nil, fmt.Errorf("%q is reserved for the runtime", name)
	}
	if f := s.findFunc(name); f != nil {
		return nil, fmt.Errorf("function %q already defined", name)
	}
	if g := s.findGlobal(name); g != nil {
		return nil, fmt.Errorf("%q is already a global", name)
	}
	f := s.m.NewFunc(name, types.I32)
	entry := f.NewBlock("entry")
	last := s.Generate(prog, entry)
	last.NewRet(i32(0))
	return f, nil
}
