// Package vm interprets the LLVM IR produced by the compiler package. It runs
// one function at a time, one instruction per Step, with printf and scanf
// provided by host functions backed by a Console.
package vm

import (
	"errors"
	"fmt"
	"os"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"gobf/pkg/compiler"
)

var (
	// ErrNoInput is returned by a Console with nothing queued. The machine
	// sets Waiting and retries the same instruction on the next Step.
	ErrNoInput = errors.New("vm: no input available")
	// ErrStepLimit is returned once Steps reaches MaxSteps.
	ErrStepLimit = errors.New("vm: step limit reached")
	// ErrHalted is returned by Step when there is nothing left to run.
	ErrHalted = errors.New("vm: machine halted")

	ErrUnsupported  = errors.New("vm: unsupported")
	ErrUnknownFunc  = errors.New("vm: unknown function")
	ErrOutOfBounds  = errors.New("vm: memory access out of bounds")
	ErrRunning      = errors.New("vm: machine is running")
	ErrNotAPointer  = errors.New("vm: value is not a pointer")
	ErrNoTerminator = errors.New("vm: block has no terminator")
)

// Object is one addressable memory object: a global or an alloca. Every
// integer occupies one slot regardless of its width.
type Object struct {
	Name  string
	Slots []int64
}

func (o *Object) load(off int) (int64, error) {
	if off < 0 || off >= len(o.Slots) {
		return 0, fmt.Errorf("%w: load %s[%d] (size %d)", ErrOutOfBounds, o.Name, off, len(o.Slots))
	}
	return o.Slots[off], nil
}

func (o *Object) store(off int, v int64) error {
	if off < 0 || off >= len(o.Slots) {
		return fmt.Errorf("%w: store %s[%d] (size %d)", ErrOutOfBounds, o.Name, off, len(o.Slots))
	}
	o.Slots[off] = v
	return nil
}

// Value is a runtime value: an integer, or a pointer into Obj when Obj is set.
type Value struct {
	Int int64
	Obj *Object
	Off int
}

func (v Value) IsPointer() bool { return v.Obj != nil }

type frame struct {
	fn     *ir.Func
	block  *ir.Block
	pc     int
	locals map[value.Value]Value
}

// Machine executes functions of Module. Globals are materialized from their
// initializers on first use and keep their contents across runs, so several
// functions sharing the module see the same tape.
type Machine struct {
	Module  *ir.Module
	Console Console

	// MaxSteps bounds execution; zero means unlimited.
	MaxSteps int
	Steps    int

	Halted   bool
	Waiting  bool
	ExitCode int32

	objects map[string]*Object
	frame   *frame
}

// New returns a halted machine over m. A nil console reads stdin and writes
// stdout.
func New(m *ir.Module, console Console) *Machine {
	if console == nil {
		console = NewConsole(os.Stdin, os.Stdout)
	}
	return &Machine{
		Module:  m,
		Console: console,
		Halted:  true,
		objects: make(map[string]*Object),
	}
}

// Reset drops all global memory and any active frame.
func (m *Machine) Reset() {
	m.objects = make(map[string]*Object)
	m.frame = nil
	m.Steps = 0
	m.Halted = true
	m.Waiting = false
	m.ExitCode = 0
}

func (m *Machine) findFunc(name string) *ir.Func {
	for _, f := range m.Module.Funcs {
		if f.Name() == name {
			return f
		}
	}
	return nil
}

// Start prepares fn for execution from its first block.
func (m *Machine) Start(fn string) error {
	f := m.findFunc(fn)
	if f == nil {
		return fmt.Errorf("%w: @%s", ErrUnknownFunc, fn)
	}
	if len(f.Blocks) == 0 {
		return fmt.Errorf("@%s has no body", fn)
	}
	if len(f.Params) > 0 {
		return fmt.Errorf("%w: @%s takes parameters", ErrUnsupported, fn)
	}
	m.frame = &frame{
		fn:     f,
		block:  f.Blocks[0],
		locals: make(map[value.Value]Value),
	}
	m.Halted = false
	m.Waiting = false
	m.ExitCode = 0
	return nil
}

// Step executes one instruction or terminator. When the console has no input
// the machine enters Waiting and Step returns nil without advancing. Any other
// failure halts the machine.
func (m *Machine) Step() error {
	if m.Halted || m.frame == nil {
		return ErrHalted
	}
	if m.MaxSteps > 0 && m.Steps >= m.MaxSteps {
		return ErrStepLimit
	}
	m.Waiting = false

	f := m.frame
	b := f.block
	var err error
	if f.pc < len(b.Insts) {
		if err = m.exec(b.Insts[f.pc]); err == nil {
			f.pc++
		}
	} else if b.Term == nil {
		err = ErrNoTerminator
	} else {
		err = m.term(b.Term)
	}

	if errors.Is(err, ErrNoInput) {
		m.Waiting = true
		return nil
	}
	if err != nil {
		m.Halted = true
		m.frame = nil
		return fmt.Errorf("@%s %%%s: %w", f.fn.Name(), b.Name(), err)
	}
	m.Steps++
	return nil
}

// Run steps until the function returns. A blocked read is reported as
// ErrNoInput since nothing else can supply it.
func (m *Machine) Run() error {
	for !m.Halted {
		if err := m.Step(); err != nil {
			return err
		}
		if m.Waiting {
			return ErrNoInput
		}
	}
	return nil
}

// RunUntilDone steps until the machine halts or waits for input. A machine
// already waiting retries its pending read first.
func (m *Machine) RunUntilDone() error {
	m.Waiting = false
	for !m.Halted && !m.Waiting {
		if err := m.Step(); err != nil {
			return err
		}
	}
	return nil
}

// RunFunc starts fn and runs it to completion.
func (m *Machine) RunFunc(fn string) error {
	if err := m.Start(fn); err != nil {
		return err
	}
	return m.Run()
}

// Tape returns the cursor and a copy of the cells. Globals that were never
// touched read as zero.
func (m *Machine) Tape() (int32, []int32) {
	var index int32
	if o := m.objects[compiler.IndexGlobal]; o != nil && len(o.Slots) > 0 {
		index = int32(o.Slots[0])
	}
	cells := make([]int32, compiler.CellCount)
	if o := m.objects[compiler.CellsGlobal]; o != nil {
		for i := range cells {
			if i < len(o.Slots) {
				cells[i] = int32(o.Slots[i])
			}
		}
	}
	return index, cells
}

// Global returns the slots of a materialized global.
func (m *Machine) Global(name string) ([]int64, bool) {
	o, ok := m.objects[name]
	if !ok {
		return nil, false
	}
	return o.Slots, true
}

// global returns the object backing g, creating it from g's initializer the
// first time it is referenced.
func (m *Machine) global(g *ir.Global) (*Object, error) {
	n, err := slotCount(g.ContentType)
	if err != nil {
		return nil, err
	}
	if o, ok := m.objects[g.Name()]; ok {
		if len(o.Slots) != n {
			return nil, fmt.Errorf("global @%s has %d slots, type needs %d", g.Name(), len(o.Slots), n)
		}
		return o, nil
	}
	if g.Init == nil {
		return nil, fmt.Errorf("%w: external global @%s", ErrUnsupported, g.Name())
	}
	o := &Object{Name: g.Name(), Slots: make([]int64, n)}
	if err := fill(o.Slots, g.Init); err != nil {
		return nil, fmt.Errorf("init @%s: %w", g.Name(), err)
	}
	m.objects[g.Name()] = o
	return o, nil
}

func slotCount(t types.Type) (int, error) {
	switch t := t.(type) {
	case *types.IntType:
		return 1, nil
	case *types.ArrayType:
		n, err := slotCount(t.ElemType)
		if err != nil {
			return 0, err
		}
		return int(t.Len) * n, nil
	}
	return 0, fmt.Errorf("%w: type %s", ErrUnsupported, t)
}

func fill(slots []int64, c constant.Constant) error {
	switch c := c.(type) {
	case *constant.Int:
		slots[0] = c.X.Int64()
	case *constant.ZeroInitializer:
	case *constant.CharArray:
		for i, b := range c.X {
			slots[i] = int64(int8(b))
		}
	case *constant.Array:
		if len(c.Elems) == 0 {
			return nil
		}
		n, err := slotCount(c.Elems[0].Type())
		if err != nil {
			return err
		}
		for i, e := range c.Elems {
			if err := fill(slots[i*n:], e); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: initializer %s", ErrUnsupported, c)
	}
	return nil
}

// wrap truncates v to the width of integer type t, sign-extending the result.
// i1 values stay 0 or 1.
func wrap(v int64, t types.Type) int64 {
	it, ok := t.(*types.IntType)
	if !ok || it.BitSize >= 64 {
		return v
	}
	if it.BitSize == 1 {
		return v & 1
	}
	shift := 64 - it.BitSize
	return v << shift >> shift
}

func (m *Machine) eval(v value.Value) (Value, error) {
	switch v := v.(type) {
	case *constant.Int:
		return Value{Int: v.X.Int64()}, nil
	case *ir.Global:
		o, err := m.global(v)
		if err != nil {
			return Value{}, err
		}
		return Value{Obj: o}, nil
	}
	if r, ok := m.frame.locals[v]; ok {
		return r, nil
	}
	return Value{}, fmt.Errorf("%w: operand %s", ErrUnsupported, v.Ident())
}

func (m *Machine) pointer(v value.Value) (Value, error) {
	p, err := m.eval(v)
	if err != nil {
		return Value{}, err
	}
	if !p.IsPointer() {
		return Value{}, fmt.Errorf("%w: %s", ErrNotAPointer, v.Ident())
	}
	return p, nil
}

func (m *Machine) integer(v value.Value) (int64, error) {
	r, err := m.eval(v)
	if err != nil {
		return 0, err
	}
	if r.IsPointer() {
		return 0, fmt.Errorf("%w: pointer arithmetic on %s", ErrUnsupported, v.Ident())
	}
	return r.Int, nil
}

func (m *Machine) exec(inst ir.Instruction) error {
	locals := m.frame.locals
	switch inst := inst.(type) {
	case *ir.InstAlloca:
		n, err := slotCount(inst.ElemType)
		if err != nil {
			return err
		}
		if inst.NElems != nil {
			count, err := m.integer(inst.NElems)
			if err != nil {
				return err
			}
			n *= int(count)
		}
		locals[inst] = Value{Obj: &Object{Name: "alloca", Slots: make([]int64, n)}}

	case *ir.InstLoad:
		p, err := m.pointer(inst.Src)
		if err != nil {
			return err
		}
		v, err := p.Obj.load(p.Off)
		if err != nil {
			return err
		}
		locals[inst] = Value{Int: v}

	case *ir.InstStore:
		v, err := m.integer(inst.Src)
		if err != nil {
			return err
		}
		p, err := m.pointer(inst.Dst)
		if err != nil {
			return err
		}
		return p.Obj.store(p.Off, wrap(v, inst.Src.Type()))

	case *ir.InstAdd:
		x, y, err := m.operands(inst.X, inst.Y)
		if err != nil {
			return err
		}
		locals[inst] = Value{Int: wrap(x+y, inst.Type())}

	case *ir.InstSub:
		x, y, err := m.operands(inst.X, inst.Y)
		if err != nil {
			return err
		}
		locals[inst] = Value{Int: wrap(x-y, inst.Type())}

	case *ir.InstGetElementPtr:
		p, err := m.gep(inst)
		if err != nil {
			return err
		}
		locals[inst] = p

	case *ir.InstICmp:
		x, y, err := m.operands(inst.X, inst.Y)
		if err != nil {
			return err
		}
		r, err := compare(inst.Pred, x, y)
		if err != nil {
			return err
		}
		locals[inst] = Value{Int: r}

	case *ir.InstCall:
		return m.call(inst)

	default:
		return fmt.Errorf("%w: instruction %T", ErrUnsupported, inst)
	}
	return nil
}

func (m *Machine) operands(a, b value.Value) (int64, int64, error) {
	x, err := m.integer(a)
	if err != nil {
		return 0, 0, err
	}
	y, err := m.integer(b)
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

// gep scales the first index by the whole element type and each further
// index by the element type of the array it steps into.
func (m *Machine) gep(inst *ir.InstGetElementPtr) (Value, error) {
	base, err := m.pointer(inst.Src)
	if err != nil {
		return Value{}, err
	}
	off := base.Off
	t := inst.ElemType
	for i, idx := range inst.Indices {
		iv, err := m.integer(idx)
		if err != nil {
			return Value{}, err
		}
		if i > 0 {
			arr, ok := t.(*types.ArrayType)
			if !ok {
				return Value{}, fmt.Errorf("%w: getelementptr into %s", ErrUnsupported, t)
			}
			t = arr.ElemType
		}
		n, err := slotCount(t)
		if err != nil {
			return Value{}, err
		}
		off += int(iv) * n
	}
	return Value{Obj: base.Obj, Off: off}, nil
}

func compare(pred enum.IPred, x, y int64) (int64, error) {
	var r bool
	switch pred {
	case enum.IPredEQ:
		r = x == y
	case enum.IPredNE:
		r = x != y
	case enum.IPredSGT:
		r = x > y
	case enum.IPredSGE:
		r = x >= y
	case enum.IPredSLT:
		r = x < y
	case enum.IPredSLE:
		r = x <= y
	default:
		return 0, fmt.Errorf("%w: icmp %v", ErrUnsupported, pred)
	}
	if r {
		return 1, nil
	}
	return 0, nil
}

func (m *Machine) call(inst *ir.InstCall) error {
	callee, ok := inst.Callee.(*ir.Func)
	if !ok {
		return fmt.Errorf("%w: indirect call", ErrUnsupported)
	}
	host, ok := lookupHost(callee.Name())
	if !ok {
		if len(callee.Blocks) > 0 {
			return fmt.Errorf("%w: call to defined function @%s", ErrUnsupported, callee.Name())
		}
		return fmt.Errorf("%w: @%s", ErrUnknownFunc, callee.Name())
	}
	args := make([]Value, len(inst.Args))
	for i, a := range inst.Args {
		v, err := m.eval(a)
		if err != nil {
			return err
		}
		args[i] = v
	}
	ret, err := host(m, args)
	if err != nil {
		return err
	}
	m.frame.locals[inst] = Value{Int: wrap(ret, inst.Type())}
	return nil
}

func asBlock(target interface{}) (*ir.Block, error) {
	b, ok := target.(*ir.Block)
	if !ok || b == nil {
		return nil, fmt.Errorf("%w: branch target %v", ErrUnsupported, target)
	}
	return b, nil
}

func (m *Machine) jump(target interface{}) error {
	b, err := asBlock(target)
	if err != nil {
		return err
	}
	m.frame.block = b
	m.frame.pc = 0
	return nil
}

func (m *Machine) term(t ir.Terminator) error {
	switch t := t.(type) {
	case *ir.TermBr:
		return m.jump(t.Target)

	case *ir.TermCondBr:
		c, err := m.integer(t.Cond)
		if err != nil {
			return err
		}
		if c != 0 {
			return m.jump(t.TargetTrue)
		}
		return m.jump(t.TargetFalse)

	case *ir.TermRet:
		if t.X != nil {
			v, err := m.integer(t.X)
			if err != nil {
				return err
			}
			m.ExitCode = int32(v)
		}
		m.frame = nil
		m.Halted = true
		return nil
	}
	return fmt.Errorf("%w: terminator %T", ErrUnsupported, t)
}
