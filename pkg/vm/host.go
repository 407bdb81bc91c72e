package vm

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
)

// Console is the machine's standard input and output.
type Console interface {
	// ReadInt reads one decimal integer. It returns io.EOF at end of input
	// and ErrNoInput when input may still arrive later.
	ReadInt() (int32, error)
	Write(p []byte) (int, error)
}

type streamConsole struct {
	r *bufio.Reader
	w io.Writer
}

// NewConsole returns a blocking Console over a pair of streams.
func NewConsole(r io.Reader, w io.Writer) Console {
	return &streamConsole{r: bufio.NewReader(r), w: w}
}

func (c *streamConsole) ReadInt() (int32, error) {
	var v int32
	if _, err := fmt.Fscan(c.r, &v); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, io.EOF
		}
		return 0, err
	}
	return v, nil
}

func (c *streamConsole) Write(p []byte) (int, error) { return c.w.Write(p) }

// QueueConsole is a non-blocking Console for hosts that feed input as it
// arrives, such as a GUI. Output accumulates in Out.
type QueueConsole struct {
	Out bytes.Buffer

	in     []int32
	closed bool
}

func (q *QueueConsole) PushInt(v int32) { q.in = append(q.in, v) }

// Close marks the end of input; reads from an empty queue then return io.EOF.
func (q *QueueConsole) Close() { q.closed = true }

func (q *QueueConsole) Pending() int { return len(q.in) }

func (q *QueueConsole) ReadInt() (int32, error) {
	if len(q.in) == 0 {
		if q.closed {
			return 0, io.EOF
		}
		return 0, ErrNoInput
	}
	v := q.in[0]
	q.in = q.in[1:]
	return v, nil
}

func (q *QueueConsole) Write(p []byte) (int, error) { return q.Out.Write(p) }

// HostFunc implements an external function. Returning ErrNoInput parks the
// machine on the call so it can be retried.
type HostFunc func(m *Machine, args []Value) (int64, error)

var hostRegistry = map[string]HostFunc{
	"printf": hostPrintf,
	"scanf":  hostScanf,
}

// RegisterHost makes fn callable as @name from every machine.
func RegisterHost(name string, fn HostFunc) {
	hostRegistry[name] = fn
}

func lookupHost(name string) (HostFunc, bool) {
	fn, ok := hostRegistry[name]
	return fn, ok
}

// CString reads a NUL-terminated string starting at p.
func (m *Machine) CString(p Value) (string, error) {
	if !p.IsPointer() {
		return "", ErrNotAPointer
	}
	var out []byte
	for off := p.Off; ; off++ {
		c, err := p.Obj.load(off)
		if err != nil {
			return "", fmt.Errorf("unterminated string in %s: %w", p.Obj.Name, err)
		}
		if c == 0 {
			return string(out), nil
		}
		out = append(out, byte(c))
	}
}

func hostPrintf(m *Machine, args []Value) (int64, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("printf: missing format")
	}
	format, err := m.CString(args[0])
	if err != nil {
		return 0, fmt.Errorf("printf: %w", err)
	}
	out, err := formatC(format, args[1:])
	if err != nil {
		return 0, fmt.Errorf("printf: %w", err)
	}
	n, err := m.Console.Write(out)
	return int64(n), err
}

// formatC expands the %c, %d and %% directives of a C format string. %c
// writes the low byte of its argument unchanged.
func formatC(format string, args []Value) ([]byte, error) {
	out := make([]byte, 0, len(format)+8)
	next := 0
	for i := 0; i < len(format); i++ {
		ch := format[i]
		if ch != '%' {
			out = append(out, ch)
			continue
		}
		i++
		if i >= len(format) {
			return nil, fmt.Errorf("%w: trailing %%", ErrUnsupported)
		}
		verb := format[i]
		if verb == '%' {
			out = append(out, '%')
			continue
		}
		if next >= len(args) {
			return nil, fmt.Errorf("missing argument for %%%c", verb)
		}
		arg := args[next]
		next++
		switch verb {
		case 'c':
			out = append(out, byte(arg.Int))
		case 'd':
			out = strconv.AppendInt(out, int64(int32(arg.Int)), 10)
		default:
			return nil, fmt.Errorf("%w: %%%c", ErrUnsupported, verb)
		}
	}
	return out, nil
}

// hostScanf handles formats made of %d directives. Like C it returns the
// number of items stored, or -1 if input ended before the first one.
func hostScanf(m *Machine, args []Value) (int64, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("scanf: missing format")
	}
	format, err := m.CString(args[0])
	if err != nil {
		return 0, fmt.Errorf("scanf: %w", err)
	}

	var stored int64
	next := 1
	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			continue
		}
		i++
		if i >= len(format) || format[i] != 'd' {
			return 0, fmt.Errorf("scanf: %w: format %q", ErrUnsupported, format)
		}
		if next >= len(args) {
			return 0, fmt.Errorf("scanf: missing argument for %%d")
		}
		dst := args[next]
		next++

		v, err := m.Console.ReadInt()
		switch {
		case errors.Is(err, ErrNoInput) && stored == 0:
			return 0, ErrNoInput
		case errors.Is(err, io.EOF):
			if stored == 0 {
				return -1, nil
			}
			return stored, nil
		case err != nil:
			slog.Debug("scanf matching failure", slog.Any("err", err))
			return stored, nil
		}
		if !dst.IsPointer() {
			return 0, fmt.Errorf("scanf: %w", ErrNotAPointer)
		}
		if err := dst.Obj.store(dst.Off, int64(v)); err != nil {
			return 0, fmt.Errorf("scanf: %w", err)
		}
		stored++
	}
	return stored, nil
}
