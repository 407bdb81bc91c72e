package vm

import (
	"bytes"
	"io"
	"strings"

	"github.com/golang/mock/gomock"
	"github.com/llir/llvm/asm"
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"gobf/pkg/compiler"
)

func mustCompile(src string) *ir.Module {
	m, err := compiler.Compile(src, "")
	Expect(err).NotTo(HaveOccurred())
	return m
}

var _ = Describe("Machine", func() {
	var console *QueueConsole

	BeforeEach(func() {
		console = &QueueConsole{}
	})

	run := func(src string) *Machine {
		m := New(mustCompile(src), console)
		Expect(m.RunFunc(compiler.DefaultEntry)).To(Succeed())
		return m
	}

	Context("Programs", func() {
		It("should print A", func() {
			m := run("++++++++[>++++++++<-]>+.")
			Expect(console.Out.String()).To(Equal("A\n"))
			Expect(m.Halted).To(BeTrue())
			Expect(m.ExitCode).To(Equal(int32(0)))

			index, cells := m.Tape()
			Expect(index).To(Equal(int32(1)))
			Expect(cells[0]).To(Equal(int32(0)))
			Expect(cells[1]).To(Equal(int32(65)))
		})

		It("should clear a cell with [-]", func() {
			m := run("+++[-]")
			_, cells := m.Tape()
			Expect(cells[0]).To(Equal(int32(0)))
		})

		It("should skip a loop over a negative cell", func() {
			m := run("-[+]")
			_, cells := m.Tape()
			Expect(cells[0]).To(Equal(int32(-1)))
		})

		It("should skip a loop over a zero cell", func() {
			run("[+++].")
			Expect(console.Out.Bytes()).To(Equal([]byte{0, '\n'}))
		})

		It("should ignore a stray closing bracket", func() {
			run("+]+.")
			Expect(console.Out.Bytes()).To(Equal([]byte{2, '\n'}))
		})

		It("should add two numbers read from input", func() {
			console.PushInt(30)
			console.PushInt(35)
			run(",>,<[->+<]>.")
			Expect(console.Out.String()).To(Equal("A\n"))
		})

		It("should store the untouched scratch slot at end of input", func() {
			console.PushInt(5)
			console.Close()
			m := run("+,>+,")
			_, cells := m.Tape()
			Expect(cells[:2]).To(Equal([]int32{5, 5}))
		})

		It("should read zero when input is empty from the start", func() {
			console.Close()
			m := run("+,")
			_, cells := m.Tape()
			Expect(cells[0]).To(Equal(int32(0)))
		})
	})

	Context("Waiting for input", func() {
		It("should park on scanf and resume once input arrives", func() {
			m := New(mustCompile(",."), console)
			Expect(m.Start(compiler.DefaultEntry)).To(Succeed())

			Expect(m.RunUntilDone()).To(Succeed())
			Expect(m.Waiting).To(BeTrue())
			Expect(m.Halted).To(BeFalse())
			steps := m.Steps

			// Still nothing queued: no progress.
			Expect(m.Step()).To(Succeed())
			Expect(m.Waiting).To(BeTrue())
			Expect(m.Steps).To(Equal(steps))

			console.PushInt(66)
			Expect(m.RunUntilDone()).To(Succeed())
			Expect(m.Halted).To(BeTrue())
			Expect(console.Out.String()).To(Equal("B\n"))
		})

		It("should stay parked when resumed without input", func() {
			m := New(mustCompile(",."), console)
			Expect(m.Start(compiler.DefaultEntry)).To(Succeed())
			Expect(m.RunUntilDone()).To(Succeed())
			steps := m.Steps

			Expect(m.RunUntilDone()).To(Succeed())
			Expect(m.Waiting).To(BeTrue())
			Expect(m.Halted).To(BeFalse())
			Expect(m.Steps).To(Equal(steps))

			console.PushInt(67)
			Expect(m.RunUntilDone()).To(Succeed())
			Expect(m.Waiting).To(BeFalse())
			Expect(m.Halted).To(BeTrue())
			Expect(console.Out.String()).To(Equal("C\n"))
		})

		It("should report ErrNoInput from Run", func() {
			m := New(mustCompile(","), console)
			Expect(m.RunFunc(compiler.DefaultEntry)).To(MatchError(ErrNoInput))
			Expect(m.Waiting).To(BeTrue())
		})
	})

	Context("Console", func() {
		var (
			mockCtrl *gomock.Controller
			mock     *MockConsole
		)

		BeforeEach(func() {
			mockCtrl = gomock.NewController(GinkgoT())
			mock = NewMockConsole(mockCtrl)
		})

		AfterEach(func() {
			mockCtrl.Finish()
		})

		It("should write the low byte followed by a newline", func() {
			mock.EXPECT().Write([]byte{1, '\n'}).Return(2, nil)

			m := New(mustCompile("+."), mock)
			Expect(m.RunFunc(compiler.DefaultEntry)).To(Succeed())
		})

		It("should store what scanf reads", func() {
			gomock.InOrder(
				mock.EXPECT().ReadInt().Return(int32(7), nil),
				mock.EXPECT().Write([]byte{8, '\n'}).Return(2, nil),
			)

			m := New(mustCompile(",+."), mock)
			Expect(m.RunFunc(compiler.DefaultEntry)).To(Succeed())
		})

		It("should halt when the console fails to write", func() {
			mock.EXPECT().Write(gomock.Any()).Return(0, io.ErrClosedPipe)

			m := New(mustCompile("."), mock)
			Expect(m.RunFunc(compiler.DefaultEntry)).To(MatchError(io.ErrClosedPipe))
			Expect(m.Halted).To(BeTrue())
		})
	})

	Context("Shared module", func() {
		It("should keep the tape across functions", func() {
			mod := ir.NewModule()
			sess := compiler.NewSession(mod)
			_, err := sess.CompileFunc("first", compiler.Parse("+++>+"))
			Expect(err).NotTo(HaveOccurred())
			_, err = sess.CompileFunc("second", compiler.Parse("<."))
			Expect(err).NotTo(HaveOccurred())

			m := New(mod, console)
			Expect(m.RunFunc("first")).To(Succeed())
			Expect(m.RunFunc("second")).To(Succeed())

			Expect(console.Out.Bytes()).To(Equal([]byte{3, '\n'}))
			index, cells := m.Tape()
			Expect(index).To(Equal(int32(0)))
			Expect(cells[:2]).To(Equal([]int32{3, 1}))
		})

		It("should forget everything on Reset", func() {
			m := run("+++>")
			m.Reset()
			index, cells := m.Tape()
			Expect(index).To(Equal(int32(0)))
			Expect(cells).To(HaveEach(int32(0)))
			Expect(m.Steps).To(Equal(0))
		})
	})

	Context("Errors", func() {
		It("should reject unknown functions", func() {
			m := New(mustCompile(""), console)
			Expect(m.Start("nope")).To(MatchError(ErrUnknownFunc))
		})

		It("should refuse to step when halted", func() {
			m := New(mustCompile(""), console)
			Expect(m.Step()).To(MatchError(ErrHalted))
		})

		It("should trap out-of-bounds cell access", func() {
			m := New(mustCompile("<+"), console)
			Expect(m.RunFunc(compiler.DefaultEntry)).To(MatchError(ErrOutOfBounds))
			Expect(m.Halted).To(BeTrue())
		})

		It("should stop at the step limit", func() {
			m := New(mustCompile("+[]"), console)
			m.MaxSteps = 1000
			Expect(m.RunFunc(compiler.DefaultEntry)).To(MatchError(ErrStepLimit))
			Expect(m.Steps).To(Equal(1000))
		})
	})

	Context("Host functions", func() {
		It("should call registered hosts and return the exit code", func() {
			var got []int64
			RegisterHost("test.record", func(_ *Machine, args []Value) (int64, error) {
				got = append(got, args[0].Int)
				return 0, nil
			})

			mod := ir.NewModule()
			record := mod.NewFunc("test.record", types.I32, ir.NewParam("v", types.I32))
			f := mod.NewFunc("main", types.I32)
			b := f.NewBlock("entry")
			b.NewCall(record, constant.NewInt(types.I32, 72))
			b.NewRet(constant.NewInt(types.I32, 5))

			m := New(mod, console)
			Expect(m.RunFunc("main")).To(Succeed())
			Expect(got).To(Equal([]int64{72}))
			Expect(m.ExitCode).To(Equal(int32(5)))
		})

		It("should fail on undeclared hosts", func() {
			mod := ir.NewModule()
			ext := mod.NewFunc("missing.host", types.I32)
			f := mod.NewFunc("main", types.I32)
			b := f.NewBlock("entry")
			b.NewCall(ext)
			b.NewRet(constant.NewInt(types.I32, 0))

			m := New(mod, console)
			Expect(m.RunFunc("main")).To(MatchError(ErrUnknownFunc))
		})
	})

	Context("Textual IR", func() {
		It("should run a module parsed back from its .ll form", func() {
			text := mustCompile("++++++++[>++++++++<-]>+.").String()
			mod, err := asm.ParseString("prog.ll", text)
			Expect(err).NotTo(HaveOccurred())

			m := New(mod, console)
			Expect(m.RunFunc(compiler.DefaultEntry)).To(Succeed())
			Expect(console.Out.String()).To(Equal("A\n"))
		})
	})
})

var _ = Describe("formatC", func() {
	It("should expand the supported directives", func() {
		out, err := formatC("%d|%c|%%", []Value{{Int: -5}, {Int: 'x'}})
		Expect(err).NotTo(HaveOccurred())
		Expect(string(out)).To(Equal("-5|x|%"))
	})

	It("should write only the low byte for %c", func() {
		out, err := formatC("%c", []Value{{Int: 0x141}})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal([]byte{0x41}))
	})

	It("should reject other verbs", func() {
		_, err := formatC("%s", []Value{{Int: 1}})
		Expect(err).To(MatchError(ErrUnsupported))
	})

	It("should reject missing arguments", func() {
		_, err := formatC("%d", nil)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("NewConsole", func() {
	It("should read whitespace separated integers until EOF", func() {
		var out bytes.Buffer
		c := NewConsole(strings.NewReader("12\n -3 "), &out)

		v, err := c.ReadInt()
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(int32(12)))

		v, err = c.ReadInt()
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(int32(-3)))

		_, err = c.ReadInt()
		Expect(err).To(MatchError(io.EOF))

		_, err = c.Write([]byte("ok"))
		Expect(err).NotTo(HaveOccurred())
		Expect(out.String()).To(Equal("ok"))
	})
})
