package main

import (
	"fmt"
	"image/color"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"golang.org/x/image/colornames"

	"gobf/pkg/compiler"
	"gobf/pkg/grid"
	"gobf/pkg/utils"
	"gobf/pkg/vm"
)

const (
	cols      = 10
	cellSize  = 44
	cellGap   = 4
	stepBurst = 10000
)

var (
	panelTop = grid.Rows(compiler.CellCount, cols)*(cellSize+cellGap) + 8
	screenW  = cols * (cellSize + cellGap)
	screenH  = panelTop + 160
)

var (
	colorBackground = colornames.Black
	colorZero       = colornames.Darkslategray
	colorPositive   = colornames.Seagreen
	colorNegative   = colornames.Firebrick
	colorCursor     = colornames.Gold
)

type Game struct {
	vm      *vm.Machine
	console *vm.QueueConsole
	input   string // digits typed but not yet submitted
	err     error
	canvas  *ebiten.Image // reused cell tile
}

func (g *Game) Update() error {
	g.handleInput()
	g.stepVM()
	return nil
}

func (g *Game) handleInput() {
	for _, r := range ebiten.AppendInputChars(nil) {
		if (r >= '0' && r <= '9') || (r == '-' && g.input == "") {
			g.input += string(r)
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyBackspace) && g.input != "" {
		g.input = g.input[:len(g.input)-1]
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEnter) {
		if v, err := strconv.ParseInt(g.input, 10, 32); err == nil {
			g.console.PushInt(int32(v))
		}
		g.input = ""
	}
}

// stepVM runs a burst of instructions, stopping early when the program
// halts, fails or needs input.
func (g *Game) stepVM() {
	for i := 0; i < stepBurst; i++ {
		if g.vm.Halted {
			break
		}
		if err := g.vm.Step(); err != nil {
			g.err = err
			break
		}
		if g.vm.Waiting {
			break
		}
	}
}

func cellColor(v int32) color.Color {
	switch {
	case v > 0:
		return colorPositive
	case v < 0:
		return colorNegative
	}
	return colorZero
}

func (g *Game) drawTape(screen *ebiten.Image) {
	if g.canvas == nil {
		g.canvas = ebiten.NewImage(cellSize, cellSize)
	}

	index, cells := g.vm.Tape()
	for i, v := range cells {
		px, py := grid.CellOrigin(i, cols, cellSize, cellGap)

		if i == int(index) {
			g.canvas.Fill(colorCursor)
		} else {
			g.canvas.Fill(cellColor(v))
		}
		op := &ebiten.DrawImageOptions{}
		op.GeoM.Translate(float64(px), float64(py))
		screen.DrawImage(g.canvas, op)

		ebitenutil.DebugPrintAt(screen, strconv.Itoa(int(v)), px+2, py+2)
	}
}

// lastLines returns at most n trailing lines of s.
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

func (g *Game) status() string {
	switch {
	case g.err != nil:
		return "error: " + g.err.Error()
	case g.vm.Halted:
		return fmt.Sprintf("halted after %d steps (exit %d)", g.vm.Steps, g.vm.ExitCode)
	case g.vm.Waiting:
		return "input> " + g.input + "_"
	}
	return fmt.Sprintf("running: %d steps", g.vm.Steps)
}

func (g *Game) Draw(screen *ebiten.Image) {
	screen.Fill(colorBackground)
	g.drawTape(screen)

	ebitenutil.DebugPrintAt(screen, g.status(), 4, panelTop)
	ebitenutil.DebugPrintAt(screen, lastLines(printable(g.console.Out.String()), 8), 4, panelTop+20)
}

// printable replaces control bytes other than newline so the debug font can
// show them.
func printable(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || (r >= 0x20 && r < 0x7f) {
			return r
		}
		return '.'
	}, s)
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return screenW, screenH
}

// parseArgs takes the program file from the first argument; --show-ir may
// follow anywhere after it.
func parseArgs(args []string) (filename string, showIR, ok bool) {
	if len(args) == 0 {
		return "", false, false
	}
	for _, arg := range args[1:] {
		if arg == "--show-ir" {
			showIR = true
		}
	}
	return args[0], showIR, true
}

func main() {
	filename, showIR, ok := parseArgs(os.Args[1:])
	if !ok {
		log.Fatalf("usage: %s <file> [--show-ir]", os.Args[0])
	}

	source, fullPath, err := utils.ReadSource(filename)
	if err != nil {
		log.Fatalf("Failed to read source file: %v", err)
	}

	m, err := compiler.Compile(source, "")
	if err != nil {
		log.Fatalf("Compilation failed: %v", err)
	}
	m.SourceFilename = fullPath
	if showIR {
		print("Generated IR:\n", m.String(), "\n")
	}

	console := &vm.QueueConsole{}
	machine := vm.New(m, console)
	if err := machine.Start(compiler.DefaultEntry); err != nil {
		log.Fatalf("Start failed: %v", err)
	}

	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSize(screenW, screenH)
	ebiten.SetWindowTitle("gobf tape")

	game := &Game{vm: machine, console: console}
	if err := ebiten.RunGame(game); err != nil {
		log.Fatal(err)
	}
}
