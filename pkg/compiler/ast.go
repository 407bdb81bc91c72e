package compiler

import (
	"fmt"
	"strings"
)

// Kind tags the variant held by a Node.
type Kind uint8

const (
	Shift     Kind = iota // move the cell cursor by Step
	Increment             // add Delta to the current cell
	Input                 // read one value into the current cell
	Output                // emit the current cell
	Loop                  // repeat Body while the current cell is truthy
)

var kindNames = [...]string{
	Shift:     "Shift",
	Increment: "Increment",
	Input:     "Input",
	Output:    "Output",
	Loop:      "Loop",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Node is one instruction of a parsed program. Only the fields belonging to
// Kind are meaningful:
//
//	>    Node{Kind: Shift, Step: 1}
//	-    Node{Kind: Increment, Delta: -1}
//	[-]  Node{Kind: Loop, Body: []Node{{Kind: Increment, Delta: -1}}}
//
// Nodes are plain values. A Loop owns its Body; bodies are never shared.
type Node struct {
	Kind  Kind
	Step  int32  // Shift
	Delta int32  // Increment
	Body  []Node // Loop
}

// ShiftBy returns a Shift node moving the cursor by step.
func ShiftBy(step int32) Node { return Node{Kind: Shift, Step: step} }

// Add returns an Increment node adding delta to the current cell.
func Add(delta int32) Node { return Node{Kind: Increment, Delta: delta} }

// Read returns an Input node.
func Read() Node { return Node{Kind: Input} }

// Write returns an Output node.
func Write() Node { return Node{Kind: Output} }

// LoopOf returns a Loop node with the given body.
func LoopOf(body ...Node) Node { return Node{Kind: Loop, Body: body} }

func (n Node) String() string {
	switch n.Kind {
	case Shift:
		return fmt.Sprintf("Shift(%d)", n.Step)
	case Increment:
		return fmt.Sprintf("Increment(%d)", n.Delta)
	case Loop:
		return fmt.Sprintf("Loop(len=%d)", len(n.Body))
	default:
		return n.Kind.String()
	}
}

// Program is the top-level instruction sequence. It is not itself a Loop:
// there is no implicit owner node.
type Program []Node

func (p Program) String() string {
	parts := make([]string, len(p))
	for i, n := range p {
		parts[i] = n.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}
