package ir

import (
	"io"
	"slices"
	"strings"
)

// List is the ordered instruction sequence of a compilation unit. Besides
// appending, it supports inserting at a remembered position; inserting
// several instructions at the same position leaves them in reverse order.
type List struct {
	insts []*Instruction
}

func (l *List) Len() int                     { return len(l.insts) }
func (l *List) At(i int) *Instruction        { return l.insts[i] }
func (l *List) Instructions() []*Instruction { return l.insts }

func (l *List) Append(inst *Instruction) { l.insts = append(l.insts, inst) }

// Emit builds and appends an instruction. Malformed operands panic with a *util.Fault.
func (l *List) Emit(op Op, args ...Operand) *Instruction {
	inst := MustNew(op, args...)
	l.insts = append(l.insts, inst)
	return inst
}

// InsertAt places inst at index i, shifting later instructions.
func (l *List) InsertAt(i int, inst *Instruction) {
	l.insts = slices.Insert(l.insts, i, inst)
}

// Functions splits the list into per-function ranges, each starting at
// its FUNCTION instruction. Instructions before the first FUNCTION are dropped.
func (l *List) Functions() [][]*Instruction {
	var fns [][]*Instruction
	start := -1
	for i, inst := range l.insts {
		if inst.Op != OpFunction {
			continue
		}
		if start >= 0 {
			fns = append(fns, l.insts[start:i])
		}
		start = i
	}
	if start >= 0 {
		fns = append(fns, l.insts[start:])
	}
	return fns
}

// FunctionAt returns the range of the function whose FUNCTION instruction is at index i.
func (l *List) FunctionAt(i int) []*Instruction {
	end := i + 1
	for end < len(l.insts) && l.insts[end].Op != OpFunction {
		end++
	}
	return l.insts[i:end]
}

// Lines renders every instruction in textual form.
func (l *List) Lines() []string {
	lines := make([]string, len(l.insts))
	for i, inst := range l.insts {
		lines[i] = inst.String()
	}
	return lines
}

func (l *List) String() string {
	var sb strings.Builder
	l.WriteTo(&sb)
	return sb.String()
}

// WriteTo writes the textual IR, one instruction per line.
func (l *List) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, inst := range l.insts {
		n, err := io.WriteString(w, inst.String()+"\n")
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
