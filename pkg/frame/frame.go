// Package frame lays out the stack frame of one function: every variable
// named in the function's IR gets an offset from the frame pointer.
//
// Frame shape, addresses growing upward:
//
//	 4n($fp)  last parameter
//	   ...
//	  4($fp)  first parameter
//	  0($fp)  caller's frame pointer
//	 -4($fp)  return address
//	 -8($fp)  first local, further locals below
//
// Arrays occupy a contiguous block and are recorded at its lowest byte.
package frame

import (
	"fmt"
	"strings"

	"github.com/xplshn/cmmc/pkg/ir"
	"github.com/xplshn/cmmc/pkg/util"
)

const (
	ParamBase = ir.WordSize
	LocalBase = -2 * ir.WordSize
)

type Entry struct {
	Name    string
	Offset  int
	Size    int
	IsParam bool
}

// Table is the offset table of one function. The last entry has an empty
// name and records the extent of the frame: the lowest offset in use,
// where the stack pointer sits once the locals are reserved.
type Table struct {
	Func    string
	Entries []Entry
	Params  int
	index   map[string]int
}

// Build lays out the frame for fn, which must start with its FUNCTION
// instruction and contain nothing from the next function.
func Build(fn []*ir.Instruction) *Table {
	if len(fn) == 0 || fn[0].Op != ir.OpFunction {
		util.Faultf("frame layout needs a range starting at FUNCTION")
	}
	t := &Table{Func: fn[0].Args[0].String(), index: make(map[string]int)}

	// First pass: discover names in order and assign tentative offsets.
	paramOff, localOff := ParamBase, LocalBase
	record := func(name string, size int, isParam bool) {
		if _, seen := t.index[name]; seen {
			return
		}
		e := Entry{Name: name, Size: size, IsParam: isParam}
		if isParam {
			e.Offset = paramOff
			paramOff += size
			t.Params++
		} else {
			e.Offset = localOff
			localOff -= size
		}
		t.index[name] = len(t.Entries)
		t.Entries = append(t.Entries, e)
	}
	for _, inst := range fn[1:] {
		if err := inst.Validate(); err != nil {
			panic(err)
		}
		switch inst.Op {
		case ir.OpFunction:
			util.Faultf("frame range of %s runs into another function", t.Func)
		case ir.OpParam:
			record(inst.Args[0].(*ir.Var).Name, ir.WordSize, true)
			continue
		case ir.OpDec:
			record(inst.Args[0].(*ir.Var).Name, int(inst.Args[1].(*ir.Lit).Value), false)
			continue
		}
		if dst := inst.Dst(); dst != nil {
			record(dst.Name, ir.WordSize, false)
		}
		// Variables only ever read still need a slot.
		for _, arg := range inst.Args {
			if v, ok := arg.(*ir.Var); ok {
				record(v.Name, ir.WordSize, false)
			}
		}
	}
	t.Entries = append(t.Entries, Entry{Offset: localOff + ir.WordSize})

	// Second pass: a block was given the offset of its highest word; move
	// it down to the lowest byte so that ADDR yields the block's start.
	for i := range t.Entries[:len(t.Entries)-1] {
		e := &t.Entries[i]
		if !e.IsParam && e.Size > ir.WordSize {
			e.Offset = e.Offset - e.Size + ir.WordSize
		}
	}
	return t
}

// Lookup returns the offset of name.
func (t *Table) Lookup(name string) (int, bool) {
	i, ok := t.index[name]
	if !ok {
		return 0, false
	}
	return t.Entries[i].Offset, true
}

// Offset is Lookup for names that must exist; a miss is a *util.Fault.
func (t *Table) Offset(name string) int {
	off, ok := t.Lookup(name)
	if !ok {
		util.Faultf("no frame slot for '%s' in %s", name, t.Func)
	}
	return off
}

// Extent is the lowest offset the frame occupies. It is -4, the return
// address slot, when there are no locals.
func (t *Table) Extent() int { return t.Entries[len(t.Entries)-1].Offset }

func (t *Table) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "frame %s (%d params)\n", t.Func, t.Params)
	for _, e := range t.Entries {
		switch {
		case e.Name == "":
			fmt.Fprintf(&sb, "  %5d  <extent>\n", e.Offset)
		case e.IsParam:
			fmt.Fprintf(&sb, "  %5d  %s (param)\n", e.Offset, e.Name)
		default:
			fmt.Fprintf(&sb, "  %5d  %s [%d]\n", e.Offset, e.Name, e.Size)
		}
	}
	return sb.String()
}
