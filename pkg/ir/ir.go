package ir

import (
	"fmt"

	"github.com/xplshn/cmmc/pkg/token"
	"github.com/xplshn/cmmc/pkg/util"
)

// WordSize is the size in bytes of every scalar and address on the target.
const WordSize = 4

type Op int

const (
	OpLabel Op = iota
	OpFunction
	OpAssign
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpAddr
	OpLoad
	OpSave
	OpGoto
	OpEqGoto
	OpNeGoto
	OpLtGoto
	OpGtGoto
	OpLeGoto
	OpGeGoto
	OpRet
	OpDec
	OpArg
	OpCall
	OpParam
	OpRead
	OpWrite
)

var opNames = [...]string{
	OpLabel: "LABEL", OpFunction: "FUNCTION", OpAssign: "ASSIGN",
	OpAdd: "ADD", OpSub: "SUB", OpMul: "MUL", OpDiv: "DIV",
	OpAddr: "ADDR", OpLoad: "LOAD", OpSave: "SAVE", OpGoto: "GOTO",
	OpEqGoto: "EQGOTO", OpNeGoto: "NEGOTO", OpLtGoto: "LTGOTO",
	OpGtGoto: "GTGOTO", OpLeGoto: "LEGOTO", OpGeGoto: "GEGOTO",
	OpRet: "RET", OpDec: "DEC", OpArg: "ARG", OpCall: "CALL",
	OpParam: "PARAM", OpRead: "READ", OpWrite: "WRITE",
}

func (op Op) String() string {
	if op < 0 || int(op) >= len(opNames) {
		return fmt.Sprintf("Op(%d)", int(op))
	}
	return opNames[op]
}

// IsArith reports whether op is one of ADD, SUB, MUL, DIV.
func (op Op) IsArith() bool { return op >= OpAdd && op <= OpDiv }

// IsCondGoto reports whether op is a conditional jump.
func (op Op) IsCondGoto() bool { return op >= OpEqGoto && op <= OpGeGoto }

// CondGoto maps a relational operator to its conditional jump.
func CondGoto(rel token.Rel) Op {
	switch rel {
	case token.EQ:
		return OpEqGoto
	case token.NE:
		return OpNeGoto
	case token.LT:
		return OpLtGoto
	case token.GT:
		return OpGtGoto
	case token.LE:
		return OpLeGoto
	case token.GE:
		return OpGeGoto
	}
	util.Faultf("unknown relational operator %d", int(rel))
	return 0
}

// Operand is a Var, a Lit or a Label
type Operand interface {
	isOperand()
	String() string
}

type Var struct{ Name string }
type Lit struct{ Value int32 }
type Label struct{ Name string }

func (*Var) isOperand()   {}
func (*Lit) isOperand()   {}
func (*Label) isOperand() {}

func (v *Var) String() string   { return v.Name }
func (l *Lit) String() string   { return fmt.Sprintf("#%d", l.Value) }
func (l *Label) String() string { return l.Name }

func NewVar(name string) *Var     { return &Var{Name: name} }
func NewLit(v int32) *Lit         { return &Lit{Value: v} }
func NewLabel(name string) *Label { return &Label{Name: name} }

type class uint8

const (
	cVar class = 1 << iota
	cLit
	cLabel
	cRvalue = cVar | cLit
)

func classOf(o Operand) class {
	switch o.(type) {
	case *Var:
		return cVar
	case *Lit:
		return cLit
	case *Label:
		return cLabel
	}
	return 0
}

var shapes = [...][]class{
	OpLabel:    {cLabel},
	OpFunction: {cLabel},
	OpAssign:   {cVar, cRvalue},
	OpAdd:      {cVar, cRvalue, cRvalue},
	OpSub:      {cVar, cRvalue, cRvalue},
	OpMul:      {cVar, cRvalue, cRvalue},
	OpDiv:      {cVar, cRvalue, cRvalue},
	OpAddr:     {cVar, cVar},
	OpLoad:     {cVar, cRvalue},
	OpSave:     {cRvalue, cRvalue},
	OpGoto:     {cLabel},
	OpEqGoto:   {cRvalue, cRvalue, cLabel},
	OpNeGoto:   {cRvalue, cRvalue, cLabel},
	OpLtGoto:   {cRvalue, cRvalue, cLabel},
	OpGtGoto:   {cRvalue, cRvalue, cLabel},
	OpLeGoto:   {cRvalue, cRvalue, cLabel},
	OpGeGoto:   {cRvalue, cRvalue, cLabel},
	OpRet:      {cRvalue},
	OpDec:      {cVar, cLit},
	OpArg:      {cRvalue},
	OpCall:     {cVar, cLabel},
	OpParam:    {cVar},
	OpRead:     {cVar},
	OpWrite:    {cRvalue},
}

// Instruction is a three-address instruction. Args holds one to three
// operands whose kinds are fixed per Op.
type Instruction struct {
	Op   Op
	Args []Operand
}

// New builds an instruction, checking every operand against the slot
// rules of op. A violation is reported as a *util.Fault.
func New(op Op, args ...Operand) (*Instruction, error) {
	inst := &Instruction{Op: op, Args: args}
	if err := inst.Validate(); err != nil {
		return nil, err
	}
	return inst, nil
}

// MustNew is like New but panics with the *util.Fault.
func MustNew(op Op, args ...Operand) *Instruction {
	inst, err := New(op, args...)
	if err != nil {
		panic(err)
	}
	return inst
}

// Validate checks the operand kinds of inst.
func (inst *Instruction) Validate() error {
	if inst.Op < 0 || int(inst.Op) >= len(shapes) {
		return &util.Fault{Msg: fmt.Sprintf("unknown instruction kind %d", int(inst.Op))}
	}
	shape := shapes[inst.Op]
	if len(inst.Args) != len(shape) {
		return &util.Fault{Msg: fmt.Sprintf("%s takes %d operands, got %d", inst.Op, len(shape), len(inst.Args))}
	}
	for i, arg := range inst.Args {
		if arg == nil || classOf(arg)&shape[i] == 0 {
			return &util.Fault{Msg: fmt.Sprintf("%s: operand %d (%v) has the wrong kind", inst.Op, i, arg)}
		}
	}
	if inst.Op == OpDec {
		if n := inst.Args[1].(*Lit).Value; n <= 0 || n%WordSize != 0 {
			return &util.Fault{Msg: fmt.Sprintf("DEC size %d is not a positive multiple of %d", n, WordSize)}
		}
	}
	return nil
}

// Dst returns the variable an instruction writes, or nil.
func (inst *Instruction) Dst() *Var {
	switch inst.Op {
	case OpAssign, OpAdd, OpSub, OpMul, OpDiv, OpAddr, OpLoad, OpDec, OpCall, OpParam, OpRead:
		v, _ := inst.Args[0].(*Var)
		return v
	}
	return nil
}

var arithSigns = map[Op]string{OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/"}

var condSigns = map[Op]string{
	OpEqGoto: "==", OpNeGoto: "!=", OpLtGoto: "<",
	OpGtGoto: ">", OpLeGoto: "<=", OpGeGoto: ">=",
}

func (inst *Instruction) String() string {
	a := inst.Args
	arg := func(i int) Operand {
		if i < len(a) {
			return a[i]
		}
		return nil
	}
	switch inst.Op {
	case OpLabel:
		return fmt.Sprintf("LABEL %v :", arg(0))
	case OpFunction:
		return fmt.Sprintf("FUNCTION %v :", arg(0))
	case OpAssign:
		return fmt.Sprintf("%v := %v", arg(0), arg(1))
	case OpAdd, OpSub, OpMul, OpDiv:
		return fmt.Sprintf("%v := %v %s %v", arg(0), arg(1), arithSigns[inst.Op], arg(2))
	case OpAddr:
		return fmt.Sprintf("%v := &%v", arg(0), arg(1))
	case OpLoad:
		return fmt.Sprintf("%v := *%v", arg(0), arg(1))
	case OpSave:
		return fmt.Sprintf("*%v := %v", arg(0), arg(1))
	case OpGoto:
		return fmt.Sprintf("GOTO %v", arg(0))
	case OpEqGoto, OpNeGoto, OpLtGoto, OpGtGoto, OpLeGoto, OpGeGoto:
		return fmt.Sprintf("IF %v %s %v GOTO %v", arg(0), condSigns[inst.Op], arg(1), arg(2))
	case OpRet:
		return fmt.Sprintf("RETURN %v", arg(0))
	case OpDec:
		if lit, ok := arg(1).(*Lit); ok {
			return fmt.Sprintf("DEC %v %d", arg(0), lit.Value)
		}
		return fmt.Sprintf("DEC %v %v", arg(0), arg(1))
	case OpArg:
		return fmt.Sprintf("ARG %v", arg(0))
	case OpCall:
		return fmt.Sprintf("%v := CALL %v", arg(0), arg(1))
	case OpParam:
		return fmt.Sprintf("PARAM %v", arg(0))
	case OpRead:
		return fmt.Sprintf("READ %v", arg(0))
	case OpWrite:
		return fmt.Sprintf("WRITE %v", arg(0))
	}
	return fmt.Sprintf("%v %v", inst.Op, a)
}
