package symtab

import "sort"

type Param struct {
	Name string
	Type *Type
}

// Function is a function signature. Defined is false for prototypes.
type Function struct {
	Name    string
	Ret     *Type
	Params  []Param
	Defined bool
	Line    int
}

// Type returns the signature as a Func type.
func (f *Function) Type() *Type {
	params := make([]*Type, len(f.Params))
	for i, p := range f.Params {
		params[i] = p.Type
	}
	return &Type{Kind: Func, Ret: f.Ret, Params: params}
}

// Table maps names to types. Variables are scoped to the function that
// declares them, with a global scope underneath.
type Table struct {
	globals map[string]*Type
	locals  map[string]map[string]*Type
	funcs   map[string]*Function
	structs map[string]*Type
}

func NewTable() *Table {
	return &Table{
		globals: make(map[string]*Type),
		locals:  make(map[string]map[string]*Type),
		funcs:   make(map[string]*Function),
		structs: make(map[string]*Type),
	}
}

func (t *Table) DefineGlobal(name string, typ *Type) { t.globals[name] = typ }

func (t *Table) DefineLocal(fn, name string, typ *Type) {
	scope := t.locals[fn]
	if scope == nil {
		scope = make(map[string]*Type)
		t.locals[fn] = scope
	}
	scope[name] = typ
}

func (t *Table) DefineFunc(f *Function)              { t.funcs[f.Name] = f }
func (t *Table) DefineStruct(tag string, typ *Type) { t.structs[tag] = typ }

// Var resolves name as seen from inside function fn.
func (t *Table) Var(fn, name string) (*Type, bool) {
	if typ, ok := t.locals[fn][name]; ok {
		return typ, true
	}
	typ, ok := t.globals[name]
	return typ, ok
}

func (t *Table) local(fn, name string) (*Type, bool) {
	typ, ok := t.locals[fn][name]
	return typ, ok
}

func (t *Table) Func(name string) (*Function, bool) {
	f, ok := t.funcs[name]
	return f, ok
}

func (t *Table) Struct(tag string) (*Type, bool) {
	typ, ok := t.structs[tag]
	return typ, ok
}

// Globals returns the names of all global variables, sorted.
func (t *Table) Globals() []string {
	names := make([]string, 0, len(t.globals))
	for name := range t.globals {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
