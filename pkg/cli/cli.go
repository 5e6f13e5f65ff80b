package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/term"
)

type Value interface {
	String() string
	Set(string) error
	Get() any
}

type stringValue struct{ p *string }

func (v *stringValue) Set(s string) error { *v.p = s; return nil }
func (v *stringValue) String() string     { return *v.p }
func (v *stringValue) Get() any           { return *v.p }

type boolValue struct{ p *bool }

func (v *boolValue) Set(s string) error {
	if s == "" {
		*v.p = true
		return nil
	}
	val, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("invalid boolean value '%s': %w", s, err)
	}
	*v.p = val
	return nil
}
func (v *boolValue) String() string { return strconv.FormatBool(*v.p) }
func (v *boolValue) Get() any       { return *v.p }

// prefixValue collects every occurrence of a prefix flag verbatim, so
// "-Wall -Fno-fold" arrives as ["-Wall", "-Fno-fold"].
type prefixValue struct {
	prefix string
	p      *[]string
}

func (v *prefixValue) Set(s string) error { *v.p = append(*v.p, "-"+v.prefix+s); return nil }
func (v *prefixValue) String() string     { return strings.Join(*v.p, " ") }
func (v *prefixValue) Get() any           { return *v.p }

type Flag struct {
	Name         string
	Shorthand    string
	Usage        string
	Value        Value
	DefValue     string
	ExpectedType string
}

type FlagSet struct {
	name       string
	flags      map[string]*Flag
	shorthands map[string]*Flag
	prefixes   map[string]*Flag
	args       []string
}

func NewFlagSet(name string) *FlagSet {
	return &FlagSet{
		name:       name,
		flags:      make(map[string]*Flag),
		shorthands: make(map[string]*Flag),
		prefixes:   make(map[string]*Flag),
	}
}

func (f *FlagSet) Args() []string { return f.args }

func (f *FlagSet) Lookup(name string) *Flag { return f.flags[name] }

func (f *FlagSet) String(p *string, name, shorthand, value, usage, expectedType string) {
	*p = value
	f.Var(&stringValue{p}, name, shorthand, usage, value, expectedType)
}

func (f *FlagSet) Bool(p *bool, name, shorthand string, value bool, usage string) {
	*p = value
	f.Var(&boolValue{p}, name, shorthand, usage, strconv.FormatBool(value), "")
}

// Prefix registers a flag family such as -W<name>. Every argument starting
// with -<prefix> is appended to p whole, including the prefix.
func (f *FlagSet) Prefix(p *[]string, prefix, usage, expectedType string) {
	*p = []string{}
	f.Var(&prefixValue{prefix: prefix, p: p}, prefix, "", usage, "", expectedType)
	f.prefixes[prefix] = f.flags[prefix]
}

func (f *FlagSet) Var(value Value, name, shorthand, usage, defValue, expectedType string) {
	if name == "" {
		panic("flag name cannot be empty")
	}
	if _, ok := f.flags[name]; ok {
		panic(fmt.Sprintf("flag redefined: %s", name))
	}
	flag := &Flag{Name: name, Shorthand: shorthand, Usage: usage, Value: value, DefValue: defValue, ExpectedType: expectedType}
	f.flags[name] = flag
	if shorthand != "" {
		if _, ok := f.shorthands[shorthand]; ok {
			panic(fmt.Sprintf("shorthand flag redefined: %s", shorthand))
		}
		f.shorthands[shorthand] = flag
	}
}

func isBool(flag *Flag) bool {
	_, ok := flag.Value.(*boolValue)
	return ok
}

// set assigns the flag its inline value, or takes the next argument when
// the flag is not boolean.
func set(flag *Flag, display string, inline *string, arguments []string, i *int) error {
	switch {
	case inline != nil:
		return flag.Value.Set(*inline)
	case isBool(flag):
		return flag.Value.Set("")
	case *i+1 >= len(arguments):
		return fmt.Errorf("flag needs an argument: %s", display)
	}
	*i++
	return flag.Value.Set(arguments[*i])
}

func (f *FlagSet) Parse(arguments []string) error {
	f.args = []string{}
	for i := 0; i < len(arguments); i++ {
		arg := arguments[i]
		switch {
		case arg == "--":
			f.args = append(f.args, arguments[i+1:]...)
			return nil
		case len(arg) < 2 || arg[0] != '-':
			f.args = append(f.args, arg)
		case strings.HasPrefix(arg, "--"):
			if err := f.parseLong(arg, arguments, &i); err != nil {
				return err
			}
		default:
			if err := f.parseShort(arg, arguments, &i); err != nil {
				return err
			}
		}
	}
	return nil
}

func splitInline(s string) (string, *string) {
	name, value, ok := strings.Cut(s, "=")
	if !ok {
		return name, nil
	}
	return name, &value
}

func (f *FlagSet) parseLong(arg string, arguments []string, i *int) error {
	name, inline := splitInline(arg[2:])
	if name == "" {
		return fmt.Errorf("empty flag name")
	}
	flag, ok := f.flags[name]
	if !ok {
		return fmt.Errorf("unknown flag: --%s", name)
	}
	return set(flag, "--"+name, inline, arguments, i)
}

func (f *FlagSet) parseShort(arg string, arguments []string, i *int) error {
	// A whole long name given with a single dash, like -dump-tree.
	if name, inline := splitInline(arg[1:]); len(name) > 1 {
		if flag, ok := f.flags[name]; ok {
			return set(flag, "-"+name, inline, arguments, i)
		}
	}
	for prefix, flag := range f.prefixes {
		if strings.HasPrefix(arg, "-"+prefix) && len(arg) > len(prefix)+1 {
			return flag.Value.Set(arg[len(prefix)+1:])
		}
	}

	shorthand := arg[1:2]
	flag, ok := f.shorthands[shorthand]
	if !ok {
		return fmt.Errorf("unknown shorthand flag: -%s", shorthand)
	}
	if isBool(flag) {
		return flag.Value.Set("")
	}
	if value := arg[2:]; value != "" {
		return flag.Value.Set(value)
	}
	return set(flag, "-"+shorthand, nil, arguments, i)
}

type App struct {
	Name        string
	Synopsis    string
	Description string
	Authors     []string
	Repository  string
	FlagSet     *FlagSet
	Action      func(args []string) error
}

func NewApp(name string) *App {
	return &App{
		Name:    name,
		FlagSet: NewFlagSet(name),
	}
}

func (a *App) Run(arguments []string) error {
	help := false
	a.FlagSet.Bool(&help, "help", "h", false, "Display this information")

	if err := a.FlagSet.Parse(arguments); err != nil {
		fmt.Fprintln(os.Stderr, err)
		a.WriteUsage(os.Stderr)
		return err
	}
	if help {
		a.WriteHelp(os.Stdout)
		return nil
	}
	if a.Action != nil {
		return a.Action(a.FlagSet.Args())
	}
	return nil
}

// WriteUsage prints the one-screen summary shown after a parse error.
func (a *App) WriteUsage(w io.Writer) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Usage: %s <options> [input.yaml]\n", a.Name)
	a.writeOptions(&sb, terminalWidth())
	fmt.Fprintf(&sb, "\nRun '%s --help' for all available options and flags.\n", a.Name)
	io.WriteString(w, sb.String())
}

func (a *App) WriteHelp(w io.Writer) {
	var sb strings.Builder
	width := terminalWidth()

	if len(a.Authors) > 0 {
		fmt.Fprintf(&sb, "\n    Copyright (c): %s and contributors\n", strings.Join(a.Authors, ", "))
	}
	if a.Repository != "" {
		fmt.Fprintf(&sb, "    For more details refer to %s\n", a.Repository)
	}
	if a.Synopsis != "" {
		fmt.Fprintf(&sb, "\n    Synopsis\n        %s %s\n", a.Name, a.Synopsis)
	}
	if a.Description != "" {
		sb.WriteString("\n    Description\n")
		for _, line := range wrapText(a.Description, width-8) {
			fmt.Fprintf(&sb, "        %s\n", line)
		}
	}
	a.writeOptions(&sb, width)

	var prefixes []*Flag
	for _, flag := range a.FlagSet.prefixes {
		prefixes = append(prefixes, flag)
	}
	if len(prefixes) > 0 {
		sort.Slice(prefixes, func(i, j int) bool { return prefixes[i].Name < prefixes[j].Name })
		sb.WriteString("\n    Flag families\n")
		for _, flag := range prefixes {
			left := fmt.Sprintf("-%s<%s>, -%sno-<%s>", flag.Name, flag.ExpectedType, flag.Name, flag.ExpectedType)
			fmt.Fprintf(&sb, "        %s  %s\n", left, flag.Usage)
		}
	}
	io.WriteString(w, sb.String())
}

func (a *App) writeOptions(sb *strings.Builder, width int) {
	var opts []*Flag
	for name, flag := range a.FlagSet.flags {
		if _, ok := a.FlagSet.prefixes[name]; !ok {
			opts = append(opts, flag)
		}
	}
	if len(opts) == 0 {
		return
	}
	sort.Slice(opts, func(i, j int) bool { return opts[i].Name < opts[j].Name })

	left := 0
	for _, flag := range opts {
		left = max(left, len(formatFlag(flag)))
	}
	usageWidth := max(width-8-left-1, 10)

	sb.WriteString("\n    Options\n")
	for _, flag := range opts {
		lines := wrapText(flag.Usage, usageWidth)
		if len(lines) == 0 {
			lines = []string{""}
		}
		if flag.DefValue != "" && !isBool(flag) {
			lines[len(lines)-1] += fmt.Sprintf("  |%s|", flag.DefValue)
		}
		fmt.Fprintf(sb, "        %-*s %s\n", left, formatFlag(flag), lines[0])
		for _, l := range lines[1:] {
			fmt.Fprintf(sb, "        %s %s\n", strings.Repeat(" ", left), l)
		}
	}
}

func formatFlag(flag *Flag) string {
	var s strings.Builder
	arg := ""
	if !isBool(flag) && flag.ExpectedType != "" {
		arg = " <" + flag.ExpectedType + ">"
	}
	if flag.Shorthand != "" {
		fmt.Fprintf(&s, "-%s%s, ", flag.Shorthand, arg)
	}
	fmt.Fprintf(&s, "--%s%s", flag.Name, arg)
	return s.String()
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return max(width, 20)
}

func wrapText(text string, maxWidth int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if maxWidth <= 0 {
		return []string{strings.Join(words, " ")}
	}

	var lines []string
	var cur strings.Builder
	for _, word := range words {
		if cur.Len() > 0 && cur.Len()+1+len(word) > maxWidth {
			lines = append(lines, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(word)
	}
	if cur.Len() > 0 {
		lines = append(lines, cur.String())
	}
	return lines
}
