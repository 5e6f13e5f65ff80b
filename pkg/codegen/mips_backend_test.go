package codegen_test

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	gomock "github.com/golang/mock/gomock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/xplshn/cmmc/pkg/ast"
	"github.com/xplshn/cmmc/pkg/codegen"
	"github.com/xplshn/cmmc/pkg/config"
	"github.com/xplshn/cmmc/pkg/frame"
	"github.com/xplshn/cmmc/pkg/ir"
	"github.com/xplshn/cmmc/pkg/symtab"
	"github.com/xplshn/cmmc/pkg/token"
	"github.com/xplshn/cmmc/pkg/util"
)

// block renders instructions the way the emitter indents them.
func block(lines ...string) string {
	var sb strings.Builder
	for _, l := range lines {
		sb.WriteString("  " + l + "\n")
	}
	return sb.String()
}

func v(name string) *ir.Var  { return ir.NewVar(name) }
func lit(n int32) *ir.Lit    { return ir.NewLit(n) }
func lbl(s string) *ir.Label { return ir.NewLabel(s) }

var argSlot = regexp.MustCompile(`sw \$t0, (-?\d+)\(\$sp\)`)

var _ = Describe("MIPS backend", func() {
	var (
		prog *ir.List
		cfg  *config.Config
	)

	generate := func() (string, error) {
		buf, err := codegen.NewMIPSBackend().Generate(prog, cfg)
		if err != nil {
			return "", err
		}
		return buf.String(), nil
	}

	mustGenerate := func() string {
		out, err := generate()
		Expect(err).NotTo(HaveOccurred())
		return out
	}

	BeforeEach(func() {
		prog = &ir.List{}
		cfg = config.NewConfig()
	})

	It("should start with the data section and both runtime stubs", func() {
		prog.Emit(ir.OpFunction, lbl("main"))
		prog.Emit(ir.OpRet, lit(0))

		out := mustGenerate()

		Expect(out).To(HavePrefix(".data\n" +
			"_prompt: .asciiz \"Enter an integer:\"\n" +
			"_ret: .asciiz \"\\n\"\n" +
			".globl main\n" +
			".text\n"))
		Expect(out).To(ContainSubstring("read:\n" + block(
			"li $v0, 4", "la $a0, _prompt", "syscall", "li $v0, 5", "syscall", "jr $ra")))
		Expect(out).To(ContainSubstring("write:\n" + block(
			"li $v0, 1", "syscall", "li $v0, 4", "la $a0, _ret", "syscall", "move $v0, $0", "jr $ra")))
		Expect(strings.Index(out, "write:")).To(BeNumerically("<", strings.Index(out, "\nmain:")))
	})

	It("should honour the configured entry function and prompt", func() {
		cfg.EntryFunc = "start"
		cfg.Prompt = "n?"
		prog.Emit(ir.OpFunction, lbl("start"))
		prog.Emit(ir.OpRet, lit(0))

		out := mustGenerate()

		Expect(out).To(ContainSubstring(".globl start\n"))
		Expect(out).To(ContainSubstring(`_prompt: .asciiz "n?"`))
		Expect(out).To(ContainSubstring("start:\n" + block("move $fp, $sp", "addi $sp, $fp, -4")))
	})

	Context("when calling a two-argument function", func() {
		BeforeEach(func() {
			prog.Emit(ir.OpFunction, lbl("add"))
			prog.Emit(ir.OpParam, v("x"))
			prog.Emit(ir.OpParam, v("y"))
			prog.Emit(ir.OpAdd, v("t.1"), v("x"), v("y"))
			prog.Emit(ir.OpRet, v("t.1"))
			prog.Emit(ir.OpFunction, lbl("main"))
			prog.Emit(ir.OpArg, lit(2))
			prog.Emit(ir.OpArg, lit(1))
			prog.Emit(ir.OpCall, v("t.2"), lbl("add"))
			prog.Emit(ir.OpRet, v("t.2"))
		})

		It("should stage the arguments one word apart below the stack pointer", func() {
			out := mustGenerate()

			var slots []int
			for _, m := range argSlot.FindAllStringSubmatch(out, -1) {
				n, err := strconv.Atoi(m[1])
				Expect(err).NotTo(HaveOccurred())
				slots = append(slots, n)
			}
			Expect(slots).To(Equal([]int{-4, -8}))
			for _, s := range slots {
				Expect(s).To(BeNumerically("<", 0))
			}
		})

		It("should emit the full call sequence", func() {
			out := mustGenerate()

			Expect(out).To(ContainSubstring(block(
				"li $t0, 2",
				"sw $t0, -4($sp)",
				"li $t0, 1",
				"sw $t0, -8($sp)",
				"addi $sp, $sp, -12",
				"sw $fp, 0($sp)",
				"move $fp, $sp",
				"sw $ra, -4($fp)",
				"addi $sp, $sp, -4",
				"jal add",
				"lw $ra, -4($sp)",
				"addi $sp, $sp, 12",
				"sw $v0, -8($fp)",
			)))
		})

		It("should read parameters above the frame pointer and return through it", func() {
			out := mustGenerate()

			Expect(out).To(ContainSubstring("\nadd:\n" + block(
				"addi $sp, $fp, -8",
				"lw $t0, 4($fp)",
				"lw $t1, 8($fp)",
				"add $t2, $t0, $t1",
				"sw $t2, -8($fp)",
				"move $sp, $fp",
				"lw $v0, -8($fp)",
				"lw $fp, 0($fp)",
				"jr $ra",
			)))
			Expect(out).To(ContainSubstring("\nmain:\n" + block("move $fp, $sp", "addi $sp, $fp, -8")))
		})

		It("should lay out each function exactly once", func() {
			mockCtrl := gomock.NewController(GinkgoT())
			defer mockCtrl.Finish()
			layouter := NewMockLayouter(mockCtrl)

			var seen []string
			layouter.EXPECT().
				Layout(gomock.Any()).
				DoAndReturn(func(fn []*ir.Instruction) *frame.Table {
					seen = append(seen, fn[0].Args[0].String())
					return frame.Build(fn)
				}).
				Times(2)

			_, err := codegen.NewMIPSBackendWithLayouter(layouter).Generate(prog, cfg)

			Expect(err).NotTo(HaveOccurred())
			Expect(seen).To(Equal([]string{"add", "main"}))
		})
	})

	It("should use immediates for small literal operands", func() {
		prog.Emit(ir.OpFunction, lbl("main"))
		prog.Emit(ir.OpAssign, v("a"), lit(1))
		prog.Emit(ir.OpAdd, v("b"), v("a"), lit(5))
		prog.Emit(ir.OpSub, v("c"), v("a"), lit(5))
		prog.Emit(ir.OpAdd, v("d"), v("a"), lit(70000))
		prog.Emit(ir.OpMul, v("e"), v("a"), v("b"))
		prog.Emit(ir.OpDiv, v("f"), v("a"), v("b"))
		prog.Emit(ir.OpSub, v("g"), lit(0), v("a"))
		prog.Emit(ir.OpRet, lit(0))

		out := mustGenerate()

		Expect(out).To(ContainSubstring(block(
			"li $t0, 1",
			"sw $t0, -8($fp)",
			"lw $t0, -8($fp)",
			"addi $t2, $t0, 5",
			"sw $t2, -12($fp)",
			"lw $t0, -8($fp)",
			"addi $t2, $t0, -5",
			"sw $t2, -16($fp)",
			"lw $t0, -8($fp)",
			"li $t1, 70000",
			"add $t2, $t0, $t1",
			"sw $t2, -20($fp)",
			"lw $t0, -8($fp)",
			"lw $t1, -12($fp)",
			"mul $t2, $t0, $t1",
			"sw $t2, -24($fp)",
			"lw $t0, -8($fp)",
			"lw $t1, -12($fp)",
			"div $t0, $t1",
			"mflo $t2",
			"sw $t2, -28($fp)",
			"li $t0, 0",
			"lw $t1, -8($fp)",
			"sub $t2, $t0, $t1",
			"sw $t2, -32($fp)",
		)))
	})

	It("should address arrays through the frame pointer", func() {
		prog.Emit(ir.OpFunction, lbl("main"))
		prog.Emit(ir.OpDec, v("t.1"), lit(12))
		prog.Emit(ir.OpAddr, v("v"), v("t.1"))
		prog.Emit(ir.OpLoad, v("t.2"), v("v"))
		prog.Emit(ir.OpSave, v("v"), lit(7))
		prog.Emit(ir.OpRet, lit(0))

		out := mustGenerate()

		Expect(out).To(ContainSubstring("\nmain:\n" + block(
			"move $fp, $sp",
			"addi $sp, $fp, -24",
			"addi $t2, $fp, -16",
			"sw $t2, -20($fp)",
			"lw $t0, -20($fp)",
			"lw $t2, 0($t0)",
			"sw $t2, -24($fp)",
			"lw $t0, -20($fp)",
			"li $t1, 7",
			"sw $t1, 0($t0)",
		)))
	})

	It("should emit labels, jumps and compare-and-branch", func() {
		prog.Emit(ir.OpFunction, lbl("main"))
		prog.Emit(ir.OpLabel, lbl("L.1"))
		prog.Emit(ir.OpLtGoto, v("a"), lit(3), lbl("L.2"))
		prog.Emit(ir.OpGoto, lbl("L.1"))
		prog.Emit(ir.OpLabel, lbl("L.2"))
		prog.Emit(ir.OpRet, v("a"))

		out := mustGenerate()

		Expect(out).To(ContainSubstring("L.1:\n" + block(
			"lw $t0, -8($fp)",
			"li $t1, 3",
			"blt $t0, $t1, L.2",
			"j L.1",
		) + "L.2:\n"))
	})

	It("should call the runtime stubs for READ and WRITE", func() {
		prog.Emit(ir.OpFunction, lbl("main"))
		prog.Emit(ir.OpRead, v("a"))
		prog.Emit(ir.OpWrite, v("a"))
		prog.Emit(ir.OpRet, lit(0))

		out := mustGenerate()

		Expect(out).To(ContainSubstring(block(
			"addi $sp, $sp, -4",
			"sw $ra, 0($sp)",
			"jal read",
			"lw $ra, 0($sp)",
			"addi $sp, $sp, 4",
			"sw $v0, -8($fp)",
			"lw $a0, -8($fp)",
			"addi $sp, $sp, -4",
			"sw $ra, 0($sp)",
			"jal write",
			"lw $ra, 0($sp)",
			"addi $sp, $sp, 4",
		)))
	})

	It("should annotate the output with IR when asked", func() {
		cfg.SetFeature(config.FeatIRComments, true)
		prog.Emit(ir.OpFunction, lbl("main"))
		prog.Emit(ir.OpAssign, v("a"), lit(11))
		prog.Emit(ir.OpRet, v("a"))

		Expect(mustGenerate()).To(ContainSubstring(block("# a := #11", "li $t0, 11")))
	})

	Context("when the IR is malformed", func() {
		expectFault := func() {
			_, err := generate()
			var fault *util.Fault
			Expect(errors.As(err, &fault)).To(BeTrue(), "got %v", err)
		}

		It("should fault on RET with a label", func() {
			prog.Emit(ir.OpFunction, lbl("main"))
			prog.Append(&ir.Instruction{Op: ir.OpRet, Args: []ir.Operand{lbl("L.1")}})
			expectFault()
		})

		It("should fault on code outside a function", func() {
			prog.Emit(ir.OpAssign, v("a"), lit(1))
			expectFault()
		})

		It("should fault on ARG without CALL", func() {
			prog.Emit(ir.OpFunction, lbl("main"))
			prog.Emit(ir.OpArg, lit(1))
			expectFault()
		})
	})

	It("should compile the folded end-to-end program", func() {
		// int main() { int a; a = 3 + 4 * 2; return a; }
		root := ast.NewProgram(ast.FuncDef(ast.IntSpec(), "main", nil, ast.Block(
			[]*ast.Node{ast.Definition(ast.IntSpec(), ast.Declare(ast.Var("a")))},
			ast.ExpStmt(ast.Assign(ast.Ident("a"),
				ast.Binary(ast.Int(3), token.Plus, ast.Binary(ast.Int(4), token.Star, ast.Int(2))))),
			ast.ReturnStmt(ast.Ident("a")),
		)))
		syms, err := symtab.Collect(root)
		Expect(err).NotTo(HaveOccurred())
		prog, err = codegen.NewContext(cfg, syms).GenerateIR(root)
		Expect(err).NotTo(HaveOccurred())

		out := mustGenerate()

		Expect(out).To(ContainSubstring("\nmain:\n" + block(
			"move $fp, $sp",
			"addi $sp, $fp, -8",
			"li $t0, 11",
			"sw $t0, -8($fp)",
			"lw $a0, -8($fp)",
			"move $v0, $0",
			"jr $ra",
		)))
		Expect(out).NotTo(ContainSubstring("mul"))
		Expect(out).NotTo(ContainSubstring("$t2"))
	})
})
