package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mew/ast"
	"mew/lexer"
)

func parseSource(t *testing.T, source string, fold bool) *ast.Program {
	t.Helper()
	tokens, err := lexer.New(source).Scan()
	require.NoError(t, err, "lexing failed")
	prog, err := New(tokens, fold).Parse()
	require.NoError(t, err, "parsing failed")
	return prog
}

func firstOp(t *testing.T, prog *ast.Program) ast.Node {
	t.Helper()
	require.NotEmpty(t, prog.Operations)
	return prog.Operations[0].Op
}

// checkLines asserts parse totality: every reachable Operation wraps a
// non-nil node with a positive line number.
func checkLines(t *testing.T, prog *ast.Program) {
	t.Helper()
	for _, op := range prog.Operations {
		require.NotNil(t, op.Op)
		assert.GreaterOrEqual(t, op.Line(), int32(1))
		switch v := op.Op.(type) {
		case *ast.Func:
			checkLines(t, v.Code)
		case *ast.IfElse:
			checkLines(t, v.Code)
			if v.Else != nil {
				checkLines(t, v.Else)
			}
		case *ast.While:
			checkLines(t, v.Code)
		case *ast.Loop:
			checkLines(t, v.Code)
		case *ast.Program:
			checkLines(t, v)
		}
	}
}

func TestParseTotality(t *testing.T) {
	source := `struct Point { u32 x, y }
func add(u32 a, b) u32 {
	return a + b
}
func main() {
	u32 total = add(1, 2)
	while total < 10 {
		total += 1
	}
	loop {
		if total == 12 {
			break
		}
		total++
	}
}
`
	prog := parseSource(t, source, false)
	checkLines(t, prog)
}

func TestTypedDeclaration(t *testing.T) {
	prog := parseSource(t, "u32 a = 1", false)
	asg, ok := firstOp(t, prog).(*ast.Assignment)
	require.True(t, ok, "expected Assignment, got %T", firstOp(t, prog))

	tv, ok := asg.Name.(*ast.TypedVarDefinition)
	require.True(t, ok, "expected TypedVarDefinition LHS")
	assert.Equal(t, "u32", tv.Type.Value)
	assert.Equal(t, "a", tv.Var.Value)

	val, ok := asg.Value.(*ast.Integer)
	require.True(t, ok)
	assert.Equal(t, int64(1), val.Value)
}

func TestTypedDeclarationWithoutValue(t *testing.T) {
	prog := parseSource(t, "u32 a", false)
	asg := firstOp(t, prog).(*ast.Assignment)
	assert.Nil(t, asg.Value)
}

func TestArrayTypedDeclaration(t *testing.T) {
	prog := parseSource(t, "u32[10] buf", false)
	asg := firstOp(t, prog).(*ast.Assignment)
	tv := asg.Name.(*ast.TypedVarDefinition)
	require.NotNil(t, tv.Array)
	require.Len(t, tv.Array.Elements, 1)
	size := tv.Array.Elements[0].(*ast.Integer)
	assert.Equal(t, int64(10), size.Value)
}

func TestPrecedence(t *testing.T) {
	prog := parseSource(t, "a = 1 + 2 * 3 == 7", false)
	asg := firstOp(t, prog).(*ast.Assignment)

	eq, ok := asg.Value.(*ast.BinOp)
	require.True(t, ok)
	assert.Equal(t, "==", eq.Op)

	sum, ok := eq.Left.(*ast.BinOp)
	require.True(t, ok)
	assert.Equal(t, "+", sum.Op)

	mul, ok := sum.Right.(*ast.BinOp)
	require.True(t, ok)
	assert.Equal(t, "*", mul.Op)
}

func TestParenthesesOverridePrecedence(t *testing.T) {
	prog := parseSource(t, "a = (1 + 2) * 3", false)
	asg := firstOp(t, prog).(*ast.Assignment)
	mul := asg.Value.(*ast.BinOp)
	assert.Equal(t, "*", mul.Op)
	sum := mul.Left.(*ast.BinOp)
	assert.Equal(t, "+", sum.Op)
}

func TestUnaryMinusLowersToZeroMinus(t *testing.T) {
	prog := parseSource(t, "a = -x", false)
	asg := firstOp(t, prog).(*ast.Assignment)
	bin := asg.Value.(*ast.BinOp)
	assert.Equal(t, "-", bin.Op)
	zero := bin.Left.(*ast.Integer)
	assert.Equal(t, int64(0), zero.Value)
}

func TestConstantFolding(t *testing.T) {
	prog := parseSource(t, "a = 2 + 3 * 4", true)
	asg := firstOp(t, prog).(*ast.Assignment)
	folded, ok := asg.Value.(*ast.Integer)
	require.True(t, ok, "expected folded Integer, got %T", asg.Value)
	assert.Equal(t, int64(14), folded.Value)
}

func TestConstantFoldingSkipsDivision(t *testing.T) {
	prog := parseSource(t, "a = 6 / 2", true)
	asg := firstOp(t, prog).(*ast.Assignment)
	_, ok := asg.Value.(*ast.BinOp)
	assert.True(t, ok, "division must not fold")
}

func TestIfElseChain(t *testing.T) {
	source := `if a == 1 {
	b = 1
} else if a == 2 {
	b = 2
} else {
	b = 3
}
`
	prog := parseSource(t, source, false)
	outer := firstOp(t, prog).(*ast.IfElse)
	require.NotNil(t, outer.Else)
	require.Len(t, outer.Else.Operations, 1)

	nested, ok := outer.Else.Operations[0].Op.(*ast.IfElse)
	require.True(t, ok, "else-if must parse as a nested IfElse")
	require.NotNil(t, nested.Else)
}

func TestFuncDeclaration(t *testing.T) {
	prog := parseSource(t, "func add(u32 a, b) u32 { return a + b }", false)
	fn := firstOp(t, prog).(*ast.Func)
	assert.Equal(t, "add", fn.Name.Value)
	require.NotNil(t, fn.Ret)
	assert.Equal(t, "u32", fn.Ret.Value)
	require.Len(t, fn.Args.Elements, 2)

	// Collapsed parameter list: `b` inherits `u32` from `a`.
	b := fn.Args.Elements[1].(*ast.TypedVarDefinition)
	assert.Equal(t, "u32", b.Type.Value)
	assert.Equal(t, "b", b.Var.Value)
}

func TestCollapsedParamsMultipleTypes(t *testing.T) {
	prog := parseSource(t, "func f(u32 a, b, string c, d) {}", false)
	fn := firstOp(t, prog).(*ast.Func)
	require.Len(t, fn.Args.Elements, 4)
	types := []string{"u32", "u32", "string", "string"}
	for i, want := range types {
		p := fn.Args.Elements[i].(*ast.TypedVarDefinition)
		assert.Equal(t, want, p.Type.Value, "param %d", i)
	}
}

func TestLambdaDesugar(t *testing.T) {
	prog := parseSource(t, "func inc(u32 x) u32 -> x + 1", false)
	fn := firstOp(t, prog).(*ast.Func)
	require.Len(t, fn.Code.Operations, 1)
	ret, ok := fn.Code.Operations[0].Op.(*ast.Return)
	require.True(t, ok, "lambda body must desugar into a return")
	_, ok = ret.Value.(*ast.BinOp)
	assert.True(t, ok)
}

func TestVoidFunc(t *testing.T) {
	prog := parseSource(t, "func noop() {}", false)
	fn := firstOp(t, prog).(*ast.Func)
	assert.Nil(t, fn.Ret)
	assert.Empty(t, fn.Args.Elements)
}

func TestNewForms(t *testing.T) {
	tests := []struct {
		source  string
		objKind string
	}{
		{"a = new S", "Path"},
		{"a = new S()", "FunctionCall"},
		{"a = new S[10]", "Indexed"},
	}
	for _, tt := range tests {
		prog := parseSource(t, tt.source, false)
		asg := firstOp(t, prog).(*ast.Assignment)
		n, ok := asg.Value.(*ast.New)
		require.True(t, ok, "source %q", tt.source)
		switch tt.objKind {
		case "Path":
			_, ok = n.Obj.(*ast.Path)
		case "FunctionCall":
			_, ok = n.Obj.(*ast.FunctionCall)
		case "Indexed":
			_, ok = n.Obj.(*ast.Indexed)
		}
		assert.True(t, ok, "source %q: obj = %T, want %s", tt.source, n.Obj, tt.objKind)
	}
}

func TestCompoundAssignment(t *testing.T) {
	prog := parseSource(t, "a += 2", false)
	asg := firstOp(t, prog).(*ast.Assignment)
	bin, ok := asg.Value.(*ast.BinOp)
	require.True(t, ok, "a += b must desugar into a = a + b")
	assert.Equal(t, "+", bin.Op)
	left := bin.Left.(*ast.Name)
	assert.Equal(t, "a", left.Value)
}

func TestIncrementDecrement(t *testing.T) {
	prog := parseSource(t, "a++\nb--", false)
	require.Len(t, prog.Operations, 2)
	_, ok := prog.Operations[0].Op.(*ast.Increment)
	assert.True(t, ok)
	_, ok = prog.Operations[1].Op.(*ast.Decrement)
	assert.True(t, ok)
}

func TestStructDeclaration(t *testing.T) {
	source := `struct Point {
	u32 x, y
	string label
}
`
	prog := parseSource(t, source, false)
	st := firstOp(t, prog).(*ast.Struct)
	assert.Equal(t, "Point", st.Name.Value)
	require.Len(t, st.Value, 2)
	assert.Len(t, st.Value[0].Elements, 2)
	assert.Len(t, st.Value[1].Elements, 1)
}

func TestWarningWrapsDeclaration(t *testing.T) {
	prog := parseSource(t, "warning \"deprecated\" func old() {}", false)
	w := firstOp(t, prog).(*ast.Warning)
	assert.Equal(t, "deprecated", w.Message)
	_, ok := w.Refer.(*ast.Func)
	assert.True(t, ok)
}

func TestExternC(t *testing.T) {
	prog := parseSource(t, "extern \"int puts(const char *);\"", false)
	ext := firstOp(t, prog).(*ast.ExternC)
	assert.Equal(t, "int puts(const char *);", ext.Code)
}

func TestUseStatement(t *testing.T) {
	prog := parseSource(t, "use io.net as n", false)
	use := firstOp(t, prog).(*ast.Use)
	require.Len(t, use.Path.Elements, 2)
	require.NotNil(t, use.AsName)
	assert.Equal(t, "n", use.AsName.Value)
}

func TestRedundantSemicolon(t *testing.T) {
	prog := parseSource(t, "u32 a = 1;;", false)
	require.Len(t, prog.Operations, 2)
	end, ok := prog.Operations[1].Op.(*ast.End)
	require.True(t, ok, "second ';' must surface as an End operation")
	assert.Equal(t, ";", end.Char)
}

func TestPathAndIndexPostfix(t *testing.T) {
	prog := parseSource(t, "x = a.b.c", false)
	asg := firstOp(t, prog).(*ast.Assignment)
	path := asg.Value.(*ast.Path)
	require.Len(t, path.Elements, 3)

	prog = parseSource(t, "x = arr[5]", false)
	asg = firstOp(t, prog).(*ast.Assignment)
	idx := asg.Value.(*ast.Indexed)
	require.Len(t, idx.Index.Elements, 1)
}

func TestCallOnPath(t *testing.T) {
	prog := parseSource(t, "io.print(1, \"two\")", false)
	call := firstOp(t, prog).(*ast.FunctionCall)
	require.Len(t, call.Name.Elements, 2)
	assert.Len(t, call.Arguments.Elements, 2)
}

func TestSyntaxErrorFormat(t *testing.T) {
	tokens, err := lexer.New("func (").Scan()
	require.NoError(t, err)
	_, err = New(tokens, false).Parse()
	require.Error(t, err)
	synErr, ok := err.(*SyntaxError)
	require.True(t, ok, "error type = %T, want *SyntaxError", err)
	assert.Contains(t, synErr.Error(), "Syntax error at")
	assert.Contains(t, synErr.Error(), "(:1)")
}

func TestBreakContinueParse(t *testing.T) {
	prog := parseSource(t, "loop { break\ncontinue }", false)
	loop := firstOp(t, prog).(*ast.Loop)
	require.Len(t, loop.Code.Operations, 2)
	_, ok := loop.Code.Operations[0].Op.(*ast.Break)
	assert.True(t, ok)
	_, ok = loop.Code.Operations[1].Op.(*ast.Continue)
	assert.True(t, ok)
}
