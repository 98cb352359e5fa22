// Package emitter lowers an analyzed mew AST into a single ANSI C
// translation unit: a stateful recursive visitor mirroring the shape of
// the analyzer, except it accumulates C source text instead of mutating
// the tree.
//
// Internal "should never happen" failures (an unknown new-target, a
// struct referencing an unregistered field type) panic with a
// *diag.EmitError and are recovered at the Emit boundary, matching the
// analyzer's panic-then-recover idiom.
package emitter

import (
	"fmt"
	"os"
	"strings"

	"mew/ast"
	"mew/diag"
	"mew/target"
)

var primitiveSizes = map[string]int{
	"u8": 1, "i8": 1,
	"u16": 2, "i16": 2,
	"u32": 4, "i32": 4,
	"u64": 8, "i64": 8,
	"usize": 4, "isize": 4,
}

// Emitter accumulates the tables the lowering rules consult: computed
// struct byte sizes, the overload sets (kept as name -> []*ast.Func,
// never flattened to a single Func per name), and, for Path lowering, the
// declared type of every local and parameter seen so far (one flat table
// for the whole unit; entries are never removed).
type Emitter struct {
	filename         string
	structs          map[string]int
	structFieldDecls map[string][]*ast.TypedVarDefinition
	funcs            map[string][]*ast.Func
	vartable         map[string]string
}

// Emit lowers prog to a complete C translation unit, including the
// `#include` preamble resolved through manifest.
func Emit(prog *ast.Program, filename string, manifest *target.Manifest) (out string, err error) {
	e := &Emitter{
		filename:         filename,
		structs:          map[string]int{},
		structFieldDecls: map[string][]*ast.TypedVarDefinition{},
		funcs:            map[string][]*ast.Func{},
		vartable:         map[string]string{},
	}

	defer func() {
		if r := recover(); r != nil {
			if ee, ok := r.(*diag.EmitError); ok {
				err = ee
				return
			}
			panic(r)
		}
	}()

	e.collectDecls(prog)

	defsPath, ferr := manifest.FullPath("defs.h")
	if ferr != nil {
		return "", ferr
	}
	allocPath, ferr := manifest.FullPath("alloc.h")
	if ferr != nil {
		return "", ferr
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "#include %q\n", defsPath)
	fmt.Fprintf(&sb, "#include %q\n", allocPath)
	sb.WriteString(e.asString(prog.Accept(e)))
	return sb.String(), nil
}

func (e *Emitter) asString(v any) string {
	s, _ := v.(string)
	return s
}

func (e *Emitter) emitErr(line int32, msg string) {
	panic(&diag.EmitError{Diagnostic: diag.Diagnostic{
		Severity: diag.SeverityError, Filename: e.filename, Line: line, Column: -1, Message: msg,
	}})
}

// --- declaration pre-collection ---
// Struct field tables and overload sets are gathered in a pass over the
// whole tree before codegen starts, so a struct or function referenced
// ahead of its declaration (or a need_dealloc lookup on a sibling) still
// resolves.

func (e *Emitter) collectDecls(prog *ast.Program) {
	for _, op := range prog.Operations {
		e.collectDeclsNode(op.Op)
	}
}

func (e *Emitter) collectDeclsNode(n ast.Node) {
	switch v := n.(type) {
	case *ast.Struct:
		e.registerStruct(v)
	case *ast.Func:
		e.funcs[v.Name.Value] = append(e.funcs[v.Name.Value], v)
		e.collectDecls(v.Code)
	case *ast.Warning:
		e.collectDeclsNode(v.Refer)
	case *ast.IfElse:
		e.collectDecls(v.Code)
		if v.Else != nil {
			e.collectDecls(v.Else)
		}
	case *ast.While:
		e.collectDecls(v.Code)
	case *ast.Loop:
		e.collectDecls(v.Code)
	case *ast.Program:
		e.collectDecls(v)
	}
}

func (e *Emitter) registerStruct(st *ast.Struct) {
	var fields []*ast.TypedVarDefinition
	for _, group := range st.Value {
		for _, el := range group.Elements {
			if f, ok := el.(*ast.TypedVarDefinition); ok {
				fields = append(fields, f)
			}
		}
	}
	e.structFieldDecls[st.Name.Value] = fields
}

// structSize computes and memoizes a struct's byte size as the sum of its
// fields' primitive sizes (recursing through nested struct fields).
func (e *Emitter) structSize(name string) int {
	if sz, ok := e.structs[name]; ok {
		return sz
	}
	fields, ok := e.structFieldDecls[name]
	if !ok {
		e.emitErr(ast.Synthetic, fmt.Sprintf("unknown struct type %q", name))
	}
	total := 0
	for _, f := range fields {
		if sz, ok := primitiveSizes[f.Type.Value]; ok {
			total += sz
		} else {
			total += e.structSize(f.Type.Value)
		}
	}
	e.structs[name] = total
	return total
}

func cTypeName(name string) string { return name }

// mangleSuffix concatenates a function's declared parameter type names
// followed by `_`. A zero-parameter function mangles with `V_`, mirroring
// C's `(void)` parameter convention.
func mangleSuffix(fn *ast.Func) string {
	if len(fn.Args.Elements) == 0 {
		return "V_"
	}
	var sb strings.Builder
	for _, elem := range fn.Args.Elements {
		p := elem.(*ast.TypedVarDefinition)
		sb.WriteString(p.Type.Value)
	}
	sb.WriteString("_")
	return sb.String()
}

func isAllocatingRHS(v ast.Node) bool {
	if v == nil {
		return false
	}
	if _, ok := v.(*ast.New); ok {
		return true
	}
	if fc, ok := v.(*ast.FunctionCall); ok {
		return fc.Origin != nil && fc.Origin.NeedDealloc
	}
	return false
}

func indent(s string) string {
	trimmed := strings.TrimRight(s, "\n")
	if trimmed == "" {
		return ""
	}
	lines := strings.Split(trimmed, "\n")
	for i, l := range lines {
		if l == "" {
			continue
		}
		lines[i] = "    " + l
	}
	return strings.Join(lines, "\n") + "\n"
}

// --- ast.Visitor implementation ---

func (e *Emitter) VisitProgram(p *ast.Program) any {
	var sb strings.Builder
	var lastLine int32
	for _, op := range p.Operations {
		text := e.asString(op.Accept(e))
		if text == "" {
			continue
		}
		if op.Line() >= 1 && op.Line() != lastLine {
			fmt.Fprintf(&sb, "// line: %d\n", op.Line())
			lastLine = op.Line()
		}
		sb.WriteString(text)
		tail := text[len(text)-1]
		if tail != ';' && tail != '}' && tail != '\n' {
			sb.WriteString(";")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (e *Emitter) VisitOperation(op *ast.Operation) any {
	return e.asString(op.Op.Accept(e))
}

func (e *Emitter) VisitName(n *ast.Name) any { return n.Value }

func (e *Emitter) VisitInteger(n *ast.Integer) any { return fmt.Sprintf("%d", n.Value) }

func (e *Emitter) VisitFloat(n *ast.Float) any { return fmt.Sprintf("%g", n.Value) }

func (e *Emitter) VisitString(n *ast.String) any { return fmt.Sprintf("%q", n.Value) }

func (e *Emitter) VisitBool(n *ast.Bool) any {
	if n.Value {
		return "true"
	}
	return "false"
}

func (e *Emitter) VisitBinOp(n *ast.BinOp) any {
	left := e.asString(n.Left.Accept(e))
	right := e.asString(n.Right.Accept(e))
	return fmt.Sprintf("(%s %s %s)", left, n.Op, right)
}

func (e *Emitter) VisitPath(p *ast.Path) any {
	if len(p.Elements) == 1 {
		return p.Elements[0].Value
	}
	head := p.Elements[0].Value
	sep := "."
	if declType, ok := e.vartable[head]; ok {
		if _, isStruct := e.structFieldDecls[declType]; isStruct {
			sep = "->"
		}
	}
	var sb strings.Builder
	sb.WriteString(head)
	for _, el := range p.Elements[1:] {
		sb.WriteString(sep)
		sb.WriteString(el.Value)
	}
	return sb.String()
}

func (e *Emitter) VisitIndexed(n *ast.Indexed) any {
	varText := e.asString(n.Var.Accept(e))
	idx := ""
	if len(n.Index.Elements) > 0 {
		idx = e.asString(n.Index.Elements[0].Accept(e))
	}
	return fmt.Sprintf("%s[%s]", varText, idx)
}

func (e *Emitter) VisitArray(a *ast.Array) any {
	parts := make([]string, len(a.Elements))
	for i, el := range a.Elements {
		parts[i] = e.asString(el.Accept(e))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (e *Emitter) VisitParameterList(p *ast.ParameterList) any {
	parts := make([]string, len(p.Elements))
	for i, el := range p.Elements {
		parts[i] = e.asString(el.Accept(e))
	}
	return strings.Join(parts, ", ")
}

func (e *Emitter) VisitTypedVarDefinition(t *ast.TypedVarDefinition) any {
	cType := cTypeName(t.Type.Value)
	if t.Array != nil {
		size := ""
		if len(t.Array.Elements) > 0 {
			size = e.asString(t.Array.Elements[0].Accept(e))
		}
		return fmt.Sprintf("%s %s[%s]", cType, t.Var.Value, size)
	}
	return fmt.Sprintf("%s %s", cType, t.Var.Value)
}

func (e *Emitter) VisitAssignment(asg *ast.Assignment) any {
	switch lhs := asg.Name.(type) {
	case *ast.TypedVarDefinition:
		e.vartable[lhs.Var.Value] = lhs.Type.Value
		cType := cTypeName(lhs.Type.Value)
		star := ""
		if isAllocatingRHS(asg.Value) {
			star = "*"
		}
		var decl string
		if lhs.Array != nil {
			size := ""
			if len(lhs.Array.Elements) > 0 {
				size = e.asString(lhs.Array.Elements[0].Accept(e))
			}
			decl = fmt.Sprintf("%s%s %s[%s]", cType, star, lhs.Var.Value, size)
		} else {
			decl = fmt.Sprintf("%s%s %s", cType, star, lhs.Var.Value)
		}
		if asg.Value == nil {
			return decl
		}
		return fmt.Sprintf("%s = %s", decl, e.asString(asg.Value.Accept(e)))
	default:
		lvalue := e.asString(asg.Name.Accept(e))
		if asg.Value == nil {
			return lvalue
		}
		return fmt.Sprintf("%s = %s", lvalue, e.asString(asg.Value.Accept(e)))
	}
}

func (e *Emitter) VisitFunctionCall(fc *ast.FunctionCall) any {
	name := fc.Name.Elements[len(fc.Name.Elements)-1].Value
	mangled := name
	if name != "main" {
		if fc.Origin != nil {
			mangled = name + mangleSuffix(fc.Origin)
		} else if cands := e.funcs[name]; len(cands) == 1 {
			// Unanalyzed call with a single declared overload.
			mangled = name + mangleSuffix(cands[0])
		}
	}
	args := make([]string, len(fc.Arguments.Elements))
	for i, a := range fc.Arguments.Elements {
		args[i] = e.asString(a.Accept(e))
	}
	return fmt.Sprintf("%s(%s)", mangled, strings.Join(args, ", "))
}

func (e *Emitter) VisitFunc(fn *ast.Func) any {
	retType := "void"
	if fn.Ret != nil {
		retType = cTypeName(fn.Ret.Value)
	}
	star := ""
	if fn.NeedDealloc {
		star = "*"
	}
	mangled := fn.Name.Value
	if fn.Name.Value != "main" {
		mangled = fn.Name.Value + mangleSuffix(fn)
	}

	params := make([]string, len(fn.Args.Elements))
	for i, elem := range fn.Args.Elements {
		p := elem.(*ast.TypedVarDefinition)
		params[i] = fmt.Sprintf("%s %s", cTypeName(p.Type.Value), p.Var.Value)
		e.vartable[p.Var.Value] = p.Type.Value
	}
	paramList := strings.Join(params, ", ")
	if paramList == "" {
		paramList = "void"
	}

	body := e.asString(fn.Code.Accept(e))
	return fmt.Sprintf("%s%s %s(%s) {\n%s}", retType, star, mangled, paramList, indent(body))
}

func (e *Emitter) VisitIfElse(n *ast.IfElse) any {
	cond := e.asString(n.Comparison.Accept(e))
	thenBody := e.asString(n.Code.Accept(e))
	result := fmt.Sprintf("if (%s) {\n%s}", cond, indent(thenBody))
	if n.Else != nil {
		elseBody := e.asString(n.Else.Accept(e))
		result += fmt.Sprintf(" else {\n%s}", indent(elseBody))
	}
	return result
}

func (e *Emitter) VisitWhile(n *ast.While) any {
	cond := e.asString(n.Comparison.Accept(e))
	body := e.asString(n.Code.Accept(e))
	return fmt.Sprintf("while (%s) {\n%s}", cond, indent(body))
}

func (e *Emitter) VisitLoop(n *ast.Loop) any {
	body := e.asString(n.Code.Accept(e))
	return fmt.Sprintf("while (1) {\n%s}", indent(body))
}

func (e *Emitter) VisitBreak(n *ast.Break) any { return "break" }

func (e *Emitter) VisitContinue(n *ast.Continue) any { return "continue" }

func (e *Emitter) VisitReturn(n *ast.Return) any {
	if n.Value == nil {
		return "return"
	}
	return "return " + e.asString(n.Value.Accept(e))
}

func (e *Emitter) VisitStruct(st *ast.Struct) any {
	var fieldLines []string
	for _, group := range st.Value {
		for _, el := range group.Elements {
			p := el.(*ast.TypedVarDefinition)
			fieldLines = append(fieldLines, "    "+e.asString(p.Accept(e))+";")
		}
	}
	return fmt.Sprintf("typedef struct %s {\n%s\n} %s;", st.Name.Value, strings.Join(fieldLines, "\n"), st.Name.Value)
}

func (e *Emitter) VisitNew(n *ast.New) any {
	switch obj := n.Obj.(type) {
	case *ast.FunctionCall:
		name := obj.Name.Elements[len(obj.Name.Elements)-1].Value
		return fmt.Sprintf("__allocator_alloc(%d)", e.structSize(name))
	case *ast.Path:
		name := obj.Elements[len(obj.Elements)-1].Value
		return fmt.Sprintf("__allocator_alloc(%d)", e.structSize(name))
	case *ast.Indexed:
		path, ok := obj.Var.(*ast.Path)
		if !ok {
			e.emitErr(n.Line(), "invalid `new T[n]` target")
		}
		typeName := path.Elements[len(path.Elements)-1].Value
		count := ""
		if len(obj.Index.Elements) > 0 {
			count = e.asString(obj.Index.Elements[0].Accept(e))
		}
		return fmt.Sprintf("__allocator_alloc(sizeof(%s) * %s)", cTypeName(typeName), count)
	default:
		e.emitErr(n.Line(), "unrecognized `new` target")
		return ""
	}
}

func (e *Emitter) VisitIncrement(n *ast.Increment) any {
	return e.asString(n.What.Accept(e)) + "++"
}

func (e *Emitter) VisitDecrement(n *ast.Decrement) any {
	return e.asString(n.What.Accept(e)) + "--"
}

func (e *Emitter) VisitUse(n *ast.Use) any {
	fmt.Fprintf(os.Stderr, "mew: use statements are not implemented, ignoring (line %d)\n", n.Line())
	return ""
}

func (e *Emitter) VisitExternC(n *ast.ExternC) any { return n.Code }

func (e *Emitter) VisitWarning(n *ast.Warning) any {
	return fmt.Sprintf("#warning %q\n%s", n.Message, e.asString(n.Refer.Accept(e)))
}

func (e *Emitter) VisitEnd(n *ast.End) any { return "" }

func (e *Emitter) VisitFree(n *ast.Free) any {
	return fmt.Sprintf("__allocator_free(%s)", e.asString(n.Value.Accept(e)))
}
