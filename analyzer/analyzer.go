// Package analyzer implements the two-pass semantic analysis stage:
// scope-threaded symbol/type resolution and overload resolution
// (commonAnalyze), followed by an escape-analysis pass that inserts Free
// nodes and marks functions need_dealloc (analyzeMemory).
//
// Fatal diagnostics are reported by panicking with a *diag.SemanticError
// and recovered at the Analyze boundary rather than threading an error
// return through every visitor method.
package analyzer

import (
	"fmt"

	"mew/ast"
	"mew/diag"
)

var primitiveKinds = map[string]string{
	"isize": "Integer", "usize": "Integer",
	"i8": "Integer", "i16": "Integer", "i32": "Integer", "i64": "Integer",
	"u8": "Integer", "u16": "Integer", "u32": "Integer", "u64": "Integer",
	"float": "Float", "double": "Float",
	"bool":   "Bool",
	"string": "String",
}

// scope is one lexical level of variable/function/type visibility. Child
// scopes hold an immutable pointer to their parent and never mutate it;
// only the scope a declaration occurs in is written to.
type scope struct {
	parent *scope
	vars   map[string]*ast.TypedVarDefinition
	funcs  map[string][]*ast.Func
	types  map[string]string
	inLoop bool
}

func newScope(parent *scope) *scope {
	return &scope{
		parent: parent,
		vars:   map[string]*ast.TypedVarDefinition{},
		funcs:  map[string][]*ast.Func{},
		types:  map[string]string{},
	}
}

func newRootScope() *scope {
	s := newScope(nil)
	for name, kind := range primitiveKinds {
		s.types[name] = kind
	}
	return s
}

func (s *scope) child(inLoop bool) *scope {
	c := newScope(s)
	c.inLoop = inLoop || s.inLoop
	return c
}

func (s *scope) lookupVar(name string) (*ast.TypedVarDefinition, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if v, ok := cur.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

func (s *scope) lookupType(name string) (string, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if k, ok := cur.types[name]; ok {
			return k, true
		}
	}
	return "", false
}

func (s *scope) lookupFuncs(name string) []*ast.Func {
	for cur := s; cur != nil; cur = cur.parent {
		if fns, ok := cur.funcs[name]; ok && len(fns) > 0 {
			return fns
		}
	}
	return nil
}

// Analyzer holds the state threaded across both passes: the file name for
// diagnostics, the accumulated (non-fatal) warnings, and the struct field
// table, which is global since struct declarations are visible regardless
// of lexical nesting in mew.
type Analyzer struct {
	filename     string
	warnings     []diag.Diagnostic
	structFields map[string][]*ast.TypedVarDefinition
}

// Analyze runs both analysis passes over prog in place and returns the
// accumulated warnings. The first fatal diagnostic aborts and is returned
// as err; prog may be partially mutated in that case.
func Analyze(prog *ast.Program, filename string) (warnings []diag.Diagnostic, err error) {
	a := &Analyzer{filename: filename, structFields: map[string][]*ast.TypedVarDefinition{}}

	defer func() {
		if r := recover(); r != nil {
			if se, ok := r.(*diag.SemanticError); ok {
				err = se
				warnings = a.warnings
				return
			}
			panic(r)
		}
	}()

	root := newRootScope()
	a.commonAnalyze(prog, root)
	a.analyzeMemory(prog)
	return a.warnings, nil
}

func (a *Analyzer) fatal(line int32, msg string) {
	panic(&diag.SemanticError{Diagnostic: diag.Diagnostic{
		Severity: diag.SeverityError, Filename: a.filename, Line: line, Column: -1, Message: msg,
	}})
}

func (a *Analyzer) warn(line int32, msg string) {
	a.warnings = append(a.warnings, diag.NewWarning(a.filename, line, msg))
}

// commonAnalyze performs pass 1 over a Program: it pre-registers struct
// and function declarations at this level (so forward and self-recursive
// references resolve), coerces main's return type, then walks every
// operation in source order.
func (a *Analyzer) commonAnalyze(prog *ast.Program, s *scope) {
	for _, op := range prog.Operations {
		switch node := declOf(op.Op).(type) {
		case *ast.Struct:
			a.registerStruct(node, s)
		case *ast.Func:
			s.funcs[node.Name.Value] = append(s.funcs[node.Name.Value], node)
		}
	}

	for _, op := range prog.Operations {
		if fn, ok := declOf(op.Op).(*ast.Func); ok {
			if fn.Name.Value == "main" && fn.Ret == nil {
				fn.Ret = &ast.Name{Pos: ast.Pos{Lineno: ast.Synthetic}, Value: "isize"}
				fn.Code.Operations = append(fn.Code.Operations, &ast.Operation{
					Pos: ast.Pos{Lineno: ast.Synthetic},
					Op: &ast.Return{Pos: ast.Pos{Lineno: ast.Synthetic},
						Value: &ast.Integer{Pos: ast.Pos{Lineno: ast.Synthetic}, Value: 0}},
				})
			}
		}
	}

	for _, op := range prog.Operations {
		a.analyzeOperation(op, s)
	}
}

// declOf unwraps a Warning to the declaration it wraps, so pre-registration
// sees warned structs/funcs too.
func declOf(n ast.Node) ast.Node {
	if w, ok := n.(*ast.Warning); ok {
		return w.Refer
	}
	return n
}

func (a *Analyzer) analyzeOperation(op *ast.Operation, s *scope) {
	switch node := op.Op.(type) {
	case *ast.End:
		a.warn(node.Line(), fmt.Sprintf("Redundant character `%s` (creates an unnecessary operation)", node.Char))
	case *ast.Assignment:
		a.analyzeAssignment(node, s)
	case *ast.Func:
		a.analyzeFunc(node, s)
	case *ast.Warning:
		a.warn(node.Line(), node.Message)
		a.analyzeOperation(&ast.Operation{Pos: ast.Pos{Lineno: node.Line()}, Op: node.Refer}, s)
	case *ast.Break:
		if !s.inLoop {
			a.fatal(node.Line(), "`break` statement not in loop")
		}
	case *ast.Continue:
		if !s.inLoop {
			a.fatal(node.Line(), "`continue` statement not in loop")
		}
	case *ast.Loop:
		a.commonAnalyze(node.Code, s.child(true))
	case *ast.While:
		a.resolveBinopType(node.Comparison, s)
		a.commonAnalyze(node.Code, s.child(true))
	case *ast.IfElse:
		a.resolveBinopType(node.Comparison, s)
		a.commonAnalyze(node.Code, s.child(false))
		if node.Else != nil {
			a.commonAnalyze(node.Else, s.child(false))
		}
	case *ast.FunctionCall:
		a.resolveOverload(node, s)
	case *ast.Struct:
		// already registered during pre-registration
	case *ast.Return:
		if node.Value != nil {
			a.resolveBinopType(node.Value, s)
		}
	case *ast.Use:
		a.warn(node.Line(), "modules (`use`) are not implemented, the statement is ignored")
	case *ast.Increment:
		a.resolveBinopType(node.What, s)
	case *ast.Decrement:
		a.resolveBinopType(node.What, s)
	case *ast.ExternC:
		// raw text, nothing to analyze
	case *ast.Program:
		a.commonAnalyze(node, s.child(false))
	default:
		a.resolveBinopType(node, s)
	}
}

func (a *Analyzer) analyzeAssignment(asg *ast.Assignment, s *scope) {
	switch lhs := asg.Name.(type) {
	case *ast.TypedVarDefinition:
		declaredKind := a.kindOfTypeName(lhs.Type.Value, s, lhs.Line())
		if asg.Value != nil {
			valueKind := a.resolveBinopType(asg.Value, s)
			if valueKind != declaredKind {
				panic(&diag.SemanticError{Diagnostic: diag.Diagnostic{
					Severity: diag.SeverityError,
					Filename: a.filename,
					Line:     asg.Line(),
					Column:   -1,
					Message: fmt.Sprintf("variable %q declared as %s but initialized with another type than declared",
						lhs.Var.Value, lhs.Type.Value),
					SuggestedFix: a.suggestFix(asg.Value, lhs.Var.Value),
				}})
			}
		}
		s.vars[lhs.Var.Value] = lhs
	case *ast.Name:
		if _, ok := s.lookupVar(lhs.Value); !ok {
			panic(&diag.SemanticError{Diagnostic: diag.Diagnostic{
				Severity: diag.SeverityError, Filename: a.filename, Line: lhs.Line(), Column: -1,
				Message: fmt.Sprintf("assignment to undeclared variable %q", lhs.Value),
				Note:    "declare it first with a type, e.g. `u32 " + lhs.Value + " = ...;`",
			}})
		}
		if asg.Value != nil {
			a.resolveBinopType(asg.Value, s)
		}
	case *ast.Path:
		a.resolvePathKind(lhs, s)
		if asg.Value != nil {
			a.resolveBinopType(asg.Value, s)
		}
	case *ast.Indexed:
		a.resolveBinopType(lhs, s)
		if asg.Value != nil {
			a.resolveBinopType(asg.Value, s)
		}
	case *ast.ParameterList:
		a.fatal(asg.Line(), "multi-target assignment is not supported")
	default:
		a.fatal(asg.Line(), "invalid assignment target")
	}
}

// suggestFix implements the untyped-declaration fix generator: u32 for
// non-negative integer literals, i32 otherwise, string for string
// literals.
func (a *Analyzer) suggestFix(value ast.Node, varName string) string {
	switch v := value.(type) {
	case *ast.Integer:
		if v.Value >= 0 {
			return fmt.Sprintf("u32 %s = %d;", varName, v.Value)
		}
		return fmt.Sprintf("i32 %s = %d;", varName, v.Value)
	case *ast.String:
		return fmt.Sprintf("string %s = %q;", varName, v.Value)
	default:
		return ""
	}
}

func (a *Analyzer) analyzeFunc(fn *ast.Func, s *scope) {
	child := s.child(false)
	for _, elem := range fn.Args.Elements {
		p, ok := elem.(*ast.TypedVarDefinition)
		if !ok {
			a.fatal(elem.Line(), "function parameter is missing a type")
		}
		child.vars[p.Var.Value] = p
	}
	a.commonAnalyze(fn.Code, child)
}

func (a *Analyzer) registerStruct(st *ast.Struct, s *scope) {
	var fields []*ast.TypedVarDefinition
	for _, group := range st.Value {
		for _, el := range group.Elements {
			if f, ok := el.(*ast.TypedVarDefinition); ok {
				fields = append(fields, f)
			}
		}
	}
	a.structFields[st.Name.Value] = fields
	s.types[st.Name.Value] = st.Name.Value
}

func (a *Analyzer) kindOfTypeName(name string, s *scope, line int32) string {
	k, ok := s.lookupType(name)
	if !ok {
		a.fatal(line, fmt.Sprintf("unknown type %q", name))
	}
	return k
}

// resolveOverload performs overload resolution for call, memoizing the
// chosen Func into call.Origin. Called both from statement-level call
// analysis and from resolveBinopType when a call appears in expression
// position.
func (a *Analyzer) resolveOverload(call *ast.FunctionCall, s *scope) *ast.Func {
	if call.Origin != nil {
		return call.Origin
	}
	name := call.Name.Elements[len(call.Name.Elements)-1].Value
	candidates := s.lookupFuncs(name)
	if len(candidates) == 0 {
		a.fatal(call.Line(), fmt.Sprintf("unknown function %q", name))
	}

	argKinds := make([]string, len(call.Arguments.Elements))
	for i, arg := range call.Arguments.Elements {
		argKinds[i] = a.resolveBinopType(arg, s)
	}

	var signatures []string
	for _, cand := range candidates {
		params := cand.Args.Elements
		sig := make([]string, len(params))
		paramKinds := make([]string, len(params))
		ok := len(params) == len(argKinds)
		for i, elem := range params {
			p := elem.(*ast.TypedVarDefinition)
			sig[i] = p.Type.Value
			if ok {
				pk, known := s.lookupType(p.Type.Value)
				paramKinds[i] = pk
				if !known || pk != argKinds[i] {
					ok = false
				}
			}
		}
		signatures = append(signatures, fmt.Sprintf("%s(%v)", name, sig))
		if ok {
			call.Origin = cand
			return cand
		}
	}

	a.fatal(call.Line(), fmt.Sprintf("no overload of %q matches the call's argument types; available: %v", name, signatures))
	return nil
}

// resolveBinopType implements resolve_binop_type: the recursive type-kind
// resolver shared by binary-operation checking, assignment checking, and
// overload resolution.
func (a *Analyzer) resolveBinopType(n ast.Node, s *scope) string {
	switch v := n.(type) {
	case *ast.Integer:
		return "Integer"
	case *ast.Float:
		return "Float"
	case *ast.String:
		return "String"
	case *ast.Bool:
		return "Bool"
	case *ast.Name:
		def, ok := s.lookupVar(v.Value)
		if !ok {
			a.fatal(v.Line(), fmt.Sprintf("unknown variable %q", v.Value))
		}
		return a.kindOfTypeName(def.Type.Value, s, v.Line())
	case *ast.FunctionCall:
		fn := a.resolveOverload(v, s)
		if fn.Ret == nil {
			return ""
		}
		return a.kindOfTypeName(fn.Ret.Value, s, v.Line())
	case *ast.Path:
		return a.resolvePathKind(v, s)
	case *ast.New:
		return a.resolveNewKind(v, s)
	case *ast.Indexed:
		return a.resolveBinopType(v.Var, s)
	case *ast.BinOp:
		lk := a.resolveBinopType(v.Left, s)
		rk := a.resolveBinopType(v.Right, s)
		if lk != rk {
			a.fatal(v.Line(), fmt.Sprintf("binary operation %q between mismatched types %s and %s", v.Op, lk, rk))
		}
		return lk
	default:
		a.fatal(n.Line(), "expression has no resolvable type")
		return ""
	}
}

func (a *Analyzer) resolvePathKind(p *ast.Path, s *scope) string {
	if len(p.Elements) == 0 {
		a.fatal(p.Line(), "empty path")
	}
	head := p.Elements[0]
	def, ok := s.lookupVar(head.Value)
	if !ok {
		a.fatal(head.Line(), fmt.Sprintf("unknown variable %q", head.Value))
	}
	currentType := def.Type.Value
	for _, elem := range p.Elements[1:] {
		fields, ok := a.structFields[currentType]
		if !ok {
			a.fatal(elem.Line(), fmt.Sprintf("%q is not a struct type", currentType))
		}
		found := false
		for _, f := range fields {
			if f.Var.Value == elem.Value {
				currentType = f.Type.Value
				found = true
				break
			}
		}
		if !found {
			a.fatal(elem.Line(), fmt.Sprintf("struct %q has no field %q", currentType, elem.Value))
		}
	}
	return a.kindOfTypeName(currentType, s, p.Line())
}

func (a *Analyzer) resolveNewKind(n *ast.New, s *scope) string {
	switch obj := n.Obj.(type) {
	case *ast.FunctionCall:
		name := obj.Name.Elements[len(obj.Name.Elements)-1].Value
		return a.kindOfTypeName(name, s, n.Line())
	case *ast.Path:
		name := obj.Elements[len(obj.Elements)-1].Value
		return a.kindOfTypeName(name, s, n.Line())
	case *ast.Indexed:
		path, ok := obj.Var.(*ast.Path)
		if !ok {
			a.fatal(n.Line(), "invalid `new T[n]` target")
		}
		name := path.Elements[len(path.Elements)-1].Value
		return a.kindOfTypeName(name, s, n.Line())
	default:
		a.fatal(n.Line(), "invalid `new` expression")
		return ""
	}
}

// --- pass 2: escape analysis / Free insertion ---

// allocSet tracks currently-live heap bindings in insertion order, so Free
// nodes are emitted deterministically.
type allocSet struct {
	order   []string
	present map[string]bool
}

func newAllocSet() *allocSet { return &allocSet{present: map[string]bool{}} }

func (s *allocSet) add(name string) {
	if !s.present[name] {
		s.order = append(s.order, name)
		s.present[name] = true
	}
}

func (s *allocSet) remove(name string) { delete(s.present, name) }

func (s *allocSet) keys() []string {
	var out []string
	for _, n := range s.order {
		if s.present[n] {
			out = append(out, n)
		}
	}
	return out
}

func (s *allocSet) clone() *allocSet {
	c := newAllocSet()
	c.order = append([]string(nil), s.order...)
	for k, v := range s.present {
		c.present[k] = v
	}
	return c
}

func (a *Analyzer) analyzeMemory(prog *ast.Program) {
	for _, op := range prog.Operations {
		if fn, ok := declOf(op.Op).(*ast.Func); ok {
			a.analyzeFuncMemory(fn)
		}
	}
}

func (a *Analyzer) analyzeFuncMemory(fn *ast.Func) {
	for _, op := range fn.Code.Operations {
		if nested, ok := declOf(op.Op).(*ast.Func); ok {
			a.analyzeFuncMemory(nested)
		}
	}
	fn.Code.Operations = a.walkMemory(fn.Code.Operations, newAllocSet(), fn)
}

func assignmentTargetName(n ast.Node) string {
	switch v := n.(type) {
	case *ast.TypedVarDefinition:
		return v.Var.Value
	case *ast.Name:
		return v.Value
	default:
		return ""
	}
}

func (a *Analyzer) recordAlloc(asg *ast.Assignment, allocs *allocSet) {
	name := assignmentTargetName(asg.Name)
	if name == "" || asg.Value == nil {
		return
	}
	switch v := asg.Value.(type) {
	case *ast.New:
		allocs.add(name)
	case *ast.FunctionCall:
		if v.Origin != nil && v.Origin.NeedDealloc {
			allocs.add(name)
		}
	}
}

func freeOp(name string) *ast.Operation {
	return &ast.Operation{
		Pos: ast.Pos{Lineno: ast.Synthetic},
		Op: &ast.Free{
			Pos:   ast.Pos{Lineno: ast.Synthetic},
			Value: &ast.Name{Pos: ast.Pos{Lineno: ast.Synthetic}, Value: name},
		},
	}
}

// walkMemory processes one block's operations linearly, recursing into
// nested If/While/Loop bodies with a private copy of the live-alloc set
// (their own local allocations don't leak Frees into the surrounding
// block), while allocations already live when a nested block is entered
// remain visible so an early return deep inside still frees them. A block
// that ends without a return frees only the allocations it made itself.
func (a *Analyzer) walkMemory(ops []*ast.Operation, allocs *allocSet, fn *ast.Func) []*ast.Operation {
	var result []*ast.Operation
	returned := false
	inherited := allocs.clone()

	for _, op := range ops {
		switch node := op.Op.(type) {
		case *ast.Assignment:
			result = append(result, op)
			a.recordAlloc(node, allocs)
		case *ast.Return:
			switch v := node.Value.(type) {
			case *ast.Name:
				if allocs.present[v.Value] {
					fn.NeedDealloc = true
					allocs.remove(v.Value)
				}
			case *ast.New:
				fn.NeedDealloc = true
			case *ast.FunctionCall:
				if v.Origin != nil && v.Origin.NeedDealloc {
					fn.NeedDealloc = true
				}
			}
			for _, k := range allocs.keys() {
				result = append(result, freeOp(k))
			}
			result = append(result, op)
			returned = true
		case *ast.IfElse:
			node.Code.Operations = a.walkMemory(node.Code.Operations, allocs.clone(), fn)
			if node.Else != nil {
				node.Else.Operations = a.walkMemory(node.Else.Operations, allocs.clone(), fn)
			}
			result = append(result, op)
		case *ast.While:
			node.Code.Operations = a.walkMemory(node.Code.Operations, allocs.clone(), fn)
			result = append(result, op)
		case *ast.Loop:
			node.Code.Operations = a.walkMemory(node.Code.Operations, allocs.clone(), fn)
			result = append(result, op)
		default:
			result = append(result, op)
		}
		if returned {
			break
		}
	}

	if !returned {
		for _, k := range allocs.keys() {
			if !inherited.present[k] {
				result = append(result, freeOp(k))
			}
		}
	}
	return result
}
