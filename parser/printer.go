package parser

import (
	"encoding/json"

	"mew/ast"
)

// astPrinter implements ast.Visitor and builds a JSON-friendly
// representation of the tree using maps and slices.
type astPrinter struct{}

func nilOrAccept(n ast.Node, v ast.Visitor) any {
	if n == nil {
		return nil
	}
	return n.Accept(v)
}

func acceptAll[T ast.Node](nodes []T, v ast.Visitor) []any {
	out := make([]any, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Accept(v))
	}
	return out
}

func (p astPrinter) VisitProgram(n *ast.Program) any {
	ops := make([]any, 0, len(n.Operations))
	for _, op := range n.Operations {
		ops = append(ops, op.Accept(p))
	}
	return map[string]any{"type": "Program", "operations": ops}
}

func (p astPrinter) VisitOperation(n *ast.Operation) any {
	return map[string]any{"type": "Operation", "line": n.Line(), "op": nilOrAccept(n.Op, p)}
}

func (p astPrinter) VisitName(n *ast.Name) any {
	return map[string]any{"type": "Name", "value": n.Value}
}

func (p astPrinter) VisitInteger(n *ast.Integer) any {
	return map[string]any{"type": "Integer", "value": n.Value}
}

func (p astPrinter) VisitFloat(n *ast.Float) any {
	return map[string]any{"type": "Float", "value": n.Value}
}

func (p astPrinter) VisitString(n *ast.String) any {
	return map[string]any{"type": "String", "value": n.Value}
}

func (p astPrinter) VisitBool(n *ast.Bool) any {
	return map[string]any{"type": "Bool", "value": n.Value}
}

func (p astPrinter) VisitBinOp(n *ast.BinOp) any {
	return map[string]any{
		"type":  "BinOp",
		"op":    n.Op,
		"left":  nilOrAccept(n.Left, p),
		"right": nilOrAccept(n.Right, p),
	}
}

func (p astPrinter) VisitPath(n *ast.Path) any {
	return map[string]any{"type": "Path", "elements": acceptAll(n.Elements, p)}
}

func (p astPrinter) VisitIndexed(n *ast.Indexed) any {
	return map[string]any{
		"type":  "Indexed",
		"var":   nilOrAccept(n.Var, p),
		"index": nilOrAccept(n.Index, p),
	}
}

func (p astPrinter) VisitArray(n *ast.Array) any {
	return map[string]any{"type": "Array", "elements": acceptAll(n.Elements, p)}
}

func (p astPrinter) VisitParameterList(n *ast.ParameterList) any {
	return map[string]any{"type": "ParameterList", "elements": acceptAll(n.Elements, p)}
}

func (p astPrinter) VisitTypedVarDefinition(n *ast.TypedVarDefinition) any {
	return map[string]any{
		"type":  "TypedVarDefinition",
		"vtype": nilOrAccept(n.Type, p),
		"array": nilOrAccept(n.Array, p),
		"var":   nilOrAccept(n.Var, p),
	}
}

func (p astPrinter) VisitAssignment(n *ast.Assignment) any {
	return map[string]any{
		"type":  "Assignment",
		"name":  nilOrAccept(n.Name, p),
		"value": nilOrAccept(n.Value, p),
	}
}

func (p astPrinter) VisitFunctionCall(n *ast.FunctionCall) any {
	return map[string]any{
		"type":      "FunctionCall",
		"name":      nilOrAccept(n.Name, p),
		"arguments": nilOrAccept(n.Arguments, p),
	}
}

func (p astPrinter) VisitFunc(n *ast.Func) any {
	var ret any
	if n.Ret != nil {
		ret = n.Ret.Accept(p)
	}
	return map[string]any{
		"type":         "Func",
		"name":         nilOrAccept(n.Name, p),
		"args":         nilOrAccept(n.Args, p),
		"ret":          ret,
		"code":         nilOrAccept(n.Code, p),
		"need_dealloc": n.NeedDealloc,
	}
}

func (p astPrinter) VisitIfElse(n *ast.IfElse) any {
	return map[string]any{
		"type":       "IfElse",
		"comparison": nilOrAccept(n.Comparison, p),
		"code":       nilOrAccept(n.Code, p),
		"else":       nilOrAccept(n.Else, p),
	}
}

func (p astPrinter) VisitWhile(n *ast.While) any {
	return map[string]any{
		"type":       "While",
		"comparison": nilOrAccept(n.Comparison, p),
		"code":       nilOrAccept(n.Code, p),
	}
}

func (p astPrinter) VisitLoop(n *ast.Loop) any {
	return map[string]any{"type": "Loop", "code": nilOrAccept(n.Code, p)}
}

func (p astPrinter) VisitBreak(n *ast.Break) any { return map[string]any{"type": "Break"} }

func (p astPrinter) VisitContinue(n *ast.Continue) any { return map[string]any{"type": "Continue"} }

func (p astPrinter) VisitReturn(n *ast.Return) any {
	return map[string]any{"type": "Return", "value": nilOrAccept(n.Value, p)}
}

func (p astPrinter) VisitStruct(n *ast.Struct) any {
	groups := make([]any, 0, len(n.Value))
	for _, g := range n.Value {
		groups = append(groups, g.Accept(p))
	}
	return map[string]any{"type": "Struct", "name": nilOrAccept(n.Name, p), "fields": groups}
}

func (p astPrinter) VisitNew(n *ast.New) any {
	return map[string]any{"type": "New", "obj": nilOrAccept(n.Obj, p)}
}

func (p astPrinter) VisitIncrement(n *ast.Increment) any {
	return map[string]any{"type": "Increment", "what": nilOrAccept(n.What, p)}
}

func (p astPrinter) VisitDecrement(n *ast.Decrement) any {
	return map[string]any{"type": "Decrement", "what": nilOrAccept(n.What, p)}
}

func (p astPrinter) VisitUse(n *ast.Use) any {
	return map[string]any{
		"type":    "Use",
		"path":    nilOrAccept(n.Path, p),
		"as_name": nilOrAccept(n.AsName, p),
	}
}

func (p astPrinter) VisitExternC(n *ast.ExternC) any {
	return map[string]any{"type": "ExternC", "code": n.Code}
}

func (p astPrinter) VisitWarning(n *ast.Warning) any {
	return map[string]any{"type": "Warning", "message": n.Message, "refer": nilOrAccept(n.Refer, p)}
}

func (p astPrinter) VisitEnd(n *ast.End) any {
	return map[string]any{"type": "End", "char": n.Char}
}

func (p astPrinter) VisitFree(n *ast.Free) any {
	return map[string]any{"type": "Free", "value": nilOrAccept(n.Value, p)}
}

// PrintASTJSON renders prog as an indented JSON document.
func PrintASTJSON(prog *ast.Program) (string, error) {
	printer := astPrinter{}
	tree := prog.Accept(printer)
	data, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
