// Package parser implements a recursive-descent, precedence-climbing
// parser over the mew token stream. Statements are terminated by `;` or
// newline; the expression grammar is a fixed chain of binding-power
// methods from equality down to primary.
package parser

import (
	"mew/ast"
	"mew/token"
)

var comparisonOps = []token.Type{token.GREATER, token.LESS}
var equalityOps = []token.Type{token.EQUAL_EQUAL, token.NOT_EQUAL}
var relationalEqOps = []token.Type{token.GREATER_EQUAL, token.LESS_EQUAL}
var termOps = []token.Type{token.PLUS, token.MINUS}
var factorOps = []token.Type{token.MUL, token.DIV}

// Parser consumes a finished token stream and produces an *ast.Program.
type Parser struct {
	tokens        []token.Token
	position      int
	foldConstants bool
}

// New creates a Parser over the given token stream. foldConstants enables
// the optional parse-time constant folding of BinOp(IntegerLiteral op
// IntegerLiteral).
func New(tokens []token.Token, foldConstants bool) *Parser {
	return &Parser{tokens: tokens, foldConstants: foldConstants}
}

func (p *Parser) peek() token.Token { return p.tokens[p.position] }

func (p *Parser) previous() token.Token { return p.tokens[p.position-1] }

func (p *Parser) atEnd() bool { return p.peek().Type == token.EOF }

func (p *Parser) advance() token.Token {
	if !p.atEnd() {
		p.position++
	}
	return p.previous()
}

func (p *Parser) check(t token.Type) bool {
	if p.atEnd() {
		return t == token.EOF
	}
	return p.peek().Type == t
}

func (p *Parser) checkAt(offset int, t token.Type) bool {
	idx := p.position + offset
	if idx >= len(p.tokens) {
		return t == token.EOF
	}
	return p.tokens[idx].Type == t
}

func (p *Parser) match(types ...token.Type) bool {
	for _, t := range types {
		if p.check(t) {
			p.advance()
			return true
		}
	}
	return false
}

func (p *Parser) consume(t token.Type, message string) (token.Token, error) {
	if p.check(t) {
		return p.advance(), nil
	}
	cur := p.peek()
	return token.Token{}, &SyntaxError{Line: cur.Line, Token: cur.Lexeme, Type: string(cur.Type), Message: message}
}

func (p *Parser) syntaxErrorHere(message string) error {
	cur := p.peek()
	return &SyntaxError{Line: cur.Line, Token: cur.Lexeme, Type: string(cur.Type), Message: message}
}

// skipNewlines silently discards a run of zero or more NEWLINE tokens.
// Newlines carry no AST representation of their own (unlike a redundant
// ';', see End below); they are pure terminator positions in the grammar.
func (p *Parser) skipNewlines() {
	for p.check(token.NEWLINE) {
		p.advance()
	}
}

// consumeEnd requires one statement terminator (`;` or newline), consuming
// at most one semicolon plus any trailing newlines; before `}` or at EOF no
// terminator is needed and nothing is consumed. A second,
// immediately-following `;` is left for the caller's top-level loop to
// surface as a redundant-terminator End operation.
func (p *Parser) consumeEnd() error {
	if p.check(token.SEMICOLON) {
		p.advance()
		p.skipNewlines()
		return nil
	}
	if p.check(token.NEWLINE) {
		p.skipNewlines()
		return nil
	}
	if p.check(token.RCUR) || p.atEnd() {
		return nil
	}
	return p.syntaxErrorHere("expected ';' or newline after statement")
}

// Parse parses the entire token stream into a Program. It stops and
// returns the first error encountered and aborts rather than continuing
// to parse past a syntax error.
func (p *Parser) Parse() (*ast.Program, error) {
	prog := &ast.Program{}
	p.skipNewlines()
	for !p.atEnd() {
		if p.check(token.SEMICOLON) {
			tok := p.advance()
			prog.Operations = append(prog.Operations, &ast.Operation{
				Pos: ast.Pos{Lineno: tok.Line},
				Op:  &ast.End{Pos: ast.Pos{Lineno: tok.Line}, Char: ";"},
			})
			p.skipNewlines()
			continue
		}
		op, err := p.operation()
		if err != nil {
			return nil, err
		}
		prog.Operations = append(prog.Operations, op)
		p.skipNewlines()
	}
	return prog, nil
}

// block parses a `{` ... `}` body into a Program, skipping blank lines
// around the braces.
func (p *Parser) block() (*ast.Program, error) {
	if _, err := p.consume(token.LCUR, "expected '{'"); err != nil {
		return nil, err
	}
	prog := &ast.Program{}
	p.skipNewlines()
	for !p.check(token.RCUR) && !p.atEnd() {
		if p.check(token.SEMICOLON) {
			tok := p.advance()
			prog.Operations = append(prog.Operations, &ast.Operation{
				Pos: ast.Pos{Lineno: tok.Line},
				Op:  &ast.End{Pos: ast.Pos{Lineno: tok.Line}, Char: ";"},
			})
			p.skipNewlines()
			continue
		}
		op, err := p.operation()
		if err != nil {
			return nil, err
		}
		prog.Operations = append(prog.Operations, op)
		p.skipNewlines()
	}
	if _, err := p.consume(token.RCUR, "expected '}' to close block"); err != nil {
		return nil, err
	}
	return prog, nil
}

// operation parses a single top-level or nested statement and wraps it in
// an *ast.Operation.
func (p *Parser) operation() (*ast.Operation, error) {
	line := p.peek().Line

	switch {
	case p.check(token.IF):
		node, err := p.ifStatement()
		return wrap(line, node, err)
	case p.check(token.WHILE):
		node, err := p.whileStatement()
		return wrap(line, node, err)
	case p.check(token.LOOP):
		node, err := p.loopStatement()
		return wrap(line, node, err)
	case p.check(token.FUNC):
		node, err := p.funcDeclaration()
		return wrap(line, node, err)
	case p.check(token.RETURN):
		node, err := p.returnStatement()
		return wrap(line, node, err)
	case p.check(token.STRUCT):
		node, err := p.structDeclaration()
		return wrap(line, node, err)
	case p.check(token.WARNING):
		node, err := p.warningStatement()
		return wrap(line, node, err)
	case p.check(token.EXTERN):
		node, err := p.externStatement()
		return wrap(line, node, err)
	case p.check(token.USE):
		node, err := p.useStatement()
		return wrap(line, node, err)
	case p.check(token.BREAK):
		p.advance()
		err := p.consumeEnd()
		return wrap(line, &ast.Break{Pos: ast.Pos{Lineno: line}}, err)
	case p.check(token.CONTINUE):
		p.advance()
		err := p.consumeEnd()
		return wrap(line, &ast.Continue{Pos: ast.Pos{Lineno: line}}, err)
	case p.check(token.LCUR):
		node, err := p.block()
		if err != nil {
			return nil, err
		}
		return &ast.Operation{Pos: ast.Pos{Lineno: line}, Op: node}, nil
	}

	if node, ok, err := p.tryTypedDeclaration(); ok {
		if err != nil {
			return nil, err
		}
		if err := p.consumeEnd(); err != nil {
			return nil, err
		}
		return &ast.Operation{Pos: ast.Pos{Lineno: line}, Op: node}, nil
	}

	node, err := p.expressionStatement()
	return wrap(line, node, err)
}

func wrap(line int32, node ast.Node, err error) (*ast.Operation, error) {
	if err != nil {
		return nil, err
	}
	return &ast.Operation{Pos: ast.Pos{Lineno: line}, Op: node}, nil
}

// tryTypedDeclaration recognizes `TYPE name ...` as a typed variable
// declaration by lookahead: an identifier immediately followed by another
// identifier (optionally through an array-bracket annotation) can only be
// a type name in mew's grammar, since bare expressions never juxtapose two
// identifiers.
func (p *Parser) tryTypedDeclaration() (ast.Node, bool, error) {
	if !p.check(token.IDENTIFIER) {
		return nil, false, nil
	}
	// Lookahead for `IDENT [ ... ] IDENT` or `IDENT IDENT`.
	offset := 1
	if p.checkAt(offset, token.LBRACKET) {
		depth := 0
		i := offset
		for {
			if p.checkAt(i, token.LBRACKET) {
				depth++
			} else if p.checkAt(i, token.RBRACKET) {
				depth--
				i++
				if depth == 0 {
					break
				}
				continue
			} else if p.checkAt(i, token.EOF) {
				return nil, false, nil
			}
			i++
		}
		offset = i
	}
	if !p.checkAt(offset, token.IDENTIFIER) {
		return nil, false, nil
	}

	typedVar, err := p.typedVarDefinition()
	if err != nil {
		return nil, true, err
	}
	line := typedVar.Line()
	var value ast.Node
	if p.match(token.ASSIGN) {
		value, err = p.expression()
		if err != nil {
			return nil, true, err
		}
	}
	return &ast.Assignment{Pos: ast.Pos{Lineno: line}, Name: typedVar, Value: value}, true, nil
}

// typedVarDefinition parses `TYPE ('[' size ']')? name`.
func (p *Parser) typedVarDefinition() (*ast.TypedVarDefinition, error) {
	typeTok, err := p.consume(token.IDENTIFIER, "expected type name")
	if err != nil {
		return nil, err
	}
	line := typeTok.Line
	typeName := &ast.Name{Pos: ast.Pos{Lineno: line}, Lexpos: typeTok.Lexpos, Value: typeTok.Lexeme}

	var arr *ast.Array
	if p.match(token.LBRACKET) {
		elements := []ast.Node{}
		if !p.check(token.RBRACKET) {
			size, err := p.expression()
			if err != nil {
				return nil, err
			}
			elements = append(elements, size)
		}
		if _, err := p.consume(token.RBRACKET, "expected ']'"); err != nil {
			return nil, err
		}
		arr = &ast.Array{Pos: ast.Pos{Lineno: line}, Elements: elements}
	}

	varTok, err := p.consume(token.IDENTIFIER, "expected variable name")
	if err != nil {
		return nil, err
	}
	varName := &ast.Name{Pos: ast.Pos{Lineno: varTok.Line}, Lexpos: varTok.Lexpos, Value: varTok.Lexeme}

	return &ast.TypedVarDefinition{Pos: ast.Pos{Lineno: line}, Type: typeName, Array: arr, Var: varName}, nil
}

// collapsedTypedList parses a comma-separated list such as
// "type a, b, type2 c, d" where a bare identifier inherits the most
// recently seen type.
func (p *Parser) collapsedTypedList(closing token.Type) ([]*ast.TypedVarDefinition, error) {
	var result []*ast.TypedVarDefinition
	if p.check(closing) {
		return result, nil
	}
	var lastType *ast.Name
	for {
		p.skipNewlines()
		nameTok, err := p.consume(token.IDENTIFIER, "expected parameter name")
		if err != nil {
			return nil, err
		}
		if p.check(token.IDENTIFIER) {
			// This identifier was the type; the next is the variable name.
			typeName := &ast.Name{Pos: ast.Pos{Lineno: nameTok.Line}, Lexpos: nameTok.Lexpos, Value: nameTok.Lexeme}
			lastType = typeName
			varTok := p.advance()
			varName := &ast.Name{Pos: ast.Pos{Lineno: varTok.Line}, Lexpos: varTok.Lexpos, Value: varTok.Lexeme}
			result = append(result, &ast.TypedVarDefinition{Pos: ast.Pos{Lineno: nameTok.Line}, Type: typeName, Var: varName})
		} else {
			if lastType == nil {
				return nil, &SyntaxError{Line: nameTok.Line, Token: nameTok.Lexeme, Type: string(nameTok.Type), Message: "parameter has no type"}
			}
			varName := &ast.Name{Pos: ast.Pos{Lineno: nameTok.Line}, Lexpos: nameTok.Lexpos, Value: nameTok.Lexeme}
			result = append(result, &ast.TypedVarDefinition{Pos: ast.Pos{Lineno: nameTok.Line}, Type: lastType, Var: varName})
		}
		if !p.match(token.COMMA) {
			break
		}
	}
	return result, nil
}

func (p *Parser) ifStatement() (ast.Node, error) {
	tok := p.advance() // IF
	cond, err := p.expression()
	if err != nil {
		return nil, err
	}
	thenCode, err := p.block()
	if err != nil {
		return nil, err
	}
	ifElse := &ast.IfElse{Pos: ast.Pos{Lineno: tok.Line}, Comparison: cond, Code: thenCode}

	if p.check(token.ELSE) {
		p.advance()
		if p.check(token.IF) {
			nested, err := p.ifStatement()
			if err != nil {
				return nil, err
			}
			ifElse.Else = &ast.Program{
				Pos:        ast.Pos{Lineno: nested.Line()},
				Operations: []*ast.Operation{{Pos: ast.Pos{Lineno: nested.Line()}, Op: nested}},
			}
		} else {
			elseCode, err := p.block()
			if err != nil {
				return nil, err
			}
			ifElse.Else = elseCode
		}
	}
	return ifElse, nil
}

func (p *Parser) whileStatement() (ast.Node, error) {
	tok := p.advance() // WHILE
	cond, err := p.expression()
	if err != nil {
		return nil, err
	}
	body, err := p.block()
	if err != nil {
		return nil, err
	}
	return &ast.While{Pos: ast.Pos{Lineno: tok.Line}, Comparison: cond, Code: body}, nil
}

func (p *Parser) loopStatement() (ast.Node, error) {
	tok := p.advance() // LOOP
	body, err := p.block()
	if err != nil {
		return nil, err
	}
	return &ast.Loop{Pos: ast.Pos{Lineno: tok.Line}, Code: body}, nil
}

// funcDeclaration parses both the full `func name(args) ret { ... }` form
// and the lambda `func name(args) ret -> expr` form, desugaring the latter
// into a Func whose body is `{ return expr }`.
func (p *Parser) funcDeclaration() (ast.Node, error) {
	tok := p.advance() // FUNC
	nameTok, err := p.consume(token.IDENTIFIER, "expected function name")
	if err != nil {
		return nil, err
	}
	name := &ast.Name{Pos: ast.Pos{Lineno: nameTok.Line}, Lexpos: nameTok.Lexpos, Value: nameTok.Lexeme}

	if _, err := p.consume(token.LPA, "expected '(' after function name"); err != nil {
		return nil, err
	}
	params, err := p.collapsedTypedList(token.RPA)
	if err != nil {
		return nil, err
	}
	if _, err := p.consume(token.RPA, "expected ')'"); err != nil {
		return nil, err
	}

	argsList := &ast.ParameterList{Pos: ast.Pos{Lineno: tok.Line}}
	for _, param := range params {
		argsList.Elements = append(argsList.Elements, param)
	}

	var ret *ast.Name
	if p.check(token.IDENTIFIER) {
		retTok := p.advance()
		ret = &ast.Name{Pos: ast.Pos{Lineno: retTok.Line}, Lexpos: retTok.Lexpos, Value: retTok.Lexeme}
	}

	if p.match(token.ARROW) {
		expr, err := p.expression()
		if err != nil {
			return nil, err
		}
		if err := p.consumeEnd(); err != nil {
			return nil, err
		}
		body := &ast.Program{
			Pos: ast.Pos{Lineno: tok.Line},
			Operations: []*ast.Operation{
				{Pos: ast.Pos{Lineno: expr.Line()}, Op: &ast.Return{Pos: ast.Pos{Lineno: expr.Line()}, Value: expr}},
			},
		}
		return &ast.Func{Pos: ast.Pos{Lineno: tok.Line}, Name: name, Args: argsList, Ret: ret, Code: body}, nil
	}

	code, err := p.block()
	if err != nil {
		return nil, err
	}
	return &ast.Func{Pos: ast.Pos{Lineno: tok.Line}, Name: name, Args: argsList, Ret: ret, Code: code}, nil
}

func (p *Parser) returnStatement() (ast.Node, error) {
	tok := p.advance() // RETURN
	var value ast.Node
	if !p.check(token.SEMICOLON) && !p.check(token.NEWLINE) && !p.check(token.RCUR) && !p.atEnd() {
		v, err := p.expression()
		if err != nil {
			return nil, err
		}
		value = v
	}
	if err := p.consumeEnd(); err != nil {
		return nil, err
	}
	return &ast.Return{Pos: ast.Pos{Lineno: tok.Line}, Value: value}, nil
}

// structDeclaration parses `struct Name { type a, b; type2 c; ... }`.
func (p *Parser) structDeclaration() (ast.Node, error) {
	tok := p.advance() // STRUCT
	nameTok, err := p.consume(token.IDENTIFIER, "expected struct name")
	if err != nil {
		return nil, err
	}
	name := &ast.Name{Pos: ast.Pos{Lineno: nameTok.Line}, Lexpos: nameTok.Lexpos, Value: nameTok.Lexeme}

	if _, err := p.consume(token.LCUR, "expected '{' after struct name"); err != nil {
		return nil, err
	}
	var groups []*ast.ParameterList
	p.skipNewlines()
	for !p.check(token.RCUR) && !p.atEnd() {
		if p.check(token.SEMICOLON) {
			p.advance()
			p.skipNewlines()
			continue
		}
		fields, err := p.collapsedTypedList(token.SEMICOLON)
		if err != nil {
			return nil, err
		}
		group := &ast.ParameterList{Pos: ast.Pos{Lineno: tok.Line}}
		for _, f := range fields {
			group.Elements = append(group.Elements, f)
		}
		groups = append(groups, group)
		if err := p.consumeEnd(); err != nil {
			return nil, err
		}
		p.skipNewlines()
	}
	if _, err := p.consume(token.RCUR, "expected '}' to close struct"); err != nil {
		return nil, err
	}
	return &ast.Struct{Pos: ast.Pos{Lineno: tok.Line}, Name: name, Value: groups}, nil
}

// warningStatement parses `warning "message" decl`, wrapping whichever
// operation follows; the kind of that operation is not checked (see
// DESIGN.md open question 4).
func (p *Parser) warningStatement() (ast.Node, error) {
	tok := p.advance() // WARNING
	msgTok, err := p.consume(token.STRING, "expected warning message string")
	if err != nil {
		return nil, err
	}
	inner, err := p.operation()
	if err != nil {
		return nil, err
	}
	return &ast.Warning{Pos: ast.Pos{Lineno: tok.Line}, Message: msgTok.Literal.(string), Refer: inner.Op}, nil
}

// externStatement parses `extern "raw C code";`.
func (p *Parser) externStatement() (ast.Node, error) {
	tok := p.advance() // EXTERN
	codeTok, err := p.consume(token.STRING, "expected extern C code string")
	if err != nil {
		return nil, err
	}
	if err := p.consumeEnd(); err != nil {
		return nil, err
	}
	return &ast.ExternC{Pos: ast.Pos{Lineno: tok.Line}, Code: codeTok.Literal.(string)}, nil
}

// useStatement parses `use a.b.c [as alias];`. Reserved, unimplemented;
// see DESIGN.md open question 2.
func (p *Parser) useStatement() (ast.Node, error) {
	tok := p.advance() // USE
	path, err := p.path()
	if err != nil {
		return nil, err
	}
	var alias *ast.Name
	if p.match(token.AS) {
		aliasTok, err := p.consume(token.IDENTIFIER, "expected alias name after 'as'")
		if err != nil {
			return nil, err
		}
		alias = &ast.Name{Pos: ast.Pos{Lineno: aliasTok.Line}, Lexpos: aliasTok.Lexpos, Value: aliasTok.Lexeme}
	}
	if err := p.consumeEnd(); err != nil {
		return nil, err
	}
	return &ast.Use{Pos: ast.Pos{Lineno: tok.Line}, Path: path, AsName: alias}, nil
}

// expressionStatement parses an assignment, compound assignment,
// increment/decrement, or bare expression used as a statement.
func (p *Parser) expressionStatement() (ast.Node, error) {
	line := p.peek().Line
	expr, err := p.expression()
	if err != nil {
		return nil, err
	}

	switch {
	case p.match(token.ASSIGN):
		value, err := p.expression()
		if err != nil {
			return nil, err
		}
		if err := p.consumeEnd(); err != nil {
			return nil, err
		}
		return &ast.Assignment{Pos: ast.Pos{Lineno: line}, Name: expr, Value: value}, nil

	case p.match(token.PLUS_EQUAL, token.MINUS_EQUAL):
		op := "+"
		if p.previous().Type == token.MINUS_EQUAL {
			op = "-"
		}
		rhs, err := p.expression()
		if err != nil {
			return nil, err
		}
		if err := p.consumeEnd(); err != nil {
			return nil, err
		}
		return &ast.Assignment{
			Pos:   ast.Pos{Lineno: line},
			Name:  expr,
			Value: &ast.BinOp{Pos: ast.Pos{Lineno: line}, Left: expr, Op: op, Right: rhs},
		}, nil

	case p.match(token.INCREMENT):
		if err := p.consumeEnd(); err != nil {
			return nil, err
		}
		return &ast.Increment{Pos: ast.Pos{Lineno: line}, What: expr}, nil

	case p.match(token.DECREMENT):
		if err := p.consumeEnd(); err != nil {
			return nil, err
		}
		return &ast.Decrement{Pos: ast.Pos{Lineno: line}, What: expr}, nil
	}

	if err := p.consumeEnd(); err != nil {
		return nil, err
	}
	return expr, nil
}

// --- expression grammar: precedence climbing, low to high ---
// == != | > < | >= <= | + - | * / | unary - (right-assoc) | primary

func (p *Parser) expression() (ast.Node, error) {
	return p.equality()
}

func (p *Parser) equality() (ast.Node, error) {
	left, err := p.comparison()
	if err != nil {
		return nil, err
	}
	for p.matchAny(equalityOps) {
		opTok := p.previous()
		right, err := p.comparison()
		if err != nil {
			return nil, err
		}
		left = p.binOp(left, string(opTok.Type), right)
	}
	return left, nil
}

func (p *Parser) comparison() (ast.Node, error) {
	left, err := p.relational()
	if err != nil {
		return nil, err
	}
	for p.matchAny(comparisonOps) {
		opTok := p.previous()
		right, err := p.relational()
		if err != nil {
			return nil, err
		}
		left = p.binOp(left, string(opTok.Type), right)
	}
	return left, nil
}

func (p *Parser) relational() (ast.Node, error) {
	left, err := p.term()
	if err != nil {
		return nil, err
	}
	for p.matchAny(relationalEqOps) {
		opTok := p.previous()
		right, err := p.term()
		if err != nil {
			return nil, err
		}
		left = p.binOp(left, string(opTok.Type), right)
	}
	return left, nil
}

func (p *Parser) term() (ast.Node, error) {
	left, err := p.factor()
	if err != nil {
		return nil, err
	}
	for p.matchAny(termOps) {
		opTok := p.previous()
		right, err := p.factor()
		if err != nil {
			return nil, err
		}
		left = p.binOp(left, string(opTok.Type), right)
	}
	return left, nil
}

func (p *Parser) factor() (ast.Node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for p.matchAny(factorOps) {
		opTok := p.previous()
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = p.binOp(left, string(opTok.Type), right)
	}
	return left, nil
}

func (p *Parser) unary() (ast.Node, error) {
	if p.match(token.MINUS) {
		opTok := p.previous()
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		// Unary minus lowers to `0 - x` so the emitter/analyzer only ever
		// deal with the BinOp node kind; there is no separate Unary node
		// in the data model.
		zero := &ast.Integer{Pos: ast.Pos{Lineno: opTok.Line}, Value: 0}
		return p.binOp(zero, "-", right), nil
	}
	return p.postfix()
}

// postfix parses primary expressions followed by any number of call,
// index, or field-access suffixes.
func (p *Parser) postfix() (ast.Node, error) {
	expr, err := p.primary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.check(token.LPA):
			path, err := nodeToPath(expr)
			if err != nil {
				return nil, err
			}
			p.advance()
			args, err := p.parameterList(token.RPA)
			if err != nil {
				return nil, err
			}
			if _, err := p.consume(token.RPA, "expected ')' to close call arguments"); err != nil {
				return nil, err
			}
			expr = &ast.FunctionCall{Pos: ast.Pos{Lineno: expr.Line()}, Name: path, Arguments: args}
		case p.check(token.LBRACKET):
			p.advance()
			idxExpr, err := p.expression()
			if err != nil {
				return nil, err
			}
			if _, err := p.consume(token.RBRACKET, "expected ']'"); err != nil {
				return nil, err
			}
			expr = &ast.Indexed{
				Pos:   ast.Pos{Lineno: expr.Line()},
				Var:   expr,
				Index: &ast.Array{Pos: ast.Pos{Lineno: expr.Line()}, Elements: []ast.Node{idxExpr}},
			}
		case p.check(token.DOT):
			path, err := nodeToPath(expr)
			if err != nil {
				return nil, err
			}
			p.advance()
			fieldTok, err := p.consume(token.IDENTIFIER, "expected field name after '.'")
			if err != nil {
				return nil, err
			}
			path.Elements = append(path.Elements, &ast.Name{Pos: ast.Pos{Lineno: fieldTok.Line}, Lexpos: fieldTok.Lexpos, Value: fieldTok.Lexeme})
			expr = path
		default:
			return expr, nil
		}
	}
}

// nodeToPath coerces a Name or Path node into a *Path, since calls and
// dotted access always operate on a Path per the ast data model.
func nodeToPath(n ast.Node) (*ast.Path, error) {
	switch v := n.(type) {
	case *ast.Path:
		return v, nil
	case *ast.Name:
		return &ast.Path{Pos: ast.Pos{Lineno: v.Line()}, Elements: []*ast.Name{v}}, nil
	default:
		return nil, &SyntaxError{Line: n.Line(), Message: "expected a name before '(' or '.'"}
	}
}

func (p *Parser) parameterList(closing token.Type) (*ast.ParameterList, error) {
	list := &ast.ParameterList{}
	if p.check(closing) {
		return list, nil
	}
	for {
		expr, err := p.expression()
		if err != nil {
			return nil, err
		}
		list.Elements = append(list.Elements, expr)
		if !p.match(token.COMMA) {
			break
		}
	}
	return list, nil
}

func (p *Parser) primary() (ast.Node, error) {
	tok := p.peek()
	switch tok.Type {
	case token.FALSE:
		p.advance()
		return &ast.Bool{Pos: ast.Pos{Lineno: tok.Line}, Lexpos: tok.Lexpos, Value: false}, nil
	case token.TRUE:
		p.advance()
		return &ast.Bool{Pos: ast.Pos{Lineno: tok.Line}, Lexpos: tok.Lexpos, Value: true}, nil
	case token.INTEGER:
		p.advance()
		return &ast.Integer{Pos: ast.Pos{Lineno: tok.Line}, Lexpos: tok.Lexpos, Value: tok.Literal.(int64)}, nil
	case token.FLOAT:
		p.advance()
		return &ast.Float{Pos: ast.Pos{Lineno: tok.Line}, Lexpos: tok.Lexpos, Value: tok.Literal.(float64)}, nil
	case token.STRING:
		p.advance()
		return &ast.String{Pos: ast.Pos{Lineno: tok.Line}, Lexpos: tok.Lexpos, Value: tok.Literal.(string)}, nil
	case token.NEW:
		return p.newExpression()
	case token.IDENTIFIER:
		p.advance()
		return &ast.Name{Pos: ast.Pos{Lineno: tok.Line}, Lexpos: tok.Lexpos, Value: tok.Lexeme}, nil
	case token.LPA:
		p.advance()
		expr, err := p.expression()
		if err != nil {
			return nil, err
		}
		if _, err := p.consume(token.RPA, "expected ')'"); err != nil {
			return nil, err
		}
		return expr, nil
	case token.LBRACKET:
		p.advance()
		arr, err := p.arrayLiteral()
		if err != nil {
			return nil, err
		}
		return arr, nil
	}
	return nil, &SyntaxError{Line: tok.Line, Token: tok.Lexeme, Type: string(tok.Type), Message: "unrecognized expression"}
}

func (p *Parser) arrayLiteral() (*ast.Array, error) {
	arr := &ast.Array{Pos: ast.Pos{Lineno: p.previous().Line}}
	if p.check(token.RBRACKET) {
		p.advance()
		return arr, nil
	}
	for {
		elem, err := p.expression()
		if err != nil {
			return nil, err
		}
		arr.Elements = append(arr.Elements, elem)
		if !p.match(token.COMMA) {
			break
		}
	}
	if _, err := p.consume(token.RBRACKET, "expected ']' to close array literal"); err != nil {
		return nil, err
	}
	return arr, nil
}

func (p *Parser) path() (*ast.Path, error) {
	first, err := p.consume(token.IDENTIFIER, "expected identifier")
	if err != nil {
		return nil, err
	}
	path := &ast.Path{Pos: ast.Pos{Lineno: first.Line}, Elements: []*ast.Name{
		{Pos: ast.Pos{Lineno: first.Line}, Lexpos: first.Lexpos, Value: first.Lexeme},
	}}
	for p.match(token.DOT) {
		next, err := p.consume(token.IDENTIFIER, "expected identifier after '.'")
		if err != nil {
			return nil, err
		}
		path.Elements = append(path.Elements, &ast.Name{Pos: ast.Pos{Lineno: next.Line}, Lexpos: next.Lexpos, Value: next.Lexeme})
	}
	return path, nil
}

// newExpression parses `new T(args)`, `new T`, or `new T[n]`.
func (p *Parser) newExpression() (ast.Node, error) {
	tok := p.advance() // NEW
	typePath, err := p.path()
	if err != nil {
		return nil, err
	}
	switch {
	case p.check(token.LPA):
		p.advance()
		args, err := p.parameterList(token.RPA)
		if err != nil {
			return nil, err
		}
		if _, err := p.consume(token.RPA, "expected ')'"); err != nil {
			return nil, err
		}
		call := &ast.FunctionCall{Pos: ast.Pos{Lineno: tok.Line}, Name: typePath, Arguments: args}
		return &ast.New{Pos: ast.Pos{Lineno: tok.Line}, Obj: call}, nil
	case p.check(token.LBRACKET):
		p.advance()
		size, err := p.expression()
		if err != nil {
			return nil, err
		}
		if _, err := p.consume(token.RBRACKET, "expected ']'"); err != nil {
			return nil, err
		}
		indexed := &ast.Indexed{
			Pos:   ast.Pos{Lineno: tok.Line},
			Var:   typePath,
			Index: &ast.Array{Pos: ast.Pos{Lineno: tok.Line}, Elements: []ast.Node{size}},
		}
		return &ast.New{Pos: ast.Pos{Lineno: tok.Line}, Obj: indexed}, nil
	default:
		return &ast.New{Pos: ast.Pos{Lineno: tok.Line}, Obj: typePath}, nil
	}
}

func (p *Parser) matchAny(types []token.Type) bool {
	return p.match(types...)
}

// binOp constructs a BinOp node, optionally folding two integer literal
// operands at parse time for +, -, * when constant folding is enabled.
func (p *Parser) binOp(left ast.Node, op string, right ast.Node) ast.Node {
	if p.foldConstants && (op == "+" || op == "-" || op == "*") {
		if li, ok := left.(*ast.Integer); ok {
			if ri, ok := right.(*ast.Integer); ok {
				var value int64
				switch op {
				case "+":
					value = li.Value + ri.Value
				case "-":
					value = li.Value - ri.Value
				case "*":
					value = li.Value * ri.Value
				}
				return &ast.Integer{Pos: ast.Pos{Lineno: li.Line()}, Value: value}
			}
		}
	}
	return &ast.BinOp{Pos: ast.Pos{Lineno: left.Line()}, Left: left, Op: op, Right: right}
}
