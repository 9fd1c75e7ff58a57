package ast

import "github.com/storylang/storylang/internal/token"

// UseStatement resolves and merges a module.
type UseStatement struct {
	Tok  token.Token
	Path []string // dotted path, e.g. models.User -> ["models", "User"]
}

func (s *UseStatement) statementNode()      {}
func (s *UseStatement) TokenLiteral() string { return s.Tok.Literal }
func (s *UseStatement) String() string       { return "Use " + s.Tok.Literal }
func (s *UseStatement) Pos() token.Position  { return s.Tok.Pos }

// AssignmentStatement is "name is expr", introducing name in the current
// scope.
type AssignmentStatement struct {
	Tok   token.Token
	Name  string
	Value Expression
}

func (s *AssignmentStatement) statementNode()      {}
func (s *AssignmentStatement) TokenLiteral() string { return s.Tok.Literal }
func (s *AssignmentStatement) String() string       { return s.Name + " is " + s.Value.String() }
func (s *AssignmentStatement) Pos() token.Position  { return s.Tok.Pos }

// FieldInit is one "Field Value" pair of a Create statement's "with" tail.
type FieldInit struct {
	Field string
	Value Expression
}

// CreateStatement instantiates a Concept and binds it to a name.
type CreateStatement struct {
	Tok         token.Token
	ConceptName string
	InstName    string
	With        []FieldInit
}

func (s *CreateStatement) statementNode()      {}
func (s *CreateStatement) TokenLiteral() string { return s.Tok.Literal }
func (s *CreateStatement) String() string {
	return "Create " + s.ConceptName + " called " + s.InstName
}
func (s *CreateStatement) Pos() token.Position { return s.Tok.Pos }

// SetStatement is "Set <target> to <expr>"; Target is either an
// Identifier or a MemberAccessExpression.
type SetStatement struct {
	Tok    token.Token
	Target Expression
	Value  Expression
}

func (s *SetStatement) statementNode()      {}
func (s *SetStatement) TokenLiteral() string { return s.Tok.Literal }
func (s *SetStatement) String() string       { return "Set " + s.Target.String() + " to " + s.Value.String() }
func (s *SetStatement) Pos() token.Position  { return s.Tok.Pos }

// PrintStatement evaluates and displays its argument.
type PrintStatement struct {
	Tok   token.Token
	Value Expression
}

func (s *PrintStatement) statementNode()      {}
func (s *PrintStatement) TokenLiteral() string { return s.Tok.Literal }
func (s *PrintStatement) String() string       { return "Print " + s.Value.String() }
func (s *PrintStatement) Pos() token.Position  { return s.Tok.Pos }

// SwitchStatement is "Switch on/off <Situation>".
type SwitchStatement struct {
	Tok           token.Token
	SituationName string
	On            bool
}

func (s *SwitchStatement) statementNode()      {}
func (s *SwitchStatement) TokenLiteral() string { return s.Tok.Literal }
func (s *SwitchStatement) String() string {
	if s.On {
		return "Switch on " + s.SituationName
	}
	return "Switch off " + s.SituationName
}
func (s *SwitchStatement) Pos() token.Position { return s.Tok.Pos }

// IfStatement is "If <cond>: … [Else: …]".
type IfStatement struct {
	Tok         token.Token
	Condition   Expression
	Consequence []Statement
	Alternative []Statement
}

func (s *IfStatement) statementNode()      {}
func (s *IfStatement) TokenLiteral() string { return s.Tok.Literal }
func (s *IfStatement) String() string       { return "If " + s.Condition.String() }
func (s *IfStatement) Pos() token.Position  { return s.Tok.Pos }

// MatchArm is one "Is <expr>: <body>" arm of a When-match.
type MatchArm struct {
	Value Expression
	Body  []Statement
}

// MatchStatement is the "When <expr>: Is … Otherwise …" match form,
// distinct from a Concept's When-observer clause.
type MatchStatement struct {
	Tok       token.Token
	Scrutinee Expression
	Arms      []MatchArm
	Otherwise []Statement
}

func (s *MatchStatement) statementNode()      {}
func (s *MatchStatement) TokenLiteral() string { return s.Tok.Literal }
func (s *MatchStatement) String() string       { return "When " + s.Scrutinee.String() }
func (s *MatchStatement) Pos() token.Position  { return s.Tok.Pos }

// TryStatement is "Try: … Catch e: … Always: …".
type TryStatement struct {
	Tok       token.Token
	Body      []Statement
	CatchName string // empty if no Catch clause
	HasCatch  bool
	Catch     []Statement
	HasAlways bool
	Always    []Statement
}

func (s *TryStatement) statementNode()      {}
func (s *TryStatement) TokenLiteral() string { return s.Tok.Literal }
func (s *TryStatement) String() string       { return "Try: ..." }
func (s *TryStatement) Pos() token.Position  { return s.Tok.Pos }

// RepeatTimesStatement is "Repeat <count> times [called <counter>]: …".
type RepeatTimesStatement struct {
	Tok     token.Token
	Count   Expression
	Counter string // "" if no counter bound
	Body    []Statement
}

func (s *RepeatTimesStatement) statementNode()      {}
func (s *RepeatTimesStatement) TokenLiteral() string { return s.Tok.Literal }
func (s *RepeatTimesStatement) String() string       { return "Repeat ... times" }
func (s *RepeatTimesStatement) Pos() token.Position  { return s.Tok.Pos }

// RepeatWhileStatement is "Repeat while <cond>: …".
type RepeatWhileStatement struct {
	Tok       token.Token
	Condition Expression
	Body      []Statement
}

func (s *RepeatWhileStatement) statementNode()      {}
func (s *RepeatWhileStatement) TokenLiteral() string { return s.Tok.Literal }
func (s *RepeatWhileStatement) String() string       { return "Repeat while ..." }
func (s *RepeatWhileStatement) Pos() token.Position  { return s.Tok.Pos }

// ForEachStatement is "For each <name> in <expr>: …".
type ForEachStatement struct {
	Tok      token.Token
	VarName  string
	Iterable Expression
	Body     []Statement
}

func (s *ForEachStatement) statementNode()      {}
func (s *ForEachStatement) TokenLiteral() string { return s.Tok.Literal }
func (s *ForEachStatement) String() string       { return "For each " + s.VarName }
func (s *ForEachStatement) Pos() token.Position  { return s.Tok.Pos }

// ReturnStatement optionally carries a value.
type ReturnStatement struct {
	Tok   token.Token
	Value Expression // nil if bare "Return"
}

func (s *ReturnStatement) statementNode()      {}
func (s *ReturnStatement) TokenLiteral() string { return s.Tok.Literal }
func (s *ReturnStatement) String() string       { return "Return" }
func (s *ReturnStatement) Pos() token.Position  { return s.Tok.Pos }

// BreakStatement exits the innermost loop.
type BreakStatement struct{ Tok token.Token }

func (s *BreakStatement) statementNode()      {}
func (s *BreakStatement) TokenLiteral() string { return s.Tok.Literal }
func (s *BreakStatement) String() string       { return "Break" }
func (s *BreakStatement) Pos() token.Position  { return s.Tok.Pos }

// ContinueStatement skips to the next loop iteration.
type ContinueStatement struct{ Tok token.Token }

func (s *ContinueStatement) statementNode()      {}
func (s *ContinueStatement) TokenLiteral() string { return s.Tok.Literal }
func (s *ContinueStatement) String() string       { return "Continue" }
func (s *ContinueStatement) Pos() token.Position  { return s.Tok.Pos }

// ExpressionStatement wraps an expression evaluated for effect.
type ExpressionStatement struct {
	Tok   token.Token
	Value Expression
}

func (s *ExpressionStatement) statementNode()      {}
func (s *ExpressionStatement) TokenLiteral() string { return s.Tok.Literal }
func (s *ExpressionStatement) String() string       { return s.Value.String() }
func (s *ExpressionStatement) Pos() token.Position  { return s.Tok.Pos }
