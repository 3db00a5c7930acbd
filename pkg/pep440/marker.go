package pep440

import (
	"runtime"
	"strings"

	"github.com/talusfx/hab/pkg/errors"
	"github.com/talusfx/hab/pkg/platform"
)

// Marker is a parsed PEP 508 environment marker such as
// `platform_system == "Linux" and platform_machine != "aarch64"`.
//
// Markers are evaluated against a map of host facts; see [HostEnv].
type Marker struct {
	raw  string
	expr markerExpr
}

// ParseMarker parses a marker expression.
func ParseMarker(s string) (*Marker, error) {
	toks, err := lexMarker(s)
	if err != nil {
		return nil, err
	}
	p := &markerParser{toks: toks}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.done() {
		return nil, errors.New(errors.ErrCodeInvalidRequirement, "unexpected %q in marker %q", p.peek().text, s)
	}
	return &Marker{raw: s, expr: expr}, nil
}

// String returns the marker as originally written.
func (m *Marker) String() string { return m.raw }

// Evaluate reports whether the marker holds for the given host facts.
// Referencing a fact missing from env is an error, matching the strict
// behavior of the Python packaging library.
func (m *Marker) Evaluate(env map[string]string) (bool, error) {
	return m.expr.eval(env)
}

// HostEnv returns the marker facts for a platform. Facts that require a
// Python interpreter (python_version and friends) are intentionally
// absent; markers referencing them fail evaluation.
func HostEnv(p platform.Platform) map[string]string {
	env := map[string]string{
		"platform_release": "",
		"platform_version": "",
	}
	switch p.Name() {
	case "windows":
		env["os_name"] = "nt"
		env["sys_platform"] = "win32"
		env["platform_system"] = "Windows"
		env["platform_machine"] = "AMD64"
	case "osx":
		env["os_name"] = "posix"
		env["sys_platform"] = "darwin"
		env["platform_system"] = "Darwin"
		env["platform_machine"] = machineName("darwin")
	default:
		env["os_name"] = "posix"
		env["sys_platform"] = "linux"
		env["platform_system"] = "Linux"
		env["platform_machine"] = machineName("linux")
	}
	return env
}

func machineName(goos string) string {
	switch runtime.GOARCH {
	case "amd64":
		return "x86_64"
	case "arm64":
		if goos == "darwin" {
			return "arm64"
		}
		return "aarch64"
	default:
		return runtime.GOARCH
	}
}

// =============================================================================
// Expression tree
// =============================================================================

type markerExpr interface {
	eval(env map[string]string) (bool, error)
}

type orExpr struct {
	terms []markerExpr
}

func (e *orExpr) eval(env map[string]string) (bool, error) {
	for _, t := range e.terms {
		ok, err := t.eval(env)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

type andExpr struct {
	terms []markerExpr
}

func (e *andExpr) eval(env map[string]string) (bool, error) {
	for _, t := range e.terms {
		ok, err := t.eval(env)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// cmpExpr is a single comparison. Each side is either a quoted literal or
// a marker variable resolved from the environment at evaluation time.
type cmpExpr struct {
	lhs markerValue
	op  string
	rhs markerValue
}

type markerValue struct {
	text    string
	literal bool
}

func (v markerValue) resolve(env map[string]string) (string, error) {
	if v.literal {
		return v.text, nil
	}
	resolved, ok := env[v.text]
	if !ok {
		return "", errors.New(errors.ErrCodeInvalidRequirement, "undefined marker variable %q", v.text)
	}
	return resolved, nil
}

func (e *cmpExpr) eval(env map[string]string) (bool, error) {
	lhs, err := e.lhs.resolve(env)
	if err != nil {
		return false, err
	}
	rhs, err := e.rhs.resolve(env)
	if err != nil {
		return false, err
	}
	return evalOp(e.op, lhs, rhs)
}

func evalOp(op, lhs, rhs string) (bool, error) {
	switch op {
	case "in":
		return strings.Contains(rhs, lhs), nil
	case "not in":
		return !strings.Contains(rhs, lhs), nil
	case "===":
		return lhs == rhs, nil
	}

	// Version semantics when both sides parse as versions, otherwise
	// plain string comparison. `~=` only exists for versions.
	lv, lerr := ParseVersion(lhs)
	rv, rerr := ParseVersion(rhs)
	if lerr == nil && rerr == nil {
		if op == "~=" {
			specs, err := ParseSpecifiers("~=" + rhs)
			if err != nil {
				return false, err
			}
			return specs.Check(lv, true), nil
		}
		return compareResult(op, lv.Compare(rv))
	}
	if op == "~=" {
		return false, errors.New(errors.ErrCodeInvalidRequirement, "operator ~= requires version operands, got %q and %q", lhs, rhs)
	}
	return compareResult(op, strings.Compare(lhs, rhs))
}

func compareResult(op string, c int) (bool, error) {
	switch op {
	case "==":
		return c == 0, nil
	case "!=":
		return c != 0, nil
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	case ">=":
		return c >= 0, nil
	}
	return false, errors.New(errors.ErrCodeInvalidRequirement, "unsupported marker operator %q", op)
}

// =============================================================================
// Lexer / parser
// =============================================================================

type tokKind int

const (
	tokIdent tokKind = iota
	tokString
	tokOp
	tokLParen
	tokRParen
	tokEOF
)

type token struct {
	kind tokKind
	text string
}

func lexMarker(s string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case c == '\'' || c == '"':
			end := strings.IndexByte(s[i+1:], c)
			if end < 0 {
				return nil, errors.New(errors.ErrCodeInvalidRequirement, "unterminated string in marker %q", s)
			}
			toks = append(toks, token{tokString, s[i+1 : i+1+end]})
			i += end + 2
		case strings.ContainsRune("<>=!~", rune(c)):
			j := i
			for j < len(s) && strings.ContainsRune("<>=!~", rune(s[j])) {
				j++
			}
			toks = append(toks, token{tokOp, s[i:j]})
			i = j
		case isIdentByte(c):
			j := i
			for j < len(s) && isIdentByte(s[j]) {
				j++
			}
			toks = append(toks, token{tokIdent, s[i:j]})
			i = j
		default:
			return nil, errors.New(errors.ErrCodeInvalidRequirement, "unexpected character %q in marker %q", string(c), s)
		}
	}
	return append(toks, token{tokEOF, ""}), nil
}

func isIdentByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '.' || c == '-'
}

type markerParser struct {
	toks []token
	pos  int
}

func (p *markerParser) peek() token { return p.toks[p.pos] }

func (p *markerParser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *markerParser) done() bool { return p.peek().kind == tokEOF }

func (p *markerParser) parseOr() (markerExpr, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	terms := []markerExpr{first}
	for p.peek().kind == tokIdent && p.peek().text == "or" {
		p.next()
		term, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return &orExpr{terms: terms}, nil
}

func (p *markerParser) parseAnd() (markerExpr, error) {
	first, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	terms := []markerExpr{first}
	for p.peek().kind == tokIdent && p.peek().text == "and" {
		p.next()
		term, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return &andExpr{terms: terms}, nil
}

func (p *markerParser) parseAtom() (markerExpr, error) {
	if p.peek().kind == tokLParen {
		p.next()
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, errors.New(errors.ErrCodeInvalidRequirement, "missing closing parenthesis in marker")
		}
		p.next()
		return expr, nil
	}
	return p.parseComparison()
}

func (p *markerParser) parseComparison() (markerExpr, error) {
	lhs, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	op, err := p.parseOperator()
	if err != nil {
		return nil, err
	}
	rhs, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	return &cmpExpr{lhs: lhs, op: op, rhs: rhs}, nil
}

func (p *markerParser) parseValue() (markerValue, error) {
	t := p.next()
	switch t.kind {
	case tokString:
		return markerValue{text: t.text, literal: true}, nil
	case tokIdent:
		return markerValue{text: t.text}, nil
	}
	return markerValue{}, errors.New(errors.ErrCodeInvalidRequirement, "expected value in marker, got %q", t.text)
}

func (p *markerParser) parseOperator() (string, error) {
	t := p.next()
	if t.kind == tokOp {
		switch t.text {
		case "==", "!=", "<", "<=", ">", ">=", "~=", "===":
			return t.text, nil
		}
		return "", errors.New(errors.ErrCodeInvalidRequirement, "invalid marker operator %q", t.text)
	}
	if t.kind == tokIdent {
		switch t.text {
		case "in":
			return "in", nil
		case "not":
			nt := p.next()
			if nt.kind == tokIdent && nt.text == "in" {
				return "not in", nil
			}
			return "", errors.New(errors.ErrCodeInvalidRequirement, "expected 'in' after 'not' in marker, got %q", nt.text)
		}
	}
	return "", errors.New(errors.ErrCodeInvalidRequirement, "expected operator in marker, got %q", t.text)
}
