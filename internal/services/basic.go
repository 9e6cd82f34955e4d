package services

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/technova/corpusd/internal/types"
)

var (
	whitespacePattern    = regexp.MustCompile(`\s+`)
	multiplySignPattern  = regexp.MustCompile(`(\d)\s*[x×]\s*(\d)`)
	timesWordPattern     = regexp.MustCompile(`\btimes\b`)
	multipliedByPattern  = regexp.MustCompile(`\bmultiplied by\b`)
	plusWordPattern      = regexp.MustCompile(`\bplus\b`)
	minusWordPattern     = regexp.MustCompile(`\bminus\b`)
	dividedByPattern     = regexp.MustCompile(`\b(divided by|over)\b`)
	nonArithmeticPattern = regexp.MustCompile(`[^0-9.+\-*/()\s]`)
	nonContextArith      = regexp.MustCompile(`[^a-z0-9.+\-*/()\s]`)
	operatorPattern      = regexp.MustCompile(`[+\-*/]`)
	numericAnswerPattern = regexp.MustCompile(`^[-+]?\d+(\.\d+)?$`)
	contextRefPattern    = regexp.MustCompile(`\b(that|it|previous|last)\b`)
	derivativePattern    = regexp.MustCompile(`derivative of\s+(.+)$`)
	powerTermPattern     = regexp.MustCompile(`^x\^([-+]?\d+)$`)
	linearTermPattern    = regexp.MustCompile(`^([-+]?\d+(\.\d+)?)x$`)
	constantTermPattern  = regexp.MustCompile(`^[-+]?\d+(\.\d+)?$`)
)

// safeEvalArithmetic extracts an arithmetic expression from free text and
// evaluates it. Returns false whenever the residue is not a pure expression
// with at least one operator.
func safeEvalArithmetic(query string) (float64, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	// Normalize multiplication variants before character filtering. The
	// digit-x-digit rewrite loops because adjacent matches share digits.
	for {
		next := multiplySignPattern.ReplaceAllString(q, "$1*$2")
		if next == q {
			break
		}
		q = next
	}
	q = timesWordPattern.ReplaceAllString(q, "*")
	q = multipliedByPattern.ReplaceAllString(q, "*")
	q = nonArithmeticPattern.ReplaceAllString(q, " ")
	q = strings.TrimSpace(whitespacePattern.ReplaceAllString(q, " "))
	if q == "" || !operatorPattern.MatchString(q) {
		return 0, false
	}
	return evalArithmetic(q)
}

func lastNumericAnswer(turns []ContextTurn) (float64, bool) {
	for i := len(turns) - 1; i >= 0; i-- {
		answer := strings.TrimSpace(turns[i].A)
		if !numericAnswerPattern.MatchString(answer) {
			continue
		}
		if v, err := strconv.ParseFloat(answer, 64); err == nil {
			return v, true
		}
	}
	return 0, false
}

// resolveContextArithmetic substitutes the previous numeric answer for
// references like "that" or "it" and evaluates the resulting expression.
func resolveContextArithmetic(query string, turns []ContextTurn) (float64, bool) {
	base, ok := lastNumericAnswer(turns)
	if !ok {
		return 0, false
	}
	q := strings.ToLower(strings.TrimSpace(query))
	q = strings.ReplaceAll(q, "what's", "whats")
	q = strings.TrimRight(q, "?")
	q = nonContextArith.ReplaceAllString(q, " ")
	q = strings.TrimSpace(whitespacePattern.ReplaceAllString(q, " "))

	if !contextRefPattern.MatchString(q) {
		return 0, false
	}
	q = contextRefPattern.ReplaceAllString(q, strconv.FormatFloat(base, 'f', -1, 64))
	q = plusWordPattern.ReplaceAllString(q, "+")
	q = minusWordPattern.ReplaceAllString(q, "-")
	q = timesWordPattern.ReplaceAllString(q, "*")
	q = multipliedByPattern.ReplaceAllString(q, "*")
	q = dividedByPattern.ReplaceAllString(q, "/")
	q = nonArithmeticPattern.ReplaceAllString(q, " ")
	q = strings.TrimSpace(whitespacePattern.ReplaceAllString(q, " "))
	if q == "" || !operatorPattern.MatchString(q) {
		return 0, false
	}
	return evalArithmetic(q)
}

// simpleDerivative answers d/dx for single-term polynomial expressions.
func simpleDerivative(query string) (string, bool) {
	q := strings.TrimRight(strings.ToLower(strings.TrimSpace(query)), "?")
	m := derivativePattern.FindStringSubmatch(q)
	if m == nil {
		return "", false
	}
	expr := strings.ReplaceAll(strings.TrimSpace(m[1]), " ", "")
	if expr == "x" {
		return "1", true
	}
	if constantTermPattern.MatchString(expr) {
		return "0", true
	}
	if pm := powerTermPattern.FindStringSubmatch(expr); pm != nil {
		n, err := strconv.Atoi(pm[1])
		if err != nil {
			return "", false
		}
		switch {
		case n == 0:
			return "0", true
		case n == 1:
			return "1", true
		case n-1 == 1:
			return fmt.Sprintf("%dx", n), true
		default:
			return fmt.Sprintf("%dx^%d", n, n-1), true
		}
	}
	if lm := linearTermPattern.FindStringSubmatch(expr); lm != nil {
		coeff, err := strconv.ParseFloat(lm[1], 64)
		if err != nil {
			return "", false
		}
		return strconv.FormatFloat(coeff, 'f', -1, 64), true
	}
	return "", false
}

func formatArithmeticResult(val float64) string {
	if val == math.Trunc(val) && math.Abs(val) < 1e15 {
		return strconv.FormatInt(int64(val), 10)
	}
	rounded := math.Round(val*1e6) / 1e6
	return strconv.FormatFloat(rounded, 'f', -1, 64)
}

// basicQueryAnswer resolves deterministic queries (derivatives, arithmetic,
// context-referencing arithmetic) without touching retrieval. A nil response
// means the query is not a basic one.
func basicQueryAnswer(query string, priorTurns []ContextTurn) *types.AskResponse {
	if deriv, ok := simpleDerivative(query); ok {
		return &types.AskResponse{
			Answer:             deriv,
			Citations:          []types.Citation{},
			Confidence:         1.0,
			SuggestedFollowups: []string{},
			Mode:               types.ModeBasic,
		}
	}

	val, ok := safeEvalArithmetic(query)
	if !ok && len(priorTurns) > 0 {
		val, ok = resolveContextArithmetic(query, priorTurns)
	}
	if !ok {
		return nil
	}
	return &types.AskResponse{
		Answer:             formatArithmeticResult(val),
		Citations:          []types.Citation{},
		Confidence:         1.0,
		SuggestedFollowups: []string{},
		Mode:               types.ModeBasic,
	}
}

// evalArithmetic parses and evaluates +, -, *, / with parentheses and unary
// signs over a pre-sanitized expression. Trailing input, malformed syntax,
// division by zero, and non-finite results all report failure.
func evalArithmetic(expr string) (float64, bool) {
	p := &arithmeticParser{input: expr}
	val, err := p.parseExpr()
	if err != nil {
		return 0, false
	}
	p.skipSpaces()
	if p.pos != len(p.input) {
		return 0, false
	}
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return 0, false
	}
	return val, true
}

type arithmeticParser struct {
	input string
	pos   int
}

func (p *arithmeticParser) skipSpaces() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}

func (p *arithmeticParser) peek() (byte, bool) {
	p.skipSpaces()
	if p.pos >= len(p.input) {
		return 0, false
	}
	return p.input[p.pos], true
}

func (p *arithmeticParser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		op, ok := p.peek()
		if !ok || (op != '+' && op != '-') {
			return left, nil
		}
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return 0, err
		}
		if op == '+' {
			left += right
		} else {
			left -= right
		}
	}
}

func (p *arithmeticParser) parseTerm() (float64, error) {
	left, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		op, ok := p.peek()
		if !ok || (op != '*' && op != '/') {
			return left, nil
		}
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		if op == '*' {
			left *= right
		} else {
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		}
	}
}

func (p *arithmeticParser) parseUnary() (float64, error) {
	sign := 1.0
	for {
		op, ok := p.peek()
		if !ok {
			return 0, fmt.Errorf("unexpected end of expression")
		}
		if op == '+' {
			p.pos++
			continue
		}
		if op == '-' {
			sign = -sign
			p.pos++
			continue
		}
		break
	}
	val, err := p.parsePrimary()
	if err != nil {
		return 0, err
	}
	return sign * val, nil
}

func (p *arithmeticParser) parsePrimary() (float64, error) {
	ch, ok := p.peek()
	if !ok {
		return 0, fmt.Errorf("unexpected end of expression")
	}
	if ch == '(' {
		p.pos++
		val, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		closing, ok := p.peek()
		if !ok || closing != ')' {
			return 0, fmt.Errorf("unbalanced parenthesis")
		}
		p.pos++
		return val, nil
	}
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if (c >= '0' && c <= '9') || c == '.' {
			p.pos++
			continue
		}
		break
	}
	if p.pos == start {
		return 0, fmt.Errorf("expected number at offset %d", start)
	}
	val, err := strconv.ParseFloat(p.input[start:p.pos], 64)
	if err != nil {
		return 0, err
	}
	return val, nil
}
