// Package parser reads the text circuit language understood by the runner.
//
// A program is a sequence of statements separated by newlines or ';'. A '#'
// starts a comment that runs to the end of the line. Statements look like
//
//	h 0
//	rx(pi/2) 1
//	cx 0, 1
//	ctrl(0,1) u3(0.1, pi, -pi/4) 2
//	measure 0 1
//
// Input is NFKC-normalized and case-folded first, so "H 0" and "Ｈ 0" parse
// the same as "h 0", and "π" may be written for pi.
package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/23skdu/longbow-qsim/internal/quantum/gates"
)

// ErrSyntax is returned for malformed statements.
var ErrSyntax = errors.New("parser: syntax error")

// Op is the kind of an instruction.
type Op int

const (
	OpGate Op = iota
	OpMeasure
	OpMeasureX
	OpMeasureY
	OpMeasureZ
	OpReset
	OpResetAll
	OpBarrier
)

var opNames = map[Op]string{
	OpMeasure:  "measure",
	OpMeasureX: "measure_x",
	OpMeasureY: "measure_y",
	OpMeasureZ: "measure_z",
	OpReset:    "reset",
	OpResetAll: "reset_all",
	OpBarrier:  "barrier",
}

func (o Op) String() string {
	if o == OpGate {
		return "gate"
	}
	if s, ok := opNames[o]; ok {
		return s
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// Instruction is one executable step.
//
// For OpGate, Qubits holds the single target and Controls the control qubits.
// For OpMeasure, Qubits are the measured qubits; an empty list means every
// qubit of the register. The basis measurements and OpReset act on Qubits[0].
type Instruction struct {
	Op       Op
	Gate     string
	Params   []float64
	Qubits   []int
	Controls []int
}

// Matrix builds the gate matrix of an OpGate instruction.
func (in Instruction) Matrix() (gates.Matrix, error) {
	switch in.Gate {
	case "rx":
		return gates.RX(in.Params[0]), nil
	case "ry":
		return gates.RY(in.Params[0]), nil
	case "rz":
		return gates.RZ(in.Params[0]), nil
	case "p":
		return gates.P(in.Params[0]), nil
	case "u3":
		return gates.U3(in.Params[0], in.Params[1], in.Params[2]), nil
	}
	n, err := gates.ByName(in.Gate)
	if err != nil {
		return gates.Matrix{}, err
	}
	return gates.Named(n), nil
}

func (in Instruction) String() string {
	var sb strings.Builder
	switch in.Op {
	case OpGate:
		if len(in.Controls) > 0 {
			sb.WriteString("ctrl(")
			sb.WriteString(joinInts(in.Controls, ","))
			sb.WriteString(") ")
		}
		sb.WriteString(in.Gate)
		if len(in.Params) > 0 {
			parts := make([]string, len(in.Params))
			for i, p := range in.Params {
				parts[i] = strconv.FormatFloat(p, 'g', -1, 64)
			}
			sb.WriteString("(")
			sb.WriteString(strings.Join(parts, ", "))
			sb.WriteString(")")
		}
	default:
		sb.WriteString(in.Op.String())
	}
	if len(in.Qubits) > 0 {
		sb.WriteString(" ")
		sb.WriteString(joinInts(in.Qubits, " "))
	}
	return sb.String()
}

// Program is a parsed circuit.
type Program struct {
	Instructions []Instruction
}

// Unitary reports whether the program only applies gates, so its final state
// is deterministic.
func (p *Program) Unitary() bool {
	for _, in := range p.Instructions {
		if in.Op != OpGate && in.Op != OpBarrier {
			return false
		}
	}
	return true
}

// MaxQubit returns the largest qubit index referenced, or -1.
func (p *Program) MaxQubit() int {
	m := -1
	for _, in := range p.Instructions {
		for _, q := range in.Qubits {
			m = max(m, q)
		}
		for _, q := range in.Controls {
			m = max(m, q)
		}
	}
	return m
}

// String renders the program in canonical form, one statement per line.
// Parsing the result yields an identical program.
func (p *Program) String() string {
	lines := make([]string, len(p.Instructions))
	for i, in := range p.Instructions {
		lines[i] = in.String()
	}
	return strings.Join(lines, "\n")
}

// gateSpec describes a gate spelling: how many parameters it takes, how many
// leading operands are controls, and the canonical name it maps to.
type gateSpec struct {
	name     string
	params   int
	controls int
}

var gateSpecs = map[string]gateSpec{
	"rx":      {"rx", 1, 0},
	"ry":      {"ry", 1, 0},
	"rz":      {"rz", 1, 0},
	"p":       {"p", 1, 0},
	"phase":   {"p", 1, 0},
	"u3":      {"u3", 3, 0},
	"u":       {"u3", 3, 0},
	"cx":      {"x", 0, 1},
	"cnot":    {"x", 0, 1},
	"cy":      {"y", 0, 1},
	"cz":      {"z", 0, 1},
	"ch":      {"h", 0, 1},
	"ccx":     {"x", 0, 2},
	"ccnot":   {"x", 0, 2},
	"toffoli": {"x", 0, 2},
	"crx":     {"rx", 1, 1},
	"cry":     {"ry", 1, 1},
	"crz":     {"rz", 1, 1},
	"cp":      {"p", 1, 1},
}

// Parse parses a program.
func Parse(src string) (*Program, error) {
	// transformers carry state, so each call builds its own chain
	text, _, err := transform.String(transform.Chain(norm.NFKC, cases.Fold()), src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	text = strings.ReplaceAll(text, "π", "pi")

	prog := &Program{}
	for i, line := range strings.Split(text, "\n") {
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		for _, stmt := range strings.Split(line, ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			ins, err := parseStatement(stmt)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", i+1, err)
			}
			prog.Instructions = append(prog.Instructions, ins...)
		}
	}
	return prog, nil
}

func parseStatement(stmt string) ([]Instruction, error) {
	name, rest := leadingIdent(stmt)
	if name == "" {
		return nil, fmt.Errorf("%w: expected instruction in %q", ErrSyntax, stmt)
	}

	var controls []int
	if name == "ctrl" {
		args, tail, err := splitParens(rest)
		if err != nil {
			return nil, err
		}
		controls, err = parseQubits(args)
		if err != nil {
			return nil, err
		}
		if len(controls) == 0 {
			return nil, fmt.Errorf("%w: ctrl() needs at least one qubit", ErrSyntax)
		}
		name, rest = leadingIdent(tail)
		if name == "" {
			return nil, fmt.Errorf("%w: ctrl() must prefix a gate", ErrSyntax)
		}
	}

	var params []float64
	if r := strings.TrimSpace(rest); strings.HasPrefix(r, "(") {
		args, tail, err := splitParens(r)
		if err != nil {
			return nil, err
		}
		if params, err = parseParams(args); err != nil {
			return nil, err
		}
		rest = tail
	}

	operands, err := parseQubits(rest)
	if err != nil {
		return nil, err
	}

	if op, ok := lookupOp(name); ok {
		if controls != nil || params != nil {
			return nil, fmt.Errorf("%w: %s takes neither controls nor parameters", ErrSyntax, name)
		}
		return parseNonGate(op, operands)
	}

	if name == "swap" {
		return parseSwap(controls, params, operands)
	}

	spec, ok := gateSpecs[name]
	if !ok {
		if _, err := gates.ByName(name); err != nil {
			return nil, err
		}
		spec = gateSpec{name: canonicalName(name)}
	}

	if len(params) != spec.params {
		return nil, fmt.Errorf("%w: %s takes %d parameters, got %d", ErrSyntax, name, spec.params, len(params))
	}
	if len(operands) != spec.controls+1 {
		return nil, fmt.Errorf("%w: %s takes %d qubits, got %d", ErrSyntax, name, spec.controls+1, len(operands))
	}

	controls = append(controls, operands[:spec.controls]...)
	return []Instruction{{
		Op:       OpGate,
		Gate:     spec.name,
		Params:   params,
		Qubits:   []int{operands[spec.controls]},
		Controls: controls,
	}}, nil
}

func lookupOp(name string) (Op, bool) {
	for op, s := range opNames {
		if s == name {
			return op, true
		}
	}
	return 0, false
}

func parseNonGate(op Op, operands []int) ([]Instruction, error) {
	switch op {
	case OpMeasureX, OpMeasureY, OpMeasureZ, OpReset:
		if len(operands) != 1 {
			return nil, fmt.Errorf("%w: %s takes exactly one qubit", ErrSyntax, op)
		}
	case OpResetAll:
		if len(operands) != 0 {
			return nil, fmt.Errorf("%w: reset_all takes no qubits", ErrSyntax)
		}
	case OpBarrier:
		// operands only document intent
		operands = nil
	}
	return []Instruction{{Op: op, Qubits: operands}}, nil
}

// parseSwap expands swap a b into three CX gates. Any ctrl() prefix applies to
// all three, giving a controlled swap.
func parseSwap(controls []int, params []float64, operands []int) ([]Instruction, error) {
	if params != nil {
		return nil, fmt.Errorf("%w: swap takes no parameters", ErrSyntax)
	}
	if len(operands) != 2 {
		return nil, fmt.Errorf("%w: swap takes 2 qubits, got %d", ErrSyntax, len(operands))
	}
	a, b := operands[0], operands[1]
	cx := func(c, t int) Instruction {
		return Instruction{Op: OpGate, Gate: "x", Qubits: []int{t}, Controls: append(append([]int(nil), controls...), c)}
	}
	return []Instruction{cx(a, b), cx(b, a), cx(a, b)}, nil
}

func canonicalName(name string) string {
	n, _ := gates.ByName(name)
	return n.String()
}

func leadingIdent(s string) (ident, rest string) {
	s = strings.TrimSpace(s)
	end := 0
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			end = i + len(string(r))
			continue
		}
		break
	}
	return s[:end], s[end:]
}

// splitParens returns the text inside a leading "(...)" and what follows it.
func splitParens(s string) (inside, rest string, err error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "(") {
		return "", "", fmt.Errorf("%w: expected '(' in %q", ErrSyntax, s)
	}
	end := strings.IndexByte(s, ')')
	if end < 0 {
		return "", "", fmt.Errorf("%w: unclosed '(' in %q", ErrSyntax, s)
	}
	return s[1:end], s[end+1:], nil
}

func parseQubits(s string) ([]int, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	if len(fields) == 0 {
		return nil, nil
	}
	qubits := make([]int, len(fields))
	for i, f := range fields {
		q, err := strconv.Atoi(f)
		if err != nil || q < 0 {
			return nil, fmt.Errorf("%w: bad qubit index %q", ErrSyntax, f)
		}
		qubits[i] = q
	}
	return qubits, nil
}

func parseParams(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	params := make([]float64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, ok := ParseAngle(part)
		if !ok {
			return nil, fmt.Errorf("%w: bad parameter %q", ErrSyntax, part)
		}
		params = append(params, v)
	}
	return params, nil
}

func joinInts(v []int, sep string) string {
	parts := make([]string, len(v))
	for i, q := range v {
		parts[i] = strconv.Itoa(q)
	}
	return strings.Join(parts, sep)
}
