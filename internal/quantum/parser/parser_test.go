package parser

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-qsim/internal/quantum/gates"
)

func TestParseAngle(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"1.5", 1.5},
		{"-0.25", -0.25},
		{"3.14e-2", 3.14e-2},
		{"pi", math.Pi},
		{"-pi", -math.Pi},
		{"pi/2", math.Pi / 2},
		{"2pi", 2 * math.Pi},
		{"3*pi/4", 3 * math.Pi / 4},
		{"-3 * pi / 4", -3 * math.Pi / 4},
		{"PI/8", math.Pi / 8},
	}
	for _, tt := range tests {
		got, ok := ParseAngle(tt.in)
		require.True(t, ok, tt.in)
		assert.InDelta(t, tt.want, got, 1e-15, tt.in)
	}

	for _, bad := range []string{"", "pie", "pi/0", "two", "1/2"} {
		_, ok := ParseAngle(bad)
		assert.False(t, ok, bad)
	}
}

func TestParse(t *testing.T) {
	src := `
# Bell pair plus extras
H 0
cx 0, 1   # entangle
rx(pi/2) 2; ry(-pi/4) 2
ctrl(0,1) u3(0.1, pi, -pi/4) 2
toffoli 0 1 2
measure 0 1
measure_x 2
reset 1
reset_all
barrier 0 1 2
`
	prog, err := Parse(src)
	require.NoError(t, err)

	want := []Instruction{
		{Op: OpGate, Gate: "h", Qubits: []int{0}},
		{Op: OpGate, Gate: "x", Qubits: []int{1}, Controls: []int{0}},
		{Op: OpGate, Gate: "rx", Params: []float64{math.Pi / 2}, Qubits: []int{2}},
		{Op: OpGate, Gate: "ry", Params: []float64{-math.Pi / 4}, Qubits: []int{2}},
		{Op: OpGate, Gate: "u3", Params: []float64{0.1, math.Pi, -math.Pi / 4}, Qubits: []int{2}, Controls: []int{0, 1}},
		{Op: OpGate, Gate: "x", Qubits: []int{2}, Controls: []int{0, 1}},
		{Op: OpMeasure, Qubits: []int{0, 1}},
		{Op: OpMeasureX, Qubits: []int{2}},
		{Op: OpReset, Qubits: []int{1}},
		{Op: OpResetAll},
		{Op: OpBarrier},
	}
	require.Len(t, prog.Instructions, len(want))
	for i := range want {
		assert.Equal(t, want[i].Op, prog.Instructions[i].Op, "instruction %d", i)
		assert.Equal(t, want[i].Gate, prog.Instructions[i].Gate, "instruction %d", i)
		assert.Equal(t, want[i].Qubits, prog.Instructions[i].Qubits, "instruction %d", i)
		assert.Equal(t, want[i].Controls, prog.Instructions[i].Controls, "instruction %d", i)
		assert.InDeltaSlice(t, want[i].Params, prog.Instructions[i].Params, 1e-15, "instruction %d", i)
	}

	assert.False(t, prog.Unitary())
	assert.Equal(t, 2, prog.MaxQubit())
}

func TestParseNormalizesInput(t *testing.T) {
	// Fullwidth letters and the pi sign.
	prog, err := Parse("Ｈ 0\nRZ(π/2) 1")
	require.NoError(t, err)
	require.Len(t, prog.Instructions, 2)
	assert.Equal(t, "h", prog.Instructions[0].Gate)
	assert.Equal(t, "rz", prog.Instructions[1].Gate)
	assert.InDelta(t, math.Pi/2, prog.Instructions[1].Params[0], 1e-15)
}

func TestParseSwapExpands(t *testing.T) {
	prog, err := Parse("swap 0 2")
	require.NoError(t, err)
	require.Len(t, prog.Instructions, 3)
	assert.Equal(t, []int{2}, prog.Instructions[0].Qubits)
	assert.Equal(t, []int{0}, prog.Instructions[0].Controls)
	assert.Equal(t, []int{0}, prog.Instructions[1].Qubits)
	assert.Equal(t, []int{2}, prog.Instructions[1].Controls)
	assert.True(t, prog.Unitary())
}

func TestProgramRoundTrip(t *testing.T) {
	src := `h 0
s_dagger 1
cz 0 1
ctrl(2) rx(0.3) 0
crz(-pi/3) 1 2
p(pi/8) 2
u3(1, 2, 3) 0
swap 1 2
measure
measure 0 2
measure_y 1
measure_z 0
reset 2
reset_all
barrier`

	prog, err := Parse(src)
	require.NoError(t, err)

	again, err := Parse(prog.String())
	require.NoError(t, err)
	assert.Equal(t, prog, again)
	assert.Equal(t, prog.String(), again.String())
}

func TestInstructionMatrix(t *testing.T) {
	prog, err := Parse("h 0; crx(pi) 0 1; tdg 1")
	require.NoError(t, err)

	m, err := prog.Instructions[0].Matrix()
	require.NoError(t, err)
	assert.Equal(t, gates.Named(gates.H), m)

	m, err = prog.Instructions[1].Matrix()
	require.NoError(t, err)
	assert.Equal(t, gates.RX(math.Pi), m)

	m, err = prog.Instructions[2].Matrix()
	require.NoError(t, err)
	assert.Equal(t, gates.Named(gates.TDagger), m)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
	}{
		{"UnknownGate", "foo 0", gates.ErrUnknownGate},
		{"MissingParam", "rx 0", ErrSyntax},
		{"ExtraParam", "h(1) 0", ErrSyntax},
		{"WrongArity", "cx 0", ErrSyntax},
		{"BadQubit", "h a", ErrSyntax},
		{"NegativeQubit", "h -1", ErrSyntax},
		{"BadAngle", "rx(pie) 0", ErrSyntax},
		{"UnclosedParen", "rx(pi 0", ErrSyntax},
		{"MeasureWithParams", "measure(1) 0", ErrSyntax},
		{"MeasureXArity", "measure_x 0 1", ErrSyntax},
		{"ResetAllWithQubits", "reset_all 0", ErrSyntax},
		{"EmptyCtrl", "ctrl() x 0", ErrSyntax},
		{"CtrlWithoutGate", "ctrl(0)", ErrSyntax},
		{"LeadingNumber", "0 h", ErrSyntax},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := Parse("h 0\nh 1\nbogus 2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
}
