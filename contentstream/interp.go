package contentstream

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfpress/coords"
)

// State tracks the graphics state while replaying a content stream. Only the
// parts the pipeline needs are modeled: the current transformation matrix
// and its save/restore stack.
type State struct {
	CTM   coords.Matrix
	stack []coords.Matrix
}

func (s *State) save() { s.stack = append(s.stack, s.CTM) }

func (s *State) restore() bool {
	n := len(s.stack)
	if n == 0 {
		return false
	}
	s.CTM = s.stack[n-1]
	s.stack = s.stack[:n-1]
	return true
}

// HandlerFunc reacts to one operation during replay.
type HandlerFunc func(st *State, op Operation) error

// Interpreter replays an operation sequence through a name-keyed dispatch
// table. Operators without a handler fall through to Default, which may be
// nil (ignore).
type Interpreter struct {
	handlers map[string]HandlerFunc
	Default  HandlerFunc

	// Strict makes unbalanced Q errors fatal instead of ignored.
	Strict bool
}

func NewInterpreter() *Interpreter {
	return &Interpreter{handlers: make(map[string]HandlerFunc)}
}

// Handle registers h for the named operator.
func (in *Interpreter) Handle(op string, h HandlerFunc) { in.handlers[op] = h }

// Exec replays ops from an identity CTM. The q, Q, and cm operators always
// update the state before any registered handler runs.
func (in *Interpreter) Exec(ops []Operation) error {
	st := &State{CTM: coords.Identity()}
	for i, op := range ops {
		switch op.Operator {
		case "q":
			st.save()
		case "Q":
			if !st.restore() && in.Strict {
				return fmt.Errorf("contentstream: unbalanced Q at op %d", i)
			}
		case "cm":
			m, err := matrixOperands(op.Operands)
			if err != nil {
				return fmt.Errorf("contentstream: cm at op %d: %w", i, err)
			}
			st.CTM = m.Multiply(st.CTM)
		}
		h := in.handlers[op.Operator]
		if h == nil {
			h = in.Default
		}
		if h != nil {
			if err := h(st, op); err != nil {
				return err
			}
		}
	}
	return nil
}

func matrixOperands(operands []Operand) (coords.Matrix, error) {
	if len(operands) != 6 {
		return coords.Matrix{}, errors.New("expected 6 operands")
	}
	var m coords.Matrix
	for i, o := range operands {
		num, ok := o.(NumberOperand)
		if !ok {
			return coords.Matrix{}, errors.New("non-numeric matrix operand")
		}
		m[i] = num.Value
	}
	return m, nil
}
