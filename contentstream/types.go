package contentstream

// Operand is a value preceding a content stream operator.
type Operand interface{ isOperand() }

type NumberOperand struct{ Value float64 }

type NameOperand struct{ Value string }

type StringOperand struct {
	Value []byte
	Hex   bool
}

type BoolOperand struct{ Value bool }

type NullOperand struct{}

type ArrayOperand struct{ Values []Operand }

type DictOperand struct {
	Keys   []string
	Values map[string]Operand
}

func (NumberOperand) isOperand() {}
func (NameOperand) isOperand()   {}
func (StringOperand) isOperand() {}
func (BoolOperand) isOperand()   {}
func (NullOperand) isOperand()   {}
func (ArrayOperand) isOperand()  {}
func (DictOperand) isOperand()   {}

// Operation is one operator together with its operands. Inline images (BI)
// additionally carry the binary payload between ID and EI.
type Operation struct {
	Operator   string
	Operands   []Operand
	InlineData []byte
}
