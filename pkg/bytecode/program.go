package bytecode

import "github.com/smilemakc/farmcore/pkg/value"

// Program is a compiled opcode sequence plus the constant and string pools
// its instructions index into. Iterator bodies compile to their own nested
// Program, referenced by index from Subs.
type Program struct {
	Code           []Instruction
	Consts         []value.Value
	Strings        []string
	Subs           []*Program
	StackHighWater int
	ASTHash        string
}
