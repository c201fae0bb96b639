package inventory

import "aisociety.ai/internal/economy/resource"

// TransferCommand is a one-shot, undoable transfer. Execute it once;
// a successful execution can be undone exactly once by transferring
// the same quantity back.
type TransferCommand struct {
	Source      *Inventory
	Destination *Inventory
	Kind        resource.Kind
	Quantity    float64

	executed bool
	result   TransferResult
}

// NewTransferCommand prepares a transfer without applying it.
func NewTransferCommand(src, dst *Inventory, kind resource.Kind, quantity float64) *TransferCommand {
	return &TransferCommand{Source: src, Destination: dst, Kind: kind, Quantity: quantity}
}

// CanExecute reports whether the source currently covers the quantity.
// It is advisory: the answer can change before Execute runs.
func (c *TransferCommand) CanExecute() bool {
	return !c.executed && c.Source.HasResource(c.Kind, c.Quantity)
}

// Execute applies the transfer. It panics if called twice.
func (c *TransferCommand) Execute() TransferResult {
	if c.executed {
		panic("inventory: transfer command executed twice")
	}
	c.executed = true
	c.result = Transfer(c.Source, c.Destination, c.Kind, c.Quantity)
	return c.result
}

// Undo reverses a successful execution. It panics if the command has
// not executed or the execution failed.
func (c *TransferCommand) Undo() TransferResult {
	if !c.executed {
		panic("inventory: undo of unexecuted transfer command")
	}
	if !c.result.Success {
		panic("inventory: undo of failed transfer command")
	}
	return Transfer(c.Destination, c.Source, c.Kind, c.Quantity)
}

// Result returns the outcome of Execute, if it has run.
func (c *TransferCommand) Result() (TransferResult, bool) {
	return c.result, c.executed
}
