package hvm

type Interrupt struct {
	SafePoint bool
}

var (
	// InterruptSafePoint is yielded between instructions when no opcode is
	// half done, so the caller may collect or stop.
	InterruptSafePoint = &Interrupt{
		SafePoint: true,
	}
)
