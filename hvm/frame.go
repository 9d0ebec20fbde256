package hvm

// Frame records one active function invocation.
type Frame struct {
	Fun       *Function
	CallerPC  int
	Depth     int
	StackBase int
}

// FramePolicy is called around every function invocation.
// Calls share the stack, heap and store; a policy may add isolation on top.
type FramePolicy interface {
	Enter(vm *VM, frame Frame) error
	Leave(vm *VM, frame Frame) error
}

// SharedFrames is the default policy: no isolation between calls.
type SharedFrames struct{}

var _ FramePolicy = SharedFrames{}

func (SharedFrames) Enter(*VM, Frame) error {
	return nil
}

func (SharedFrames) Leave(*VM, Frame) error {
	return nil
}
