package hvmconfigs

import (
	"github.com/reusee/dscope"
	"github.com/reusee/heapvm/logs"
)

type Module struct {
	dscope.Module
	Logs logs.Module
}
