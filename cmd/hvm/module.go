package main

import (
	"github.com/reusee/dscope"
	"github.com/reusee/heapvm/debugs"
	"github.com/reusee/heapvm/hvm"
	"github.com/reusee/heapvm/hvmconfigs"
	"github.com/reusee/heapvm/hvmlib"
)

type Module struct {
	dscope.Module
	HVM     hvm.Module
	Configs hvmconfigs.Module
	Lib     hvmlib.Module
	Debugs  debugs.Module
}
