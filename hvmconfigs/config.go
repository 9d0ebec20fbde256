package hvmconfigs

import (
	"fmt"
	"time"

	"github.com/reusee/heapvm/cmds"
	"github.com/reusee/heapvm/configs"
	"github.com/reusee/heapvm/hvm"
	"github.com/reusee/heapvm/logs"
	"github.com/reusee/heapvm/vars"
)

var (
	slotsFlag        = cmds.Var[int]("-slots")
	maxCallDepthFlag = cmds.Var[int]("-max-call-depth")
	safePointFlag    = cmds.Var[int]("-safe-point-interval")
	gcFlag           = cmds.Var[string]("-gc")
	gcEveryFlag      = cmds.Var[int]("-gc-every")
	gcIntervalFlag   = cmds.Var[time.Duration]("-gc-interval")
	markFlag         = cmds.Var[string]("-mark")
	verifyFlag       = cmds.Switch("-verify")
)

// Config merges flags, config files and defaults, in that order.
// A negative gc_every disables instruction-count triggers.
func (Module) Config(
	loader configs.Loader,
	logger logs.Logger,
) hvm.Config {
	config := hvm.Config{
		StoreSlots: vars.FirstNonZero(
			*slotsFlag,
			configs.First[int](loader, "store_slots"),
			hvm.DefaultStoreSlots,
		),
		MaxCallDepth: vars.FirstNonZero(
			*maxCallDepthFlag,
			configs.First[int](loader, "max_call_depth"),
			hvm.DefaultMaxCallDepth,
		),
		SafePointInterval: vars.FirstNonZero(
			*safePointFlag,
			configs.First[int](loader, "safe_point_interval"),
			hvm.DefaultSafePointInterval,
		),
		GCEvery: max(0, vars.FirstNonZero(
			*gcEveryFlag,
			configs.First[int](loader, "gc_every"),
			hvm.DefaultGCEvery,
		)),
		Verify: vars.DerefOrZero(verifyFlag) || configs.First[bool](loader, "verify"),
	}

	var err error
	config.GC, err = hvm.ParseGCMode(vars.FirstNonZero(
		*gcFlag,
		configs.First[string](loader, "gc"),
	))
	if err != nil {
		panic(err)
	}
	config.Mark, err = hvm.ParseMarkMode(vars.FirstNonZero(
		*markFlag,
		configs.First[string](loader, "mark"),
	))
	if err != nil {
		panic(err)
	}
	config.GCInterval = *gcIntervalFlag
	if s := configs.First[string](loader, "gc_interval"); config.GCInterval == 0 && s != "" {
		config.GCInterval, err = time.ParseDuration(s)
		if err != nil {
			panic(fmt.Errorf("gc interval: %w", err))
		}
	}

	for _, key := range keys {
		if file, err := loader.Source(key); err == nil {
			logger.Debug("config value",
				"key", key,
				"file", file,
			)
		}
	}

	return config
}

var keys = []string{
	"store_slots",
	"max_call_depth",
	"safe_point_interval",
	"gc",
	"gc_every",
	"gc_interval",
	"mark",
	"verify",
	"log_level",
}
