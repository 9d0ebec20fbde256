package hvm

import (
	"fmt"
	"time"
)

type GCMode uint8

const (
	// GCOff never collects unless VM.Collect is called.
	GCOff GCMode = iota
	// GCSafePoint collects synchronously at safe points during Exec.
	GCSafePoint
	// GCConcurrent collects on a separate goroutine during Exec.
	GCConcurrent
)

func (m GCMode) String() string {
	switch m {
	case GCOff:
		return "off"
	case GCSafePoint:
		return "safepoint"
	case GCConcurrent:
		return "concurrent"
	}
	return fmt.Sprintf("GCMode(%d)", m)
}

func ParseGCMode(s string) (GCMode, error) {
	switch s {
	case "off":
		return GCOff, nil
	case "", "safepoint":
		return GCSafePoint, nil
	case "concurrent":
		return GCConcurrent, nil
	}
	return 0, fmt.Errorf("unknown gc mode: %s", s)
}

type Config struct {
	StoreSlots   int
	MaxCallDepth int
	// SafePointInterval is the number of instructions between safe points. 0 disables them.
	SafePointInterval int
	GC                GCMode
	Mark              MarkMode
	// GCEvery is the number of instructions between collector triggers. 0 disables it.
	GCEvery    int
	GCInterval time.Duration
	// Verify checks root integrity after every collection pass.
	Verify bool
}

const (
	DefaultStoreSlots        = 256
	DefaultMaxCallDepth      = 1024
	DefaultSafePointInterval = 1024
	DefaultGCEvery           = 10000
)

func DefaultConfig() Config {
	return Config{
		StoreSlots:        DefaultStoreSlots,
		MaxCallDepth:      DefaultMaxCallDepth,
		SafePointInterval: DefaultSafePointInterval,
		GC:                GCSafePoint,
		Mark:              MarkFull,
		GCEvery:           DefaultGCEvery,
	}
}
