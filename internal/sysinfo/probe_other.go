//go:build !linux

package sysinfo

import (
	"runtime"
	"time"
)

func systemUptime() (time.Duration, bool) {
	return 0, false
}

// freeMemory reports heap memory the runtime holds but is not using.
func freeMemory() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapIdle - ms.HeapReleased
}
