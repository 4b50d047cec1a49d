package vm

import (
	"sync"

	"github.com/tliron/commonlog"
)

var (
	logger   commonlog.Logger
	loggerMu sync.Mutex
)

// Logger returns the vm package's logger. It is the default for every new
// heap. Until a backend is configured with commonlog.Configure, messages are
// discarded.
func Logger() commonlog.Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if logger == nil {
		logger = commonlog.GetLogger("extptr.vm")
	}
	return logger
}

// SetLogger replaces the vm package's logger. Heaps created earlier keep
// the logger they were created with.
func SetLogger(l commonlog.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = l
}
