package rtos

import "fmt"

// DetectionState tracks kernel discovery for a session.
type DetectionState int

const (
	DetectionNone DetectionState = iota
	DetectionPending
	DetectionReady
	DetectionFailed
)

var detectionStateStrings = [...]string{
	DetectionNone:    "none",
	DetectionPending: "pending",
	DetectionReady:   "ready",
	DetectionFailed:  "failed",
}

func (s DetectionState) String() string {
	if int(s) < len(detectionStateStrings) {
		return detectionStateStrings[s]
	}
	return "unknown"
}

// symbolCache memoizes resolved kernel globals. A handle that resolved
// once is never looked up again; a failed lookup stays out of the cache
// and is retried on the next detection attempt.
type symbolCache struct {
	session Session
	vars    map[string]Var
}

func newSymbolCache(session Session) *symbolCache {
	return &symbolCache{session: session, vars: make(map[string]Var)}
}

// resolve returns the cached handle or performs a fresh lookup. Optional
// symbols quietly stay unresolved on failure and return (nil, nil),
// disabling whatever depends on them.
func (c *symbolCache) resolve(name string, required bool) (Var, error) {
	if v, ok := c.vars[name]; ok {
		return v, nil
	}
	v, err := c.session.ResolveGlobal(name)
	if err != nil {
		if required {
			return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, name)
		}
		return nil, nil
	}
	c.vars[name] = v
	return v, nil
}

// kernelSymbols holds handles to the tasks.c globals the engine walks.
// Optional members are nil when the kernel build does not carry them.
type kernelSymbols struct {
	numberOfTasks Var
	readyLists    Var
	delayedList1  Var
	delayedList2  Var
	pendingReady  Var
	currentTCB    Var

	suspendedList  Var
	terminatedList Var
	totalRunTime   Var
}

// resolveKernelSymbols attempts one detection pass. It returns
// ErrSymbolNotFound when any required global is missing; optional globals
// never fail it.
func (c *symbolCache) resolveKernelSymbols() (*kernelSymbols, error) {
	ks := &kernelSymbols{}
	var err error
	if ks.numberOfTasks, err = c.resolve(symCurrentNumberOfTasks, true); err != nil {
		return nil, err
	}
	if ks.readyLists, err = c.resolve(symReadyTasksLists, true); err != nil {
		return nil, err
	}
	if ks.delayedList1, err = c.resolve(symDelayedTaskList1, true); err != nil {
		return nil, err
	}
	if ks.delayedList2, err = c.resolve(symDelayedTaskList2, true); err != nil {
		return nil, err
	}
	if ks.pendingReady, err = c.resolve(symPendingReadyList, true); err != nil {
		return nil, err
	}
	if ks.currentTCB, err = c.resolve(symCurrentTCB, true); err != nil {
		return nil, err
	}
	ks.suspendedList, _ = c.resolve(symSuspendedTaskList, false)
	ks.terminatedList, _ = c.resolve(symTasksWaitingTermination, false)
	ks.totalRunTime, _ = c.resolve(symTotalRunTime, false)
	return ks, nil
}
