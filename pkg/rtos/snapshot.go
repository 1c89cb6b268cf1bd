package rtos

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Orchestrator drives one FreeRTOS state reconstruction per target pause
// and publishes the result. Refresh is not reentrant: callers serialize
// it. Consumers may read Snapshot and DetectionState from other
// goroutines; those are the only shared state and are guarded here.
type Orchestrator struct {
	session Session
	log     *zap.Logger
	cache   *symbolCache

	// resolved once per session, on the first successful detection
	symbols      *kernelSymbols
	readyBuckets []Var

	mu            sync.RWMutex
	detection     DetectionState
	detectionErr  string
	snap          *Snapshot
	stale         bool
	failureReason string
}

func NewOrchestrator(session Session, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		session:   session,
		log:       log,
		cache:     newSymbolCache(session),
		detection: DetectionNone,
	}
}

// DetectionState reports kernel discovery progress and, when failed, the
// reason.
func (o *Orchestrator) DetectionState() (DetectionState, string) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.detection, o.detectionErr
}

// Snapshot returns the last published snapshot, possibly stale, with a
// human-readable diagnostic when the latest pass degraded. Nil until the
// first publish.
func (o *Orchestrator) Snapshot() *Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.snap == nil {
		return nil
	}
	snap := *o.snap
	snap.Stale = o.stale
	if o.stale && o.failureReason != "" {
		snap.Diagnostic = o.failureReason
	}
	return &snap
}

// Refresh runs one collection pass. No-op while the target executes. On
// success a new snapshot replaces the previous one atomically; on failure
// the previous snapshot stays in place, marked stale, with the failure
// reason recorded. Nothing here is fatal to the session: detection and
// collection are simply retried on the next halt.
func (o *Orchestrator) Refresh() {
	if !o.session.Halted() {
		return
	}
	start := time.Now()

	if o.symbols == nil {
		o.setDetection(DetectionPending, "")
		ks, err := o.cache.resolveKernelSymbols()
		if err != nil {
			o.log.Debug("kernel symbol detection failed", zap.Error(err))
			o.setDetection(DetectionFailed, err.Error())
			return
		}
		o.symbols = ks
		o.setDetection(DetectionReady, "")
	}

	declared, diag := o.declaredTaskCount()
	if diag != "" {
		o.publish(&Snapshot{
			Records:    []TaskRecord{},
			TakenAt:    time.Now(),
			Elapsed:    time.Since(start),
			Diagnostic: diag,
		})
		return
	}

	records, err := o.collect(declared)
	if err != nil {
		o.log.Warn("collection pass failed, keeping previous snapshot", zap.Error(err))
		o.degrade(err.Error())
		return
	}

	sortRecords(records)
	snap := &Snapshot{
		Records:       records,
		DeclaredCount: declared,
		TakenAt:       time.Now(),
		Elapsed:       time.Since(start),
	}
	if len(records) != declared {
		snap.Warning = fmt.Sprintf("kernel declares %d tasks, reconstructed %d", declared, len(records))
		o.log.Warn("task count mismatch",
			zap.Int("declared", declared), zap.Int("reconstructed", len(records)))
	}
	o.publish(snap)
	o.log.Debug("snapshot published",
		zap.Int("tasks", len(records)), zap.Duration("elapsed", snap.Elapsed))
}

// declaredTaskCount reads uxCurrentNumberOfTasks and screens it before
// any traversal. The diagnostic distinguishes an unreadable counter from
// an implausible one.
func (o *Orchestrator) declaredTaskCount() (int, string) {
	raw, err := o.symbols.numberOfTasks.Value()
	if err != nil {
		return 0, "task count unreadable: " + err.Error()
	}
	n, err := parseInt(raw)
	if err != nil {
		return 0, "task count unreadable: " + err.Error()
	}
	if n <= 0 || n > MaxTasks {
		return 0, fmt.Sprintf("implausible task count %d (cap %d)", n, MaxTasks)
	}
	return int(n), ""
}

// collect runs the traversal engine over every list category in order,
// stopping early once the declared count has been reached. Structural
// failures abort only the affected list; a target that resumed execution
// mid-pass fails the whole pass.
func (o *Orchestrator) collect(declared int) ([]TaskRecord, error) {
	if o.readyBuckets == nil {
		buckets, err := o.symbols.readyLists.Children()
		if err != nil {
			return nil, fmt.Errorf("ready list buckets: %w", err)
		}
		o.readyBuckets = buckets
	}

	raw, err := o.symbols.currentTCB.Value()
	if err != nil {
		return nil, fmt.Errorf("current TCB: %w", err)
	}
	currentTCB, err := parseUint(raw)
	if err != nil {
		return nil, fmt.Errorf("current TCB: %w", err)
	}

	var totalRunTime *uint64
	if o.symbols.totalRunTime != nil {
		if raw, err := o.symbols.totalRunTime.Value(); err == nil {
			if v, err := parseUint(raw); err == nil {
				totalRunTime = &v
			}
		}
	}

	c := &collector{
		session:      o.session,
		log:          o.log,
		currentTCB:   currentTCB,
		totalRunTime: totalRunTime,
	}

	type source struct {
		list  Var
		state TaskState
	}
	sources := make([]source, 0, len(o.readyBuckets)+5)
	for _, bucket := range o.readyBuckets {
		sources = append(sources, source{bucket, StateReady})
	}
	sources = append(sources,
		source{o.symbols.delayedList1, StateBlocked},
		source{o.symbols.delayedList2, StateBlocked},
		source{o.symbols.pendingReady, StateReady},
		source{o.symbols.suspendedList, StateSuspended},
		source{o.symbols.terminatedList, StateTerminated},
	)

	for _, src := range sources {
		if len(c.records) >= declared {
			break
		}
		if err := c.traverse(src.list, src.state); err != nil {
			if errors.Is(err, ErrTargetRunning) {
				return nil, err
			}
			// Sentinel or list header unreadable: skip just this list.
			o.log.Warn("list traversal aborted", zap.Error(err))
		}
	}
	return c.records, nil
}

func (o *Orchestrator) setDetection(state DetectionState, reason string) {
	o.mu.Lock()
	o.detection = state
	o.detectionErr = reason
	o.mu.Unlock()
}

func (o *Orchestrator) publish(snap *Snapshot) {
	o.mu.Lock()
	o.snap = snap
	o.stale = false
	o.failureReason = ""
	o.mu.Unlock()
}

func (o *Orchestrator) degrade(reason string) {
	o.mu.Lock()
	o.stale = true
	o.failureReason = reason
	o.mu.Unlock()
}
