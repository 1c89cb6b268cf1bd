package rtos

import (
	"fmt"
)

// fakeVar is a scripted Var for engine tests.
type fakeVar struct {
	name      string
	value     string
	valueErr  error
	fields    map[string]Var
	fieldsErr error
	children  []Var
}

func (v *fakeVar) Name() string { return v.name }

func (v *fakeVar) Value() (string, error) {
	if v.valueErr != nil {
		return "", v.valueErr
	}
	return v.value, nil
}

func (v *fakeVar) Fields() (map[string]Var, error) {
	if v.fieldsErr != nil {
		return nil, v.fieldsErr
	}
	return v.fields, nil
}

func (v *fakeVar) Children() ([]Var, error) {
	return v.children, nil
}

// fakeSession serves a synthetic halted target from in-memory tables.
type fakeSession struct {
	halted      bool
	haltedCalls int // remaining Halted() calls answering true; -1 = unlimited
	globals     map[string]Var
	evals       map[string]Var
	mem         map[uint64][]byte

	resolveCalls map[string]int
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		halted:       true,
		haltedCalls:  -1,
		globals:      make(map[string]Var),
		evals:        make(map[string]Var),
		mem:          make(map[uint64][]byte),
		resolveCalls: make(map[string]int),
	}
}

// haltAfterReads makes the target appear to resume after n more Halted
// checks, simulating an external continue mid-pass.
func (s *fakeSession) haltAfterReads(n int) {
	s.haltedCalls = n
}

func (s *fakeSession) Halted() bool {
	if !s.halted {
		return false
	}
	if s.haltedCalls < 0 {
		return true
	}
	if s.haltedCalls == 0 {
		s.halted = false
		return false
	}
	s.haltedCalls--
	return true
}

func (s *fakeSession) ResolveGlobal(name string) (Var, error) {
	s.resolveCalls[name]++
	v, ok := s.globals[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, name)
	}
	return v, nil
}

func (s *fakeSession) Eval(expr string) (Var, error) {
	v, ok := s.evals[expr]
	if !ok {
		return nil, fmt.Errorf("cannot evaluate %q", expr)
	}
	return v, nil
}

func (s *fakeSession) ReadMemory(addr uint64, size int) ([]byte, error) {
	if !s.halted {
		return nil, ErrTargetRunning
	}
	data, ok := s.mem[addr]
	if !ok || len(data) < size {
		return nil, fmt.Errorf("%w: 0x%x+%d", ErrReadUnavailable, addr, size)
	}
	return data[:size], nil
}

// fakeTask describes one synthetic task to install into the fake kernel.
type fakeTask struct {
	addr    uint64
	name    string
	id      *uint64
	prio    uint64
	top     uint64
	base    uint64
	end     *uint64
	runtime *uint64
}

func u64(v uint64) *uint64 { return &v }

// installTCB registers the TCB dereference for one task.
func (s *fakeSession) installTCB(t fakeTask) {
	fields := map[string]Var{
		fieldTopOfStack: &fakeVar{name: fieldTopOfStack, value: fmt.Sprintf("0x%x", t.top)},
		fieldStackBase:  &fakeVar{name: fieldStackBase, value: fmt.Sprintf("0x%x", t.base)},
		fieldPriority:   &fakeVar{name: fieldPriority, value: fmt.Sprintf("%d", t.prio)},
		fieldTaskName:   &fakeVar{name: fieldTaskName, value: fmt.Sprintf("%q", t.name)},
	}
	if t.id != nil {
		fields[fieldTCBNumber] = &fakeVar{name: fieldTCBNumber, value: fmt.Sprintf("%d", *t.id)}
	}
	if t.end != nil {
		fields[fieldEndOfStack] = &fakeVar{name: fieldEndOfStack, value: fmt.Sprintf("0x%x", *t.end)}
	}
	if t.runtime != nil {
		fields[fieldRunTimeCounter] = &fakeVar{name: fieldRunTimeCounter, value: fmt.Sprintf("%d", *t.runtime)}
	}
	s.evals[fmt.Sprintf("*(TCB_t *)0x%x", t.addr)] = &fakeVar{
		name:   fmt.Sprintf("TCB@0x%x", t.addr),
		fields: fields,
	}
}

// installList wires a named kernel list holding the given tasks, list
// items chained backward from the sentinel the way the kernel links them.
func (s *fakeSession) installList(name string, tasks []fakeTask) Var {
	nodeAddr := func(t fakeTask) uint64 { return t.addr + 0x40 }

	for i, t := range tasks {
		s.installTCB(t)
		nodeFields := map[string]Var{
			fieldOwner: &fakeVar{name: fieldOwner, value: fmt.Sprintf("0x%x", t.addr)},
		}
		if i+1 < len(tasks) {
			nodeFields[fieldPrevious] = &fakeVar{
				name:  fieldPrevious,
				value: fmt.Sprintf("0x%x", nodeAddr(tasks[i+1])),
			}
		}
		s.evals[fmt.Sprintf("*(ListItem_t *)0x%x", nodeAddr(t))] = &fakeVar{
			name:   fmt.Sprintf("node@0x%x", nodeAddr(t)),
			fields: nodeFields,
		}
	}

	endFields := map[string]Var{}
	if len(tasks) > 0 {
		endFields[fieldPrevious] = &fakeVar{
			name:  fieldPrevious,
			value: fmt.Sprintf("0x%x", nodeAddr(tasks[0])),
		}
	}
	list := &fakeVar{
		name: name,
		fields: map[string]Var{
			fieldNumberOfItems: &fakeVar{name: fieldNumberOfItems, value: fmt.Sprintf("%d", len(tasks))},
			fieldListEnd:       &fakeVar{name: fieldListEnd, fields: endFields},
		},
	}
	return list
}

// kernelFixture assembles a fully resolvable fake kernel.
type kernelFixture struct {
	ready      [][]fakeTask // one slice per priority bucket
	delayed1   []fakeTask
	delayed2   []fakeTask
	pending    []fakeTask
	suspended  []fakeTask
	terminated []fakeTask

	declared   string // raw value of uxCurrentNumberOfTasks
	currentTCB uint64
	totalRT    *uint64
	// leave optional lists out entirely
	noSuspended, noTerminated bool
}

func (f kernelFixture) taskCount() int {
	n := len(f.delayed1) + len(f.delayed2) + len(f.pending) + len(f.suspended) + len(f.terminated)
	for _, bucket := range f.ready {
		n += len(bucket)
	}
	return n
}

func (f kernelFixture) install(s *fakeSession) {
	declared := f.declared
	if declared == "" {
		declared = fmt.Sprintf("%d", f.taskCount())
	}
	s.globals[symCurrentNumberOfTasks] = &fakeVar{name: symCurrentNumberOfTasks, value: declared}
	s.globals[symCurrentTCB] = &fakeVar{name: symCurrentTCB, value: fmt.Sprintf("0x%x", f.currentTCB)}

	buckets := make([]Var, 0, len(f.ready))
	for i, tasks := range f.ready {
		buckets = append(buckets, s.installList(fmt.Sprintf("pxReadyTasksLists[%d]", i), tasks))
	}
	s.globals[symReadyTasksLists] = &fakeVar{name: symReadyTasksLists, children: buckets}

	s.globals[symDelayedTaskList1] = s.installList(symDelayedTaskList1, f.delayed1)
	s.globals[symDelayedTaskList2] = s.installList(symDelayedTaskList2, f.delayed2)
	s.globals[symPendingReadyList] = s.installList(symPendingReadyList, f.pending)
	if !f.noSuspended {
		s.globals[symSuspendedTaskList] = s.installList(symSuspendedTaskList, f.suspended)
	}
	if !f.noTerminated {
		s.globals[symTasksWaitingTermination] = s.installList(symTasksWaitingTermination, f.terminated)
	}
	if f.totalRT != nil {
		s.globals[symTotalRunTime] = &fakeVar{name: symTotalRunTime, value: fmt.Sprintf("%d", *f.totalRT)}
	}
}
