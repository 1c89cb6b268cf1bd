package rtos

import "fmt"

// TcbView is the typed decode of one TCB_t aggregate. The debugger hands
// struct members back as a loose bag of named children; decodeTCB turns
// that into named fields exactly once so downstream code never does
// string-keyed lookups. Optional members are explicit pointers, absent
// when the kernel build does not compile them in or the read failed.
type TcbView struct {
	TopOfStack uint64
	StackBase  uint64
	Priority   uint64

	EndOfStack     *uint64
	BasePriority   *uint64
	TCBNumber      *uint64
	RunTimeCounter *uint64
	Name           string
}

// decodeTCB builds a TcbView from a dereferenced TCB_t variable. Stack
// pointers and priority are structural: without them no usable record
// can be built. Everything else degrades field-by-field.
func decodeTCB(tcb Var) (*TcbView, error) {
	fields, err := tcb.Fields()
	if err != nil {
		return nil, fmt.Errorf("TCB fields: %w", err)
	}

	view := &TcbView{}

	top, ok, err := uintField(fields, fieldTopOfStack)
	if err != nil || !ok {
		return nil, fmt.Errorf("TCB %s unreadable: %v", fieldTopOfStack, err)
	}
	view.TopOfStack = top

	base, ok, err := uintField(fields, fieldStackBase)
	if err != nil || !ok {
		return nil, fmt.Errorf("TCB %s unreadable: %v", fieldStackBase, err)
	}
	view.StackBase = base

	prio, ok, err := uintField(fields, fieldPriority)
	if err != nil || !ok {
		return nil, fmt.Errorf("TCB %s unreadable: %v", fieldPriority, err)
	}
	view.Priority = prio

	if v, ok, err := uintField(fields, fieldEndOfStack); ok && err == nil {
		view.EndOfStack = &v
	}
	if v, ok, err := uintField(fields, fieldBasePriority); ok && err == nil {
		view.BasePriority = &v
	}
	if v, ok, err := uintField(fields, fieldTCBNumber); ok && err == nil {
		view.TCBNumber = &v
	}
	if v, ok, err := uintField(fields, fieldRunTimeCounter); ok && err == nil {
		view.RunTimeCounter = &v
	}
	if nameVar, ok := fields[fieldTaskName]; ok {
		if raw, err := nameVar.Value(); err == nil {
			view.Name = parseName(raw)
		}
	}
	return view, nil
}
