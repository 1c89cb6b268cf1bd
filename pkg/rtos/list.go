package rtos

import (
	"fmt"

	"go.uber.org/zap"
)

// collector accumulates task records across the list walks of one
// collection pass. It is built fresh per pass and never shared.
type collector struct {
	session      Session
	log          *zap.Logger
	currentTCB   uint64
	totalRunTime *uint64
	records      []TaskRecord
}

func (c *collector) remaining() int {
	return MaxTasks - len(c.records)
}

// traverse walks one kernel task list and appends a record per node,
// labeled state unless the node owns the current TCB (then RUNNING).
//
// FreeRTOS lists are intrusive circular doubly linked lists: a sentinel
// xListEnd plus uxNumberOfItems real nodes. The walk follows pxPrevious
// from the sentinel exactly uxNumberOfItems times; bounding by the
// declared count instead of sentinel detection keeps a corrupted or
// concurrently-mutated list from looping forever.
//
// A nil or unresolved list var and an exhausted task cap are no-ops. A
// sentinel read failure rejects the whole call; a structural failure per
// node aborts the remainder of this list but keeps what was collected.
func (c *collector) traverse(list Var, state TaskState) error {
	if list == nil || c.remaining() <= 0 {
		return nil
	}
	if !c.session.Halted() {
		return ErrTargetRunning
	}

	fields, err := list.Fields()
	if err != nil {
		return fmt.Errorf("list %s: %w", list.Name(), err)
	}
	count, ok, err := uintField(fields, fieldNumberOfItems)
	if err != nil {
		return fmt.Errorf("list %s: %w", list.Name(), err)
	}
	if !ok || count == 0 {
		return nil
	}

	sentinel, ok := fields[fieldListEnd]
	if !ok {
		return nil
	}
	endFields, err := sentinel.Fields()
	if err != nil {
		return fmt.Errorf("list %s sentinel: %w", list.Name(), err)
	}

	node, err := c.followPrevious(endFields)
	if err != nil {
		return fmt.Errorf("list %s first node: %w", list.Name(), err)
	}

	for i := uint64(0); i < count && c.remaining() > 0; i++ {
		nodeFields, err := node.Fields()
		if err != nil {
			c.log.Warn("list node unreadable, abandoning rest of list",
				zap.String("list", list.Name()), zap.Uint64("index", i), zap.Error(err))
			return nil
		}

		tcbAddr, ok, err := uintField(nodeFields, fieldOwner)
		if err != nil || !ok {
			c.log.Warn("list node owner unreadable, abandoning rest of list",
				zap.String("list", list.Name()), zap.Uint64("index", i), zap.Error(err))
			return nil
		}

		if err := c.collectTask(tcbAddr, state); err != nil {
			c.log.Warn("TCB dereference failed, abandoning rest of list",
				zap.String("list", list.Name()), zap.Uint64("tcb", tcbAddr), zap.Error(err))
			return nil
		}

		if i+1 < count {
			node, err = c.followPrevious(nodeFields)
			if err != nil {
				c.log.Warn("list link unreadable, abandoning rest of list",
					zap.String("list", list.Name()), zap.Uint64("index", i), zap.Error(err))
				return nil
			}
		}
	}
	return nil
}

// followPrevious reads a node's backward link and dereferences the next
// list item.
func (c *collector) followPrevious(fields map[string]Var) (Var, error) {
	addr, ok, err := uintField(fields, fieldPrevious)
	if err != nil {
		return nil, err
	}
	if !ok || addr == 0 {
		return nil, fmt.Errorf("missing %s link", fieldPrevious)
	}
	return c.session.Eval(fmt.Sprintf("*(ListItem_t *)0x%x", addr))
}

// collectTask dereferences one TCB and appends its record.
func (c *collector) collectTask(tcbAddr uint64, state TaskState) error {
	tcbVar, err := c.session.Eval(fmt.Sprintf("*(TCB_t *)0x%x", tcbAddr))
	if err != nil {
		return err
	}
	view, err := decodeTCB(tcbVar)
	if err != nil {
		return err
	}

	if tcbAddr == c.currentTCB {
		state = StateRunning
	}

	record := TaskRecord{
		ID:           view.TCBNumber,
		Addr:         tcbAddr,
		Name:         view.Name,
		State:        state,
		Priority:     view.Priority,
		BasePriority: view.BasePriority,
		RuntimePct:   formatRuntimePct(view.RunTimeCounter, c.totalRunTime),
		Stack:        analyzeStack(view, StackFillByte, c.session, c.log),
	}
	c.records = append(c.records, record)
	return nil
}

// formatRuntimePct renders the task's share of the total runtime counter.
// Absent or zero counters yield no field at all, not "0.00%".
func formatRuntimePct(task, total *uint64) *string {
	if task == nil || total == nil || *task == 0 || *total == 0 {
		return nil
	}
	pct := fmt.Sprintf("%.2f%%", float64(*task)/float64(*total)*100)
	return &pct
}
