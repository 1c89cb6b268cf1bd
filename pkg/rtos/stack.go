package rtos

import (
	"go.uber.org/zap"
)

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

// analyzeStack computes stack usage for one task from its TCB fields.
// Current usage costs no memory access; when the kernel records a static
// end-of-stack bound the full region is read once and scanned from the
// far end for the first byte that no longer equals fill, which is the
// task's historical high-water mark. Without the bound only current usage
// is reported, never a fabricated peak.
func analyzeStack(tcb *TcbView, fill byte, mem MemReader, log *zap.Logger) StackInfo {
	info := StackInfo{
		StartAddr: tcb.StackBase,
		TopAddr:   tcb.TopOfStack,
		CurUsed:   absDiff(tcb.StackBase, tcb.TopOfStack),
		Growth:    GrowsDown,
	}
	if tcb.EndOfStack == nil {
		return info
	}

	end := *tcb.EndOfStack
	size := absDiff(tcb.StackBase, end)
	info.EndAddr = &end
	info.Size = &size

	// Positive (base - end) means the stack grows downward from base.
	if tcb.StackBase < end {
		info.Growth = GrowsUp
	}

	if info.CurUsed > size {
		log.Warn("stack usage exceeds stack size",
			zap.Uint64("base", tcb.StackBase),
			zap.Uint64("top", tcb.TopOfStack),
			zap.Uint64("size", size))
	} else {
		free := size - info.CurUsed
		info.Free = &free
	}

	low := tcb.StackBase
	if end < low {
		low = end
	}
	data, err := mem.ReadMemory(low, int(size))
	if err != nil || uint64(len(data)) != size {
		// Peak stays unknown; the rest of the record is still good.
		log.Debug("stack region unreadable, skipping high-water scan",
			zap.Uint64("addr", low), zap.Uint64("size", size), zap.Error(err))
		return info
	}

	// Normalize so index 0 is the unused/far end of the stack.
	if info.Growth == GrowsUp {
		for i, j := 0, len(data)-1; i < j; i, j = i+1, j-1 {
			data[i], data[j] = data[j], data[i]
		}
	}

	untouched := uint64(0)
	for _, b := range data {
		if b != fill {
			break
		}
		untouched++
	}
	peak := size - untouched
	info.PeakUsed = &peak

	if peak > size {
		log.Warn("stack peak exceeds stack size",
			zap.Uint64("peak", peak), zap.Uint64("size", size))
	}
	return info
}
