package rtos

// Hard cap on reconstructed tasks per pass. A declared count beyond this
// is treated as garbage rather than traversed.
const MaxTasks = 1024

// StackFillByte is tskSTACK_FILL_BYTE from FreeRTOS tasks.c: unused stack
// regions are painted with it at task creation, which is what makes the
// high-water scan possible.
const StackFillByte = 0xa5

// Kernel globals from tasks.c. The first block is required for detection,
// the second is optional and only disables dependent features when absent.
const (
	symCurrentNumberOfTasks = "uxCurrentNumberOfTasks"
	symReadyTasksLists      = "pxReadyTasksLists"
	symDelayedTaskList1     = "xDelayedTaskList1"
	symDelayedTaskList2     = "xDelayedTaskList2"
	symPendingReadyList     = "xPendingReadyList"
	symCurrentTCB           = "pxCurrentTCB"

	symSuspendedTaskList       = "xSuspendedTaskList"
	symTasksWaitingTermination = "xTasksWaitingTermination"
	symTotalRunTime            = "ulTotalRunTime"
)

// List_t / ListItem_t / TCB_t member names.
const (
	fieldNumberOfItems = "uxNumberOfItems"
	fieldListEnd       = "xListEnd"
	fieldPrevious      = "pxPrevious"
	fieldOwner         = "pvOwner"

	fieldTopOfStack     = "pxTopOfStack"
	fieldStackBase      = "pxStack"
	fieldEndOfStack     = "pxEndOfStack"
	fieldPriority       = "uxPriority"
	fieldBasePriority   = "uxBasePriority"
	fieldTaskName       = "pcTaskName"
	fieldTCBNumber      = "uxTCBNumber"
	fieldRunTimeCounter = "ulRunTimeCounter"
)
