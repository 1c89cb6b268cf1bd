package rtos

// MemReader reads raw bytes out of target memory. The target must be
// halted for the read to be attempted.
type MemReader interface {
	ReadMemory(addr uint64, size int) ([]byte, error)
}

// Session is the debug-session collaborator the engine reconstructs
// kernel state through. All lookups are evaluated against the frame the
// target is currently stopped in; implementations resolve symbolic names
// to variable handles and service raw memory reads.
type Session interface {
	MemReader

	// Halted reports whether the target is stopped. Every other method
	// may only be called while this is true.
	Halted() bool

	// ResolveGlobal resolves a kernel global by name, returning
	// ErrSymbolNotFound when the symbol does not exist in the target.
	ResolveGlobal(name string) (Var, error)

	// Eval evaluates a C expression (the engine only uses pointer-cast
	// dereferences like `*(TCB_t *)0x20001234`).
	Eval(expr string) (Var, error)
}

// Var is a resolved handle to one target variable. Scalar values are
// rendered as strings the way a debugger prints them ("21",
// "0x20001234 <ucHeap+512>", `"IDLE"`); aggregates expose their members
// through Children and Fields.
type Var interface {
	Name() string
	Value() (string, error)
	Children() ([]Var, error)
	Fields() (map[string]Var, error)
}
