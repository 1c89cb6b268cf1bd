package binary

import (
	"debug/dwarf"
	"debug/elf"
	"errors"
	"fmt"
	"os"
	"sync"
)

var (
	ErrBinaryNotFound    = errors.New("firmware image not found")
	ErrInvalidExecutable = errors.New("invalid or unsupported executable format")
	ErrSymbolNotFound    = errors.New("symbol not found in firmware")
)

// Loader analyzes a firmware ELF image: symbol addresses from the symtab,
// type layouts and global variable locations from DWARF. Reads are lazy
// and cached; a Loader is safe to share across one debug session.
type Loader struct {
	file *elf.File
	path string

	loadOnce sync.Once
	symbols  map[string]uint64
	loadErr  error

	dwarf *DwarfInfo
}

// Load opens the firmware ELF the target was flashed from.
func Load(path string) (*Loader, error) {
	file, err := elf.Open(path)
	if os.IsNotExist(err) {
		return nil, ErrBinaryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExecutable, err)
	}
	return &Loader{
		file:  file,
		path:  path,
		dwarf: newDwarfInfo(file),
	}, nil
}

func (l *Loader) Close() error {
	return l.file.Close()
}

func (l *Loader) Path() string {
	return l.path
}

// PtrSize returns the target pointer width: 4 on the Cortex-M class
// targets FreeRTOS usually runs on, 8 on 64-bit ones.
func (l *Loader) PtrSize() int {
	if l.file.Class == elf.ELFCLASS64 {
		return 8
	}
	return 4
}

// Symbols returns the ELF symbol table as name -> address, loaded once.
func (l *Loader) Symbols() (map[string]uint64, error) {
	l.loadOnce.Do(func() {
		syms, err := l.file.Symbols()
		if err != nil {
			l.loadErr = fmt.Errorf("failed to get symbols: %w", err)
			return
		}
		l.symbols = make(map[string]uint64, len(syms))
		for _, sym := range syms {
			l.symbols[sym.Name] = sym.Value
		}
	})
	return l.symbols, l.loadErr
}

// FindVariableAddress locates a global by name, preferring the DWARF
// variable entry (which also carries the type) and falling back to the
// ELF symtab for symbols compiled without debug info.
func (l *Loader) FindVariableAddress(name string) (uint64, error) {
	if v, err := l.dwarf.LookupVariable(name); err == nil {
		return v.Addr, nil
	}
	symbols, err := l.Symbols()
	if err != nil {
		return 0, err
	}
	addr, ok := symbols[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrSymbolNotFound, name)
	}
	return addr, nil
}

// DWARF exposes the firmware's debug info reader.
func (l *Loader) DWARF() *DwarfInfo {
	return l.dwarf
}

// LookupVariable finds a global's address and type in the debug info.
func (l *Loader) LookupVariable(name string) (*Variable, error) {
	return l.dwarf.LookupVariable(name)
}

// LookupType finds a named type in the debug info.
func (l *Loader) LookupType(name string) (dwarf.Type, error) {
	return l.dwarf.LookupType(name)
}
