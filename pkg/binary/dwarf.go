package binary

import (
	"debug/dwarf"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"sync"
)

// DW_OP_addr: an AttrLocation expression holding a constant address.
const opAddr = 0x03

// Variable is a global resolved from DWARF: where it lives and what it is.
type Variable struct {
	Name string
	Addr uint64
	Type dwarf.Type
}

// DwarfInfo reads type layouts and variable locations out of the firmware
// debug info. Lookups scan the DWARF tree once and are cached by name.
type DwarfInfo struct {
	once sync.Once
	data *dwarf.Data
	err  error
	file *elf.File

	mu    sync.Mutex
	vars  map[string]*Variable
	types map[string]dwarf.Type
}

func newDwarfInfo(file *elf.File) *DwarfInfo {
	return &DwarfInfo{
		file:  file,
		vars:  make(map[string]*Variable),
		types: make(map[string]dwarf.Type),
	}
}

func (d *DwarfInfo) load() (*dwarf.Data, error) {
	d.once.Do(func() {
		d.data, d.err = d.file.DWARF()
	})
	return d.data, d.err
}

func (d *DwarfInfo) HasDWARF() bool {
	_, err := d.load()
	return err == nil
}

// LookupVariable finds a global variable entry by name. Function-local
// scopes are skipped so a static in tasks.c never gets shadowed by a
// local of the same name.
func (d *DwarfInfo) LookupVariable(name string) (*Variable, error) {
	d.mu.Lock()
	if v, ok := d.vars[name]; ok {
		d.mu.Unlock()
		return v, nil
	}
	d.mu.Unlock()

	data, err := d.load()
	if err != nil {
		return nil, fmt.Errorf("DWARF unavailable: %w", err)
	}

	reader := data.Reader()
	for {
		entry, err := reader.Next()
		if err != nil {
			return nil, err
		}
		if entry == nil {
			break
		}
		if entry.Tag == dwarf.TagSubprogram {
			reader.SkipChildren()
			continue
		}
		if entry.Tag != dwarf.TagVariable {
			continue
		}
		if n, _ := entry.Val(dwarf.AttrName).(string); n != name {
			continue
		}
		loc, ok := entry.Val(dwarf.AttrLocation).([]byte)
		if !ok || len(loc) < 2 || loc[0] != opAddr {
			continue
		}
		typOff, ok := entry.Val(dwarf.AttrType).(dwarf.Offset)
		if !ok {
			continue
		}
		typ, err := data.Type(typOff)
		if err != nil {
			return nil, fmt.Errorf("type of %s: %w", name, err)
		}
		v := &Variable{Name: name, Addr: decodeAddr(loc[1:]), Type: typ}
		d.mu.Lock()
		d.vars[name] = v
		d.mu.Unlock()
		return v, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrSymbolNotFound, name)
}

// LookupType finds a named type, following either a typedef (TCB_t) or a
// plain struct tag (xLIST).
func (d *DwarfInfo) LookupType(name string) (dwarf.Type, error) {
	d.mu.Lock()
	if t, ok := d.types[name]; ok {
		d.mu.Unlock()
		return t, nil
	}
	d.mu.Unlock()

	data, err := d.load()
	if err != nil {
		return nil, fmt.Errorf("DWARF unavailable: %w", err)
	}

	reader := data.Reader()
	for {
		entry, err := reader.Next()
		if err != nil {
			return nil, err
		}
		if entry == nil {
			break
		}
		switch entry.Tag {
		case dwarf.TagSubprogram:
			reader.SkipChildren()
			continue
		case dwarf.TagTypedef, dwarf.TagStructType, dwarf.TagUnionType, dwarf.TagEnumerationType:
		default:
			continue
		}
		if n, _ := entry.Val(dwarf.AttrName).(string); n != name {
			continue
		}
		typ, err := data.Type(entry.Offset)
		if err != nil {
			return nil, fmt.Errorf("type %s: %w", name, err)
		}
		d.mu.Lock()
		d.types[name] = typ
		d.mu.Unlock()
		return typ, nil
	}
	return nil, fmt.Errorf("type %q not found", name)
}

// Underlying strips typedefs and const/volatile qualifiers.
func Underlying(t dwarf.Type) dwarf.Type {
	for {
		switch tt := t.(type) {
		case *dwarf.TypedefType:
			t = tt.Type
		case *dwarf.QualType:
			t = tt.Type
		default:
			return t
		}
	}
}

func decodeAddr(buf []byte) uint64 {
	switch len(buf) {
	case 4:
		return uint64(binary.LittleEndian.Uint32(buf))
	case 8:
		return binary.LittleEndian.Uint64(buf)
	}
	var addr uint64
	for i := len(buf) - 1; i >= 0; i-- {
		addr = addr<<8 | uint64(buf[i])
	}
	return addr
}
