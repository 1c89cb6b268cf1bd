// Package session binds a firmware image's debug info to a live target
// connection, presenting both as the variable-inspection interface the
// reconstruction engine consumes.
package session

import (
	"debug/dwarf"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	gbin "github.com/embedtools/rtospy/pkg/binary"
	"github.com/embedtools/rtospy/pkg/rtos"
)

// Target is the transport a session reads target memory through,
// satisfied by *gdbrsp.Client.
type Target interface {
	ReadMemory(addr uint64, size int) ([]byte, error)
	Running() bool
}

// Binary is the firmware-image surface a session resolves symbols and
// type layouts through, satisfied by *binary.Loader.
type Binary interface {
	LookupVariable(name string) (*gbin.Variable, error)
	LookupType(name string) (dwarf.Type, error)
	FindVariableAddress(name string) (uint64, error)
	PtrSize() int
}

// Session implements rtos.Session: symbols and type layouts come from
// the firmware ELF, bytes come from the target.
type Session struct {
	bin    Binary
	target Target
	log    *zap.Logger
}

func New(bin Binary, target Target, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{bin: bin, target: target, log: log}
}

func (s *Session) Halted() bool {
	return !s.target.Running()
}

func (s *Session) ReadMemory(addr uint64, size int) ([]byte, error) {
	if s.target.Running() {
		return nil, rtos.ErrTargetRunning
	}
	return s.target.ReadMemory(addr, size)
}

// ResolveGlobal looks a kernel global up in the firmware debug info,
// falling back to the ELF symtab for globals compiled without it. A
// symtab-only variable has no type: it renders as a pointer-width
// scalar and cannot be decomposed.
func (s *Session) ResolveGlobal(name string) (rtos.Var, error) {
	if v, err := s.bin.LookupVariable(name); err == nil {
		return &variable{s: s, name: name, addr: v.Addr, typ: v.Type}, nil
	}
	addr, err := s.bin.FindVariableAddress(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", rtos.ErrSymbolNotFound, name)
	}
	s.log.Debug("global resolved from symtab without debug info", zap.String("name", name))
	return &variable{s: s, name: name, addr: addr}, nil
}

// derefExpr matches the only expression shape the engine evaluates:
// a typed pointer dereference like `*(TCB_t *)0x20001234`.
var derefExpr = regexp.MustCompile(`^\*\s*\(\s*(\w+)\s*\*\s*\)\s*(0[xX][0-9a-fA-F]+|\d+)$`)

// Eval evaluates a pointer-cast dereference or a bare global name.
func (s *Session) Eval(expr string) (rtos.Var, error) {
	expr = strings.TrimSpace(expr)
	m := derefExpr.FindStringSubmatch(expr)
	if m == nil {
		return s.ResolveGlobal(expr)
	}
	typ, err := s.bin.LookupType(m[1])
	if err != nil {
		return nil, fmt.Errorf("eval %q: %w", expr, err)
	}
	addr, err := strconv.ParseUint(m[2], 0, 64)
	if err != nil {
		return nil, fmt.Errorf("eval %q: %w", expr, err)
	}
	return &variable{s: s, name: expr, addr: addr, typ: typ}, nil
}

// variable is one target variable: an address plus its DWARF type.
type variable struct {
	s    *Session
	name string
	addr uint64
	typ  dwarf.Type
}

func (v *variable) Name() string {
	return v.name
}

// Value renders a scalar the way a debugger would: pointers in hex,
// integers in decimal, char arrays as a quoted NUL-terminated string.
func (v *variable) Value() (string, error) {
	if v.typ == nil {
		// Symtab-only global: the best available rendering is the raw
		// pointer-width word at its address.
		raw, err := v.readScalar(v.s.bin.PtrSize())
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("0x%x", raw), nil
	}
	t := gbin.Underlying(v.typ)
	switch tt := t.(type) {
	case *dwarf.PtrType:
		raw, err := v.readScalar(v.s.bin.PtrSize())
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("0x%x", raw), nil
	case *dwarf.ArrayType:
		if !isCharType(tt.Type) {
			return "", fmt.Errorf("%s: array is not a character buffer", v.name)
		}
		data, err := v.s.ReadMemory(v.addr, int(tt.Count)*int(tt.Type.Size()))
		if err != nil {
			return "", err
		}
		if i := strings.IndexByte(string(data), 0); i >= 0 {
			data = data[:i]
		}
		return strconv.Quote(string(data)), nil
	case *dwarf.EnumType, *dwarf.IntType, *dwarf.CharType:
		raw, err := v.readScalar(int(t.Size()))
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(signExtend(raw, int(t.Size())), 10), nil
	case *dwarf.UintType, *dwarf.UcharType, *dwarf.BoolType, *dwarf.AddrType:
		raw, err := v.readScalar(int(t.Size()))
		if err != nil {
			return "", err
		}
		return strconv.FormatUint(raw, 10), nil
	default:
		return "", fmt.Errorf("%s: no scalar rendering for %T", v.name, t)
	}
}

// Fields decomposes a struct variable into its members.
func (v *variable) Fields() (map[string]rtos.Var, error) {
	st, ok := gbin.Underlying(v.typ).(*dwarf.StructType)
	if !ok {
		return nil, fmt.Errorf("%s: not a struct", v.name)
	}
	fields := make(map[string]rtos.Var, len(st.Field))
	for _, f := range st.Field {
		fields[f.Name] = &variable{
			s:    v.s,
			name: v.name + "." + f.Name,
			addr: v.addr + uint64(f.ByteOffset),
			typ:  f.Type,
		}
	}
	return fields, nil
}

// Children expands an array variable into its elements, in index order.
func (v *variable) Children() ([]rtos.Var, error) {
	at, ok := gbin.Underlying(v.typ).(*dwarf.ArrayType)
	if !ok {
		return nil, fmt.Errorf("%s: not an array", v.name)
	}
	elemSize := at.Type.Size()
	if elemSize <= 0 {
		return nil, fmt.Errorf("%s: unsized array element", v.name)
	}
	children := make([]rtos.Var, 0, at.Count)
	for i := int64(0); i < at.Count; i++ {
		children = append(children, &variable{
			s:    v.s,
			name: fmt.Sprintf("%s[%d]", v.name, i),
			addr: v.addr + uint64(i*elemSize),
			typ:  at.Type,
		})
	}
	return children, nil
}

func (v *variable) readScalar(size int) (uint64, error) {
	if size <= 0 || size > 8 {
		return 0, fmt.Errorf("%s: unsupported scalar size %d", v.name, size)
	}
	data, err := v.s.ReadMemory(v.addr, size)
	if err != nil {
		return 0, err
	}
	if len(data) < size {
		return 0, fmt.Errorf("%s: short read", v.name)
	}
	var raw uint64
	for i := size - 1; i >= 0; i-- {
		raw = raw<<8 | uint64(data[i])
	}
	return raw, nil
}

func isCharType(t dwarf.Type) bool {
	switch gbin.Underlying(t).(type) {
	case *dwarf.CharType, *dwarf.UcharType:
		return true
	}
	return false
}

func signExtend(raw uint64, size int) int64 {
	shift := uint(64 - size*8)
	return int64(raw<<shift) >> shift
}
