package wasmvm

import (
	"errors"
	"fmt"

	"github.com/vireonet/txcore/key"
)

// PreprocessErrorKind discriminates the preprocessor's rejection reasons,
// matching spec.md §4.4's PreprocessingError sum type.
type PreprocessErrorKind int

const (
	InvalidImport PreprocessErrorKind = iota
	MissingExport
	UnsupportedSection
)

func (k PreprocessErrorKind) String() string {
	switch k {
	case InvalidImport:
		return "InvalidImport"
	case MissingExport:
		return "MissingExport"
	case UnsupportedSection:
		return "UnsupportedSection"
	default:
		return "Unknown"
	}
}

// PreprocessError is returned when a module fails validation.
type PreprocessError struct {
	Kind   PreprocessErrorKind
	Detail string
}

func (e *PreprocessError) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Detail) }

func reject(kind PreprocessErrorKind, detail string) error {
	return &PreprocessError{Kind: kind, Detail: detail}
}

// HostFunctions is the full table of host imports a preprocessed module is
// permitted to bind under the "env" module namespace — every name spec.md
// §4.4's runtime host surface table lists.
var HostFunctions = map[string]bool{
	"read":                         true,
	"write":                        true,
	"add":                          true,
	"new_uref":                     true,
	"call_contract":                true,
	"create_purse":                 true,
	"transfer_from_purse_to_purse": true,
	"get_balance":                  true,
	"revert":                       true,
	"get_named_arg":                true,
	"put_key":                      true,
	"get_key":                      true,
	"remove_key":                   true,
	"gas":                          true,
	// ret is not in spec.md §4.4's table verbatim but is the mechanism the
	// original implementation uses to set a call's typed return value
	// (original_source's smart_contracts/sdk host surface); spec.md §4.7's
	// "typed return value ... deserialized from the runtime's set-return
	// buffer" requires some such function to exist.
	"ret": true,
}

const (
	secType     = 1
	secImport   = 2
	secFunction = 3
	secExport   = 7
)

const (
	valI32     = 0x7F
	valI64     = 0x7E
	valF32     = 0x7D
	valF64     = 0x7C
	valV128    = 0x7B
	valFuncref = 0x70
	valExtRef  = 0x6F
)

type funcType struct{ params, results []byte }

type memLimits struct {
	min, max uint32
	hasMax   bool
	shared   bool
}

type moduleImport struct {
	module, field string
	isMemory      bool
	typeIdx       uint32
	mem           memLimits
}

type moduleExport struct {
	name    string
	isFunc  bool
	funcIdx uint32
}

// parsedModule holds just enough of a module's structure to validate it;
// Preprocess discards it once validation succeeds, handing wasmer-go the
// original raw bytes to compile.
type parsedModule struct {
	types    []funcType
	imports  []moduleImport
	funcsecs []uint32 // type indices of locally-defined functions, in order
	exports  []moduleExport
}

func parseModule(code []byte) (*parsedModule, error) {
	if len(code) < 8 || string(code[0:4]) != "\x00asm" {
		return nil, reject(UnsupportedSection, "missing wasm magic header")
	}
	r := &wasmReader{b: code, pos: 8}
	m := &parsedModule{}

	for !r.done() {
		id, err := r.byte()
		if err != nil {
			return nil, reject(UnsupportedSection, "truncated section header")
		}
		size, err := r.u32()
		if err != nil {
			return nil, reject(UnsupportedSection, "truncated section size")
		}
		end := r.pos + int(size)
		if end > len(r.b) {
			return nil, reject(UnsupportedSection, "section overruns module")
		}
		switch id {
		case secType:
			if err := parseTypeSection(r, end, m); err != nil {
				return nil, err
			}
		case secImport:
			if err := parseImportSection(r, end, m); err != nil {
				return nil, err
			}
		case secFunction:
			if err := parseFunctionSection(r, end, m); err != nil {
				return nil, err
			}
		case secExport:
			if err := parseExportSection(r, end, m); err != nil {
				return nil, err
			}
		}
		r.pos = end
	}
	return m, nil
}

func parseValType(r *wasmReader) (byte, error) { return r.byte() }

func parseTypeSection(r *wasmReader, end int, m *parsedModule) error {
	count, err := r.u32()
	if err != nil {
		return reject(UnsupportedSection, "bad type section count")
	}
	for i := uint32(0); i < count; i++ {
		tag, err := r.byte()
		if err != nil || tag != 0x60 {
			return reject(UnsupportedSection, "expected func type tag 0x60")
		}
		nparams, err := r.u32()
		if err != nil {
			return reject(UnsupportedSection, "bad param count")
		}
		params := make([]byte, nparams)
		for p := range params {
			v, err := parseValType(r)
			if err != nil {
				return reject(UnsupportedSection, "bad param type")
			}
			params[p] = v
		}
		nresults, err := r.u32()
		if err != nil {
			return reject(UnsupportedSection, "bad result count")
		}
		results := make([]byte, nresults)
		for p := range results {
			v, err := parseValType(r)
			if err != nil {
				return reject(UnsupportedSection, "bad result type")
			}
			results[p] = v
		}
		m.types = append(m.types, funcType{params: params, results: results})
	}
	return nil
}

func parseImportSection(r *wasmReader, end int, m *parsedModule) error {
	count, err := r.u32()
	if err != nil {
		return reject(InvalidImport, "bad import section count")
	}
	for i := uint32(0); i < count; i++ {
		mod, err := r.name()
		if err != nil {
			return reject(InvalidImport, "bad import module name")
		}
		field, err := r.name()
		if err != nil {
			return reject(InvalidImport, "bad import field name")
		}
		tag, err := r.byte()
		if err != nil {
			return reject(InvalidImport, "bad import descriptor")
		}
		imp := moduleImport{module: mod, field: field}
		switch tag {
		case 0x00: // func
			idx, err := r.u32()
			if err != nil {
				return reject(InvalidImport, "bad function import type index")
			}
			imp.typeIdx = idx
		case 0x01: // table
			if _, err := r.byte(); err != nil { // elem type
				return reject(InvalidImport, "bad table import")
			}
			if _, err := parseLimits(r); err != nil {
				return reject(InvalidImport, "bad table import limits")
			}
		case 0x02: // memory
			lim, err := parseLimits(r)
			if err != nil {
				return reject(InvalidImport, "bad memory import limits")
			}
			imp.isMemory = true
			imp.mem = lim
		case 0x03: // global
			if _, err := r.byte(); err != nil { // valtype
				return reject(InvalidImport, "bad global import type")
			}
			if _, err := r.byte(); err != nil { // mutability
				return reject(InvalidImport, "bad global import mutability")
			}
		default:
			return reject(InvalidImport, "unknown import descriptor tag")
		}
		m.imports = append(m.imports, imp)
	}
	return nil
}

func parseLimits(r *wasmReader) (memLimits, error) {
	flags, err := r.byte()
	if err != nil {
		return memLimits{}, err
	}
	min, err := r.u32()
	if err != nil {
		return memLimits{}, err
	}
	lim := memLimits{min: min, shared: flags&0x02 != 0}
	if flags&0x01 != 0 {
		max, err := r.u32()
		if err != nil {
			return memLimits{}, err
		}
		lim.max = max
		lim.hasMax = true
	}
	return lim, nil
}

func parseFunctionSection(r *wasmReader, end int, m *parsedModule) error {
	count, err := r.u32()
	if err != nil {
		return reject(UnsupportedSection, "bad function section count")
	}
	for i := uint32(0); i < count; i++ {
		idx, err := r.u32()
		if err != nil {
			return reject(UnsupportedSection, "bad function type index")
		}
		m.funcsecs = append(m.funcsecs, idx)
	}
	return nil
}

func parseExportSection(r *wasmReader, end int, m *parsedModule) error {
	count, err := r.u32()
	if err != nil {
		return reject(MissingExport, "bad export section count")
	}
	for i := uint32(0); i < count; i++ {
		name, err := r.name()
		if err != nil {
			return reject(MissingExport, "bad export name")
		}
		tag, err := r.byte()
		if err != nil {
			return reject(MissingExport, "bad export descriptor")
		}
		idx, err := r.u32()
		if err != nil {
			return reject(MissingExport, "bad export index")
		}
		m.exports = append(m.exports, moduleExport{name: name, isFunc: tag == 0x00, funcIdx: idx})
	}
	return nil
}

// numImportedFuncs counts how many imports are functions, since the
// function index space is imported functions followed by locally-defined
// ones (the WASM spec's index-space ordering).
func (m *parsedModule) numImportedFuncs() int {
	n := 0
	for _, imp := range m.imports {
		if !imp.isMemory {
			n++
		}
	}
	return n
}

func (m *parsedModule) funcTypeOf(funcIdx uint32) (funcType, bool) {
	nImported := m.numImportedFuncs()
	if int(funcIdx) < nImported {
		i := 0
		for _, imp := range m.imports {
			if imp.isMemory {
				continue
			}
			if i == int(funcIdx) {
				if int(imp.typeIdx) >= len(m.types) {
					return funcType{}, false
				}
				return m.types[imp.typeIdx], true
			}
			i++
		}
		return funcType{}, false
	}
	local := int(funcIdx) - nImported
	if local < 0 || local >= len(m.funcsecs) {
		return funcType{}, false
	}
	typeIdx := m.funcsecs[local]
	if int(typeIdx) >= len(m.types) {
		return funcType{}, false
	}
	return m.types[typeIdx], true
}

func validValTypes(vals []byte, cfg key.WasmConfig) error {
	for _, v := range vals {
		switch v {
		case valI32, valI64, valF32, valF64:
			continue
		case valV128:
			if !cfg.AllowSIMD {
				return errors.New("SIMD value types require the simd proposal to be enabled")
			}
		case valFuncref, valExtRef:
			if !cfg.AllowReferenceTypes {
				return errors.New("reference types require the reference-types proposal to be enabled")
			}
		default:
			return fmt.Errorf("unsupported value type 0x%02x", v)
		}
	}
	return nil
}

// Preprocess validates raw module bytes against cfg, rejecting anything
// spec.md §4.4 disallows: value types beyond i32/i64/f32/f64 (unless the
// corresponding proposal is enabled), anything other than exactly one
// "env.memory" import with a statically bounded max, and anything other
// than exactly one exported "call" function of type ()->().
func Preprocess(code []byte, cfg key.WasmConfig) error {
	m, err := parseModule(code)
	if err != nil {
		return err
	}

	var sawMemory bool
	for _, imp := range m.imports {
		if imp.isMemory {
			if sawMemory {
				return reject(InvalidImport, "more than one memory import")
			}
			if imp.module != "env" || imp.field != "memory" {
				return reject(InvalidImport, fmt.Sprintf("unexpected memory import %s.%s, want env.memory", imp.module, imp.field))
			}
			if imp.mem.shared && !cfg.AllowThreads {
				return reject(InvalidImport, "shared memory requires the threads proposal to be enabled")
			}
			if !imp.mem.hasMax || imp.mem.max > cfg.MaxMemoryPages {
				return reject(InvalidImport, fmt.Sprintf("memory import must declare a max <= %d pages", cfg.MaxMemoryPages))
			}
			sawMemory = true
			continue
		}
		if imp.module != "env" || !HostFunctions[imp.field] {
			return reject(InvalidImport, fmt.Sprintf("unrecognized import %s.%s", imp.module, imp.field))
		}
		if int(imp.typeIdx) < len(m.types) {
			ft := m.types[imp.typeIdx]
			if err := validValTypes(ft.params, cfg); err != nil {
				return reject(InvalidImport, err.Error())
			}
			if err := validValTypes(ft.results, cfg); err != nil {
				return reject(InvalidImport, err.Error())
			}
		}
	}
	if !sawMemory {
		return reject(InvalidImport, "module does not import env.memory")
	}

	var callFuncs int
	for _, exp := range m.exports {
		if exp.name != "call" {
			continue
		}
		if !exp.isFunc {
			return reject(MissingExport, "\"call\" export must be a function")
		}
		callFuncs++
		ft, ok := m.funcTypeOf(exp.funcIdx)
		if !ok {
			return reject(MissingExport, "\"call\" export has no resolvable type")
		}
		if len(ft.params) != 0 || len(ft.results) != 0 {
			return reject(MissingExport, "\"call\" export must have type () -> ()")
		}
	}
	switch {
	case callFuncs == 0:
		return reject(MissingExport, "module does not export a \"call\" function")
	case callFuncs > 1:
		return reject(MissingExport, "module exports more than one \"call\" function")
	}

	for _, typ := range m.types {
		if err := validValTypes(typ.params, cfg); err != nil {
			return reject(UnsupportedSection, err.Error())
		}
		if err := validValTypes(typ.results, cfg); err != nil {
			return reject(UnsupportedSection, err.Error())
		}
	}

	return nil
}
