package realm

import (
	"fmt"
	"math"
	"strconv"
)

// TrapKind selects the behavior of an apply trap.
type TrapKind int

const (
	// TrapPassthrough forwards every operation to the target.
	TrapPassthrough TrapKind = iota
	// TrapReturn answers every call with a fixed value.
	TrapReturn
	// TrapOverride answers calls whose first argument has an override and
	// forwards everything else, including zero-argument calls, to the target.
	TrapOverride
	// TrapItem implements item(index) over fabricated collections.
	TrapItem
	// TrapNamedItem implements namedItem(key) over fabricated collections.
	TrapNamedItem
)

func (k TrapKind) String() string {
	switch k {
	case TrapPassthrough:
		return "passthrough"
	case TrapReturn:
		return "return"
	case TrapOverride:
		return "override"
	case TrapItem:
		return "item"
	case TrapNamedItem:
		return "namedItem"
	default:
		return "TrapKind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Table is the per-receiver data of an item or namedItem trap. Entries holds
// NoHandle for slots that are declared but empty.
type Table struct {
	Owner   Handle
	Entries []Handle
	Keys    []string
}

// Lookup returns the entry registered under key.
func (t Table) Lookup(key string) (Handle, bool) {
	for i, k := range t.Keys {
		if k == key && i < len(t.Entries) && t.Entries[i].Valid() {
			return t.Entries[i], true
		}
	}
	return NoHandle, false
}

// Trap is a declarative apply-trap. Because it is plain data every realm,
// including the script recorder, can realize it identically.
type Trap struct {
	Kind      TrapKind
	Value     Value
	Overrides map[string]string
	Tables    []Table
	// Interface and Method name the member for native-looking error messages.
	Interface string
	Method    string
}

// ReturnTrap answers every call with v.
func ReturnTrap(v Value) Trap { return Trap{Kind: TrapReturn, Value: v} }

// OverrideTrap answers calls for the given keys and forwards the rest.
func OverrideTrap(overrides map[string]string) Trap {
	return Trap{Kind: TrapOverride, Overrides: overrides}
}

// ItemTrap builds an item(index) trap for iface.
func ItemTrap(iface string, tables []Table) Trap {
	return Trap{Kind: TrapItem, Tables: tables, Interface: iface, Method: "item"}
}

// NamedItemTrap builds a namedItem(key) trap for iface.
func NamedItemTrap(iface string, tables []Table) Trap {
	return Trap{Kind: TrapNamedItem, Tables: tables, Interface: iface, Method: "namedItem"}
}

// Table finds the table registered for receiver.
func (t Trap) Table(receiver Handle) (Table, bool) {
	for _, tbl := range t.Tables {
		if tbl.Owner == receiver {
			return tbl, true
		}
	}
	return Table{}, false
}

// ArityMessage is the TypeError text Chrome produces for a missing argument.
func (t Trap) ArityMessage() string {
	return fmt.Sprintf("Failed to execute '%s' on '%s': 1 argument required, but only 0 present.", t.Method, t.Interface)
}

// ToIndex converts a JavaScript number the way WebIDL converts an
// `unsigned long` argument: NaN and infinities become 0, fractions truncate,
// and the result wraps modulo 2^32.
func ToIndex(f float64) uint32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	f = math.Trunc(f)
	m := math.Mod(f, 4294967296)
	if m < 0 {
		m += 4294967296
	}
	return uint32(m)
}

// ToNumber approximates JavaScript ToNumber for the primitive values that
// cross the realm boundary.
func ToNumber(v Value) float64 {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case float64:
		return x
	case bool:
		if x {
			return 1
		}
		return 0
	case string:
		if x == "" {
			return 0
		}
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	case nullValue:
		return 0
	default:
		return math.NaN()
	}
}

// ToString approximates JavaScript ToString for primitives.
func ToString(v Value) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) && math.Abs(x) < 1e21 {
			return strconv.FormatFloat(x, 'f', -1, 64)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case nullValue:
		return "null"
	case Handle:
		return "[object Object]"
	default:
		return "undefined"
	}
}
