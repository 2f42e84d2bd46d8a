package memory

import (
	"sort"
	"strconv"

	"github.com/xkilldash9x/scalpel-mimic/internal/browser/realm"
)

// NativeFunc is the Go body of a stand-in built-in.
type NativeFunc func(this realm.Value, args []realm.Value) (realm.Value, error)

type property struct {
	value    realm.Value
	getter   *object
	accessor bool
	flags    realm.Flags
}

type function struct {
	name   string
	length int
	body   NativeFunc
}

type proxy struct {
	target *object
	trap   realm.Trap
	// redirect is the function whose source this proxy reports.
	redirect *object
}

// object is the plain-structure stand-in for a JavaScript object.
type object struct {
	handle realm.Handle
	proto  *object
	tag    string
	props  map[string]*property
	order  []string
	fn     *function
	proxy  *proxy
}

func newObject(h realm.Handle, proto *object) *object {
	return &object{handle: h, proto: proto, props: make(map[string]*property)}
}

// target unwraps proxies for operations with no trap of their own.
func (o *object) target() *object {
	for o.proxy != nil {
		o = o.proxy.target
	}
	return o
}

func (o *object) callable() bool {
	t := o.target()
	return t.fn != nil
}

func (o *object) own(key string) (*property, bool) {
	p, ok := o.target().props[key]
	return p, ok
}

func (o *object) set(key string, p *property) {
	t := o.target()
	if _, exists := t.props[key]; !exists {
		t.order = append(t.order, key)
	}
	t.props[key] = p
}

// keys returns own keys in ECMAScript OrdinaryOwnPropertyKeys order: array
// indices ascending, then the remaining strings in insertion order.
func (o *object) keys() []string {
	t := o.target()
	var indices []string
	var named []string
	for _, k := range t.order {
		if isArrayIndex(k) {
			indices = append(indices, k)
		} else {
			named = append(named, k)
		}
	}
	sort.Slice(indices, func(i, j int) bool {
		a, _ := strconv.ParseUint(indices[i], 10, 32)
		b, _ := strconv.ParseUint(indices[j], 10, 32)
		return a < b
	})
	return append(indices, named...)
}

func isArrayIndex(k string) bool {
	if k == "" || (len(k) > 1 && k[0] == '0') {
		return false
	}
	n, err := strconv.ParseUint(k, 10, 32)
	return err == nil && n < 4294967295
}
