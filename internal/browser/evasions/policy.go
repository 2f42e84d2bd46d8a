package evasions

import (
	"strconv"

	"github.com/xkilldash9x/scalpel-mimic/internal/browser/realm"
)

// Kind is the genuine browser type a fabricated object mimics.
type Kind int

const (
	KindPluginArray Kind = iota
	KindMimeTypeArray
	KindPlugin
	KindMimeType
)

// Interface returns the WebIDL interface name whose prototype the object
// gets, which also fixes its class tag.
func (k Kind) Interface() string {
	switch k {
	case KindPluginArray:
		return "PluginArray"
	case KindMimeTypeArray:
		return "MimeTypeArray"
	case KindPlugin:
		return "Plugin"
	case KindMimeType:
		return "MimeType"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

func (k Kind) String() string { return k.Interface() }

// Keys with fixed meaning on fabricated objects.
const (
	KeyEnabledPlugin = "enabledPlugin"
	KeyLength        = "length"
)

// recordFields are the attributes each kind exposes besides its entries.
var recordFields = map[Kind][]string{
	KindPluginArray:   {KeyLength},
	KindMimeTypeArray: {KeyLength},
	KindPlugin:        {"name", "filename", "description", KeyLength},
	KindMimeType:      {"type", "suffixes", "description", KeyEnabledPlugin},
}

// collectionMethods are prototype methods a natural key must not shadow.
var collectionMethods = map[Kind][]string{
	KindPluginArray:   {"item", "namedItem", "refresh"},
	KindMimeTypeArray: {"item", "namedItem"},
	KindPlugin:        {"item", "namedItem"},
}

var (
	entryFlags  = realm.Flags{Enumerable: true, Writable: false, Configurable: true}
	hiddenFlags = realm.Flags{Enumerable: false, Writable: false, Configurable: true}
)

// Policy returns the attribute flags for key on an object of kind. Indices
// and natural keys are enumerable and read-only. The enabledPlugin backlink,
// length and the record attributes are hidden from enumeration so that
// JSON.stringify and Object.keys see what they see on a genuine object.
// Everything stays configurable, as it is in Chrome.
func Policy(kind Kind, key string) realm.Flags {
	for _, f := range recordFields[kind] {
		if f == key {
			return hiddenFlags
		}
	}
	return entryFlags
}

// reserved reports whether key cannot be used as a natural key on kind.
func reserved(kind Kind, key string) bool {
	if key == "" || isIndex(key) {
		return true
	}
	for _, f := range recordFields[kind] {
		if f == key {
			return true
		}
	}
	for _, m := range collectionMethods[kind] {
		if m == key {
			return true
		}
	}
	return false
}

func isIndex(k string) bool {
	if k == "" || (len(k) > 1 && k[0] == '0') {
		return false
	}
	n, err := strconv.ParseUint(k, 10, 32)
	return err == nil && n < 4294967295
}
