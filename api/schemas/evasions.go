package schemas

import (
	"fmt"
	"sort"
)

// -- Navigator Emulation Schemas --

// MimeTypeRef places a mime type inside a plugin at a fixed index.
type MimeTypeRef struct {
	Type  string `json:"type" yaml:"type"`
	Index int    `json:"index" yaml:"index"`
}

// PluginRecord describes one entry of navigator.plugins.
type PluginRecord struct {
	Name        string        `json:"name" yaml:"name"`
	Description string        `json:"description" yaml:"description"`
	Filename    string        `json:"filename" yaml:"filename"`
	MimeTypes   []MimeTypeRef `json:"mimeTypes" yaml:"mimeTypes"`
}

// MimeTypeRecord describes one entry of navigator.mimeTypes.
type MimeTypeRecord struct {
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description" yaml:"description"`
	Suffixes    string `json:"suffixes" yaml:"suffixes"`
}

// AliasGroup lists mime type strings that denote the same underlying
// capability (e.g. application/x-nacl and application/x-pnacl).
type AliasGroup []string

// Dataset is the declarative input the plugin and mime type graph is built from.
// Order is significant everywhere: it is the enumeration order in the page and
// the tie-break for canonical alias selection.
type Dataset struct {
	Name      string           `json:"name,omitempty" yaml:"name,omitempty"`
	Plugins   []PluginRecord   `json:"plugins" yaml:"plugins"`
	MimeTypes []MimeTypeRecord `json:"mimeTypes" yaml:"mimeTypes"`
	Aliases   []AliasGroup     `json:"aliases,omitempty" yaml:"aliases,omitempty"`
}

// MimeType returns the record for a type string.
func (d *Dataset) MimeType(typ string) (MimeTypeRecord, bool) {
	for _, mt := range d.MimeTypes {
		if mt.Type == typ {
			return mt, true
		}
	}
	return MimeTypeRecord{}, false
}

// Lint reports references that the installer will have to skip. The
// installer tolerates every issue reported here.
func (d *Dataset) Lint() []string {
	var issues []string
	seen := make(map[string]bool, len(d.MimeTypes))
	for _, mt := range d.MimeTypes {
		if seen[mt.Type] {
			issues = append(issues, fmt.Sprintf("duplicate mime type %q", mt.Type))
		}
		seen[mt.Type] = true
	}
	names := make(map[string]bool, len(d.Plugins))
	for _, p := range d.Plugins {
		if names[p.Name] {
			issues = append(issues, fmt.Sprintf("duplicate plugin %q", p.Name))
		}
		names[p.Name] = true
		for _, ref := range p.MimeTypes {
			if _, ok := d.MimeType(ref.Type); !ok {
				issues = append(issues, fmt.Sprintf("plugin %q references unknown mime type %q", p.Name, ref.Type))
			}
			if ref.Index < 0 {
				issues = append(issues, fmt.Sprintf("plugin %q places %q at negative index %d", p.Name, ref.Type, ref.Index))
			}
		}
	}
	return issues
}

// KeyboardLayout maps KeyboardEvent.code values to the characters
// KeyboardLayoutMap.get should report for them.
type KeyboardLayout map[string]string

// Codes returns the configured codes in a stable order.
func (k KeyboardLayout) Codes() []string {
	codes := make([]string, 0, len(k))
	for code := range k {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
