package script

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xkilldash9x/scalpel-mimic/internal/browser/realm"
)

// applyHandler renders trap as the source of a Proxy apply function. Table
// data is materialized once, when the step runs, and captured by the closure.
func (r *Realm) applyHandler(t realm.Trap) (string, error) {
	switch t.Kind {
	case realm.TrapReturn:
		v, err := literal(t.Value)
		if err != nil {
			return "", err
		}
		if h, ok := realm.AsHandle(t.Value); ok {
			// An object that failed to build leaves the native getter in place.
			return fmt.Sprintf("((v) => { if (v === undefined) throw new TE(%s); return () => v; })(%s)",
				quote(h.String()+" is unavailable"), v), nil
		}
		return fmt.Sprintf("((v) => () => v)(%s)", v), nil

	case realm.TrapOverride:
		keys := make([]string, 0, len(t.Overrides))
		for k := range t.Overrides {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, quote(k)+": "+quote(t.Overrides[k]))
		}
		return fmt.Sprintf(`((ov) => (t, self, args) => {
    if (args.length > 0 && hasOwn(ov, String(args[0]))) return ov[String(args[0])];
    return R.apply(t, self, args);
  })(O.assign(O.create(null), { %s }))`, strings.Join(pairs, ", ")), nil

	case realm.TrapItem:
		tables, err := r.itemTables(t.Tables)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(`((tbl) => (t, self, args) => {
    const e = tbl.get(self);
    if (e === undefined) return R.apply(t, self, args);
    if (args.length === 0) throw new TE(%s);
    const v = e[Number(args[0]) >>> 0];
    return v === undefined ? null : v;
  })(new M([%s].filter((row) => row[0] !== undefined)))`, quote(t.ArityMessage()), tables), nil

	case realm.TrapNamedItem:
		tables, err := r.namedTables(t.Tables)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(`((tbl) => (t, self, args) => {
    const e = tbl.get(self);
    if (e === undefined) return R.apply(t, self, args);
    if (args.length === 0) throw new TE(%s);
    const v = e.get(String(args[0]));
    return v === undefined ? null : v;
  })(new M([%s].filter((row) => row[0] !== undefined)))`, quote(t.ArityMessage()), tables), nil

	default:
		return "(t, self, args) => R.apply(t, self, args)", nil
	}
}

func (r *Realm) itemTables(tables []realm.Table) (string, error) {
	rows := make([]string, 0, len(tables))
	for _, tbl := range tables {
		if err := r.check(tbl.Owner); err != nil {
			return "", err
		}
		entries := make([]string, len(tbl.Entries))
		for i, h := range tbl.Entries {
			if h.Valid() {
				entries[i] = ref(h)
			} else {
				entries[i] = "null"
			}
		}
		rows = append(rows, fmt.Sprintf("[%s, [%s]]", ref(tbl.Owner), strings.Join(entries, ", ")))
	}
	return strings.Join(rows, ", "), nil
}

func (r *Realm) namedTables(tables []realm.Table) (string, error) {
	rows := make([]string, 0, len(tables))
	for _, tbl := range tables {
		if err := r.check(tbl.Owner); err != nil {
			return "", err
		}
		var pairs []string
		seen := make(map[string]bool, len(tbl.Keys))
		for i, k := range tbl.Keys {
			if i < len(tbl.Entries) && tbl.Entries[i].Valid() && !seen[k] {
				seen[k] = true
				pairs = append(pairs, fmt.Sprintf("[%s, %s]", quote(k), ref(tbl.Entries[i])))
			}
		}
		rows = append(rows, fmt.Sprintf("[%s, new M([%s])]", ref(tbl.Owner), strings.Join(pairs, ", ")))
	}
	return strings.Join(rows, ", "), nil
}
