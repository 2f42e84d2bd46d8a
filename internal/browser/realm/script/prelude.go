package script

// prelude opens the emitted script. It captures the builtins it needs before
// any page script runs and defines the helpers every recorded step uses.
// Each step runs inside step(), so a failure (an interface missing from this
// browser build, a non-configurable property) is swallowed and only skips
// that step.
const prelude = `(() => {
  'use strict';
  const O = Object, R = Reflect, P = Proxy, M = Map, WM = WeakMap, TE = TypeError;
  const defineProperty = O.defineProperty, getOwnPropertyDescriptor = O.getOwnPropertyDescriptor;
  const hop = O.prototype.hasOwnProperty;
  const hasOwn = (o, k) => R.apply(hop, o, [k]);
  const $ = [undefined];
  const masks = new WM();
  const redirects = new WM();
  const step = (fn) => { try { fn(); } catch (e) { /* skipped */ } };
  const proto = (name) => {
    const c = globalThis[name];
    if (typeof c !== 'function' || c.prototype === null || typeof c.prototype !== 'object') {
      throw new TE(name + ' is not available');
    }
    return c.prototype;
  };
  let hooked = false;
  const hook = () => {
    if (hooked) return;
    const native = Function.prototype.toString;
    const p = new P(native, {
      apply(target, self, args) {
        let o = self;
        for (let i = 0; i < 64 && typeof o === 'function'; i++) {
          if (masks.has(o)) return masks.get(o);
          if (!redirects.has(o)) break;
          o = redirects.get(o);
        }
        return R.apply(target, o, args);
      },
    });
    masks.set(p, 'function toString() { [native code] }');
    defineProperty(Function.prototype, 'toString', { value: p, writable: true, enumerable: false, configurable: true });
    hooked = true;
  };
  const trap = (obj, key, accessor, apply) => {
    const d = getOwnPropertyDescriptor(obj, key);
    const orig = d && (accessor ? d.get : d.value);
    if (typeof orig !== 'function') throw new TE(key + ' is not available');
    hook();
    const p = new P(orig, { apply });
    redirects.set(p, orig);
    if (accessor) d.get = p; else d.value = p;
    defineProperty(obj, key, d);
    return p;
  };
`

const epilogue = `})();
`
