package namespace

import (
	"fmt"

	"github.com/cryguy/sandbox/internal/core"
)

const mathJS = `
(function() {
	var toInt = function(x, what) {
		if (typeof x === 'bigint') return x;
		if (typeof x !== 'number' || !Number.isInteger(x)) throw new TypeError(what + ' expects an integer');
		return x;
	};
	var big = function(x) { return typeof x === 'bigint'; };
	var m = {
		pi: Math.PI, e: Math.E, tau: 2 * Math.PI, inf: Infinity, nan: NaN,
		gcd: function() {
			var r = 0;
			for (var i = 0; i < arguments.length; i++) {
				var b = toInt(arguments[i], 'gcd');
				var a = r;
				if (big(a) !== big(b)) { a = BigInt(a); b = BigInt(b); }
				a = a < 0 ? -a : a; b = b < 0 ? -b : b;
				while (b) { var t = a % b; a = b; b = t; }
				r = a;
			}
			return r;
		},
		lcm: function() {
			var r = 1;
			for (var i = 0; i < arguments.length; i++) {
				var b = toInt(arguments[i], 'lcm'), a = r;
				if (big(a) !== big(b)) { a = BigInt(a); b = BigInt(b); }
				if (!a || !b) return big(a) ? 0n : 0;
				var g = m.gcd(a, b);
				r = (a < 0 ? -a : a) / g * (b < 0 ? -b : b);
			}
			return r;
		},
		factorial: function(n) {
			n = toInt(n, 'factorial');
			if (n < 0) throw new RangeError('factorial() not defined for negative values');
			if (big(n)) { var r = 1n; for (var i = 2n; i <= n; i++) r *= i; return r; }
			if (n > 170) return Infinity;
			var f = 1; for (var j = 2; j <= n; j++) f *= j; return f;
		},
		perm: function(n, k) {
			n = toInt(n, 'perm'); k = k === undefined ? n : toInt(k, 'perm');
			if (n < 0 || k < 0) throw new RangeError('perm() arguments must be non-negative');
			if (big(n) !== big(k)) { n = BigInt(n); k = BigInt(k); }
			if (k > n) return big(n) ? 0n : 0;
			var r = big(n) ? 1n : 1, one = big(n) ? 1n : 1;
			for (var i = n - k + one; i <= n; i++) r *= i;
			return r;
		},
		comb: function(n, k) {
			n = toInt(n, 'comb'); k = toInt(k, 'comb');
			if (n < 0 || k < 0) throw new RangeError('comb() arguments must be non-negative');
			if (big(n) !== big(k)) { n = BigInt(n); k = BigInt(k); }
			var zero = big(n) ? 0n : 0, one = big(n) ? 1n : 1;
			if (k > n) return zero;
			if (k > n - k) k = n - k;
			var r = one;
			for (var i = one; i <= k; i++) r = r * (n - k + i) / i;
			return r;
		},
		isqrt: function(n) {
			n = toInt(n, 'isqrt');
			if (n < 0) throw new RangeError('isqrt() argument must be non-negative');
			if (!big(n)) return Math.floor(Math.sqrt(n));
			if (n < 2n) return n;
			var x = n, y = (x + 1n) / 2n;
			while (y < x) { x = y; y = (x + n / x) / 2n; }
			return x;
		},
		isclose: function(a, b, opts) {
			opts = opts || {};
			var rel = opts.rel_tol === undefined ? 1e-9 : opts.rel_tol;
			var abs = opts.abs_tol === undefined ? 0 : opts.abs_tol;
			if (a === b) return true;
			if (!isFinite(a) || !isFinite(b)) return false;
			var d = Math.abs(a - b);
			return d <= Math.abs(rel * b) || d <= Math.abs(rel * a) || d <= abs;
		},
		degrees: function(x) { return x * 180 / Math.PI; },
		radians: function(x) { return x * Math.PI / 180; },
		hypot: function() { return Math.hypot.apply(Math, arguments); },
		fsum: function(xs) {
			var sum = 0, c = 0;
			for (var i = 0; i < xs.length; i++) {
				var x = xs[i], t = sum + x;
				c += Math.abs(sum) >= Math.abs(x) ? (sum - t) + x : (x - t) + sum;
				sum = t;
			}
			return sum + c;
		},
		prod: function(xs, start) {
			var r = start === undefined ? 1 : start;
			for (var i = 0; i < xs.length; i++) r *= xs[i];
			return r;
		},
		clamp: function(x, lo, hi) { return Math.min(Math.max(x, lo), hi); }
	};
	['sqrt', 'cbrt', 'exp', 'expm1', 'log', 'log2', 'log10', 'log1p', 'pow',
	 'sin', 'cos', 'tan', 'asin', 'acos', 'atan', 'atan2', 'sinh', 'cosh', 'tanh',
	 'asinh', 'acosh', 'atanh', 'floor', 'ceil', 'trunc', 'abs', 'sign'].forEach(function(k) {
		m[k] = Math[k];
	});
	m.fabs = Math.abs;
	m.isfinite = Number.isFinite;
	m.isnan = Number.isNaN;
	m.isinf = function(x) { return x === Infinity || x === -Infinity; };
	m.copysign = function(x, y) { return Math.abs(x) * (y < 0 || Object.is(y, -0) ? -1 : 1); };
	m.fmod = function(x, y) { return x % y; };
	globalThis.math = Object.freeze(m);
})();
`

func setupMath(_ *Namespace, rt core.JSRuntime) error {
	return rt.Eval(mathJS)
}

const stringJS = `
(function() {
	var lower = 'abcdefghijklmnopqrstuvwxyz', upper = lower.toUpperCase(), digits = '0123456789';
	var punctuation = '!"#$%&\'()*+,-./:;<=>?@[\\]^_` + "`" + `{|}~';
	var whitespace = ' \t\n\r\x0b\x0c';
	globalThis.string = Object.freeze({
		ascii_lowercase: lower,
		ascii_uppercase: upper,
		ascii_letters: lower + upper,
		digits: digits,
		hexdigits: digits + 'abcdefABCDEF',
		octdigits: '01234567',
		punctuation: punctuation,
		whitespace: whitespace,
		printable: digits + lower + upper + punctuation + whitespace,
		capwords: function(s, sep) {
			var parts = sep === undefined ? String(s).trim().split(/\s+/) : String(s).split(sep);
			return parts.map(function(w) {
				return w.charAt(0).toUpperCase() + w.slice(1).toLowerCase();
			}).join(sep === undefined ? ' ' : sep);
		}
	});
})();
`

func setupString(_ *Namespace, rt core.JSRuntime) error {
	return rt.Eval(stringJS)
}

// itertoolsJS builds eager versions of the usual iterator helpers. Every
// result is an array, and every array is checked against a size cap so a
// product or permutation cannot exhaust memory before the monitor notices.
const itertoolsJS = `
(function(limit) {
	var cap = function(n) {
		if (n > limit) throw new RangeError('itertools result exceeds ' + limit + ' items');
	};
	var list = function(it) {
		if (Array.isArray(it)) return it;
		if (typeof it === 'string') return Array.from(it);
		var out = [];
		for (var x of it) { out.push(x); cap(out.length); }
		return out;
	};
	var push = function(out, x) { out.push(x); cap(out.length); };
	var it = {
		range: function(start, stop, step) {
			if (stop === undefined) { stop = start; start = 0; }
			step = step === undefined ? 1 : step;
			if (step === 0) throw new RangeError('range() step must not be zero');
			var out = [];
			for (var i = start; step > 0 ? i < stop : i > stop; i += step) push(out, i);
			return out;
		},
		count: function(start, step, n) {
			if (n === undefined) throw new TypeError('count() needs a limit in this sandbox');
			var out = [];
			for (var i = 0; i < n; i++) push(out, start + i * (step === undefined ? 1 : step));
			return out;
		},
		cycle: function(xs, n) {
			xs = list(xs);
			if (n === undefined) throw new TypeError('cycle() needs a limit in this sandbox');
			var out = [];
			for (var i = 0; xs.length && i < n; i++) push(out, xs[i %% xs.length]);
			return out;
		},
		repeat: function(x, n) {
			if (n === undefined) throw new TypeError('repeat() needs a count in this sandbox');
			cap(n);
			var out = [];
			for (var i = 0; i < n; i++) out.push(x);
			return out;
		},
		chain: function() {
			var out = [];
			for (var i = 0; i < arguments.length; i++) list(arguments[i]).forEach(function(x) { push(out, x); });
			return out;
		},
		zip: function() {
			var lists = Array.prototype.map.call(arguments, list);
			var n = lists.length ? Math.min.apply(Math, lists.map(function(l) { return l.length; })) : 0;
			var out = [];
			for (var i = 0; i < n; i++) push(out, lists.map(function(l) { return l[i]; }));
			return out;
		},
		enumerate: function(xs, start) {
			start = start || 0;
			return list(xs).map(function(x, i) { return [i + start, x]; });
		},
		product: function() {
			var args = Array.prototype.slice.call(arguments), repeat = 1;
			if (args.length && typeof args[args.length - 1] === 'object' && !Array.isArray(args[args.length - 1]) &&
				args[args.length - 1] !== null && 'repeat' in args[args.length - 1]) {
				repeat = args.pop().repeat;
			}
			var pools = [];
			for (var r = 0; r < repeat; r++) args.forEach(function(a) { pools.push(list(a)); });
			var total = pools.reduce(function(n, p) { return n * p.length; }, 1);
			cap(total);
			var out = [[]];
			pools.forEach(function(pool) {
				var next = [];
				out.forEach(function(prefix) { pool.forEach(function(x) { next.push(prefix.concat([x])); }); });
				out = next;
			});
			return out;
		},
		permutations: function(xs, r) {
			xs = list(xs);
			r = r === undefined ? xs.length : r;
			var out = [];
			if (r > xs.length) return out;
			var used = new Array(xs.length).fill(false), cur = [];
			var rec = function() {
				if (cur.length === r) { push(out, cur.slice()); return; }
				for (var i = 0; i < xs.length; i++) {
					if (used[i]) continue;
					used[i] = true; cur.push(xs[i]);
					rec();
					cur.pop(); used[i] = false;
				}
			};
			rec();
			return out;
		},
		combinations: function(xs, r) {
			xs = list(xs);
			var out = [], cur = [];
			var rec = function(start) {
				if (cur.length === r) { push(out, cur.slice()); return; }
				for (var i = start; i < xs.length; i++) { cur.push(xs[i]); rec(i + 1); cur.pop(); }
			};
			if (r <= xs.length) rec(0);
			return out;
		},
		accumulate: function(xs, fn, initial) {
			xs = list(xs);
			fn = fn || function(a, b) { return a + b; };
			var out = [], acc;
			var i = 0;
			if (initial !== undefined) { acc = initial; push(out, acc); }
			else if (xs.length) { acc = xs[0]; push(out, acc); i = 1; }
			for (; i < xs.length; i++) { acc = fn(acc, xs[i]); push(out, acc); }
			return out;
		},
		groupby: function(xs, key) {
			xs = list(xs);
			key = key || function(x) { return x; };
			var out = [], last;
			xs.forEach(function(x, i) {
				var k = key(x);
				if (i === 0 || k !== last) { push(out, [k, []]); last = k; }
				out[out.length - 1][1].push(x);
			});
			return out;
		},
		islice: function(xs, start, stop, step) {
			if (stop === undefined) { stop = start; start = 0; }
			step = step || 1;
			xs = list(xs);
			var out = [];
			for (var i = start || 0; i < Math.min(stop === null ? xs.length : stop, xs.length); i += step) push(out, xs[i]);
			return out;
		},
		takewhile: function(pred, xs) {
			var out = [];
			xs = list(xs);
			for (var i = 0; i < xs.length && pred(xs[i]); i++) push(out, xs[i]);
			return out;
		},
		dropwhile: function(pred, xs) {
			xs = list(xs);
			var i = 0;
			while (i < xs.length && pred(xs[i])) i++;
			return xs.slice(i);
		}
	};
	globalThis.itertools = Object.freeze(it);
})(%d);
`

func setupItertools(ns *Namespace, rt core.JSRuntime) error {
	return rt.Eval(fmt.Sprintf(itertoolsJS, ns.opts.Limits.MaxIterItems))
}
