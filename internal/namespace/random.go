package namespace

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/cryguy/sandbox/internal/core"
)

const randomJS = `
(function(float, intn, reseed, gauss) {
	var randint = function(a, b) {
		if (!Number.isInteger(a) || !Number.isInteger(b)) throw new TypeError('randint() expects integers');
		return intn(a, b);
	};
	var r = {
		random: function() { return float(); },
		uniform: function(a, b) { return a + (b - a) * float(); },
		randint: randint,
		randrange: function(start, stop, step) {
			if (stop === undefined) { stop = start; start = 0; }
			step = step === undefined ? 1 : step;
			if (step === 0) throw new RangeError('randrange() step must not be zero');
			var n = Math.ceil((stop - start) / step);
			if (n <= 0) throw new RangeError('empty range for randrange()');
			return start + step * randint(0, n - 1);
		},
		choice: function(xs) {
			if (!xs || xs.length === 0) throw new RangeError('cannot choose from an empty sequence');
			return xs[randint(0, xs.length - 1)];
		},
		shuffle: function(xs) {
			for (var i = xs.length - 1; i > 0; i--) {
				var j = randint(0, i), t = xs[i];
				xs[i] = xs[j]; xs[j] = t;
			}
		},
		sample: function(xs, k) {
			var pool = Array.from(xs);
			if (k < 0 || k > pool.length) throw new RangeError('sample larger than population or is negative');
			for (var i = 0; i < k; i++) {
				var j = randint(i, pool.length - 1), t = pool[i];
				pool[i] = pool[j]; pool[j] = t;
			}
			return pool.slice(0, k);
		},
		seed: function(s) { reseed(s === undefined ? NaN : Number(s)); },
		gauss: function(mu, sigma) {
			return gauss(mu === undefined ? 0 : mu, sigma === undefined ? 1 : sigma);
		}
	};
	globalThis.random = Object.freeze(r);
})(__rand_float, __rand_int, __rand_seed, __rand_gauss);
`

func setupRandom(ns *Namespace, rt core.JSRuntime) error {
	if err := ns.register(rt, "__rand_float", func() float64 {
		return ns.rng.Float64()
	}); err != nil {
		return err
	}
	if err := ns.register(rt, "__rand_int", func(lo, hi int) (int, error) {
		if hi < lo {
			return 0, fmt.Errorf("RangeError: empty range (%d, %d)", lo, hi)
		}
		return lo + ns.rng.IntN(hi-lo+1), nil
	}); err != nil {
		return err
	}
	if err := ns.register(rt, "__rand_seed", func(seed float64) bool {
		s := uint64(int64(seed))
		if math.IsNaN(seed) {
			s = rand.Uint64()
		}
		ns.rng = rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15))
		return true
	}); err != nil {
		return err
	}
	if err := ns.register(rt, "__rand_gauss", func(mu, sigma float64) float64 {
		return mu + sigma*ns.rng.NormFloat64()
	}); err != nil {
		return err
	}
	return rt.Eval(randomJS)
}
