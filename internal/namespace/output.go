package namespace

import (
	"fmt"
	"strings"
	"time"

	"github.com/cryguy/sandbox/internal/core"
	"github.com/cryguy/sandbox/internal/gfx"
)

// maxFrames caps output.addFrame calls per run.
const maxFrames = 500

// Output collects what a script produces: text from print/console and at
// most one image, either a surface assigned to output.image or the frames
// passed to output.addFrame.
type Output struct {
	text     strings.Builder
	max      int
	surfaces *gfx.Registry
	image    *gfx.Surface
	frames   []gfx.Frame
}

func newOutput(maxBytes int, surfaces *gfx.Registry) *Output {
	return &Output{max: maxBytes, surfaces: surfaces}
}

// Write appends s, failing once the run's text cap would be exceeded.
func (o *Output) Write(s string) error {
	if o.max > 0 && o.text.Len()+len(s) > o.max {
		return fmt.Errorf("RangeError: output exceeds %d bytes", o.max)
	}
	o.text.WriteString(s)
	return nil
}

// Text returns everything written so far.
func (o *Output) Text() string { return o.text.String() }

// SetImage selects the surface encoded as the run's image. The surface is
// read when the run ends, so later drawing shows up.
func (o *Output) SetImage(handle int) error {
	s, err := o.surfaces.Get(handle)
	if err != nil {
		return err
	}
	o.image = s
	return nil
}

// AddFrame snapshots a surface as the next animation frame.
func (o *Output) AddFrame(handle, delayMS int) error {
	if len(o.frames) >= maxFrames {
		return fmt.Errorf("RangeError: more than %d frames", maxFrames)
	}
	s, err := o.surfaces.Get(handle)
	if err != nil {
		return err
	}
	o.frames = append(o.frames, gfx.Frame{Surface: s.Clone(), DelayMS: delayMS})
	return nil
}

// Image encodes the run's image: GIF when frames were added, otherwise PNG
// of output.image, otherwise nil.
func (o *Output) Image() (*core.Image, error) {
	switch {
	case len(o.frames) > 0:
		data, err := gfx.EncodeGIF(o.frames)
		if err != nil {
			return nil, err
		}
		return &core.Image{Data: data, ContentType: gfx.ContentTypeGIF}, nil
	case o.image != nil:
		data, err := gfx.EncodePNG(o.image)
		if err != nil {
			return nil, err
		}
		return &core.Image{Data: data, ContentType: gfx.ContentTypePNG}, nil
	}
	return nil, nil
}

// inspectJS renders values for print/console the way a REPL would: strings
// bare at top level, everything else as a compact literal.
const inspectJS = `
function inspect(v, depth, seen) {
	var t = typeof v;
	if (v === null) return 'null';
	if (t === 'undefined') return 'undefined';
	if (t === 'string') return depth === 0 ? v : JSON.stringify(v);
	if (t === 'number' || t === 'boolean' || t === 'symbol') return String(v);
	if (t === 'bigint') return String(v) + 'n';
	if (t === 'function') return '[Function' + (v.name ? ': ' + v.name : ' (anonymous)') + ']';
	if (v instanceof Error) return v.name + ': ' + v.message;
	if (v instanceof Date) return isNaN(v) ? 'Invalid Date' : v.toISOString();
	if (v instanceof RegExp) return String(v);
	if (typeof v.__repr__ === 'function') return String(v.__repr__());
	if (seen.indexOf(v) >= 0) return '[Circular]';
	if (depth > 4) return Array.isArray(v) ? '[Array]' : '[Object]';
	seen.push(v);
	var parts = [], out;
	try {
		if (Array.isArray(v) || ArrayBuffer.isView(v)) {
			var n = Math.min(v.length, 100);
			for (var i = 0; i < n; i++) parts.push(inspect(v[i], depth + 1, seen));
			if (v.length > n) parts.push('... ' + (v.length - n) + ' more items');
			out = '[' + parts.join(', ') + ']';
		} else if (v instanceof Map) {
			v.forEach(function(val, key) {
				parts.push(inspect(key, depth + 1, seen) + ' => ' + inspect(val, depth + 1, seen));
			});
			out = 'Map(' + v.size + ') {' + (parts.length ? ' ' + parts.join(', ') + ' ' : '') + '}';
		} else if (v instanceof Set) {
			v.forEach(function(val) { parts.push(inspect(val, depth + 1, seen)); });
			out = 'Set(' + v.size + ') {' + (parts.length ? ' ' + parts.join(', ') + ' ' : '') + '}';
		} else if (v instanceof Promise) {
			out = 'Promise {}';
		} else {
			var keys = Object.keys(v);
			for (var k = 0; k < keys.length; k++) {
				var key = /^[A-Za-z_$][\w$]*$/.test(keys[k]) ? keys[k] : JSON.stringify(keys[k]);
				parts.push(key + ': ' + inspect(v[keys[k]], depth + 1, seen));
			}
			out = parts.length ? '{ ' + parts.join(', ') + ' }' : '{}';
		}
	} finally {
		seen.pop();
	}
	return out;
}
function render(args) {
	var parts = [];
	for (var i = 0; i < args.length; i++) parts.push(inspect(args[i], 0, []));
	return parts.join(' ');
}
`

const outputJS = `
(function() {
	var write = __out_write, text = __out_text, setImage = __out_image, addFrame = __out_frame, now = __out_now;
	` + inspectJS + `
	var print = function() { write(render(arguments) + '\n'); };
	var depth = 0, timers = new Map(), counters = new Map();
	var line = function(args) {
		var s = render(args);
		if (depth > 0) {
			var pad = '  '.repeat(depth);
			s = pad + s.split('\n').join('\n' + pad);
		}
		write(s + '\n');
	};
	var con = {};
	['log', 'info', 'warn', 'error', 'debug', 'trace'].forEach(function(lvl) {
		con[lvl] = function() { line(arguments); };
	});
	con.dir = function(v) { line([v]); };
	con.table = function(v) { line([JSON.stringify(v, null, 2)]); };
	con.assert = function(cond) {
		if (cond) return;
		var args = Array.prototype.slice.call(arguments, 1);
		line(['Assertion failed' + (args.length ? ':' : '')].concat(args));
	};
	con.count = function(label) {
		var l = label === undefined ? 'default' : String(label);
		var n = (counters.get(l) || 0) + 1;
		counters.set(l, n);
		line([l + ': ' + n]);
	};
	con.countReset = function(label) { counters.delete(label === undefined ? 'default' : String(label)); };
	con.group = function() {
		if (arguments.length) line(arguments);
		depth++;
	};
	con.groupEnd = function() { if (depth > 0) depth--; };
	var elapsed = function(label, remove) {
		var l = label === undefined ? 'default' : String(label);
		if (!timers.has(l)) { line(["Timer '" + l + "' does not exist"]); return null; }
		var ms = now() - timers.get(l);
		if (remove) timers.delete(l);
		return l + ': ' + ms.toFixed(3) + 'ms';
	};
	con.time = function(label) { timers.set(label === undefined ? 'default' : String(label), now()); };
	con.timeEnd = function(label) { var s = elapsed(label, true); if (s) line([s]); };
	con.timeLog = function(label) {
		var s = elapsed(label, false);
		if (s) line([s].concat(Array.prototype.slice.call(arguments, 1)));
	};
	// Replaced by the gfx module, which owns surface handles.
	var handleOf = function(surface, what) {
		throw new TypeError(what + ' expects a gfx.Surface');
	};
	var output = {};
	Object.defineProperty(output, 'text', { get: function() { return text(); }, enumerable: true });
	Object.defineProperty(output, 'image', {
		set: function(surface) { setImage(output.__handleOf(surface, 'output.image')); },
		get: function() { return undefined; },
		enumerable: true
	});
	output.addFrame = function(surface, delayMs) {
		addFrame(output.__handleOf(surface, 'output.addFrame'), delayMs === undefined ? 100 : Number(delayMs));
	};
	Object.defineProperty(output, '__handleOf', { value: handleOf, writable: true });
	globalThis.print = print;
	globalThis.console = Object.freeze(con);
	globalThis.output = output;
})();
`

func setupOutput(ns *Namespace, rt core.JSRuntime) error {
	o := ns.out
	if err := ns.register(rt, "__out_write", func(s string) (bool, error) {
		return true, o.Write(s)
	}); err != nil {
		return err
	}
	if err := ns.register(rt, "__out_now", func() float64 {
		return float64(time.Since(ns.opts.Start)) / float64(time.Millisecond)
	}); err != nil {
		return err
	}
	if err := ns.register(rt, "__out_text", func() string {
		return o.Text()
	}); err != nil {
		return err
	}
	if err := ns.register(rt, "__out_image", func(h int) (bool, error) {
		return true, o.SetImage(h)
	}); err != nil {
		return err
	}
	if err := ns.register(rt, "__out_frame", func(h, delayMS int) (bool, error) {
		return true, o.AddFrame(h, delayMS)
	}); err != nil {
		return err
	}
	return rt.Eval(outputJS)
}
