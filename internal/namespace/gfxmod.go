package namespace

import (
	"encoding/json"
	"fmt"
	"image"

	"github.com/cryguy/sandbox/internal/core"
	"github.com/cryguy/sandbox/internal/gfx"
)

// xferGlobal is the transient global used to move pixel bytes across the
// engine boundary.
const xferGlobal = "__gfx_xfer"

const gfxJS = `
(function(host, output) {
	var handles = new WeakMap();
	var clampByte = function(v) { v = Math.round(Number(v)); return v < 0 ? 0 : v > 255 ? 255 : v; };

	var Color = function(r, g, b, a) {
		if (!(this instanceof Color)) return new Color(r, g, b, a);
		if (typeof r === 'string') {
			var packed = host.parseColor(r);
			this.r = packed >>> 24; this.g = (packed >>> 16) & 255; this.b = (packed >>> 8) & 255; this.a = packed & 255;
		} else if (Array.isArray(r) || r instanceof Color) {
			var src = Array.isArray(r) ? { r: r[0], g: r[1], b: r[2], a: r[3] } : r;
			this.r = clampByte(src.r); this.g = clampByte(src.g); this.b = clampByte(src.b);
			this.a = src.a === undefined ? 255 : clampByte(src.a);
		} else {
			this.r = clampByte(r); this.g = clampByte(g); this.b = clampByte(b);
			this.a = a === undefined ? 255 : clampByte(a);
		}
	};
	Color.prototype.packed = function() { return ((this.r << 24) >>> 0) + (this.g << 16) + (this.b << 8) + this.a; };
	Color.prototype.toArray = function() { return [this.r, this.g, this.b, this.a]; };
	Color.prototype.__repr__ = function() { return 'Color(' + this.toArray().join(', ') + ')'; };
	var pack = function(c) { return (c instanceof Color ? c : new Color(c)).packed(); };

	var Rect = function(x, y, w, h) {
		if (!(this instanceof Rect)) return new Rect(x, y, w, h);
		if (Array.isArray(x)) { h = x[3]; w = x[2]; y = x[1]; x = x[0]; }
		else if (x instanceof Rect) { h = x.h; w = x.w; y = x.y; x = x.x; }
		this.x = Math.trunc(x) || 0; this.y = Math.trunc(y) || 0;
		this.w = Math.trunc(w) || 0; this.h = Math.trunc(h) || 0;
	};
	Object.defineProperties(Rect.prototype, {
		left: { get: function() { return this.x; } },
		top: { get: function() { return this.y; } },
		right: { get: function() { return this.x + this.w; } },
		bottom: { get: function() { return this.y + this.h; } },
		width: { get: function() { return this.w; } },
		height: { get: function() { return this.h; } },
		centerx: { get: function() { return this.x + Math.trunc(this.w / 2); } },
		centery: { get: function() { return this.y + Math.trunc(this.h / 2); } },
		center: { get: function() { return [this.centerx, this.centery]; } },
		size: { get: function() { return [this.w, this.h]; } }
	});
	Rect.prototype.move = function(dx, dy) { return new Rect(this.x + dx, this.y + dy, this.w, this.h); };
	Rect.prototype.inflate = function(dx, dy) {
		return new Rect(this.x - Math.trunc(dx / 2), this.y - Math.trunc(dy / 2), this.w + dx, this.h + dy);
	};
	Rect.prototype.collidepoint = function(px, py) {
		if (Array.isArray(px)) { py = px[1]; px = px[0]; }
		return px >= this.x && px < this.right && py >= this.y && py < this.bottom;
	};
	Rect.prototype.colliderect = function(o) {
		o = new Rect(o);
		return this.x < o.right && o.x < this.right && this.y < o.bottom && o.y < this.bottom;
	};
	Rect.prototype.contains = function(o) {
		o = new Rect(o);
		return o.x >= this.x && o.y >= this.y && o.right <= this.right && o.bottom <= this.bottom;
	};
	Rect.prototype.clip = function(o) {
		o = new Rect(o);
		var x = Math.max(this.x, o.x), y = Math.max(this.y, o.y);
		var r = Math.min(this.right, o.right), b = Math.min(this.bottom, o.bottom);
		return r <= x || b <= y ? new Rect(x, y, 0, 0) : new Rect(x, y, r - x, b - y);
	};
	Rect.prototype.union = function(o) {
		o = new Rect(o);
		var x = Math.min(this.x, o.x), y = Math.min(this.y, o.y);
		return new Rect(x, y, Math.max(this.right, o.right) - x, Math.max(this.bottom, o.bottom) - y);
	};
	Rect.prototype.toArray = function() { return [this.x, this.y, this.w, this.h]; };
	Rect.prototype.__repr__ = function() { return 'Rect(' + this.toArray().join(', ') + ')'; };
	var rectArgs = function(r) { return r === undefined || r === null ? new Rect(0, 0, 0, 0) : new Rect(r); };

	var wrap = function(h, w, ht) {
		var s = Object.create(Surface.prototype);
		handles.set(s, h);
		Object.defineProperty(s, '_size', { value: [w, ht] });
		return Object.freeze(s);
	};
	var handleOf = function(s, what) {
		var h = handles.get(s);
		if (h === undefined) throw new TypeError((what || 'argument') + ' expects a gfx.Surface');
		return h;
	};

	var Surface = function(w, h) {
		if (Array.isArray(w)) { h = w[1]; w = w[0]; }
		return wrap(host.create(w | 0, h | 0), w | 0, h | 0);
	};
	Surface.prototype.width = function() { return this._size[0]; };
	Surface.prototype.height = function() { return this._size[1]; };
	Surface.prototype.size = function() { return this._size.slice(); };
	Surface.prototype.getRect = function() { return new Rect(0, 0, this._size[0], this._size[1]); };
	Surface.prototype.fill = function(color, rect) {
		if (rect === undefined || rect === null) host.fill(handleOf(this), pack(color), 0, 0, -1, -1);
		else { var r = new Rect(rect); host.fill(handleOf(this), pack(color), r.x, r.y, r.w, r.h); }
		return this;
	};
	Surface.prototype.getAt = function(x, y) {
		if (Array.isArray(x)) { y = x[1]; x = x[0]; }
		var p = host.get(handleOf(this), x | 0, y | 0);
		return new Color(p >>> 24, (p >>> 16) & 255, (p >>> 8) & 255, p & 255);
	};
	Surface.prototype.setAt = function(x, y, color) {
		if (Array.isArray(x)) { color = y; y = x[1]; x = x[0]; }
		host.set(handleOf(this), x | 0, y | 0, pack(color));
	};
	Surface.prototype.blit = function(src, x, y, area) {
		if (Array.isArray(x)) { area = y; y = x[1]; x = x[0]; }
		var a = rectArgs(area);
		host.blit(handleOf(this), handleOf(src, 'blit'), x | 0, y | 0, a.x, a.y, a.w, a.h);
		return this;
	};
	Surface.prototype.copy = function() {
		return wrap(host.copy(handleOf(this)), this._size[0], this._size[1]);
	};
	Surface.prototype.subsurface = function(rect) {
		var r = new Rect(rect).clip(this.getRect());
		return wrap(host.sub(handleOf(this), r.x, r.y, r.w, r.h), r.w, r.h);
	};
	Surface.prototype.toBytes = function() {
		host.toBytes(handleOf(this));
		var buf = globalThis.` + xferGlobal + `;
		delete globalThis.` + xferGlobal + `;
		return new Uint8Array(buf);
	};
	Surface.prototype.__repr__ = function() { return '<Surface(' + this._size.join('x') + ')>'; };
	Surface.fromBytes = function(bytes, w, h) {
		if (Array.isArray(w)) { h = w[1]; w = w[0]; }
		var view = bytes instanceof ArrayBuffer ? new Uint8Array(bytes) : new Uint8Array(bytes.buffer || bytes, bytes.byteOffset || 0, bytes.byteLength === undefined ? bytes.length : bytes.byteLength);
		var copy = new ArrayBuffer(view.length);
		new Uint8Array(copy).set(view);
		globalThis.` + xferGlobal + ` = copy;
		return wrap(host.fromBytes(w | 0, h | 0), w | 0, h | 0);
	};

	var points = function(pts) {
		return JSON.stringify(Array.prototype.map.call(pts, function(p) {
			return Array.isArray(p) ? [Number(p[0]), Number(p[1])] : [Number(p.x), Number(p.y)];
		}));
	};
	var shape = function(kind) {
		return function(surface, color) {
			var args = Array.prototype.slice.call(arguments, 2);
			var width = 0, payload;
			switch (kind) {
			case 'rect': case 'ellipse':
				var r = new Rect(args[0]); payload = [r.x, r.y, r.w, r.h]; width = args[1] || 0; break;
			case 'circle':
				var c = args[0]; payload = [Number(c[0]), Number(c[1]), Number(args[1])]; width = args[2] || 0; break;
			case 'line':
				payload = [Number(args[0][0]), Number(args[0][1]), Number(args[1][0]), Number(args[1][1])]; width = args[2] || 1; break;
			case 'lines':
				payload = { closed: !!args[0], points: JSON.parse(points(args[1])) }; width = args[2] || 1; break;
			case 'polygon':
				payload = JSON.parse(points(args[0])); width = args[1] || 0; break;
			case 'text':
				var at = args[1] || [0, 0]; payload = { text: String(args[0]), x: Number(at[0]), y: Number(at[1]) }; break;
			}
			host.draw(handleOf(surface, 'draw.' + kind), kind, pack(color), JSON.stringify(payload), Number(width));
			return surface;
		};
	};
	var draw = {};
	['rect', 'circle', 'ellipse', 'line', 'lines', 'polygon', 'text'].forEach(function(k) { draw[k] = shape(k); });

	var resized = function(fn) {
		return function(surface) {
			var r = JSON.parse(fn.apply(null, [handleOf(surface)].concat(Array.prototype.slice.call(arguments, 1))));
			return wrap(r[0], r[1], r[2]);
		};
	};
	var transform = {
		scale: function(surface, size, smooth) {
			return resized(host.scale)(surface, size[0] | 0, size[1] | 0, !!smooth);
		},
		smoothscale: function(surface, size) { return transform.scale(surface, size, true); },
		rotate: function(surface, degrees) { return resized(host.rotate)(surface, Number(degrees)); },
		flip: function(surface, x, y) { return resized(host.flip)(surface, !!x, !!y); }
	};

	Object.defineProperty(output, '__handleOf', { value: handleOf, writable: false });
	Object.freeze(output);
	Object.freeze(Surface.prototype);
	Object.freeze(Color.prototype);
	Object.freeze(Rect.prototype);
	globalThis.gfx = Object.freeze({
		Surface: Object.freeze(Surface),
		Color: Object.freeze(Color),
		Rect: Object.freeze(Rect),
		draw: Object.freeze(draw),
		transform: Object.freeze(transform),
		textSize: function(text) { return JSON.parse(host.textSize(String(text))); }
	});
})({
	create: __gfx_new, fill: __gfx_fill, get: __gfx_get, set: __gfx_set, blit: __gfx_blit,
	copy: __gfx_copy, sub: __gfx_sub, toBytes: __gfx_tobytes, fromBytes: __gfx_frombytes,
	draw: __gfx_draw, scale: __gfx_scale, rotate: __gfx_rotate, flip: __gfx_flip,
	parseColor: __gfx_color, textSize: __gfx_textsize
}, globalThis.output);
`

type lineArgs struct {
	Closed bool         `json:"closed"`
	Points [][2]float64 `json:"points"`
}

type textArgs struct {
	Text string  `json:"text"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

func toPoints(raw [][2]float64) []gfx.Point {
	pts := make([]gfx.Point, len(raw))
	for i, p := range raw {
		pts[i] = gfx.Point{X: p[0], Y: p[1]}
	}
	return pts
}

func (ns *Namespace) draw(h int, kind string, rgba int, payload string, width float64) (bool, error) {
	s, err := ns.surfaces.Get(h)
	if err != nil {
		return false, err
	}
	c := gfx.Unpack(uint32(rgba))
	stroke := gfx.Stroke(width)
	bad := func(err error) (bool, error) {
		return false, fmt.Errorf("TypeError: bad arguments to draw.%s: %v", kind, err)
	}
	switch kind {
	case "rect", "ellipse", "circle", "line":
		var v []float64
		if err := json.Unmarshal([]byte(payload), &v); err != nil {
			return bad(err)
		}
		switch {
		case kind == "rect" && len(v) == 4:
			s.DrawRect(c, v[0], v[1], v[2], v[3], stroke)
		case kind == "ellipse" && len(v) == 4:
			s.DrawEllipse(c, v[0], v[1], v[2], v[3], stroke)
		case kind == "circle" && len(v) == 3:
			s.DrawCircle(c, v[0], v[1], v[2], stroke)
		case kind == "line" && len(v) == 4:
			s.DrawLine(c, v[0], v[1], v[2], v[3], stroke)
		default:
			return bad(fmt.Errorf("wrong number of coordinates"))
		}
	case "lines":
		var a lineArgs
		if err := json.Unmarshal([]byte(payload), &a); err != nil {
			return bad(err)
		}
		if err := s.DrawLines(c, a.Closed, toPoints(a.Points), stroke); err != nil {
			return false, err
		}
	case "polygon":
		var raw [][2]float64
		if err := json.Unmarshal([]byte(payload), &raw); err != nil {
			return bad(err)
		}
		if err := s.DrawPolygon(c, toPoints(raw), stroke); err != nil {
			return false, err
		}
	case "text":
		var a textArgs
		if err := json.Unmarshal([]byte(payload), &a); err != nil {
			return bad(err)
		}
		s.DrawText(c, a.Text, a.X, a.Y)
	default:
		return false, fmt.Errorf("TypeError: unknown shape %q", kind)
	}
	return true, nil
}

// sized checks that a w×h result is allowed, builds and registers it, and
// reports its handle and size as a JSON triple.
func (ns *Namespace) sized(w, h int, build func() *gfx.Surface) (string, error) {
	if err := ns.surfaces.Check(w, h); err != nil {
		return "", err
	}
	dst := build()
	id := ns.surfaces.Add(dst)
	return fmt.Sprintf("[%d,%d,%d]", id, dst.Width(), dst.Height()), nil
}

func setupGfx(ns *Namespace, rt core.JSRuntime) error {
	reg := ns.surfaces
	fns := map[string]any{
		"__gfx_new": reg.New,
		"__gfx_fill": func(h, rgba, x, y, w, ht int) (bool, error) {
			s, err := reg.Get(h)
			if err != nil {
				return false, err
			}
			switch {
			case w < 0:
				s.Fill(gfx.Unpack(uint32(rgba)), image.Rectangle{})
			case w > 0 && ht > 0:
				s.Fill(gfx.Unpack(uint32(rgba)), image.Rect(x, y, x+w, y+ht))
			}
			return true, nil
		},
		"__gfx_get": func(h, x, y int) (int, error) {
			s, err := reg.Get(h)
			if err != nil {
				return 0, err
			}
			c, err := s.At(x, y)
			return int(gfx.Pack(c)), err
		},
		"__gfx_set": func(h, x, y, rgba int) (bool, error) {
			s, err := reg.Get(h)
			if err != nil {
				return false, err
			}
			s.Set(x, y, gfx.Unpack(uint32(rgba)))
			return true, nil
		},
		"__gfx_blit": func(dst, src, x, y, ax, ay, aw, ah int) (bool, error) {
			d, err := reg.Get(dst)
			if err != nil {
				return false, err
			}
			s, err := reg.Get(src)
			if err != nil {
				return false, err
			}
			d.Blit(s, x, y, image.Rect(ax, ay, ax+aw, ay+ah))
			return true, nil
		},
		"__gfx_copy": func(h int) (int, error) {
			s, err := reg.Get(h)
			if err != nil {
				return 0, err
			}
			return reg.Add(s.Clone()), nil
		},
		"__gfx_sub": func(h, x, y, w, ht int) (int, error) {
			s, err := reg.Get(h)
			if err != nil {
				return 0, err
			}
			if w <= 0 || ht <= 0 {
				return 0, fmt.Errorf("RangeError: subsurface rectangle outside surface area")
			}
			return reg.Add(s.SubSurface(image.Rect(x, y, x+w, y+ht))), nil
		},
		"__gfx_tobytes": func(h int) (bool, error) {
			s, err := reg.Get(h)
			if err != nil {
				return false, err
			}
			if ns.binary == nil {
				return false, fmt.Errorf("TypeError: byte access is not available")
			}
			return true, ns.binary.WriteBinaryToJS(xferGlobal, s.Bytes())
		},
		"__gfx_frombytes": func(w, h int) (int, error) {
			if ns.binary == nil {
				return 0, fmt.Errorf("TypeError: byte access is not available")
			}
			data, err := ns.binary.ReadBinaryFromJS(xferGlobal)
			if err != nil {
				return 0, err
			}
			return reg.FromBytes(data, w, h)
		},
		"__gfx_draw": ns.draw,
		"__gfx_scale": func(h, w, ht int, smooth bool) (string, error) {
			s, err := reg.Get(h)
			if err != nil {
				return "", err
			}
			return ns.sized(w, ht, func() *gfx.Surface { return s.Scale(w, ht, smooth) })
		},
		"__gfx_rotate": func(h int, degrees float64) (string, error) {
			s, err := reg.Get(h)
			if err != nil {
				return "", err
			}
			w, ht := s.RotatedSize(degrees)
			return ns.sized(max(w, 1), max(ht, 1), func() *gfx.Surface { return s.Rotate(degrees) })
		},
		"__gfx_flip": func(h int, x, y bool) (string, error) {
			s, err := reg.Get(h)
			if err != nil {
				return "", err
			}
			return ns.sized(s.Width(), s.Height(), func() *gfx.Surface { return s.Flip(x, y) })
		},
		"__gfx_color": func(name string) (int, error) {
			c, err := gfx.ParseColor(name)
			return int(gfx.Pack(c)), err
		},
		"__gfx_textsize": func(text string) string {
			w, h := gfx.MeasureText(text)
			return fmt.Sprintf("[%g,%g]", w, h)
		},
	}
	for _, name := range gfxHostNames {
		if err := ns.register(rt, name, fns[name]); err != nil {
			return err
		}
	}
	return rt.Eval(gfxJS)
}

// gfxHostNames fixes registration order.
var gfxHostNames = []string{
	"__gfx_new", "__gfx_fill", "__gfx_get", "__gfx_set", "__gfx_blit",
	"__gfx_copy", "__gfx_sub", "__gfx_tobytes", "__gfx_frombytes", "__gfx_draw",
	"__gfx_scale", "__gfx_rotate", "__gfx_flip", "__gfx_color", "__gfx_textsize",
}
