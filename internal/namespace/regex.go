package namespace

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/dlclark/regexp2"

	"github.com/cryguy/sandbox/internal/core"
)

// Flag values as scripts see them on the re module.
const (
	reIgnoreCase = 2
	reMultiline  = 8
	reDotAll     = 16
	reVerbose    = 64
)

type regexKey struct {
	pattern string
	flags   int
}

// namedBackref rewrites (?P=name) into the \k<name> form regexp2 speaks.
var namedBackref = regexp2.MustCompile(`\(\?P=(\w+)\)`, regexp2.None)

func translatePattern(p string) (string, error) {
	p = strings.ReplaceAll(p, "(?P<", "(?<")
	return namedBackref.Replace(p, `\k<$1>`, -1, -1)
}

func (ns *Namespace) compile(pattern string, flags int) (*regexp2.Regexp, error) {
	key := regexKey{pattern, flags}
	re, ok := ns.regexps[key]
	if !ok {
		expr, err := translatePattern(pattern)
		if err != nil {
			return nil, err
		}
		var opts regexp2.RegexOptions
		if flags&reIgnoreCase != 0 {
			opts |= regexp2.IgnoreCase
		}
		if flags&reMultiline != 0 {
			opts |= regexp2.Multiline
		}
		if flags&reDotAll != 0 {
			opts |= regexp2.Singleline
		}
		if flags&reVerbose != 0 {
			opts |= regexp2.IgnorePatternWhitespace
		}
		re, err = regexp2.Compile(expr, opts)
		if err != nil {
			return nil, fmt.Errorf("SyntaxError: invalid regular expression: %v", err)
		}
		ns.regexps[key] = re
	}
	re.MatchTimeout = max(time.Until(ns.opts.Deadline), time.Millisecond)
	return re, nil
}

// regexResult is the JSON shape handed to the script side. Spans are in
// UTF-16 code units so they index JS strings directly; unmatched groups
// are null.
type regexResult struct {
	Names   map[string]int `json:"names"`
	Matches [][]*[2]int    `json:"matches"`
}

// utf16Index maps rune offsets of s to UTF-16 offsets.
func utf16Index(runes []rune) []int {
	idx := make([]int, len(runes)+1)
	for i, r := range runes {
		idx[i+1] = idx[i] + utf16.RuneLen(r)
	}
	return idx
}

func (ns *Namespace) find(pattern string, flags int, input string, all bool) (string, error) {
	re, err := ns.compile(pattern, flags)
	if err != nil {
		return "", err
	}
	runes := []rune(input)
	idx := utf16Index(runes)

	res := regexResult{Names: map[string]int{}, Matches: [][]*[2]int{}}
	for _, name := range re.GetGroupNames() {
		if n := re.GroupNumberFromName(name); n > 0 && name != fmt.Sprint(n) {
			res.Names[name] = n
		}
	}

	m, err := re.FindRunesMatch(runes)
	for ; m != nil && err == nil; m, err = re.FindNextMatch(m) {
		groups := m.Groups()
		spans := make([]*[2]int, len(groups))
		for i, g := range groups {
			if i > 0 && len(g.Captures) == 0 {
				continue
			}
			spans[i] = &[2]int{idx[g.Index], idx[g.Index+g.Length]}
		}
		res.Matches = append(res.Matches, spans)
		if !all {
			break
		}
	}
	if err != nil {
		if strings.Contains(err.Error(), "timeout") {
			return "", errors.New("RangeError: regular expression took too long")
		}
		return "", err
	}

	out, err := json.Marshal(res)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

const regexJS = `
(function(find, I, M, S, X) {
	var Match = function(string, spans, names, pattern) {
		this.string = string;
		this.re = pattern;
		this._spans = spans;
		this._names = names;
		this.lastindex = null;
		for (var i = spans.length - 1; i > 0; i--) if (spans[i]) { this.lastindex = i; break; }
	};
	Match.prototype._index = function(g) {
		if (g === undefined) return 0;
		if (typeof g === 'string') {
			if (!(g in this._names)) throw new RangeError('no such group: ' + g);
			return this._names[g];
		}
		if (g < 0 || g >= this._spans.length) throw new RangeError('no such group: ' + g);
		return g;
	};
	Match.prototype.group = function() {
		if (arguments.length > 1) {
			var self = this;
			return Array.prototype.map.call(arguments, function(g) { return self.group(g); });
		}
		var s = this._spans[this._index(arguments[0])];
		return s ? this.string.slice(s[0], s[1]) : null;
	};
	Match.prototype.groups = function(dflt) {
		var out = [];
		for (var i = 1; i < this._spans.length; i++) {
			var g = this.group(i);
			out.push(g === null && dflt !== undefined ? dflt : g);
		}
		return out;
	};
	Match.prototype.groupdict = function(dflt) {
		var out = {};
		for (var k in this._names) {
			var g = this.group(this._names[k]);
			out[k] = g === null && dflt !== undefined ? dflt : g;
		}
		return out;
	};
	Match.prototype.start = function(g) { var s = this._spans[this._index(g)]; return s ? s[0] : -1; };
	Match.prototype.end = function(g) { var s = this._spans[this._index(g)]; return s ? s[1] : -1; };
	Match.prototype.span = function(g) { return [this.start(g), this.end(g)]; };
	Match.prototype.__repr__ = function() {
		return '<re.Match span=(' + this.span().join(', ') + '), match=' + JSON.stringify(this.group()) + '>';
	};

	var run = function(pattern, flags, string, all) {
		string = String(string);
		var r = JSON.parse(find(String(pattern), flags | 0, string, all));
		return r.matches.map(function(spans) { return new Match(string, spans, r.names, pattern); });
	};
	var first = function(pattern, flags, string) {
		var ms = run(pattern, flags, string, false);
		return ms.length ? ms[0] : null;
	};
	var expand = function(m, repl) {
		return repl.replace(/\\(?:g<(\w+)>|(\d{1,2})|([\\nrt]))/g, function(all, name, num, esc) {
			if (esc) return esc === 'n' ? '\n' : esc === 'r' ? '\r' : esc === 't' ? '\t' : '\\';
			var v = m.group(name !== undefined ? (/^\d+$/.test(name) ? Number(name) : name) : Number(num));
			return v === null ? '' : v;
		});
	};

	var re = {
		I: I, IGNORECASE: I, M: M, MULTILINE: M, S: S, DOTALL: S, X: X, VERBOSE: X,
		search: function(p, s, flags) { return first(p, flags, s); },
		match: function(p, s, flags) {
			var m = first(p, flags, s);
			return m && m.start() === 0 ? m : null;
		},
		fullmatch: function(p, s, flags) {
			return first('\\A(?:' + p + ')\\z', flags, s);
		},
		finditer: function(p, s, flags) { return run(p, flags, s, true); },
		findall: function(p, s, flags) {
			return run(p, flags, s, true).map(function(m) {
				var n = m._spans.length - 1;
				if (n === 0) return m.group();
				if (n === 1) return m.group(1) === null ? '' : m.group(1);
				return m.groups('');
			});
		},
		sub: function(p, repl, s, count, flags) {
			s = String(s);
			var ms = run(p, flags, s, true);
			if (count > 0) ms = ms.slice(0, count);
			var out = '', last = 0;
			ms.forEach(function(m) {
				out += s.slice(last, m.start());
				out += typeof repl === 'function' ? String(repl(m)) : expand(m, String(repl));
				last = m.end();
			});
			return out + s.slice(last);
		},
		split: function(p, s, maxsplit, flags) {
			s = String(s);
			var ms = run(p, flags, s, true);
			if (maxsplit > 0) ms = ms.slice(0, maxsplit);
			var out = [], last = 0;
			ms.forEach(function(m) {
				out.push(s.slice(last, m.start()));
				for (var i = 1; i < m._spans.length; i++) out.push(m.group(i));
				last = m.end();
			});
			out.push(s.slice(last));
			return out;
		},
		escape: function(s) {
			return String(s).replace(/[.*+?^${}()|[\]\\\-#&~\s]/g, '\\$&');
		}
	};
	re.compile = function(p, flags) {
		return Object.freeze({
			pattern: p, flags: flags | 0,
			search: function(s) { return re.search(p, s, flags); },
			match: function(s) { return re.match(p, s, flags); },
			fullmatch: function(s) { return re.fullmatch(p, s, flags); },
			finditer: function(s) { return re.finditer(p, s, flags); },
			findall: function(s) { return re.findall(p, s, flags); },
			sub: function(repl, s, count) { return re.sub(p, repl, s, count, flags); },
			split: function(s, maxsplit) { return re.split(p, s, maxsplit, flags); }
		});
	};
	globalThis.re = Object.freeze(re);
})(__re_find, %d, %d, %d, %d);
`

func setupRegex(ns *Namespace, rt core.JSRuntime) error {
	if err := ns.register(rt, "__re_find", ns.find); err != nil {
		return err
	}
	return rt.Eval(fmt.Sprintf(regexJS, reIgnoreCase, reMultiline, reDotAll, reVerbose))
}
