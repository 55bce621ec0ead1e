package quickjs

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"modernc.org/quickjs"
)

// errInvalidArgument is thrown into JS when an argument cannot be coerced
// to the host function's parameter type.
var errInvalidArgument = errors.New("TypeError: invalid argument")

var errorType = reflect.TypeFor[error]()

// Result kinds passed to the JS wrapper. The raw binding always returns
// [value, error]; the kind tells the wrapper how to unpack the value.
const (
	resultNone  = "none"
	resultBool  = "bool"
	resultValue = "value"
)

// hostFunc adapts fn to a shape the quickjs package can marshal in both
// directions. Arguments arrive as any and are coerced to fn's parameter
// kinds the way the V8 runtime coerces them: numbers cross between int and
// float64, missing arguments become zero values. Booleans cannot be
// returned by the quickjs package, so a bool result travels as 0 or 1.
func hostFunc(fn any) (raw func(args ...any) (any, error), kind string, arity int, err error) {
	v := reflect.ValueOf(fn)
	t := v.Type()
	if t.Kind() != reflect.Func {
		return nil, "", 0, fmt.Errorf("RegisterFunc: expected function, got %T", fn)
	}
	if t.IsVariadic() {
		return nil, "", 0, fmt.Errorf("RegisterFunc: variadic functions are not supported")
	}

	outs := t.NumOut()
	hasErr := outs > 0 && t.Out(outs-1) == errorType
	values := outs
	if hasErr {
		values--
	}
	switch {
	case values > 1:
		return nil, "", 0, fmt.Errorf("RegisterFunc: %s returns too many values", t)
	case values == 0:
		kind = resultNone
	case t.Out(0).Kind() == reflect.Bool:
		kind = resultBool
	default:
		kind = resultValue
	}

	raw = func(args ...any) (any, error) {
		in := make([]reflect.Value, t.NumIn())
		for i := range in {
			var arg any = quickjs.Undefined{}
			if i < len(args) {
				arg = args[i]
			}
			rv, err := coerce(arg, t.In(i))
			if err != nil {
				return nil, err
			}
			in[i] = rv
		}
		out := v.Call(in)
		if hasErr {
			if e := out[outs-1]; !e.IsNil() {
				return nil, e.Interface().(error)
			}
		}
		switch kind {
		case resultNone:
			return nil, nil
		case resultBool:
			if out[0].Bool() {
				return 1, nil
			}
			return 0, nil
		default:
			return out[0].Interface(), nil
		}
	}
	return raw, kind, t.NumIn(), nil
}

// coerce converts a value produced by the quickjs package (string, int,
// float64, bool, nil, Undefined, objects) to type t.
func coerce(v any, t reflect.Type) (reflect.Value, error) {
	switch t.Kind() {
	case reflect.String:
		s, ok := v.(string)
		if !ok {
			return reflect.Value{}, errInvalidArgument
		}
		return reflect.ValueOf(s).Convert(t), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		f, ok := number(v)
		if !ok {
			return reflect.Value{}, errInvalidArgument
		}
		return reflect.ValueOf(toInt(f)).Convert(t), nil
	case reflect.Float64, reflect.Float32:
		f, ok := number(v)
		if !ok {
			return reflect.Value{}, errInvalidArgument
		}
		return reflect.ValueOf(f).Convert(t), nil
	case reflect.Bool:
		return reflect.ValueOf(truthy(v)).Convert(t), nil
	case reflect.Interface:
		if v == nil {
			return reflect.Zero(t), nil
		}
		rv := reflect.ValueOf(v)
		if !rv.Type().AssignableTo(t) {
			return reflect.Value{}, errInvalidArgument
		}
		return rv, nil
	default:
		return reflect.Value{}, errInvalidArgument
	}
}

// number follows JS ToNumber for the primitive values a host function
// accepts. Strings and objects are rejected rather than parsed.
func number(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case float64:
		return x, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case nil:
		return 0, true
	case quickjs.Undefined:
		return math.NaN(), true
	}
	return 0, false
}

// toInt truncates f toward zero. NaN becomes 0 and infinities clamp.
func toInt(f float64) int {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt:
		return math.MaxInt
	case f <= math.MinInt:
		return math.MinInt
	}
	return int(f)
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case int:
		return x != 0
	case float64:
		return x != 0 && !math.IsNaN(x)
	case string:
		return x != ""
	case nil, quickjs.Undefined:
		return false
	}
	return true
}

// wrapperJS builds the global function scripts call. It passes exactly
// arity arguments with null mapped to undefined, unpacks [value, error]
// and maps the quickjs package's own conversion errors to a plain
// TypeError so host file names and binding names never reach the script.
func wrapperJS(name, rawName, kind string, arity int) string {
	params := make([]string, arity)
	args := make([]string, arity)
	for i := range params {
		params[i] = fmt.Sprintf("a%d", i)
		args[i] = fmt.Sprintf("a%d === null ? undefined : a%d", i, i)
	}
	return fmt.Sprintf(`(function() {
	var raw = globalThis[%q];
	var kind = %q;
	var ctors = { TypeError: TypeError, RangeError: RangeError, SyntaxError: SyntaxError, Error: Error };
	var internal = /^(calling |callback |cannot convert value|not enough arguments|too many arguments|internal error)/;
	var fail = function(msg) {
		msg = String(msg);
		var i = msg.indexOf(': ');
		var name = i > 0 ? msg.slice(0, i) : '';
		if (!/^[A-Z]\w*Error$/.test(name)) throw new ctors.Error(msg);
		if (ctors.hasOwnProperty(name)) throw new ctors[name](msg.slice(i + 2));
		var e = new ctors.Error(msg.slice(i + 2));
		e.name = name;
		throw e;
	};
	globalThis[%q] = function(%s) {
		var r;
		try {
			r = raw(%s);
		} catch (e) {
			if (e instanceof ctors.TypeError && internal.test(String(e.message))) throw new ctors.TypeError('invalid argument');
			throw e;
		}
		if (r[1] !== null && r[1] !== undefined) fail(r[1]);
		if (kind === 'bool') return r[0] !== 0;
		if (kind === 'none') return undefined;
		return r[0];
	};
	delete globalThis[%q];
})()`, rawName, kind, name, strings.Join(params, ", "), strings.Join(args, ", "), rawName)
}
