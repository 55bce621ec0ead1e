package namespace

import (
	"encoding/base64"
	"errors"
	"strings"

	"github.com/cryguy/sandbox/internal/core"
)

var errInvalidBase64 = errors.New("InvalidCharacterError: the string to be decoded is not correctly encoded")

// latin1 maps each byte of b to the code point of the same value.
func latin1(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for _, c := range b {
		sb.WriteRune(rune(c))
	}
	return sb.String()
}

func btoa(s string) (string, error) {
	b := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xff {
			return "", errors.New("InvalidCharacterError: the string to be encoded contains characters outside of the Latin1 range")
		}
		b = append(b, byte(r))
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// atob decodes forgiving base64: ASCII whitespace is ignored and padding
// is optional.
func atob(s string) (string, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\f', '\r':
			return -1
		}
		return r
	}, s)
	if len(s)%4 == 0 {
		s = strings.TrimSuffix(s, "=")
		s = strings.TrimSuffix(s, "=")
	}
	if len(s)%4 == 1 || strings.Contains(s, "=") {
		return "", errInvalidBase64
	}
	b, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return "", errInvalidBase64
	}
	return latin1(b), nil
}

const encodingJS = `
(function(encode, decode) {
	globalThis.btoa = function(data) {
		if (arguments.length < 1) throw new TypeError('btoa requires 1 argument');
		return encode(String(data));
	};
	globalThis.atob = function(data) {
		if (arguments.length < 1) throw new TypeError('atob requires 1 argument');
		return decode(String(data));
	};
})(__b64_encode, __b64_decode);
`

func setupEncoding(ns *Namespace, rt core.JSRuntime) error {
	if err := ns.register(rt, "__b64_encode", btoa); err != nil {
		return err
	}
	if err := ns.register(rt, "__b64_decode", atob); err != nil {
		return err
	}
	return rt.Eval(encodingJS)
}
