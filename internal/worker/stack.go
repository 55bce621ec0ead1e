package worker

import (
	"strconv"
	"strings"
	"unicode/utf16"
)

// position is a source location taken from one stack frame.
type position struct {
	line   int // physical line as reported by the engine
	column int // -1 when the engine reports none
}

// framePositions returns the location of every "at ..." frame in stack,
// innermost first. Frames look like "at f (<input>:12:5)",
// "at <anonymous>:12:5" or "at f (<input>:12)" depending on the engine.
func framePositions(stack string) []position {
	var out []position
	for _, raw := range strings.Split(stack, "\n") {
		s := strings.TrimSpace(raw)
		if !strings.HasPrefix(s, "at ") {
			continue
		}
		s = strings.TrimSuffix(s, ")")
		nums := trailingNumbers(s)
		switch len(nums) {
		case 0:
			continue
		case 1:
			out = append(out, position{line: nums[0], column: -1})
		default:
			out = append(out, position{line: nums[0], column: nums[1]})
		}
	}
	return out
}

// trailingNumbers parses up to two ":N" suffixes off s, in source order.
func trailingNumbers(s string) []int {
	var nums []int
	for range 2 {
		i := strings.LastIndexByte(s, ':')
		if i < 0 {
			break
		}
		n, err := strconv.Atoi(s[i+1:])
		if err != nil || n < 0 {
			break
		}
		nums = append([]int{n}, nums...)
		s = s[:i]
	}
	return nums
}

// lineMap converts physical engine lines into lines of the caller's source.
type lineMap struct {
	base  int // physical line of source line 1
	lines []string
}

// newLineMap measures base from the marker's stack: the marker throws on the
// first line after the preamble.
func newLineMap(marker, source string) lineMap {
	m := lineMap{base: preambleLines + 1, lines: strings.Split(source, "\n")}
	for _, p := range framePositions(marker) {
		if p.line > preambleLines {
			m.base = p.line
			break
		}
	}
	return m
}

// locate returns the innermost frame of stack that lies in the caller's
// source, translated to a 1-based source line. ok is false when no frame
// does.
func (m lineMap) locate(stack string) (line, column int, ok bool) {
	for _, p := range framePositions(stack) {
		if l := p.line - m.base + 1; l >= 1 && l <= len(m.lines) {
			return l, p.column, true
		}
	}
	return 0, -1, false
}

// excerpt returns source line n without its line terminator.
func (m lineMap) excerpt(n int) string {
	if n < 1 || n > len(m.lines) {
		return ""
	}
	return strings.TrimRight(m.lines[n-1], "\r")
}

// byteColumn converts a 0-based UTF-16 column within line to a byte offset.
func byteColumn(line string, col int) int {
	units := 0
	for i, r := range line {
		if units >= col {
			return i
		}
		units += utf16.RuneLen(r)
	}
	return len(line)
}
