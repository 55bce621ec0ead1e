package core

import "time"

// Request is one caller-submitted script plus its execution limits.
// Zero limits are replaced by the sandbox configuration.
type Request struct {
	ID            string        // optional; generated when empty
	Source        string        // script text
	Timeout       time.Duration // wall-clock limit
	MemoryCeiling uint64        // process memory ceiling in bytes
}

// Outcome is the single result of one Request. Exactly one of Success and
// Failure is non-nil.
type Outcome struct {
	RequestID string
	Success   *Success
	Failure   *Failure
}

// OK reports whether the script completed successfully.
func (o *Outcome) OK() bool { return o.Success != nil }

// Success carries everything a completed script produced.
type Success struct {
	Text     string
	Image    *Image // nil when the script set no image
	Duration time.Duration
}

// Image is an encoded image produced by the script.
type Image struct {
	Data        []byte
	ContentType string // "image/png" or "image/gif"
}

// Failure carries the fault and its user-facing report.
type Failure struct {
	Fault  *Fault
	Report Report
}

// Report is the presentation-ready rendering of a Fault.
type Report struct {
	Title    string
	Body     string
	Line     int       // 0 when not applicable
	Excerpt  string    // caret-marked source excerpt, may be empty
	Artifact *Artifact // set when Body was too large to inline
}

// Artifact is a downloadable attachment handed to the presentation layer.
type Artifact struct {
	Name        string
	ContentType string
	Data        []byte
}
