package trace

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"

	"github.com/fozzylabs/fozzy/internal/decision"
	"github.com/fozzylabs/fozzy/internal/errs"
)

// PrettyEnv opts the trace encoding into pretty mode process-wide.
const PrettyEnv = "FOZZY_TRACE_PRETTY"

// PrettyFromEnv reports whether the environment requests pretty traces.
func PrettyFromEnv() bool {
	return os.Getenv(PrettyEnv) == "1"
}

// body is the wire shape of everything after the header line.
type body struct {
	Scenario  string              `json:"scenario,omitempty"`
	Decisions []decision.Decision `json:"decisions"`
	Events    []Event             `json:"events"`
	Summary   Summary             `json:"summary"`
}

// Encode writes the trace: a single header line, then the payload.
// Compact is the default; pretty indents the payload only — the header
// stays one line so readers can always split on the first newline.
func Encode(w io.Writer, f *File, pretty bool) error {
	header, err := json.Marshal(f.Header)
	if err != nil {
		return errs.Newf(errs.KindInternal, "trace: encode header: %v", err)
	}
	b := body{
		Scenario:  f.Scenario,
		Decisions: f.Decisions,
		Events:    f.Events,
		Summary:   f.Summary,
	}
	if b.Decisions == nil {
		b.Decisions = []decision.Decision{}
	}
	if b.Events == nil {
		b.Events = []Event{}
	}
	var payload []byte
	if pretty {
		payload, err = json.MarshalIndent(b, "", "  ")
	} else {
		payload, err = json.Marshal(b)
	}
	if err != nil {
		return errs.Newf(errs.KindInternal, "trace: encode payload: %v", err)
	}
	if _, err := w.Write(append(header, '\n')); err != nil {
		return errs.Newf(errs.KindInternal, "trace: write: %v", err)
	}
	if _, err := w.Write(append(payload, '\n')); err != nil {
		return errs.Newf(errs.KindInternal, "trace: write: %v", err)
	}
	return nil
}

// EncodeBytes renders the trace to a byte slice.
func EncodeBytes(f *File, pretty bool) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, f, pretty); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses a trace from r. Only structural problems are reported
// here; integrity and version checks live in Verify.
func Decode(r io.Reader) (*File, error) {
	br := bufio.NewReader(r)
	headerLine, err := br.ReadBytes('\n')
	if err != nil && (err != io.EOF || len(headerLine) == 0) {
		return nil, errs.Newf(errs.KindParse, "trace: read header: %v", err)
	}

	var f File
	if err := json.Unmarshal(headerLine, &f.Header); err != nil {
		return nil, errs.Newf(errs.KindParse, "trace: malformed header: %v", err)
	}
	if f.Header.Format != FormatName {
		return nil, errs.Newf(errs.KindParse, "trace: unknown format %q", f.Header.Format)
	}

	// One JSON value via a streaming decoder: an append-policy trace may
	// carry further documents after the first; readers take the first.
	var b body
	if err := json.NewDecoder(br).Decode(&b); err != nil {
		return nil, errs.Newf(errs.KindParse, "trace: malformed payload: %v", err)
	}
	f.Scenario = b.Scenario
	f.Decisions = b.Decisions
	f.Events = b.Events
	f.Summary = b.Summary
	return &f, nil
}

// ReadFile loads and decodes a trace from disk.
func ReadFile(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Newf(errs.KindParse, "trace: read %s: %v", path, err)
	}
	return Decode(bytes.NewReader(raw))
}
