package trace

import (
	"github.com/fozzylabs/fozzy/internal/decision"
	"github.com/fozzylabs/fozzy/internal/errs"
)

// Warning is a non-fatal integrity note. Under --strict every warning is
// escalated to an error.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Warning codes.
const (
	WarnStaleSchema      = "stale_schema"
	WarnLegacyHostProc   = "legacy_host_proc"
	WarnMissingTimestamp = "missing_timestamp"
)

// Verify checks trace integrity: version range, checksum, and schema
// completeness. Returns the warning list; with strict set, the first
// warning is returned as an error instead.
func Verify(f *File, strict bool) ([]Warning, error) {
	if f.Header.Version < MinVersion || f.Header.Version > MaxVersion {
		return nil, errs.Newf(errs.KindParse, "trace: unsupported version %d (supported %d..%d)",
			f.Header.Version, MinVersion, MaxVersion)
	}

	sum, err := f.ComputeChecksum()
	if err != nil {
		return nil, err
	}
	if f.Header.Checksum == "" {
		return nil, errs.New(errs.KindChecksum, "trace: header has no checksum")
	}
	if sum != f.Header.Checksum {
		return nil, errs.Newf(errs.KindChecksum, "trace: checksum mismatch: header %s, payload %s",
			f.Header.Checksum, sum).
			WithDetail("expected", f.Header.Checksum).
			WithDetail("actual", sum)
	}

	var warnings []Warning
	if f.Header.CollisionPolicy == "" || f.Header.Commit == "" {
		warnings = append(warnings, Warning{
			Code:    WarnStaleSchema,
			Message: "trace header is missing optional fields from the current schema",
		})
	}
	if f.Header.CreatedAt == "" {
		warnings = append(warnings, Warning{
			Code:    WarnMissingTimestamp,
			Message: "trace header has no created_at timestamp",
		})
	}
	if hasProcEvents(f) && !hasProcDecisions(f) {
		warnings = append(warnings, Warning{
			Code:    WarnLegacyHostProc,
			Message: "trace contains proc events but no proc_result decisions; replay cannot reproduce them",
		})
	}

	if strict && len(warnings) > 0 {
		return warnings, errs.Newf(errs.KindChecksum, "trace: strict mode: %s", warnings[0].Message).
			WithDetail("warning", warnings[0].Code)
	}
	return warnings, nil
}

func hasProcEvents(f *File) bool {
	for _, e := range f.Events {
		if e.Name == "proc_spawn" {
			return true
		}
	}
	return false
}

func hasProcDecisions(f *File) bool {
	for _, d := range f.Decisions {
		if d.Kind == decision.KindProcResult {
			return true
		}
	}
	return false
}
