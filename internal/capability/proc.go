package capability

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"

	"github.com/fozzylabs/fozzy/internal/decision"
	"github.com/fozzylabs/fozzy/internal/errs"
	"github.com/fozzylabs/fozzy/internal/scenario"
)

// ProcResult is a proc capability result.
type ProcResult struct {
	Stdout string
	Stderr string
	Exit   int
}

// ProcCap serves proc_spawn steps. Scripted mode matches the scenario's
// command matchers; host mode executes the command with truncated stdio
// capture. Results are recorded as proc_result decisions in both modes.
type ProcCap struct {
	rules   []scenario.ProcRule
	backend Backend
	timeout time.Duration
}

// NewProc creates the scripted proc capability.
func NewProc(rules []scenario.ProcRule) *ProcCap {
	return &ProcCap{rules: rules}
}

// WithHost switches to the host backend with the given host-time budget.
func (p *ProcCap) WithHost(timeout time.Duration) *ProcCap {
	p.backend = Host
	p.timeout = timeout
	return p
}

// Spawn runs cmd and returns the scripted or captured result.
func (p *ProcCap) Spawn(log *decision.Log, cmd string) (ProcResult, error) {
	payload, err := log.Observe(decision.KindProcResult, cmd, func() (map[string]any, error) {
		if p.backend == Host {
			return p.hostSpawn(cmd)
		}
		for _, r := range p.rules {
			if r.Cmd == cmd {
				return map[string]any{
					"stdout": r.Stdout,
					"stderr": r.Stderr,
					"exit":   int64(r.Exit),
				}, nil
			}
		}
		return nil, errs.Newf(errs.KindCapability, "proc: no matcher for %q", cmd)
	})
	if err != nil {
		return ProcResult{}, err
	}
	return ProcResult{
		Stdout: payloadString(payload, "stdout"),
		Stderr: payloadString(payload, "stderr"),
		Exit:   int(payloadInt(payload, "exit")),
	}, nil
}

func (p *ProcCap) hostSpawn(cmd string) (map[string]any, error) {
	ctx := context.Background()
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	c := exec.CommandContext(ctx, "sh", "-c", cmd)
	c.Stdout = &stdout
	c.Stderr = &stderr

	exit := 0
	if err := c.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exit = exitErr.ExitCode()
		} else {
			return nil, errs.Newf(errs.KindCapability, "proc: %q: %v", cmd, err)
		}
	}
	return map[string]any{
		"stdout": truncate(stdout.String(), HostBodyCeiling),
		"stderr": truncate(stderr.String(), HostBodyCeiling),
		"exit":   int64(exit),
	}, nil
}
