package capability

import (
	"io"
	"net/http"
	"time"

	"github.com/fozzylabs/fozzy/internal/decision"
	"github.com/fozzylabs/fozzy/internal/errs"
	"github.com/fozzylabs/fozzy/internal/scenario"
)

// Response is an http capability result.
type Response struct {
	Status int
	Body   string
}

// HTTPCap serves http_request steps. Scripted mode matches the scenario's
// matcher list in declaration order; host mode performs a synchronous
// outbound request with the body truncated to the capture ceiling.
//
// Results are recorded as http_result decisions in both modes: an http
// response is a boundary observation, and the recorded payload is what
// replay serves.
type HTTPCap struct {
	rules   []scenario.HTTPRule
	backend Backend
	client  *http.Client
}

// NewHTTP creates the scripted http capability.
func NewHTTP(rules []scenario.HTTPRule) *HTTPCap {
	return &HTTPCap{rules: rules}
}

// WithHost switches the capability to the host backend.
func (h *HTTPCap) WithHost(timeout time.Duration) *HTTPCap {
	h.backend = Host
	h.client = &http.Client{Timeout: timeout}
	return h
}

// Request performs method url and returns the scripted or captured
// response.
func (h *HTTPCap) Request(log *decision.Log, method, url string) (Response, error) {
	label := method + " " + url
	payload, err := log.Observe(decision.KindHTTPResult, label, func() (map[string]any, error) {
		if h.backend == Host {
			return h.hostRequest(method, url)
		}
		for _, r := range h.rules {
			if r.Method == method && r.URL == url {
				status := r.Status
				if status == 0 {
					status = http.StatusOK
				}
				return map[string]any{"status": int64(status), "body": r.Body}, nil
			}
		}
		return nil, errs.Newf(errs.KindCapability, "http: no matcher for %s", label)
	})
	if err != nil {
		return Response{}, err
	}
	return Response{
		Status: int(payloadInt(payload, "status")),
		Body:   payloadString(payload, "body"),
	}, nil
}

func (h *HTTPCap) hostRequest(method, url string) (map[string]any, error) {
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return nil, errs.Newf(errs.KindCapability, "http: %v", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, errs.Newf(errs.KindCapability, "http: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, HostBodyCeiling))
	if err != nil {
		return nil, errs.Newf(errs.KindCapability, "http: read body: %v", err)
	}
	return map[string]any{"status": int64(resp.StatusCode), "body": string(body)}, nil
}
