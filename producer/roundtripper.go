package producer

import (
	"net/http"
	"strconv"
	"time"

	"pagepulse/model"
)

type instrumentedTransport struct {
	next http.RoundTripper
	pipe Pipeline
}

// NewRoundTripper wraps next so every outbound request produces a network
// timing metric. Transport errors and 5xx responses additionally produce
// error records that feed the api-failure-pattern rule.
func NewRoundTripper(next http.RoundTripper, pipe Pipeline) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &instrumentedTransport{next: next, pipe: pipe}
}

func (t *instrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	elapsed := time.Since(start)

	sample := model.MetricSample{
		Category: model.CategoryNetwork,
		Value:    float64(elapsed.Milliseconds()),
		Values:   map[string]float64{"durationMs": float64(elapsed.Milliseconds())},
	}
	ctx := map[string]string{
		"method": req.Method,
		"host":   req.URL.Host,
		"path":   req.URL.Path,
	}
	switch {
	case err != nil:
		t.pipe.RecordErrorDetail(model.ErrorDetail{
			Kind:    model.KindNetworkRequest,
			Message: "request failed: " + err.Error(),
			Context: ctx,
		})
	case resp.StatusCode >= 500:
		ctx["status"] = strconv.Itoa(resp.StatusCode)
		sample.Values["status"] = float64(resp.StatusCode)
		t.pipe.RecordErrorDetail(model.ErrorDetail{
			Kind:    model.KindNetworkRequest,
			Message: "server responded " + resp.Status,
			Context: ctx,
		})
	default:
		sample.Values["status"] = float64(resp.StatusCode)
	}
	t.pipe.RecordMetric(sample)
	return resp, err
}
