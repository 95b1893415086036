// Package producer holds pluggable adapters that turn host-side
// instrumentation into pipeline records. The core never assumes any of
// these exist; anything satisfying Pipeline can be fed.
package producer

import "pagepulse/model"

// Pipeline is the slice of the recorder surface producers need.
type Pipeline interface {
	RecordErrorDetail(detail model.ErrorDetail)
	RecordMetric(sample model.MetricSample)
}
