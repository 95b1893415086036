package producer

import (
	"fmt"
	"runtime/debug"

	"pagepulse/model"
)

// CapturePanic returns a function for use with defer that records a
// recovered panic as a critical runtime error. The panic is swallowed,
// mirroring a top-level error hook; callers that must crash should
// re-panic themselves.
//
//	defer producer.CapturePanic(rec)()
func CapturePanic(pipe Pipeline) func() {
	return func() {
		if v := recover(); v != nil {
			pipe.RecordErrorDetail(model.ErrorDetail{
				Kind:     model.KindRuntimeError,
				Message:  fmt.Sprint(v),
				Stack:    string(debug.Stack()),
				Severity: model.SeverityCritical,
			})
		}
	}
}
