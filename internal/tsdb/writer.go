// Package tsdb provides the time-series store interface the consumer worker
// pool persists canonical events into, along with the InfluxDB adapter.
package tsdb

import (
	"context"
	"time"
)

// Point is one time-series datapoint: a measurement name, string tags,
// typed field values and a timestamp.
type Point struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]interface{}
	Time        time.Time
}

// Writer is the narrowed time-series store interface the consumer needs.
type Writer interface {
	// Write persists the points. A returned error means none of the points
	// are guaranteed to have been stored; the caller records the failure and
	// moves on — there is no retry at this layer.
	Write(ctx context.Context, points []Point) error
}
