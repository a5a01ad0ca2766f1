package tsdb

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// InfluxWriter implements Writer on an InfluxDB 2.x bucket using the blocking
// write API, so write errors surface synchronously to the calling worker.
type InfluxWriter struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
}

// NewInfluxWriter connects to an InfluxDB instance. The connection is lazy;
// the first Write surfaces reachability problems.
func NewInfluxWriter(url, token, org, bucket string) *InfluxWriter {
	client := influxdb2.NewClient(url, token)
	return &InfluxWriter{
		client: client,
		write:  client.WriteAPIBlocking(org, bucket),
	}
}

// Write converts and persists the points in one batch.
func (w *InfluxWriter) Write(ctx context.Context, points []Point) error {
	batch := make([]*write.Point, 0, len(points))
	for _, p := range points {
		batch = append(batch, influxdb2.NewPoint(p.Measurement, p.Tags, p.Fields, p.Time))
	}
	if err := w.write.WritePoint(ctx, batch...); err != nil {
		return fmt.Errorf("influx write: %w", err)
	}
	return nil
}

// Close flushes and releases the underlying HTTP client.
func (w *InfluxWriter) Close() {
	w.client.Close()
}
