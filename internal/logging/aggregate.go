package logging

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
)

// line is the subset of slog's JSON handler output the aggregator cares
// about; any other field of a record is dropped, not re-emitted.
type line struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Msg     string `json:"msg"`
	GraphID string `json:"graph_id"`
	NodeID  string `json:"node_id"`
	RunID   string `json:"run_id"`
}

// Aggregate reads newline-delimited JSON log records from r (a worker's
// stdout pipe) until EOF and re-emits each one through dst, prefixed with
// graphID if the record didn't already carry one. A worker's log handler
// writes JSON lines to its own stdout, and the Manager owns one goroutine
// per worker decoding that stream.
//
// Malformed lines are forwarded verbatim as Info messages rather than
// dropped, since a worker crashing mid-write can truncate a JSON object.
func Aggregate(r io.Reader, dst *Logger, graphID string) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		raw := scanner.Bytes()
		var rec line
		if err := json.Unmarshal(raw, &rec); err != nil {
			dst.WithGraphID(graphID).Info(string(raw))
			continue
		}
		id := graphID
		if rec.GraphID != "" {
			id = rec.GraphID
		}
		l := dst.WithGraphID(id)
		if rec.NodeID != "" {
			l = l.WithNodeID(rec.NodeID)
		}
		if rec.RunID != "" {
			l = l.WithRunID(rec.RunID)
		}
		switch rec.Level {
		case slog.LevelDebug.String():
			l.Debug(rec.Msg)
		case slog.LevelWarn.String():
			l.Warn(rec.Msg)
		case slog.LevelError.String():
			l.Error(rec.Msg)
		default:
			l.Info(rec.Msg)
		}
	}
}
