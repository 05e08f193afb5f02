package indexer

import (
	"context"

	"github.com/vlikcc/yargisalzeka.V2/pkg/kafka"
)

// RunCompleted is the part of an ingestion run notification the indexer
// reads.
type RunCompleted struct {
	RunID    string `json:"run_id"`
	DryRun   bool   `json:"dry_run"`
	Segments []struct {
		Family   string `json:"family"`
		Inserted int    `json:"inserted"`
		Updated  int    `json:"updated"`
	} `json:"segments"`
}

// Written returns how many records the run inserted or updated.
func (e RunCompleted) Written() int {
	if e.DryRun {
		return 0
	}
	n := 0
	for _, s := range e.Segments {
		n += s.Inserted + s.Updated
	}
	return n
}

// OnRunCompleted returns a handler for ingestion run notifications that
// rebuilds tables after every run that wrote records. Undecodable messages
// are logged and dropped.
func (r *Reindexer) OnRunCompleted(tables []string, report func([]Result, error)) kafka.MessageHandler {
	return func(ctx context.Context, _, value []byte) error {
		event, err := kafka.DecodeJSON[RunCompleted](value)
		if err != nil {
			r.logger.Warn("ignoring run notification", "error", err)
			return nil
		}
		log := r.logger.With("run_id", event.RunID)
		if event.Written() == 0 {
			log.Info("run wrote nothing, index left as is")
			return nil
		}
		log.Info("run completed, rebuilding", "written", event.Written(), "tables", tables)
		results, err := r.ReindexAll(ctx, tables)
		if report != nil {
			report(results, err)
		}
		return err
	}
}
