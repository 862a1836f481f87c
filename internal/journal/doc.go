// Package journal provides an append-only SQLite record of power-level
// transitions.
//
// The journal is strictly an audit trail. The daemon writes a row for each
// transition and never reads the journal to decide anything: control state
// lives in memory and is rebuilt from hardware at startup. Deleting the
// journal file loses history, nothing else.
//
// # Usage
//
//	j, err := journal.Open(cfg.Journal)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer j.Close()
//
//	j.RecordTransition(ctx, 0, "high", "native", 0, 0)
package journal
