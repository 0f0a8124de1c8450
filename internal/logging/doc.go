// Package logging provides kiln's structured debug log.
//
// The log is JSON lines written through log/slog to
// <workspace>/.kiln/logs/debug.log. It is separate from the terminal
// renderer: the renderer shows progress, the debug log records what
// happened for later inspection with "kiln logs".
//
// # Context
//
// Child loggers carry attributes onto every entry:
//
//	logger := base.WithRun(runID).WithTask("build")
//	logger.WithStep("Web.Bundle").Info("step succeeded", "duration_ms", 812)
//
// Produces:
//
//	{"time":"...","level":"INFO","msg":"step succeeded","run_id":"...","task":"build","step":"Web.Bundle","duration_ms":812}
//
// # Rotation
//
// [RotatingWriter] rotates the file once it would exceed MaxSizeMB, keeping
// MaxBackups numbered backups (debug.log.1 is the newest), optionally gzip
// compressed.
//
// # Reading
//
// [ReadEntries] loads the current file and its backups, [FilterEntries]
// narrows them with a [Query], and [WriteEntries] prints them as text or
// JSON.
package logging
