package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyTaskID     = "task_id"
	KeyTaskName   = "task_name"
	KeyTaskStatus = "task_status"
	KeyProject    = "project"
	KeyVersion    = "version"
	KeyBuildID    = "build_id"
	KeyStage      = "stage"
	KeyDurationMS = "duration_ms"
	KeyURL        = "url"
	KeyRecipients = "recipients"
	KeyChannel    = "channel"
	KeyStatus     = "status"
	KeyPath       = "path"
	KeyCommit     = "commit"
	KeyWorker     = "worker"
	KeyMethod     = "method"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func TaskID(id string) slog.Attr       { return slog.String(KeyTaskID, id) }
func TaskName(n string) slog.Attr      { return slog.String(KeyTaskName, n) }
func TaskStatus(s string) slog.Attr    { return slog.String(KeyTaskStatus, s) }
func Project(slug string) slog.Attr    { return slog.String(KeyProject, slug) }
func Version(slug string) slog.Attr    { return slog.String(KeyVersion, slug) }
func BuildID(id int64) slog.Attr       { return slog.Int64(KeyBuildID, id) }
func Stage(name string) slog.Attr      { return slog.String(KeyStage, name) }
func DurationMS(ms float64) slog.Attr  { return slog.Float64(KeyDurationMS, ms) }
func URL(u string) slog.Attr           { return slog.String(KeyURL, u) }
func Recipients(n int) slog.Attr       { return slog.Int(KeyRecipients, n) }
func Channel(c string) slog.Attr       { return slog.String(KeyChannel, c) }
func Status(code int) slog.Attr        { return slog.Int(KeyStatus, code) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func Commit(sha string) slog.Attr      { return slog.String(KeyCommit, sha) }
func Worker(w string) slog.Attr        { return slog.String(KeyWorker, w) }
func Method(m string) slog.Attr        { return slog.String(KeyMethod, m) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
