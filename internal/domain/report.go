package domain

// FetchStatus is the terminal state of one descriptor within a run.
type FetchStatus int

const (
	// StatusDownloaded means the file was fetched and written in full.
	StatusDownloaded FetchStatus = iota

	// StatusSkipped means the file already existed on disk with the
	// expected size, so no network call was made.
	StatusSkipped

	// StatusFailed means all attempts were exhausted or a non-retryable
	// error occurred.
	StatusFailed
)

// String returns a human-readable status name.
func (s FetchStatus) String() string {
	switch s {
	case StatusDownloaded:
		return "downloaded"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// FetchOutcome is the per-file result of one fetch.
type FetchOutcome struct {
	Descriptor FileDescriptor
	Status     FetchStatus

	// BytesWritten is the number of bytes written to disk. Zero for
	// skipped and failed fetches.
	BytesWritten int64

	// Attempts is the number of network attempts made. Zero when the
	// descriptor was skipped or rejected before any request.
	Attempts int

	// Err is the last error observed. Nil unless Status is StatusFailed.
	Err error
}

// Succeeded reports whether the descriptor ended in a non-failed state.
// A skip counts as success: the file is present and complete.
func (o FetchOutcome) Succeeded() bool {
	return o.Status != StatusFailed
}

// Failure pairs a descriptor with the error that sank it.
type Failure struct {
	Descriptor FileDescriptor
	Err        error
}

// DownloadReport aggregates the outcomes of one batch run.
// After a run completes Total == Succeeded + Failed holds, and every
// descriptor contributes exactly one outcome.
type DownloadReport struct {
	Total     int
	Succeeded int
	Skipped   int
	Failed    int

	// Failures lists failed descriptors in completion order.
	Failures []Failure
}

// Add folds one outcome into the report. The engine calls it from a
// single collector goroutine, so no locking is needed here.
func (r *DownloadReport) Add(o FetchOutcome) {
	r.Total++
	switch o.Status {
	case StatusFailed:
		r.Failed++
		r.Failures = append(r.Failures, Failure{Descriptor: o.Descriptor, Err: o.Err})
	case StatusSkipped:
		r.Succeeded++
		r.Skipped++
	default:
		r.Succeeded++
	}
}
