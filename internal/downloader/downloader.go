package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go-civitai-fetch/internal/helpers"
	"go-civitai-fetch/internal/models"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Custom Downloader Errors
var (
	ErrHashMismatch = errors.New("downloaded file hash mismatch")
	ErrHTTPStatus   = errors.New("unexpected HTTP status code")
	ErrFileSystem   = errors.New("filesystem error")
	ErrHTTPRequest  = errors.New("HTTP request creation/execution error")
)

// SkipMarker is the substring that identifies a skip-existing outcome in
// its message. Callers grep for it, so the wording is a contract.
const SkipMarker = "already exists"

// Task is one unit of download work: a source URL paired with a guessed
// destination path. ID makes the task addressable in progress reporting
// and outcomes without leaning on scheduler internals.
type Task struct {
	ID     string
	URL    string
	Dest   string
	Hashes models.Hashes
}

// NewTask builds a Task with a generated identifier.
func NewTask(url, dest string) Task {
	return Task{ID: uuid.NewString(), URL: url, Dest: dest}
}

// Outcome is the per-task result. Message carries the human-readable
// sub-status: "Downloaded: ...", "Skipped (already exists): ...", or the
// last error text.
type Outcome struct {
	TaskID    string
	Message   string
	FinalPath string
	Success   bool
}

// Options configures the engine.
type Options struct {
	// Concurrency bounds the number of in-flight transfers.
	Concurrency int
	// RetryAttempts is the per-task attempt budget for transient failures.
	RetryAttempts int
	// SkipExisting treats an existing destination file as satisfied.
	SkipExisting bool
	// VerifyHashes checks downloaded files against API-provided hashes.
	VerifyHashes bool
	// Timeout bounds one whole transfer, including the body stream. Only
	// applies when the engine builds its own HTTP client. Defaults to a
	// value generous enough for multi-gigabyte model files.
	Timeout time.Duration
	// BackoffUnit scales the 2^attempt backoff between retries. Defaults
	// to one second; tests shrink it.
	BackoffUnit time.Duration
	// ProgressOutput receives live progress rendering; nil disables it.
	ProgressOutput io.Writer
}

// Engine downloads batches of files with bounded concurrency, per-task
// retry and skip-if-exists.
type Engine struct {
	client *http.Client
	apiKey string
	opts   Options
}

// NewEngine creates a download engine. A nil client gets a default built
// from the configured transfer timeout.
func NewEngine(client *http.Client, apiKey string, opts Options) *Engine {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Minute
	}
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 3
	}
	if opts.BackoffUnit <= 0 {
		opts.BackoffUnit = time.Second
	}
	return &Engine{client: client, apiKey: apiKey, opts: opts}
}

// DownloadAll fetches every task, at most Concurrency at a time, and
// returns one outcome per task in completion order. Cancelling the
// context stops admitting queued tasks and fails them fast; tasks already
// transferring abort through their request context. Partial results are
// always returned.
func (e *Engine) DownloadAll(ctx context.Context, tasks []Task) []Outcome {
	if len(tasks) == 0 {
		return nil
	}

	log.Infof("Starting batch download of %d files (max %d concurrent)", len(tasks), e.opts.Concurrency)
	tracker := NewTracker(e.opts.ProgressOutput, len(tasks), e.opts.Concurrency)
	defer tracker.Stop()

	// Counting admission gate: at most Concurrency transfers in flight.
	sem := make(chan struct{}, e.opts.Concurrency)
	results := make(chan Outcome)

	for _, task := range tasks {
		go func(task Task) {
			results <- e.runTask(ctx, task, sem, tracker)
		}(task)
	}

	outcomes := make([]Outcome, 0, len(tasks))
	for range tasks {
		outcome := <-results
		tracker.TaskDone(outcome)
		outcomes = append(outcomes, outcome)
	}

	downloaded, skipped, failed := tracker.Counts()
	log.Infof("Batch download completed: %d downloaded, %d skipped, %d failed", downloaded, skipped, failed)
	return outcomes
}

// runTask applies the skip-existing policy, then waits for an admission
// slot and attempts the download.
func (e *Engine) runTask(ctx context.Context, task Task, sem chan struct{}, tracker *Tracker) Outcome {
	// Pre-admission skip check costs no slot and no network.
	if e.opts.SkipExisting && fileExists(task.Dest) {
		log.Infof("File already exists, skipping: %s", filepath.Base(task.Dest))
		return Outcome{
			TaskID:    task.ID,
			Success:   true,
			FinalPath: task.Dest,
			Message:   fmt.Sprintf("Skipped (%s): %s", SkipMarker, filepath.Base(task.Dest)),
		}
	}

	select {
	case <-ctx.Done():
		return Outcome{TaskID: task.ID, Message: fmt.Sprintf("cancelled before start: %v", ctx.Err())}
	case sem <- struct{}{}:
	}
	defer func() { <-sem }()

	return e.downloadWithRetry(ctx, task, tracker)
}

// downloadWithRetry attempts a single task up to the retry budget.
// 401 and 404 are terminal on first sight; anything else transient backs
// off 2^attempt seconds between attempts, with no backoff after the last.
func (e *Engine) downloadWithRetry(ctx context.Context, task Task, tracker *Tracker) Outcome {
	fail := func(msg string) Outcome {
		return Outcome{TaskID: task.ID, Message: msg}
	}

	var lastErrMsg string
	for attempt := 0; attempt < e.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * e.opts.BackoffUnit
			log.Debugf("Retrying %s (attempt %d/%d) after %s", task.URL, attempt+1, e.opts.RetryAttempts, backoff)
			select {
			case <-ctx.Done():
				return fail(fmt.Sprintf("cancelled during backoff: %v", ctx.Err()))
			case <-time.After(backoff):
			}
		}

		outcome, retryable := e.attempt(ctx, task, tracker)
		if !retryable {
			return outcome
		}
		lastErrMsg = outcome.Message
	}

	if lastErrMsg == "" {
		lastErrMsg = "max retries exceeded"
	}
	return fail(lastErrMsg)
}

// attempt performs one fetch. The second return value reports whether the
// failure is transient and worth another attempt.
func (e *Engine) attempt(ctx context.Context, task Task, tracker *Tracker) (Outcome, bool) {
	fail := func(msg string) Outcome {
		return Outcome{TaskID: task.ID, Message: msg}
	}

	req, err := http.NewRequestWithContext(ctx, "GET", task.URL, nil)
	if err != nil {
		return fail(fmt.Sprintf("%v: creating request for %s: %v", ErrHTTPRequest, task.URL, err)), false
	}
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fail(fmt.Sprintf("error downloading %s: %v", task.URL, err)), true
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// Fall through to the streaming path below.
	case http.StatusUnauthorized, http.StatusForbidden:
		return fail(fmt.Sprintf("authentication failed for %s, check your API key", task.URL)), false
	case http.StatusNotFound:
		return fail(fmt.Sprintf("file not found: %s", task.URL)), false
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		return fail(fmt.Sprintf("%v: HTTP %d for %s", ErrHTTPStatus, resp.StatusCode, task.URL)), true
	}

	finalDest := task.Dest
	if serverName := filenameFromResponse(resp); serverName != "" {
		finalDest = filepath.Join(filepath.Dir(task.Dest), serverName)
		// The file may already exist under the server's name even though
		// the guessed name did not match.
		if e.opts.SkipExisting && fileExists(finalDest) {
			log.Infof("File already exists with server filename, skipping: %s", serverName)
			return Outcome{
				TaskID:    task.ID,
				Success:   true,
				FinalPath: finalDest,
				Message:   fmt.Sprintf("Skipped (%s): %s", SkipMarker, serverName),
			}, false
		}
	}

	if !helpers.CheckAndMakeDir(filepath.Dir(finalDest)) {
		return fail(fmt.Sprintf("%v: failed to create directory %s", ErrFileSystem, filepath.Dir(finalDest))), false
	}

	if err := e.streamToFile(resp, finalDest, tracker); err != nil {
		return fail(fmt.Sprintf("writing %s: %v", finalDest, err)), true
	}

	if e.opts.VerifyHashes && helpers.HashesProvided(task.Hashes) {
		if !helpers.CheckHash(finalDest, task.Hashes) {
			_ = os.Remove(finalDest)
			return fail(fmt.Sprintf("%v: %s", ErrHashMismatch, filepath.Base(finalDest))), false
		}
	}

	log.Infof("Successfully downloaded: %s", filepath.Base(finalDest))
	return Outcome{
		TaskID:    task.ID,
		Success:   true,
		FinalPath: finalDest,
		Message:   fmt.Sprintf("Downloaded: %s", filepath.Base(finalDest)),
	}, false
}

// streamToFile writes the response body to a temporary file in the
// destination directory, chunk by chunk, then renames it into place.
func (e *Engine) streamToFile(resp *http.Response, dest string, tracker *Tracker) error {
	size, _ := strconv.ParseUint(resp.Header.Get("Content-Length"), 10, 64)
	slot := tracker.AcquireSlot(filepath.Base(dest), size)
	defer tracker.ReleaseSlot(slot)

	tempFile, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: creating temporary file for %s: %v", ErrFileSystem, dest, err)
	}
	tempPath := tempFile.Name()

	counter := &helpers.CounterWriter{
		Writer:  tempFile,
		OnWrite: func(n int) { tracker.Advance(slot, n) },
	}

	if _, err := io.Copy(counter, resp.Body); err != nil {
		tempFile.Close()
		_ = os.Remove(tempPath)
		return err
	}
	if err := tempFile.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("%w: closing temporary file %s: %v", ErrFileSystem, tempPath, err)
	}
	if err := os.Rename(tempPath, dest); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("%w: renaming %s to %s: %v", ErrFileSystem, tempPath, dest, err)
	}
	return nil
}

// filenameFromResponse extracts a server-provided filename from the
// Content-Disposition header, if any.
func filenameFromResponse(resp *http.Response) string {
	contentDisposition := resp.Header.Get("Content-Disposition")
	if contentDisposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentDisposition)
	if err != nil {
		log.WithError(err).Warnf("Could not parse Content-Disposition header: %s", contentDisposition)
		return ""
	}
	if name := params["filename"]; name != "" {
		// Never let a server filename escape the destination directory.
		return filepath.Base(name)
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
