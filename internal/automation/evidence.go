package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
)

// MaxScreenshots bounds the number of captures a single evidence job
// may record (spec.md §4.D invariant).
const MaxScreenshots = 20

var sanitizeRe = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// sanitizeID strips anything outside the safe filename alphabet so an
// assignment id can never escape its evidence directory.
func sanitizeID(id string) string {
	s := sanitizeRe.ReplaceAllString(id, "_")
	if s == "" {
		return "job"
	}
	return s
}

// Screenshotter is the minimal capture surface an evidence Job needs;
// satisfied by *Driver.
type Screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// JobResult is the result.json manifest component D writes on
// finish_job, grounded on spec.md §4.D's aggregate field list.
type JobResult struct {
	Success        bool     `json:"success"`
	SearchSuccess  bool     `json:"search_success"`
	WatchDurationS int      `json:"watch_duration_sec"`
	Error          string   `json:"error,omitempty"`
	StartedAt      string   `json:"started_at"`
	CompletedAt    string   `json:"completed_at"`
	DurationMS     int64    `json:"duration_ms"`
	Files          []string `json:"files"`
	Count          int      `json:"count"`
	Dir            string   `json:"dir"`
}

// Job is component D: a per-assignment evidence recorder bound to one
// Driver for the job's lifetime.
type Job struct {
	drv          Screenshotter
	baseDir      string
	assignmentID string
	dir          string
	log          zerolog.Logger

	mu        sync.Mutex
	files     []string
	seq       int
	lastMS    int64
	started   time.Time
}

// StartJob creates the job's sanitized evidence directory under
// baseDir and returns a bound recorder.
func StartJob(baseDir, assignmentID string, drv Screenshotter, log zerolog.Logger) (*Job, error) {
	safeID := sanitizeID(assignmentID)
	dir := filepath.Join(baseDir, safeID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("evidence: create job dir: %w", err)
	}
	return &Job{
		drv:          drv,
		baseDir:      baseDir,
		assignmentID: safeID,
		dir:          dir,
		log:          log,
		started:      time.Now(),
	}, nil
}

// Capture reads a PNG screenshot via the driver and writes it under a
// monotone, lexically-sortable filename. Silently drops past
// MaxScreenshots. Errors in capture never propagate — they are logged
// and swallowed, per spec.md §4.D.
func (j *Job) Capture(ctx context.Context, actionType string) {
	j.mu.Lock()
	if len(j.files) >= MaxScreenshots {
		j.mu.Unlock()
		return
	}
	j.mu.Unlock()

	raw, err := j.drv.Screenshot(ctx)
	if err != nil {
		j.log.Warn().Err(err).Str("action", actionType).Msg("evidence capture failed")
		return
	}

	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		j.log.Warn().Err(err).Str("action", actionType).Msg("evidence decode failed")
		return
	}

	name := j.nextFilename(actionType)
	path := filepath.Join(j.dir, name)
	if err := imaging.Save(img, path); err != nil {
		j.log.Warn().Err(err).Str("action", actionType).Msg("evidence save failed")
		return
	}

	j.mu.Lock()
	j.files = append(j.files, name)
	j.mu.Unlock()
}

// nextFilename builds `YYYYMMDD_HHMMSSmmm_SS_<jobid>_<action>.png`
// where SS is a sequence counter that monotonically increases within
// the same millisecond, per spec.md §4.D.
func (j *Job) nextFilename(actionType string) string {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := time.Now()
	ms := now.UnixMilli()
	if ms == j.lastMS {
		j.seq++
	} else {
		j.seq = 0
		j.lastMS = ms
	}

	ts := now.Format("20060102_150405") + fmt.Sprintf("%03d", now.Nanosecond()/1_000_000)
	action := sanitizeID(strings.ToLower(actionType))
	return fmt.Sprintf("%s_%02d_%s_%s.png", ts, j.seq, j.assignmentID, action)
}

// Finish writes result.json aggregating success/search_success,
// watch duration, error, timestamps, and the captured file list.
func (j *Job) Finish(success, searchSuccess bool, watchDurationSec int, jobErr string) (JobResult, error) {
	j.mu.Lock()
	files := append([]string(nil), j.files...)
	j.mu.Unlock()

	completed := time.Now()
	result := JobResult{
		Success:        success,
		SearchSuccess:  searchSuccess,
		WatchDurationS: watchDurationSec,
		Error:          jobErr,
		StartedAt:      j.started.UTC().Format(time.RFC3339Nano),
		CompletedAt:    completed.UTC().Format(time.RFC3339Nano),
		DurationMS:     completed.Sub(j.started).Milliseconds(),
		Files:          files,
		Count:          len(files),
		Dir:            j.dir,
	}

	b, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return result, fmt.Errorf("evidence: marshal result: %w", err)
	}
	if err := os.WriteFile(filepath.Join(j.dir, "result.json"), b, 0o644); err != nil {
		return result, fmt.Errorf("evidence: write result.json: %w", err)
	}
	return result, nil
}

// Dir returns the job's evidence directory.
func (j *Job) Dir() string { return j.dir }

// Files returns a snapshot of captured filenames so far.
func (j *Job) Files() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.files...)
}
