package photo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/regdesk/regdesk/internal/observability"
	"github.com/regdesk/regdesk/internal/sessions"
	"github.com/regdesk/regdesk/pkg/models"
)

// MaxUploadBytes caps accepted photo uploads.
const MaxUploadBytes = 10 << 20

// DefaultWorkers is the background pipeline's pool size.
const DefaultWorkers = 4

var (
	// ErrTooLarge rejects uploads over MaxUploadBytes.
	ErrTooLarge = errors.New("photo: upload exceeds the 10MB limit")

	// ErrUnsupportedType rejects uploads outside jpeg/png/webp/heic.
	ErrUnsupportedType = errors.New("photo: unsupported upload type")

	// ErrUploadInProgress enforces one in-flight upload per session.
	ErrUploadInProgress = errors.New("photo: an upload is already being processed for this session")

	// ErrPipelineClosed is returned after Close.
	ErrPipelineClosed = errors.New("photo: pipeline closed")
)

var allowedExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".heic": true, ".heif": true,
}

var allowedContentTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/heic": ".heic",
	"image/heif": ".heic",
}

// TurnFunc runs the photo-upload chat step for a session against a stored
// temp file and returns the assistant's confirmation message.
type TurnFunc func(ctx context.Context, sessionID, tempPath string) (string, error)

// Status is the observable state of a session's latest upload job.
type Status struct {
	Complete bool   `json:"complete"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Pipeline validates uploads, stages them on disk, and runs the photo step
// either inline or on a background worker pool.
type Pipeline struct {
	sessions sessions.Store
	turn     TurnFunc
	logger   *observability.Logger
	metrics  *observability.Metrics
	tempDir  string
	timeout  time.Duration

	jobs chan job
	wg   sync.WaitGroup

	mu       sync.Mutex
	statuses map[string]Status
	closed   bool
}

type job struct {
	sessionID string
	tempPath  string
}

// PipelineConfig configures a Pipeline.
type PipelineConfig struct {
	Sessions sessions.Store
	Turn     TurnFunc
	Logger   *observability.Logger
	Metrics  *observability.Metrics
	TempDir  string
	Workers  int
	// Timeout bounds one background job end to end.
	Timeout time.Duration
}

// NewPipeline creates the pipeline and starts its workers.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}

	p := &Pipeline{
		sessions: cfg.Sessions,
		turn:     cfg.Turn,
		logger:   logger,
		metrics:  cfg.Metrics,
		tempDir:  tempDir,
		timeout:  timeout,
		jobs:     make(chan job, workers*2),
		statuses: map[string]Status{},
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Close stops accepting jobs and waits for in-flight work to finish.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	close(p.jobs)
	p.wg.Wait()
}

// ValidateUpload checks type and size before anything touches the session.
func ValidateUpload(filename, contentType string, size int64) error {
	if size > MaxUploadBytes {
		return ErrTooLarge
	}
	if _, ok := allowedContentTypes[strings.ToLower(contentType)]; ok {
		return nil
	}
	if allowedExtensions[strings.ToLower(filepath.Ext(filename))] {
		return nil
	}
	return ErrUnsupportedType
}

// Process handles a synchronous upload: stage, run the photo step inline,
// clean up, and return the assistant's confirmation.
func (p *Pipeline) Process(ctx context.Context, sessionID, filename, contentType string, data []byte) (string, error) {
	tempPath, err := p.stage(ctx, sessionID, filename, contentType, data)
	if err != nil {
		return "", err
	}
	defer p.finish(sessionID, tempPath)

	reply, err := p.turn(ctx, sessionID, tempPath)
	p.observe(err)
	if err != nil {
		return "", fmt.Errorf("photo turn: %w", err)
	}
	return reply, nil
}

// Submit handles an asynchronous upload: stage and enqueue. Progress is
// observable through Status.
func (p *Pipeline) Submit(ctx context.Context, sessionID, filename, contentType string, data []byte) error {
	tempPath, err := p.stage(ctx, sessionID, filename, contentType, data)
	if err != nil {
		return err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.finish(sessionID, tempPath)
		return ErrPipelineClosed
	}
	p.statuses[sessionID] = Status{}
	p.mu.Unlock()

	select {
	case p.jobs <- job{sessionID: sessionID, tempPath: tempPath}:
		return nil
	default:
		p.finish(sessionID, tempPath)
		return ErrUploadInProgress
	}
}

// Status returns the latest job state for a session.
func (p *Pipeline) Status(sessionID string) (Status, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.statuses[sessionID]
	return s, ok
}

// stage validates the upload, claims the session's upload slot, and writes
// the bytes to a temp file.
func (p *Pipeline) stage(ctx context.Context, sessionID, filename, contentType string, data []byte) (string, error) {
	if err := sessions.ValidateID(sessionID); err != nil {
		return "", err
	}
	if err := ValidateUpload(filename, contentType, int64(len(data))); err != nil {
		return "", err
	}

	if session, err := p.sessions.Get(ctx, sessionID); err == nil && session.PendingUpload != nil {
		return "", ErrUploadInProgress
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = allowedContentTypes[strings.ToLower(contentType)]
	}
	tempPath := filepath.Join(p.tempDir, "upload_"+uuid.NewString()+ext)
	if err := os.WriteFile(tempPath, data, 0o600); err != nil {
		return "", fmt.Errorf("stage upload: %w", err)
	}

	if err := p.sessions.SetPendingUpload(ctx, sessionID, &models.PendingUpload{
		TempPath:     tempPath,
		OriginalName: filename,
		ContentType:  contentType,
	}); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("claim upload slot: %w", err)
	}
	return tempPath, nil
}

// finish releases the session's upload slot and removes the temp file.
func (p *Pipeline) finish(sessionID, tempPath string) {
	if err := p.sessions.SetPendingUpload(context.Background(), sessionID, nil); err != nil {
		p.logger.Warn("release upload slot failed", "session", sessionID, "error", err)
	}
	if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
		p.logger.Warn("remove temp upload failed", "path", tempPath, "error", err)
	}
}

func (p *Pipeline) worker() {
	defer p.wg.Done()
	for j := range p.jobs {
		p.run(j)
	}
}

func (p *Pipeline) run(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	defer p.finish(j.sessionID, j.tempPath)

	reply, err := p.turn(ctx, j.sessionID, j.tempPath)
	p.observe(err)

	p.mu.Lock()
	if err != nil {
		p.logger.Error("photo job failed", "session", j.sessionID, "error", err)
		p.statuses[j.sessionID] = Status{Complete: true, Error: "photo processing failed, please try again"}
	} else {
		p.statuses[j.sessionID] = Status{Complete: true, Message: reply}
	}
	p.mu.Unlock()
}

func (p *Pipeline) observe(err error) {
	if p.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	p.metrics.PhotoJobs.WithLabelValues(status).Inc()
}
