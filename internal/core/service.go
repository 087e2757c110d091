package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/csvsplit/internal/history"
)

// DefaultJobTimeout bounds a single split job.
const DefaultJobTimeout = 5 * time.Minute

// DefaultJobRetention is how long a finished job stays queryable.
const DefaultJobRetention = 5 * time.Minute

// ServiceConfig tunes a Service. Zero values select the defaults.
type ServiceConfig struct {
	// DefaultChunkSize is used when a request leaves ChunkSize at zero.
	// Zero means SuggestChunkSize of the file's row count.
	DefaultChunkSize int

	// Workers builds chunks concurrently inside one job.
	Workers int

	// PreserveBOM repeats a source byte-order mark on every output.
	PreserveBOM bool

	// OutputRoot holds output directories for uploads that have no source path.
	OutputRoot string

	MaxFileSize   int64
	MaxConcurrent int
	MaxWait       time.Duration
	JobTimeout    time.Duration
	JobRetention  time.Duration
}

// Service runs split jobs and tracks them by ID.
type Service struct {
	store   FileStore
	history history.Store
	limiter *SplitLimiter
	cfg     ServiceConfig
	now     func() time.Time

	mu   sync.RWMutex
	jobs map[string]*activeJob
}

type activeJob struct {
	ID       string
	FileName string
	Source   string
	Meta     RequestMeta
	Cancel   context.CancelFunc
	Done     chan struct{}

	mu         sync.Mutex
	progress   SplitProgress
	result     *SplitResult
	err        error
	records    []OutputRecord
	listeners  []chan SplitProgress
	onProgress ProgressFunc
	cancelled  bool
}

// NewService returns a Service that reads and writes through store and
// records finished jobs in hist. hist may be nil.
func NewService(store FileStore, hist history.Store, cfg ServiceConfig) *Service {
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}
	if cfg.JobRetention <= 0 {
		cfg.JobRetention = DefaultJobRetention
	}
	return &Service{
		store:   store,
		history: hist,
		limiter: NewSplitLimiter(cfg.MaxConcurrent, cfg.MaxWait),
		cfg:     cfg,
		now:     time.Now,
		jobs:    make(map[string]*activeJob),
	}
}

// Inspect summarises an uploaded file without splitting it.
func (s *Service) Inspect(ctx context.Context, file RawFile) (FileInfo, error) {
	if err := s.checkInput(file.Name, file.Size()); err != nil {
		return FileInfo{}, err
	}
	info, _, err := Inspect(file)
	if err != nil {
		return FileInfo{}, fmt.Errorf("inspect %s: %w", file.Name, err)
	}
	s.logDetection(ctx, "", info)
	return info, nil
}

// InspectPath loads path through the FileStore and summarises it.
func (s *Service) InspectPath(ctx context.Context, path string) (FileInfo, error) {
	if !IsCSV(path) {
		return FileInfo{}, fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Base(path))
	}
	file, err := s.store.LoadFile(path)
	if err != nil {
		return FileInfo{}, err
	}
	return s.Inspect(ctx, file)
}

// StartSplit validates req and runs it in the background. It returns the
// job ID at once; use SubscribeProgress and GetResult to follow the job.
// Returns ErrTooManySplits when no slot frees up within the wait limit.
func (s *Service) StartSplit(ctx context.Context, req SplitRequest) (string, error) {
	if err := s.validate(&req); err != nil {
		return "", err
	}
	if err := s.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	jobCtx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
	job := s.newJob(ctx, req, cancel)

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	go func() {
		defer s.limiter.Release()
		defer s.cleanup(job.ID, s.cfg.JobRetention)
		defer cancel()
		s.run(jobCtx, job, req)
	}()

	return job.ID, nil
}

// SplitNow runs req on the calling goroutine and returns its result.
// onProgress, if non-nil, sees every progress update. The job is tracked
// only while it runs, so CancelAll reaches it but GetResult does not
// outlive it.
func (s *Service) SplitNow(ctx context.Context, req SplitRequest, onProgress ProgressFunc) (*SplitResult, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	jobCtx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()

	job := s.newJob(ctx, req, cancel)
	job.onProgress = onProgress

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.jobs, job.ID)
		s.mu.Unlock()
	}()

	s.run(jobCtx, job, req)

	res := job.snapshotResult()
	job.mu.Lock()
	err := job.err
	job.mu.Unlock()
	return res, err
}

// SubscribeProgress returns a channel of progress updates for jobID. The
// current state is sent first; the channel is closed when the job ends.
// Slow readers miss intermediate updates.
func (s *Service) SubscribeProgress(jobID string) (<-chan SplitProgress, error) {
	job, err := s.job(jobID)
	if err != nil {
		return nil, err
	}

	ch := make(chan SplitProgress, 16)

	job.mu.Lock()
	defer job.mu.Unlock()

	ch <- job.progress
	select {
	case <-job.Done:
		close(ch)
	default:
		job.listeners = append(job.listeners, ch)
	}
	return ch, nil
}

// GetProgress returns the job's current progress without blocking.
func (s *Service) GetProgress(jobID string) (SplitProgress, error) {
	job, err := s.job(jobID)
	if err != nil {
		return SplitProgress{}, err
	}
	job.mu.Lock()
	defer job.mu.Unlock()
	return job.progress, nil
}

// CancelSplit stops a running job. Cancelling a finished job is a no-op.
func (s *Service) CancelSplit(jobID string) error {
	job, err := s.job(jobID)
	if err != nil {
		return err
	}
	job.cancel()
	return nil
}

// GetResult blocks until the job finishes or ctx ends.
func (s *Service) GetResult(ctx context.Context, jobID string) (*SplitResult, error) {
	job, err := s.job(jobID)
	if err != nil {
		return nil, err
	}
	select {
	case <-job.Done:
		return job.snapshotResult(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Resave writes a finished job's records again, into dir or, if dir is
// empty, into the job's original output directory. It lets a caller retry
// after a storage failure without splitting again.
func (s *Service) Resave(ctx context.Context, jobID, dir string) (*SplitResult, error) {
	job, err := s.job(jobID)
	if err != nil {
		return nil, err
	}

	select {
	case <-job.Done:
	default:
		return nil, ErrJobRunning
	}

	job.mu.Lock()
	records := job.records
	prev := *job.result
	job.mu.Unlock()

	if len(records) == 0 {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrNoOutput)
	}
	if dir == "" {
		dir = prev.OutputDir
	}

	start := s.now()
	saved, saveErr := s.store.SaveRecords(ctx, records, dir)

	res := prev
	res.OutputDir = saved.Dir
	res.Files = saved.Created
	res.Failed = saved.Failed
	res.Duration = s.now().Sub(start)
	res.Error = ""
	if saveErr != nil {
		res.Error = saveErr.Error()
	}

	job.mu.Lock()
	job.result = &res
	job.mu.Unlock()

	status := history.StatusComplete
	if saveErr != nil {
		status = history.StatusPartial
		if len(saved.Created) == 0 {
			status = history.StatusFailed
		}
	}
	s.record(ctx, job, &res, status, "resave")

	slog.Info("split output saved again",
		"job_id", jobID,
		"dir", saved.Dir,
		"created", len(saved.Created),
		"failed", len(saved.Failed),
	)
	return &res, saveErr
}

// ListHistory returns up to limit recorded jobs, newest first.
func (s *Service) ListHistory(ctx context.Context, limit int) ([]history.Entry, error) {
	if s.history == nil {
		return []history.Entry{}, nil
	}
	return s.history.List(ctx, limit)
}

// LimiterStatus reports job slot usage.
func (s *Service) LimiterStatus() SplitLimiterStatus {
	return s.limiter.Status()
}

// WaitForJobs blocks until running jobs finish or ctx ends.
func (s *Service) WaitForJobs(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// CancelAll cancels every tracked job, including running SplitNow calls.
// Jobs stopped this way end as cancelled.
func (s *Service) CancelAll() {
	s.mu.RLock()
	jobs := make([]*activeJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	s.mu.RUnlock()

	for _, job := range jobs {
		job.cancel()
	}
}

func (s *Service) validate(req *SplitRequest) error {
	if req.ChunkSize < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidChunkSize, req.ChunkSize)
	}
	if req.Data == nil && req.Path == "" {
		return errors.New("no file provided")
	}
	if req.FileName == "" {
		req.FileName = filepath.Base(req.Path)
	}
	if req.Source == "" {
		req.Source = "api"
	}
	if req.Data != nil {
		return s.checkInput(req.FileName, int64(len(req.Data)))
	}
	if !IsCSV(req.FileName) {
		return fmt.Errorf("%w: %s", ErrUnsupportedFile, req.FileName)
	}
	return nil
}

func (s *Service) checkInput(name string, size int64) error {
	if !IsCSV(name) {
		return fmt.Errorf("%w: %s", ErrUnsupportedFile, name)
	}
	if s.cfg.MaxFileSize > 0 && size > s.cfg.MaxFileSize {
		return fmt.Errorf("%w: %s is %d bytes, limit %d", ErrFileTooLarge, name, size, s.cfg.MaxFileSize)
	}
	return nil
}

func (s *Service) newJob(ctx context.Context, req SplitRequest, cancel context.CancelFunc) *activeJob {
	id := uuid.New().String()
	return &activeJob{
		ID:       id,
		FileName: req.FileName,
		Source:   req.Source,
		Meta:     RequestMetaFrom(ctx),
		Cancel:   cancel,
		Done:     make(chan struct{}),
		progress: SplitProgress{
			JobID:    id,
			FileName: req.FileName,
			Phase:    PhaseStarting,
		},
	}
}

func (s *Service) job(jobID string) (*activeJob, error) {
	s.mu.RLock()
	job, ok := s.jobs[jobID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return job, nil
}

// cleanup removes the job from tracking after a delay.
func (s *Service) cleanup(jobID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.jobs, jobID)
		s.mu.Unlock()
	})
}

func (s *Service) logDetection(ctx context.Context, jobID string, info FileInfo) {
	attrs := []any{
		"job_id", jobID,
		"file", info.Name,
		"encoding", info.Detection.Tag,
		"confidence", info.Detection.Confidence,
		"reason", info.Detection.Reason,
	}
	if info.Detection.Ambiguous() {
		slog.DebugContext(ctx, "encoding detection fell back to gbk", attrs...)
		return
	}
	slog.DebugContext(ctx, "encoding detected", attrs...)
}

func (s *Service) record(ctx context.Context, job *activeJob, res *SplitResult, status history.Status, source string) {
	if s.history == nil {
		return
	}
	_, err := s.history.Record(context.WithoutCancel(ctx), history.Entry{
		JobID:       job.ID,
		FileName:    res.FileName,
		Source:      source,
		Encoding:    string(res.Encoding),
		Confidence:  string(res.Confidence),
		Rows:        res.Rows,
		ChunkSize:   res.ChunkSize,
		Chunks:      res.Chunks,
		FailedFiles: len(res.Failed),
		OutputDir:   res.OutputDir,
		Status:      status,
		Error:       res.Error,
		DurationMS:  res.Duration.Milliseconds(),
		IPAddress:   job.Meta.IPAddress,
		UserAgent:   job.Meta.UserAgent,
	})
	if err != nil {
		slog.Warn("record split history failed", "job_id", job.ID, "error", err)
	}
}
