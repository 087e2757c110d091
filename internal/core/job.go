package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/JonMunkholm/csvsplit/internal/history"
)

// run executes one job: load, detect, split, save. It always closes
// job.Done and leaves job.result set.
func (s *Service) run(ctx context.Context, job *activeJob, req SplitRequest) {
	start := s.now()
	res := &SplitResult{JobID: job.ID, FileName: job.FileName}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in split job", "job_id", job.ID, "file", job.FileName, "panic", r)
			res.Error = fmt.Sprintf("internal error: %v", r)
			job.fail(PhaseFailed, fmt.Errorf("internal error: %v", r))
		}
		res.Duration = s.now().Sub(start)
		s.record(ctx, job, res, historyStatus(job.phase(), res), job.Source)
		job.finish(res)
	}()

	job.setPhase(PhaseStarting)

	file, err := s.load(req)
	if err != nil {
		s.failJob(job, res, err)
		return
	}

	job.setPhase(PhaseDetecting)
	session := NewSession()
	defer session.Reset()

	info, err := session.Load(file)
	if err != nil {
		s.failJob(job, res, err)
		return
	}
	s.logDetection(ctx, job.ID, info)

	res.Encoding = info.Detection.Tag
	res.Confidence = info.Detection.Confidence
	res.Rows = info.DataRows
	res.ChunkSize = s.chunkSize(req.ChunkSize, info.DataRows)

	job.setPhase(PhaseSplitting)
	base := BaseName(file.Name)
	records, err := session.Split(ctx, res.ChunkSize,
		WithBOM(s.cfg.PreserveBOM && info.Detection.BOM),
		WithWorkers(s.cfg.Workers),
		WithProgress(func(done, total int) {
			job.update(func(p *SplitProgress) {
				p.ChunkIndex = done
				p.ChunkTotal = total
			})
		}),
	)
	if err != nil {
		s.failJob(job, res, s.contextErr(job, err))
		return
	}
	res.Chunks = len(records)

	job.mu.Lock()
	job.records = records
	job.mu.Unlock()

	dir := s.outputDir(req, file, base)
	job.setPhase(PhaseSaving)
	saved, err := s.store.SaveRecords(ctx, records, dir)
	res.OutputDir = saved.Dir
	res.Files = saved.Created
	res.Failed = saved.Failed
	job.update(func(p *SplitProgress) { p.Saved = len(saved.Created) })

	if err != nil {
		err = s.contextErr(job, err)
		if len(saved.Created) == 0 || errors.Is(err, ErrSplitCancelled) {
			s.failJob(job, res, err)
			return
		}
		// Some files were written; the job completes with the failures listed.
		res.Error = err.Error()
		job.mu.Lock()
		job.err = err
		job.mu.Unlock()
		slog.Warn("split saved with failures",
			"job_id", job.ID,
			"dir", saved.Dir,
			"created", len(saved.Created),
			"failed", len(saved.Failed),
		)
	}

	job.setPhase(PhaseComplete)
	slog.Info("split complete",
		"job_id", job.ID,
		"file", job.FileName,
		"rows", res.Rows,
		"chunks", res.Chunks,
		"chunk_size", res.ChunkSize,
		"encoding", res.Encoding,
		"confidence", res.Confidence,
		"dir", res.OutputDir,
		"duration_ms", s.now().Sub(start).Milliseconds(),
	)
}

func (s *Service) load(req SplitRequest) (RawFile, error) {
	if req.Data != nil {
		return RawFile{Path: req.Path, Name: req.FileName, Data: req.Data}, nil
	}
	file, err := s.store.LoadFile(req.Path)
	if err != nil {
		return RawFile{}, err
	}
	if req.FileName != "" {
		file.Name = req.FileName
	}
	return file, nil
}

func (s *Service) chunkSize(requested, rows int) int {
	switch {
	case requested > 0:
		return requested
	case s.cfg.DefaultChunkSize > 0:
		return s.cfg.DefaultChunkSize
	default:
		return SuggestChunkSize(rows)
	}
}

// outputDir picks the request's directory, else one next to the source
// file, else one under OutputRoot.
func (s *Service) outputDir(req SplitRequest, file RawFile, base string) string {
	now := s.now()
	switch {
	case req.OutputDir != "":
		return req.OutputDir
	case file.Path != "":
		return OutputDirFor(file.Path, now)
	default:
		return filepath.Join(s.cfg.OutputRoot, OutputDirName(base, now))
	}
}

// contextErr turns a context error caused by a cancel into ErrSplitCancelled.
func (s *Service) contextErr(job *activeJob, err error) error {
	if errors.Is(err, context.Canceled) && job.wasCancelled() {
		return fmt.Errorf("%w: %w", ErrSplitCancelled, err)
	}
	return err
}

func (s *Service) failJob(job *activeJob, res *SplitResult, err error) {
	res.Error = err.Error()
	phase := PhaseFailed
	if errors.Is(err, ErrSplitCancelled) {
		phase = PhaseCancelled
	}
	job.fail(phase, err)

	slog.Warn("split failed",
		"job_id", job.ID,
		"file", job.FileName,
		"phase", phase,
		"error", err,
	)
}

func historyStatus(phase SplitPhase, res *SplitResult) history.Status {
	switch {
	case phase == PhaseCancelled:
		return history.StatusCancelled
	case phase == PhaseFailed:
		return history.StatusFailed
	case len(res.Failed) > 0:
		return history.StatusPartial
	default:
		return history.StatusComplete
	}
}

func (job *activeJob) setPhase(phase SplitPhase) {
	job.update(func(p *SplitProgress) { p.Phase = phase })
}

func (job *activeJob) phase() SplitPhase {
	job.mu.Lock()
	defer job.mu.Unlock()
	return job.progress.Phase
}

func (job *activeJob) fail(phase SplitPhase, err error) {
	job.mu.Lock()
	job.err = err
	job.mu.Unlock()
	job.update(func(p *SplitProgress) {
		p.Phase = phase
		p.Error = err.Error()
	})
}

// cancel stops the job and marks the stop as a user or shutdown cancel.
func (job *activeJob) cancel() {
	job.mu.Lock()
	job.cancelled = true
	job.mu.Unlock()
	job.Cancel()
}

func (job *activeJob) wasCancelled() bool {
	job.mu.Lock()
	defer job.mu.Unlock()
	return job.cancelled
}

// update applies fn to the progress and fans the new state out. Listener
// sends never block; a full listener misses this update.
func (job *activeJob) update(fn func(*SplitProgress)) {
	job.mu.Lock()
	fn(&job.progress)
	p := job.progress
	for _, ch := range job.listeners {
		select {
		case ch <- p:
		default:
		}
	}
	onProgress := job.onProgress
	job.mu.Unlock()

	if onProgress != nil {
		onProgress(p)
	}
}

// finish stores the result, closes listeners and marks the job done.
func (job *activeJob) finish(res *SplitResult) {
	job.mu.Lock()
	defer job.mu.Unlock()

	job.result = res
	for _, ch := range job.listeners {
		close(ch)
	}
	job.listeners = nil
	close(job.Done)
}

func (job *activeJob) snapshotResult() *SplitResult {
	job.mu.Lock()
	defer job.mu.Unlock()
	if job.result == nil {
		return nil
	}
	res := *job.result
	return &res
}
