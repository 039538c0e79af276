// Package ingest walks a directory of audio files, gives every track a
// stable identity, uploads it and publishes the merged catalog index.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"monty/internal/index"
	"monty/internal/logger"
	"monty/internal/lookup"
	"monty/internal/metadata"
	"monty/internal/objcache"
	"monty/pkg/utils"
)

type Hooks struct {
	OnFilesFound func(total int)
	OnProgress   func()
	OnWarning    func(msg string)
}

type Options struct {
	ParallelJobs     int
	DryRun           bool
	WriteIdentifiers bool
}

// FileError is a per-file failure. Failures never abort a run.
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string { return e.Path + ": " + e.Err.Error() }

// Report summarises a run.
type Report struct {
	Files       int
	Unsupported int
	Uploaded    int
	Published   bool
	Records     []metadata.TrackRecord
	Failures    []FileError
}

// Pipeline is safe to Run repeatedly; it is not meant for concurrent runs
// against the same index, since publishing is last-writer-wins.
type Pipeline struct {
	extractor *metadata.Extractor
	resolver  *lookup.Resolver
	cache     *objcache.Cache
	logger    *logger.Logger
	opts      Options
	Hooks     Hooks
}

func New(ex *metadata.Extractor, res *lookup.Resolver, cache *objcache.Cache, log *logger.Logger, opts Options) *Pipeline {
	if opts.ParallelJobs < 1 {
		opts.ParallelJobs = 1
	}
	return &Pipeline{extractor: ex, resolver: res, cache: cache, logger: log, opts: opts}
}

// Run executes the pipeline: walk → extract → resolve → upload → merge → publish.
func (p *Pipeline) Run(ctx context.Context, dir string) (Report, error) {
	var report Report

	if !p.opts.DryRun && !p.cache.Available() {
		return report, fmt.Errorf("cannot ingest %s: %w", dir, objcache.ErrStorageUnavailable)
	}

	files, err := utils.FindFiles(dir)
	if err != nil {
		return report, err
	}
	report.Files = len(files)

	var pending []metadata.TrackRecord
	for _, f := range files {
		rec, err := p.extractor.Extract(f)
		switch {
		case errors.Is(err, metadata.ErrUnsupportedFormat):
			p.logger.Debug("Skipping %s: %v", f, err)
			report.Unsupported++
		case err != nil:
			report.Failures = append(report.Failures, FileError{Path: f, Err: err})
		default:
			pending = append(pending, rec)
		}
	}

	p.logger.Info("=== Ingesting %d tracks from %s (%d parallel) ===", len(pending), dir, p.opts.ParallelJobs)
	if p.Hooks.OnFilesFound != nil {
		p.Hooks.OnFilesFound(len(pending))
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.ParallelJobs)

	for _, rec := range pending {
		g.Go(func() error {
			defer p.progress()

			resolved, err := p.processFile(gctx, rec)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, objcache.ErrStorageUnavailable):
				return err
			case err != nil:
				if gctx.Err() == nil {
					report.Failures = append(report.Failures, FileError{Path: rec.LocalPath, Err: err})
				}
			default:
				report.Records = append(report.Records, resolved)
				if !p.opts.DryRun {
					report.Uploaded++
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, fmt.Errorf("ingest aborted: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("ingest cancelled: %w", err)
	}

	index.SortRecords(report.Records)
	sort.Slice(report.Failures, func(i, j int) bool { return report.Failures[i].Path < report.Failures[j].Path })

	for _, f := range report.Failures {
		p.warn(f.Error())
	}

	if len(report.Records) == 0 {
		if len(report.Failures) > 0 {
			return report, fmt.Errorf("all %d tracks failed to ingest", len(report.Failures))
		}
		p.logger.Info("No tracks to ingest in %s", dir)
		return report, nil
	}

	if p.opts.DryRun {
		p.logger.Info("Dry run: resolved %d tracks, nothing uploaded", len(report.Records))
		return report, nil
	}

	if err := p.publish(ctx, report.Records); err != nil {
		return report, err
	}
	report.Published = true

	p.logger.Info("Ingest completed: %d uploaded, %d failed, %d skipped", report.Uploaded, len(report.Failures), report.Unsupported)
	return report, nil
}

func (p *Pipeline) processFile(ctx context.Context, rec metadata.TrackRecord) (metadata.TrackRecord, error) {
	resolved, tagged := p.taggedIdentifiers(rec)
	if !tagged {
		var err error
		resolved, err = p.resolver.ResolveTrack(ctx, rec)
		if err != nil {
			return rec, err
		}
	}
	p.logger.Debug("Resolved %s → %s/%s/%s", rec.LocalPath, resolved.ArtistID, resolved.ReleaseID, resolved.RecordingID)

	if p.opts.DryRun {
		return resolved, nil
	}

	if p.opts.WriteIdentifiers && !tagged {
		if err := metadata.WriteIdentifiers(resolved.LocalPath, resolved); err != nil {
			p.warn(fmt.Sprintf("could not tag %s: %v", resolved.LocalPath, err))
		}
	}

	if err := p.cache.Put(ctx, resolved.LocalPath, resolved); err != nil {
		return rec, err
	}
	return resolved, nil
}

// taggedIdentifiers returns rec with the identifiers a previous ingest
// wrote into the file. Writing them changes the file bytes, so a
// content-derived recording ID could not be recomputed from the file.
func (p *Pipeline) taggedIdentifiers(rec metadata.TrackRecord) (metadata.TrackRecord, bool) {
	if !p.opts.WriteIdentifiers {
		return rec, false
	}
	artistID, releaseID, recordingID, err := metadata.ReadIdentifiers(rec.LocalPath)
	if err != nil || artistID == "" || releaseID == "" || recordingID == "" {
		return rec, false
	}
	rec.ArtistID, rec.ReleaseID, rec.RecordingID = artistID, releaseID, recordingID
	return rec, true
}

// publish merges the new records over the current remote index. Another
// ingest publishing between the fetch and the put loses its records.
func (p *Pipeline) publish(ctx context.Context, records []metadata.TrackRecord) error {
	existing, err := p.cache.FetchIndex(ctx)
	if err != nil {
		return fmt.Errorf("failed to read index: %w", err)
	}

	merged := index.Merge(existing, index.FromRecords(records))
	if err := p.cache.PublishIndex(ctx, merged); err != nil {
		return fmt.Errorf("failed to publish index: %w", err)
	}
	p.logger.Info("Published index with %d tracks (%d new)", len(merged), len(merged)-len(existing))
	return nil
}

func (p *Pipeline) progress() {
	if p.Hooks.OnProgress != nil {
		p.Hooks.OnProgress()
	}
}

func (p *Pipeline) warn(msg string) {
	p.logger.Warn("%s", msg)
	if p.Hooks.OnWarning != nil {
		p.Hooks.OnWarning(msg)
	}
}
