package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/MimeLyc/subtitle-batch-translator/internal/config"
	"github.com/MimeLyc/subtitle-batch-translator/internal/format"
	"github.com/MimeLyc/subtitle-batch-translator/internal/glossary"
	"github.com/MimeLyc/subtitle-batch-translator/internal/subtitle"
	"github.com/MimeLyc/subtitle-batch-translator/internal/translator"
	"github.com/MimeLyc/subtitle-batch-translator/pkg/file"
	"github.com/MimeLyc/subtitle-batch-translator/pkg/log"
)

// Engine is the part of translator.Engine the runner needs.
type Engine interface {
	Run(ctx context.Context, job translator.Job, entries []subtitle.Entry, hooks translator.Hooks) (*translator.Result, error)
	Primary() string
}

// FileRequest describes one subtitle file to translate. Zero fields fall
// back to the runner's configuration.
type FileRequest struct {
	InputPath      string
	OutputPath     string
	TargetLanguage language.Tag
	Mode           format.Mode
	Instructions   string
	// GlossaryPath overrides the glossary found next to the input.
	GlossaryPath string
	// JobID enables batch checkpoints when the runner has a store.
	JobID      string
	OnProgress translator.ProgressFunc
}

// Runner reads, translates and writes subtitle files.
type Runner struct {
	cfg         *config.Config
	engine      Engine
	reader      subtitle.Reader
	writer      subtitle.Writer
	checkpoints checkpointBackend
}

type RunnerOption func(*Runner)

// WithCheckpointStore persists committed batches of jobs with an id.
func WithCheckpointStore(store checkpointBackend) RunnerOption {
	return func(r *Runner) { r.checkpoints = store }
}

func NewRunner(cfg *config.Config, engine Engine, opts ...RunnerOption) *Runner {
	r := &Runner{
		cfg:    cfg,
		engine: engine,
		reader: subtitle.NewReader(),
		writer: subtitle.NewWriter(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TranslateFile translates one SRT file and writes the result next to it
// (or to req.OutputPath).
func (r *Runner) TranslateFile(ctx context.Context, req FileRequest) (*Report, error) {
	started := time.Now()
	if strings.TrimSpace(req.InputPath) == "" {
		return nil, NewError(ErrValidation, "input path is required")
	}
	if req.TargetLanguage == language.Und {
		req.TargetLanguage = r.cfg.Translate.TargetLanguage
	}
	if req.Mode == "" {
		req.Mode = r.cfg.Translate.FormatMode()
	}
	if req.Instructions == "" {
		req.Instructions = r.cfg.Translate.Instructions
	}
	if req.OutputPath == "" {
		req.OutputPath = OutputPath(req.InputPath, "", req.TargetLanguage)
	}

	src, err := r.reader.Read(req.InputPath)
	if err != nil {
		if _, statErr := os.Stat(req.InputPath); errors.Is(statErr, os.ErrNotExist) {
			return nil, NewErrorWithCause(ErrFileNotFound, "subtitle file not found", err).WithContext("path", req.InputPath)
		}
		return nil, NewErrorWithCause(ErrParse, "failed to read subtitle file", err).WithContext("path", req.InputPath)
	}
	log.Info("Translating %s (%d entries, %s -> %s, mode=%s)",
		req.InputPath, len(src.Entries), src.Language, req.TargetLanguage, req.Mode)

	terms, err := glossaryTerms(req, src)
	if err != nil {
		return nil, NewErrorWithCause(ErrFileRead, "failed to load glossary", err).WithContext("path", req.GlossaryPath)
	}
	if extra := glossary.Instructions(terms); extra != "" {
		if req.Instructions != "" {
			req.Instructions += "\n"
		}
		req.Instructions += extra
	}

	hooks := translator.Hooks{OnProgress: req.OnProgress}
	if r.checkpoints != nil && req.JobID != "" {
		cp, err := newPersistentCheckpointStore(ctx, r.checkpoints, req.JobID)
		if err != nil {
			log.Warn("Job %s: checkpoints unavailable: %v", req.JobID, err)
		} else {
			if n := cp.Len(); n > 0 {
				log.Info("Job %s: resuming with %d checkpointed batches", req.JobID, n)
			}
			hooks.Checkpoints = cp
		}
	}

	job := translator.Job{
		ID:              req.JobID,
		TargetLanguage:  req.TargetLanguage,
		SourceHint:      src.Language,
		Instructions:    req.Instructions,
		Mode:            req.Mode,
		Concurrency:     r.cfg.Translate.Concurrency,
		Streaming:       r.cfg.Translate.Streaming,
		ContextWindow:   r.cfg.Translate.ContextWindow,
		MismatchRetries: r.cfg.Translate.MismatchRetries,
	}
	result, err := r.engine.Run(ctx, job, src.Entries, hooks)
	if err != nil {
		return nil, NewErrorWithCause(ErrTranslation, "failed to translate subtitles", err).WithContext("path", req.InputPath)
	}

	out := &subtitle.File{
		Entries:  result.Entries,
		Language: req.TargetLanguage,
		Format:   src.Format,
		Path:     req.OutputPath,
	}
	if err := r.writer.Write(req.OutputPath, out); err != nil {
		return nil, NewErrorWithCause(ErrFileWrite, "failed to save translation results", err).WithContext("path", req.OutputPath)
	}

	report := newReport(req, src, result, r.engine.Primary(), time.Since(started))
	report.GlossaryTerms = len(terms)
	log.Info("Translated %s -> %s: %d entries in %d batches, %d degraded, %v",
		req.InputPath, req.OutputPath, report.Entries, report.Batches, report.Degraded, report.Duration.Round(time.Millisecond))
	return report, nil
}

// glossaryTerms returns the glossary terms used by src. Without an explicit
// path the nearest glossary for the language pair is used, if any.
func glossaryTerms(req FileRequest, src *subtitle.File) ([]glossary.Term, error) {
	path := req.GlossaryPath
	if path == "" && src.Language != language.Und {
		path = glossary.Find(filepath.Dir(req.InputPath), src.Language, req.TargetLanguage)
	}
	if path == "" {
		return nil, nil
	}
	g, err := glossary.Load(path)
	if err != nil {
		return nil, err
	}
	terms := glossary.Match(g, subtitle.Texts(src.Entries))
	log.Info("Glossary %s: %d of %d terms occur in %s", path, len(terms), len(g), req.InputPath)
	return terms, nil
}

// OutputPath names the translation of input: "<name>.<lang>.srt" in
// outputDir, or next to input when outputDir is empty.
func OutputPath(input, outputDir string, target language.Tag) string {
	ret := file.LanguageVariant(input, target.String())
	if outputDir != "" {
		ret = filepath.Join(outputDir, filepath.Base(ret))
	}
	return ret
}
