package service

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/text/language"

	"github.com/MimeLyc/subtitle-batch-translator/internal/format"
	"github.com/MimeLyc/subtitle-batch-translator/internal/subtitle"
	"github.com/MimeLyc/subtitle-batch-translator/internal/translator"
)

// Report summarizes one translated file.
type Report struct {
	RunID          string                  `json:"run_id"`
	JobID          string                  `json:"job_id,omitempty"`
	InputPath      string                  `json:"input_path"`
	OutputPath     string                  `json:"output_path"`
	SourceLanguage language.Tag            `json:"source_language"`
	TargetLanguage language.Tag            `json:"target_language"`
	Mode           format.Mode             `json:"mode"`
	Backend        string                  `json:"backend"`
	Entries        int                     `json:"entries"`
	Characters     int                     `json:"characters"`
	Batches        int                     `json:"batches"`
	Requests       int                     `json:"requests"`
	CacheHits      int                     `json:"cache_hits"`
	Checkpointed   int                     `json:"checkpointed"`
	Fallbacks      int                     `json:"fallbacks"`
	Degraded       int                     `json:"degraded"`
	Recovered      int                     `json:"recovered"`
	GlossaryTerms  int                     `json:"glossary_terms"`
	Providers      map[string]int          `json:"providers"`
	Duration       time.Duration           `json:"duration"`
	BatchStats     []translator.BatchStats `json:"batch_stats"`
}

func newReport(req FileRequest, src *subtitle.File, result *translator.Result, primary string, took time.Duration) *Report {
	r := &Report{
		RunID:          result.RunID,
		JobID:          req.JobID,
		InputPath:      req.InputPath,
		OutputPath:     req.OutputPath,
		SourceLanguage: src.Language,
		TargetLanguage: req.TargetLanguage,
		Mode:           req.Mode,
		Backend:        primary,
		Entries:        len(result.Entries),
		Batches:        len(result.Batches),
		Degraded:       result.Degraded,
		Providers:      map[string]int{},
		Duration:       took,
		BatchStats:     result.Batches,
	}
	for _, e := range src.Entries {
		r.Characters += utf8.RuneCountInString(e.Text)
	}
	for _, s := range result.Batches {
		r.Requests += s.Requests
		r.CacheHits += s.CacheHits
		r.Recovered += s.Mismatch.Recovered
		if s.FromCheckpoint {
			r.Checkpointed++
		}
		if s.Fallback {
			r.Fallbacks++
		}
		if s.Provider != "" {
			r.Providers[s.Provider]++
		}
	}
	return r
}

// Render writes the summary table to w.
func (r *Report) Render(w io.Writer) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle("Translation Report")

	providers := make([]string, 0, len(r.Providers))
	for name, n := range r.Providers {
		providers = append(providers, fmt.Sprintf("%s (%d)", name, n))
	}
	sort.Strings(providers)

	tw.AppendRows([]table.Row{
		{"Input", r.InputPath},
		{"Output", r.OutputPath},
		{"Languages", fmt.Sprintf("%s -> %s", r.SourceLanguage, r.TargetLanguage)},
		{"Mode", r.Mode},
		{"Backend", r.Backend},
		{"Providers", strings.Join(providers, ", ")},
		{"Entries", r.Entries},
		{"Characters", r.Characters},
		{"Batches", r.Batches},
		{"Requests", r.Requests},
		{"Cache hits", r.CacheHits},
		{"From checkpoint", r.Checkpointed},
		{"Fallbacks", r.Fallbacks},
		{"Recovered", r.Recovered},
		{"Glossary terms", r.GlossaryTerms},
		{"Untranslated", r.Degraded},
		{"Duration", r.Duration.Round(time.Millisecond)},
	})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft},
		{Number: 2, Align: text.AlignLeft},
	})
	tw.Render()
}

// RenderBatches writes one row per batch to w.
func (r *Report) RenderBatches(w io.Writer) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"#", "IDs", "Provider", "Requests", "Cache", "Parsed", "Missing", "Degraded", "State"})
	for _, s := range r.BatchStats {
		provider := s.Provider
		switch {
		case s.FromCheckpoint:
			provider = "checkpoint"
		case s.Fallback:
			provider += " (fallback)"
		}
		tw.AppendRow(table.Row{
			s.Index,
			strconv.Itoa(s.StartID) + "-" + strconv.Itoa(s.EndID),
			provider,
			s.Requests,
			s.CacheHits,
			s.Mismatch.Parsed,
			s.Mismatch.Missing,
			s.Mismatch.Degraded,
			s.Mismatch.State,
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
		{Number: 8, Align: text.AlignRight},
	})
	tw.Render()
}
