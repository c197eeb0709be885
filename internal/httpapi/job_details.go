package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/language"

	"github.com/MimeLyc/subtitle-batch-translator/internal/jobs"
	"github.com/MimeLyc/subtitle-batch-translator/internal/subtitle"
	"github.com/MimeLyc/subtitle-batch-translator/internal/translator"
)

const (
	defaultJobPreviewLimit = 80
	maxJobPreviewLimit     = 500
)

var (
	errJobNotFound     = errors.New("job not found")
	errJobInProgress   = errors.New("job is running")
	errJobNotCompleted = errors.New("job is not completed")
	errInvalidLine     = errors.New("entry id out of range")
)

type jobDetailResponse struct {
	Job           *jobs.TranslationJob `json:"job"`
	Progress      jobProgressResponse  `json:"progress"`
	Preview       []jobPreviewLine     `json:"preview"`
	PreviewOffset int                  `json:"preview_offset"`
	PreviewLimit  int                  `json:"preview_limit"`
	Editable      bool                 `json:"editable"`
}

type jobProgressResponse struct {
	TranslatedLines int     `json:"translated_lines"`
	TotalLines      int     `json:"total_lines"`
	Percent         float64 `json:"percent"`
}

type jobPreviewLine struct {
	ID             int    `json:"id"`
	Timecode       string `json:"timecode"`
	OriginalText   string `json:"original_text"`
	TranslatedText string `json:"translated_text"`
	Untranslated   bool   `json:"untranslated,omitempty"`
}

type updateJobLinesRequest struct {
	Lines []updateJobLineRequest `json:"lines"`
}

type updateJobLineRequest struct {
	ID             int    `json:"id"`
	TranslatedText string `json:"translated_text"`
}

type jobSnapshot struct {
	Job          *jobs.TranslationJob
	Source       []subtitle.Entry
	Output       []subtitle.Entry
	TranslatedBy map[int]string
	Total        int
}

func (s *Server) handleJobDetail(w http.ResponseWriter, r *http.Request) {
	offset := parsePositiveIntWithDefault(r.URL.Query().Get("offset"), 0)
	limit := parsePositiveIntWithDefault(r.URL.Query().Get("limit"), defaultJobPreviewLimit)
	if limit <= 0 {
		limit = defaultJobPreviewLimit
	}
	if limit > maxJobPreviewLimit {
		limit = maxJobPreviewLimit
	}

	detail, err := s.buildJobDetail(r.Context(), chi.URLParam(r, "id"), offset, limit)
	if err != nil {
		switch {
		case errors.Is(err, errJobNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleUpdateJobLines(w http.ResponseWriter, r *http.Request) {
	var req updateJobLinesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if len(req.Lines) == 0 {
		writeError(w, http.StatusBadRequest, "lines is required")
		return
	}

	detail, err := s.updateJobLines(r.Context(), chi.URLParam(r, "id"), req.Lines)
	if err != nil {
		switch {
		case errors.Is(err, errJobNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, errJobInProgress):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, errJobNotCompleted), errors.Is(err, errInvalidLine):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func parsePositiveIntWithDefault(raw string, def int) int {
	if strings.TrimSpace(raw) == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

func (s *Server) buildJobDetail(ctx context.Context, jobID string, offset, limit int) (jobDetailResponse, error) {
	job, ok := s.queue.Get(jobID)
	if !ok {
		return jobDetailResponse{}, errJobNotFound
	}

	snapshot, err := s.buildSnapshot(ctx, job)
	if err != nil {
		return jobDetailResponse{}, err
	}

	return jobDetailResponse{
		Job:           snapshot.Job,
		Progress:      computeJobProgress(snapshot),
		Preview:       buildPreviewLines(snapshot, offset, limit),
		PreviewOffset: offset,
		PreviewLimit:  limit,
		Editable:      snapshot.Job.Status == jobs.StatusSuccess,
	}, nil
}

func (s *Server) updateJobLines(ctx context.Context, jobID string, patches []updateJobLineRequest) (jobDetailResponse, error) {
	job, ok := s.queue.Get(jobID)
	if !ok {
		return jobDetailResponse{}, errJobNotFound
	}
	if job.Status == jobs.StatusPending || job.Status == jobs.StatusRunning {
		return jobDetailResponse{}, errJobInProgress
	}
	if job.Status != jobs.StatusSuccess {
		return jobDetailResponse{}, errJobNotCompleted
	}

	snapshot, err := s.buildSnapshot(ctx, job)
	if err != nil {
		return jobDetailResponse{}, err
	}
	if snapshot.Total <= 0 {
		return jobDetailResponse{}, fmt.Errorf("no subtitle entries found for job %s", jobID)
	}

	writable := makeWritableEntries(snapshot)
	for _, patch := range patches {
		if patch.ID <= 0 || patch.ID > len(writable) {
			return jobDetailResponse{}, errInvalidLine
		}
		writable[patch.ID-1].Text = patch.TranslatedText
	}

	tag, err := language.Parse(job.Payload.TargetLanguage)
	if err != nil {
		tag = language.Und
	}
	path := job.Payload.OutputFile
	if err := subtitle.NewWriter().Write(path, &subtitle.File{
		Entries:  writable,
		Language: tag,
		Format:   "SRT",
		Path:     path,
	}); err != nil {
		return jobDetailResponse{}, err
	}

	return s.buildJobDetail(ctx, jobID, 0, defaultJobPreviewLimit)
}

func (s *Server) buildSnapshot(ctx context.Context, job *jobs.TranslationJob) (jobSnapshot, error) {
	source, err := readEntriesIfFileExists(job.Payload.SubtitleFile)
	if err != nil {
		return jobSnapshot{}, err
	}
	output, err := readEntriesIfFileExists(job.Payload.OutputFile)
	if err != nil {
		return jobSnapshot{}, err
	}

	translations := make(map[int]string)
	// a finished output file is authoritative; checkpoints only matter
	// while it has not been written yet
	if len(output) == 0 {
		translations, err = s.loadCheckpointTranslations(ctx, job.ID)
		if err != nil {
			return jobSnapshot{}, err
		}
	}
	for _, e := range output {
		if strings.TrimSpace(e.Text) != "" {
			translations[e.ID] = e.Text
		}
	}

	total := max(len(source), len(output))
	for id := range translations {
		total = max(total, id)
	}

	return jobSnapshot{
		Job:          job,
		Source:       source,
		Output:       output,
		TranslatedBy: translations,
		Total:        total,
	}, nil
}

func computeJobProgress(snapshot jobSnapshot) jobProgressResponse {
	job := snapshot.Job
	if job.Status == jobs.StatusRunning && job.Progress.Total > 0 {
		return jobProgressResponse{
			TranslatedLines: job.Progress.Completed,
			TotalLines:      job.Progress.Total,
			Percent:         job.Progress.Percent(),
		}
	}
	if snapshot.Total <= 0 {
		return jobProgressResponse{}
	}
	done := 0
	for id := 1; id <= snapshot.Total; id++ {
		if strings.TrimSpace(snapshot.TranslatedBy[id]) != "" {
			done++
		}
	}
	return jobProgressResponse{
		TranslatedLines: done,
		TotalLines:      snapshot.Total,
		Percent:         (float64(done) / float64(snapshot.Total)) * 100,
	}
}

func buildPreviewLines(snapshot jobSnapshot, offset, limit int) []jobPreviewLine {
	total := snapshot.Total
	if total <= 0 || offset >= total {
		return []jobPreviewLine{}
	}
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultJobPreviewLimit
	}

	end := min(total, offset+limit)
	ret := make([]jobPreviewLine, 0, end-offset)
	for i := offset; i < end; i++ {
		line := jobPreviewLine{ID: i + 1}
		if i < len(snapshot.Source) {
			line.Timecode = snapshot.Source[i].Timecode
			line.OriginalText = snapshot.Source[i].Text
		}
		line.TranslatedText = snapshot.TranslatedBy[i+1]
		line.Untranslated = strings.HasPrefix(line.TranslatedText, translator.MissingSentinel)
		ret = append(ret, line)
	}
	return ret
}

func makeWritableEntries(snapshot jobSnapshot) []subtitle.Entry {
	ret := make([]subtitle.Entry, snapshot.Total)
	for i := range ret {
		var base subtitle.Entry
		switch {
		case i < len(snapshot.Output):
			base = snapshot.Output[i]
		case i < len(snapshot.Source):
			base = snapshot.Source[i]
		}
		base.ID = i + 1
		if text, ok := snapshot.TranslatedBy[base.ID]; ok {
			base.Text = text
		}
		ret[i] = base
	}
	return ret
}

func readEntriesIfFileExists(path string) ([]subtitle.Entry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	file, err := subtitle.NewReader().Read(path)
	if err != nil {
		return nil, err
	}
	return file.Entries, nil
}

func (s *Server) loadCheckpointTranslations(ctx context.Context, jobID string) (map[int]string, error) {
	ret := make(map[int]string)
	if s.jobData == nil {
		return ret, nil
	}
	checkpoints, err := s.jobData.LoadBatchCheckpoints(ctx, jobID)
	if err != nil {
		return nil, err
	}
	for _, cp := range checkpoints {
		for _, e := range cp.Entries {
			if e.ID <= 0 || e.Text == "" {
				continue
			}
			ret[e.ID] = e.Text
		}
	}
	return ret, nil
}
