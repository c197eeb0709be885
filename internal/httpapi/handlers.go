package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/language"

	"github.com/MimeLyc/subtitle-batch-translator/internal/format"
	"github.com/MimeLyc/subtitle-batch-translator/internal/jobs"
	"github.com/MimeLyc/subtitle-batch-translator/internal/service"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, filterJobs(s.queue.List(), jobs.Status(r.URL.Query().Get("status"))))
}

// filterJobs keeps the jobs in status; an empty status keeps all of them.
func filterJobs(list []*jobs.TranslationJob, status jobs.Status) []*jobs.TranslationJob {
	if status == "" {
		return list
	}
	ret := make([]*jobs.TranslationJob, 0, len(list))
	for _, job := range list {
		if job.Status == status {
			ret = append(ret, job)
		}
	}
	return ret
}

type enqueueJobRequest struct {
	Source         string `json:"source"`
	SubtitlePath   string `json:"subtitle_path"`
	OutputPath     string `json:"output_path"`
	TargetLanguage string `json:"target_language"`
	Mode           string `json:"mode"`
	Instructions   string `json:"instructions"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req enqueueJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	payload, err := s.payloadFor(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Source == "" {
		req.Source = "manual"
	}

	job, created := s.queue.Enqueue(jobs.EnqueueRequest{
		Source:    req.Source,
		DedupeKey: payload.DedupeKey(),
		Payload:   payload,
	})
	code := http.StatusCreated
	if !created {
		code = http.StatusOK
	}
	writeJSON(w, code, map[string]any{
		"created": created,
		"job":     job,
	})
}

// payloadFor validates req and fills in the configured defaults.
func (s *Server) payloadFor(req enqueueJobRequest) (jobs.JobPayload, error) {
	path := strings.TrimSpace(req.SubtitlePath)
	if path == "" {
		return jobs.JobPayload{}, errors.New("subtitle_path is required")
	}
	if !strings.EqualFold(filepath.Ext(path), ".srt") {
		return jobs.JobPayload{}, errors.New("subtitle_path must be an .srt file")
	}

	target := s.cfg.Translate.TargetLanguage
	if req.TargetLanguage != "" {
		tag, err := language.Parse(req.TargetLanguage)
		if err != nil {
			return jobs.JobPayload{}, errors.New("invalid target_language")
		}
		target = tag
	}
	mode := s.cfg.Translate.FormatMode()
	if req.Mode != "" {
		m, err := format.ParseMode(req.Mode)
		if err != nil {
			return jobs.JobPayload{}, err
		}
		mode = m
	}
	output := strings.TrimSpace(req.OutputPath)
	if output == "" {
		output = service.OutputPath(path, "", target)
	}
	instructions := req.Instructions
	if instructions == "" {
		instructions = s.cfg.Translate.Instructions
	}

	return jobs.JobPayload{
		SubtitleFile:   path,
		OutputFile:     output,
		TargetLanguage: target.String(),
		Mode:           string(mode),
		Instructions:   instructions,
	}, nil
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.queue.Cancel(chi.URLParam(r, "id"))
	if err != nil {
		writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleRetryJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.queue.Retry(chi.URLParam(r, "id"))
	if err != nil {
		writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func writeQueueError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, jobs.ErrJobFinished),
		errors.Is(err, jobs.ErrJobNotRetryable),
		errors.Is(err, jobs.ErrJobDuplicate):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if s.scanner == nil {
		writeError(w, http.StatusNotImplemented, "inbox scanning is not configured")
		return
	}
	n, err := s.scanner.Scan(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"queued": n,
	})
}

type scheduleResponse struct {
	Expression string    `json:"expression"`
	InboxDir   string    `json:"inbox_dir"`
	Next       time.Time `json:"next"`
	Last       time.Time `json:"last"`
	LastScan   time.Time `json:"last_scan"`
	UntilNext  string    `json:"until_next"`
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	if s.scanner == nil {
		writeError(w, http.StatusNotImplemented, "inbox scanning is not configured")
		return
	}
	info, err := s.scanner.TriggerInfo(time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, scheduleResponse{
		Expression: info.Expression,
		InboxDir:   s.cfg.Schedule.InboxDir,
		Next:       info.Next,
		Last:       info.Last,
		LastScan:   s.scanner.LastScan(),
		UntilNext:  info.TimeUntilNext.Round(time.Second).String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}
