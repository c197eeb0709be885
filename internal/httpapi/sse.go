package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/MimeLyc/subtitle-batch-translator/internal/jobs"
)

// keepAliveTicks is how many unchanged polls pass before a comment line
// is written to keep proxies from closing the stream.
const keepAliveTicks = 15

// handleJobStream sends a "jobs" event with the (optionally status
// filtered) job list whenever it changes, until the client goes away.
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	status := jobs.Status(r.URL.Query().Get("status"))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	var (
		last []byte
		idle int
	)
	poll := func() error {
		payload, err := json.Marshal(filterJobs(s.queue.List(), status))
		if err != nil {
			return err
		}
		if bytes.Equal(payload, last) {
			if idle++; idle < keepAliveTicks {
				return nil
			}
			idle = 0
			_, err = fmt.Fprint(w, ": keep-alive\n\n")
		} else {
			last, idle = payload, 0
			_, err = fmt.Fprintf(w, "event: jobs\ndata: %s\n\n", payload)
		}
		if err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := poll(); err != nil {
		return
	}

	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := poll(); err != nil {
				return
			}
		}
	}
}
