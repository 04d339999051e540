package api

import (
	"net/http"
	"time"

	"github.com/daewon/plantops/internal/masters"
	"github.com/daewon/plantops/internal/sse"
)

const streamHeartbeat = 25 * time.Second

// StreamMasters handles GET /api/masters/stream. Each connection owns a
// projection that is started when the client connects and stopped when it
// goes away; every new view is sent as a masters.updated event.
//
//	@Summary		Live master vocabularies (Server-Sent Events)
//	@Tags			masters
//	@Produce		text/event-stream
//	@Success		200
//	@Security		SessionAuth
//	@Router			/masters/stream [get]
func (h *Handler) StreamMasters(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Latest view wins; the writer below never falls behind by more than one.
	updates := make(chan masters.Snapshot, 1)
	proj := masters.New(h.store, h.logger)
	cancel := proj.OnChange(func(s masters.Snapshot) {
		for {
			select {
			case updates <- s:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	defer cancel()

	sse.PrepareStream(w)
	flusher.Flush()

	proj.Start()
	defer proj.Stop()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case snap := <-updates:
			msg, err := sse.Format(sse.Event{Type: sse.TypeMastersUpdated, Data: snap})
			if err != nil {
				h.logger.Error("masters stream encode failed")
				return
			}
			if _, err := w.Write(msg); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
