package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"invoicedesk/backend/internal/feed"
)

// handleStream pushes collection snapshots as server-sent events until the
// client goes away. A comment line is written every heartbeat interval so
// idle proxies keep the connection open.
func (a *API) handleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	collection := feed.Collection(r.PathValue("collection"))

	snapshots, err := a.service.Watch(ctx, collection)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		a.log.Warn().Err(err).Msg("stream flush unsupported")
		return
	}

	heartbeat := a.heartbeat
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case snapshot, ok := <-snapshots:
			if !ok {
				return
			}
			payload, err := json.Marshal(snapshot)
			if err != nil {
				a.log.Error().Err(err).Str("collection", string(collection)).Msg("encode snapshot")
				continue
			}
			if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", payload); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
