package publicapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/jobmesh-project/jobmesh/pkg/system"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// getBids serves the bids recorded for a job. A plain GET returns the full
// list; a websocket upgrade turns into a live feed of bids as they arrive.
// A feed reader that stops draining misses bids; the list is the complete
// record.
func (apiServer *APIServer) getBids(res http.ResponseWriter, req *http.Request) {
	ctx, span := system.GetTracer().Start(req.Context(), "pkg/publicapi.getBids")
	defer span.End()

	jobID := mux.Vars(req)["id"]

	if !websocket.IsWebSocketUpgrade(req) {
		bids, err := apiServer.store.GetBids(ctx, jobID)
		if err != nil {
			httpError(res, err)
			return
		}
		writeJSON(res, http.StatusOK, bids)
		return
	}

	if _, err := apiServer.store.GetJob(ctx, jobID); err != nil {
		httpError(res, err)
		return
	}

	conn, err := upgrader.Upgrade(res, req, nil)
	if err != nil {
		http.Error(res, err.Error(), http.StatusInternalServerError)
		return
	}
	defer conn.Close()
	log.Ctx(ctx).Debug().Str("JobID", jobID).Msg("new bid stream connection")

	stream, cancel := apiServer.marketplace.SubscribeBids(jobID)
	defer cancel()

	// exit when the client disconnects
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case bid, ok := <-stream:
			if !ok {
				return
			}
			if err := conn.WriteJSON(bid); err != nil {
				log.Ctx(ctx).Debug().Err(err).Str("JobID", jobID).
					Msg("error writing bid to stream, closing")
				return
			}
		case <-closed:
			return
		case <-req.Context().Done():
			return
		}
	}
}
