package publicapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/jobmesh-project/jobmesh/pkg/jobstore"
	"github.com/jobmesh-project/jobmesh/pkg/models"
	"github.com/jobmesh-project/jobmesh/pkg/system"
)

type submitBidResponse struct {
	Bid models.Bid `json:"Bid"`
}

func (apiServer *APIServer) submitJob(res http.ResponseWriter, req *http.Request) {
	ctx, span := system.GetTracer().Start(req.Context(), "pkg/publicapi.submitJob")
	defer span.End()

	var request models.JobRequest
	if err := json.NewDecoder(req.Body).Decode(&request); err != nil {
		http.Error(res, err.Error(), http.StatusBadRequest)
		return
	}

	job, err := apiServer.marketplace.SubmitJob(ctx, request)
	if err != nil {
		if verr := request.Validate(); verr != nil {
			http.Error(res, verr.Error(), http.StatusBadRequest)
			return
		}
		httpError(res, err)
		return
	}
	writeJSON(res, http.StatusCreated, job)
}

func (apiServer *APIServer) listJobs(res http.ResponseWriter, req *http.Request) {
	ctx, span := system.GetTracer().Start(req.Context(), "pkg/publicapi.listJobs")
	defer span.End()

	query := jobstore.JobQuery{
		Worker: req.URL.Query().Get("worker"),
	}
	if statusParam := req.URL.Query().Get("status"); statusParam != "" {
		status, ok := models.ParseJobStateType(statusParam)
		if !ok {
			http.Error(res, fmt.Sprintf("unknown job state %q", statusParam), http.StatusBadRequest)
			return
		}
		query.Status = status
	}
	if limitParam := req.URL.Query().Get("limit"); limitParam != "" {
		limit, err := strconv.ParseUint(limitParam, 10, 32)
		if err != nil {
			http.Error(res, err.Error(), http.StatusBadRequest)
			return
		}
		query.Limit = uint32(limit)
	}

	jobs, err := apiServer.store.GetJobs(ctx, query)
	if err != nil {
		httpError(res, err)
		return
	}
	writeJSON(res, http.StatusOK, jobs)
}

func (apiServer *APIServer) getJob(res http.ResponseWriter, req *http.Request) {
	ctx, span := system.GetTracer().Start(req.Context(), "pkg/publicapi.getJob")
	defer span.End()

	job, err := apiServer.store.GetJob(ctx, mux.Vars(req)["id"])
	if err != nil {
		httpError(res, err)
		return
	}
	writeJSON(res, http.StatusOK, job)
}

func (apiServer *APIServer) beginBidding(res http.ResponseWriter, req *http.Request) {
	ctx, span := system.GetTracer().Start(req.Context(), "pkg/publicapi.beginBidding")
	defer span.End()

	announcement, err := apiServer.marketplace.OpenBidding(ctx, mux.Vars(req)["id"])
	if err != nil {
		httpError(res, err)
		return
	}
	writeJSON(res, http.StatusOK, announcement)
}

func (apiServer *APIServer) submitBid(res http.ResponseWriter, req *http.Request) {
	ctx, span := system.GetTracer().Start(req.Context(), "pkg/publicapi.submitBid")
	defer span.End()

	var bid models.Bid
	if err := json.NewDecoder(req.Body).Decode(&bid); err != nil {
		http.Error(res, err.Error(), http.StatusBadRequest)
		return
	}
	bid.JobID = mux.Vars(req)["id"]

	stored, err := apiServer.marketplace.SubmitBid(ctx, bid)
	if err != nil {
		if verr := bid.Validate(); verr != nil {
			http.Error(res, verr.Error(), http.StatusBadRequest)
			return
		}
		httpError(res, err)
		return
	}
	writeJSON(res, http.StatusAccepted, submitBidResponse{Bid: stored})
}

func (apiServer *APIServer) assign(res http.ResponseWriter, req *http.Request) {
	ctx, span := system.GetTracer().Start(req.Context(), "pkg/publicapi.assign")
	defer span.End()

	jobID := mux.Vars(req)["id"]
	winner, err := apiServer.marketplace.Assign(ctx, jobID)
	if err != nil {
		httpError(res, err)
		return
	}
	log.Ctx(ctx).Debug().Str("JobID", jobID).Str("Executor", winner.Bid.Bidder).
		Msg("assignment requested over the API")
	writeJSON(res, http.StatusOK, winner)
}

func (apiServer *APIServer) id(res http.ResponseWriter, req *http.Request) {
	writeJSON(res, http.StatusOK, apiServer.nodeID)
}
