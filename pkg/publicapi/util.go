package publicapi

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jobmesh-project/jobmesh/pkg/jobstore"
	"github.com/jobmesh-project/jobmesh/pkg/orchestrator"
)

func writeJSON(res http.ResponseWriter, status int, body any) {
	res.Header().Set("Content-Type", "application/json")
	res.WriteHeader(status)
	if err := json.NewEncoder(res).Encode(body); err != nil {
		log.Error().Err(err).Msg("error encoding API response")
	}
}

// httpError maps domain errors onto status codes: unknown entities are 404,
// lifecycle conflicts are 409, everything else is a 500.
func httpError(res http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var jobNotFound jobstore.ErrJobNotFound
	var bidNotFound jobstore.ErrBidNotFound
	var jobExists jobstore.ErrJobAlreadyExists
	var invalidState jobstore.ErrInvalidJobState
	var terminal jobstore.ErrJobAlreadyTerminal
	var noBids orchestrator.ErrNoEligibleBids
	switch {
	case errors.As(err, &jobNotFound), errors.As(err, &bidNotFound):
		status = http.StatusNotFound
	case errors.As(err, &jobExists), errors.As(err, &invalidState),
		errors.As(err, &terminal), errors.As(err, &noBids):
		status = http.StatusConflict
	}

	http.Error(res, err.Error(), status)
}
