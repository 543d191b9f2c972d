//go:build unit || !integration

package publicapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"github.com/jobmesh-project/jobmesh/pkg/dagstore"
	"github.com/jobmesh-project/jobmesh/pkg/jobstore"
	"github.com/jobmesh-project/jobmesh/pkg/jobstore/inmemory"
	"github.com/jobmesh-project/jobmesh/pkg/logger"
	"github.com/jobmesh-project/jobmesh/pkg/models"
	"github.com/jobmesh-project/jobmesh/pkg/orchestrator"
	"github.com/jobmesh-project/jobmesh/pkg/receipt"
	"github.com/jobmesh-project/jobmesh/pkg/reputation"
	"github.com/jobmesh-project/jobmesh/pkg/selector"
)

type ServerSuite struct {
	suite.Suite
	store  jobstore.Store
	server *httptest.Server
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerSuite))
}

func (s *ServerSuite) SetupSuite() {
	logger.ConfigureTestLogging(s.T())
}

func (s *ServerSuite) SetupTest() {
	s.store = inmemory.NewInMemoryJobStore()
	registry := prometheus.NewRegistry()
	directory := reputation.NewInMemoryDirectory()
	marketplace := orchestrator.NewMarketplace(orchestrator.MarketplaceParams{
		NodeID:   "api-test-node",
		Store:    s.store,
		Selector: selector.NewSelector(selector.SelectorParams{Directory: directory}),
		Receipts: receipt.NewService(receipt.ServiceParams{Store: dagstore.NewInMemoryStore()}),

		Reputation:    directory,
		BiddingWindow: time.Minute,
		Metrics:       orchestrator.NewMetrics(registry),
	})

	apiServer := NewServer(APIServerParams{
		NodeID:          "api-test-node",
		Host:            "127.0.0.1",
		Marketplace:     marketplace,
		Store:           s.store,
		MetricsGatherer: registry,
	})
	s.server = httptest.NewServer(apiServer.Router())
	s.T().Cleanup(s.server.Close)
}

func (s *ServerSuite) url(format string, args ...any) string {
	return s.server.URL + fmt.Sprintf(format, args...)
}

func (s *ServerSuite) postJSON(url string, body any) *http.Response {
	payload, err := json.Marshal(body)
	s.Require().NoError(err)
	res, err := http.Post(url, "application/json", bytes.NewReader(payload))
	s.Require().NoError(err)
	return res
}

func (s *ServerSuite) decode(res *http.Response, into any) {
	defer res.Body.Close()
	s.Require().NoError(json.NewDecoder(res.Body).Decode(into))
}

func (s *ServerSuite) submitJob() models.Job {
	res := s.postJSON(s.url("/api/v1/jobs"), models.JobRequest{
		Originator: "api-test-node",
		CodeRef:    "bafytestprogram",
		Resources:  models.Resources{CPU: 1, Memory: 512},
	})
	s.Require().Equal(http.StatusCreated, res.StatusCode)
	var job models.Job
	s.decode(res, &job)
	return job
}

func (s *ServerSuite) beginBidding(jobID string) {
	res := s.postJSON(s.url("/api/v1/jobs/%s/begin-bidding", jobID), nil)
	s.Require().Equal(http.StatusOK, res.StatusCode)
	res.Body.Close()
}

func (s *ServerSuite) submitBid(jobID string, bidder string, price uint64) models.Bid {
	res := s.postJSON(s.url("/api/v1/jobs/%s/bids", jobID), models.Bid{
		Bidder:   bidder,
		Price:    price,
		Estimate: models.Resources{CPU: 2, Memory: 1024},
	})
	s.Require().Equal(http.StatusAccepted, res.StatusCode)
	var body submitBidResponse
	s.decode(res, &body)
	return body.Bid
}

func (s *ServerSuite) TestSubmitAndGetJob() {
	job := s.submitJob()
	s.Equal(models.JobStatePending, job.State.StateType)

	res, err := http.Get(s.url("/api/v1/jobs/%s", job.ID()))
	s.Require().NoError(err)
	s.Require().Equal(http.StatusOK, res.StatusCode)
	var fetched models.Job
	s.decode(res, &fetched)
	s.Equal(job.ID(), fetched.ID())
}

func (s *ServerSuite) TestSubmitInvalidJob() {
	res := s.postJSON(s.url("/api/v1/jobs"), models.JobRequest{CodeRef: "bafytestprogram"})
	defer res.Body.Close()
	s.Equal(http.StatusBadRequest, res.StatusCode)
}

func (s *ServerSuite) TestGetUnknownJob() {
	res, err := http.Get(s.url("/api/v1/jobs/no-such-job"))
	s.Require().NoError(err)
	defer res.Body.Close()
	s.Equal(http.StatusNotFound, res.StatusCode)
}

func (s *ServerSuite) TestListJobsByStatus() {
	job := s.submitJob()
	s.beginBidding(job.ID())

	res, err := http.Get(s.url("/api/v1/jobs?status=Bidding"))
	s.Require().NoError(err)
	var jobs []models.Job
	s.decode(res, &jobs)
	s.Require().Len(jobs, 1)
	s.Equal(job.ID(), jobs[0].ID())

	res, err = http.Get(s.url("/api/v1/jobs?status=Completed"))
	s.Require().NoError(err)
	s.decode(res, &jobs)
	s.Empty(jobs)
}

func (s *ServerSuite) TestListJobsRejectsUnknownStatus() {
	res, err := http.Get(s.url("/api/v1/jobs?status=NotAState"))
	s.Require().NoError(err)
	defer res.Body.Close()
	s.Equal(http.StatusBadRequest, res.StatusCode)
}

func (s *ServerSuite) TestBeginBiddingTwiceConflicts() {
	job := s.submitJob()
	s.beginBidding(job.ID())

	res := s.postJSON(s.url("/api/v1/jobs/%s/begin-bidding", job.ID()), nil)
	defer res.Body.Close()
	s.Equal(http.StatusConflict, res.StatusCode)
}

func (s *ServerSuite) TestBidBeforeBiddingConflicts() {
	job := s.submitJob()
	res := s.postJSON(s.url("/api/v1/jobs/%s/bids", job.ID()), models.Bid{
		Bidder:   "eager-bidder",
		Price:    5,
		Estimate: models.Resources{CPU: 2, Memory: 1024},
	})
	defer res.Body.Close()
	s.Equal(http.StatusConflict, res.StatusCode)
}

func (s *ServerSuite) TestAssignFlow() {
	job := s.submitJob()
	s.beginBidding(job.ID())
	s.submitBid(job.ID(), "bidder-a", 100)
	cheaper := s.submitBid(job.ID(), "bidder-b", 10)

	res := s.postJSON(s.url("/api/v1/jobs/%s/assign", job.ID()), nil)
	s.Require().Equal(http.StatusOK, res.StatusCode)
	var winner selector.RankedBid
	s.decode(res, &winner)
	s.Equal(cheaper.ID, winner.Bid.ID)

	// second assignment conflicts
	res = s.postJSON(s.url("/api/v1/jobs/%s/assign", job.ID()), nil)
	defer res.Body.Close()
	s.Equal(http.StatusConflict, res.StatusCode)
}

func (s *ServerSuite) TestAssignWithoutBidsConflicts() {
	job := s.submitJob()
	s.beginBidding(job.ID())

	res := s.postJSON(s.url("/api/v1/jobs/%s/assign", job.ID()), nil)
	defer res.Body.Close()
	s.Equal(http.StatusConflict, res.StatusCode)
}

func (s *ServerSuite) TestListBids() {
	job := s.submitJob()
	s.beginBidding(job.ID())
	s.submitBid(job.ID(), "bidder-a", 100)
	s.submitBid(job.ID(), "bidder-b", 10)

	res, err := http.Get(s.url("/api/v1/jobs/%s/bids", job.ID()))
	s.Require().NoError(err)
	var bids []models.Bid
	s.decode(res, &bids)
	s.Require().Len(bids, 2)
	s.Equal("bidder-a", bids[0].Bidder)
	s.Equal("bidder-b", bids[1].Bidder)
}

func (s *ServerSuite) TestBidWebsocketStream() {
	job := s.submitJob()
	s.beginBidding(job.ID())

	wsURL := "ws" + strings.TrimPrefix(s.server.URL, "http") +
		fmt.Sprintf("/api/v1/jobs/%s/bids", job.ID())
	conn, res, err := websocket.DefaultDialer.Dial(wsURL, nil)
	s.Require().NoError(err)
	if res != nil {
		res.Body.Close()
	}
	defer conn.Close()

	// give the handler a moment to register the stream before bidding
	time.Sleep(100 * time.Millisecond)
	submitted := s.submitBid(job.ID(), "streaming-bidder", 42)

	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(5 * time.Second)))
	var streamed models.Bid
	s.Require().NoError(conn.ReadJSON(&streamed))
	s.Equal(submitted.ID, streamed.ID)
}

func (s *ServerSuite) TestID() {
	res, err := http.Get(s.url("/api/v1/id"))
	s.Require().NoError(err)
	var id string
	s.decode(res, &id)
	s.Equal("api-test-node", id)
}

func (s *ServerSuite) TestMetricsEndpoint() {
	s.submitJob()

	res, err := http.Get(s.url("/metrics"))
	s.Require().NoError(err)
	defer res.Body.Close()
	s.Equal(http.StatusOK, res.StatusCode)

	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(res.Body)
	s.Require().NoError(err)
	s.Contains(buf.String(), "marketplace_jobs_submitted_total")
}
