package reputation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const defaultRequestTimeout = 10 * time.Second

// HTTPDirectory talks to a remote reputation directory over its REST API,
// with transparent retries on transient failures.
type HTTPDirectory struct {
	baseURL string
	client  *retryablehttp.Client
}

type HTTPDirectoryParams struct {
	// BaseURL is the directory root, e.g. "http://directory.local:9630".
	BaseURL string
	// RetryMax bounds how many times a failing request is retried.
	RetryMax int
}

func NewHTTPDirectory(params HTTPDirectoryParams) *HTTPDirectory {
	client := retryablehttp.NewClient()
	client.RetryMax = params.RetryMax
	client.HTTPClient.Timeout = defaultRequestTimeout
	client.Logger = nil // zerolog via CheckRetry is noisier than it's worth

	return &HTTPDirectory{
		baseURL: strings.TrimSuffix(params.BaseURL, "/"),
		client:  client,
	}
}

func (d *HTTPDirectory) GetProfile(ctx context.Context, nodeID string) (Profile, error) {
	endpoint := fmt.Sprintf("%s/api/v1/profiles/%s", d.baseURL, url.PathEscape(nodeID))
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Profile{}, err
	}

	res, err := d.client.Do(req)
	if err != nil {
		return Profile{}, errors.Wrapf(err, "fetching reputation profile for %s", nodeID)
	}
	defer closeQuietly(ctx, res.Body)

	if res.StatusCode == http.StatusNotFound {
		return Profile{}, NewErrProfileNotFound(nodeID)
	}
	if res.StatusCode != http.StatusOK {
		return Profile{}, errors.Errorf("reputation directory returned %d for %s", res.StatusCode, nodeID)
	}

	var profile Profile
	if err := json.NewDecoder(res.Body).Decode(&profile); err != nil {
		return Profile{}, errors.Wrap(err, "decoding reputation profile")
	}
	return profile, nil
}

func (d *HTTPDirectory) SubmitEvent(ctx context.Context, event UpdateEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	endpoint := d.baseURL + "/api/v1/events"
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := d.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "submitting reputation event for %s", event.NodeID)
	}
	defer closeQuietly(ctx, res.Body)

	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return errors.Errorf("reputation directory rejected event with status %d", res.StatusCode)
	}
	return nil
}

func closeQuietly(ctx context.Context, body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	if err := body.Close(); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("failed to close response body")
	}
}

var _ Directory = (*HTTPDirectory)(nil)
