package growatt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/solarwatch/solarwatch/pkg/timewindow"
)

// Page size for energy-history requests; far above the 7 rows a backfill
// window can return.
const energyPerPage = 99

// ClientInterface defines the methods for fetching metering data from Growatt
type ClientInterface interface {
	// FetchPowerDay fetches all power samples for one local day
	FetchPowerDay(ctx context.Context, plantID int64, day timewindow.Day) ([]PowerPoint, error)
	// FetchEnergyRange fetches daily energy totals over an inclusive date range
	FetchEnergyRange(ctx context.Context, plantID int64, start, end timewindow.Day) ([]EnergyRecord, error)
	// Start initializes the client
	Start() error
	// Stop closes the client
	Stop() error
}

// client implements the ClientInterface over the Growatt HTTP API. It does
// no pacing of its own: the minimum pause between calls is the caller's
// contract with the upstream rate limit.
type client struct {
	log        logrus.FieldLogger
	httpClient *http.Client
	baseURL    string
	token      string
	debug      bool
	timeout    time.Duration
}

// NewClient creates a new Growatt API client
func NewClient(logger logrus.FieldLogger, cfg *Config) (ClientInterface, error) {
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
	}

	c := &client{
		log:        logger.WithField("component", "growatt"),
		httpClient: &http.Client{Transport: transport},
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
		debug:      cfg.Debug,
		timeout:    cfg.RequestTimeout,
	}

	return c, nil
}

func (c *client) Start() error {
	c.log.WithField("base_url", c.baseURL).Info("Growatt client ready")

	return nil
}

func (c *client) Stop() error {
	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
	}

	return nil
}

func (c *client) FetchPowerDay(ctx context.Context, plantID int64, day timewindow.Day) ([]PowerPoint, error) {
	params := url.Values{}
	params.Set("plant_id", strconv.FormatInt(plantID, 10))
	params.Set("date", day.String())

	var resp powerOverviewResponse
	if err := c.get(ctx, "plant/power", params, &resp); err != nil {
		return nil, err
	}

	if resp.ErrorCode != 0 {
		return nil, c.apiError("plant/power", resp.ErrorCode, resp.ErrorMsg)
	}

	return resp.Data.Powers, nil
}

func (c *client) FetchEnergyRange(ctx context.Context, plantID int64, start, end timewindow.Day) ([]EnergyRecord, error) {
	params := url.Values{}
	params.Set("plant_id", strconv.FormatInt(plantID, 10))
	params.Set("start_date", start.String())
	params.Set("end_date", end.String())
	params.Set("time_unit", "day")
	params.Set("page", "1")
	params.Set("perpage", strconv.Itoa(energyPerPage))

	var resp energyHistoryResponse
	if err := c.get(ctx, "plant/energy", params, &resp); err != nil {
		return nil, err
	}

	if resp.ErrorCode != 0 {
		return nil, c.apiError("plant/energy", resp.ErrorCode, resp.ErrorMsg)
	}

	return resp.Data.Energys, nil
}

func (c *client) get(ctx context.Context, endpoint string, params url.Values, dest interface{}) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqURL := fmt.Sprintf("%s/%s?%s", c.baseURL, endpoint, params.Encode())

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return &UpstreamError{Endpoint: endpoint, Err: err}
	}

	req.Header.Set("token", c.token)
	req.Header.Set("Accept", "application/json")

	if c.debug {
		c.log.WithField("url", reqURL).Debug("Executing Growatt request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network-level failures and timeouts are always retryable.
		return &UpstreamError{Endpoint: endpoint, Err: err, Transient: true}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &UpstreamError{Endpoint: endpoint, Err: err, Transient: true}
	}

	if resp.StatusCode != http.StatusOK {
		return &UpstreamError{
			Endpoint:  endpoint,
			Status:    resp.StatusCode,
			Transient: resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
		}
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return &UpstreamError{Endpoint: endpoint, Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	return nil
}

func (c *client) apiError(endpoint string, code int, msg string) error {
	return &UpstreamError{
		Endpoint:  endpoint,
		ErrorCode: code,
		Message:   msg,
		Transient: code == errCodeRateLimited || code == errCodeFrequentAccess,
	}
}
