package lookup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/router-for-me/RepScan/internal/scanerr"
	internalsettings "github.com/router-for-me/RepScan/internal/settings"
)

const maxBodyBytes = 8 << 20

// HTTPClient implements Client against the public v2 file report endpoint.
type HTTPClient struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	client  *http.Client
}

// NewHTTPClient constructs an HTTPClient. Empty values fall back to defaults.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = internalsettings.DefaultLookupURL
	}
	if timeout <= 0 {
		timeout = internalsettings.DefaultRequestTimeout
	}
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(apiKey),
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

// WithHTTPClient swaps the underlying transport client.
func (c *HTTPClient) WithHTTPClient(client *http.Client) *HTTPClient {
	if c != nil && client != nil {
		c.client = client
	}
	return c
}

// Lookup fetches the report for fingerprint and classifies the response.
// Cancellation of ctx is returned as ctx's error, not as a remote failure.
func (c *HTTPClient) Lookup(ctx context.Context, fingerprint string) (Response, error) {
	if c == nil {
		return Response{}, fmt.Errorf("lookup: nil client")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	fingerprint = strings.TrimSpace(fingerprint)
	if fingerprint == "" {
		return Response{}, fmt.Errorf("lookup: empty fingerprint")
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	query := url.Values{}
	query.Set("apikey", c.apiKey)
	query.Set("resource", fingerprint)
	endpoint := c.baseURL + "/file/report?" + query.Encode()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Response{}, scanerr.Remote(scanerr.ClassMalformed, "build request", redactKey(err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		return Response{}, scanerr.Remote(scanerr.ClassTransport, "lookup", redactKey(err))
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.WithError(errClose).Warn("lookup: close response body failed")
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		return Response{}, scanerr.Remote(scanerr.ClassTransport, "read response", err)
	}

	return Classify(resp.StatusCode, body), nil
}

// redactKey strips the apikey query parameter from the URL carried by a
// *url.Error so transport failures can be printed and logged.
func redactKey(err error) error {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err
	}
	redacted := *urlErr
	redacted.URL = redactURL(urlErr.URL)
	return &redacted
}

func redactURL(raw string) string {
	u, errParse := url.Parse(raw)
	if errParse != nil {
		if base, _, ok := strings.Cut(raw, "?"); ok {
			return base
		}
		return raw
	}
	query := u.Query()
	if !query.Has("apikey") {
		return raw
	}
	query.Del("apikey")
	u.RawQuery = query.Encode()
	return u.String()
}

// Classify maps an HTTP status and body to a Response.
func Classify(status int, body []byte) Response {
	switch status {
	case http.StatusOK:
		body = bytes.TrimSpace(body)
		if len(body) == 0 || !gjson.ValidBytes(body) {
			return Response{Outcome: OutcomeOther, StatusCode: status}
		}
		return Response{Outcome: OutcomeFound, StatusCode: status, Result: wrapResult(status, body)}
	case http.StatusNoContent:
		return Response{Outcome: OutcomeRateLimited, StatusCode: status}
	case http.StatusBadRequest:
		return Response{Outcome: OutcomeMalformed, StatusCode: status}
	case http.StatusForbidden:
		return Response{Outcome: OutcomeForbidden, StatusCode: status}
	default:
		return Response{Outcome: OutcomeOther, StatusCode: status}
	}
}

// wrapResult builds {"response_code": status, "results": body} without
// re-ordering body's keys.
func wrapResult(status int, body []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(body) + 40)
	buf.WriteString(`{"response_code":`)
	buf.WriteString(strconv.Itoa(status))
	buf.WriteString(`,"results":`)
	buf.Write(body)
	buf.WriteByte('}')
	return buf.Bytes()
}
