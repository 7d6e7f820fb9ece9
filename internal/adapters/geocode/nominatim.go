package geocode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nearest-store-service/internal/domain"
	"nearest-store-service/internal/platform/obs"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://nominatim.openstreetmap.org"

type Options struct {
	BaseURL   string
	UserAgent string
	// RPS and Burst configure the politeness limiter shared by all lookups.
	RPS    float64
	Burst  int
	Client *http.Client
	Log    *zap.Logger
}

// NominatimClient implements ports.ReverseGeocoder against the OpenStreetMap
// Nominatim reverse endpoint. Deadlines come from the caller's context.
type NominatimClient struct {
	session   *http.Client
	baseURL   string
	userAgent string
	limiter   *rate.Limiter
	log       *zap.Logger
}

func NewNominatimClient(opts Options) *NominatimClient {
	n := &NominatimClient{
		session:   opts.Client,
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		userAgent: opts.UserAgent,
		log:       opts.Log,
	}
	if n.session == nil {
		n.session = &http.Client{Timeout: 10 * time.Second}
	}
	if n.baseURL == "" {
		n.baseURL = DefaultBaseURL
	}
	if n.userAgent == "" {
		n.userAgent = "nearest-store-service/1.0"
	}
	if n.log == nil {
		n.log = zap.NewNop()
	}

	rps, burst := opts.RPS, opts.Burst
	if rps <= 0 {
		rps = 1
	}
	if burst < 1 {
		burst = 1
	}
	n.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	return n
}

type httpStatusError struct {
	Code int
	Body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("Code %d: %s", e.Code, e.Body)
}

// Reverse returns a human-readable address for p.
func (n *NominatimClient) Reverse(ctx context.Context, p domain.Position) (_ string, err error) {
	defer obs.Time(ctx, n.log, "nominatim.Reverse")(&err)

	if err := n.limiter.Wait(ctx); err != nil {
		obs.GeocodeRateLimitedTotal.Inc()
		n.log.Warn("nominatim rate limit wait abandoned",
			zap.Float64("lat", p.Lat),
			zap.Float64("lon", p.Lon),
			zap.Float64("rps", float64(n.limiter.Limit())),
			zap.Int("burst", n.limiter.Burst()),
			zap.Error(err),
		)
		return "", fmt.Errorf("reverse geocode: rate limit wait: %w", err)
	}
	obs.GeocodeRequestsTotal.Inc()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/reverse", nil)
	if err != nil {
		return "", fmt.Errorf("reverse geocode: create request: %w", err)
	}
	q := req.URL.Query()
	q.Set("format", "json")
	q.Set("lat", strconv.FormatFloat(p.Lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(p.Lon, 'f', -1, 64))
	q.Set("zoom", "18")
	q.Set("addressdetails", "1")
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", n.userAgent)

	resp, err := n.session.Do(req)
	if err != nil {
		return "", fmt.Errorf("reverse geocode: execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reverse geocode: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reverse geocode: %w", &httpStatusError{
			Code: resp.StatusCode,
			Body: strings.TrimSpace(string(body)),
		})
	}

	addr, err := parseReverse(body)
	if err != nil {
		return "", fmt.Errorf("reverse geocode %v: %w", p, err)
	}
	return addr, nil
}

// parseReverse prefers a short street-level address built from the structured
// parts and falls back to the full display name.
func parseReverse(body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", errors.New("malformed json")
	}
	doc := gjson.ParseBytes(body)
	if msg := doc.Get("error").String(); msg != "" {
		return "", fmt.Errorf("upstream error: %s", msg)
	}

	parts := make([]string, 0, 4)
	for _, key := range []string{"road", "house_number", "suburb", "city_district"} {
		if v := strings.TrimSpace(doc.Get("address." + key).String()); v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, ", "), nil
	}

	if name := strings.TrimSpace(doc.Get("display_name").String()); name != "" {
		return name, nil
	}
	return "", errors.New("empty address")
}
