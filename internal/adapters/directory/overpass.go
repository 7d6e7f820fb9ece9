package directory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nearest-store-service/internal/domain"
	"nearest-store-service/internal/platform/obs"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	DefaultEndpoint   = "https://overpass-api.de/api/interpreter"
	DefaultTimeout    = 3 * time.Second
	DefaultMaxResults = 25

	maxBodyBytes = 4 << 20
)

// Options configures an OverpassClient. Zero values fall back to the defaults.
type Options struct {
	Endpoint   string
	UserAgent  string
	Timeout    time.Duration
	MaxResults int
	// Excluded lists case-insensitive name fragments that disqualify an entity,
	// e.g. places that merely contain the brand name.
	Excluded []string
	Client   *http.Client
	Log      *zap.Logger
}

// OverpassClient implements ports.StoreDirectory against the OpenStreetMap Overpass API.
//
// A search is a single attempt under a hard deadline. Every failure mode
// (deadline, transport, status, decoding) is reported as
// domain.ErrDirectorySearchFailed so the caller can switch to its fallback.
type OverpassClient struct {
	session    *http.Client
	endpoint   string
	userAgent  string
	timeout    time.Duration
	maxResults int
	excluded   []string
	log        *zap.Logger
}

func NewOverpassClient(opts Options) *OverpassClient {
	o := &OverpassClient{
		session:    opts.Client,
		endpoint:   opts.Endpoint,
		userAgent:  opts.UserAgent,
		timeout:    opts.Timeout,
		maxResults: opts.MaxResults,
		log:        opts.Log,
	}
	if o.session == nil {
		o.session = &http.Client{}
	}
	if o.endpoint == "" {
		o.endpoint = DefaultEndpoint
	}
	if o.timeout <= 0 {
		o.timeout = DefaultTimeout
	}
	if o.maxResults <= 0 {
		o.maxResults = DefaultMaxResults
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	for _, e := range opts.Excluded {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			o.excluded = append(o.excluded, e)
		}
	}
	return o
}

// Search returns entities named like nameFilter within radiusMeters of center.
func (o *OverpassClient) Search(
	ctx context.Context,
	center domain.Position,
	radiusMeters int,
	nameFilter string,
) (_ []domain.RawCandidate, err error) {
	defer obs.Time(ctx, o.log, "overpass.Search")(&err)

	obs.DirectoryRequestsTotal.Inc()
	start := time.Now()
	defer func() {
		obs.DirectoryDurationMs.Observe(float64(time.Since(start).Milliseconds()))
		if err != nil {
			obs.DirectoryFailuresTotal.Inc()
		}
	}()

	if radiusMeters <= 0 {
		return nil, fmt.Errorf("%w: radius must be positive, got %d", domain.ErrDirectorySearchFailed, radiusMeters)
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	req, err := o.newRequest(ctx, BuildQuery(center, radiusMeters, nameFilter, o.timeout, o.maxResults))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrDirectorySearchFailed, err)
	}

	body, err := o.do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return nil, fmt.Errorf("%w: timed out after %s: %w", domain.ErrDirectorySearchFailed, o.timeout, err)
		}
		return nil, fmt.Errorf("%w: execute request: %w", domain.ErrDirectorySearchFailed, err)
	}

	candidates, err := o.decode(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrDirectorySearchFailed, err)
	}
	return candidates, nil
}

// BuildQuery renders the Overpass QL query for a name search around center.
func BuildQuery(center domain.Position, radiusMeters int, nameFilter string, timeout time.Duration, maxResults int) string {
	secs := int(timeout.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	filter := escapeRegex(nameFilter)
	around := fmt.Sprintf("(around:%d,%s,%s)",
		radiusMeters,
		strconv.FormatFloat(center.Lat, 'f', -1, 64),
		strconv.FormatFloat(center.Lon, 'f', -1, 64),
	)

	var b strings.Builder
	fmt.Fprintf(&b, "[out:json][timeout:%d];\n(\n", secs)
	fmt.Fprintf(&b, "  node[\"name\"~\"%s\",i]%s;\n", filter, around)
	fmt.Fprintf(&b, "  way[\"name\"~\"%s\",i]%s;\n", filter, around)
	fmt.Fprintf(&b, ");\nout center %d;", maxResults)
	return b.String()
}

func (o *OverpassClient) decode(body []byte) ([]domain.RawCandidate, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("decode overpass response: malformed json")
	}
	elements := gjson.GetBytes(body, "elements")
	if !elements.IsArray() {
		return nil, errors.New("decode overpass response: missing elements array")
	}

	out := make([]domain.RawCandidate, 0, len(elements.Array()))
	elements.ForEach(func(_, el gjson.Result) bool {
		name := strings.TrimSpace(el.Get("tags.name").String())
		if name == "" || o.isExcluded(name) {
			return true
		}

		pos, ok := elementPosition(el)
		if !ok {
			return true
		}

		tags := make(map[string]string)
		el.Get("tags").ForEach(func(k, v gjson.Result) bool {
			tags[k.String()] = v.String()
			return true
		})

		out = append(out, domain.RawCandidate{
			ExternalID: el.Get("type").String() + "/" + el.Get("id").String(),
			Name:       name,
			Tags:       tags,
			Position:   pos,
		})
		return true
	})

	return out, nil
}

// Nodes carry lat/lon directly; ways only have the computed center.
func elementPosition(el gjson.Result) (domain.Position, bool) {
	lat, lon := el.Get("lat"), el.Get("lon")
	if !lat.Exists() || !lon.Exists() {
		lat, lon = el.Get("center.lat"), el.Get("center.lon")
	}
	if !lat.Exists() || !lon.Exists() {
		return domain.Position{}, false
	}
	p := domain.Position{Lat: lat.Float(), Lon: lon.Float()}
	return p, p.Valid()
}

func (o *OverpassClient) isExcluded(name string) bool {
	lower := strings.ToLower(name)
	for _, e := range o.excluded {
		if strings.Contains(lower, e) {
			return true
		}
	}
	return false
}

// The name filter is an Overpass regex; only the string delimiters need escaping.
func escapeRegex(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
