package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/skywatch-data/skywatch/internal/httputil"
	"github.com/skywatch-data/skywatch/internal/monitoring"
	"github.com/skywatch-data/skywatch/internal/timeutil"
	"github.com/skywatch-data/skywatch/internal/units"
)

// OpenSkyClient adapts the OpenSky `/states/all` positional-tuple response
// to the common record shape, converting metric units on ingest.
type OpenSkyClient struct {
	cfg     ProviderConfig
	http    httputil.Doer
	limiter *TokenBucket
}

// NewOpenSkyClient builds an OpenSky-style client.
func NewOpenSkyClient(cfg ProviderConfig, doer httputil.Doer, clock timeutil.Clock) *OpenSkyClient {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second // OpenSky is the slow one
	}
	if cfg.RequestsPerMin <= 0 {
		cfg.RequestsPerMin = 6
	}
	if doer == nil {
		doer = &http.Client{Timeout: cfg.Timeout}
	}
	return &OpenSkyClient{
		cfg:     cfg,
		http:    doer,
		limiter: NewTokenBucket(cfg.RequestsPerMin, clock),
	}
}

// Name returns the provider name.
func (c *OpenSkyClient) Name() string { return c.cfg.Name }

// openskyEnvelope matches {time, states: [[...], ...]}.
type openskyEnvelope struct {
	Time   int64               `json:"time"`
	States [][]json.RawMessage `json:"states"`
}

// State tuple indices per the OpenSky REST API.
const (
	osIcao24 = iota
	osCallsign
	osOriginCountry
	osTimePosition
	osLastContact
	osLongitude
	osLatitude
	osBaroAltitude
	osOnGround
	osVelocity
	osTrueTrack
	osVerticalRate
	osSensors
	osGeoAltitude
	osSquawk
	osSPI
	osPositionSource
	osCategoryIdx
)

// StatesAll fetches current states inside a bounding box and adapts them.
func (c *OpenSkyClient) StatesAll(ctx context.Context, latMin, lonMin, latMax, lonMax float64) ([]Record, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/states/all?lamin=%g&lomin=%g&lamax=%g&lomax=%g",
		c.cfg.BaseURL, latMin, lonMin, latMax, lonMax)

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if c.cfg.Auth == AuthBasic {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return nil, &TransientError{Err: fmt.Errorf("opensky status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("opensky status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Err: err}
	}

	var envelope openskyEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("opensky: bad payload: %w", err)
	}

	now := time.Unix(envelope.Time, 0)
	records := make([]Record, 0, len(envelope.States))
	for i, tuple := range envelope.States {
		rec, err := adaptOpenSkyState(tuple, now)
		if err != nil {
			monitoring.Logf("feeds: opensky state %d unparseable, skipping: %v", i, err)
			continue
		}
		rec.Sources = []string{c.cfg.Name}
		records = append(records, rec)
	}
	return records, nil
}

func tupleString(t []json.RawMessage, i int) *string {
	if i >= len(t) {
		return nil
	}
	var s *string
	if err := json.Unmarshal(t[i], &s); err != nil {
		return nil
	}
	return s
}

func tupleFloat(t []json.RawMessage, i int) *float64 {
	if i >= len(t) {
		return nil
	}
	var f *float64
	if err := json.Unmarshal(t[i], &f); err != nil {
		return nil
	}
	return f
}

// adaptOpenSkyState converts one positional tuple to the common shape:
// altitude meters -> feet, velocity m/s -> knots, vertical rate m/s -> fpm.
func adaptOpenSkyState(tuple []json.RawMessage, now time.Time) (Record, error) {
	if len(tuple) <= osTrueTrack {
		return Record{}, fmt.Errorf("state tuple has %d fields", len(tuple))
	}

	icao := tupleString(tuple, osIcao24)
	if icao == nil || *icao == "" {
		return Record{}, fmt.Errorf("state tuple missing icao24")
	}

	rec := Record{Hex: NormalizeHex(*icao)}

	if cs := tupleString(tuple, osCallsign); cs != nil {
		rec.Flight = cs
	}
	rec.Lat = tupleFloat(tuple, osLatitude)
	rec.Lon = tupleFloat(tuple, osLongitude)
	if alt := tupleFloat(tuple, osBaroAltitude); alt != nil {
		ft := units.FeetFromMeters(*alt)
		rec.AltBaro = &ft
	}
	if alt := tupleFloat(tuple, osGeoAltitude); alt != nil {
		ft := units.FeetFromMeters(*alt)
		rec.AltGeom = &ft
	}
	if vel := tupleFloat(tuple, osVelocity); vel != nil {
		kts := units.KnotsFromMPS(*vel)
		rec.GS = &kts
	}
	rec.Track = tupleFloat(tuple, osTrueTrack)
	if vr := tupleFloat(tuple, osVerticalRate); vr != nil {
		fpm := units.FPMFromMPS(*vr)
		rec.BaroRate = &fpm
	}
	if sq := tupleString(tuple, osSquawk); sq != nil {
		rec.Squawk = sq
	}

	// last_contact / time_position become staleness ages in seconds.
	if lc := tupleFloat(tuple, osLastContact); lc != nil {
		age := now.Sub(time.Unix(int64(*lc), 0)).Seconds()
		if age < 0 {
			age = 0
		}
		rec.Seen = &age
	}
	if tp := tupleFloat(tuple, osTimePosition); tp != nil {
		age := now.Sub(time.Unix(int64(*tp), 0)).Seconds()
		if age < 0 {
			age = 0
		}
		rec.SeenPos = &age
	}

	return rec, nil
}
