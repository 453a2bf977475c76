// Package feeds contains the upstream ADS-B provider clients and the common
// aircraft record shape they are adapted to. Every provider, whatever its
// native schema, is normalized into Record before the aggregator sees it.
package feeds

import (
	"encoding/json"
	"strings"
)

// Record is the common upstream record shape. Pointer fields distinguish
// "absent" from zero. Unknown upstream keys are preserved in Extra on read
// and ignored on write.
type Record struct {
	Hex      string   `json:"hex"`
	Flight   *string  `json:"flight,omitempty"`
	Reg      *string  `json:"r,omitempty"`
	Type     *string  `json:"t,omitempty"`
	Desc     *string  `json:"desc,omitempty"`
	Lat      *float64 `json:"lat,omitempty"`
	Lon      *float64 `json:"lon,omitempty"`
	AltBaro  *float64 `json:"alt_baro,omitempty"`
	AltGeom  *float64 `json:"alt_geom,omitempty"`
	GS       *float64 `json:"gs,omitempty"`
	Track    *float64 `json:"track,omitempty"`
	BaroRate *float64 `json:"baro_rate,omitempty"`
	Squawk   *string  `json:"squawk,omitempty"`
	Seen     *float64 `json:"seen,omitempty"`     // seconds since last contact
	SeenPos  *float64 `json:"seen_pos,omitempty"` // seconds since last position
	Category *string  `json:"category,omitempty"`
	Operator *string  `json:"ownOp,omitempty"`
	Mil      bool     `json:"mil,omitempty"`

	// LastPosition is the nested stale-position object some upstreams carry
	// when the top-level lat/lon has aged out.
	LastPosition *LastPosition `json:"lastPosition,omitempty"`

	// Sources lists the names of every upstream that contributed to this
	// record. Populated by the clients and extended during merge.
	Sources []string `json:"-"`

	// Extra holds upstream keys the common shape does not model.
	Extra map[string]json.RawMessage `json:"-"`
}

// LastPosition is a stale position with its own age.
type LastPosition struct {
	Lat     float64  `json:"lat"`
	Lon     float64  `json:"lon"`
	SeenPos *float64 `json:"seen_pos,omitempty"`
}

// recordAlias avoids UnmarshalJSON recursion.
type recordAlias Record

// knownRecordKeys are the keys the common shape models; everything else
// lands in Extra.
var knownRecordKeys = map[string]bool{
	"hex": true, "flight": true, "r": true, "t": true, "desc": true,
	"lat": true, "lon": true, "alt_baro": true, "alt_geom": true,
	"gs": true, "track": true, "baro_rate": true, "squawk": true,
	"seen": true, "seen_pos": true, "category": true, "ownOp": true,
	"mil": true, "lastPosition": true,
}

// UnmarshalJSON decodes the known fields and preserves unknown keys in
// Extra. A non-numeric alt_baro (providers report "ground") is treated as
// altitude zero.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	// alt_baro may be the string "ground"; strip it before the typed pass.
	if v, ok := raw["alt_baro"]; ok && len(v) > 0 && v[0] == '"' {
		zero := json.RawMessage("0")
		raw["alt_baro"] = zero
	}

	typed, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	var a recordAlias
	if err := json.Unmarshal(typed, &a); err != nil {
		return err
	}
	*r = Record(a)

	for k, v := range raw {
		if !knownRecordKeys[k] {
			if r.Extra == nil {
				r.Extra = make(map[string]json.RawMessage)
			}
			r.Extra[k] = v
		}
	}

	r.Hex = NormalizeHex(r.Hex)
	if r.Flight != nil {
		trimmed := strings.TrimSpace(*r.Flight)
		r.Flight = &trimmed
	}
	return nil
}

// NormalizeHex canonicalizes an ICAO hex: trimmed, upper-case.
func NormalizeHex(hex string) string {
	return strings.ToUpper(strings.TrimSpace(hex))
}

// HasPosition reports whether the record carries a usable top-level lat/lon.
func (r *Record) HasPosition() bool {
	return r.Lat != nil && r.Lon != nil
}

// PromoteLastPosition copies a nested stale position to the top level when
// the top-level lat/lon is absent, along with its staleness.
func (r *Record) PromoteLastPosition() {
	if r.HasPosition() || r.LastPosition == nil {
		return
	}
	lat, lon := r.LastPosition.Lat, r.LastPosition.Lon
	r.Lat = &lat
	r.Lon = &lon
	if r.LastPosition.SeenPos != nil {
		sp := *r.LastPosition.SeenPos
		r.SeenPos = &sp
	}
}

// Response is the `{ac: [...]}` envelope bulk and point-radius endpoints
// return.
type Response struct {
	AC  []Record `json:"ac"`
	Now float64  `json:"now,omitempty"`
	Msg string   `json:"msg,omitempty"`
}
