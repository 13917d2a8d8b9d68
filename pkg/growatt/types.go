package growatt

import (
	"encoding/json"
	"strconv"
	"strings"
)

// PowerPoint is one raw sample from the power-overview endpoint. Time is a
// local-naive timestamp string in the plant's zone; Power is nil when the
// inverter reported no reading for that slot.
type PowerPoint struct {
	Time  string   `json:"time"`
	Power *float64 `json:"power"`
}

// EnergyRecord is one raw row from the energy-history endpoint. The upstream
// serializes energy sometimes as a JSON number and sometimes as a string, so
// the value is carried raw and parsed defensively by the caller.
type EnergyRecord struct {
	Date   string     `json:"date"`
	Energy RawNumeric `json:"energy"`
}

// RawNumeric holds an untrusted numeric field that may arrive as a JSON
// number, a quoted string, or null.
type RawNumeric struct {
	raw     string
	present bool
}

// UnmarshalJSON accepts numbers, strings, and null.
func (n *RawNumeric) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*n = RawNumeric{}
		return nil
	}

	if len(s) >= 2 && s[0] == '"' {
		var unquoted string
		if err := json.Unmarshal(data, &unquoted); err != nil {
			return err
		}
		*n = RawNumeric{raw: strings.TrimSpace(unquoted), present: true}

		return nil
	}

	*n = RawNumeric{raw: s, present: true}

	return nil
}

// Float parses the value, reporting ok=false for absent, empty, or
// non-numeric content.
func (n RawNumeric) Float() (value float64, ok bool) {
	if !n.present || n.raw == "" {
		return 0, false
	}

	f, err := strconv.ParseFloat(n.raw, 64)
	if err != nil {
		return 0, false
	}

	return f, true
}

// IsZeroOrAbsent reports whether the field is missing, empty, or parses to
// exactly zero. Used by the backfill stop condition. A present but
// unparseable value is corrupt, not absent: it gets dropped during row
// parsing and must not masquerade as the edge of history.
func (n RawNumeric) IsZeroOrAbsent() bool {
	if !n.present || n.raw == "" {
		return true
	}

	f, err := strconv.ParseFloat(n.raw, 64)

	return err == nil && f == 0
}

// String returns the raw textual content for log context.
func (n RawNumeric) String() string {
	if !n.present {
		return "<absent>"
	}

	return n.raw
}

// powerOverviewResponse is the envelope of the power-overview endpoint.
type powerOverviewResponse struct {
	ErrorCode int    `json:"error_code"` //nolint:tagliatelle // Growatt API uses snake_case
	ErrorMsg  string `json:"error_msg"`  //nolint:tagliatelle // Growatt API uses snake_case
	Data      struct {
		Powers []PowerPoint `json:"powers"`
	} `json:"data"`
}

// energyHistoryResponse is the envelope of the energy-history endpoint.
type energyHistoryResponse struct {
	ErrorCode int    `json:"error_code"` //nolint:tagliatelle // Growatt API uses snake_case
	ErrorMsg  string `json:"error_msg"`  //nolint:tagliatelle // Growatt API uses snake_case
	Data      struct {
		Energys []EnergyRecord `json:"energys"`
	} `json:"data"`
}
