package aggregation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocation(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Location
		wantErr bool
	}{
		{name: "python literal", raw: "{'latitude': 52.52, 'longitude': 13.405}", want: Location{52.52, 13.405}},
		{name: "json", raw: `{"latitude": -33.86, "longitude": 151.2}`, want: Location{-33.86, 151.2}},
		{name: "integers", raw: "{'latitude': 1, 'longitude': -2}", want: Location{1, -2}},
		{name: "reordered with extra key", raw: "{'longitude': 3.5, 'accuracy': 4, 'latitude': 2.5}", want: Location{2.5, 3.5}},
		{name: "surrounding whitespace", raw: "  {'latitude': 0.0, 'longitude': 0.0}\n", want: Location{0, 0}},
		{name: "empty", raw: "", wantErr: true},
		{name: "plain text", raw: "somewhere", wantErr: true},
		{name: "tuple", raw: "(1.0, 2.0)", wantErr: true},
		{name: "missing longitude", raw: "{'latitude': 1.0}", wantErr: true},
		{name: "string value", raw: "{'latitude': 'north', 'longitude': 2.0}", wantErr: true},
		{name: "unterminated", raw: "{'latitude': 1.0, 'longitude': 2.0", wantErr: true},
		{name: "latitude out of range", raw: "{'latitude': 91, 'longitude': 0}", wantErr: true},
		{name: "longitude out of range", raw: "{'latitude': 0, 'longitude': -180.5}", wantErr: true},
		{name: "repeated key keeps last", raw: "{'latitude': 1, 'longitude': 2, 'latitude': 3}", want: Location{3, 2}},
		{name: "extra string value", raw: "{'latitude': 1, 'longitude': 2, 'source': 'gps'}", want: Location{1, 2}},
		{name: "unquoted keys", raw: "{latitude: 1, longitude: 2}", wantErr: true},
		{name: "quoted number", raw: "{'latitude': '1', 'longitude': 2}", wantErr: true},
		{name: "null value", raw: "{'latitude': null, 'longitude': 2}", wantErr: true},
		{name: "nested mapping", raw: "{'latitude': {'deg': 1}, 'longitude': 2}", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLocation("dev", tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				var malformed *MalformedLocationError
				assert.True(t, errors.As(err, &malformed))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("dev", " 1700000000 ")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), ts)

	_, err = ParseTimestamp("dev", "1700000000.5")
	var malformed *MalformedTimestampError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, "dev", malformed.DeviceID)
}

func TestDistance(t *testing.T) {
	assert.InDelta(t, 0.0, Distance(Location{10, 10}, Location{10, 10}), 1e-9)

	// one thousandth of a degree along the equator on WGS-84
	assert.InDelta(t, 111.3195, Distance(Location{0, 0}, Location{0, 0.001}), 0.001)

	// symmetric
	a, b := Location{48.8566, 2.3522}, Location{51.5074, -0.1278}
	assert.InDelta(t, Distance(a, b), Distance(b, a), 1e-6)
	assert.InDelta(t, 343_900, Distance(a, b), 2_000)
}

func TestRoundMeters(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{in: 1.115, want: 1.11},
		{in: 2.675, want: 2.67},
		{in: 0.125, want: 0.12},
		{in: 0.375, want: 0.38},
		{in: 111.31949079327357, want: 111.32},
		{in: 0, want: 0},
		{in: 12.3, want: 12.3},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, roundMeters(tt.in), "roundMeters(%v)", tt.in)
	}
}
