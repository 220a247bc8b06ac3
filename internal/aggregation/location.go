package aggregation

import (
	"math"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ParseLocation decodes a serialized location literal such as
// {'latitude': 52.52, 'longitude': 13.40}. Keys must be quoted with single or
// double quotes, and latitude and longitude must be numbers. A repeated key
// keeps its last value.
func ParseLocation(deviceID, raw string) (Location, error) {
	fail := func(err error) (Location, error) {
		return Location{}, &MalformedLocationError{DeviceID: deviceID, Raw: raw, Err: err}
	}

	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
		return fail(errors.New("not a mapping literal"))
	}

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(trimmed), &doc); err != nil {
		return fail(errors.Wrap(err, "failed to decode literal"))
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 || doc.Content[0].Kind != yaml.MappingNode {
		return fail(errors.New("not a mapping literal"))
	}

	var lat, lon *float64
	mapping := doc.Content[0].Content
	for i := 0; i+1 < len(mapping); i += 2 {
		key, value := mapping[i], mapping[i+1]

		if key.Kind != yaml.ScalarNode || (key.Style != yaml.SingleQuotedStyle && key.Style != yaml.DoubleQuotedStyle) {
			return fail(errors.Errorf("key %q is not a quoted string", key.Value))
		}

		if key.Value != "latitude" && key.Value != "longitude" {
			continue
		}

		tag := value.ShortTag()
		if value.Kind != yaml.ScalarNode || value.Style != 0 || (tag != "!!int" && tag != "!!float") {
			return fail(errors.Errorf("%s is not a number", key.Value))
		}

		var f float64
		if err := value.Decode(&f); err != nil {
			return fail(errors.Wrapf(err, "failed to decode %s", key.Value))
		}

		if key.Value == "latitude" {
			lat = &f
		} else {
			lon = &f
		}
	}

	if lat == nil {
		return fail(errors.New("missing latitude"))
	}
	if lon == nil {
		return fail(errors.New("missing longitude"))
	}

	loc := Location{Latitude: *lat, Longitude: *lon}
	if math.IsNaN(loc.Latitude) || loc.Latitude < -90 || loc.Latitude > 90 {
		return fail(errors.Errorf("latitude %v out of range", loc.Latitude))
	}
	if math.IsNaN(loc.Longitude) || loc.Longitude < -180 || loc.Longitude > 180 {
		return fail(errors.Errorf("longitude %v out of range", loc.Longitude))
	}

	return loc, nil
}
