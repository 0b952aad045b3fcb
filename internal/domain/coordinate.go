package domain

import (
	"fmt"
	"strconv"
)

// Coordinate is a WGS 84 point in decimal degrees. Both values travel as
// strings to avoid precision loss; they are parsed only for map rendering.
type Coordinate struct {
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
}

// IsZero reports whether no location has been picked.
func (c Coordinate) IsZero() bool {
	return c.Latitude == "" && c.Longitude == ""
}

// LatLng parses both values as float64.
func (c Coordinate) LatLng() (lat, lng float64, err error) {
	lat, err = strconv.ParseFloat(c.Latitude, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("latitude %q: %w", c.Latitude, err)
	}
	lng, err = strconv.ParseFloat(c.Longitude, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("longitude %q: %w", c.Longitude, err)
	}
	return lat, lng, nil
}

// CoordinateOf formats lat/lng using the shortest decimal representation that
// round-trips, never exponent notation.
func CoordinateOf(lat, lng float64) Coordinate {
	return Coordinate{
		Latitude:  strconv.FormatFloat(lat, 'f', -1, 64),
		Longitude: strconv.FormatFloat(lng, 'f', -1, 64),
	}
}

func (c Coordinate) String() string {
	return c.Latitude + ", " + c.Longitude
}
