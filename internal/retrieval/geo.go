package retrieval

import (
	"strconv"
	"strings"

	"github.com/hyperjump/contentdb/internal/models"
)

// GeoPointOf reads a location attribute. Accepted forms are {"lat": .., "lon": ..}
// (also "lng"), a [lon, lat] pair as in GeoJSON, and a "lat,lon" string.
func GeoPointOf(v interface{}) (models.GeoPoint, bool) {
	var p models.GeoPoint
	switch t := v.(type) {
	case map[string]interface{}:
		lat, okLat := number(t["lat"])
		lon, okLon := number(t["lon"])
		if !okLon {
			lon, okLon = number(t["lng"])
		}
		if !okLat || !okLon {
			return p, false
		}
		p = models.GeoPoint{Lat: lat, Lon: lon}
	case []interface{}:
		if len(t) != 2 {
			return p, false
		}
		lon, okLon := number(t[0])
		lat, okLat := number(t[1])
		if !okLat || !okLon {
			return p, false
		}
		p = models.GeoPoint{Lat: lat, Lon: lon}
	case string:
		parts := strings.Split(t, ",")
		if len(parts) != 2 {
			return p, false
		}
		lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		lon, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err1 != nil || err2 != nil {
			return p, false
		}
		p = models.GeoPoint{Lat: lat, Lon: lon}
	default:
		return p, false
	}
	return p, p.Validate() == nil
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
