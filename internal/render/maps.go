package render

import (
	"context"
	"errors"
	"strings"

	"github.com/datachat/datachat/internal/analytics"
	"github.com/datachat/datachat/internal/apperr"
	"github.com/datachat/datachat/internal/geo"
)

type mapMarker struct {
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Label string  `json:"label"`
}

type mapPayload struct {
	Markers []mapMarker `json:"markers"`
}

// FormatAddress joins all non-null fields of a result row with ", " to
// build a geocodable string.
func FormatAddress(row []any) string {
	parts := make([]string, 0, len(row))
	for _, cell := range row {
		if cell == nil {
			continue
		}
		s := strings.TrimSpace(cellString(cell))
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

// buildMap geocodes each result row independently and embeds one marker per
// row. The boolean is false when no row could be geocoded at all; callers
// fall back to a table. A provider failure (anything but a miss) is an
// error.
func buildMap(ctx context.Context, g geo.Geocoder, res *analytics.Result) (string, bool, error) {
	markers := make([]mapMarker, 0, len(res.Rows))
	for _, row := range res.Rows {
		address := FormatAddress(row)
		point, err := geo.ResolveWithFallback(ctx, g, address)
		if err != nil {
			if errors.Is(err, geo.ErrNotFound) {
				continue
			}
			return "", false, &apperr.Provider{Op: "geocode", Err: err}
		}
		markers = append(markers, mapMarker{Lat: point.Lat, Lng: point.Lng, Label: address})
	}
	if len(markers) == 0 {
		return "", false, nil
	}

	body, err := embedPayload("map", mapPayload{Markers: markers})
	if err != nil {
		return "", false, err
	}
	return body, true, nil
}
