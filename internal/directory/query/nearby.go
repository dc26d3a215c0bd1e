package query

import (
	"context"
	"math"
	"slices"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/region"
	apperrors "github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/errors"
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

const (
	earthRadiusKm   = 6371.0088
	defaultRadiusKm = 5
	maxRadiusKm     = 100
)

// Nearby lists companies with coordinates within radiusKm of (lat, lng),
// closest first. Ties keep load order.
func (e *Engine) Nearby(ctx context.Context, lat, lng, radiusKm float64, regionRaw string, limit int) (resp *NearbyResponse, err error) {
	defer e.observe("nearby", time.Now(), &err, func() bool { return resp.Total == 0 })
	if !finite(lat) || !finite(lng) {
		return nil, apperrors.InvalidInput("coordinates must be finite numbers")
	}
	center := s2.LatLngFromDegrees(lat, lng)
	if !center.IsValid() {
		return nil, apperrors.InvalidInput("coordinates out of range: %g,%g", lat, lng)
	}
	switch {
	case !finite(radiusKm) || radiusKm <= 0:
		radiusKm = defaultRadiusKm
	case radiusKm > maxRadiusKm:
		radiusKm = maxRadiusKm
	}
	limit = e.clampLimit(limit)

	ix, err := e.source.Get(ctx)
	if err != nil {
		return nil, err
	}
	f := region.ParseFilter(regionRaw)
	maxAngle := s1.Angle(radiusKm / earthRadiusKm)

	type hit struct {
		id    string
		angle s1.Angle
	}
	var hits []hit
	for _, p := range ix.Points() {
		if !f.Match(ix.Region(p.ID)) {
			continue
		}
		d := center.Distance(p.LatLng)
		if d > maxAngle {
			continue
		}
		hits = append(hits, hit{id: p.ID, angle: d})
	}
	slices.SortStableFunc(hits, func(a, b hit) int {
		switch {
		case a.angle < b.angle:
			return -1
		case a.angle > b.angle:
			return 1
		}
		return 0
	})

	resp = &NearbyResponse{
		Lat:       lat,
		Lng:       lng,
		RadiusKm:  radiusKm,
		Total:     len(hits),
		Companies: make([]NearbyCompany, 0, min(limit, len(hits))),
	}
	for _, h := range hits[:min(limit, len(hits))] {
		s, _ := ix.Summary(h.id)
		resp.Companies = append(resp.Companies, NearbyCompany{
			Summary:    s,
			DistanceKm: math.Round(float64(h.angle)*earthRadiusKm*1000) / 1000,
		})
	}
	return resp, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
