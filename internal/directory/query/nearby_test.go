package query

import (
	"context"
	"math"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/errors"
)

func TestNearbySortsByDistance(t *testing.T) {
	e := newEngine(t,
		`{"source_id":"far","name":"Far","city":"Минск","extra":{"lat":53.95,"lng":27.60}}`,
		`{"source_id":"near","name":"Near","city":"Минск","extra":{"lat":53.901,"lng":27.561}}`,
		`{"source_id":"brest","name":"Brest","city":"Брест","extra":{"lat":52.09,"lng":23.73}}`,
		`{"source_id":"nogeo","name":"No geo","city":"Минск"}`,
	)
	resp, err := e.Nearby(context.Background(), 53.9, 27.56, 10, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 2 || len(resp.Companies) != 2 {
		t.Fatalf("expected 2 companies within 10 km, got %d", resp.Total)
	}
	if resp.Companies[0].ID != "near" || resp.Companies[1].ID != "far" {
		t.Errorf("expected near before far, got %s, %s", resp.Companies[0].ID, resp.Companies[1].ID)
	}
	if d := resp.Companies[0].DistanceKm; d <= 0 || d > 0.5 {
		t.Errorf("unexpected distance for near: %v", d)
	}
}

func TestNearbyRadiusDefaultsAndClamp(t *testing.T) {
	e := newEngine(t, `{"source_id":"a","extra":{"lat":53.9,"lng":27.56}}`)
	tests := []struct {
		in, want float64
	}{
		{0, 5},
		{-1, 5},
		{math.NaN(), 5},
		{250, 100},
		{12.5, 12.5},
	}
	for _, tt := range tests {
		resp, err := e.Nearby(context.Background(), 53.9, 27.56, tt.in, "", 5)
		if err != nil {
			t.Fatal(err)
		}
		if resp.RadiusKm != tt.want {
			t.Errorf("radius %v: expected %v, got %v", tt.in, tt.want, resp.RadiusKm)
		}
	}
}

func TestNearbyRejectsBadCoordinates(t *testing.T) {
	e := newEngine(t, `{"source_id":"a"}`)
	for _, c := range [][2]float64{{91, 0}, {0, 181}, {math.NaN(), 1}, {1, math.Inf(1)}} {
		_, err := e.Nearby(context.Background(), c[0], c[1], 5, "", 5)
		if apperrors.KindOf(err) != apperrors.KindInvalidInput {
			t.Errorf("coordinates %v: expected invalid input, got %v", c, err)
		}
	}
}

func TestNearbyRegionFilter(t *testing.T) {
	e := newEngine(t,
		`{"source_id":"m","city":"Минск","extra":{"lat":53.9,"lng":27.56}}`,
		`{"source_id":"r","address":"Минский район","extra":{"lat":53.91,"lng":27.57}}`,
	)
	resp, err := e.Nearby(context.Background(), 53.9, 27.56, 20, "minsk-region", 0)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 2 {
		t.Errorf("expected alias to include both, got %d", resp.Total)
	}
	resp, err = e.Nearby(context.Background(), 53.9, 27.56, 20, "gomel", 0)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 0 || resp.Companies == nil {
		t.Errorf("expected empty non-nil result, got %+v", resp)
	}
}
