package proj

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"

	"geoanalyzer/internal/model"
)

func TestForCRS_GeographicIsIdentity(t *testing.T) {
	tr, err := ForCRS("EPSG:4326", true)
	if err != nil {
		t.Fatalf("ForCRS: %v", err)
	}
	in := []orb.Point{{18.0686, 59.3293}}
	out, err := tr.Forward(in)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if out[0] != in[0] {
		t.Fatalf("identity transform moved point: %v", out[0])
	}
}

// Round-trip through Web-Mercator must recover coordinates to < 1e-6 deg.
func TestForCRS_MercatorRoundTrip(t *testing.T) {
	tr, err := ForCRS("EPSG:3857", false)
	if err != nil {
		t.Fatalf("ForCRS: %v", err)
	}
	in := []orb.Point{
		{0, 0},
		{18.0686, 59.3293},
		{-122.4194, 37.7749},
		{151.2093, -33.8688},
	}
	native, err := tr.Forward(in)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	back, err := tr.Inverse(native)
	if err != nil {
		t.Fatalf("Inverse: %v", err)
	}
	for i := range in {
		if math.Abs(back[i][0]-in[i][0]) > 1e-6 || math.Abs(back[i][1]-in[i][1]) > 1e-6 {
			t.Fatalf("round trip drifted at %d: in=%v back=%v", i, in[i], back[i])
		}
	}
}

func TestForCRS_UnknownCRSFailsAsGeometryError(t *testing.T) {
	_, err := ForCRS("EPSG:32632", false)
	if err == nil {
		t.Fatal("unknown CRS accepted without a registered factory")
	}
	if !errors.Is(err, model.ErrGeometry) {
		t.Fatalf("error kind = %v, want ErrGeometry", err)
	}
}

type fakeTransformer struct{}

func (fakeTransformer) Forward(pts []orb.Point) ([]orb.Point, error) { return pts, nil }
func (fakeTransformer) Inverse(pts []orb.Point) ([]orb.Point, error) { return pts, nil }

func TestRegister_FactoryConsulted(t *testing.T) {
	Register(func(crs string) (Transformer, bool) {
		if crs == "EPSG:9999" {
			return fakeTransformer{}, true
		}
		return nil, false
	})
	if _, err := ForCRS("EPSG:9999", false); err != nil {
		t.Fatalf("registered factory not consulted: %v", err)
	}
	if _, err := ForCRS("EPSG:8888", false); err == nil {
		t.Fatal("factory claimed a CRS it should not handle")
	}
}

func TestForwardPolygon_PreservesRingCount(t *testing.T) {
	tr, _ := ForCRS("EPSG:3857", false)
	p := orb.Polygon{
		{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}},
		{{0.2, 0.2}, {0.8, 0.2}, {0.8, 0.8}, {0.2, 0.8}, {0.2, 0.2}},
	}
	out, err := ForwardPolygon(tr, p)
	if err != nil {
		t.Fatalf("ForwardPolygon: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("ring count = %d, want 2", len(out))
	}
	if out[0][0] != out[0][len(out[0])-1] {
		t.Fatalf("transformed ring lost closure")
	}
}
