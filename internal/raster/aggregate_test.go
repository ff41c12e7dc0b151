package raster

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flood-ground-truth-etl/internal/domain"
)

// labeledAt builds a w x h raster with 1m pixels and top-left corner (x0, y0).
func labeledAt(x0, y0 float64, w, h int, fill domain.Category) *Labeled {
	return NewLabeled(Grid{Width: w, Height: h, Transform: NorthUp(x0, y0, 1, 1), CRS: testCRS}, fill)
}

func TestAggregate_CentreHydrologyScenario(t *testing.T) {
	a := labeledAt(0, 3, 3, 3, domain.Land)
	b := labeledAt(0, 3, 3, 3, domain.Land)
	b.Set(1, 1, domain.Hydrology)

	out, err := Aggregate([]*Labeled{a, b})
	require.NoError(t, err)
	assert.Equal(t, b.Data, out.Data)
	assert.True(t, out.Grid.Aligned(b.Grid))
}

func TestAggregate_UnionLaw(t *testing.T) {
	a := labeledAt(0, 4, 4, 4, domain.Land)
	a.Set(0, 0, domain.Invalid)
	a.Set(1, 2, domain.Flood)
	a.Set(3, 3, domain.Hydrology)
	b := &Labeled{Grid: a.Grid, Data: append([]domain.Category(nil), a.Data...)}

	out, err := Aggregate([]*Labeled{a, b})
	require.NoError(t, err)
	if diff := cmp.Diff(a, out); diff != "" {
		t.Errorf("aggregate of identical rasters changed (-want +got):\n%s", diff)
	}
}

func TestAggregate_Priority(t *testing.T) {
	tests := []struct {
		name string
		vals []domain.Category
		want domain.Category
	}{
		{"land and flood", []domain.Category{domain.Land, domain.Flood}, domain.Flood},
		{"flood and hydrology", []domain.Category{domain.Flood, domain.Hydrology}, domain.Hydrology},
		{"water recedes later", []domain.Category{domain.Hydrology, domain.Land, domain.Flood}, domain.Hydrology},
		{"invalid and land", []domain.Category{domain.Invalid, domain.Land}, domain.Land},
		{"invalid everywhere", []domain.Category{domain.Invalid, domain.Invalid}, domain.Invalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var in []*Labeled
			for _, v := range tt.vals {
				in = append(in, labeledAt(0, 1, 1, 1, v))
			}
			out, err := Aggregate(in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.At(0, 0))
		})
	}
}

func TestAggregate_SingleRasterPassesThrough(t *testing.T) {
	a := labeledAt(10, 20, 5, 3, domain.Land)
	a.Set(4, 2, domain.Flood)
	a.Set(0, 0, domain.Invalid)

	out, err := Aggregate([]*Labeled{a})
	require.NoError(t, err)
	assert.Equal(t, a.Data, out.Data)
	assert.True(t, out.Grid.Aligned(a.Grid))
}

func TestAggregate_NoRasters(t *testing.T) {
	_, err := Aggregate(nil)
	require.ErrorIs(t, err, domain.ErrNoRasters)
	assert.Equal(t, domain.KindInvariant, domain.KindOf(err))
}

func TestReconcile_PartialOverlap(t *testing.T) {
	// a covers x 0..10, y 0..10; b covers x 2..14, y -4..8.
	a := labeledAt(0, 10, 10, 10, domain.Land)
	b := labeledAt(2, 8, 12, 12, domain.Land)
	a.Set(2, 2, domain.Flood)   // world (2..3, 7..8), first shared pixel
	b.Set(0, 0, domain.Invalid) // same world pixel in b

	out, err := Reconcile([]*Labeled{a, b})
	require.NoError(t, err)
	require.Len(t, out, 2)
	for _, r := range out {
		assert.Equal(t, 8, r.Grid.Width)
		assert.Equal(t, 8, r.Grid.Height)
	}
	assert.True(t, out[0].Grid.Aligned(out[1].Grid))
	assert.Equal(t, NorthUp(2, 8, 1, 1), out[0].Grid.Transform)
	assert.Equal(t, domain.Flood, out[0].At(0, 0))
	assert.Equal(t, domain.Invalid, out[1].At(0, 0))

	merged, err := Aggregate([]*Labeled{a, b})
	require.NoError(t, err)
	assert.Equal(t, domain.Flood, merged.At(0, 0))
	assert.Equal(t, 64, merged.Grid.Len())
}

func TestReconcile_SubPixelOffsetSnapsToLargest(t *testing.T) {
	a := labeledAt(0.2, 10.2, 10, 10, domain.Land)
	b := labeledAt(0, 10, 12, 12, domain.Flood)

	out, err := Reconcile([]*Labeled{a, b})
	require.NoError(t, err)
	assert.Equal(t, out[0].Grid, out[1].Grid)
	assert.Equal(t, 10, out[1].Grid.Width)
	assert.Equal(t, 10, out[1].Grid.Height)
}

func TestReconcile_NoOverlap(t *testing.T) {
	a := labeledAt(0, 10, 10, 10, domain.Land)
	b := labeledAt(20, 10, 12, 12, domain.Land)

	out, err := Reconcile([]*Labeled{a, b})
	require.ErrorIs(t, err, domain.ErrNoOverlap)
	assert.Nil(t, out)
	assert.Equal(t, domain.KindSourceFormat, domain.KindOf(err))

	_, err = Aggregate([]*Labeled{a, b})
	require.ErrorIs(t, err, domain.ErrNoOverlap)
}

func TestReconcile_RasterMissingSharedExtent(t *testing.T) {
	largest := labeledAt(0, 12, 12, 12, domain.Land)
	smallest := labeledAt(0, 4, 4, 4, domain.Land)

	t.Run("partial cover", func(t *testing.T) {
		partial := labeledAt(2, 6, 6, 6, domain.Land)
		_, err := Reconcile([]*Labeled{largest, smallest, partial})
		require.ErrorIs(t, err, domain.ErrShapeMismatch)
	})

	t.Run("disjoint", func(t *testing.T) {
		far := labeledAt(20, 20, 5, 5, domain.Land)
		_, err := Reconcile([]*Labeled{largest, smallest, far})
		require.ErrorIs(t, err, domain.ErrNoOverlap)
	})
}

func TestReconcile_CRSMismatch(t *testing.T) {
	a := labeledAt(0, 3, 3, 3, domain.Land)
	b := labeledAt(0, 3, 3, 3, domain.Land)
	b.Grid.CRS = "EPSG:4326"

	_, err := Reconcile([]*Labeled{a, b})
	require.ErrorIs(t, err, domain.ErrCRSMismatch)
}

func TestGridWindow(t *testing.T) {
	g := unitGrid(10, 10)
	w, err := g.Window(labeledAt(2, 8, 3, 4, 0).Grid.Bounds())
	require.NoError(t, err)
	assert.Equal(t, Window{ColOff: 2, RowOff: 2, Width: 3, Height: 4}, w)

	w, err = g.Window(labeledAt(-5, 15, 8, 8, 0).Grid.Bounds())
	require.NoError(t, err)
	assert.Equal(t, Window{ColOff: 0, RowOff: 0, Width: 3, Height: 3}, w, "clamped to the grid")

	_, err = g.Window(labeledAt(50, 50, 2, 2, 0).Grid.Bounds())
	require.ErrorIs(t, err, domain.ErrNoOverlap)
}

func TestAffineInvert(t *testing.T) {
	a := Affine{500000, 10, 0.5, 9000000, 0.25, -10}
	inv, err := a.Invert()
	require.NoError(t, err)
	x, y := a.Apply(12, 34)
	c, r := inv.Apply(x, y)
	assert.InDelta(t, 12, c, 1e-9)
	assert.InDelta(t, 34, r, 1e-9)

	_, err = Affine{0, 0, 0, 0, 0, 0}.Invert()
	assert.Error(t, err)
}

func TestLabeledCropAndValidate(t *testing.T) {
	l := labeledAt(0, 4, 4, 4, domain.Land)
	l.Set(2, 1, domain.Flood)

	c, err := l.Crop(Window{ColOff: 2, RowOff: 1, Width: 2, Height: 2})
	require.NoError(t, err)
	assert.Equal(t, []domain.Category{domain.Flood, domain.Land, domain.Land, domain.Land}, c.Data)
	assert.Equal(t, NorthUp(2, 3, 1, 1), c.Grid.Transform)

	_, err = l.Crop(Window{ColOff: 3, RowOff: 3, Width: 2, Height: 2})
	assert.Error(t, err)

	assert.NoError(t, l.Validate())
	l.Data[0] = 7
	assert.Error(t, l.Validate())
}
