package fragment

import (
	"reflect"
	"testing"

	"github.com/gridarray/engine/internal/engineerr"
	"github.com/gridarray/engine/internal/schema"
)

func bookkeepingTestSchema(t *testing.T) *schema.Schema {
	t.Helper()
	dom := schema.Domain{Dimensions: []schema.Dimension{
		{Name: "x", Datatype: schema.Int32, Lo: 0, Hi: 7, TileExtent: 4},
		{Name: "y", Datatype: schema.Int32, Lo: 0, Hi: 3, TileExtent: 4},
	}}
	attrs := []schema.Attribute{
		{Name: "a", Datatype: schema.Int32, CellValNum: 1, Compressor: schema.CompressorNone},
		{Name: "s", Datatype: schema.Uint8, CellValNum: schema.VarNum, Compressor: schema.CompressorNone},
	}
	s, err := schema.New(schema.Dense, dom, attrs, schema.RowMajor, schema.RowMajor, 0)
	if err != nil {
		t.Fatalf("schema.New: %v", err)
	}
	return s
}

func sampleBookkeeping(sch *schema.Schema) *Bookkeeping {
	bk := NewBookkeeping(sch, 3)
	bk.DomainLo = []int64{0, 0}
	bk.DomainHi = []int64{7, 3}
	bk.TileCount = 2
	bk.MBRs = []MBR{
		{Lo: []int64{0, 0}, Hi: []int64{3, 3}},
		{Lo: []int64{4, 0}, Hi: []int64{7, 3}},
	}
	bk.TileCellCounts = []uint64{16, 16}
	bk.Attributes["a"].TileOffsets = []uint64{0, 64}
	bk.Attributes["s"].TileOffsets = []uint64{0, 128}
	bk.Attributes["s"].VarOffsets = []uint64{0, 300}
	bk.Attributes["s"].VarSizes = []uint64{300, 240}
	return bk
}

func TestBookkeepingRoundTrip(t *testing.T) {
	sch := bookkeepingTestSchema(t)
	bk := sampleBookkeeping(sch)

	data, err := bk.Marshal(sch)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := UnmarshalBookkeeping(data, sch)
	if err != nil {
		t.Fatalf("UnmarshalBookkeeping: %v", err)
	}
	if got.SchemaVersion != bk.SchemaVersion {
		t.Errorf("SchemaVersion = %d, want %d", got.SchemaVersion, bk.SchemaVersion)
	}
	if !reflect.DeepEqual(got.DomainLo, bk.DomainLo) || !reflect.DeepEqual(got.DomainHi, bk.DomainHi) {
		t.Errorf("domain = %v..%v, want %v..%v", got.DomainLo, got.DomainHi, bk.DomainLo, bk.DomainHi)
	}
	if !reflect.DeepEqual(got.MBRs, bk.MBRs) {
		t.Errorf("MBRs = %v, want %v", got.MBRs, bk.MBRs)
	}
	if !reflect.DeepEqual(got.TileCellCounts, bk.TileCellCounts) {
		t.Errorf("TileCellCounts = %v, want %v", got.TileCellCounts, bk.TileCellCounts)
	}
	if !reflect.DeepEqual(got.Attributes["s"], bk.Attributes["s"]) {
		t.Errorf("var attribute vectors = %+v, want %+v", got.Attributes["s"], bk.Attributes["s"])
	}
}

func TestBookkeepingCRCMismatch(t *testing.T) {
	sch := bookkeepingTestSchema(t)
	data, err := sampleBookkeeping(sch).Marshal(sch)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	data[0] ^= 0xff
	if _, err := UnmarshalBookkeeping(data, sch); engineerr.KindOf(err) != engineerr.FormatError {
		t.Errorf("corrupted body: err = %v, want FormatError", err)
	}
}

func TestBookkeepingTruncated(t *testing.T) {
	sch := bookkeepingTestSchema(t)
	data, err := sampleBookkeeping(sch).Marshal(sch)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for _, n := range []int{0, 3, len(data) - 1} {
		if _, err := UnmarshalBookkeeping(data[:n], sch); engineerr.KindOf(err) != engineerr.FormatError {
			t.Errorf("truncated to %d bytes: err = %v, want FormatError", n, err)
		}
	}
}
