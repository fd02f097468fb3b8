package schema

import "testing"

func denseSchema(t *testing.T) *Schema {
	t.Helper()
	dom := Domain{Dimensions: []Dimension{
		{Name: "x", Datatype: Int32, Lo: 0, Hi: 99, TileExtent: 10},
		{Name: "y", Datatype: Int32, Lo: 0, Hi: 99, TileExtent: 10},
	}}
	attrs := []Attribute{
		{Name: "temp", Datatype: Float64, CellValNum: 1, Compressor: CompressorZstd, Level: -1},
	}
	s, err := New(Dense, dom, attrs, RowMajor, RowMajor, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestNewDenseSchema(t *testing.T) {
	s := denseSchema(t)
	if s.Domain.CellNum() != 10000 {
		t.Errorf("CellNum = %d, want 10000", s.Domain.CellNum())
	}
	if s.Domain.TileNum() != 100 {
		t.Errorf("TileNum = %d, want 100", s.Domain.TileNum())
	}
}

func TestNewRejectsUnevenTileExtent(t *testing.T) {
	dom := Domain{Dimensions: []Dimension{
		{Name: "x", Datatype: Int32, Lo: 0, Hi: 99, TileExtent: 7},
	}}
	attrs := []Attribute{{Name: "v", Datatype: Int32, CellValNum: 1}}
	if _, err := New(Dense, dom, attrs, RowMajor, RowMajor, 0); err == nil {
		t.Fatal("expected an error for a tile extent that does not evenly divide the domain")
	}
}

func TestNewRejectsSparseWithoutCapacity(t *testing.T) {
	dom := Domain{Dimensions: []Dimension{
		{Name: "x", Datatype: Int32, Lo: 0, Hi: 99},
	}}
	attrs := []Attribute{{Name: "v", Datatype: Int32, CellValNum: 1}}
	if _, err := New(Sparse, dom, attrs, RowMajor, RowMajor, 0); err == nil {
		t.Fatal("expected an error for a sparse schema with zero capacity")
	}
}

func TestNewRejectsDuplicateDimensionNames(t *testing.T) {
	dom := Domain{Dimensions: []Dimension{
		{Name: "x", Datatype: Int32, Lo: 0, Hi: 9, TileExtent: 1},
		{Name: "x", Datatype: Int32, Lo: 0, Hi: 9, TileExtent: 1},
	}}
	attrs := []Attribute{{Name: "v", Datatype: Int32, CellValNum: 1}}
	if _, err := New(Dense, dom, attrs, RowMajor, RowMajor, 0); err == nil {
		t.Fatal("expected an error for duplicate dimension names")
	}
}

func TestNewRejectsAttributeCollidingWithDimension(t *testing.T) {
	dom := Domain{Dimensions: []Dimension{
		{Name: "x", Datatype: Int32, Lo: 0, Hi: 9, TileExtent: 1},
	}}
	attrs := []Attribute{{Name: "x", Datatype: Int32, CellValNum: 1}}
	if _, err := New(Dense, dom, attrs, RowMajor, RowMajor, 0); err == nil {
		t.Fatal("expected an error for an attribute named the same as a dimension")
	}
}

func TestNewRejectsOutOfRangeDomain(t *testing.T) {
	dom := Domain{Dimensions: []Dimension{
		{Name: "x", Datatype: Int8, Lo: 0, Hi: 1000, TileExtent: 10},
	}}
	attrs := []Attribute{{Name: "v", Datatype: Int32, CellValNum: 1}}
	if _, err := New(Dense, dom, attrs, RowMajor, RowMajor, 0); err == nil {
		t.Fatal("expected an error for domain bounds exceeding the coordinate type's range")
	}
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	s := denseSchema(t)
	data, err := s.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Domain.Rank() != s.Domain.Rank() {
		t.Errorf("rank = %d, want %d", got.Domain.Rank(), s.Domain.Rank())
	}
	if got.Attributes[0].Name != "temp" || got.Attributes[0].Compressor != CompressorZstd {
		t.Errorf("attribute round-trip mismatch: %+v", got.Attributes[0])
	}
}

func TestMarshalUnmarshalVarLengthAttribute(t *testing.T) {
	dom := Domain{Dimensions: []Dimension{{Name: "x", Datatype: Int32, Lo: 0, Hi: 9, TileExtent: 1}}}
	attrs := []Attribute{{Name: "label", Datatype: Uint8, CellValNum: VarNum, Compressor: CompressorGzip}}
	s, err := New(Dense, dom, attrs, RowMajor, RowMajor, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	data, err := s.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !got.Attributes[0].IsVarLength() {
		t.Errorf("expected var-length attribute to round-trip, got CellValNum=%d", got.Attributes[0].CellValNum)
	}
}

func TestUnmarshalRejectsCorruptCRC(t *testing.T) {
	s := denseSchema(t)
	data, err := s.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	data[0] ^= 0xFF
	if _, err := Unmarshal(data); err == nil {
		t.Fatal("expected a FormatError for a corrupted schema file")
	}
}
