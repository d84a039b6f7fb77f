package geotiff

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/wrg-explorer/internal/layer"
	"github.com/banshee-data/wrg-explorer/internal/wrg"
)

// ramp returns a raster whose value encodes its (col, row) position.
func ramp(w, h int, dtype wrg.DType) *layer.Raster {
	r := &layer.Raster{Width: w, Height: h, Data: make([]float64, w*h), DType: dtype}
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			r.Data[row*w+col] = float64(10*row + col)
		}
	}
	return r
}

func TestTransform(t *testing.T) {
	tr := GridTransform(499950, 6000250, 100)
	x, y := tr.Apply(0, 0)
	assert.Equal(t, 499950.0, x)
	assert.Equal(t, 6000250.0, y)
	x, y = tr.Apply(4, 3)
	assert.Equal(t, 500350.0, x)
	assert.Equal(t, 5999950.0, y)
	assert.True(t, tr.NorthUp())

	assert.Equal(t, tr, tr.Mul(Identity))
	assert.Equal(t, tr, Identity.Mul(tr))
	assert.False(t, Transform{A: 1, B: 0.5, E: 1}.NorthUp())
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		dtype wrg.DType
		comp  Compression
	}{
		{"float32", wrg.Float32, NoCompression},
		{"float64", wrg.Float64, NoCompression},
		{"float32 deflate", wrg.Float32, Deflate},
		{"float64 deflate", wrg.Float64, Deflate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := ramp(5, 3, tt.dtype)
			tr := GridTransform(100, 600, 50)
			crs := &CRS{AuthName: "EPSG", Code: "32631", Model: ModelProjected}

			b, err := Bytes(src, Options{Transform: tr, CRS: crs, Compression: tt.comp})
			require.NoError(t, err)

			img, err := Decode(bytes.NewReader(b))
			require.NoError(t, err)
			if diff := cmp.Diff(src, img.Raster); diff != "" {
				t.Errorf("raster mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, tr, img.Transform)
			assert.Equal(t, crs, img.CRS)
			assert.Equal(t, tt.comp, img.Compression)
		})
	}
}

func TestEncode_NorthernRowFirst(t *testing.T) {
	src := ramp(2, 3, wrg.Float32)
	b, err := Bytes(src, Options{})
	require.NoError(t, err)

	// Uncompressed strips follow the IFD; the first pixel is the top-left
	// sample which is raster row Height-1.
	offsets := stripOffsets(t, b)
	first := math.Float32frombits(binary.LittleEndian.Uint32(b[offsets[0]:]))
	assert.Equal(t, float32(20), first)
	last := math.Float32frombits(binary.LittleEndian.Uint32(b[offsets[2]+4:]))
	assert.Equal(t, float32(1), last)
}

func stripOffsets(t *testing.T, b []byte) []uint32 {
	t.Helper()
	d := &decoder{buf: b, bo: binary.LittleEndian, fields: map[uint16]rawField{}}
	require.NoError(t, d.readIFD(int(binary.LittleEndian.Uint32(b[4:]))))
	var out []uint32
	for _, v := range d.uints(tagStripOffsets) {
		out = append(out, uint32(v))
	}
	return out
}

func TestEncode_NoCRS(t *testing.T) {
	b, err := Bytes(ramp(3, 2, wrg.Float32), Options{Transform: GridTransform(0, 10, 5)})
	require.NoError(t, err)

	img, err := Decode(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Nil(t, img.CRS)

	d := &decoder{buf: b, bo: binary.LittleEndian, fields: map[uint16]rawField{}}
	require.NoError(t, d.readIFD(8))
	_, ok := d.fields[tagGeoKeyDirectory]
	assert.False(t, ok)
	_, ok = d.fields[tagModelTiepoint]
	assert.True(t, ok)
}

func TestEncode_CRSKinds(t *testing.T) {
	tests := []struct {
		name string
		crs  CRS
		want CRS
	}{
		{
			name: "geographic epsg",
			crs:  CRS{AuthName: "EPSG", Code: "4326", Model: ModelGeographic},
			want: CRS{AuthName: "EPSG", Code: "4326", Model: ModelGeographic},
		},
		{
			name: "lower case authority",
			crs:  CRS{AuthName: "epsg", Code: "3857", Model: ModelProjected},
			want: CRS{AuthName: "EPSG", Code: "3857", Model: ModelProjected},
		},
		{
			name: "other authority",
			crs:  CRS{AuthName: "ESRI", Code: "54030", Model: ModelProjected},
			want: CRS{AuthName: "ESRI", Code: "54030", Model: ModelProjected},
		},
		{
			name: "code beyond short range",
			crs:  CRS{AuthName: "EPSG", Code: "102100", Model: ModelProjected},
			want: CRS{AuthName: "EPSG", Code: "102100", Model: ModelProjected},
		},
		{
			name: "non numeric code",
			crs:  CRS{AuthName: "IGNF", Code: "LAMB93", Model: ModelProjected},
			want: CRS{AuthName: "IGNF", Code: "LAMB93", Model: ModelProjected},
		},
		{
			name: "geocentric epsg",
			crs:  CRS{AuthName: "EPSG", Code: "4978", Model: ModelGeocentric},
			want: CRS{AuthName: "EPSG", Code: "4978", Model: ModelGeocentric},
		},
		{
			name: "user defined model",
			crs:  CRS{AuthName: "EPSG", Code: "5773", Model: ModelUserDefined},
			want: CRS{AuthName: "EPSG", Code: "5773", Model: ModelUserDefined},
		},
		{
			name: "default model",
			crs:  CRS{AuthName: "EPSG", Code: "25832"},
			want: CRS{AuthName: "EPSG", Code: "25832", Model: ModelProjected},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.crs
			b, err := Bytes(ramp(2, 2, wrg.Float32), Options{Transform: GridTransform(0, 2, 1), CRS: &c})
			require.NoError(t, err)
			img, err := Decode(bytes.NewReader(b))
			require.NoError(t, err)
			require.NotNil(t, img.CRS)
			assert.Equal(t, tt.want, *img.CRS)
		})
	}
}

func TestGeoKeys_GeocentricIsUserDefined(t *testing.T) {
	keyValue := func(dir []uint16, id uint16) (uint16, bool) {
		for i := 4; i+3 < len(dir); i += 4 {
			if dir[i] == id {
				return dir[i+3], true
			}
		}
		return 0, false
	}

	dir, params := geoKeys(CRS{AuthName: "EPSG", Code: "4978", Model: ModelGeocentric})
	assert.Equal(t, "EPSG:4978|", params)
	v, ok := keyValue(dir, keyGeographicType)
	require.True(t, ok)
	assert.Equal(t, uint16(userDefined), v)
	_, ok = keyValue(dir, keyProjectedCSType)
	assert.False(t, ok)

	dir, params = geoKeys(CRS{AuthName: "EPSG", Code: "4326", Model: ModelGeographic})
	assert.Empty(t, params)
	v, ok = keyValue(dir, keyGeographicType)
	require.True(t, ok)
	assert.Equal(t, uint16(4326), v)
}

func TestEncode_RotatedTransform(t *testing.T) {
	tr := Transform{A: 10, B: 2, C: 1000, D: 1, E: -10, F: 5000}
	b, err := Bytes(ramp(3, 3, wrg.Float64), Options{Transform: tr})
	require.NoError(t, err)
	img, err := Decode(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, tr, img.Transform)
}

func TestEncode_Deterministic(t *testing.T) {
	src := ramp(40, 30, wrg.Float32)
	opts := Options{Transform: GridTransform(0, 30, 1), CRS: &CRS{AuthName: "EPSG", Code: "32630"}, Compression: Deflate}
	want, err := Bytes(src, opts)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([][]byte, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = Bytes(src, opts)
		}(i)
	}
	wg.Wait()
	for i, got := range results {
		assert.True(t, bytes.Equal(want, got), "encode %d differs", i)
	}
}

func TestEncode_NaNSurvives(t *testing.T) {
	src := ramp(2, 2, wrg.Float32)
	src.Data[1] = math.NaN()
	b, err := Bytes(src, Options{})
	require.NoError(t, err)
	img, err := Decode(bytes.NewReader(b))
	require.NoError(t, err)
	assert.True(t, math.IsNaN(img.Raster.Data[1]))
	assert.Equal(t, 0.0, img.Raster.Data[0])
}

func TestEncode_Errors(t *testing.T) {
	_, err := Bytes(nil, Options{})
	assert.True(t, errors.Is(err, ErrInvalid))

	_, err = Bytes(&layer.Raster{Width: 2, Height: 2, Data: []float64{1}, DType: wrg.Float32}, Options{})
	assert.True(t, errors.Is(err, ErrInvalid))

	_, err = Bytes(&layer.Raster{Width: 1, Height: 1, Data: []float64{1}, DType: "int16"}, Options{})
	assert.True(t, errors.Is(err, ErrUnsupportedDType))

	_, err = Bytes(ramp(1, 1, wrg.Float32), Options{Compression: 5})
	assert.True(t, errors.Is(err, ErrInvalid))
}

// rawTIFF builds a single-strip float32 TIFF by hand.
func rawTIFF(bo binary.AppendByteOrder, width, height uint32, comp uint16, pixels []byte) []byte {
	var b bytes.Buffer
	if bo == binary.BigEndian {
		b.WriteString("MM")
	} else {
		b.WriteString("II")
	}
	b.Write(bo.AppendUint16(nil, 42))
	b.Write(bo.AppendUint32(nil, 8))
	entries := []struct {
		tag, typ uint16
		value    uint32
	}{
		{tagImageWidth, typeLong, width},
		{tagImageLength, typeLong, height},
		{tagBitsPerSample, typeShort, 32},
		{tagCompression, typeShort, uint32(comp)},
		{tagStripOffsets, typeLong, 8 + 2 + 12*7 + 4},
		{tagStripByteCounts, typeLong, uint32(len(pixels))},
		{tagSampleFormat, typeShort, sampleFormatIEEEFloat},
	}
	b.Write(bo.AppendUint16(nil, uint16(len(entries))))
	for _, e := range entries {
		b.Write(bo.AppendUint16(nil, e.tag))
		b.Write(bo.AppendUint16(nil, e.typ))
		b.Write(bo.AppendUint32(nil, 1))
		if e.typ == typeShort {
			b.Write(bo.AppendUint16(nil, uint16(e.value)))
			b.Write([]byte{0, 0})
		} else {
			b.Write(bo.AppendUint32(nil, e.value))
		}
	}
	b.Write([]byte{0, 0, 0, 0})
	b.Write(pixels)
	return b.Bytes()
}

func TestDecode_BigEndian(t *testing.T) {
	// 2x1 float32 image, big-endian, one strip.
	be := binary.BigEndian
	pixels := be.AppendUint32(nil, math.Float32bits(1.5))
	pixels = be.AppendUint32(pixels, math.Float32bits(-2))

	img, err := Decode(bytes.NewReader(rawTIFF(be, 2, 1, uint16(NoCompression), pixels)))
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, -2}, img.Raster.Data)
	assert.Equal(t, wrg.Float32, img.Raster.DType)
	assert.Equal(t, NoCompression, img.Compression)
	assert.Equal(t, Transform{}, img.Transform)
	assert.Nil(t, img.CRS)
}

func TestDecode_OversizedDimensions(t *testing.T) {
	le := binary.LittleEndian
	pixels := le.AppendUint32(nil, math.Float32bits(1))

	var deflated bytes.Buffer
	zw := zlib.NewWriter(&deflated)
	_, err := zw.Write(make([]byte, 1<<16))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	tests := []struct {
		name   string
		w, h   uint32
		comp   Compression
		pixels []byte
	}{
		{"max dimensions", math.MaxUint32, math.MaxUint32, NoCompression, pixels},
		{"wraps to small product", 1 << 31, 2, NoCompression, pixels},
		{"over pixel cap", MaxPixels, 2, Deflate, deflated.Bytes()},
		{"larger than file", 1000, 1000, NoCompression, pixels},
		{"deflated short", 1000, 1000, Deflate, deflated.Bytes()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := rawTIFF(le, tt.w, tt.h, uint16(tt.comp), tt.pixels)
			var err error
			require.NotPanics(t, func() { _, err = Decode(bytes.NewReader(b)) })
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestDecode_Invalid(t *testing.T) {
	for name, in := range map[string][]byte{
		"empty":      nil,
		"bad mark":   []byte("XX*\x00\x08\x00\x00\x00"),
		"bigtiff":    []byte("II+\x00\x08\x00\x00\x00"),
		"ifd offset": []byte("II*\x00\xff\x00\x00\x00"),
	} {
		_, err := Decode(bytes.NewReader(in))
		assert.True(t, errors.Is(err, ErrInvalid), name)
	}
}

func TestParseCompression(t *testing.T) {
	c, err := ParseCompression("")
	require.NoError(t, err)
	assert.Equal(t, NoCompression, c)

	c, err = ParseCompression("Deflate")
	require.NoError(t, err)
	assert.Equal(t, Deflate, c)
	assert.Equal(t, "deflate", c.String())

	_, err = ParseCompression("lzw")
	assert.Error(t, err)
}
