package geotiff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zlib"

	"github.com/banshee-data/wrg-explorer/internal/layer"
	"github.com/banshee-data/wrg-explorer/internal/wrg"
)

var le = binary.LittleEndian

// field is one IFD entry with its value already serialised.
type field struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

func shorts(tag uint16, v ...uint16) field {
	b := make([]byte, 2*len(v))
	for i, x := range v {
		le.PutUint16(b[2*i:], x)
	}
	return field{tag: tag, typ: typeShort, count: uint32(len(v)), data: b}
}

func longs(tag uint16, v ...uint32) field {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		le.PutUint32(b[4*i:], x)
	}
	return field{tag: tag, typ: typeLong, count: uint32(len(v)), data: b}
}

func doubles(tag uint16, v ...float64) field {
	b := make([]byte, 8*len(v))
	for i, x := range v {
		le.PutUint64(b[8*i:], math.Float64bits(x))
	}
	return field{tag: tag, typ: typeDouble, count: uint32(len(v)), data: b}
}

func ascii(tag uint16, s string) field {
	b := append([]byte(s), 0)
	return field{tag: tag, typ: typeASCII, count: uint32(len(b)), data: b}
}

// Bytes encodes r into memory.
func Bytes(r *layer.Raster, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, r, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode writes r as a single-band GeoTIFF. Raster row 0 is the southern
// row; the file stores the northern row first so that opts.Transform maps
// file pixel (0, 0) to the top-left corner.
func Encode(w io.Writer, r *layer.Raster, opts Options) error {
	if r == nil || r.Width <= 0 || r.Height <= 0 || len(r.Data) != r.Width*r.Height {
		return fmt.Errorf("%w: raster shape does not match its data", ErrInvalid)
	}
	if r.DType != wrg.Float32 && r.DType != wrg.Float64 {
		return fmt.Errorf("%w: %v", ErrUnsupportedDType, r.DType)
	}
	comp := opts.Compression
	if comp == 0 {
		comp = NoCompression
	}
	if comp != NoCompression && comp != Deflate {
		return fmt.Errorf("%w: compression %v", ErrInvalid, comp)
	}

	strips, err := encodeStrips(r, comp)
	if err != nil {
		return err
	}
	counts := make([]uint32, len(strips))
	for i, s := range strips {
		counts[i] = uint32(len(s))
	}

	bits := uint16(r.DType.Size() * 8)
	fields := []field{
		longs(tagImageWidth, uint32(r.Width)),
		longs(tagImageLength, uint32(r.Height)),
		shorts(tagBitsPerSample, bits),
		shorts(tagCompression, uint16(comp)),
		shorts(tagPhotometricInterpretation, photometricMinIsBlack),
		longs(tagStripOffsets, make([]uint32, len(strips))...),
		shorts(tagSamplesPerPixel, 1),
		longs(tagRowsPerStrip, 1),
		longs(tagStripByteCounts, counts...),
		shorts(tagPlanarConfiguration, 1),
		shorts(tagSampleFormat, sampleFormatIEEEFloat),
	}
	fields = append(fields, georeference(opts.Transform)...)
	if opts.CRS != nil {
		keys, params := geoKeys(*opts.CRS)
		fields = append(fields, shorts(tagGeoKeyDirectory, keys...))
		if params != "" {
			fields = append(fields, ascii(tagGeoASCIIParams, params))
		}
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].tag < fields[j].tag })

	// Lay out header, IFD, out-of-line values, then strips.
	pos := 8 + 2 + 12*len(fields) + 4
	offsets := make([]int, len(fields))
	var stripField *field
	for i := range fields {
		if fields[i].tag == tagStripOffsets {
			stripField = &fields[i]
		}
		if len(fields[i].data) > 4 {
			pos += pos & 1
			offsets[i] = pos
			pos += len(fields[i].data)
		}
	}
	pos += pos & 1
	for i, s := range strips {
		le.PutUint32(stripField.data[4*i:], uint32(pos))
		pos += len(s)
	}
	if int64(pos) > math.MaxUint32 {
		return fmt.Errorf("%w: %d bytes exceeds classic TIFF limit", ErrInvalid, pos)
	}

	bw := &countingWriter{w: w}
	bw.write([]byte{'I', 'I', 42, 0, 8, 0, 0, 0})
	entry := make([]byte, 12)
	bw.write(le.AppendUint16(nil, uint16(len(fields))))
	for i, f := range fields {
		le.PutUint16(entry[0:], f.tag)
		le.PutUint16(entry[2:], f.typ)
		le.PutUint32(entry[4:], f.count)
		clear(entry[8:])
		if len(f.data) > 4 {
			le.PutUint32(entry[8:], uint32(offsets[i]))
		} else {
			copy(entry[8:], f.data)
		}
		bw.write(entry)
	}
	bw.write([]byte{0, 0, 0, 0})
	for _, f := range fields {
		if len(f.data) > 4 {
			bw.pad()
			bw.write(f.data)
		}
	}
	bw.pad()
	for _, s := range strips {
		bw.write(s)
	}
	return bw.err
}

// encodeStrips serialises one strip per row, northern row first.
func encodeStrips(r *layer.Raster, comp Compression) ([][]byte, error) {
	size := r.DType.Size()
	strips := make([][]byte, r.Height)
	raw := make([]byte, r.Width*size)
	var zbuf bytes.Buffer
	zw := zlib.NewWriter(&zbuf)
	for i := 0; i < r.Height; i++ {
		row := r.Row(r.Height - 1 - i)
		for j, v := range row {
			if size == 4 {
				le.PutUint32(raw[4*j:], math.Float32bits(float32(v)))
			} else {
				le.PutUint64(raw[8*j:], math.Float64bits(v))
			}
		}
		if comp == NoCompression {
			strips[i] = bytes.Clone(raw)
			continue
		}
		zbuf.Reset()
		zw.Reset(&zbuf)
		if _, err := zw.Write(raw); err != nil {
			return nil, fmt.Errorf("compressing row %d: %w", i, err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("compressing row %d: %w", i, err)
		}
		strips[i] = bytes.Clone(zbuf.Bytes())
	}
	return strips, nil
}

// georeference returns the tags that place the raster in model space.
func georeference(t Transform) []field {
	if t == (Transform{}) {
		return nil
	}
	if t.NorthUp() && t.A > 0 && t.E < 0 {
		return []field{
			doubles(tagModelPixelScale, t.A, -t.E, 0),
			doubles(tagModelTiepoint, 0, 0, 0, t.C, t.F, 0),
		}
	}
	return []field{doubles(tagModelTransformation,
		t.A, t.B, 0, t.C,
		t.D, t.E, 0, t.F,
		0, 0, 0, 0,
		0, 0, 0, 1,
	)}
}

// geoKeys builds the GeoKey directory and its ASCII parameters. Geographic
// and projected EPSG codes that fit a short are written as GeographicType
// or ProjectedCSType. Any other reference, geocentric ones included since
// GeoTIFF has no key for them, is written as a user-defined CRS with an
// "AUTH:CODE" citation.
func geoKeys(c CRS) ([]uint16, string) {
	model := c.Model
	if model == 0 {
		model = ModelProjected
	}
	type key struct{ id, loc, count, value uint16 }
	keys := []key{
		{keyGTModelType, 0, 1, uint16(model)},
		{keyGTRasterType, 0, 1, rasterPixelIsArea},
	}
	var params string
	code, err := strconv.ParseUint(c.Code, 10, 32)
	epsg := strings.EqualFold(c.AuthName, "EPSG") && err == nil && code > 0 && code < maxEPSGShortCodeSize && code != userDefined
	crsKey := uint16(keyProjectedCSType)
	if model == ModelGeographic || model == ModelGeocentric {
		crsKey = keyGeographicType
	}
	switch {
	case epsg && (model == ModelProjected || model == ModelGeographic):
		keys = append(keys, key{crsKey, 0, 1, uint16(code)})
	default:
		params = c.Key() + "|"
		keys = append(keys, key{keyGTCitation, tagGeoASCIIParams, uint16(len(params)), 0})
		if model != ModelUserDefined {
			keys = append(keys, key{crsKey, 0, 1, userDefined})
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].id < keys[j].id })

	out := []uint16{geoKeyVersion, geoKeyRevisionMajor, geoKeyRevisionMinor, uint16(len(keys))}
	for _, k := range keys {
		out = append(out, k.id, k.loc, k.count, k.value)
	}
	return out, params
}

type countingWriter struct {
	w   io.Writer
	n   int
	err error
}

func (c *countingWriter) write(b []byte) {
	if c.err != nil {
		return
	}
	n, err := c.w.Write(b)
	c.n += n
	c.err = err
}

func (c *countingWriter) pad() {
	if c.n&1 == 1 {
		c.write([]byte{0})
	}
}
