package geotiff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/klauspost/compress/zlib"

	"github.com/banshee-data/wrg-explorer/internal/layer"
	"github.com/banshee-data/wrg-explorer/internal/wrg"
)

// MaxPixels bounds the raster size Decode accepts, matching the largest
// WRG grid.
const MaxPixels = wrg.MaxPoints

// Image is a decoded single-band GeoTIFF.
type Image struct {
	// Raster has row 0 at the bottom, matching layer.Extract.
	Raster *layer.Raster
	// Transform maps file pixels (row 0 at the top) to model space. It is
	// the zero value when the file carries no georeference.
	Transform   Transform
	CRS         *CRS
	Compression Compression
}

type rawField struct {
	typ   uint16
	count uint32
	data  []byte
}

type decoder struct {
	buf    []byte
	bo     binary.ByteOrder
	fields map[uint16]rawField
}

// Decode reads a single-band floating point TIFF such as the ones Encode
// writes. Both byte orders are accepted.
func Decode(r io.Reader) (*Image, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(buf) < 8 {
		return nil, fmt.Errorf("%w: short header", ErrInvalid)
	}
	d := &decoder{buf: buf, fields: make(map[uint16]rawField)}
	switch string(buf[:2]) {
	case "II":
		d.bo = binary.LittleEndian
	case "MM":
		d.bo = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w: bad byte order mark", ErrInvalid)
	}
	if magic := d.bo.Uint16(buf[2:]); magic != 42 {
		return nil, fmt.Errorf("%w: magic %d", ErrInvalid, magic)
	}
	if err := d.readIFD(int(d.bo.Uint32(buf[4:]))); err != nil {
		return nil, err
	}
	return d.image()
}

func (d *decoder) readIFD(off int) error {
	if off+2 > len(d.buf) {
		return fmt.Errorf("%w: IFD offset %d out of range", ErrInvalid, off)
	}
	n := int(d.bo.Uint16(d.buf[off:]))
	off += 2
	if off+12*n > len(d.buf) {
		return fmt.Errorf("%w: truncated IFD", ErrInvalid)
	}
	for i := 0; i < n; i++ {
		e := d.buf[off+12*i : off+12*i+12]
		tag := d.bo.Uint16(e[0:])
		typ := d.bo.Uint16(e[2:])
		count := d.bo.Uint32(e[4:])
		size, ok := typeSizes[typ]
		if !ok {
			// Unknown types are skipped.
			continue
		}
		total := int64(size) * int64(count)
		var data []byte
		if total <= 4 {
			data = e[8 : 8+total]
		} else {
			at := int64(d.bo.Uint32(e[8:]))
			if at+total > int64(len(d.buf)) {
				return fmt.Errorf("%w: tag %d value out of range", ErrInvalid, tag)
			}
			data = d.buf[at : at+total]
		}
		d.fields[tag] = rawField{typ: typ, count: count, data: data}
	}
	return nil
}

// uints returns an integer field, or def when it is absent.
func (d *decoder) uints(tag uint16, def ...uint64) []uint64 {
	f, ok := d.fields[tag]
	if !ok {
		return def
	}
	out := make([]uint64, f.count)
	for i := range out {
		switch f.typ {
		case typeByte:
			out[i] = uint64(f.data[i])
		case typeShort:
			out[i] = uint64(d.bo.Uint16(f.data[2*i:]))
		case typeLong:
			out[i] = uint64(d.bo.Uint32(f.data[4*i:]))
		default:
			return def
		}
	}
	return out
}

func (d *decoder) uint(tag uint16, def uint64) uint64 {
	v := d.uints(tag, def)
	if len(v) == 0 {
		return def
	}
	return v[0]
}

func (d *decoder) floats(tag uint16) []float64 {
	f, ok := d.fields[tag]
	if !ok || f.typ != typeDouble {
		return nil
	}
	out := make([]float64, f.count)
	for i := range out {
		out[i] = math.Float64frombits(d.bo.Uint64(f.data[8*i:]))
	}
	return out
}

func (d *decoder) image() (*Image, error) {
	width := int(d.uint(tagImageWidth, 0))
	height := int(d.uint(tagImageLength, 0))
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: missing image dimensions", ErrInvalid)
	}
	if spp := d.uint(tagSamplesPerPixel, 1); spp != 1 {
		return nil, fmt.Errorf("%w: %d samples per pixel", ErrUnsupportedDType, spp)
	}
	if sf := d.uint(tagSampleFormat, 1); sf != sampleFormatIEEEFloat {
		return nil, fmt.Errorf("%w: sample format %d", ErrUnsupportedDType, sf)
	}
	var dtype wrg.DType
	switch bits := d.uint(tagBitsPerSample, 1); bits {
	case 32:
		dtype = wrg.Float32
	case 64:
		dtype = wrg.Float64
	default:
		return nil, fmt.Errorf("%w: %d bits per sample", ErrUnsupportedDType, bits)
	}
	comp := Compression(d.uint(tagCompression, uint64(NoCompression)))
	if comp != NoCompression && comp != Deflate && comp != deflateOld {
		return nil, fmt.Errorf("%w: compression %v", ErrInvalid, comp)
	}

	offsets := d.uints(tagStripOffsets)
	counts := d.uints(tagStripByteCounts)
	if len(offsets) == 0 || len(offsets) != len(counts) {
		return nil, fmt.Errorf("%w: strip tables", ErrInvalid)
	}
	if width > MaxPixels || height > MaxPixels || int64(width)*int64(height) > MaxPixels {
		return nil, fmt.Errorf("%w: %d x %d pixels exceeds %d", ErrInvalid, width, height, MaxPixels)
	}
	want := width * height * dtype.Size()
	if comp == NoCompression && want > len(d.buf) {
		return nil, fmt.Errorf("%w: %d pixel bytes, file has %d", ErrInvalid, want, len(d.buf))
	}
	pixels := make([]byte, 0, min(want, 64<<20))
	for i := range offsets {
		start, end := offsets[i], offsets[i]+counts[i]
		if end > uint64(len(d.buf)) {
			return nil, fmt.Errorf("%w: strip %d out of range", ErrInvalid, i)
		}
		strip := d.buf[start:end]
		if comp != NoCompression {
			zr, err := zlib.NewReader(bytes.NewReader(strip))
			if err != nil {
				return nil, fmt.Errorf("%w: strip %d: %v", ErrInvalid, i, err)
			}
			strip, err = io.ReadAll(io.LimitReader(zr, int64(want-len(pixels))))
			zr.Close()
			if err != nil {
				return nil, fmt.Errorf("%w: strip %d: %v", ErrInvalid, i, err)
			}
		}
		pixels = append(pixels, strip...)
	}
	if len(pixels) < want {
		return nil, fmt.Errorf("%w: %d pixel bytes, want %d", ErrInvalid, len(pixels), want)
	}

	r := &layer.Raster{Width: width, Height: height, Data: make([]float64, width*height), DType: dtype}
	size := dtype.Size()
	for i := 0; i < height; i++ {
		row := r.Row(height - 1 - i)
		src := pixels[i*width*size:]
		for j := range row {
			if size == 4 {
				row[j] = float64(math.Float32frombits(d.bo.Uint32(src[4*j:])))
			} else {
				row[j] = math.Float64frombits(d.bo.Uint64(src[8*j:]))
			}
		}
	}

	return &Image{
		Raster:      r,
		Transform:   d.transform(),
		CRS:         d.crs(),
		Compression: comp,
	}, nil
}

func (d *decoder) transform() Transform {
	if m := d.floats(tagModelTransformation); len(m) >= 8 {
		return Transform{A: m[0], B: m[1], C: m[3], D: m[4], E: m[5], F: m[7]}
	}
	scale, tie := d.floats(tagModelPixelScale), d.floats(tagModelTiepoint)
	if len(scale) < 2 || len(tie) < 6 {
		return Transform{}
	}
	return Transform{
		A: scale[0],
		C: tie[3] - tie[0]*scale[0],
		E: -scale[1],
		F: tie[4] + tie[1]*scale[1],
	}
}

func (d *decoder) crs() *CRS {
	dir := d.uints(tagGeoKeyDirectory)
	if len(dir) < 4 {
		return nil
	}
	var params string
	if f, ok := d.fields[tagGeoASCIIParams]; ok && f.typ == typeASCII {
		params = string(f.data)
	}
	values := make(map[uint64]uint64)
	var citation string
	n := int(dir[3])
	for i := 0; i < n && 4+4*i+3 < len(dir); i++ {
		k := dir[4+4*i : 8+4*i]
		switch k[1] {
		case 0:
			values[k[0]] = k[3]
		case tagGeoASCIIParams:
			if k[0] == keyGTCitation && k[3]+k[2] <= uint64(len(params)) {
				citation = strings.TrimRight(params[k[3]:k[3]+k[2]], "|\x00")
			}
		}
	}

	c := &CRS{Model: ModelType(values[keyGTModelType])}
	for _, key := range []uint64{keyProjectedCSType, keyGeographicType} {
		if v, ok := values[key]; ok && v != userDefined {
			c.AuthName, c.Code = "EPSG", fmt.Sprint(v)
			return c
		}
	}
	if auth, code, ok := strings.Cut(citation, ":"); ok && auth != "" && code != "" {
		c.AuthName, c.Code = auth, code
		return c
	}
	return nil
}
