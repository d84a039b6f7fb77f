// Package geotiff writes and reads single-band floating point GeoTIFF
// files.
//
// Files are classic little-endian TIFFs with one row per strip, optionally
// Deflate compressed, georeferenced with ModelPixelScale/ModelTiepoint (or
// ModelTransformation for rotated grids) and a GeoKey directory naming the
// CRS by authority and code.
package geotiff

import (
	"errors"
	"fmt"
	"strings"
)

// MIMEType is the media type of the files Encode writes.
const MIMEType = "image/tiff; application=geotiff"

var (
	ErrUnsupportedDType = errors.New("unsupported data type")
	ErrInvalid          = errors.New("invalid tiff")
)

// Compression is the TIFF compression scheme of the strips.
type Compression uint16

const (
	NoCompression Compression = 1
	Deflate       Compression = 8
	// deflateOld is the pre-TIFF 6 code for Deflate some writers still use.
	deflateOld Compression = 32946
)

func (c Compression) String() string {
	switch c {
	case NoCompression:
		return "none"
	case Deflate, deflateOld:
		return "deflate"
	}
	return fmt.Sprintf("compression(%d)", uint16(c))
}

// ParseCompression accepts "none" (or empty) and "deflate".
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return NoCompression, nil
	case "deflate", "zlib":
		return Deflate, nil
	}
	return 0, fmt.Errorf("unknown compression %q", s)
}

// ModelType is the GTModelTypeGeoKey value.
type ModelType uint16

const (
	ModelProjected   ModelType = 1
	ModelGeographic  ModelType = 2
	ModelGeocentric  ModelType = 3
	ModelUserDefined ModelType = 32767
)

// CRS tags the file with a reference system identified by authority and
// code.
type CRS struct {
	AuthName string
	Code     string
	Model    ModelType
}

// Key returns "<authority>:<code>".
func (c CRS) Key() string { return c.AuthName + ":" + c.Code }

// Options controls Encode.
type Options struct {
	Transform Transform
	// CRS is optional; nil writes no GeoKey directory.
	CRS         *CRS
	Compression Compression
}

// TIFF tags.
const (
	tagImageWidth                = 256
	tagImageLength               = 257
	tagBitsPerSample             = 258
	tagCompression               = 259
	tagPhotometricInterpretation = 262
	tagStripOffsets              = 273
	tagSamplesPerPixel           = 277
	tagRowsPerStrip              = 278
	tagStripByteCounts           = 279
	tagPlanarConfiguration       = 284
	tagSampleFormat              = 339
	tagModelPixelScale           = 33550
	tagModelTiepoint             = 33922
	tagModelTransformation       = 34264
	tagGeoKeyDirectory           = 34735
	tagGeoDoubleParams           = 34736
	tagGeoASCIIParams            = 34737
)

// TIFF field types.
const (
	typeByte   = 1
	typeASCII  = 2
	typeShort  = 3
	typeLong   = 4
	typeDouble = 12
)

var typeSizes = map[uint16]int{
	typeByte:   1,
	typeASCII:  1,
	typeShort:  2,
	typeLong:   4,
	typeDouble: 8,
}

const (
	sampleFormatIEEEFloat = 3
	photometricMinIsBlack = 1
)

// GeoKeys.
const (
	keyGTModelType       = 1024
	keyGTRasterType      = 1025
	keyGTCitation        = 1026
	keyGeographicType    = 2048
	keyProjectedCSType   = 3072
	rasterPixelIsArea    = 1
	userDefined          = 32767
	geoKeyVersion        = 1
	geoKeyRevisionMajor  = 1
	geoKeyRevisionMinor  = 0
	maxEPSGShortCodeSize = 65535
)
