package pc

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	lzf "github.com/zhuyie/golzf"
)

type Format int

const (
	Ascii Format = iota
	Binary
	BinaryCompressed
)

// Parse reads a PCD file. DATA of ascii, binary and binary_compressed types
// are supported.
func Parse(r io.Reader) (*PointCloud, error) {
	rb := bufio.NewReader(r)
	pp := &PointCloud{}
	var format Format

L_HEADER:
	for {
		line, _, err := rb.ReadLine()
		if err != nil {
			return nil, err
		}
		args := strings.Fields(string(line))
		if len(args) < 2 {
			return nil, errors.New("header field must have value")
		}
		switch args[0] {
		case "VERSION":
			f, err := strconv.ParseFloat(args[1], 32)
			if err != nil {
				return nil, err
			}
			pp.Version = float32(f)
		case "FIELDS":
			pp.Fields = args[1:]
		case "SIZE":
			pp.Size = make([]int, len(args)-1)
			for i, s := range args[1:] {
				pp.Size[i], err = strconv.Atoi(s)
				if err != nil {
					return nil, err
				}
			}
		case "TYPE":
			pp.Type = args[1:]
		case "COUNT":
			pp.Count = make([]int, len(args)-1)
			for i, s := range args[1:] {
				pp.Count[i], err = strconv.Atoi(s)
				if err != nil {
					return nil, err
				}
			}
		case "WIDTH":
			pp.Width, err = strconv.Atoi(args[1])
			if err != nil {
				return nil, err
			}
		case "HEIGHT":
			pp.Height, err = strconv.Atoi(args[1])
			if err != nil {
				return nil, err
			}
		case "VIEWPOINT":
			pp.Viewpoint = make([]float32, len(args)-1)
			for i, s := range args[1:] {
				f, err := strconv.ParseFloat(s, 32)
				if err != nil {
					return nil, err
				}
				pp.Viewpoint[i] = float32(f)
			}
		case "POINTS":
			pp.Points, err = strconv.Atoi(args[1])
			if err != nil {
				return nil, err
			}
		case "DATA":
			switch args[1] {
			case "ascii":
				format = Ascii
			case "binary":
				format = Binary
			case "binary_compressed":
				format = BinaryCompressed
			default:
				return nil, errors.New("unknown data format")
			}
			break L_HEADER
		}
	}
	// validate
	if len(pp.Fields) != len(pp.Size) {
		return nil, errors.New("size field size is wrong")
	}
	if len(pp.Fields) != len(pp.Type) {
		return nil, errors.New("type field size is wrong")
	}
	if len(pp.Fields) != len(pp.Count) {
		return nil, errors.New("count field size is wrong")
	}

	switch format {
	case Ascii:
		if err := parseAsciiData(pp, rb); err != nil {
			return nil, err
		}
	case Binary:
		b, err := io.ReadAll(rb)
		if err != nil {
			return nil, err
		}
		pp.Data = b
	case BinaryCompressed:
		var nCompressed, nUncompressed int32
		if err := binary.Read(rb, binary.LittleEndian, &nCompressed); err != nil {
			return nil, err
		}
		if err := binary.Read(rb, binary.LittleEndian, &nUncompressed); err != nil {
			return nil, err
		}

		b, err := io.ReadAll(rb)
		if err != nil {
			return nil, err
		}
		if int(nCompressed) > len(b) {
			return nil, errors.New("insufficient compressed data")
		}

		dec := make([]byte, nUncompressed)
		n, err := lzf.Decompress(b[:nCompressed], dec)
		if err != nil {
			return nil, err
		}
		if int(nUncompressed) != n {
			return nil, errors.New("wrong uncompressed size")
		}

		// binary_compressed stores values field by field.
		// Transpose them back to per-point rows.
		stride := pp.Stride()
		pp.Data = make([]byte, n)
		var head, offset int
		for i := range pp.Fields {
			size := pp.Size[i] * pp.Count[i]
			for p := 0; p < pp.Points; p++ {
				to := p*stride + offset
				from := head + p*size
				copy(pp.Data[to:to+size], dec[from:from+size])
			}
			head += size * pp.Points
			offset += size
		}
	}

	return pp, nil
}

func parseAsciiData(pp *PointCloud, rb *bufio.Reader) error {
	pp.Data = make([]byte, pp.Stride()*pp.Points)
	pos := 0
	for p := 0; p < pp.Points; p++ {
		line, _, err := rb.ReadLine()
		if err != nil {
			return err
		}
		vals := strings.Fields(string(line))
		n := 0
		for i := range pp.Fields {
			n += pp.Count[i]
		}
		if len(vals) != n {
			return fmt.Errorf("wrong number of values at point %d", p)
		}
		vi := 0
		for i := range pp.Fields {
			if pp.Size[i] != 4 {
				return errors.New("unsupported field size for ascii data")
			}
			for j := 0; j < pp.Count[i]; j++ {
				var bits uint32
				switch pp.Type[i] {
				case "F":
					f, err := strconv.ParseFloat(vals[vi], 32)
					if err != nil {
						return err
					}
					bits = math.Float32bits(float32(f))
				case "U":
					u, err := strconv.ParseUint(vals[vi], 10, 32)
					if err != nil {
						return err
					}
					bits = uint32(u)
				case "I":
					d, err := strconv.ParseInt(vals[vi], 10, 32)
					if err != nil {
						return err
					}
					bits = uint32(int32(d))
				default:
					return errors.New("unsupported field type for ascii data")
				}
				binary.LittleEndian.PutUint32(pp.Data[pos:pos+4], bits)
				pos += 4
				vi++
			}
		}
	}
	return nil
}

func writeHeader(pp *PointCloud, w io.Writer, data string) error {
	version := pp.Version
	if version == 0 {
		version = 0.7
	}
	types := pp.Type
	if len(types) == 0 {
		types = make([]string, len(pp.Fields))
		for i := range types {
			types[i] = "F"
		}
	}
	viewpoint := pp.Viewpoint
	if len(viewpoint) == 0 {
		viewpoint = []float32{0, 0, 0, 1, 0, 0, 0}
	}

	intsToStr := func(v []int) string {
		s := make([]string, len(v))
		for i, x := range v {
			s[i] = strconv.Itoa(x)
		}
		return strings.Join(s, " ")
	}
	floatsToStr := func(v []float32) string {
		s := make([]string, len(v))
		for i, x := range v {
			s[i] = strconv.FormatFloat(float64(x), 'g', -1, 32)
		}
		return strings.Join(s, " ")
	}

	_, err := fmt.Fprintf(w,
		"VERSION %s\nFIELDS %s\nSIZE %s\nTYPE %s\nCOUNT %s\nWIDTH %d\nHEIGHT %d\nVIEWPOINT %s\nPOINTS %d\nDATA %s\n",
		strconv.FormatFloat(float64(version), 'g', -1, 32),
		strings.Join(pp.Fields, " "),
		intsToStr(pp.Size),
		strings.Join(types, " "),
		intsToStr(pp.Count),
		pp.Width,
		pp.Height,
		floatsToStr(viewpoint),
		pp.Points,
		data,
	)
	return err
}

// Marshal writes pp as a PCD file with binary data.
func Marshal(pp *PointCloud, w io.Writer) error {
	if err := writeHeader(pp, w, "binary"); err != nil {
		return err
	}
	_, err := w.Write(pp.Data[:pp.Stride()*pp.Points])
	return err
}

// MarshalCompressed writes pp as a PCD file with binary_compressed data.
func MarshalCompressed(pp *PointCloud, w io.Writer) error {
	if err := writeHeader(pp, w, "binary_compressed"); err != nil {
		return err
	}

	stride := pp.Stride()
	raw := make([]byte, stride*pp.Points)
	var head, offset int
	for i := range pp.Fields {
		size := pp.Size[i] * pp.Count[i]
		for p := 0; p < pp.Points; p++ {
			from := p*stride + offset
			to := head + p*size
			copy(raw[to:to+size], pp.Data[from:from+size])
		}
		head += size * pp.Points
		offset += size
	}

	enc := make([]byte, len(raw)+len(raw)/16+128)
	n, err := lzf.Compress(raw, enc)
	if err != nil {
		return err
	}

	if err := binary.Write(w, binary.LittleEndian, int32(n)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, int32(len(raw))); err != nil {
		return err
	}
	_, err = w.Write(enc[:n])
	return err
}
