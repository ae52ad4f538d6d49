package client

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var pngSignature = []byte{137, 80, 78, 71, 13, 10, 26, 10}

// ErrNotPNG is returned by ReadPngText for input without a PNG signature.
var ErrNotPNG = errors.New("not a valid PNG file")

// ReadPngText returns the tEXt chunks of a PNG keyed by keyword. ComfyUI's
// SaveImage stores the executed graph under "prompt".
func ReadPngText(r io.Reader) (map[string]string, error) {
	header := make([]byte, len(pngSignature))
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotPNG, err)
	}
	if !bytes.Equal(header, pngSignature) {
		return nil, ErrNotPNG
	}

	chunks := make(map[string]string)
	for {
		var length uint32
		if err := binary.Read(r, binary.BigEndian, &length); err != nil {
			if err == io.EOF {
				return chunks, nil
			}
			return nil, err
		}
		kind := make([]byte, 4)
		if _, err := io.ReadFull(r, kind); err != nil {
			return nil, err
		}

		switch string(kind) {
		case "tEXt":
			data := make([]byte, length)
			if _, err := io.ReadFull(r, data); err != nil {
				return nil, err
			}
			sep := bytes.IndexByte(data, 0)
			if sep == -1 {
				return nil, errors.New("malformed tEXt chunk")
			}
			chunks[string(data[:sep])] = string(data[sep+1:])
		case "IEND":
			return chunks, nil
		default:
			if _, err := io.CopyN(io.Discard, r, int64(length)); err != nil {
				return nil, err
			}
		}

		// crc
		if _, err := io.CopyN(io.Discard, r, 4); err != nil {
			return nil, err
		}
	}
}
