package ws

import (
	"bytes"
	"compress/gzip"
	"io"
)

// maxInflatedFrame bounds what one compressed client frame may expand to.
const maxInflatedFrame = 64 << 10

func gzipFrame(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Inflate decompresses a gzip binary frame. Output past maxInflatedFrame is
// cut off, which then fails to decode as JSON.
func Inflate(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(io.LimitReader(zr, maxInflatedFrame))
}
