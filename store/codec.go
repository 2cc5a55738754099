package store

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// gzip magic bytes; legacy rows written before compression was introduced do
// not start with them, so decode can route on the prefix alone.
var gzipMagic = []byte{0x1f, 0x8b}

// encode compresses data when compression is enabled. Plain data is stored
// as-is, which older deployments already did, so both shapes exist on disk.
func encode(data []byte, compress bool) ([]byte, error) {
	if !compress {
		return data, nil
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("compress payload: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finish compressing payload: %w", err)
	}
	return buf.Bytes(), nil
}

// decode transparently decompresses gzip payloads and passes legacy
// uncompressed payloads through unchanged.
func decode(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, gzipMagic) {
		return data, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open compressed payload: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompress payload: %w", err)
	}
	return out, nil
}
