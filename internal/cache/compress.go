package cache

import (
	"bytes"
	"compress/gzip"
	"io"
)

// compress gzips data when it exceeds threshold bytes. The second return
// reports whether compression was applied; payloads that grow under gzip
// are stored uncompressed.
func compress(data []byte, threshold int) ([]byte, bool, error) {
	if len(data) <= threshold {
		return data, false, nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, false, err
	}
	if err := zw.Close(); err != nil {
		return nil, false, err
	}
	if buf.Len() >= len(data) {
		return data, false, nil
	}
	return buf.Bytes(), true, nil
}

// decompress reverses compress.
func decompress(data []byte, compressed bool) ([]byte, error) {
	if !compressed {
		return data, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
