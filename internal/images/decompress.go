package images

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

// sparseChunkSize is the buffer size decompression reads and writes in.
// All-zero chunks are skipped via Seek rather than written, preserving
// holes in the destination file.
const sparseChunkSize = 1 << 20

// decompressSparse reads all of src through codec decoder, writing
// decompressed bytes to dst using a sparse-file write strategy: every
// all-zero chunk is skipped with Seek instead of Write. After the
// stream ends, dst is truncated to the exact cumulative logical
// length so trailing zero chunks don't leave the file oversized.
func decompressSparse(dst *os.File, src io.Reader, compression Compression) error {
	var r io.Reader
	switch compression {
	case CompressionZstd:
		zr, err := zstd.NewReader(src)
		if err != nil {
			return fmt.Errorf("open zstd stream: %w", err)
		}
		defer zr.Close()
		r = zr
	case CompressionGzip:
		gr, err := gzip.NewReader(src)
		if err != nil {
			return fmt.Errorf("open gzip stream: %w", err)
		}
		defer gr.Close()
		r = gr
	default:
		return fmt.Errorf("decompress: unsupported compression %q", compression)
	}

	buf := make([]byte, sparseChunkSize)
	var logicalLen int64

	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if isAllZero(chunk) {
				if _, serr := dst.Seek(int64(n), io.SeekCurrent); serr != nil {
					return fmt.Errorf("seek past zero chunk: %w", serr)
				}
			} else {
				if _, werr := dst.Write(chunk); werr != nil {
					return fmt.Errorf("write decompressed chunk: %w", werr)
				}
			}
			logicalLen += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read decompressed stream: %w", err)
		}
	}

	if err := dst.Truncate(logicalLen); err != nil {
		return fmt.Errorf("truncate decompressed file: %w", err)
	}
	return nil
}

func isAllZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
