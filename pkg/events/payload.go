package events

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/xxh3"
)

// CompressThreshold is the serialized-rows size above which a batch payload
// is carried as zstd-compressed base64 instead of inline JSON rows.
const CompressThreshold = 64 * 1024

var (
	encoderOnce sync.Once
	encoder     *zstd.Encoder
	decoderOnce sync.Once
	decoder     *zstd.Decoder
)

func zstdEncoder() *zstd.Encoder {
	encoderOnce.Do(func() {
		encoder, _ = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedDefault),
			zstd.WithEncoderConcurrency(2),
		)
	})
	return encoder
}

func zstdDecoder() *zstd.Decoder {
	decoderOnce.Do(func() {
		decoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(2))
	})
	return decoder
}

// NewBatchPayload builds a batch payload. Small batches keep their rows
// inline; larger ones are compressed and checksummed so consumers can verify
// integrity after transport.
func NewBatchPayload(seq int, rows []map[string]any) (*BatchPayload, error) {
	p := &BatchPayload{Seq: seq, RowCount: len(rows)}

	raw, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("marshal batch %d rows: %w", seq, err)
	}
	if len(raw) < CompressThreshold {
		p.Rows = rows
		return p, nil
	}

	compressed := zstdEncoder().EncodeAll(raw, nil)
	p.Data = base64.StdEncoding.EncodeToString(compressed)
	p.Compressed = true
	p.Checksum = checksum(raw)
	return p, nil
}

// DecodeRows returns the rows of a batch payload, decompressing and
// verifying the checksum when the payload was compressed.
func DecodeRows(p *BatchPayload) ([]map[string]any, error) {
	if !p.Compressed {
		return p.Rows, nil
	}
	compressed, err := base64.StdEncoding.DecodeString(p.Data)
	if err != nil {
		return nil, fmt.Errorf("decode batch %d data: %w", p.Seq, err)
	}
	raw, err := zstdDecoder().DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress batch %d: %w", p.Seq, err)
	}
	if p.Checksum != "" {
		if actual := checksum(raw); actual != p.Checksum {
			return nil, fmt.Errorf("batch %d checksum mismatch: expected %s, got %s", p.Seq, p.Checksum, actual)
		}
	}
	var rows []map[string]any
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("unmarshal batch %d rows: %w", p.Seq, err)
	}
	return rows, nil
}

// checksum returns the hex-encoded xxh3 (64-bit) hash of data.
func checksum(data []byte) string {
	h := xxh3.Hash(data)
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(h)
		h >>= 8
	}
	return hex.EncodeToString(b)
}
