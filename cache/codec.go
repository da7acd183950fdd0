package cache

import (
	"bytes"
	"encoding/json"
	"io"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/saiset-co/sai-content/types"
	"github.com/saiset-co/sai-content/utils"
)

// Entry is the stored envelope around a cached payload. Exactly one of
// Payload and Compressed is set.
type Entry struct {
	Payload    json.RawMessage `json:"payload,omitempty"`
	Compressed []byte          `json:"compressed,omitempty"`
	WrittenAt  int64           `json:"written_at"`
	TTLMillis  int64           `json:"ttl_ms"`
}

func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(e.WrittenAt))
}

// Fresh reports whether the entry may still be served: age <= ttl.
func (e *Entry) Fresh(now time.Time) bool {
	return e.Age(now) <= time.Duration(e.TTLMillis)*time.Millisecond
}

type Codec struct {
	compressionThreshold int
}

// NewCodec builds a codec that brotli-compresses payloads longer than
// threshold bytes. Zero disables compression.
func NewCodec(threshold int) *Codec {
	return &Codec{compressionThreshold: threshold}
}

func (c *Codec) Encode(payload []byte, writtenAt time.Time, ttl time.Duration) ([]byte, error) {
	entry := Entry{
		WrittenAt: writtenAt.UnixMilli(),
		TTLMillis: ttl.Milliseconds(),
	}

	if c.compressionThreshold > 0 && len(payload) > c.compressionThreshold {
		compressed, err := compress(payload)
		if err != nil {
			return nil, types.WrapError(err, "failed to compress cache payload")
		}
		entry.Compressed = compressed
	} else {
		entry.Payload = payload
	}

	return utils.Marshal(&entry)
}

// Decode parses a stored envelope and returns it with an uncompressed
// Payload. Any malformed input yields ErrCacheEntryCorrupt.
func (c *Codec) Decode(data []byte) (*Entry, error) {
	var entry Entry
	if err := utils.Unmarshal(data, &entry); err != nil {
		return nil, types.Errorf(types.ErrCacheEntryCorrupt, "%v", err)
	}

	if len(entry.Compressed) > 0 {
		payload, err := decompress(entry.Compressed)
		if err != nil {
			return nil, types.Errorf(types.ErrCacheEntryCorrupt, "%v", err)
		}
		entry.Payload = payload
		entry.Compressed = nil
	}

	if len(entry.Payload) == 0 || entry.WrittenAt <= 0 || entry.TTLMillis < 0 {
		return nil, types.Errorf(types.ErrCacheEntryCorrupt, "incomplete envelope")
	}

	return &entry, nil
}

func compress(payload []byte) ([]byte, error) {
	var buf bytes.Buffer

	writer := brotli.NewWriterLevel(&buf, brotli.DefaultCompression)
	if _, err := writer.Write(payload); err != nil {
		_ = writer.Close()
		return nil, err
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	return io.ReadAll(brotli.NewReader(bytes.NewReader(data)))
}
