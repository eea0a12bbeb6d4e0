package store

import (
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// detail is the per-sample payload kept with an evaluation
type detail struct {
	Diffs    []float64 `msgpack:"d,omitempty"`
	Coverage []bool    `msgpack:"c,omitempty"`
}

// Shared coders; EncodeAll and DecodeAll are safe for concurrent use.
var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil)
)

// encodeDetail packs diffs and coverage flags as zstd-compressed MessagePack.
// Nothing to store yields a nil blob.
func encodeDetail(diffs []float64, coverage []bool) ([]byte, error) {
	if len(diffs) == 0 && len(coverage) == 0 {
		return nil, nil
	}
	raw, err := msgpack.Marshal(detail{Diffs: diffs, Coverage: coverage})
	if err != nil {
		return nil, err
	}
	return zstdEncoder.EncodeAll(raw, nil), nil
}

func decodeDetail(blob []byte) ([]float64, []bool, error) {
	if len(blob) == 0 {
		return nil, nil, nil
	}
	raw, err := zstdDecoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, nil, err
	}
	var d detail
	if err := msgpack.Unmarshal(raw, &d); err != nil {
		return nil, nil, err
	}
	return d.Diffs, d.Coverage, nil
}
