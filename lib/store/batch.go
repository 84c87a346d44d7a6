// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"bytes"
	"context"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/blake3"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/brewshed/brewshed/lib/codec"
	"github.com/brewshed/brewshed/lib/schema"
)

// compressionTag identifies the algorithm used for a batch payload.
// Values are stored in the compression column; changing them breaks
// existing databases.
type compressionTag uint8

const (
	compressionNone compressionTag = 0
	compressionLZ4  compressionTag = 1
	compressionZstd compressionTag = 2
)

// zstdEncoder and zstdDecoder are reused across calls; both are safe
// for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("brewshed store: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("brewshed store: zstd decoder initialization failed: " + err.Error())
	}
}

// AppendBatch persists a window of telemetry points for a session as
// the next batch in its sequence. The batch row and the session's
// running point count move in one transaction. NotFoundError when no
// session has the id.
func (s *Store) AppendBatch(ctx context.Context, sessionID int64, points []schema.TelemetryPoint) error {
	if len(points) == 0 {
		return nil
	}

	encoded, err := codec.Marshal(points)
	if err != nil {
		return fmt.Errorf("encode point batch: %w", err)
	}
	checksum := blake3.Sum256(encoded)
	payload, tag := compressPayload(encoded)
	createdAt := s.clock.Now().UTC().UnixNano()

	return s.write(ctx, "batch append", func(conn *sqlite.Conn) error {
		var seq int64
		err := sqlitex.Execute(conn,
			"SELECT COALESCE(MAX(seq), -1) + 1 FROM point_batches WHERE session_id = ?",
			&sqlitex.ExecOptions{
				Args: []any{sessionID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					seq = stmt.ColumnInt64(0)
					return nil
				},
			})
		if err != nil {
			return fmt.Errorf("next batch seq: %w", err)
		}

		err = sqlitex.Execute(conn, `
			INSERT INTO point_batches
				(session_id, seq, point_count, compression,
				 uncompressed_size, checksum, payload, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{
				sessionID, seq, len(points), int(tag),
				len(encoded), checksum[:], payload, createdAt,
			}})
		if err != nil {
			return fmt.Errorf("insert point batch: %w", err)
		}

		err = sqlitex.Execute(conn,
			"UPDATE sessions SET point_count = point_count + ? WHERE id = ?",
			&sqlitex.ExecOptions{Args: []any{len(points), sessionID}})
		if err != nil {
			return fmt.Errorf("update session point count: %w", err)
		}
		if conn.Changes() == 0 {
			return &NotFoundError{Kind: "session", Key: fmt.Sprintf("%d", sessionID)}
		}
		return nil
	})
}

// LoadPoints reassembles a session's full telemetry history by
// walking its batches in sequence order. Each payload's checksum is
// verified against the stored digest before decoding.
func (s *Store) LoadPoints(ctx context.Context, sessionID int64) ([]schema.TelemetryPoint, error) {
	var points []schema.TelemetryPoint
	err := s.read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			SELECT seq, compression, uncompressed_size, checksum, payload
			FROM point_batches WHERE session_id = ? ORDER BY seq ASC`,
			&sqlitex.ExecOptions{
				Args: []any{sessionID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					// Columns: seq(0), compression(1),
					// uncompressed_size(2), checksum(3), payload(4).
					seq := stmt.ColumnInt64(0)
					tag := compressionTag(stmt.ColumnInt64(1))
					size := int(stmt.ColumnInt64(2))
					checksum := make([]byte, stmt.ColumnLen(3))
					stmt.ColumnBytes(3, checksum)
					payload := make([]byte, stmt.ColumnLen(4))
					stmt.ColumnBytes(4, payload)

					encoded, err := decompressPayload(payload, tag, size)
					if err != nil {
						return fmt.Errorf("point batch %d: %w", seq, err)
					}
					if sum := blake3.Sum256(encoded); !bytes.Equal(sum[:], checksum) {
						return fmt.Errorf("point batch %d: checksum mismatch", seq)
					}

					var batch []schema.TelemetryPoint
					if err := codec.Unmarshal(encoded, &batch); err != nil {
						return fmt.Errorf("point batch %d: decode: %w", seq, err)
					}
					points = append(points, batch...)
					return nil
				},
			})
	})
	if err != nil {
		return nil, err
	}
	return points, nil
}

// compressPayload probes the encoded batch with zstd and keeps the
// result when the ratio clears 1.5x, falls back to LZ4 above 1.1x,
// and stores small or incompressible payloads as-is.
func compressPayload(encoded []byte) ([]byte, compressionTag) {
	if len(encoded) == 0 {
		return encoded, compressionNone
	}

	compressed := zstdEncoder.EncodeAll(encoded, nil)
	ratio := float64(len(encoded)) / float64(len(compressed))

	switch {
	case ratio >= 1.5:
		return compressed, compressionZstd

	case ratio >= 1.1:
		bound := lz4.CompressBlockBound(len(encoded))
		destination := make([]byte, bound)
		written, err := lz4.CompressBlock(encoded, destination, nil)
		// CompressBlock returns 0 for incompressible input.
		if err != nil || written == 0 || written >= len(encoded) {
			return encoded, compressionNone
		}
		return destination[:written], compressionLZ4

	default:
		return encoded, compressionNone
	}
}

// decompressPayload restores a batch payload and verifies the result
// matches the recorded uncompressed size exactly.
func decompressPayload(payload []byte, tag compressionTag, uncompressedSize int) ([]byte, error) {
	switch tag {
	case compressionNone:
		if len(payload) != uncompressedSize {
			return nil, fmt.Errorf("uncompressed payload: size %d does not match expected %d",
				len(payload), uncompressedSize)
		}
		return payload, nil

	case compressionLZ4:
		destination := make([]byte, uncompressedSize)
		read, err := lz4.UncompressBlock(payload, destination)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if read != uncompressedSize {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, uncompressedSize)
		}
		return destination, nil

	case compressionZstd:
		result, err := zstdDecoder.DecodeAll(payload, make([]byte, 0, uncompressedSize))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(result) != uncompressedSize {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), uncompressedSize)
		}
		return result, nil

	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}
