package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	appctx "marmora/internal/core/context"
	"marmora/internal/core/id"
	"marmora/internal/domain/stock"
)

// CompressionAlgo specifies the compression algorithm used for a payload.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// AdjustmentEntry is one persisted batch of stock adjustments. A batch is
// everything one core operation produced; the payload is the JSON-encoded
// adjustment list, zstd-compressed when large.
type AdjustmentEntry struct {
	ID                id.ID           `db:"id"`
	CompanyID         id.ID           `db:"company_id"`
	ReferenceID       id.ID           `db:"reference_id"`
	ReferenceType     string          `db:"reference_type"`
	UserID            string          `db:"user_id"`
	Payload           json.RawMessage `db:"payload"`
	PayloadCompressed []byte          `db:"payload_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
	CreatedAt         time.Time       `db:"created_at"`
}

// AdjustmentLog persists adjustment batches produced by stock operations.
// Implements stock.AuditSink. Writes join the caller's transaction when one
// is present in context.
type AdjustmentLog struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int // bytes
}

// NewAdjustmentLog creates a new adjustment log writer.
func NewAdjustmentLog(txManager *TxManager) (*AdjustmentLog, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &AdjustmentLog{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 10 * 1024, // 10KB
	}, nil
}

// RecordAdjustments persists one batch of adjustments.
func (l *AdjustmentLog) RecordAdjustments(ctx context.Context, adjustments []stock.Adjustment) error {
	if len(adjustments) == 0 {
		return nil
	}

	payload, err := json.Marshal(adjustments)
	if err != nil {
		return fmt.Errorf("marshal adjustments: %w", err)
	}

	entry := AdjustmentEntry{
		ID:              id.New(),
		CompanyID:       adjustments[0].CompanyID,
		ReferenceID:     adjustments[0].ReferenceID,
		ReferenceType:   string(adjustments[0].ReferenceType),
		UserID:          appctx.GetUserID(ctx),
		Payload:         payload,
		CompressionAlgo: CompressionNone,
		CreatedAt:       time.Now().UTC(),
	}

	if len(payload) > l.compressThreshold {
		entry.PayloadCompressed = l.encoder.EncodeAll(payload, nil)
		entry.Payload = nil
		entry.CompressionAlgo = CompressionZstd
	}

	sql := `
		INSERT INTO stock_adjustment_log (
			id, company_id, reference_id, reference_type, user_id,
			payload, payload_compressed, compression_algo, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	querier := l.txManager.GetQuerier(ctx)
	_, err = querier.Exec(ctx, sql,
		entry.ID, entry.CompanyID, entry.ReferenceID, entry.ReferenceType,
		entry.UserID,
		entry.Payload, entry.PayloadCompressed, entry.CompressionAlgo,
		entry.CreatedAt,
	)
	return err
}

// History retrieves adjustment batches for a reference (order, return),
// newest first, payloads decompressed.
func (l *AdjustmentLog) History(ctx context.Context, referenceID id.ID, limit int) ([]AdjustmentEntry, error) {
	sql := `
		SELECT id, company_id, reference_id, reference_type, user_id,
			   payload, payload_compressed, compression_algo, created_at
		FROM stock_adjustment_log
		WHERE reference_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := l.txManager.GetQuerier(ctx).Query(ctx, sql, referenceID, limit)
	if err != nil {
		return nil, fmt.Errorf("query adjustment history: %w", err)
	}
	defer rows.Close()

	var entries []AdjustmentEntry
	for rows.Next() {
		var e AdjustmentEntry
		err := rows.Scan(
			&e.ID, &e.CompanyID, &e.ReferenceID, &e.ReferenceType, &e.UserID,
			&e.Payload, &e.PayloadCompressed, &e.CompressionAlgo, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}

		if e.CompressionAlgo == CompressionZstd && len(e.PayloadCompressed) > 0 {
			decompressed, err := l.decoder.DecodeAll(e.PayloadCompressed, nil)
			if err != nil {
				return nil, fmt.Errorf("decompress payload: %w", err)
			}
			e.Payload = decompressed
			e.PayloadCompressed = nil
		}

		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Adjustments decodes the payload of an entry.
func (e *AdjustmentEntry) Adjustments() ([]stock.Adjustment, error) {
	var adjustments []stock.Adjustment
	if err := json.Unmarshal(e.Payload, &adjustments); err != nil {
		return nil, fmt.Errorf("unmarshal adjustments: %w", err)
	}
	return adjustments, nil
}

var _ stock.AuditSink = (*AdjustmentLog)(nil)
