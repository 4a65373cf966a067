package worker

// receipt_worker.go
// Processes receipt jobs from QueueReceipts: renders the PDF for a completed
// sale and stores its path back on the sale row.

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/infra"
	"github.com/Protat0/PANN-BACK-OFFICE-sub000/internal/repository"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ReceiptWorker renders PDF receipts for completed sales.
type ReceiptWorker struct {
	sales       repository.SaleRepository
	rdb         *redis.Client
	storagePath string
}

func NewReceiptWorker(sales repository.SaleRepository, rdb *redis.Client, storagePath string) *ReceiptWorker {
	return &ReceiptWorker{sales: sales, rdb: rdb, storagePath: storagePath}
}

// Process fetches the sale with its items, renders the PDF with retry, and
// records the file path. A failed render never blocks the sale itself.
func (w *ReceiptWorker) Process(ctx context.Context, raw json.RawMessage) {
	var payload ReceiptPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Error().Err(err).Msg("receipt_worker: invalid payload")
		return
	}
	saleID, err := uuid.Parse(payload.SaleID)
	if err != nil {
		log.Error().Str("sale_id", payload.SaleID).Msg("receipt_worker: invalid sale_id")
		return
	}

	sale, err := w.sales.FindByID(ctx, saleID)
	if err != nil {
		log.Error().Err(err).Str("sale_id", payload.SaleID).Msg("receipt_worker: sale not found")
		return
	}

	var pdfPath string
	err = withRetry(ctx, 3, func(attempt int) error {
		p, err := infra.GenerateReceiptPDF(sale, w.storagePath)
		if err != nil {
			log.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Str("sale_id", payload.SaleID).
				Msg("receipt_worker: render attempt failed, retrying")
			return err
		}
		pdfPath = p
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("sale_id", payload.SaleID).Msg("receipt_worker: render failed after all retries")
		SendToDLQ(ctx, w.rdb, QueueReceipts, "receipt", raw,
			fmt.Sprintf("pdf render failed: %v", err), 3)
		return
	}

	if err := w.sales.UpdateReceiptPath(ctx, saleID, pdfPath); err != nil {
		log.Error().Err(err).Str("sale_id", payload.SaleID).Msg("receipt_worker: failed to store receipt path")
		return
	}
	log.Info().Str("pdf", pdfPath).Str("sale_id", payload.SaleID).Msg("receipt_worker: receipt generated")
}
