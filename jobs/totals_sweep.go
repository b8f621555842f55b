package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-crm/meridian/internal/crm/proforma"
	"github.com/meridian-crm/meridian/internal/crm/quotations"
	jobmetrics "github.com/meridian-crm/meridian/internal/jobs"
	"github.com/meridian-crm/meridian/internal/money"
)

const defaultSweepBatch = 200

// TotalsSweepJob recomputes document totals from their item sets and reports
// any stored figure that drifted beyond the rounding tolerance. It is a
// detector only: stored history is never rewritten by a background job.
type TotalsSweepJob struct {
	Quotations quotations.Repository
	Proformas  proforma.Repository
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// NewTotalsSweepJob initialises the sweep handler.
func NewTotalsSweepJob(q quotations.Repository, p proforma.Repository, logger *slog.Logger, metrics *jobmetrics.Metrics) *TotalsSweepJob {
	return &TotalsSweepJob{Quotations: q, Proformas: p, Logger: logger, Metrics: metrics}
}

// Handle executes the sweep.
func (j *TotalsSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Quotations == nil || j.Proformas == nil {
		return errors.New("totals sweep: handler not configured")
	}
	var payload TotalsSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.BatchSize <= 0 {
		payload.BatchSize = defaultSweepBatch
	}

	tracker := j.metrics().Track(TaskTotalsSweep)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	logger.Info("starting totals sweep", slog.Int("batch_size", payload.BatchSize))
	start := time.Now()

	var scanned, drifted int
	if payload.QuotationID > 0 {
		n, err := j.sweepQuotation(ctx, payload.QuotationID)
		if err != nil {
			resultErr = err
			return resultErr
		}
		scanned, drifted = 1, n
	} else {
		scanned, drifted, resultErr = j.sweepAll(ctx, payload.BatchSize)
		if resultErr != nil {
			return resultErr
		}
	}

	logger.Info("completed totals sweep",
		slog.Int("quotations", scanned),
		slog.Int("drifted", drifted),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *TotalsSweepJob) sweepAll(ctx context.Context, batchSize int) (scanned, drifted int, err error) {
	offset := 0
	for {
		page, _, err := j.Quotations.List(ctx, quotations.ListQuotationsRequest{Limit: batchSize, Offset: offset})
		if err != nil {
			return scanned, drifted, err
		}
		if len(page) == 0 {
			return scanned, drifted, nil
		}
		for _, q := range page {
			n, err := j.sweepQuotation(ctx, q.ID)
			if err != nil {
				return scanned, drifted, err
			}
			scanned++
			drifted += n
		}
		offset += len(page)
	}
}

// sweepQuotation checks one quotation header and the active PI over it,
// returning the number of drifted documents found.
func (j *TotalsSweepJob) sweepQuotation(ctx context.Context, id int64) (int, error) {
	q, err := j.Quotations.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	drifted := 0
	if len(q.Items) > 0 {
		if recomputed, ok := quotations.VerifyStored(*q); !ok {
			drifted++
			j.metrics().AddDrift("quotation", 1)
			j.logger().Warn("quotation totals drift",
				slog.Int64("quotation_id", q.ID),
				slog.String("stored_total", q.TotalAmount.String()),
				slog.String("recomputed_total", recomputed.Total.String()),
			)
		}
	}

	pis, err := j.Proformas.ListByQuotation(ctx, id)
	if err != nil {
		return drifted, err
	}
	active := proforma.ResolveActive(pis)
	if active == nil {
		return drifted, nil
	}
	_, totals, err := proforma.ResolveEffectiveItems(q.Items, active.Amendment, quotations.LedgerInput{
		DiscountRate: q.DiscountRate,
		TaxRate:      q.TaxRate,
	})
	if err != nil {
		return drifted, err
	}
	if !money.WithinTolerance(totals.Total, active.TotalAmount) {
		drifted++
		j.metrics().AddDrift("proforma_invoice", 1)
		j.logger().Warn("proforma invoice totals drift",
			slog.Int64("quotation_id", q.ID),
			slog.Int64("pi_id", active.ID),
			slog.String("stored_total", active.TotalAmount.String()),
			slog.String("recomputed_total", totals.Total.String()),
		)
	}
	return drifted, nil
}

func (j *TotalsSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *TotalsSweepJob) metrics() *jobmetrics.Metrics {
	return j.Metrics
}
