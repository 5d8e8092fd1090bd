package scheduler

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/GoCodeAlone/bookstore/scheduler"

// instruments mirrors each snapshot into OpenTelemetry. Counters receive the delta
// since the previous snapshot.
type instruments struct {
	steps        metric.Int64Counter
	booksSold    metric.Int64Counter
	revenue      metric.Float64Counter
	messages     metric.Int64Counter
	skipped      metric.Int64Counter
	satisfaction metric.Float64Gauge
	stock        metric.Int64Gauge
}

func newInstruments(meter metric.Meter) (*instruments, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	var (
		in  instruments
		err error
	)
	if in.steps, err = meter.Int64Counter("bookstore.steps",
		metric.WithDescription("Completed simulation steps"),
		metric.WithUnit("{step}"),
	); err != nil {
		return nil, err
	}
	if in.booksSold, err = meter.Int64Counter("bookstore.books_sold",
		metric.WithDescription("Units sold through processed orders"),
		metric.WithUnit("{book}"),
	); err != nil {
		return nil, err
	}
	if in.revenue, err = meter.Float64Counter("bookstore.revenue",
		metric.WithDescription("Sales revenue"),
	); err != nil {
		return nil, err
	}
	if in.messages, err = meter.Int64Counter("bookstore.messages",
		metric.WithDescription("Messages published on the bus"),
		metric.WithUnit("{message}"),
	); err != nil {
		return nil, err
	}
	if in.skipped, err = meter.Int64Counter("bookstore.skipped_turns",
		metric.WithDescription("Agent turns skipped after an error"),
		metric.WithUnit("{turn}"),
	); err != nil {
		return nil, err
	}
	if in.satisfaction, err = meter.Float64Gauge("bookstore.satisfaction",
		metric.WithDescription("Average customer satisfaction"),
	); err != nil {
		return nil, err
	}
	if in.stock, err = meter.Int64Gauge("bookstore.stock",
		metric.WithDescription("Total units on hand"),
		metric.WithUnit("{book}"),
	); err != nil {
		return nil, err
	}
	return &in, nil
}

func (in *instruments) record(ctx context.Context, prev, cur Snapshot) {
	in.steps.Add(ctx, 1)
	in.booksSold.Add(ctx, int64(cur.BooksSold-prev.BooksSold))
	if d := cur.Revenue - prev.Revenue; d > 0 {
		in.revenue.Add(ctx, d)
	}
	in.messages.Add(ctx, int64(cur.MessagesPublished-prev.MessagesPublished))
	in.skipped.Add(ctx, int64(cur.SkippedTurns))
	in.satisfaction.Record(ctx, cur.AvgSatisfaction)
	in.stock.Record(ctx, int64(cur.TotalStock))
}
