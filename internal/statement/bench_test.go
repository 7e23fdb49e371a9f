package statement

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finverse/finverse/internal/entitystore"
)

func BenchmarkGenerateFinfluencer(b *testing.B) {
	store := entitystore.NewMemory()
	ctx := context.Background()
	for i := 0; i < 2000; i++ {
		day := fixedNow.AddDate(0, 0, -(i % 400))
		_, _ = store.Create(ctx, entitystore.CollectionRevenueTransaction, entitystore.Record{
			"finfluencer_id": "f1", "course_id": "c" + strconv.Itoa(i%20),
			"gross_amount": 1000 + i, "platform_commission": 100, "creator_payout": 900 + i,
			"created_date": day.Format(time.RFC3339),
		})
	}
	svc := NewService(store, nil, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{})
	svc.WithNow(func() time.Time { return fixedNow })
	req := Request{EntityKind: KindFinfluencer, EntityID: "f1", PeriodToken: TokenLast6Months}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := svc.Generate(ctx, req); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSummarize(b *testing.B) {
	items := make([]LineItem, 5000)
	for i := range items {
		items[i] = LineItem{GrossAmount: decimal.NewFromInt(int64(1000 + i)), Commission: decimal.NewFromInt(100), NetAmount: decimal.NewFromInt(int64(900 + i))}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Summarize(items, nil)
	}
}
