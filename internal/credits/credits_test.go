package credits

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"mediagen/internal/domain"
)

func TestPriceTableRoundsUpToBucket(t *testing.T) {
	table := DefaultPriceTable()
	cases := []struct {
		w, h   int
		want   int
		bucket string
	}{
		{256, 256, 0, "free"},
		{512, 512, 0, "free"},
		{513, 512, 10, "standard"},
		{1024, 1024, 10, "standard"},
		{1280, 720, 10, "standard"},
		{1152, 1152, 20, "hd"},
		{2048, 2048, 40, "ultra"},
	}
	for _, tc := range cases {
		q, err := table.Quote(domain.GenerationRequest{Kind: domain.KindImage, Width: tc.w, Height: tc.h})
		if err != nil {
			t.Fatalf("%dx%d: unexpected error %v", tc.w, tc.h, err)
		}
		if q.Cost != tc.want || q.Bucket != tc.bucket {
			t.Fatalf("%dx%d: quote = %+v, want %d/%s", tc.w, tc.h, q, tc.want, tc.bucket)
		}
	}
	if _, err := table.Cost(domain.GenerationRequest{Kind: domain.KindImage, Width: 4096, Height: 4096}); domain.CodeOf(err) != domain.CodeValidation {
		t.Fatalf("oversized image err = %v, want validation", err)
	}
}

func TestPriceTableFixedKinds(t *testing.T) {
	table := DefaultPriceTable()
	if c, _ := table.Cost(domain.GenerationRequest{Kind: domain.KindVideo}); c != table.VideoCost {
		t.Fatalf("video cost = %d", c)
	}
	if c, _ := table.Cost(domain.GenerationRequest{Kind: domain.KindTranscript}); c != table.TranscriptCost {
		t.Fatalf("transcript cost = %d", c)
	}
}

func TestLedgerDebitsWhenBalanceCovers(t *testing.T) {
	svc := NewMemoryService(map[string]int{"u1": 15})
	ledger := NewLedger(svc, zerolog.Nop())

	ok, err := ledger.AuthorizeAndDebit(context.Background(), "u1", 10)
	if err != nil || !ok {
		t.Fatalf("AuthorizeAndDebit = %v, %v; want true, nil", ok, err)
	}
	if bal, _ := svc.Balance(context.Background(), "u1"); bal != 5 {
		t.Fatalf("balance = %d, want 5", bal)
	}
	ok, err = ledger.AuthorizeAndDebit(context.Background(), "u1", 10)
	if err != nil || ok {
		t.Fatalf("second debit = %v, %v; want false, nil", ok, err)
	}
	if bal, _ := svc.Balance(context.Background(), "u1"); bal != 5 {
		t.Fatalf("insufficient debit changed balance to %d", bal)
	}
}

func TestLedgerFreeTierSkipsRoundTrip(t *testing.T) {
	svc := NewMemoryService(nil)
	ledger := NewLedger(svc, zerolog.Nop())
	ok, err := ledger.AuthorizeAndDebit(context.Background(), "u1", 0)
	if err != nil || !ok {
		t.Fatalf("free debit = %v, %v", ok, err)
	}
	if svc.Calls() != 0 {
		t.Fatalf("calls = %d, want 0", svc.Calls())
	}
}

func TestLedgerTranslatesTransportFailure(t *testing.T) {
	svc := NewMemoryService(map[string]int{"u1": 100})
	svc.FailWith(errors.New("connection reset"))
	ledger := NewLedger(svc, zerolog.Nop())

	ok, err := ledger.AuthorizeAndDebit(context.Background(), "u1", 10)
	if ok {
		t.Fatalf("expected debit to fail")
	}
	if domain.CodeOf(err) != domain.CodeCreditService {
		t.Fatalf("err = %v, want credit service fault", err)
	}
}

func TestMemoryServiceNeverOverspendsConcurrently(t *testing.T) {
	svc := NewMemoryService(map[string]int{"u1": 50})
	ledger := NewLedger(svc, zerolog.Nop())
	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := ledger.AuthorizeAndDebit(context.Background(), "u1", 10); ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if granted != 5 {
		t.Fatalf("granted = %d, want 5", granted)
	}
}

func TestRedisServiceUnreachableIsFault(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond, MaxRetries: -1})
	defer client.Close()
	ledger := NewLedger(NewRedisService(client, ""), zerolog.Nop())

	ok, err := ledger.AuthorizeAndDebit(context.Background(), "u1", 10)
	if ok || domain.CodeOf(err) != domain.CodeCreditService {
		t.Fatalf("AuthorizeAndDebit = %v, %v; want credit service fault", ok, err)
	}
}

type stubRow struct {
	balance int
	err     error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*int)) = r.balance
	return nil
}

type stubSQL struct {
	row  stubRow
	args []any
}

func (s *stubSQL) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (s *stubSQL) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	s.args = args
	return s.row
}

func (s *stubSQL) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func TestPGServiceNoRowsMeansInsufficient(t *testing.T) {
	svc := NewPGService(&stubSQL{row: stubRow{err: pgx.ErrNoRows}})
	ok, err := svc.AuthorizeAndDebit(context.Background(), "u1", 10)
	if ok || err != nil {
		t.Fatalf("AuthorizeAndDebit = %v, %v; want false, nil", ok, err)
	}
}

func TestPGServiceDebitPassesAmount(t *testing.T) {
	sql := &stubSQL{row: stubRow{balance: 5}}
	svc := NewPGService(sql)
	ok, err := svc.AuthorizeAndDebit(context.Background(), "u1", 10)
	if !ok || err != nil {
		t.Fatalf("AuthorizeAndDebit = %v, %v; want true, nil", ok, err)
	}
	if sql.args[0] != "u1" || sql.args[1] != 10 {
		t.Fatalf("args = %v", sql.args)
	}
}
