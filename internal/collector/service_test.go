package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/commentman/internal/douyin"
	"github.com/hitoshi/commentman/internal/metrics"
	"github.com/hitoshi/commentman/internal/model"
)

// mockPageFetcher はPageFetcherのモック実装。
type mockPageFetcher struct {
	fetchPageFunc func(ctx context.Context, req douyin.PageRequest) (*douyin.Page, error)
	calls         []douyin.PageRequest
}

func (m *mockPageFetcher) FetchPage(ctx context.Context, req douyin.PageRequest) (*douyin.Page, error) {
	m.calls = append(m.calls, req)
	return m.fetchPageFunc(ctx, req)
}

// mockCreds はCredentialProviderのモック実装。
type mockCreds struct {
	cred model.Credential
	err  error
}

func (m *mockCreds) Current() (model.Credential, error) {
	return m.cred, m.err
}

func testConfig() Config {
	return Config{
		PageSize:         20,
		RetryMax:         3,
		BackoffBase:      time.Millisecond,
		ThrottleInterval: time.Millisecond,
	}
}

func newTestService(fetcher PageFetcher) *Service {
	return NewService(
		fetcher,
		&mockCreds{cred: model.Credential{Value: "sessionid=abc", Source: model.CredentialSourceExplicit}},
		nil,
		testConfig(),
		metrics.Noop{},
		slog.New(slog.NewJSONHandler(io.Discard, nil)),
	)
}

func rawComments(ids ...string) []json.RawMessage {
	var out []json.RawMessage
	for _, id := range ids {
		out = append(out, json.RawMessage(fmt.Sprintf(`{"cid": %q, "text": "comment %s"}`, id, id)))
	}
	return out
}

func TestCollect_SinglePage(t *testing.T) {
	fetcher := &mockPageFetcher{
		fetchPageFunc: func(ctx context.Context, req douyin.PageRequest) (*douyin.Page, error) {
			return &douyin.Page{
				Comments: rawComments("c1", "c2", "c3", "c4", "c5"),
				HasMore:  false,
			}, nil
		},
	}

	svc := newTestService(fetcher)

	result, err := svc.Collect(context.Background(), "7346152359719996709", 100)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	if len(result.Comments) != 5 {
		t.Errorf("comments = %d, want 5", len(result.Comments))
	}
	if result.Pages != 1 {
		t.Errorf("pages = %d, want 1", result.Pages)
	}
	if len(fetcher.calls) != 1 {
		t.Fatalf("fetch calls = %d, want 1", len(fetcher.calls))
	}
	if fetcher.calls[0].Cursor != "0" {
		t.Errorf("first cursor = %q, want 0", fetcher.calls[0].Cursor)
	}
	if fetcher.calls[0].Cookie != "sessionid=abc" {
		t.Errorf("cookie = %q", fetcher.calls[0].Cookie)
	}
}

func TestCollect_PaginationAdvancesCursorByFetchedCount(t *testing.T) {
	pages := map[string]*douyin.Page{
		"0":  {Comments: rawComments("c1", "c2", "c3"), HasMore: true},
		"3":  {Comments: rawComments("c4", "c5", "c6"), HasMore: true},
		"6":  {Comments: rawComments("c7"), HasMore: false},
	}

	fetcher := &mockPageFetcher{
		fetchPageFunc: func(ctx context.Context, req douyin.PageRequest) (*douyin.Page, error) {
			page, ok := pages[req.Cursor]
			if !ok {
				return nil, fmt.Errorf("unexpected cursor: %s", req.Cursor)
			}
			return page, nil
		},
	}

	svc := newTestService(fetcher)

	result, err := svc.Collect(context.Background(), "123", 100)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	if len(result.Comments) != 7 {
		t.Errorf("comments = %d, want 7", len(result.Comments))
	}
	if result.Pages != 3 {
		t.Errorf("pages = %d, want 3", result.Pages)
	}
}

func TestCollect_StopsAtMaxAndTruncates(t *testing.T) {
	fetcher := &mockPageFetcher{
		fetchPageFunc: func(ctx context.Context, req douyin.PageRequest) (*douyin.Page, error) {
			// 要求件数に関わらず常に5件返す上流を想定
			return &douyin.Page{
				Comments: rawComments(
					fmt.Sprintf("%s-a", req.Cursor),
					fmt.Sprintf("%s-b", req.Cursor),
					fmt.Sprintf("%s-c", req.Cursor),
					fmt.Sprintf("%s-d", req.Cursor),
					fmt.Sprintf("%s-e", req.Cursor),
				),
				HasMore: true,
			}, nil
		},
	}

	svc := newTestService(fetcher)

	result, err := svc.Collect(context.Background(), "123", 7)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	if len(result.Comments) != 7 {
		t.Errorf("comments = %d, want 7（上限で切り詰め）", len(result.Comments))
	}

	// 2ページ目の要求件数は残数に合わせて縮む
	if len(fetcher.calls) != 2 {
		t.Fatalf("fetch calls = %d, want 2", len(fetcher.calls))
	}
	if fetcher.calls[1].Count != 2 {
		t.Errorf("second page count = %d, want 2", fetcher.calls[1].Count)
	}
}

func TestCollect_DeduplicatesWithinRun(t *testing.T) {
	callCount := 0
	fetcher := &mockPageFetcher{
		fetchPageFunc: func(ctx context.Context, req douyin.PageRequest) (*douyin.Page, error) {
			callCount++
			if callCount == 1 {
				return &douyin.Page{Comments: rawComments("c1", "c2"), HasMore: true}, nil
			}
			// 2ページ目にc2が再出現する（上流のオフセットずれで起こる）
			return &douyin.Page{Comments: rawComments("c2", "c3"), HasMore: false}, nil
		},
	}

	svc := newTestService(fetcher)

	result, err := svc.Collect(context.Background(), "123", 100)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	if len(result.Comments) != 3 {
		t.Errorf("comments = %d, want 3（実行内重複は排除）", len(result.Comments))
	}
}

func TestCollect_RetryThenSuccess(t *testing.T) {
	callCount := 0
	fetcher := &mockPageFetcher{
		fetchPageFunc: func(ctx context.Context, req douyin.PageRequest) (*douyin.Page, error) {
			callCount++
			// 2回失敗して3回目に成功（RetryMax=3の境界）
			if callCount <= 2 {
				return nil, douyin.ErrEmptyResponse
			}
			return &douyin.Page{Comments: rawComments("c1"), HasMore: false}, nil
		},
	}

	svc := newTestService(fetcher)

	result, err := svc.Collect(context.Background(), "123", 10)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(result.Comments) != 1 {
		t.Errorf("comments = %d, want 1", len(result.Comments))
	}
	if callCount != 3 {
		t.Errorf("fetch attempts = %d, want 3", callCount)
	}
}

func TestCollect_RetryExhausted(t *testing.T) {
	fetcher := &mockPageFetcher{
		fetchPageFunc: func(ctx context.Context, req douyin.PageRequest) (*douyin.Page, error) {
			return nil, &douyin.HTTPStatusError{StatusCode: 503}
		},
	}

	svc := newTestService(fetcher)

	_, err := svc.Collect(context.Background(), "123", 10)
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("error = %v, want ErrRetryExhausted", err)
	}
	if len(fetcher.calls) != 3 {
		t.Errorf("fetch attempts = %d, want 3", len(fetcher.calls))
	}
}

func TestCollect_ContextCanceledNotRetried(t *testing.T) {
	fetcher := &mockPageFetcher{
		fetchPageFunc: func(ctx context.Context, req douyin.PageRequest) (*douyin.Page, error) {
			return nil, context.Canceled
		},
	}

	svc := newTestService(fetcher)

	_, err := svc.Collect(context.Background(), "123", 10)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if len(fetcher.calls) != 1 {
		t.Errorf("fetch attempts = %d, want 1（キャンセルはリトライしない）", len(fetcher.calls))
	}
}

func TestCollect_DroppedRecordsCounted(t *testing.T) {
	fetcher := &mockPageFetcher{
		fetchPageFunc: func(ctx context.Context, req douyin.PageRequest) (*douyin.Page, error) {
			return &douyin.Page{
				Comments: []json.RawMessage{
					json.RawMessage(`{"cid": "c1", "text": "ok"}`),
					json.RawMessage(`{"text": "cidなし"}`),
					json.RawMessage(`{broken`),
				},
				HasMore: false,
			}, nil
		},
	}

	svc := newTestService(fetcher)

	result, err := svc.Collect(context.Background(), "123", 10)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(result.Comments) != 1 {
		t.Errorf("comments = %d, want 1", len(result.Comments))
	}
	if result.Dropped != 2 {
		t.Errorf("dropped = %d, want 2", result.Dropped)
	}
}

func TestCollect_CredentialMissing(t *testing.T) {
	svc := NewService(
		&mockPageFetcher{fetchPageFunc: func(ctx context.Context, req douyin.PageRequest) (*douyin.Page, error) {
			t.Fatal("fetch should not be called")
			return nil, nil
		}},
		&mockCreds{err: errors.New("credential missing")},
		nil,
		testConfig(),
		metrics.Noop{},
		slog.New(slog.NewJSONHandler(io.Discard, nil)),
	)

	if _, err := svc.Collect(context.Background(), "123", 10); err == nil {
		t.Error("Collect() error = nil, want error")
	}
}

func TestCollect_InvalidMaxComments(t *testing.T) {
	svc := newTestService(&mockPageFetcher{fetchPageFunc: func(ctx context.Context, req douyin.PageRequest) (*douyin.Page, error) {
		return nil, nil
	}})

	if _, err := svc.Collect(context.Background(), "123", 0); err == nil {
		t.Error("Collect(max=0) error = nil, want error")
	}
}
