package douyin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

// stubSigner は署名処理を素通しするテスト用Signer。
type stubSigner struct {
	signCalled bool
}

func (s *stubSigner) Sign(rawURL string, params url.Values, headers http.Header) (url.Values, http.Header, error) {
	s.signCalled = true
	return params, headers, nil
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestFetchPage_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("aweme_id") != "7346152359719996709" {
			t.Errorf("aweme_id = %q, want 7346152359719996709", q.Get("aweme_id"))
		}
		if q.Get("cursor") != "0" {
			t.Errorf("cursor = %q, want 0", q.Get("cursor"))
		}
		if q.Get("count") != "20" {
			t.Errorf("count = %q, want 20", q.Get("count"))
		}
		if q.Get("item_type") != "0" {
			t.Errorf("item_type = %q, want 0", q.Get("item_type"))
		}
		if r.Header.Get("Cookie") != "sessionid=abc" {
			t.Errorf("Cookie = %q, want sessionid=abc", r.Header.Get("Cookie"))
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"status_code": 0,
			"comments": [
				{"cid": "c1", "text": "面白い"},
				{"cid": "c2", "text": "最高"}
			],
			"cursor": 20,
			"has_more": 1
		}`))
	}))
	defer ts.Close()

	s := &stubSigner{}
	client := NewClient(ts.Client(), s, newTestLogger())
	client.endpoint = ts.URL

	page, err := client.FetchPage(context.Background(), PageRequest{
		VideoID: "7346152359719996709",
		Cursor:  "0",
		Count:   20,
		Cookie:  "sessionid=abc",
	})
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}

	if !s.signCalled {
		t.Error("signer was not called")
	}
	if len(page.Comments) != 2 {
		t.Errorf("comments count = %d, want 2", len(page.Comments))
	}
	if !page.HasMore {
		t.Error("HasMore = false, want true")
	}
	if page.Cursor != "20" {
		t.Errorf("Cursor = %q, want 20", page.Cursor)
	}
}

func TestFetchPage_HasMoreAsBool(t *testing.T) {
	// has_moreが真偽値で返るケースも受理する
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status_code": 0, "comments": [], "has_more": false}`))
	}))
	defer ts.Close()

	client := NewClient(ts.Client(), &stubSigner{}, newTestLogger())
	client.endpoint = ts.URL

	page, err := client.FetchPage(context.Background(), PageRequest{VideoID: "123", Count: 20})
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if page.HasMore {
		t.Error("HasMore = true, want false")
	}
}

func TestFetchPage_HTTPStatusError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	client := NewClient(ts.Client(), &stubSigner{}, newTestLogger())
	client.endpoint = ts.URL

	_, err := client.FetchPage(context.Background(), PageRequest{VideoID: "123", Count: 20})

	var httpErr *HTTPStatusError
	if !errors.As(err, &httpErr) {
		t.Fatalf("error = %v, want *HTTPStatusError", err)
	}
	if httpErr.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode = %d, want %d", httpErr.StatusCode, http.StatusForbidden)
	}
}

func TestFetchPage_EmptyBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Cookie失効時の典型パターン: 200で空ボディ
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewClient(ts.Client(), &stubSigner{}, newTestLogger())
	client.endpoint = ts.URL

	_, err := client.FetchPage(context.Background(), PageRequest{VideoID: "123", Count: 20})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("error = %v, want ErrEmptyResponse", err)
	}
}

func TestFetchPage_MalformedJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>blocked</html>`))
	}))
	defer ts.Close()

	client := NewClient(ts.Client(), &stubSigner{}, newTestLogger())
	client.endpoint = ts.URL

	_, err := client.FetchPage(context.Background(), PageRequest{VideoID: "123", Count: 20})

	var malformedErr *MalformedResponseError
	if !errors.As(err, &malformedErr) {
		t.Errorf("error = %v, want *MalformedResponseError", err)
	}
}

func TestFetchPage_APIStatusError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status_code": 2154, "status_msg": "risk control"}`))
	}))
	defer ts.Close()

	client := NewClient(ts.Client(), &stubSigner{}, newTestLogger())
	client.endpoint = ts.URL

	_, err := client.FetchPage(context.Background(), PageRequest{VideoID: "123", Count: 20})

	var apiErr *APIStatusError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIStatusError", err)
	}
	if apiErr.StatusCode != 2154 {
		t.Errorf("StatusCode = %d, want 2154", apiErr.StatusCode)
	}
}

func TestFetchPage_EmptyVideoID(t *testing.T) {
	client := NewClient(http.DefaultClient, &stubSigner{}, newTestLogger())

	if _, err := client.FetchPage(context.Background(), PageRequest{VideoID: "", Count: 20}); err == nil {
		t.Error("FetchPage() error = nil, want error")
	}
}

func TestFetchPage_DefaultCursor(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("cursor"); got != "0" {
			t.Errorf("cursor = %q, want 0", got)
		}
		w.Write([]byte(`{"status_code": 0, "comments": [], "has_more": 0}`))
	}))
	defer ts.Close()

	client := NewClient(ts.Client(), &stubSigner{}, newTestLogger())
	client.endpoint = ts.URL

	// カーソル未指定は"0"として扱う
	if _, err := client.FetchPage(context.Background(), PageRequest{VideoID: "123", Count: 20}); err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
}

func TestBoolLike_Unmarshal(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{`1`, true},
		{`0`, false},
		{`true`, true},
		{`false`, false},
		{`null`, false},
	}

	for _, tt := range tests {
		var b boolLike
		if err := json.Unmarshal([]byte(tt.input), &b); err != nil {
			t.Errorf("Unmarshal(%s) error = %v", tt.input, err)
			continue
		}
		if bool(b) != tt.want {
			t.Errorf("Unmarshal(%s) = %v, want %v", tt.input, bool(b), tt.want)
		}
	}

	var b boolLike
	if err := json.Unmarshal([]byte(`"yes"`), &b); err == nil {
		t.Error("Unmarshal(\"yes\") error = nil, want error")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(ErrEmptyResponse) {
		t.Error("ErrEmptyResponse should be retryable")
	}
	if !IsRetryable(&HTTPStatusError{StatusCode: 503}) {
		t.Error("HTTPStatusError should be retryable")
	}
	if !IsRetryable(&APIStatusError{StatusCode: 2154}) {
		t.Error("APIStatusError should be retryable")
	}
	if IsRetryable(context.Canceled) {
		t.Error("context.Canceled should not be retryable")
	}
	if IsRetryable(nil) {
		t.Error("nil should not be retryable")
	}
}
