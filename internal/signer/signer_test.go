package signer

import (
	"net/http"
	"net/url"
	"testing"
)

func TestWebSigner_Sign_AddsTokenAndHeaders(t *testing.T) {
	s := NewWebSigner()

	params := url.Values{}
	params.Set("aweme_id", "7346152359719996709")
	params.Set("cursor", "0")

	signedParams, signedHeaders, err := s.Sign("https://www.douyin.com/aweme/v1/web/comment/list/", params, http.Header{})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	if signedParams.Get("aweme_id") != "7346152359719996709" {
		t.Errorf("aweme_id = %q, 元のパラメータが保持されていない", signedParams.Get("aweme_id"))
	}
	if signedParams.Get("msToken") == "" {
		t.Error("msToken is empty")
	}
	if signedParams.Get("device_platform") != "webapp" {
		t.Errorf("device_platform = %q, want webapp", signedParams.Get("device_platform"))
	}
	if signedHeaders.Get("User-Agent") == "" {
		t.Error("User-Agent header is empty")
	}
	if signedHeaders.Get("Referer") == "" {
		t.Error("Referer header is empty")
	}
}

func TestWebSigner_Sign_DoesNotMutateInput(t *testing.T) {
	s := NewWebSigner()

	params := url.Values{}
	params.Set("cursor", "20")
	headers := http.Header{}

	if _, _, err := s.Sign("https://www.douyin.com/aweme/v1/web/comment/list/", params, headers); err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	if params.Get("msToken") != "" {
		t.Error("入力paramsが変更されている")
	}
	if headers.Get("User-Agent") != "" {
		t.Error("入力headersが変更されている")
	}
}

func TestWebSigner_Sign_PreservesExistingToken(t *testing.T) {
	s := NewWebSigner()

	params := url.Values{}
	params.Set("msToken", "preset-token")

	signedParams, _, err := s.Sign("https://www.douyin.com/aweme/v1/web/comment/list/", params, http.Header{})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	if signedParams.Get("msToken") != "preset-token" {
		t.Errorf("msToken = %q, want preset-token", signedParams.Get("msToken"))
	}
}

func TestWebSigner_Sign_EmptyURL(t *testing.T) {
	s := NewWebSigner()

	if _, _, err := s.Sign("", url.Values{}, http.Header{}); err == nil {
		t.Error("Sign(\"\") error = nil, want error")
	}
}

var _ Signer = (*WebSigner)(nil)
