package collector

import (
	"context"
	"net/url"
	"regexp"
	"strings"
)

// VideoIDResolver は共有リンクを正規URLへ解決するインターフェース。
// douyin.ShareLinkResolverの部分集合として定義する。
type VideoIDResolver interface {
	Resolve(ctx context.Context, shareURL string) (string, error)
}

var (
	numericIDPattern  = regexp.MustCompile(`^\d+$`)
	videoPathPattern  = regexp.MustCompile(`/video/(\d+)`)
	trailingIDPattern = regexp.MustCompile(`/(\d+)/?$`)
	itemIDsPattern    = regexp.MustCompile(`item_ids=(\d+)`)
)

// NormalizeVideoID はユーザー入力（動画ID、動画URL、短縮共有リンク）を
// 数値の動画IDへ正規化する。
//
// 入力が数値ならそのまま返す。v.douyin.com形式の短縮リンクは先に
// リダイレクトを解決してからID抽出を行う。どのパターンにも一致しない
// 場合は入力をそのまま返し、上流APIの検証に委ねる。
func NormalizeVideoID(ctx context.Context, input string, resolver VideoIDResolver) (string, error) {
	input = strings.TrimSpace(input)

	if numericIDPattern.MatchString(input) {
		return input, nil
	}

	target := input
	if isShareLink(input) && resolver != nil {
		resolved, err := resolver.Resolve(ctx, input)
		if err != nil {
			return "", err
		}
		target = resolved
	}

	if m := videoPathPattern.FindStringSubmatch(target); m != nil {
		return m[1], nil
	}
	if m := trailingIDPattern.FindStringSubmatch(strings.SplitN(target, "?", 2)[0]); m != nil {
		return m[1], nil
	}
	if m := itemIDsPattern.FindStringSubmatch(target); m != nil {
		return m[1], nil
	}

	return input, nil
}

// isShareLink は入力がv.douyin.com形式の短縮共有リンクかどうかを判定する。
func isShareLink(input string) bool {
	parsed, err := url.Parse(input)
	if err != nil {
		return false
	}
	return strings.EqualFold(parsed.Hostname(), "v.douyin.com")
}
