package collector

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/hitoshi/commentman/internal/model"
)

// rawComment は上流APIの生コメントJSONの関心フィールド。
// 数値フィールドは欠落の許容と範囲検証を呼び出し側で行うためjson.Numberで受ける。
type rawComment struct {
	CID               string      `json:"cid"`
	Text              string      `json:"text"`
	DiggCount         json.Number `json:"digg_count"`
	ReplyCommentTotal json.Number `json:"reply_comment_total"`
	IPLabel           string      `json:"ip_label"`
	CreateTime        json.Number `json:"create_time"`
	User              struct {
		Nickname string `json:"nickname"`
		UID      string `json:"uid"`
	} `json:"user"`
}

// normalizeComment は生コメントJSONを1件のmodel.Commentへ正規化する。
// cid欠落、JSON解析不能、数値フィールドの不正は除外対象としてok=falseを返す。
func normalizeComment(videoID string, raw json.RawMessage) (model.Comment, bool) {
	var rc rawComment
	if err := json.Unmarshal(raw, &rc); err != nil {
		return model.Comment{}, false
	}

	// cidはレコードの同一性を担う必須フィールド
	if rc.CID == "" {
		return model.Comment{}, false
	}

	likeCount, ok := nonNegativeInt(rc.DiggCount)
	if !ok {
		return model.Comment{}, false
	}
	replyCount, ok := nonNegativeInt(rc.ReplyCommentTotal)
	if !ok {
		return model.Comment{}, false
	}

	// create_timeは0または欠落を「不明」として扱う
	var createdAt *time.Time
	if rc.CreateTime.String() != "" {
		epoch, err := rc.CreateTime.Int64()
		if err != nil || epoch < 0 {
			return model.Comment{}, false
		}
		if epoch > 0 {
			t := time.Unix(epoch, 0).UTC()
			createdAt = &t
		}
	}

	return model.Comment{
		VideoID:           videoID,
		CommentID:         rc.CID,
		Content:           decodeUnicodeEscapes(rc.Text),
		AuthorDisplayName: decodeUnicodeEscapes(rc.User.Nickname),
		AuthorID:          rc.User.UID,
		LikeCount:         likeCount,
		ReplyCount:        replyCount,
		IPLocation:        rc.IPLabel,
		CreatedAt:         createdAt,
	}, true
}

// nonNegativeInt はjson.Numberを非負整数として解釈する。
// 欠落（空文字）は0として扱う。
func nonNegativeInt(n json.Number) (int, bool) {
	if n.String() == "" {
		return 0, true
	}
	v, err := n.Int64()
	if err != nil || v < 0 {
		return 0, false
	}
	return int(v), true
}

// decodeUnicodeEscapes は文字列中のリテラルな\uXXXXエスケープ列を
// 対応する文字へデコードする。サロゲートペアにも対応する。
// エスケープ列を含まない文字列には何もしないため、デコード済みの入力に
// 再適用しても結果は変わらない。不正なエスケープ列はそのまま残す。
func decodeUnicodeEscapes(s string) string {
	if !strings.Contains(s, `\u`) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); {
		if s[i] == '\\' && i+6 <= len(s) && s[i+1] == 'u' {
			r, ok := parseHex4(s[i+2 : i+6])
			if !ok {
				b.WriteByte(s[i])
				i++
				continue
			}

			// 上位サロゲートの場合は続く\uXXXXと組にする
			if utf16.IsSurrogate(rune(r)) {
				if i+12 <= len(s) && s[i+6] == '\\' && s[i+7] == 'u' {
					if r2, ok2 := parseHex4(s[i+8 : i+12]); ok2 {
						combined := utf16.DecodeRune(rune(r), rune(r2))
						if combined != utf8.RuneError {
							b.WriteRune(combined)
							i += 12
							continue
						}
					}
				}
				// 対にならないサロゲートは置換文字として出力
				b.WriteRune(utf8.RuneError)
				i += 6
				continue
			}

			b.WriteRune(rune(r))
			i += 6
			continue
		}

		b.WriteByte(s[i])
		i++
	}

	return b.String()
}

// parseHex4 は4桁の16進文字列を整数へ変換する。
func parseHex4(s string) (uint32, bool) {
	if len(s) != 4 {
		return 0, false
	}
	var v uint32
	for i := 0; i < 4; i++ {
		c := s[i]
		v <<= 4
		switch {
		case c >= '0' && c <= '9':
			v |= uint32(c - '0')
		case c >= 'a' && c <= 'f':
			v |= uint32(c-'a') + 10
		case c >= 'A' && c <= 'F':
			v |= uint32(c-'A') + 10
		default:
			return 0, false
		}
	}
	return v, true
}
