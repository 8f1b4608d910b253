// Package query はキーワード選択をソース固有の検索クエリ文字列に変換する。
//
// 各ソースのブール演算子の構文が異なるため、ソースごとにコンパイル関数を分ける:
//   - Google News / CiNii: キーワードをORで結合し、絞り込み句は暗黙のANDで後置する。
//   - arXiv: 全ての語に全文検索のフィールド指定子を付け、絞り込み句は
//     トークンごとに明示的なAND / ANDNOTで結合する。
package query

import (
	"strings"
	"time"

	"github.com/hitoshi/newsdispatcher/internal/model"
)

// CompileGoogleNews はGoogle News RSS検索用のクエリ文字列を生成する。
// キーワードはORで結合し、2語以上の場合は括弧で囲む。
// Refineはそのまま後置する（Google Newsの検索構文では並記が暗黙のANDになる）。
func CompileGoogleNews(sel model.QuerySelection) string {
	return compileImplicitAnd(sel)
}

// CompileCiNii はCiNii OpenSearch用のクエリ文字列を生成する。
// 構文はGoogle Newsと同じ: OR結合のキーワード群 + 暗黙のANDの絞り込み句。
func CompileCiNii(sel model.QuerySelection) string {
	return compileImplicitAnd(sel)
}

// compileImplicitAnd はOR結合 + 暗黙のANDによる絞り込みという共通構文でコンパイルする。
func compileImplicitAnd(sel model.QuerySelection) string {
	orGroup := buildORGroup(sel.Keywords, func(term string) string { return term })

	refine := strings.TrimSpace(sel.Refine)
	switch {
	case orGroup == "":
		return refine
	case refine == "":
		return orGroup
	default:
		return orGroup + " " + refine
	}
}

// CompileArxiv はarXiv API用のsearch_queryパラメータ値を生成する。
//
// 全ての語に全文検索のフィールド指定子 "all:" を付ける。キーワードはORで結合し、
// 2語以上の場合は括弧で囲む。Refineは空白区切りのトークン列として解釈し、
// "-" で始まるトークンはANDNOT、それ以外はANDで結合する。
// 空白を含む語は引用符で囲む。
//
// キーワードが空でRefineだけがある場合、クエリは演算子から始められないため、
// 先頭トークンの演算子は取り除く。
func CompileArxiv(sel model.QuerySelection) string {
	q := buildORGroup(sel.Keywords, arxivTerm)

	for _, token := range strings.Fields(sel.Refine) {
		op := "AND"
		if strings.HasPrefix(token, "-") {
			op = "ANDNOT"
			token = token[1:]
		}
		if token == "" {
			continue
		}
		if q == "" {
			q = arxivTerm(token)
			continue
		}
		q += " " + op + " " + arxivTerm(token)
	}

	return q
}

// buildORGroup はキーワード群をORで結合する。2語以上の場合は括弧で囲み、
// 後続のAND句が個々の語ではなくグループ全体に掛かるようにする。
// 空白のみのキーワードは無視する。
func buildORGroup(keywords []string, term func(string) string) string {
	var parts []string
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		parts = append(parts, term(kw))
	}

	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	default:
		return "(" + strings.Join(parts, " OR ") + ")"
	}
}

// arxivTerm は語にフィールド指定子を付ける。空白を含む語はフレーズとして引用符で囲む。
func arxivTerm(term string) string {
	if strings.ContainsAny(term, " \t") {
		return `all:"` + term + `"`
	}
	return "all:" + term
}

// WithAfterClause はGoogle Newsのクエリに日付下限の句を追加する。
// afterDaysが0以下の場合はクエリをそのまま返す。
func WithAfterClause(compiled string, afterDays int, now time.Time) string {
	if afterDays <= 0 {
		return compiled
	}
	afterDate := now.AddDate(0, 0, -afterDays).Format("2006-01-02")
	return compiled + " after:" + afterDate
}
