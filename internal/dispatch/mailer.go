// Package dispatch はダイジェスト配信のバッチジョブとメール送信を提供する。
package dispatch

import (
	"fmt"
	"mime"
	"net/smtp"
	"strings"
	"time"

	"github.com/hitoshi/newsdispatcher/internal/model"
)

// Mailer はダイジェストメール送信のインターフェース。
// テスト時にモックに差し替え可能。
type Mailer interface {
	SendDigest(to string, digest *Digest) error
}

// Digest は1受信者に送るダイジェストメールの内容。
// クエリセットごとの記事グループを名前順に保持する。
type Digest struct {
	Sections []DigestSection
}

// DigestSection はクエリセット1件分の記事グループ。
type DigestSection struct {
	QueryName      string
	EffectiveQuery string
	Articles       []*model.Article
}

// ArticleCount はダイジェストに含まれる記事の総数を返す。
func (d *Digest) ArticleCount() int {
	var n int
	for _, s := range d.Sections {
		n += len(s.Articles)
	}
	return n
}

// ArticleIDs はダイジェストに含まれる記事IDを重複なしで返す。
// 永続化されていない記事（IDが空）は含めない。
func (d *Digest) ArticleIDs() []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, s := range d.Sections {
		for _, a := range s.Articles {
			if a.ID == "" {
				continue
			}
			if _, ok := seen[a.ID]; ok {
				continue
			}
			seen[a.ID] = struct{}{}
			ids = append(ids, a.ID)
		}
	}
	return ids
}

// SMTPMailer はSMTP経由でダイジェストメールを送信する。
type SMTPMailer struct {
	host string
	port string
	from string
	// send はテスト時に差し替え可能なSMTP送信関数。
	send func(addr string, from string, to []string, msg []byte) error
}

// NewSMTPMailer はSMTPMailerの新しいインスタンスを生成する。
func NewSMTPMailer(host, port, from string) *SMTPMailer {
	return &SMTPMailer{
		host: host,
		port: port,
		from: from,
		send: func(addr string, from string, to []string, msg []byte) error {
			return smtp.SendMail(addr, nil, from, to, msg)
		},
	}
}

const digestSubject = "【News Dispatcher】今日のニュースダイジェスト"

// SendDigest はダイジェストメールをプレーンテキストで送信する。
func (m *SMTPMailer) SendDigest(to string, digest *Digest) error {
	msg := buildMessage(m.from, to, digestSubject, buildDigestBody(digest, time.Now()))
	addr := m.host + ":" + m.port
	if err := m.send(addr, m.from, []string{to}, msg); err != nil {
		return fmt.Errorf("ダイジェストメールの送信に失敗しました: %w", err)
	}
	return nil
}

// buildMessage はSMTP送信用のメッセージバイト列を組み立てる。
// 件名はUTF-8のままMIMEエンコードする。
func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + encodeSubject(subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

// encodeSubject は件名をRFC 2047のBエンコード形式に変換する。
func encodeSubject(subject string) string {
	return mime.BEncoding.Encode("UTF-8", subject)
}

// buildDigestBody はダイジェストメールの本文を組み立てる。
// クエリセットごとに記事タイトルとURLを列挙する。
func buildDigestBody(digest *Digest, now time.Time) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s のニュースダイジェストをお届けします。\n", now.Format("2006-01-02")))

	for _, section := range digest.Sections {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("■ %s\n", section.QueryName))
		for _, a := range section.Articles {
			b.WriteString(fmt.Sprintf("- %s\n  %s\n", a.Title, a.URL))
		}
	}

	b.WriteString("\n--\nNews Dispatcher\n")
	return b.String()
}
