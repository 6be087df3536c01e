package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"text/template"
	"time"

	"github.com/hitoshi/tripshare/internal/security"
)

// InvitationParams は招待メールの差し込み値。
type InvitationParams struct {
	To           string
	TripName     string
	InviterName  string
	InviterEmail string
	Role         string
	InviteURL    string
	ExpiresAt    time.Time
}

var invitationHTML = htmltemplate.Must(htmltemplate.New("invitation").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; line-height: 1.6;">
  <p>{{.Inviter}} さんから旅行「{{.TripName}}」に{{.RoleLabel}}として招待されました。</p>
  <p><a href="{{.InviteURL}}">招待を確認する</a></p>
  <p style="color: #666; font-size: 12px;">この招待は {{.Expires}} まで有効です。心当たりがない場合はこのメールを破棄してください。</p>
</body>
</html>
`))

var invitationText = template.Must(template.New("invitation").Parse(`{{.Inviter}} さんから旅行「{{.TripName}}」に{{.RoleLabel}}として招待されました。

招待を確認する: {{.InviteURL}}

この招待は {{.Expires}} まで有効です。心当たりがない場合はこのメールを破棄してください。
`))

type invitationView struct {
	Inviter   string
	TripName  string
	RoleLabel string
	InviteURL string
	Expires   string
}

var roleLabels = map[string]string{
	"editor": "編集者",
	"viewer": "閲覧者",
}

// InvitationMessage は招待メールを組み立てる。
// 旅行名と招待者名はユーザー入力のためタグを除去してから差し込む。
func InvitationMessage(sanitizer security.TextSanitizer, p InvitationParams) (Message, error) {
	inviter := sanitizer.SanitizeText(p.InviterName)
	if inviter == "" {
		inviter = p.InviterEmail
	}
	tripName := sanitizer.SanitizeText(p.TripName)
	if tripName == "" {
		tripName = "（無題の旅行）"
	}
	label, ok := roleLabels[p.Role]
	if !ok {
		label = p.Role
	}

	view := invitationView{
		Inviter:   inviter,
		TripName:  tripName,
		RoleLabel: label,
		InviteURL: p.InviteURL,
		Expires:   p.ExpiresAt.UTC().Format("2006-01-02 15:04 MST"),
	}

	var htmlBuf, textBuf bytes.Buffer
	if err := invitationHTML.Execute(&htmlBuf, view); err != nil {
		return Message{}, fmt.Errorf("failed to render invitation html: %w", err)
	}
	if err := invitationText.Execute(&textBuf, view); err != nil {
		return Message{}, fmt.Errorf("failed to render invitation text: %w", err)
	}

	return Message{
		To:      p.To,
		Subject: fmt.Sprintf("%s さんから旅行「%s」への招待が届いています", inviter, tripName),
		HTML:    htmlBuf.String(),
		Text:    textBuf.String(),
	}, nil
}
