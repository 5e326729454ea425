package mail

import (
	"bytes"
	"html/template"
)

var layout = template.Must(template.New("mail").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
<h2 style="color: #1a365d;">{{.Title}}</h2>
<p>Dear {{.Name}},</p>
{{range .Paragraphs}}<p>{{.}}</p>
{{end}}{{if .Secret}}<p style="font-size: 18px; font-family: monospace;">{{.Secret}}</p>
{{end}}{{if .Link}}<p><a href="{{.Link}}" style="display: inline-block; padding: 10px 18px; background: #1a365d; color: #fff; text-decoration: none; border-radius: 4px;">{{.LinkText}}</a></p>
<p style="font-size: 12px; color: #718096;">{{.Link}}</p>
{{end}}<p>Best regards,<br>The IOEA Team</p>
<hr style="margin-top: 30px; border: none; border-top: 1px solid #e2e8f0;">
<p style="font-size: 12px; color: #718096;">Institutional and Organizational Economics Academy</p>
</div>`))

type body struct {
	Title      string
	Name       string
	Paragraphs []string
	Secret     string
	Link       string
	LinkText   string
}

func render(b body) string {
	var buf bytes.Buffer
	// The template is static and its data are strings.
	_ = layout.Execute(&buf, b)
	return buf.String()
}

// PasswordResetMessage carries a reset link valid for one hour.
func PasswordResetMessage(to, name, resetURL string) Message {
	return Message{
		To:      to,
		Subject: "IOEA password reset",
		HTML: render(body{
			Title: "Reset your password",
			Name:  name,
			Paragraphs: []string{
				"We received a request to reset the password of your IOEA account.",
				"The link below is valid for one hour and can be used once. If you did not ask for a reset you can ignore this message.",
			},
			Link:     resetURL,
			LinkText: "Choose a new password",
		}),
	}
}

// WelcomeMessage announces a new account and its temporary password.
func WelcomeMessage(to, name, temporaryPassword, loginURL string) Message {
	return Message{
		To:      to,
		Subject: "Your IOEA account",
		HTML: render(body{
			Title: "Welcome to IOEA",
			Name:  name,
			Paragraphs: []string{
				"An account has been created for you. Your temporary password is:",
			},
			Secret:   temporaryPassword,
			Link:     loginURL,
			LinkText: "Sign in",
		}),
	}
}

// EmailChangeMessage asks the owner of the new address to confirm it.
func EmailChangeMessage(to, name, verifyURL string) Message {
	return Message{
		To:      to,
		Subject: "Confirm your new IOEA email address",
		HTML: render(body{
			Title: "Confirm your email address",
			Name:  name,
			Paragraphs: []string{
				"Please confirm that this address should be used for your IOEA account. The link is valid for 24 hours.",
			},
			Link:     verifyURL,
			LinkText: "Confirm address",
		}),
	}
}
