package notify

import (
	"bytes"
	"embed"
	htmltmpl "html/template"
	"net/mail"
	texttmpl "text/template"
	"time"

	"github.com/pkg/errors"
)

//go:embed templates/*
var templateFS embed.FS

var (
	otpHTML = htmltmpl.Must(htmltmpl.ParseFS(templateFS, "templates/otp.gohtml")).Option("missingkey=error")
	otpText = texttmpl.Must(texttmpl.ParseFS(templateFS, "templates/otp.txt")).Option("missingkey=error")
)

// OTPData fills the one-time code email.
type OTPData struct {
	Name    string
	Code    string
	Purpose string
	Valid   time.Duration
}

// Minutes is the validity window in whole minutes.
func (d OTPData) Minutes() int {
	return int(d.Valid / time.Minute)
}

// OTPMessage renders the one-time code email for the given recipient.
func OTPMessage(to mail.Address, data OTPData) (Message, error) {
	var html, text bytes.Buffer
	if err := otpHTML.Execute(&html, data); err != nil {
		return Message{}, errors.Wrap(err, "render otp html")
	}
	if err := otpText.Execute(&text, data); err != nil {
		return Message{}, errors.Wrap(err, "render otp text")
	}
	return Message{
		To:      to,
		Subject: "Your OTP Code",
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
