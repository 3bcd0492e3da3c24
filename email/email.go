// Package email is a thin client for the transactional email
// provider. Delivery failures are logged and surfaced as errors, never
// retried here - the user can redo the action.
package email

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"

	"gallery/config"
)

var httpClient = http.Client{}

type Message struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

func (message *Message) Send() error {
	if config.EMAIL_API_URL == "" {
		log.Printf("email not configured, dropping message to %s: %s", message.To, message.Subject)
		return nil
	}
	message.From = config.EMAIL_FROM
	buf := bytes.Buffer{}
	json.NewEncoder(&buf).Encode(*message)
	req, err := http.NewRequest(http.MethodPost, config.EMAIL_API_URL+"/send", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+config.EMAIL_API_KEY)
	resp, err := httpClient.Do(req)
	if err != nil {
		log.Printf("SendEmail, error: %v", err)
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		buf.Reset()
		io.Copy(&buf, resp.Body)
		log.Printf("SendEmail error, status: %d, %s", resp.StatusCode, buf.String())
		return fmt.Errorf("status: %d", resp.StatusCode)
	}
	return nil
}

// SendInvite tells a registered user they were given access
func SendInvite(to, inviterName, galleryTitle, slug string) error {
	message := Message{
		To:      to,
		Subject: inviterName + " shared \"" + galleryTitle + "\" with you",
		HTML: "<p>" + inviterName + " invited you to the gallery <b>" + galleryTitle + "</b>.</p>" +
			"<p><a href=\"" + config.APP_BASE_URL + "/g/" + slug + "\">Open the gallery</a></p>",
	}
	return message.Send()
}

// SendMagicLink asks an unregistered invitee to sign up; the token in
// the URL claims the pending invite once the account exists
func SendMagicLink(to, inviterName, galleryTitle, slug, token string) error {
	link := config.APP_BASE_URL + "/signup?email=" + url.QueryEscape(to) +
		"&token=" + url.QueryEscape(token) + "&gallery=" + url.QueryEscape(slug)
	message := Message{
		To:      to,
		Subject: inviterName + " shared \"" + galleryTitle + "\" with you",
		HTML: "<p>" + inviterName + " invited you to the gallery <b>" + galleryTitle + "</b>.</p>" +
			"<p><a href=\"" + link + "\">Sign up to view it</a></p>",
	}
	return message.Send()
}
