/*
Copyright 2025 Nordvend Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package notification delivers operator-facing messages: Slack for system
// errors, mail for rejection reports. Every send is best-effort; a
// notification failure never blocks a pipeline outcome.
package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"

	"github.com/nordvend/pant/config"
	"github.com/nordvend/pant/model"
)

// Mailer sends a rejection report naming the offending file.
// Implemented on SMTP below; faked in tests.
type Mailer interface {
	Send(subject, attachmentName string, findings []model.Finding, recipients []string) error
}

// SmtpMailer is the gomail-backed Mailer.
type SmtpMailer struct {
	cfg config.MailConfig
}

// NewMailer builds a Mailer from the loaded configuration.
func NewMailer() (*SmtpMailer, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	return &SmtpMailer{cfg: cfg.Notification.Mail}, nil
}

// Send mails the findings list as the body with attachmentName named in
// the subject line. Retries transient SMTP failures briefly.
func (m *SmtpMailer) Send(subject, attachmentName string, findings []model.Finding, recipients []string) error {
	if m.cfg.Host == "" || len(recipients) == 0 {
		return nil
	}

	var body bytes.Buffer
	fmt.Fprintf(&body, "Import of %s produced %d finding(s):\n\n", attachmentName, len(findings))
	for _, f := range findings {
		fmt.Fprintf(&body, "  line %d: %s\n", f.Line, f.Message)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", recipients...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body.String())

	dialer := gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.User, m.cfg.Password)

	operation := func() error {
		return dialer.DialAndSend(msg)
	}
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(2*time.Second), 2)
	if err := backoff.Retry(operation, policy); err != nil {
		logrus.Errorf("mail notification for %s failed: %v", attachmentName, err)
		return err
	}
	return nil
}

// SlackNotification sends an error message to the configured Slack
// webhook.
func SlackNotification(err error) {
	conf, cfgErr := config.Fetch()
	if cfgErr != nil {
		log.Println(cfgErr)
		return
	}

	payload := map[string]interface{}{
		"blocks": []map[string]interface{}{
			{
				"type": "header",
				"text": map[string]interface{}{"type": "plain_text", "text": "Error From Pant Import 🐞", "emoji": true},
			},
			{
				"type": "section",
				"fields": []map[string]string{
					{"type": "mrkdwn", "text": fmt.Sprintf("*Error:*\n%v", err)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Time:*\n%v", time.Now().Format(time.RFC822))},
				},
			},
		},
	}

	data, jsonErr := json.Marshal(payload)
	if jsonErr != nil {
		log.Println(jsonErr)
		return
	}

	resp, postErr := http.Post(conf.Notification.Slack.WebhookUrl, "application/json", bytes.NewReader(data))
	if postErr != nil {
		log.Println(postErr)
		return
	}
	defer resp.Body.Close()
}

// NotifyError logs the error and, if Slack is configured, reports it
// there. Runs asynchronously so callers never block on the webhook.
func NotifyError(systemError error) {
	go func(systemError error) {
		logrus.Error(systemError)

		conf, err := config.Fetch()
		if err != nil {
			log.Println(err)
			return
		}

		if conf.Notification.Slack.WebhookUrl != "" {
			SlackNotification(systemError)
		}
	}(systemError)
}
