package utils

import (
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

// SlackNotifier posts alert messages to a Slack-compatible webhook.
// Fire-and-forget: failures are logged and swallowed, they never propagate
// into a step's outcome.
type SlackNotifier struct {
	WebhookURL string
	Logger     *logrus.Entry
}

func NewSlackNotifier(webhookURL string, logger *logrus.Entry) *SlackNotifier {
	return &SlackNotifier{WebhookURL: webhookURL, Logger: logger}
}

func (n *SlackNotifier) Notify(message string) {
	if n.WebhookURL == "" {
		return
	}
	go n.post(message)
}

func (n *SlackNotifier) post(message string) {
	payload, err := json.Marshal(map[string]string{"text": message})
	if err != nil {
		n.Logger.WithError(err).Warn("Failed to encode alert payload")
		return
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(n.WebhookURL)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(payload)

	if err := fasthttp.DoTimeout(req, resp, 10*time.Second); err != nil {
		n.Logger.WithError(err).Warn("Failed to deliver alert")
		return
	}
	if resp.StatusCode() >= 300 {
		n.Logger.WithField("status", resp.StatusCode()).Warn("Alert webhook rejected message")
	}
}
