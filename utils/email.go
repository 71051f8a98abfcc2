package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
)

// SendMail posts a transactional email through the Resend HTTP API. Returns
// whether the message was accepted; callers treat delivery as best-effort.
func SendMail(to, subject, html string) (bool, error) {
	apiKey := os.Getenv("RESEND_API_KEY")
	if apiKey == "" {
		return false, fmt.Errorf("RESEND_API_KEY not configured")
	}

	from := os.Getenv("EMAIL_FROM")
	if from == "" {
		from = "Rentall <no-reply@rentall.app>"
	}

	payload, err := json.Marshal(map[string]interface{}{
		"from":    from,
		"to":      []string{to},
		"subject": subject,
		"html":    html,
	})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequest("POST", "https://api.resend.com/emails", bytes.NewReader(payload))
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return false, err
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		return false, fmt.Errorf("email api status %d", res.StatusCode)
	}
	return true, nil
}
