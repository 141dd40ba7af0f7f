// Package captcha verifies human-verification challenge tokens against
// the reCAPTCHA siteverify endpoint. Verification runs before the
// moderation pipeline; the pipeline itself assumes it already passed.
package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultVerifyURL is the Google siteverify endpoint.
	DefaultVerifyURL = "https://www.google.com/recaptcha/api/siteverify"

	requestTimeout = 5 * time.Second
)

var ErrNoToken = fmt.Errorf("captcha token not provided")

type Verifier struct {
	secret    string
	verifyURL string
	client    *http.Client
}

// New returns a Verifier using the default siteverify endpoint.
func New(secret string) *Verifier {
	return &Verifier{
		secret:    secret,
		verifyURL: DefaultVerifyURL,
		client:    &http.Client{Timeout: requestTimeout},
	}
}

type verifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// Verify checks the challenge token with the verification endpoint.
// It returns false with a nil error when the endpoint answers that the
// token is invalid; the error is non-nil only when the check itself
// could not be performed.
func (v *Verifier) Verify(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, ErrNoToken
	}

	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("siteverify returned status %d", resp.StatusCode)
	}

	var vr verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return false, err
	}

	return vr.Success, nil
}
