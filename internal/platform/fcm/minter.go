// Package fcm holds the clients for the FCM v1 gateway: the credential
// minter that turns a service-account key into a short-lived access token,
// and the dispatcher that fans messages out to device tokens.
package fcm

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cleanslate-app/go-push-service/pkg/notify"
)

const (
	// DefaultTokenURL is Google's OAuth2 token endpoint.
	DefaultTokenURL = "https://oauth2.googleapis.com/token"
	// MessagingScope is the scope requested for FCM sends.
	MessagingScope = "https://www.googleapis.com/auth/firebase.messaging"

	jwtBearerGrant = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	assertionTTL   = time.Hour
)

// ServiceAccount mirrors the relevant fields of a Google service-account
// JSON key. The private key is PKCS#8 PEM.
type ServiceAccount struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
}

// ParseServiceAccount decodes a full service-account key file.
func ParseServiceAccount(raw []byte) (ServiceAccount, error) {
	var sa ServiceAccount
	if err := json.Unmarshal(raw, &sa); err != nil {
		return ServiceAccount{}, fmt.Errorf("failed to parse service account JSON: %w", err)
	}
	if sa.ClientEmail == "" || sa.PrivateKey == "" {
		return ServiceAccount{}, fmt.Errorf("service account JSON missing client_email or private_key")
	}
	return sa, nil
}

// Minter exchanges a signed service-account assertion for a bearer token.
// Tokens are minted fresh per request batch and never cached.
type Minter struct {
	clientEmail string
	key         *rsa.PrivateKey
	tokenURL    string
	httpClient  *http.Client
	now         func() time.Time
}

// MinterOption customises a Minter. Used by tests to pin the clock and the
// token endpoint.
type MinterOption func(*Minter)

func WithTokenURL(u string) MinterOption {
	return func(m *Minter) { m.tokenURL = u }
}

func WithHTTPClient(c *http.Client) MinterOption {
	return func(m *Minter) { m.httpClient = c }
}

func WithClock(now func() time.Time) MinterOption {
	return func(m *Minter) { m.now = now }
}

// NewMinter parses the RSA key immediately to fail fast on startup if the
// credential is bad.
func NewMinter(sa ServiceAccount, opts ...MinterOption) (*Minter, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(sa.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("failed to parse service account private key: %w", err)
	}

	m := &Minter{
		clientEmail: sa.ClientEmail,
		key:         key,
		tokenURL:    DefaultTokenURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Assertion builds the signed RS256 JWT assertion for the given mint time:
// iss=sub=client email, aud=token endpoint, exp=now+1h, messaging scope.
func (m *Minter) Assertion(now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"iss":   m.clientEmail,
		"sub":   m.clientEmail,
		"aud":   m.tokenURL,
		"iat":   now.Unix(),
		"exp":   now.Add(assertionTTL).Unix(),
		"scope": MessagingScope,
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(m.key)
}

// Mint signs an assertion and exchanges it at the token endpoint using the
// JWT-bearer grant. A non-success status yields a *notify.CredentialError
// carrying the endpoint's response body (logged upstream, never echoed).
func (m *Minter) Mint(ctx context.Context) (string, error) {
	assertion, err := m.Assertion(m.now())
	if err != nil {
		return "", &notify.CredentialError{Stage: "sign", Err: err}
	}

	form := url.Values{
		"grant_type": {jwtBearerGrant},
		"assertion":  {assertion},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &notify.CredentialError{Stage: "exchange", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", &notify.CredentialError{Stage: "exchange", Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &notify.CredentialError{
			Stage:        "exchange",
			ResponseBody: string(body),
			Err:          fmt.Errorf("token endpoint returned status %d", resp.StatusCode),
		}
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", &notify.CredentialError{Stage: "exchange", Err: err}
	}
	if tokenResp.AccessToken == "" {
		return "", &notify.CredentialError{Stage: "exchange", Err: fmt.Errorf("token endpoint returned no access_token")}
	}
	return tokenResp.AccessToken, nil
}
