package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"chat-relay/contract"
	"chat-relay/errors"
)

const (
	fcmScope     = "https://www.googleapis.com/auth/firebase.messaging"
	fcmSendURL   = "https://fcm.googleapis.com/v1/projects/%s/messages:send"
	assertionTTL = time.Hour
)

// serviceAccount is the subset of a Firebase service-account JSON file this
// notifier needs.
type serviceAccount struct {
	ProjectID   string `json:"project_id"`
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`
}

// FCMNotifier implements the push fallback over FCM HTTP v1. Access tokens
// are minted from a signed service-account assertion and cached until shortly
// before expiry; a missing device token for the receiver is a quiet no-op,
// not a failure.
type FCMNotifier struct {
	log     *slog.Logger
	tokens  contract.TokenStore
	client  *http.Client
	account serviceAccount
	sendURL string

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewFCMNotifier(log *slog.Logger, tokens contract.TokenStore, credentialsPath string) (*FCMNotifier, error) {
	raw, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("reading FCM credentials: %w", err)
	}
	var account serviceAccount
	if err := json.Unmarshal(raw, &account); err != nil {
		return nil, fmt.Errorf("parsing FCM credentials: %w", err)
	}
	if account.ProjectID == "" || account.ClientEmail == "" || account.PrivateKey == "" || account.TokenURI == "" {
		return nil, fmt.Errorf("FCM credentials file %s is incomplete", credentialsPath)
	}
	// Fail at startup, not on the first offline receiver.
	if _, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(account.PrivateKey)); err != nil {
		return nil, fmt.Errorf("parsing FCM private key: %w", err)
	}

	return &FCMNotifier{
		log:     log,
		tokens:  tokens,
		client:  &http.Client{Timeout: 10 * time.Second},
		account: account,
		sendURL: fmt.Sprintf(fcmSendURL, account.ProjectID),
	}, nil
}

// NotifyOffline pushes a summarized notification to the receiver's device.
// The receiver having no registered device token is an expected state.
func (n *FCMNotifier) NotifyOffline(ctx context.Context, receiverID, senderID, message string) error {
	deviceToken, ok, err := n.tokens.Token(ctx, receiverID)
	if err != nil {
		return err
	}
	if !ok {
		n.log.Debug("No device token registered, skipping push", "receiver_id", receiverID)
		return nil
	}

	accessToken, err := n.bearer(ctx)
	if err != nil {
		return err
	}

	// Tagging by sender collapses a burst from one person into a single
	// tray entry on both platforms.
	payload := map[string]any{
		"message": map[string]any{
			"token": deviceToken,
			"notification": map[string]string{
				"title": Title(senderID, message),
				"body":  Summarize(message),
			},
			"android": map[string]any{
				"notification": map[string]string{"tag": senderID},
			},
			"apns": map[string]any{
				"payload": map[string]any{
					"aps": map[string]string{"thread-id": senderID},
				},
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: encoding push payload: %v", errors.ErrNotifier, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.sendURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrNotifier, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: sending push: %v", errors.ErrNotifier, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: FCM returned %d: %s", errors.ErrNotifier, resp.StatusCode, detail)
	}
	n.log.Debug("Push delivered", "receiver_id", receiverID)
	return nil
}

// bearer returns a cached OAuth2 access token, minting a fresh one from a
// signed assertion when the cache is empty or about to expire.
func (n *FCMNotifier) bearer(ctx context.Context) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.accessToken != "" && time.Now().Before(n.tokenExpiry.Add(-time.Minute)) {
		return n.accessToken, nil
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(n.account.PrivateKey))
	if err != nil {
		return "", fmt.Errorf("%w: parsing private key: %v", errors.ErrNotifier, err)
	}

	now := time.Now()
	assertion := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":   n.account.ClientEmail,
		"scope": fcmScope,
		"aud":   n.account.TokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(assertionTTL).Unix(),
	})
	signed, err := assertion.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("%w: signing assertion: %v", errors.ErrNotifier, err)
	}

	form := url.Values{
		"grant_type": {"urn:ietf:params:oauth:grant-type:jwt-bearer"},
		"assertion":  {signed},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.account.TokenURI,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrNotifier, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: exchanging assertion: %v", errors.ErrNotifier, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: token endpoint returned %d: %s", errors.ErrNotifier, resp.StatusCode, detail)
	}

	var grant struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&grant); err != nil {
		return "", fmt.Errorf("%w: decoding token response: %v", errors.ErrNotifier, err)
	}

	n.accessToken = grant.AccessToken
	n.tokenExpiry = now.Add(time.Duration(grant.ExpiresIn) * time.Second)
	return n.accessToken, nil
}
