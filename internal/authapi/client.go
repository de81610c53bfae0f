package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "sessionguard/pkg/errors"
	"sessionguard/pkg/logger"
)

const (
	PathLogin  = "/Authentication/Login"
	PathLogout = "/Authentication/Logout"

	headerContentType = "Content-Type"
	headerAuth        = "Authorization"
	contentTypeJSON   = "application/json"
	bearerPrefix      = "Bearer "

	defaultTimeout  = 30 * time.Second
	maxErrorBodyLen = 4096
)

const (
	msgUserNameRequired   = "user name is required"
	msgPasswordRequired   = "password is required"
	msgLoginRequestFailed = "login request failed"
	msgLoginNoToken       = "login response carried no token"
	msgLogoutFailedFmt    = "logout responded %d"
	msgLogoutRequest      = "logout request failed"
	errEncodeBodyFmt      = "encode request body: %w"
	errBuildRequestFmt    = "build request: %w"
	errDecodeResponseFmt  = "decode login response: %w"
)

// Credentials is the login form body.
type Credentials struct {
	UserName string `json:"userName"`
	Password string `json:"password"`
}

// ResponseMessage is the envelope returned by the authentication endpoints.
type ResponseMessage struct {
	IsSuccess bool   `json:"isSuccess"`
	Message   string `json:"message"`
	Token     string `json:"token"`
}

// Client talks to the backend authentication endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New builds a client for baseURL. A nil httpClient gets a default one with a
// bounded timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Login submits credentials and returns the issued bearer token.
func (c *Client) Login(ctx context.Context, creds Credentials) (string, error) {
	if strings.TrimSpace(creds.UserName) == "" {
		return "", apperrors.BadRequest(msgUserNameRequired)
	}
	if creds.Password == "" {
		return "", apperrors.BadRequest(msgPasswordRequired)
	}

	resp, err := c.post(ctx, PathLogin, creds, "")
	if err != nil {
		return "", apperrors.Unavailable(msgLoginRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
		return "", apperrors.InvalidCredentials()
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", apperrors.Unavailable(upstreamMessage(resp), nil)
	}

	var msg ResponseMessage
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return "", apperrors.Internal(msgLoginRequestFailed, fmt.Errorf(errDecodeResponseFmt, err))
	}
	if msg.Token == "" {
		if msg.Message != "" {
			return "", &apperrors.AppError{Code: "INVALID_CREDENTIALS", Message: logger.Sanitize(msg.Message), Err: apperrors.ErrInvalidCredentials}
		}
		return "", apperrors.Internal(msgLoginNoToken, nil)
	}

	return msg.Token, nil
}

// Logout tells the backend the session is over. token may be empty.
func (c *Client) Logout(ctx context.Context, token string) error {
	resp, err := c.post(ctx, PathLogout, struct{}{}, token)
	if err != nil {
		return apperrors.Unavailable(msgLogoutRequest, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodyLen))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperrors.Unavailable(fmt.Sprintf(msgLogoutFailedFmt, resp.StatusCode), nil)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any, token string) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf(errEncodeBodyFmt, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf(errBuildRequestFmt, err)
	}
	req.Header.Set(headerContentType, contentTypeJSON)
	if token != "" {
		req.Header.Set(headerAuth, bearerPrefix+token)
	}

	return c.httpClient.Do(req)
}

func upstreamMessage(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
	var msg ResponseMessage
	if json.Unmarshal(body, &msg) == nil && msg.Message != "" {
		return logger.Sanitize(msg.Message)
	}
	return fmt.Sprintf("upstream responded %d", resp.StatusCode)
}
