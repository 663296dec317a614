package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"paytransfer/internal/config"
	"paytransfer/internal/infrastructure/logger"
	"paytransfer/internal/service"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// StatusError 用户服务返回了非预期的 HTTP 状态码
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("用户服务返回异常状态: %d", e.Code)
	}
	return fmt.Sprintf("用户服务返回异常状态: %d %s", e.Code, e.Body)
}

// UserClient 用户服务客户端，同时实现 IdentityResolver 和 CredentialVerifier
type UserClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

var (
	_ service.IdentityResolver   = (*UserClient)(nil)
	_ service.CredentialVerifier = (*UserClient)(nil)
)

func NewUserClient(cfg *config.UserServiceConfig, timeout time.Duration) *UserClient {
	log := logger.Named("user_client")

	settings := gobreaker.Settings{
		Name:        "user-service",
		MaxRequests: cfg.Breaker.MaxRequests,
		Interval:    cfg.Breaker.Interval,
		Timeout:     cfg.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.Breaker.ConsecutiveFailures
		},
		// 业务性的拒绝（不存在、密码错误）不算服务故障
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, service.ErrIdentityNotFound) ||
				errors.Is(err, service.ErrCredentialNotSet) ||
				errors.Is(err, service.ErrCredentialMismatch)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("熔断器状态变化", zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}

	return &UserClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		breaker:    gobreaker.NewCircuitBreaker(settings),
	}
}

// GetAccount GET /api/users/{id}
func (c *UserClient) GetAccount(ctx context.Context, accountID int64) (*service.Identity, error) {
	return c.getIdentity(ctx, "/api/users/"+strconv.FormatInt(accountID, 10))
}

// GetAccountByAddress GET /api/users/email/{email}
func (c *UserClient) GetAccountByAddress(ctx context.Context, address string) (*service.Identity, error) {
	return c.getIdentity(ctx, "/api/users/email/"+url.PathEscape(address))
}

type verifyRequest struct {
	UserID              int64  `json:"userId"`
	TransactionPassword string `json:"transactionPassword"`
}

// VerifyCredential POST /api/users/verify-transaction-password
// 200 通过；412 未设置；401 不匹配
func (c *UserClient) VerifyCredential(ctx context.Context, accountID int64, secret string) error {
	body, err := json.Marshal(verifyRequest{UserID: accountID, TransactionPassword: secret})
	if err != nil {
		return err
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.do(ctx, http.MethodPost, "/api/users/verify-transaction-password", body)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
			return nil, nil
		case http.StatusPreconditionFailed:
			return nil, service.ErrCredentialNotSet
		case http.StatusUnauthorized:
			return nil, service.ErrCredentialMismatch
		default:
			return nil, statusError(resp)
		}
	})
	return err
}

func (c *UserClient) getIdentity(ctx context.Context, path string) (*service.Identity, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.do(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
		case http.StatusNotFound:
			return nil, service.ErrIdentityNotFound
		default:
			return nil, statusError(resp)
		}

		var identity service.Identity
		if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
			return nil, fmt.Errorf("解析用户信息失败: %w", err)
		}
		return &identity, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*service.Identity), nil
}

func (c *UserClient) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func statusError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}
