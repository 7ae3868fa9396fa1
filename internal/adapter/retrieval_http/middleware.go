package retrieval_http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"hybrid-retrieval/internal/adapter/retrieval_http/openapi"
	"hybrid-retrieval/internal/domain"

	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers/legacy"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

const maxRequestIDLength = 128

// RequestIDMiddleware puts the caller's X-Request-ID, or a fresh uuid, on the request context.
func RequestIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" || len(id) > maxRequestIDLength {
				id = uuid.NewString()
			}
			c.SetRequest(req.WithContext(domain.WithRequestID(req.Context(), id)))
			c.Response().Header().Set(echo.HeaderXRequestID, id)
			return next(c)
		}
	}
}

const (
	limiterCacheSize = 10000
	limiterTTL       = 10 * time.Minute

	// maxTenantPeekBytes bounds how much of a JSON body is read to find its tenant.
	maxTenantPeekBytes = 1 << 20
)

// TenantRateLimiter applies a token bucket per tenant. The tenant is resolved like the
// handlers do (body, then filters, then X-Tenant-ID); anonymous requests are keyed
// by client IP. A bucket lives limiterTTL from creation or until LRU eviction.
type TenantRateLimiter struct {
	limiters *expirable.LRU[string, *rate.Limiter]
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	logger   *slog.Logger
}

// NewTenantRateLimiter allows perSecond requests per tenant with the given burst.
func NewTenantRateLimiter(perSecond float64, burst int, logger *slog.Logger) *TenantRateLimiter {
	return newTenantRateLimiter(perSecond, burst, limiterCacheSize, limiterTTL, logger)
}

func newTenantRateLimiter(perSecond float64, burst, size int, ttl time.Duration, logger *slog.Logger) *TenantRateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &TenantRateLimiter{
		limiters: expirable.NewLRU[string, *rate.Limiter](size, nil, ttl),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		logger:   logger,
	}
}

func (l *TenantRateLimiter) limiterFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limiter, ok := l.limiters.Get(key); ok {
		return limiter
	}
	limiter := rate.NewLimiter(l.limit, l.burst)
	l.limiters.Add(key, limiter)
	return limiter
}

type tenantEnvelope struct {
	TenantID string         `json:"tenantId"`
	Filters  map[string]any `json:"filters"`
}

// rateLimitKey resolves the tenant a request will run as. The body is restored for
// the handler.
func rateLimitKey(c echo.Context) string {
	req := c.Request()
	if req.Body != nil && req.Body != http.NoBody &&
		strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		peeked, err := io.ReadAll(io.LimitReader(req.Body, maxTenantPeekBytes))
		req.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(peeked), req.Body), req.Body}

		var env tenantEnvelope
		if err == nil && json.Unmarshal(peeked, &env) == nil {
			tenant := strings.TrimSpace(env.TenantID)
			if tenant == "" {
				if v, ok := env.Filters["tenantId"].(string); ok {
					tenant = strings.TrimSpace(v)
				}
			}
			if tenant != "" {
				return "tenant:" + tenant
			}
		}
	}
	if tenant := strings.TrimSpace(req.Header.Get(HeaderTenantID)); tenant != "" {
		return "tenant:" + tenant
	}
	return "ip:" + c.RealIP()
}

// Middleware rejects requests over the tenant's rate with 429.
func (l *TenantRateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := rateLimitKey(c)
			limiter := l.limiterFor(key)
			if !limiter.Allow() {
				ctx := c.Request().Context()
				l.logger.WarnContext(ctx, "rate_limited", slog.String("key", key))
				c.Response().Header().Set("Retry-After", strconv.Itoa(l.retryAfterSeconds()))
				return c.JSON(http.StatusTooManyRequests, ErrorResponse{
					Error:     "rate limit exceeded",
					RequestID: domain.RequestIDFrom(ctx),
				})
			}
			return next(c)
		}
	}
}

func (l *TenantRateLimiter) retryAfterSeconds() int {
	if l.limit <= 0 || l.limit == rate.Inf {
		return 1
	}
	secs := int(math.Ceil(1 / float64(l.limit)))
	if secs < 1 {
		return 1
	}
	return secs
}

// OpenAPIValidator rejects requests that do not match the embedded API description.
// Routes not described there pass through.
func OpenAPIValidator() (echo.MiddlewareFunc, error) {
	doc, err := openapi.Load()
	if err != nil {
		return nil, err
	}
	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, err
	}
	options := &openapi3filter.Options{
		AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			route, pathParams, err := router.FindRoute(req)
			if err != nil {
				return next(c)
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    req,
				PathParams: pathParams,
				Route:      route,
				Options:    options,
			}
			if err := openapi3filter.ValidateRequest(req.Context(), input); err != nil {
				return c.JSON(http.StatusBadRequest, ErrorResponse{
					Error:     validationMessage(err),
					Kind:      domain.KindValidation,
					RequestID: domain.RequestIDFrom(req.Context()),
				})
			}
			return next(c)
		}
	}, nil
}

func validationMessage(err error) string {
	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.Reason != "" {
			return reqErr.Reason
		}
		if reqErr.Err != nil {
			return reqErr.Err.Error()
		}
	}
	return err.Error()
}
