package storage

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

// SupabaseStore talks to the Supabase Storage REST API with a service-role
// key. Requests go through fiber's fasthttp-backed Agent client.
type SupabaseStore struct {
	baseURL string // {project url}/storage/v1
	key     string
}

// NewSupabaseStore targets the project at projectURL (e.g. https://xyz.supabase.co).
func NewSupabaseStore(projectURL, serviceRoleKey string) *SupabaseStore {
	return &SupabaseStore{
		baseURL: strings.TrimRight(projectURL, "/") + "/storage/v1",
		key:     serviceRoleKey,
	}
}

type supabaseErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type signRequest struct {
	ExpiresIn int `json:"expiresIn"`
}

type signResponse struct {
	SignedURL string `json:"signedURL"`
}

// Put uploads data to bucket/path. Upsert is sent as the x-upsert header.
func (s *SupabaseStore) Put(ctx context.Context, bucket, path string, data []byte, opts PutOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a := fiber.Post(s.objectURL("object", bucket, path))
	s.authorize(a)
	if opts.ContentType != "" {
		a.ContentType(opts.ContentType)
	}
	a.Set("x-upsert", strconv.FormatBool(opts.Upsert))
	if opts.CacheControl != "" {
		a.Set("cache-control", opts.CacheControl)
	}
	a.Body(data)

	_, err := s.do(ctx, a)
	return err
}

// Sign requests a signed download URL valid for expiry and returns it as an
// absolute URL.
func (s *SupabaseStore) Sign(ctx context.Context, bucket, path string, expiry time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	payload, err := json.Marshal(signRequest{ExpiresIn: int(expiry / time.Second)})
	if err != nil {
		return "", err
	}
	a := fiber.Post(s.objectURL("object/sign", bucket, path))
	s.authorize(a)
	a.ContentType(fiber.MIMEApplicationJSON)
	a.Body(payload)

	body, err := s.do(ctx, a)
	if err != nil {
		return "", err
	}
	var out signResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", &APIError{StatusCode: fiber.StatusOK, Message: "invalid sign response: " + err.Error()}
	}
	if out.SignedURL == "" {
		return "", &APIError{StatusCode: fiber.StatusOK, Message: "sign response carried no signedURL"}
	}
	if strings.HasPrefix(out.SignedURL, "http://") || strings.HasPrefix(out.SignedURL, "https://") {
		return out.SignedURL, nil
	}
	return s.baseURL + "/" + strings.TrimLeft(out.SignedURL, "/"), nil
}

func (s *SupabaseStore) authorize(a *fiber.Agent) {
	a.Set(fiber.HeaderAuthorization, "Bearer "+s.key)
	a.Set("apikey", s.key)
}

func (s *SupabaseStore) objectURL(kind, bucket, path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.baseURL + "/" + kind + "/" + url.PathEscape(bucket) + "/" + strings.Join(segments, "/")
}

// do executes the request within ctx's deadline and maps non-2xx replies to
// *APIError.
func (s *SupabaseStore) do(ctx context.Context, a *fiber.Agent) ([]byte, error) {
	if dl, ok := ctx.Deadline(); ok {
		remaining := time.Until(dl)
		if remaining <= 0 {
			fiber.ReleaseAgent(a)
			return nil, context.DeadlineExceeded
		}
		a.Timeout(remaining)
	}
	if err := a.Parse(); err != nil {
		fiber.ReleaseAgent(a)
		return nil, err
	}

	code, body, errs := a.Bytes()
	if len(errs) > 0 {
		err := errors.Join(errs...)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, fasthttp.ErrTimeout) {
			return nil, context.DeadlineExceeded
		}
		return nil, err
	}
	if code < 200 || code > 299 {
		return nil, decodeSupabaseError(code, body)
	}
	return body, nil
}

func decodeSupabaseError(code int, body []byte) error {
	apiErr := &APIError{StatusCode: code}
	var eb supabaseErrorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		apiErr.Code = eb.Error
		apiErr.Message = eb.Message
	} else if len(body) > 0 {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}
