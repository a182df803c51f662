package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// AvatarArchive keeps the original profile upload. The user row only holds
// the scaled copy, so the archive is optional.
type AvatarArchive interface {
	Archive(ctx context.Context, name string, content []byte) (string, error)
	Discard(ctx context.Context, objectURL string) error
	SignedLink(ctx context.Context, objectURL string) (string, error)
}

const (
	avatarFolder  = "avatars"
	avatarLinkTTL = time.Hour
)

// SupabaseArchive stores avatars in a Supabase storage bucket.
type SupabaseArchive struct {
	baseURL    string
	bucket     string
	serviceKey string
	linkTTL    time.Duration
	httpClient *http.Client
}

func NewSupabaseArchive(baseURL, bucket, serviceKey string) *SupabaseArchive {
	return &SupabaseArchive{
		baseURL:    strings.TrimRight(baseURL, "/"),
		bucket:     bucket,
		serviceKey: serviceKey,
		linkTTL:    avatarLinkTTL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *SupabaseArchive) Archive(ctx context.Context, name string, content []byte) (string, error) {
	if len(content) == 0 {
		return "", fmt.Errorf("archive %s: empty avatar", name)
	}
	object := path.Join(avatarFolder, path.Base(name))

	headers := map[string]string{
		"x-upsert":     "true",
		"Content-Type": http.DetectContentType(content),
	}
	if _, err := a.call(ctx, http.MethodPost, "/object/"+a.bucket+"/"+object, content, headers, nil); err != nil {
		return "", fmt.Errorf("archive avatar: %w", err)
	}
	return a.baseURL + "/storage/v1/object/public/" + a.bucket + "/" + object, nil
}

// Discard removes an archived avatar. An already missing object is not an
// error.
func (a *SupabaseArchive) Discard(ctx context.Context, objectURL string) error {
	object, err := a.objectOf(objectURL)
	if err != nil {
		return err
	}
	status, err := a.call(ctx, http.MethodDelete, "/object/"+a.bucket+"/"+object, nil, nil, nil)
	if err != nil && status != http.StatusNotFound {
		return fmt.Errorf("discard avatar: %w", err)
	}
	return nil
}

func (a *SupabaseArchive) SignedLink(ctx context.Context, objectURL string) (string, error) {
	object, err := a.objectOf(objectURL)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(map[string]int{"expiresIn": int(a.linkTTL.Seconds())})
	if err != nil {
		return "", err
	}

	var signed struct {
		SignedURL string `json:"signedURL"`
	}
	headers := map[string]string{"Content-Type": "application/json"}
	if _, err := a.call(ctx, http.MethodPost, "/object/sign/"+a.bucket+"/"+object, body, headers, &signed); err != nil {
		return "", fmt.Errorf("sign avatar link: %w", err)
	}
	if signed.SignedURL == "" {
		return "", fmt.Errorf("sign avatar link: empty signedURL")
	}
	return a.baseURL + "/storage/v1" + signed.SignedURL, nil
}

// call sends one authenticated storage API request. The status is returned
// alongside a non-2xx error so callers can tolerate specific codes.
func (a *SupabaseArchive) call(
	ctx context.Context,
	method string,
	endpoint string,
	body []byte,
	headers map[string]string,
	out any,
) (int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+"/storage/v1"+endpoint, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+a.serviceKey)
	req.Header.Set("apikey", a.serviceKey)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return resp.StatusCode, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// objectOf accepts both public and private object URLs of the configured
// bucket.
func (a *SupabaseArchive) objectOf(objectURL string) (string, error) {
	parsed, err := url.Parse(objectURL)
	if err != nil {
		return "", fmt.Errorf("parse avatar url: %w", err)
	}
	for _, prefix := range []string{
		"/storage/v1/object/public/" + a.bucket + "/",
		"/storage/v1/object/" + a.bucket + "/",
	} {
		if object, ok := strings.CutPrefix(parsed.Path, prefix); ok && object != "" {
			return object, nil
		}
	}
	return "", fmt.Errorf("avatar url %q is outside bucket %s", objectURL, a.bucket)
}
