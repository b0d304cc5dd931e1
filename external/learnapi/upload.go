package learnapi

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/valyala/bytebufferpool"
	"github.com/valyala/fasthttp"

	"github.com/riskibarqy/learnhub-onboarding/internal/domain/onboarding"
	"github.com/riskibarqy/learnhub-onboarding/internal/usecase"
)

// UploadProfileImage sends the local file behind file.URI as multipart field
// "file" and returns the hosted URL. An empty URL is allowed on success.
func (c *Client) UploadProfileImage(ctx context.Context, accessToken string, file onboarding.ImageRef) (string, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return "", fmt.Errorf("%w: access token is required", usecase.ErrUnauthorized)
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	contentType, err := c.writeMultipart(buf, file)
	if err != nil {
		return "", err
	}

	if c.circuitEnabled {
		if err := c.breaker.Allow(); err != nil {
			return "", fmt.Errorf("%w: learning platform is temporarily unavailable", usecase.ErrDependencyUnavailable)
		}
	}
	raw, err := c.postMultipart(ctx, accessToken, contentType, buf.B)
	if c.circuitEnabled {
		if isCircuitFailure(err) {
			c.breaker.RecordFailure()
		} else {
			c.breaker.RecordSuccess()
		}
	}
	if err != nil {
		c.logger.WarnContext(ctx, "learnapi profile image upload failed", "name", file.Name, "error", err)
		return "", fmt.Errorf("upload profile image: %w", err)
	}

	var out envelope[uploadData]
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if !out.Success {
		return "", fmt.Errorf("upload profile image: %s", firstNonEmpty(out.Message, "request unsuccessful"))
	}
	return strings.TrimSpace(out.Data.URL), nil
}

func (c *Client) writeMultipart(w io.Writer, file onboarding.ImageRef) (string, error) {
	path := localPath(file.URI)
	if path == "" {
		return "", fmt.Errorf("%w: image uri is required", usecase.ErrInvalidInput)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat image: %w", err)
	}
	if info.Size() > c.maxUploadBytes {
		return "", fmt.Errorf("%w: image exceeds %d bytes", usecase.ErrInvalidInput, c.maxUploadBytes)
	}

	name := firstNonEmpty(file.Name, filepath.Base(path))
	mimeType := firstNonEmpty(file.Type, "application/octet-stream")

	mw := multipart.NewWriter(w)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	header.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := io.Copy(part, io.LimitReader(f, c.maxUploadBytes)); err != nil {
		return "", fmt.Errorf("copy image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart body: %w", err)
	}
	return mw.FormDataContentType(), nil
}

func (c *Client) postMultipart(ctx context.Context, accessToken, contentType string, body []byte) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + profileImagePath)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType(contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.SetBody(body)

	deadline := time.Now().Add(c.uploadTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := c.uploadClient.DoDeadline(req, resp, deadline); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, crerr.Mark(
			crerr.Newf("send upload: %s", sanitizeSensitiveText(err.Error(), accessToken)),
			errLearnAPITransient,
		)
	}

	raw := append([]byte(nil), resp.Body()...)
	if code := resp.StatusCode(); code < 200 || code >= 300 {
		return nil, statusError(code, raw)
	}
	return raw, nil
}

func localPath(uri string) string {
	uri = strings.TrimSpace(uri)
	return strings.TrimPrefix(uri, "file://")
}
