package notify

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// maxAttachmentBytes caps what is fetched into a notification.
const maxAttachmentBytes = 10 << 20

// AttachmentFetcher resolves an attachment reference to file contents.
type AttachmentFetcher interface {
	Fetch(ctx context.Context, ref string) (Attachment, error)
}

// HTTPAttachmentFetcher downloads attachments from object storage that
// serves uploads under a base URL.
type HTTPAttachmentFetcher struct {
	baseURL string
	client  *http.Client
}

// NewHTTPAttachmentFetcher creates a fetcher for refs relative to baseURL.
// client may be nil.
func NewHTTPAttachmentFetcher(baseURL string, client *http.Client) *HTTPAttachmentFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPAttachmentFetcher{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (f *HTTPAttachmentFetcher) Fetch(ctx context.Context, ref string) (Attachment, error) {
	ref = strings.TrimLeft(ref, "/")
	if ref == "" || strings.Contains(ref, "..") {
		return Attachment{}, fmt.Errorf("invalid attachment reference %q", ref)
	}

	segments := strings.Split(ref, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	target := f.baseURL + "/" + strings.Join(segments, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Attachment{}, fmt.Errorf("failed to build attachment request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return Attachment{}, fmt.Errorf("failed to fetch attachment: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Attachment{}, fmt.Errorf("failed to fetch attachment: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAttachmentBytes+1))
	if err != nil {
		return Attachment{}, fmt.Errorf("failed to read attachment: %w", err)
	}
	if len(data) > maxAttachmentBytes {
		return Attachment{}, fmt.Errorf("attachment exceeds %d bytes", maxAttachmentBytes)
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = mime.TypeByExtension(path.Ext(ref))
	}
	return Attachment{Filename: path.Base(ref), ContentType: ct, Data: data}, nil
}
