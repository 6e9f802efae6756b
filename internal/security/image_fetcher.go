package security

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"
)

// ErrImageTooLarge は画像がサイズ上限を超えたことを表す。
var ErrImageTooLarge = errors.New("image exceeds size limit")

// Image は取得したプロフィール写真。
type Image struct {
	Data        []byte
	ContentType string
}

// allowedImageTypes はPDFへ埋め込めるプロフィール写真の形式。
var allowedImageTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
}

// ImageFetcher はSSRF防止クライアントでプロフィール写真を取得する。
type ImageFetcher struct {
	validate func(rawURL string) error
	client   *http.Client
	maxSize  int64
}

// NewImageFetcher はImageFetcherを生成する。
func NewImageFetcher(guard *SSRFGuard, timeout time.Duration, maxSize int64) *ImageFetcher {
	return &ImageFetcher{
		validate: guard.ValidateURL,
		client:   guard.NewSafeClient(timeout),
		maxSize:  maxSize,
	}
}

// Fetch はURLを検証してから画像を取得する。
// JPEG/PNG以外、サイズ超過、非200応答はエラーを返す。
func (f *ImageFetcher) Fetch(ctx context.Context, rawURL string) (*Image, error) {
	if err := f.validate(rawURL); err != nil {
		return nil, fmt.Errorf("photo URL rejected: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build photo request: %w", err)
	}
	req.Header.Set("Accept", "image/jpeg, image/png")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch photo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("photo fetch returned status %d", resp.StatusCode)
	}

	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("photo has invalid content type: %w", err)
	}
	if _, ok := allowedImageTypes[mediaType]; !ok {
		return nil, fmt.Errorf("unsupported photo content type: %s", mediaType)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read photo: %w", err)
	}
	if int64(len(data)) > f.maxSize {
		return nil, ErrImageTooLarge
	}

	return &Image{Data: data, ContentType: mediaType}, nil
}
