package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
)

// ErrUploadFailed is returned when the upload endpoint responds without a
// usable image URL.
var ErrUploadFailed = errors.New("upload failed")

type uploadResponse struct {
	Data struct {
		ImageURL string `json:"imageUrl"`
	} `json:"data"`
}

// UploadImage posts one file to the binary storage endpoint and returns the
// canonical image URL. Any non-2xx response or a response without an
// imageUrl is an upload failure.
func (c *Client) UploadImage(ctx context.Context, fileName string, data []byte) (string, error) {
	var out uploadResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetFileReader("file", fileName, bytes.NewReader(data)).
		SetResult(&out).
		Post("/upload")
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", fileName, err)
	}
	if res.IsError() {
		return "", fmt.Errorf("upload %s: %w: %s", fileName, ErrUploadFailed, res.Status())
	}
	if out.Data.ImageURL == "" {
		return "", fmt.Errorf("upload %s: %w: response missing imageUrl", fileName, ErrUploadFailed)
	}
	return out.Data.ImageURL, nil
}
