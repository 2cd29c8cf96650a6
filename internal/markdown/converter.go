package markdown

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Converter は外部のMarkdown変換サービスを抽象化します。
// 変換処理そのものは本サービスの管轄外で、失敗時は原因を表すエラーを返します。
type Converter interface {
	ConvertFile(ctx context.Context, path string) (string, error)
	ConvertURL(ctx context.Context, url string) (string, error)
}

// HTTPConverter は markitdown サイドカーへHTTPで変換を依頼します。
type HTTPConverter struct {
	baseURL string
	client  *http.Client
}

// NewHTTPConverter は HTTPConverter を作成します。
func NewHTTPConverter(baseURL string, client *http.Client) *HTTPConverter {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPConverter{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

type convertResponse struct {
	Markdown string `json:"markdown"`
	Detail   string `json:"detail,omitempty"`
}

// ConvertFile はローカルファイルをアップロードしてMarkdownへ変換します。
func (c *HTTPConverter) ConvertFile(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("failed to build convert request: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("failed to build convert request: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to build convert request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/convert", body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return c.do(req)
}

// ConvertURL はURLの内容をMarkdownへ変換します。
func (c *HTTPConverter) ConvertURL(ctx context.Context, url string) (string, error) {
	payload, err := json.Marshal(map[string]string{"url": url})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/convert-url", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

func (c *HTTPConverter) do(req *http.Request) (string, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("converter request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read converter response: %w", err)
	}

	var parsed convertResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		if resp.StatusCode >= 300 {
			return "", fmt.Errorf("converter returned status %d", resp.StatusCode)
		}
		return "", fmt.Errorf("failed to parse converter response: %w", err)
	}

	if resp.StatusCode >= 300 {
		detail := parsed.Detail
		if detail == "" {
			detail = strings.TrimSpace(string(data))
		}
		return "", fmt.Errorf("converter returned status %d: %s", resp.StatusCode, detail)
	}

	return parsed.Markdown, nil
}
