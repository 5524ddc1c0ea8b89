package explorer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrNotFound means the explorer does not know the height yet. For a freshly
// mined block this is expected transient state, not a fault.
var ErrNotFound = errors.New("block not found on explorer")

// buffer is the explorer's byte-array encoding of hashes:
// {"data": [18, 52, ...]}.
type buffer struct {
	Data []int `json:"data"`
}

func (b buffer) Hex() string {
	if len(b.Data) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, v := range b.Data {
		fmt.Fprintf(&sb, "%02x", byte(v))
	}
	return sb.String()
}

type blockHeader struct {
	Hash      buffer `json:"hash"`
	PrevHash  buffer `json:"prev_hash"`
	Timestamp int64  `json:"timestamp"`
}

type blockResponse struct {
	Header *blockHeader `json:"header"`
}

// Header is the canonical block header at one height.
type Header struct {
	Hash      string
	Timestamp int64
}

// Client looks up canonical block data on a chain explorer.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		// Bounded so a stalled explorer cannot stall the validation cycle.
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// BlockHeader fetches the canonical header for height. A decoded response
// with no header yields a Header with an empty Hash; the caller decides what
// that means for the recorded block.
func (c *Client) BlockHeader(ctx context.Context, height uint64) (*Header, error) {
	url := fmt.Sprintf("%s/blocks/%d?json", c.baseURL, height)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("explorer request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("explorer status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		return nil, fmt.Errorf("explorer returned content type %q", ct)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read explorer response: %w", err)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("{}")) {
		return nil, ErrNotFound
	}

	var body blockResponse
	if err := json.Unmarshal(trimmed, &body); err != nil {
		return nil, fmt.Errorf("decode explorer response: %w", err)
	}

	header := &Header{}
	if body.Header != nil {
		header.Hash = body.Header.Hash.Hex()
		header.Timestamp = body.Header.Timestamp
	}
	return header, nil
}
