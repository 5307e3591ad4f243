package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"
)

var ErrInvalidPageToken = errors.New("invalid_page_token")

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"limit,default=20"`
}

// Cursor is the keyset position of the last row of a page.
type Cursor struct {
	ID        string `json:"id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token,omitempty"`
	HasMore       bool   `json:"has_more"`
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		return nil, ErrInvalidPageToken
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, ErrInvalidPageToken
	}
	if cursor.ID == "" || cursor.CreatedAt == "" {
		return nil, ErrInvalidPageToken
	}

	return &cursor, nil
}

// CreatedAtTime parses the cursor timestamp.
func (c Cursor) CreatedAtTime() (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, c.CreatedAt)
	if err != nil {
		return time.Time{}, ErrInvalidPageToken
	}
	return t.UTC(), nil
}

// BuildCursorPageInfo expects data fetched with limit+1 rows and reports
// whether another page exists. The token points at the last row kept.
func BuildCursorPageInfo[T any](data []*T, limit int, extractCursor func(*T) Cursor) *PageInfo {
	if len(data) == 0 || limit <= 0 {
		return &PageInfo{HasMore: false}
	}
	if len(data) <= limit {
		return &PageInfo{HasMore: false}
	}

	token, err := EncodeCursor(extractCursor(data[limit-1]))
	if err != nil {
		return &PageInfo{HasMore: false}
	}
	return &PageInfo{
		HasMore:       true,
		NextPageToken: token,
	}
}
