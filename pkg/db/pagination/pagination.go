package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 250
)

var ErrInvalidPageToken = errors.New("invalid_page_token")

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
}

// Limit clamps the requested page size.
func (p Pagination) Limit() int {
	switch {
	case p.PageSize <= 0:
		return DefaultPageSize
	case p.PageSize > MaxPageSize:
		return MaxPageSize
	default:
		return p.PageSize
	}
}

// Cursor points at the last row of the previous page in (time, id) order.
type Cursor struct {
	ID   string `json:"id"`
	Time string `json:"t"`
}

// Position is a decoded cursor.
type Position struct {
	ID   snowflake.ID
	Time time.Time
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token"`
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
		return nil, err
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, err
	}
	return &cursor, nil
}

// ParseToken decodes a page token into a Position; an empty token is the first page.
func ParseToken(token string) (*Position, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	cursor, err := DecodeCursor(token)
	if err != nil {
		return nil, ErrInvalidPageToken
	}
	at, err := time.Parse(time.RFC3339Nano, cursor.Time)
	if err != nil {
		return nil, ErrInvalidPageToken
	}
	id, err := snowflake.ParseString(cursor.ID)
	if err != nil || id == 0 {
		return nil, ErrInvalidPageToken
	}
	return &Position{ID: id, Time: at}, nil
}

// TokenFor builds the page token pointing at (id, at).
func TokenFor(id snowflake.ID, at time.Time) string {
	token, err := EncodeCursor(Cursor{ID: id.String(), Time: at.UTC().Format(time.RFC3339Nano)})
	if err != nil {
		return ""
	}
	return token
}

// Page trims a limit+1 fetch to limit rows and builds PageInfo from the last kept row.
func Page[T any](data []T, limit int, position func(T) (snowflake.ID, time.Time)) ([]T, PageInfo) {
	if len(data) <= limit {
		return data, PageInfo{}
	}
	data = data[:limit]
	id, at := position(data[len(data)-1])
	return data, PageInfo{HasMore: true, NextPageToken: TokenFor(id, at)}
}
