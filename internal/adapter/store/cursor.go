package store

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/user/agent-telemetry/internal/domain"
)

// cursor pins a historical read to a byte offset inside a named segment
// file. The encoded token is opaque to callers and stays valid across
// process restarts as long as the file is retained.
type cursor struct {
	File   string
	Offset int64
}

func encodeCursor(c cursor) string {
	return base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf("%s:%d", c.File, c.Offset)))
}

func decodeCursor(token string) (cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return cursor{}, domain.ErrInvalidCursor
	}

	s := string(raw)
	i := strings.LastIndexByte(s, ':')
	if i <= 0 {
		return cursor{}, domain.ErrInvalidCursor
	}

	offset, err := strconv.ParseInt(s[i+1:], 10, 64)
	if err != nil || offset < 0 {
		return cursor{}, domain.ErrInvalidCursor
	}

	return cursor{File: s[:i], Offset: offset}, nil
}
