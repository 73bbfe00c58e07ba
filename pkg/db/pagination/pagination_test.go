package pagination

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	id snowflake.ID
	at time.Time
}

func TestTokenRoundTrip(t *testing.T) {
	at := time.Date(2024, 5, 10, 12, 0, 0, 123, time.UTC)
	pos, err := ParseToken(TokenFor(snowflake.ID(42), at))
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, snowflake.ID(42), pos.ID)
	assert.True(t, pos.Time.Equal(at))

	pos, err = ParseToken("")
	assert.NoError(t, err)
	assert.Nil(t, pos)

	_, err = ParseToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidPageToken)
}

func TestPage(t *testing.T) {
	at := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	rows := []row{{1, at}, {2, at}, {3, at}}
	extract := func(r row) (snowflake.ID, time.Time) { return r.id, r.at }

	kept, info := Page(rows, 2, extract)
	assert.Len(t, kept, 2)
	assert.True(t, info.HasMore)
	pos, err := ParseToken(info.NextPageToken)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(2), pos.ID)

	kept, info = Page(rows, 5, extract)
	assert.Len(t, kept, 3)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
}

func TestLimit(t *testing.T) {
	assert.Equal(t, DefaultPageSize, Pagination{}.Limit())
	assert.Equal(t, MaxPageSize, Pagination{PageSize: 1000}.Limit())
	assert.Equal(t, 5, Pagination{PageSize: 5}.Limit())
}
