package memory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutObjectRecordsPayload(t *testing.T) {
	t.Parallel()

	store := New()
	uri, err := store.PutObject(context.Background(), "akismet/run-1/page-1.html", "text/html", strings.NewReader("payload"))
	require.NoError(t, err)
	assert.Equal(t, "mem://akismet/run-1/page-1.html", uri)

	data, ok := store.Object("akismet/run-1/page-1.html")
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), data)
	assert.Equal(t, 1, store.Len())
}

func TestFailWithFailsSubsequentWrites(t *testing.T) {
	t.Parallel()

	store := New()
	cause := errors.New("bucket gone")
	store.FailWith(cause)

	_, err := store.PutObject(context.Background(), "page.html", "text/html", strings.NewReader("payload"))
	require.ErrorIs(t, err, cause)
	assert.Zero(t, store.Len())
}
