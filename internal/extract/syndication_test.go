package extract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plugwatch/plugwatch/internal/review"
)

const feedFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:dc="http://purl.org/dc/elements/1.1/">
<channel>
  <title>Reviews for Some Plugin</title>
  <item>
    <title>Fantastic support team</title>
    <link>https://wordpress.org/support/topic/fantastic-support/</link>
    <dc:creator>alice</dc:creator>
    <pubDate>Tue, 09 Jan 2024 17:04:12 +0000</pubDate>
    <description>&lt;p&gt;They answered within the hour. 5 stars.&lt;/p&gt;</description>
  </item>
  <item>
    <title>Not worth the upgrade</title>
    <link>https://wordpress.org/support/topic/not-worth/</link>
    <dc:creator>bob</dc:creator>
    <pubDate>Wed, 10 Jan 2024 08:00:00 +0000</pubDate>
    <description>2 out of 5. The free tier did everything I needed.</description>
  </item>
</channel>
</rss>`

func TestSyndicationExtract(t *testing.T) {
	t.Parallel()

	raws, err := NewSyndication(nil).Extract([]byte(feedFixture))
	require.NoError(t, err)
	require.Len(t, raws, 2)

	first := raws[0]
	assert.Equal(t, "Fantastic support team", first.Title)
	assert.Equal(t, "alice", first.AuthorText)
	assert.Equal(t, "Tue, 09 Jan 2024 17:04:12 +0000", first.DateText)
	assert.Equal(t, "<p>They answered within the hour. 5 stars.</p>", first.Content)
	assert.Equal(t, "https://wordpress.org/support/topic/fantastic-support/", first.Link)

	second := raws[1]
	assert.Equal(t, "bob", second.AuthorText)
	assert.Equal(t, "2 out of 5. The free tier did everything I needed.", second.Content)
}

func TestSyndicationExtract_InvalidXML(t *testing.T) {
	t.Parallel()

	_, err := NewSyndication(nil).Extract([]byte("<html><body>not xml at all"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, review.ErrParseDocument))
}

func TestSyndicationExtract_EmptyChannel(t *testing.T) {
	t.Parallel()

	raws, err := NewSyndication(nil).Extract([]byte(`<rss><channel></channel></rss>`))
	require.NoError(t, err)
	assert.Empty(t, raws)
}
