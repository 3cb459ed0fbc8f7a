package youtube

import (
	"time"

	httpc "ytdigest/internal/http"
	"ytdigest/internal/retry"
)

func newTestClient() *httpc.Client {
	cfg := httpc.DefaultConfig()
	cfg.Retry = retry.Config{MaxRetries: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 2}
	cfg.RateLimiter = httpc.RateLimiterConfig{InitialBackoff: time.Millisecond}
	return httpc.New(cfg)
}

// sampleAtomFeed lists the older upload first to check that selection goes
// by published time, not feed order.
const sampleAtomFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns:yt="http://www.youtube.com/xml/schemas/2015" xmlns:media="http://search.yahoo.com/mrss/" xmlns="http://www.w3.org/2005/Atom">
  <link rel="self" href="http://www.youtube.com/feeds/videos.xml?channel_id=UCuAXFkgsw1L7xaCfnd5JJOw"/>
  <id>yt:channel:uAXFkgsw1L7xaCfnd5JJOw</id>
  <yt:channelId>UCuAXFkgsw1L7xaCfnd5JJOw</yt:channelId>
  <title>Test Channel</title>
  <author>
    <name>Test Channel</name>
    <uri>https://www.youtube.com/channel/UCuAXFkgsw1L7xaCfnd5JJOw</uri>
  </author>
  <published>2019-01-01T00:00:00+00:00</published>
  <entry>
    <id>yt:video:OLDvideo001</id>
    <yt:videoId>OLDvideo001</yt:videoId>
    <yt:channelId>UCuAXFkgsw1L7xaCfnd5JJOw</yt:channelId>
    <title>Older Sermon</title>
    <link rel="alternate" href="https://www.youtube.com/watch?v=OLDvideo001"/>
    <published>2024-03-01T10:00:00+00:00</published>
    <updated>2024-03-02T10:00:00+00:00</updated>
  </entry>
  <entry>
    <id>yt:video:NEWvideo002</id>
    <yt:videoId>NEWvideo002</yt:videoId>
    <yt:channelId>UCuAXFkgsw1L7xaCfnd5JJOw</yt:channelId>
    <title>Newest Sermon</title>
    <link rel="alternate" href="https://www.youtube.com/watch?v=NEWvideo002"/>
    <published>2024-03-08T10:00:00+00:00</published>
    <updated>2024-03-08T11:00:00+00:00</updated>
  </entry>
</feed>`

const emptyAtomFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns:yt="http://www.youtube.com/xml/schemas/2015" xmlns="http://www.w3.org/2005/Atom">
  <title>Quiet Channel</title>
</feed>`

const sampleChannelPage = `<!DOCTYPE html>
<html><head>
<title>Test Channel - YouTube</title>
<link rel="canonical" href="https://www.youtube.com/channel/UCuAXFkgsw1L7xaCfnd5JJOw">
<meta itemprop="channelId" content="UCuAXFkgsw1L7xaCfnd5JJOw">
</head><body></body></html>`

const canonicalOnlyPage = `<!DOCTYPE html>
<html><head>
<link rel="canonical" href="https://www.youtube.com/channel/UCabcdefghijklmnopqrstuv">
</head><body></body></html>`

const sampleJSON3 = `{
  "wireMagic": "pb3",
  "events": [
    {"tStartMs": 0, "dDurationMs": 100000, "id": 1, "wpWinPosId": 1},
    {"tStartMs": 0, "dDurationMs": 2000, "segs": [{"utf8": "hello"}, {"utf8": " world"}]},
    {"tStartMs": 2000, "dDurationMs": 10, "aAppend": 1, "segs": [{"utf8": "\n"}]},
    {"tStartMs": 2100, "dDurationMs": 2000, "segs": [{"utf8": "second\nline"}]}
  ]
}`
