package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"linkdrop/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		url  string
		want domain.Platform
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", domain.PlatformYouTube},
		{"https://youtu.be/abc123", domain.PlatformYouTube},
		{"https://m.YouTube.com/watch?v=x", domain.PlatformYouTube},
		{"https://twitter.com/golang/status/1", domain.PlatformTweet},
		{"https://x.com/golang/status/1", domain.PlatformTweet},
		{"https://someone.substack.com/p/post", domain.PlatformSubstack},
		{"https://medium.com/@someone/story", domain.PlatformArticle},
		{"https://www.amazon.com/Some-Title/dp/0262033844", domain.PlatformBook},
		{"https://www.amazon.com/books/bestsellers", domain.PlatformBook},
		{"https://www.amazon.com/gp/cart", domain.PlatformLink},
		{"https://www.goodreads.com/book/show/1", domain.PlatformBook},
		{"https://example.com/post", domain.PlatformLink},
		{"http://localhost:8080/x", domain.PlatformLink},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.url))
		})
	}
}

func TestClassify_FirstMatchWins(t *testing.T) {
	// Host matches both the video and the generic rules; video is checked first.
	assert.Equal(t, domain.PlatformYouTube, Classify("https://youtube.com.medium.com/"))
	// Amazon without a book path falls through to later rules.
	assert.Equal(t, domain.PlatformLink, Classify("https://amazon.com/"))
}

func TestClassify_InvalidInputFallsBack(t *testing.T) {
	for _, in := range []string{"", "not a url", "://missing-scheme", "http://[::1", "%zz", "/relative/path"} {
		assert.NotPanics(t, func() {
			assert.Equal(t, domain.PlatformLink, Classify(in), "input %q", in)
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	in := "https://youtu.be/abc123"
	first := Classify(in)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Classify(in))
	}
}

func TestDomainTag(t *testing.T) {
	assert.Equal(t, "nytimes", DomainTag("https://www.nytimes.com/2024/01/01/a.html"))
	assert.Equal(t, "blog", DomainTag("https://blog.example.org/post"))
	assert.Equal(t, "localhost", DomainTag("http://localhost:3000"))
	assert.Equal(t, "", DomainTag("http://[::1"))
	assert.Equal(t, "", DomainTag("no host here"))
}
