package pwire

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobToRegexp(t *testing.T) {
	tests := []struct {
		glob    string
		url     string
		matches bool
	}{
		{"**/*.png", "https://example.com/static/logo.png", true},
		{"**/*.png", "https://example.com/static/logo.jpg", false},
		{"https://example.com/*", "https://example.com/index.html", true},
		{"https://example.com/*", "https://example.com/a/b.html", false},
		{"https://example.com/**", "https://example.com/a/b.html", true},
		{"**/api/v?/users", "https://example.com/api/v2/users", true},
		{"**/*.{css,js}", "https://example.com/app.js", true},
		{"**/*.{css,js}", "https://example.com/app.json", false},
		{"**/search\\?q=*", "https://example.com/search?q=go", true},
		{"https://example.com/a+b", "https://example.com/a+b", true},
	}

	for _, tt := range tests {
		t.Run(tt.glob+" "+tt.url, func(t *testing.T) {
			re := regexp.MustCompile(globToRegexp(tt.glob))
			assert.Equal(t, tt.matches, re.MatchString(tt.url))
		})
	}
}

func TestURLMatcher(t *testing.T) {
	t.Run("regexp", func(t *testing.T) {
		m, err := newURLMatcher(regexp.MustCompile(`/api/`))
		require.NoError(t, err)
		assert.True(t, m.matches("https://example.com/api/users"))
		assert.Equal(t, map[string]any{"regexSource": "/api/", "regexFlags": ""}, m.pattern())
		assert.True(t, m.sameSource(regexp.MustCompile(`/api/`)))
		assert.False(t, m.sameSource("/api/"))
	})

	t.Run("predicate", func(t *testing.T) {
		fn := func(url string) bool { return strings.HasSuffix(url, ".svg") }
		m, err := newURLMatcher(fn)
		require.NoError(t, err)
		assert.True(t, m.matches("https://example.com/icon.svg"))
		assert.Equal(t, map[string]any{"glob": "**/*"}, m.pattern())
		assert.True(t, m.sameSource(fn))
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := newURLMatcher(42)
		assert.ErrorContains(t, err, "unsupported url matcher int")
	})
}

func TestWithoutRoutes(t *testing.T) {
	png, err := newURLMatcher("**/*.png")
	require.NoError(t, err)
	css, err := newURLMatcher("**/*.css")
	require.NoError(t, err)

	routes := []*routeHandler{{matcher: png}, {matcher: css}}
	remaining := withoutRoutes(routes, "**/*.png")

	require.Len(t, remaining, 1)
	assert.Same(t, css, remaining[0].matcher)
	assert.Equal(t, []map[string]any{{"glob": "**/*.css"}}, interceptionPatterns(remaining))
}

func TestTimeoutSettingsInheritance(t *testing.T) {
	root := &TimeoutSettings{}
	child := &TimeoutSettings{parent: root}

	assert.Equal(t, DefaultTimeout, child.Timeout())
	assert.Equal(t, DefaultTimeout, child.NavigationTimeout())

	root.SetDefaultTimeout(5 * time.Second)
	assert.Equal(t, 5*time.Second, child.Timeout())
	assert.Equal(t, 5*time.Second, child.NavigationTimeout())

	child.SetDefaultNavigationTimeout(2 * time.Second)
	assert.Equal(t, 5*time.Second, child.Timeout())
	assert.Equal(t, 2*time.Second, child.NavigationTimeout())

	assert.Equal(t, float64(1500), milliseconds(1500*time.Millisecond, child.Timeout()))
	assert.Equal(t, float64(5000), milliseconds(0, child.Timeout()))
}
