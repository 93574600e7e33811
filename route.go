package pwire

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/samber/lo"
)

// urlMatcher matches request URLs against a glob, a regular expression or a predicate.
type urlMatcher struct {
	// source is the value passed by the user, used to find handlers in Unroute.
	source any

	glob  string
	re    *regexp.Regexp
	match func(string) bool
}

// newURLMatcher accepts a glob string, a *regexp.Regexp or a func(string) bool.
func newURLMatcher(url any) (*urlMatcher, error) {
	switch u := url.(type) {
	case string:
		re, err := regexp.Compile(globToRegexp(u))
		if err != nil {
			return nil, fmt.Errorf("invalid glob %q: %w", u, err)
		}
		return &urlMatcher{source: u, glob: u, re: re}, nil
	case *regexp.Regexp:
		return &urlMatcher{source: u, re: u}, nil
	case func(string) bool:
		return &urlMatcher{source: u, match: u}, nil
	default:
		return nil, fmt.Errorf("unsupported url matcher %T", url)
	}
}

func (m *urlMatcher) matches(url string) bool {
	if m.match != nil {
		return m.match(url)
	}
	return m.re.MatchString(url)
}

func (m *urlMatcher) sameSource(url any) bool {
	if fn, ok := url.(func(string) bool); ok {
		if m.match == nil {
			return false
		}
		return reflect.ValueOf(fn).Pointer() == reflect.ValueOf(m.match).Pointer()
	}
	if re, ok := url.(*regexp.Regexp); ok {
		return m.glob == "" && m.match == nil && m.re.String() == re.String()
	}
	return m.source == url
}

// pattern returns the interception pattern sent to the driver.
func (m *urlMatcher) pattern() map[string]any {
	switch {
	case m.glob != "":
		return map[string]any{"glob": m.glob}
	case m.re != nil:
		return map[string]any{"regexSource": m.re.String(), "regexFlags": ""}
	default:
		return map[string]any{"glob": "**/*"}
	}
}

// globToRegexp translates a URL glob. ** matches across path segments, * within one,
// ? one character and {a,b} alternatives.
func globToRegexp(glob string) string {
	var sb strings.Builder
	sb.WriteString("^")
	inGroup := false
	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch c {
		case '\\':
			if i+1 < len(glob) {
				i++
				sb.WriteString(regexp.QuoteMeta(string(glob[i])))
			}
		case '*':
			if i+1 < len(glob) && glob[i+1] == '*' {
				for i+1 < len(glob) && glob[i+1] == '*' {
					i++
				}
				sb.WriteString(".*")
			} else {
				sb.WriteString("[^/]*")
			}
		case '?':
			sb.WriteString(".")
		case '{':
			inGroup = true
			sb.WriteString("(")
		case '}':
			inGroup = false
			sb.WriteString(")")
		case ',':
			if inGroup {
				sb.WriteString("|")
			} else {
				sb.WriteString(",")
			}
		default:
			sb.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	sb.WriteString("$")
	return sb.String()
}

type routeHandler struct {
	matcher *urlMatcher
	handler func(*Route)
}

func withoutRoutes(routes []*routeHandler, url any) []*routeHandler {
	return lo.Reject(routes, func(r *routeHandler, _ int) bool {
		return r.matcher.sameSource(url)
	})
}

func interceptionPatterns(routes []*routeHandler) []map[string]any {
	return lo.Map(routes, func(r *routeHandler, _ int) map[string]any {
		return r.matcher.pattern()
	})
}

// runRouteHandlers calls the first handler matching the route's URL.
// It returns false if no handler matched.
func runRouteHandlers(routes []*routeHandler, route *Route) bool {
	url := route.Request().URL()
	handler, ok := lo.Find(routes, func(r *routeHandler) bool {
		return r.matcher.matches(url)
	})
	if !ok {
		return false
	}
	handler.handler(route)
	return true
}
