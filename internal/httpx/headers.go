package httpx

import (
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/matst80/rendezvous/internal/proto"
)

var (
	// RFC 7230 section 3.2.6 token characters.
	headerNameRE = regexp.MustCompile(`^[\w!#$%&|~'^*+\-.]+$`)
	// Visible ASCII plus space and horizontal tab.
	headerValueRE = regexp.MustCompile("^[\x21-\x7e \t]*$")
)

// ValidName reports whether name is acceptable as a custom header name.
func ValidName(name string) bool {
	return headerNameRE.MatchString(name)
}

// ValidValue reports whether value is acceptable as a custom header value.
func ValidValue(value string) bool {
	return headerValueRE.MatchString(value)
}

// Validate checks every set in order, names sorted within a set, and returns
// an InvalidBodyError naming the first offending header or value.
func Validate(sets ...proto.HeaderSet) error {
	for _, set := range sets {
		names := maps.Keys(set)
		slices.Sort(names)
		for _, name := range names {
			if !ValidName(name) {
				return proto.InvalidBody("Not a valid HTTP header name: " + name)
			}
			if v := set[name]; !ValidValue(v) {
				return proto.InvalidBody(fmt.Sprintf("Not a valid HTTP header value: %q", v))
			}
		}
	}
	return nil
}

// Apply sets (replaces) every header of set on dst.
func Apply(dst http.Header, set proto.HeaderSet) {
	for name, value := range set {
		dst.Set(name, value)
	}
}

// ClientIP returns the address a request should be attributed to. When
// trustProxy is set the left-most X-Forwarded-For entry wins.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
