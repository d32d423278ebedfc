package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/theposch/mainstream-sub002/internal/httpx"
)

// originSet is a parsed ALLOWED_ORIGINS list. An empty set or "*" allows any
// origin.
type originSet struct {
	any     bool
	origins map[string]struct{}
}

func newOriginSet(csv string) originSet {
	set := originSet{origins: map[string]struct{}{}}
	for _, o := range SplitCSV(csv) {
		if o == "*" {
			set.any = true
			continue
		}
		set.origins[normalizeOrigin(o)] = struct{}{}
	}
	if len(set.origins) == 0 {
		set.any = true
	}
	return set
}

func (s originSet) allows(origin string) bool {
	if s.any {
		return true
	}
	_, ok := s.origins[normalizeOrigin(origin)]
	return ok
}

func normalizeOrigin(o string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/"))
}

// OriginAllowed rejects browser requests whose Origin is not in allowed, a
// comma separated list. Requests without an Origin header pass.
func OriginAllowed(allowed string) fiber.Handler {
	set := newOriginSet(allowed)
	return func(c *fiber.Ctx) error {
		origin := c.Get(fiber.HeaderOrigin)
		if origin == "" || set.allows(origin) {
			return c.Next()
		}
		return httpx.Forbidden(c, "forbidden_origin", "Origin not allowed")
	}
}

// SplitCSV splits a comma separated setting, dropping blanks.
func SplitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
