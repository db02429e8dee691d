// Package partition derives the cache partition key that scopes
// invoice rows to a tenant's ledger company.
package partition

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const fallbackSegment = "default"

var versionSegment = regexp.MustCompile(`^v\d+$`)

// DeriveKey maps a ledger base URL and company id to the partition key
// used for cache rows. It picks the first URL path segment that is
// neither "api" nor a version marker, falling back to "default". The
// function is total: any unparseable input yields the fallback key.
func DeriveKey(baseURL, companyID string) string {
	segment := fallbackSegment

	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err == nil && parsed.Host != "" {
		for _, part := range strings.Split(parsed.Path, "/") {
			part = strings.TrimSpace(part)
			if part == "" || strings.EqualFold(part, "api") || versionSegment.MatchString(strings.ToLower(part)) {
				continue
			}
			segment = part
			break
		}
	}

	return fmt.Sprintf("%s_%s", segment, companyID)
}
