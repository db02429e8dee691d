package submit

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Order tokens carry the submission kind and the ledger invoice ids
// through the provider and back in its callback. The random middle
// segment keeps resubmissions of the same invoice distinguishable.
const (
	PrefixOrder = "ORD"
	PrefixRed   = "RED"
	PrefixMerge = "MERGE"
)

var tokenPattern = regexp.MustCompile(`^(ORD|RED|MERGE)-([0-9a-f]{8})-([0-9]+(?:-[0-9]+)*)$`)

var ErrMalformedToken = errors.New("malformed_order_token")

func NewOrderToken(erpInvoiceID int64) string {
	return newToken(PrefixOrder, []int64{erpInvoiceID})
}

func NewRedToken(erpInvoiceID int64) string {
	return newToken(PrefixRed, []int64{erpInvoiceID})
}

func NewMergeToken(erpInvoiceIDs []int64) string {
	return newToken(PrefixMerge, erpInvoiceIDs)
}

func newToken(prefix string, ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return fmt.Sprintf("%s-%s-%s", prefix, nonce(), strings.Join(parts, "-"))
}

// ParseToken returns the kind prefix and the ledger invoice ids in the
// order they were encoded.
func ParseToken(token string) (string, []int64, error) {
	match := tokenPattern.FindStringSubmatch(strings.TrimSpace(token))
	if match == nil {
		return "", nil, ErrMalformedToken
	}

	parts := strings.Split(match[3], "-")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return "", nil, ErrMalformedToken
		}
		ids = append(ids, id)
	}
	return match[1], ids, nil
}

func nonce() string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
