package story

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// Fingerprint is a deterministic content identity for a story. Two raw
// items with the same fingerprint are the same story regardless of which
// source delivered them.
type Fingerprint string

// trackingParams are query parameters that vary per delivery channel
// without changing the document they point at.
var trackingParams = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
	"utm_id":       true,
	"fbclid":       true,
	"gclid":        true,
	"msclkid":      true,
	"mc_cid":       true,
	"mc_eid":       true,
	"ref":          true,
	"ref_src":      true,
	"cmpid":        true,
	"partner":      true,
	"ncid":         true,
}

// FingerprintOf computes the content fingerprint of a raw item:
// SHA-256 over the normalized title+body joined with the canonical URL.
// Pure function, no I/O.
func FingerprintOf(raw RawItem) Fingerprint {
	h := sha256.New()
	h.Write([]byte(NormalizeText(raw.Title + " " + raw.Body)))
	h.Write([]byte{'\n'})
	h.Write([]byte(CanonicalURL(raw.URL)))
	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

// NormalizeText lowercases and collapses all whitespace runs to single
// spaces. Identity is exact normalized equality: cosmetic whitespace and
// casing differences merge, any wording difference does not.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// CanonicalURL strips the fragment and tracking query parameters,
// lowercases scheme and host, and drops a trailing slash. Unparseable
// URLs canonicalize to their trimmed lowercase form.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.ToLower(raw)
	}

	u.Fragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimSuffix(u.Path, "/")

	q := u.Query()
	for key := range q {
		if trackingParams[strings.ToLower(key)] {
			q.Del(key)
		}
	}
	u.RawQuery = encodeSorted(q)

	return u.String()
}

// encodeSorted encodes query values with deterministic key order so that
// parameter ordering never changes the fingerprint.
func encodeSorted(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range q[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}
