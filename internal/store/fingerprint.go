package store

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// tracking query parameters dropped before fingerprinting
var trackingParams = map[string]bool{
	"fbclid":  true,
	"gclid":   true,
	"ref":     true,
	"ref_src": true,
	"mc_cid":  true,
	"mc_eid":  true,
	"igshid":  true,
}

// Fingerprint identifies a posting within its source. Postings with a link are keyed
// by the normalised link, the rest by normalised title.
func Fingerprint(source, link, title string) string {
	var key string
	if l := NormalizeLink(link); l != "" {
		key = source + "\x00" + l
	} else {
		key = source + "\x00title:" + normalizeTitle(title)
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// NormalizeLink lower-cases link, drops the fragment and tracking parameters,
// sorts the remaining query and strips a trailing slash.
func NormalizeLink(link string) string {
	link = strings.ToLower(strings.TrimSpace(link))
	if link == "" {
		return ""
	}
	u, err := url.Parse(link)
	if err != nil {
		return strings.TrimRight(link, "/")
	}
	u.Fragment = ""
	u.RawFragment = ""

	q := u.Query()
	for k := range q {
		if strings.HasPrefix(k, "utm_") || trackingParams[k] {
			q.Del(k)
		}
	}
	for _, vs := range q {
		sort.Strings(vs)
	}
	// Encode sorts by key
	u.RawQuery = q.Encode()

	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return strings.TrimRight(u.String(), "/")
}

var titleFolder = cases.Fold()

func normalizeTitle(title string) string {
	return strings.Join(strings.Fields(titleFolder.String(title)), " ")
}
