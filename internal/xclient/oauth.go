package xclient

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// sign sets an OAuth 1.0a HMAC-SHA1 Authorization header. params are the query or form
// parameters that take part in the signature; JSON bodies do not.
func (c *Client) sign(req *http.Request, params map[string]string) {
	oauth := map[string]string{
		"oauth_consumer_key":     c.creds.ConsumerKey,
		"oauth_nonce":            c.nonceFn(),
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        strconv.FormatInt(c.nowFn().Unix(), 10),
		"oauth_token":            c.creds.AccessToken,
		"oauth_version":          "1.0",
	}
	oauth["oauth_signature"] = signature(req.Method, req.URL, oauth, params, c.creds.ConsumerSecret, c.creds.AccessSecret)
	keys := make([]string, 0, len(oauth))
	for k := range oauth { keys = append(keys, k) }
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=\"%s\"", rfc3986(k), rfc3986(oauth[k])))
	}
	req.Header.Set("Authorization", "OAuth "+strings.Join(parts, ", "))
	req.Header.Set("Accept", "application/json")
}

func signature(method string, u *url.URL, oauth, params map[string]string, consumerSecret, tokenSecret string) string {
	all := make(map[string]string, len(oauth)+len(params))
	for k, v := range oauth { all[k] = v }
	for k, v := range params { all[k] = v }
	keys := make([]string, 0, len(all))
	for k := range all { keys = append(keys, k) }
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, rfc3986(k)+"="+rfc3986(all[k]))
	}
	baseURL := u.Scheme + "://" + u.Host + u.Path
	base := strings.ToUpper(method) + "&" + rfc3986(baseURL) + "&" + rfc3986(strings.Join(pairs, "&"))
	mac := hmac.New(sha1.New, []byte(rfc3986(consumerSecret)+"&"+rfc3986(tokenSecret)))
	_, _ = mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// RFC 3986 percent-encoding for OAuth
func rfc3986(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(url.QueryEscape(s), "+", "%20"), "*", "%2A")
}
