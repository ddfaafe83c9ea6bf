// pkg/sip/auth/digest.go
package auth

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
)

// ErrChallengeMalformed reports a WWW-Authenticate/Proxy-Authenticate header
// from which realm or nonce could not be extracted.
var ErrChallengeMalformed = fmt.Errorf("digest challenge missing realm or nonce")

// Challenge is the subset of a digest challenge this client understands.
// Single-round MD5 only; qop/cnonce/nc are not supported.
type Challenge struct {
	Realm string
	Nonce string
}

var (
	realmRe = regexp.MustCompile(`realm="([^"]*)"`)
	nonceRe = regexp.MustCompile(`nonce="([^"]*)"`)
)

// ParseChallenge extracts realm and nonce from a challenge header value.
func ParseChallenge(header string) (Challenge, error) {
	realm := realmRe.FindStringSubmatch(header)
	nonce := nonceRe.FindStringSubmatch(header)
	if realm == nil || nonce == nil || realm[1] == "" || nonce[1] == "" {
		return Challenge{}, ErrChallengeMalformed
	}
	return Challenge{Realm: realm[1], Nonce: nonce[1]}, nil
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Response computes the MD5 digest response for the pending request:
//
//	HA1 = MD5(username:realm:password)
//	HA2 = MD5(method:uri)
//	response = MD5(HA1:nonce:HA2)
func Response(username, realm, password, nonce, method, uri string) string {
	ha1 := md5Hex(username + ":" + realm + ":" + password)
	ha2 := md5Hex(method + ":" + uri)
	return md5Hex(ha1 + ":" + nonce + ":" + ha2)
}

// Authorization renders the Authorization header value for a challenge and
// the request it answers.
func Authorization(username, password string, ch Challenge, method, uri string) string {
	response := Response(username, ch.Realm, password, ch.Nonce, method, uri)
	return fmt.Sprintf(`Digest username="%s", realm="%s", nonce="%s", uri="%s", response="%s"`,
		username, ch.Realm, ch.Nonce, uri, response)
}
