package session

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"parkpro-backend/internal/vault"
)

// StoredCookie is the persisted form of one cookie of the portal.
type StoredCookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain,omitempty"`
	Path     string `json:"path"`
	Expires  int64  `json:"expires,omitempty"`
	Secure   bool   `json:"secure"`
	HttpOnly bool   `json:"http_only"`
}

func (c StoredCookie) ToHttp() *http.Cookie {
	cookie := &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Secure:   c.Secure,
		HttpOnly: c.HttpOnly,
	}
	if cookie.Path == "" {
		cookie.Path = "/"
	}
	if c.Expires > 0 {
		cookie.Expires = time.Unix(c.Expires, 0)
	}
	return cookie
}

// cookiesFor reads the cookies the jar would send to base. The standard jar
// only reveals name and value, so the rest is filled from base.
func cookiesFor(jar http.CookieJar, base *url.URL) []StoredCookie {
	if jar == nil {
		return nil
	}
	out := []StoredCookie{}
	for _, cookie := range jar.Cookies(base) {
		out = append(out, StoredCookie{
			Name:   cookie.Name,
			Value:  cookie.Value,
			Path:   "/",
			Secure: base.Scheme == "https",
		})
	}
	return out
}

// SealCookies serializes cookies to json and encrypts them.
func SealCookies(v vault.Vault, cookies []StoredCookie) (string, error) {
	serialized, err := json.Marshal(cookies)
	if err != nil {
		return "", err
	}
	return v.Encrypt(serialized)
}

// OpenCookies is the inverse of SealCookies.
func OpenCookies(v vault.Vault, token string) ([]StoredCookie, error) {
	serialized, err := v.Decrypt(token)
	if err != nil {
		return nil, err
	}
	var cookies []StoredCookie
	err = json.Unmarshal(serialized, &cookies)
	if err != nil {
		return nil, fmt.Errorf("decode cookies: %w", err)
	}
	return cookies, nil
}
