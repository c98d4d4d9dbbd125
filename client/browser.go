package client

import "time"

// Element is a handle to a located page element. It is only valid for the
// Browser that returned it and only until that browser navigates again.
type Element interface {
	Selector() string
}

// Cookie is one browser cookie record. Expiry is Unix seconds; nil means a
// session cookie or an expiry that was deliberately stripped.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain,omitempty"`
	Path     string `json:"path,omitempty"`
	Expiry   *int64 `json:"expiry,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
	HTTPOnly bool   `json:"httpOnly,omitempty"`
}

// Browser is the page-driving agent the session manager and attempt loop use.
type Browser interface {
	Navigate(url string) error
	CurrentURL() (string, error)
	// FindAndWaitVisible returns an error wrapping ErrElementTimeout when no
	// visible match appears within timeout.
	FindAndWaitVisible(selector string, timeout time.Duration) (Element, error)
	Click(el Element) error
	// Attribute reads a DOM attribute or property; "textContent" is supported.
	Attribute(el Element, name string) (string, error)
	Cookies() ([]Cookie, error)
	SetCookies(cookies []Cookie) error
	Refresh() error
	Close() error
}

// StripExpiry returns a copy of cookies with every Expiry removed.
//
// Domain is left in place on every record.
func StripExpiry(cookies []Cookie) []Cookie {
	out := make([]Cookie, len(cookies))
	for i, c := range cookies {
		c.Expiry = nil
		out[i] = c
	}
	return out
}
