package engine

import (
	"net"
	"net/url"
	"strconv"
)

// AddressURL composes <scheme>://<user>:<password>@<host>:<port>/<database> with
// every component escaped. An absent password is rendered as an empty one, so the
// separating colon is always present.
func AddressURL(scheme string, descriptor Descriptor) *url.URL {
	return &url.URL{
		Scheme:  scheme,
		User:    url.UserPassword(descriptor.User, descriptor.PasswordOrEmpty()),
		Host:    net.JoinHostPort(descriptor.Host, strconv.Itoa(int(descriptor.Port))),
		Path:    "/" + descriptor.Database,
		RawPath: "/" + url.PathEscape(descriptor.Database),
	}
}

func Address(scheme string, descriptor Descriptor) string {
	return AddressURL(scheme, descriptor).String()
}

// RedactedAddress is safe to log.
func RedactedAddress(scheme string, descriptor Descriptor) string {
	return AddressURL(scheme, descriptor).Redacted()
}
