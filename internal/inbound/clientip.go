package inbound

import (
	"net"
	"net/http"
	"strings"

	"github.com/chtrembl/petstoreapp/internal/requestctx"
)

const unknownAddress = "unknown"

// ClientIP resolves the address of the original caller. Forwarding headers
// are consulted in order and the first usable one wins; a comma separated
// chain yields its first entry. Without forwarding headers the peer address
// of the connection is used.
func ClientIP(r *http.Request) string {
	for _, name := range requestctx.ClientIPHeaders {
		value := strings.TrimSpace(r.Header.Get(name))
		if value == "" || strings.EqualFold(value, unknownAddress) {
			continue
		}

		if first, _, found := strings.Cut(value, ","); found {
			value = strings.TrimSpace(first)
		}

		return value
	}

	return peerAddress(r.RemoteAddr)
}

func peerAddress(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}

	return host
}
