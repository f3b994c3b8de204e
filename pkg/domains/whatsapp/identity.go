package whatsapp

import (
	"strings"
	"unicode"
)

const (
	userServer   = "s.whatsapp.net"
	legacyServer = "c.us"
	groupServer  = "g.us"
)

func splitJID(jid string) (user, server string) {
	user, server, _ = strings.Cut(jid, "@")
	if i := strings.IndexByte(user, ':'); i >= 0 {
		user = user[:i]
	}
	if i := strings.IndexByte(user, '.'); i >= 0 {
		user = user[:i]
	}
	return user, server
}

func isGroupJID(jid string) bool {
	_, server := splitJID(jid)
	return server == groupServer
}

// phoneFromJID returns the phone number behind a user JID. Identities on any
// other server (lid, newsletter, broadcast) do not map to a phone number.
func phoneFromJID(jid string) (string, bool) {
	if jid == "" {
		return "", false
	}
	user, server := splitJID(jid)
	if server != "" && server != userServer && server != legacyServer {
		return "", false
	}
	if !isDigits(user) {
		return "", false
	}
	return user, true
}

// NormalizePhone strips everything but digits from user input such as "+1 (555) 010-9999".
func NormalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) || r > unicode.MaxASCII {
			return false
		}
	}
	return true
}
