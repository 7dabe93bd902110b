package room

import "strings"

// NormalizeCode uppercases a room code and strips everything but A-Z, 0-9 and '-'.
func NormalizeCode(code string) string {
	var b strings.Builder
	b.Grow(len(code))
	for _, r := range strings.ToUpper(code) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}

func defaultRoomName(code string) string {
	if len(code) > 6 {
		code = code[len(code)-6:]
	}
	return "Room " + code
}
