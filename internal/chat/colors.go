package chat

import "strconv"

// nameColors is the nickname palette. The index is a stable hash of the
// account, so a user keeps their color across sessions and rooms.
var nameColors = [...]string{
	"#FF0000", // red
	"#005BFF", // electric blue
	"#00FF00", // neon green
	"#FFD700", // bright yellow
	"#FF00FF", // fuchsia
	"#7A00FF", // purple
	"#FF7A00", // orange
	"#00FFFF", // cyan
	"#B6FF00", // lime
	"#001AFF", // royal blue
}

// hashString folds a string to a 32-bit value (djb-style shift hash)
func hashString(s string) int64 {
	var h int32
	for _, r := range s {
		h = (h << 5) - h + int32(r)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return v
}

// NameColor picks the palette color for a message author. The user id is
// preferred because it is stable even if the username changes.
func NameColor(userID uint, username string) string {
	key := username
	if userID != 0 {
		key = strconv.FormatUint(uint64(userID), 10)
	}
	return nameColors[hashString(key)%int64(len(nameColors))]
}
