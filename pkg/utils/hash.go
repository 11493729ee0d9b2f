package utils

import (
	"crypto/md5"
	"fmt"
)

// HashString derives a stable cache/record key from arbitrary text.
func HashString(input string) string {
	hash := md5.Sum([]byte(input))
	return fmt.Sprintf("%x", hash)
}
