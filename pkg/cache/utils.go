package cache

import "fmt"

// GenerateKey joins a prefix and parameters into a cache key (prefix:p1:p2).
func GenerateKey(prefix string, params ...interface{}) string {
	key := prefix
	for _, param := range params {
		key = fmt.Sprintf("%s:%v", key, param)
	}
	return key
}
