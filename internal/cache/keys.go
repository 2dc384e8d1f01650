package cache

import "fmt"

func BatchKey(id int64) string {
	return fmt.Sprintf("batch:%d", id)
}

func RateLimitKey(client string) string {
	return fmt.Sprintf("ratelimit:%s", client)
}
