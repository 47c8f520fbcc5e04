package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SessionKey returns the cache key holding a live session, keyed by token ID.
func (r *CacheKeyStruct) SessionKey(jti string) string {
	return fmt.Sprintf("session:%s", jti)
}

// ExamMonitorChannel returns the Redis PubSub channel name for an exam's login feed.
func (r *CacheKeyStruct) ExamMonitorChannel(examID int64) string {
	return fmt.Sprintf("exam:%d:monitor", examID)
}

var CacheKey = NewCacheKeyStruct()
