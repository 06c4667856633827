package cache

import "errors"

var ErrCacheMiss = errors.New("snapshot not found in cache")
