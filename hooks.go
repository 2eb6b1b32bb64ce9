package servus

import (
	"time"
)

type RegisterHook func(key string)

type ReadyHook func(key string, waitersCompleted int)

type UnregisterHook func(key string)

type ResolveHook func(key string, duration time.Duration, err error)
