package redis

import (
	"context"
	"time"

	"roomchat_server/pkg/errorx"
)

// NopCache 关闭缓存时使用：读永远未命中，写和删除直接成功
type NopCache struct{}

func (NopCache) Set(context.Context, string, string, time.Duration) error { return nil }

func (NopCache) SetWithJitter(context.Context, string, string, time.Duration, int) error { return nil }

func (NopCache) Get(context.Context, string) (string, error) { return "", nil }

func (NopCache) GetOrError(_ context.Context, key string) (string, error) {
	return "", errorx.Newf(errorx.CodeNotFound, "cache disabled, key %s not found", key)
}

func (NopCache) Delete(context.Context, string) error { return nil }

func (NopCache) DeleteByPattern(context.Context, string) error { return nil }

// SubmitTask 没有后台 worker，直接同步执行
func (NopCache) SubmitTask(action func()) {
	if action != nil {
		action()
	}
}

var _ AsyncCacheService = NopCache{}
