package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedRedis answers the lock's commands from a map
type scriptedRedis struct {
	mu       sync.Mutex
	values   map[string]string
	renewals int
}

func newScriptedRedis() *scriptedRedis {
	return &scriptedRedis{values: make(map[string]string)}
}

func (r *scriptedRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	r.values[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (r *scriptedRedis) EvalSha(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.values[keys[0]] != args[0] {
		return redis.NewCmdResult(int64(0), nil)
	}
	switch sha1 {
	case releaseScript.Hash():
		delete(r.values, keys[0])
	case renewScript.Hash():
		r.renewals++
	}
	return redis.NewCmdResult(int64(1), nil)
}

func (r *scriptedRedis) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return r.EvalSha(ctx, redis.NewScript(script).Hash(), keys, args...)
}

func (r *scriptedRedis) EvalRO(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return r.Eval(ctx, script, keys, args...)
}

func (r *scriptedRedis) EvalShaRO(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	return r.EvalSha(ctx, sha1, keys, args...)
}

func (r *scriptedRedis) ScriptExists(ctx context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (r *scriptedRedis) ScriptLoad(ctx context.Context, script string) *redis.StringCmd {
	return redis.NewStringResult(redis.NewScript(script).Hash(), nil)
}

func (r *scriptedRedis) renewCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.renewals
}

func (r *scriptedRedis) steal(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[key] = "another-holder"
}

func warnings(hook *logtest.Hook) []string {
	var messages []string
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			messages = append(messages, entry.Message)
		}
	}
	return messages
}

func TestRedisLock_RenewsWhileHeld(t *testing.T) {
	client := newScriptedRedis()
	log, hook := logtest.NewNullLogger()
	lock := NewRedisLock(client, "locks:", 30*time.Millisecond, log)

	release, ok, err := lock.TryAcquire(context.Background(), RulesPassLock)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Eventually(t, func() bool { return client.renewCount() >= 3 }, time.Second, 5*time.Millisecond,
		"a pass longer than the TTL keeps its lock")

	release()
	renewed := client.renewCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, renewed, client.renewCount(), "renewal stops on release")
	assert.Empty(t, warnings(hook))

	_, ok, err = lock.TryAcquire(context.Background(), RulesPassLock)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLock_LogsTakeover(t *testing.T) {
	client := newScriptedRedis()
	log, hook := logtest.NewNullLogger()
	lock := NewRedisLock(client, "locks:", time.Hour, log)

	release, ok, err := lock.TryAcquire(context.Background(), AlertsPassLock)
	require.NoError(t, err)
	require.True(t, ok)

	client.steal("locks:" + AlertsPassLock)
	release()

	assert.Equal(t, []string{"Pass lock was taken over before release"}, warnings(hook))
	client.mu.Lock()
	assert.Equal(t, "another-holder", client.values["locks:"+AlertsPassLock], "the new holder keeps its lock")
	client.mu.Unlock()
}

func TestRedisLock_StopsRenewingLostLock(t *testing.T) {
	client := newScriptedRedis()
	log, hook := logtest.NewNullLogger()
	lock := NewRedisLock(client, "locks:", 30*time.Millisecond, log)

	release, ok, err := lock.TryAcquire(context.Background(), RulesPassLock)
	require.NoError(t, err)
	require.True(t, ok)
	defer release()

	client.steal("locks:" + RulesPassLock)
	assert.Eventually(t, func() bool {
		for _, message := range warnings(hook) {
			if message == "Pass lock was taken over, no longer renewing" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}
