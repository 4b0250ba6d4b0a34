package suite

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/redis/go-redis/v9"
)

const (
	// containerLifetime hard-kills the Redis container even if the test run
	// is interrupted before cleanup.
	containerLifetime = 120
	maxWait           = 120 * time.Second
)

const (
	redisPort  = "6379/tcp"
	redisImage = "redis"
	redisTag   = "alpine"
)

// Suite boots a throwaway Redis for archive repository tests and tears it
// down with the test.
type Suite struct {
	*testing.T

	Logger *slog.Logger
	Redis  *redis.Client
}

func New(t *testing.T) (context.Context, *Suite) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), maxWait)
	t.Cleanup(cancel)

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	return ctx, &Suite{
		T:      t,
		Logger: logger,
		Redis:  startRedis(ctx, t),
	}
}

// TTLOf reports the remaining lifetime of an archive key. Keys without an
// expiry report a negative duration, per Redis TTL semantics.
func (that *Suite) TTLOf(ctx context.Context, key string) time.Duration {
	that.Helper()

	ttl, err := that.Redis.TTL(ctx, key).Result()
	if err != nil {
		that.Fatalf("could not read ttl of %s: %v", key, err)
	}

	return ttl
}

// startRedis runs a disposable Redis container and waits for it to accept
// connections. The database is flushed so every test starts empty.
func startRedis(ctx context.Context, t *testing.T) *redis.Client {
	t.Helper()

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("could not connect to docker: %v", err)
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: redisImage,
		Tag:        redisTag,
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("could not start resource: %v", err)
	}

	// never returns error
	_ = resource.Expire(containerLifetime)

	addr := resource.GetHostPort(redisPort)

	// the container may not accept connections right away
	pool.MaxWait = maxWait

	var client *redis.Client
	if err = pool.Retry(func() error {
		client = redis.NewClient(&redis.Options{Addr: addr})
		return client.Ping(ctx).Err()
	}); err != nil {
		if err = pool.Purge(resource); err != nil {
			t.Fatalf("could not purge resource: %v", err)
		}

		t.Fatalf("could not connect to redis: %v", err)
	}

	if err = client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("could not flush database: %v", err)
	}

	t.Cleanup(func() {
		t.Helper()

		if err = pool.Purge(resource); err != nil {
			t.Fatalf("could not purge resource: %v", err)
		}
	})

	return client
}
