//go:build dockertest

package testutil

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-sql-driver/mysql"
	nanoid "github.com/jaevor/go-nanoid"
	_ "github.com/lib/pq"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
)

// Cleanup tears down a container started for a test run.
type Cleanup func() error

const containerExpireSeconds = 120

// lowercase only, so the value is a valid database name on every backend.
var randomName = mustGenerator("abcdefghijklmnopqrstuvwxyz", 12)

func mustGenerator(chars string, n int) func() string {
	gen, err := nanoid.CustomASCII(chars, n)
	if err != nil {
		panic(err)
	}
	return gen
}

func initDockertest(pool *dockertest.Pool) (*dockertest.Pool, error) {
	if pool == nil {
		var err error
		pool, err = dockertest.NewPool("")
		if err != nil {
			return nil, fmt.Errorf("could not construct pool: %w", err)
		}
	}
	if err := pool.Client.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to Docker: %w", err)
	}
	return pool, nil
}

func hostConfig(config *docker.HostConfig) {
	config.AutoRemove = true
	config.RestartPolicy = docker.RestartPolicy{Name: "no"}
}

// run starts a container and wires purge-on-error around ready.
func run(pool *dockertest.Pool, opts *dockertest.RunOptions, ready func(*dockertest.Resource) (string, error)) (_ string, _ Cleanup, err error) {
	pool, err = initDockertest(pool)
	if err != nil {
		return "", nil, err
	}

	resource, err := pool.RunWithOptions(opts, hostConfig)
	if err != nil {
		return "", nil, fmt.Errorf("failed to run %s container: %w", opts.Repository, err)
	}

	cleanup := func() error {
		if purgeErr := pool.Purge(resource); purgeErr != nil {
			return fmt.Errorf("failed to purge %s container: %w", opts.Repository, purgeErr)
		}
		return nil
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, cleanup())
		}
	}()

	if err = resource.Expire(containerExpireSeconds); err != nil {
		return "", nil, fmt.Errorf("failed to set expire time: %w", err)
	}

	var dsn string
	err = pool.Retry(func() error {
		var retryErr error
		dsn, retryErr = ready(resource)
		return retryErr
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to connect to %s: %w", opts.Repository, err)
	}
	return dsn, cleanup, nil
}

func ping(driver, dsn string) error {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return err
	}
	return multierr.Append(db.Ping(), db.Close())
}

// TestWithPostgres starts a throwaway PostgreSQL and returns its DSN.
func TestWithPostgres(pool *dockertest.Pool) (string, Cleanup, error) {
	name, password := randomName(), randomName()
	return run(pool, &dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16-alpine",
		Env: []string{
			"POSTGRES_DB=" + name,
			"POSTGRES_USER=courier",
			"POSTGRES_PASSWORD=" + password,
		},
	}, func(r *dockertest.Resource) (string, error) {
		dsn := fmt.Sprintf("postgres://courier:%s@%s/%s?sslmode=disable", password, r.GetHostPort("5432/tcp"), name)
		return dsn, ping("postgres", dsn)
	})
}

// TestWithMySQL starts a throwaway MySQL and returns its DSN.
func TestWithMySQL(pool *dockertest.Pool) (string, Cleanup, error) {
	name, password := randomName(), randomName()
	return run(pool, &dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0",
		Env: []string{
			"MYSQL_DATABASE=" + name,
			"MYSQL_USER=courier",
			"MYSQL_PASSWORD=" + password,
			"MYSQL_ROOT_PASSWORD=" + password,
		},
	}, func(r *dockertest.Resource) (string, error) {
		config := &mysql.Config{
			User:                 "courier",
			Passwd:               password,
			Net:                  "tcp",
			Addr:                 r.GetHostPort("3306/tcp"),
			DBName:               name,
			AllowNativePasswords: true,
		}
		dsn := config.FormatDSN()
		return dsn, ping("mysql", dsn)
	})
}

// TestWithRedis starts a throwaway Redis and returns its address.
func TestWithRedis(pool *dockertest.Pool) (string, Cleanup, error) {
	return run(pool, &dockertest.RunOptions{
		Repository: "redis",
		Tag:        "7-alpine",
	}, func(r *dockertest.Resource) (string, error) {
		addr := r.GetHostPort("6379/tcp")
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		return addr, multierr.Append(rdb.Ping(context.Background()).Err(), rdb.Close())
	})
}
