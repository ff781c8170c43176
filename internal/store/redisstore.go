package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the shared/networked backend (spec.md §4.4): a
// key/value store with TTL, the broadcast:<id> / global:events
// pub/sub channels, and the instance-heartbeat registry, all fronted
// by a single *redis.Client.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int

	KeyPrefix string
	TTL       time.Duration
}

func NewRedisStore(opts RedisOptions) *RedisStore {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "turnserver:session:"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &RedisStore{client: client, keyPrefix: opts.KeyPrefix, ttl: opts.TTL}
}

func (r *RedisStore) key(id string) string { return r.keyPrefix + id }

func (r *RedisStore) Save(ctx context.Context, id string, data []byte) error {
	return r.client.Set(ctx, r.key(id), data, r.ttl).Err()
}

func (r *RedisStore) Load(ctx context.Context, id string) ([]byte, error) {
	b, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	return b, err
}

func (r *RedisStore) LoadAll(ctx context.Context) (map[string][]byte, error) {
	out := map[string][]byte{}
	iter := r.client.Scan(ctx, 0, r.keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		b, err := r.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		out[key[len(r.keyPrefix):]] = b
	}
	return out, iter.Err()
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, r.key(id)).Err()
}

// BatchSave pipelines all sets; go-redis pipelines are not
// transactional by default, so on a partial failure BatchSave itself
// retries the failed ids individually with Save, same as the
// local-durable backend.
func (r *RedisStore) BatchSave(ctx context.Context, data map[string][]byte) error {
	pipe := r.client.Pipeline()
	cmds := make(map[string]*redis.StatusCmd, len(data))
	for id, payload := range data {
		cmds[id] = pipe.Set(ctx, r.key(id), payload, r.ttl)
	}
	_, err := pipe.Exec(ctx)
	if err == nil {
		return nil
	}
	for id, cmd := range cmds {
		if cmd.Err() != nil {
			if saveErr := r.Save(ctx, id, data[id]); saveErr != nil {
				return saveErr
			}
		}
	}
	return nil
}

func (r *RedisStore) Close() error { return r.client.Close() }

func (r *RedisStore) Publish(ctx context.Context, channel string, payload []byte) error {
	return r.client.Publish(ctx, channel, payload).Err()
}

type redisSubscription struct {
	pubsub *redis.PubSub
	ch     chan []byte
	done   chan struct{}
}

func (s *redisSubscription) Messages() <-chan []byte { return s.ch }

func (s *redisSubscription) Close() error {
	close(s.done)
	return s.pubsub.Close()
}

func (r *RedisStore) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	ps := r.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		return nil, err
	}
	sub := &redisSubscription{pubsub: ps, ch: make(chan []byte, 64), done: make(chan struct{})}
	go func() {
		redisCh := ps.Channel()
		for {
			select {
			case msg, ok := <-redisCh:
				if !ok {
					close(sub.ch)
					return
				}
				select {
				case sub.ch <- []byte(msg.Payload):
				case <-sub.done:
					close(sub.ch)
					return
				}
			case <-sub.done:
				close(sub.ch)
				return
			}
		}
	}()
	return sub, nil
}

// Reserve atomically claims a candidate session id cluster-wide via
// SETNX, so two instances allocating ids concurrently can't collide.
func (r *RedisStore) Reserve(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, r.keyPrefix+"reserve:"+id, 1, ttl).Result()
}

const heartbeatPrefix = "turnserver:instance:"
const instanceSetKey = "turnserver:instances"

// Beat refreshes this instance's TTL'd heartbeat key and ensures it's
// a member of the instance set.
func (r *RedisStore) Beat(ctx context.Context, instanceID string, ttl time.Duration) error {
	pipe := r.client.Pipeline()
	pipe.Set(ctx, heartbeatPrefix+instanceID, 1, ttl)
	pipe.SAdd(ctx, instanceSetKey, instanceID)
	_, err := pipe.Exec(ctx)
	return err
}

// ActiveInstances returns the instance set, pruning entries whose
// heartbeat key has expired.
func (r *RedisStore) ActiveInstances(ctx context.Context) ([]string, error) {
	members, err := r.client.SMembers(ctx, instanceSetKey).Result()
	if err != nil {
		return nil, err
	}
	active := make([]string, 0, len(members))
	var stale []string
	for _, id := range members {
		exists, err := r.client.Exists(ctx, heartbeatPrefix+id).Result()
		if err != nil {
			continue
		}
		if exists == 1 {
			active = append(active, id)
		} else {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		r.client.SRem(ctx, instanceSetKey, toAny(stale)...)
	}
	return active, nil
}

func toAny(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
