package submission

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"clinic-forms/internal/common/database"
	"clinic-forms/internal/common/validation"
)

// DuplicateGuard rejects an identical submission seen within a window.
type DuplicateGuard interface {
	// Claim reports true when the fingerprint is new.
	Claim(ctx context.Context, form, fingerprint string) (bool, error)
	Release(ctx context.Context, form, fingerprint string) error
}

type RedisGuard struct {
	client *database.RedisClient
	window time.Duration
}

func NewRedisGuard(client *database.RedisClient, window time.Duration) *RedisGuard {
	return &RedisGuard{client: client, window: window}
}

func (g *RedisGuard) key(form, fingerprint string) string {
	return "clinic-forms:dup:" + form + ":" + fingerprint
}

func (g *RedisGuard) Claim(ctx context.Context, form, fingerprint string) (bool, error) {
	return g.client.SetNX(ctx, g.key(form, fingerprint), 1, g.window)
}

func (g *RedisGuard) Release(ctx context.Context, form, fingerprint string) error {
	return g.client.Del(ctx, g.key(form, fingerprint))
}

// Fingerprint hashes the normalized data and file contents. encoding/json
// sorts map keys, so equal records hash equally.
func Fingerprint(data validation.Record, files map[string]*validation.FileValue) string {
	h := sha256.New()
	payload, _ := json.Marshal(data)
	h.Write(payload)

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		f := files[name]
		if f == nil {
			continue
		}
		sum := sha256.Sum256(f.Content)
		h.Write([]byte(name))
		h.Write(sum[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}
