package stores

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisMembershipStore keeps principal to role assignments in Redis
// sets under rolemem:{principalID}, shared across decision point
// instances.
type RedisMembershipStore struct {
	client *redis.Client
	keyFmt string
}

func NewRedisMembershipStore(client *redis.Client) *RedisMembershipStore {
	return &RedisMembershipStore{client: client, keyFmt: "rolemem:%s"}
}

func (r *RedisMembershipStore) key(principalID string) string {
	return fmt.Sprintf(r.keyFmt, principalID)
}

func (r *RedisMembershipStore) AssignRole(ctx context.Context, principalID, role string) error {
	return r.client.SAdd(ctx, r.key(principalID), role).Err()
}

func (r *RedisMembershipStore) RevokeRole(ctx context.Context, principalID, role string) error {
	return r.client.SRem(ctx, r.key(principalID), role).Err()
}

func (r *RedisMembershipStore) ListRoles(ctx context.Context, principalID string) ([]string, error) {
	return r.client.SMembers(ctx, r.key(principalID)).Result()
}
