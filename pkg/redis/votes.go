package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/beatbus/room-sync/pkg/protocol"
)

const voteTTL = 24 * time.Hour

// Tally is the confirmed vote count of one song.
type Tally struct {
	Likes    int
	Dislikes int
}

// VoteStore keeps one hash per song mapping username to "like" or "dislike",
// so a user contributes at most one vote to a song.
type VoteStore struct {
	client *redis.Client
}

func NewVoteStore(client *redis.Client) *VoteStore {
	return &VoteStore{client: client}
}

func votesKey(roomID, songID string) string {
	return fmt.Sprintf("votes:%s:%s", roomID, songID)
}

// Cast applies action for username and returns the new tally. A directional
// vote replaces any earlier one; a removal only clears a matching vote.
func (s *VoteStore) Cast(ctx context.Context, roomID, songID, username string, action protocol.VoteAction) (Tally, error) {
	key := votesKey(roomID, songID)

	var err error
	switch action {
	case protocol.VoteLike, protocol.VoteDislike:
		_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, username, string(action))
			pipe.Expire(ctx, key, voteTTL)
			return nil
		})
	case protocol.VoteRemoveLike:
		err = s.removeIf(ctx, key, username, string(protocol.VoteLike))
	case protocol.VoteRemoveDislike:
		err = s.removeIf(ctx, key, username, string(protocol.VoteDislike))
	default:
		return Tally{}, fmt.Errorf("unknown vote action %q", action)
	}
	if err != nil {
		return Tally{}, fmt.Errorf("failed to cast vote: %w", err)
	}
	return s.Tally(ctx, roomID, songID)
}

func (s *VoteStore) removeIf(ctx context.Context, key, username, want string) error {
	txf := func(tx *redis.Tx) error {
		cur, err := tx.HGet(ctx, key, username).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		if cur != want {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HDel(ctx, key, username)
			return nil
		})
		return err
	}
	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return ErrConflict
}

func (s *VoteStore) Tally(ctx context.Context, roomID, songID string) (Tally, error) {
	votes, err := s.client.HGetAll(ctx, votesKey(roomID, songID)).Result()
	if err != nil {
		return Tally{}, fmt.Errorf("failed to get votes: %w", err)
	}
	var t Tally
	for _, v := range votes {
		switch protocol.VoteAction(v) {
		case protocol.VoteLike:
			t.Likes++
		case protocol.VoteDislike:
			t.Dislikes++
		}
	}
	return t, nil
}

// Clear drops the votes of the given songs.
func (s *VoteStore) Clear(ctx context.Context, roomID string, songIDs ...string) error {
	if len(songIDs) == 0 {
		return nil
	}
	keys := make([]string, len(songIDs))
	for i, id := range songIDs {
		keys[i] = votesKey(roomID, id)
	}
	return s.client.Del(ctx, keys...).Err()
}
