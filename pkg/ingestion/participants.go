package ingestion

import (
	"context"
	"errors"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/marinlafare/real-chessism/pkg/archive"
	"github.com/marinlafare/real-chessism/pkg/models"
)

// DefaultProfileConcurrency caps goroutines spawned for participant profiles.
// The archive client's own semaphore bounds the requests in flight.
const DefaultProfileConcurrency = 16

// PlayerFromProfile maps a source profile onto a player row.
func PlayerFromProfile(handle string, profile *archive.RawProfile) models.Player {
	player := models.Player{PlayerName: strings.ToLower(handle)}
	if profile == nil {
		return player
	}
	player.Name = profile.Name
	player.URL = profile.URL
	player.Title = profile.Title
	player.Avatar = profile.Avatar
	player.Followers = profile.Followers
	player.Country = profile.CountryCode()
	player.Location = profile.Location
	player.Joined = profile.Joined
	player.Status = profile.Status
	player.IsStreamer = profile.IsStreamer
	player.TwitchURL = profile.TwitchURL
	player.Verified = profile.Verified
	player.League = profile.League
	return player
}

// participantHandles returns the distinct lower-cased handles of both sides,
// excluding the sync target.
func participantHandles(records []sourced, target string) []string {
	seen := map[string]struct{}{target: {}}
	var out []string
	for _, r := range records {
		for _, name := range []string{r.raw.White.Username, r.raw.Black.Username} {
			handle := strings.ToLower(strings.TrimSpace(name))
			if handle == "" {
				continue
			}
			if _, ok := seen[handle]; ok {
				continue
			}
			seen[handle] = struct{}{}
			out = append(out, handle)
		}
	}
	sort.Strings(out)
	return out
}

// resolveParticipants returns player rows for every handle not yet stored.
// A profile that cannot be fetched yields a handle-only player.
func (c *Coordinator) resolveParticipants(ctx context.Context, handles []string) ([]models.Player, error) {
	if len(handles) == 0 {
		return nil, nil
	}

	present, err := c.playerFilter.AlreadyPresent(ctx, handles)
	if err != nil {
		return nil, err
	}

	missing := make([]string, 0, len(handles))
	for _, h := range handles {
		if !present.Has(h) {
			missing = append(missing, h)
		}
	}
	if len(missing) == 0 {
		return nil, nil
	}

	players := make([]models.Player, len(missing))
	var g errgroup.Group
	g.SetLimit(c.cfg.ProfileConcurrency)
	for i, handle := range missing {
		g.Go(func() error {
			profile, err := c.source.FetchProfile(ctx, handle)
			if err != nil {
				if !errors.Is(err, archive.ErrNotFound) && ctx.Err() == nil {
					c.logger.WithContext(ctx).WithError(err).Debugf("Using a minimal player for %s", handle)
				}
				profile = nil
			}
			players[i] = PlayerFromProfile(handle, profile)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return players, nil
}
