package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/meditrack/meditrack/internal/platform/cache"
)

// CachedDoctorRepository serves GetByID from a cache and invalidates the
// entry on every write. Cache failures are logged and fall through to the
// wrapped repository.
type CachedDoctorRepository struct {
	DoctorRepository
	cache  cache.Cache
	ttl    time.Duration
	logger zerolog.Logger
}

func NewCachedDoctorRepository(repo DoctorRepository, c cache.Cache, ttl time.Duration, logger zerolog.Logger) *CachedDoctorRepository {
	return &CachedDoctorRepository{DoctorRepository: repo, cache: c, ttl: ttl, logger: logger}
}

func doctorCacheKey(id int64) string {
	return "doctor:" + strconv.FormatInt(id, 10)
}

func (r *CachedDoctorRepository) GetByID(ctx context.Context, id int64) (*Doctor, error) {
	key := doctorCacheKey(id)
	b, err := r.cache.Get(ctx, key)
	switch {
	case err == nil:
		var d Doctor
		decodeErr := json.Unmarshal(b, &d)
		if decodeErr == nil {
			return &d, nil
		}
		r.logger.Warn().Err(decodeErr).Str("key", key).Msg("discarding undecodable cache entry")
	case !errors.Is(err, cache.ErrMiss):
		r.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}

	d, err := r.DoctorRepository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(d); err == nil {
		if err := r.cache.Set(ctx, key, b, r.ttl); err != nil {
			r.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
	}
	return d, nil
}

func (r *CachedDoctorRepository) UpdateAvailability(ctx context.Context, id int64, weekdays []int, timeSlots []string) error {
	err := r.DoctorRepository.UpdateAvailability(ctx, id, weekdays, timeSlots)
	r.invalidate(ctx, id)
	return err
}

func (r *CachedDoctorRepository) invalidate(ctx context.Context, id int64) {
	if err := r.cache.Delete(ctx, doctorCacheKey(id)); err != nil {
		r.logger.Warn().Err(err).Int64("doctor_id", id).Msg("cache invalidation failed")
	}
}
