package report

import (
	"context"

	"github.com/VasulenkoIllia/Google-ADS/internal/jobcache"
)

// Service is the surface the polling layer consumes: it maps report
// parameters onto cached build Jobs. Two concurrent requests with the same
// normalized parameters share one build.
type Service struct {
	cache   *jobcache.Cache
	builder *Builder
}

// NewService creates a Service over the given cache and builder.
func NewService(cache *jobcache.Cache, builder *Builder) *Service {
	return &Service{cache: cache, builder: builder}
}

// GetOrCreateReportJob returns the Job for params, starting a build if no
// fresh one exists. ctx bounds the build, not the caller's wait: the caller
// polls the returned Job.
func (s *Service) GetOrCreateReportJob(ctx context.Context, params Params) *jobcache.Job {
	return s.cache.GetOrCreate(ctx, params.Key(), func(ctx context.Context, job *jobcache.Job) (interface{}, error) {
		return s.builder.Build(ctx, params, job)
	})
}
