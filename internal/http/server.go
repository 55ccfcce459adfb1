package http

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"ownerportal/internal/cache"
	"ownerportal/internal/core"
	"ownerportal/internal/log"
	"ownerportal/internal/middleware/ratelimit"
	"ownerportal/internal/middleware/security"
	"ownerportal/internal/middleware/trace"
	"ownerportal/internal/roster"
	"ownerportal/internal/services"
)

// Registry is the roster surface the server needs: snapshot reads for the
// statistics endpoints and writes for the registration endpoints. Every
// backend implements the whole of it.
type Registry interface {
	roster.HomeownerReader
	roster.PortalUserReader
	roster.HomeownerWriter
	roster.PortalUserWriter
	roster.PortalUserDeactivator
}

// HistoryReader lists stored adoption snapshots, newest first. Only the
// SQLite registry records history; a nil reader disables the endpoint.
type HistoryReader interface {
	ListStatsSnapshots(ctx context.Context, limit int) ([]core.StatsSnapshot, error)
}

// appMetrics tracks application counters for the metrics endpoint.
type appMetrics struct {
	totalRegistrations int64
	cacheHits          int64
	cacheMisses        int64
	uptime             time.Time
}

type Server struct {
	http.Server

	registry  Registry
	history   HistoryReader
	stats     *services.StatsService
	statsConf services.StatsConfig

	logger     *log.Logger
	structured *log.StructuredLogger

	traceMiddleware   *trace.Middleware
	rateLimiter       *ratelimit.Limiter
	securityDetector  *security.Detector
	headersMiddleware *security.HeadersMiddleware

	// Query results cached per canonical filter. Registry writes purge both
	// caches: a single changed owner can affect any filter containing them.
	overviewCache *cache.LRUCache[core.PortalOverviewStats]
	eligibleCache *cache.LRUCache[[]core.EligibleHomeowner]
	cacheManager  *cache.Manager

	appMetrics   appMetrics
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
// The statistics service is built over the registry's read side, so whichever
// backend sits behind the Registry answers the queries.
func NewServer(addr string, registry Registry, history HistoryReader, statsConf services.StatsConfig, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}

	mux := http.NewServeMux()
	detector := security.NewDetector()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		registry:  registry,
		history:   history,
		stats:     services.NewStatsService(registry, registry, statsConf),
		statsConf: statsConf,

		logger:     logger.WithComponent(log.ComponentHTTP),
		structured: log.NewStructuredLogger(logger),

		traceMiddleware:   trace.NewMiddleware(detector.ExtractClientIP),
		rateLimiter:       ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		securityDetector:  detector,
		headersMiddleware: security.NewHeadersMiddleware(security.DefaultHeadersConfig()),

		overviewCache: cache.NewLRUCache[core.PortalOverviewStats](100, 5*time.Minute),
		eligibleCache: cache.NewLRUCache[[]core.EligibleHomeowner](200, 5*time.Minute),
		cacheManager:  cache.NewManager(),

		appMetrics: appMetrics{uptime: time.Now()},
	}

	s.cacheManager.Register(s.overviewCache)
	s.cacheManager.Register(s.eligibleCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	// Probes and metrics skip the middleware chain so they stay cheap and
	// never count against a client's rate budget
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/metrics", s.handleMetrics)

	mux.Handle("/api/stats/portal-overview", s.route(s.handlePortalOverview))
	mux.Handle("/api/stats/eligible-homeowners", s.route(s.handleEligibleHomeowners))
	mux.Handle("/api/stats/history", s.route(s.handleStatsHistory))

	mux.Handle("/api/homeowners", s.writeRoute(s.handleHomeowners))
	mux.Handle("/api/portal-users", s.writeRoute(s.handlePortalUsers))
	mux.Handle("/api/portal-users/deactivate", s.writeRoute(s.handleDeactivatePortalUser))

	return s
}

// route wraps a handler in the shared middleware chain: request tracing
// outermost, then security headers, then suspicion logging.
func (s *Server) route(h http.HandlerFunc) http.Handler {
	var next http.Handler = h
	next = s.detect(next)
	next = s.headersMiddleware.Middleware(next)
	next = s.traceMiddleware.Middleware(next)
	return next
}

// writeRoute adds rate limiting on top of the shared chain. Statistics reads
// stay unthrottled, roster mutations do not.
func (s *Server) writeRoute(h http.HandlerFunc) http.Handler {
	limit := s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.handleRateLimited)
	return s.route(limit(h).ServeHTTP)
}

// detect logs requests matching known scanner and traversal patterns. They
// are served normally; the signal feeds the metrics endpoint.
func (s *Server) detect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.securityDetector.DetectSuspiciousRequest(r) {
			s.logger.WarnContext(r.Context(), "Suspicious request detected",
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
				log.FieldUserAgent, r.Header.Get("User-Agent"))
		}
		next.ServeHTTP(w, r)
	})
}

// handleRateLimited renders the JSON 429 for throttled clients.
func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path,
		log.FieldClientIP, s.securityDetector.ExtractClientIP(r))
	w.Header().Set("Retry-After", "60")
	ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, retry later").Write(w)
}

// cachedOverview answers an overview query, preferring the cache. The filter
// is validated before the cache lookup: the nil filter and the empty one
// share a canonical key but only the second may ever be served.
func (s *Server) cachedOverview(ctx context.Context, filter core.FilterCriteria) (core.PortalOverviewStats, error) {
	if err := filter.Validate(); err != nil {
		return core.PortalOverviewStats{}, err
	}

	key := filterCacheKey(filter.HomeownerIDs)
	if stats, ok := s.overviewCache.Get(key); ok {
		atomic.AddInt64(&s.appMetrics.cacheHits, 1)
		return stats, nil
	}
	atomic.AddInt64(&s.appMetrics.cacheMisses, 1)

	stats, err := s.stats.GetPortalUserOverviewStatistics(ctx, filter)
	if err != nil {
		return core.PortalOverviewStats{}, err
	}
	s.overviewCache.Set(key, stats)
	return stats, nil
}

// cachedEligible answers an eligible-homeowners query, preferring the cache.
func (s *Server) cachedEligible(ctx context.Context, filter core.FilterCriteria) ([]core.EligibleHomeowner, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	key := filterCacheKey(filter.HomeownerIDs)
	if eligible, ok := s.eligibleCache.Get(key); ok {
		atomic.AddInt64(&s.appMetrics.cacheHits, 1)
		return eligible, nil
	}
	atomic.AddInt64(&s.appMetrics.cacheMisses, 1)

	eligible, err := s.stats.ListEligibleHomeowners(ctx, filter)
	if err != nil {
		return nil, err
	}
	s.eligibleCache.Set(key, eligible)
	return eligible, nil
}

// purgeQueryCaches drops every cached query result. Per-filter invalidation
// cannot know which filters contain the touched owner.
func (s *Server) purgeQueryCaches() {
	s.overviewCache.Purge()
	s.eligibleCache.Purge()
}

// Shutdown gracefully shuts down the server and its cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}
