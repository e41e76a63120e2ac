package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type RateLimitConfig struct {
	IPPerMinute     int
	IPBurst         int
	AgencyPerMinute int
	AgencyBurst     int
	// TrustedProxies are addresses or CIDR ranges whose X-Forwarded-For is
	// believed. With none configured the header is ignored.
	TrustedProxies []string
	// IdleTTL is how long an unused bucket is kept. It is raised to the full
	// refill time so dropping a bucket never grants extra tokens.
	IdleTTL time.Duration
}

// RateLimiter throttles per client address and, for authenticated calls,
// per agency. Public requests are never charged to an agency: the agency id
// they carry is caller-controlled.
type RateLimiter struct {
	perClient *keyedLimiter
	perAgency *keyedLimiter
	proxies   []netip.Prefix
}

func NewRateLimiter(cfg RateLimitConfig) (*RateLimiter, error) {
	proxies, err := parseProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}
	return &RateLimiter{
		perClient: newKeyedLimiter(cfg.IPPerMinute, cfg.IPBurst, cfg.IdleTTL),
		perAgency: newKeyedLimiter(cfg.AgencyPerMinute, cfg.AgencyBurst, cfg.IdleTTL),
		proxies:   proxies,
	}, nil
}

// Middleware must run inside AuthMiddleware so the session is known.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		addr := l.clientAddr(r)
		if !l.perClient.allow(addr) {
			writeError(w, requestIDFromRequest(r), http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		if session, ok := sessionFromContext(r.Context()); ok && !l.perAgency.allow(session.AgencyID) {
			writeError(w, requestIDFromRequest(r), http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientAddrKey{}, addr)))
	})
}

// clientAddr is the peer address unless the peer is a trusted proxy, in
// which case it is the right-most forwarded hop that is not itself trusted.
func (l *RateLimiter) clientAddr(r *http.Request) string {
	peer, ok := peerAddr(r)
	if !ok {
		return r.RemoteAddr
	}
	if !l.trusted(peer) {
		return peer.String()
	}
	hops := forwardedHops(r.Header.Values("X-Forwarded-For"))
	for i := len(hops) - 1; i >= 0; i-- {
		hop, err := netip.ParseAddr(hops[i])
		if err != nil {
			break
		}
		hop = hop.Unmap()
		if !l.trusted(hop) {
			return hop.String()
		}
	}
	return peer.String()
}

func (l *RateLimiter) trusted(addr netip.Addr) bool {
	for _, prefix := range l.proxies {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

type clientAddrKey struct{}

// clientIP is the address the rate limiter resolved, or the bare peer
// address when the limiter is not in the chain.
func clientIP(r *http.Request) string {
	if addr, ok := r.Context().Value(clientAddrKey{}).(string); ok {
		return addr
	}
	if peer, ok := peerAddr(r); ok {
		return peer.String()
	}
	return r.RemoteAddr
}

func peerAddr(r *http.Request) (netip.Addr, bool) {
	if addrPort, err := netip.ParseAddrPort(r.RemoteAddr); err == nil {
		return addrPort.Addr().Unmap(), true
	}
	if addr, err := netip.ParseAddr(r.RemoteAddr); err == nil {
		return addr.Unmap(), true
	}
	return netip.Addr{}, false
}

func forwardedHops(headers []string) []string {
	var hops []string
	for _, header := range headers {
		for _, hop := range strings.Split(header, ",") {
			if hop = strings.TrimSpace(hop); hop != "" {
				hops = append(hops, hop)
			}
		}
	}
	return hops
}

func parseProxies(values []string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if strings.Contains(value, "/") {
			prefix, err := netip.ParsePrefix(value)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", value, err)
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(value)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", value, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

type keyedLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	entries   map[string]*limiterEntry
	lastSweep time.Time
	now       func() time.Time
}

type limiterEntry struct {
	limiter *rate.Limiter
	seen    time.Time
}

func newKeyedLimiter(perMinute, burst int, idleTTL time.Duration) *keyedLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst <= 0 {
		burst = 20
	}
	refill := time.Duration(burst) * time.Minute / time.Duration(perMinute)
	if idleTTL < refill {
		idleTTL = refill
	}
	return &keyedLimiter{
		limit:   rate.Limit(float64(perMinute) / 60),
		burst:   burst,
		idleTTL: idleTTL,
		entries: make(map[string]*limiterEntry),
		now:     time.Now,
	}
}

func (k *keyedLimiter) allow(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	if now.Sub(k.lastSweep) >= k.idleTTL {
		k.sweep(now)
	}
	entry, ok := k.entries[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(k.limit, k.burst)}
		k.entries[key] = entry
	}
	entry.seen = now
	return entry.limiter.AllowN(now, 1)
}

// sweep drops buckets unused for idleTTL; by then they are full again.
func (k *keyedLimiter) sweep(now time.Time) {
	for key, entry := range k.entries {
		if now.Sub(entry.seen) >= k.idleTTL {
			delete(k.entries, key)
		}
	}
	k.lastSweep = now
}

func (k *keyedLimiter) len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
