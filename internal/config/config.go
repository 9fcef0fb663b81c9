package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/sujalbistaa/entrenous/internal/seal"
)

// Moderation tunes the flag pipeline.
type Moderation struct {
	AutoHideThreshold int
	LastFlagsLimit    int
	PendingLimit      int
	Keywords          []string
}

// Ranking holds the feed coefficients. Only the monotonicity directions are
// fixed; the magnitudes are deployment choices.
type Ranking struct {
	RecencyWeight  float64
	HalfLife       time.Duration
	FlagPenalty    float64
	KindnessCap    float64
	KindnessScale  float64
	CandidateLimit int
	ReplyLimit     int
}

// Bans controls how bare addresses are widened and how often the active table is reloaded.
type Bans struct {
	IPv4PrefixLen   int
	IPv6PrefixLen   int
	RefreshInterval time.Duration
}

type Config struct {
	Port        string
	DatabaseURL string
	CORSOrigin  string
	Environment string
	LogLevel    string
	LogFile     string

	// TrustedProxies may set X-Forwarded-For. Empty means the socket peer is the client.
	TrustedProxies []string

	AdminToken        string
	JWTSecret         string
	JWTIssuer         string
	AccessTokenTTL    time.Duration
	EmailLookupPepper string
	IPLookupPepper    string

	// ContentKey is the base64 encoded key sealing bodies and addresses at rest.
	ContentKey string

	MaxBodyLength  int
	MetricsWindow  int
	WriteRateRPS   float64
	WriteRateBurst int

	Moderation Moderation
	Ranking    Ranking
	Bans       Bans
}

// Default returns the configuration used when no environment overrides are set.
// Secrets are left empty and must be supplied.
func Default() Config {
	return Config{
		Port:           "8080",
		DatabaseURL:    "sqlite://entrenous.db",
		CORSOrigin:     "*",
		Environment:    "development",
		LogLevel:       "info",
		LogFile:        "server.log",
		JWTIssuer:      "entre-nous",
		AccessTokenTTL: 30 * time.Minute,
		MaxBodyLength:  2000,
		MetricsWindow:  500,
		WriteRateRPS:   1,
		WriteRateBurst: 5,
		Moderation: Moderation{
			AutoHideThreshold: 5,
			LastFlagsLimit:    50,
			PendingLimit:      200,
			Keywords:          []string{"kill", "suicide", "self-harm", "hate"},
		},
		Ranking: Ranking{
			RecencyWeight:  10,
			HalfLife:       12 * time.Hour,
			FlagPenalty:    1.5,
			KindnessCap:    2,
			KindnessScale:  5,
			CandidateLimit: 200,
			ReplyLimit:     200,
		},
		Bans: Bans{
			IPv4PrefixLen:   24,
			IPv6PrefixLen:   64,
			RefreshInterval: 30 * time.Second,
		},
	}
}

// Setting keys. Each is also the lower-cased name of its environment variable.
const (
	KeyPort              = "port"
	KeyDatabaseURL       = "database_url"
	KeyCORSOrigin        = "cors_origin"
	KeyEnvironment       = "environment"
	KeyLogLevel          = "log_level"
	KeyLogFile           = "log_file"
	KeyTrustedProxies    = "trusted_proxies"
	KeyAdminToken        = "x_admin_token"
	KeyJWTSecret         = "jwt_secret"
	KeyJWTIssuer         = "jwt_issuer"
	KeyAccessTokenTTL    = "access_token_ttl"
	KeyEmailLookupPepper = "email_lookup_pepper"
	KeyIPLookupPepper    = "ip_lookup_pepper"
	KeyContentKey        = "content_enc_key"
	KeyMaxBodyLength     = "max_body_length"
	KeyMetricsWindow     = "metrics_window"
	KeyWriteRateRPS      = "write_rate_rps"
	KeyWriteRateBurst    = "write_rate_burst"
	KeyAutoHideThreshold = "auto_hide_threshold"
	KeyLastFlagsLimit    = "last_flags_limit"
	KeyPendingLimit      = "pending_limit"
	KeyKeywords          = "moderation_keywords"
	KeyRecencyWeight     = "rank_recency_weight"
	KeyHalfLife          = "rank_half_life"
	KeyFlagPenalty       = "rank_flag_penalty"
	KeyKindnessCap       = "rank_kindness_cap"
	KeyKindnessScale     = "rank_kindness_scale"
	KeyCandidateLimit    = "feed_candidate_limit"
	KeyReplyLimit        = "reply_limit"
	KeyBanIPv4Prefix     = "ban_ipv4_prefix"
	KeyBanIPv6Prefix     = "ban_ipv6_prefix"
	KeyBanRefresh        = "ban_refresh_interval"
)

// NewViper returns a viper instance holding every default and reading the
// environment. Callers may layer flags or a config file on top before FromViper.
func NewViper() *viper.Viper {
	def := Default()
	v := viper.New()
	v.SetDefault(KeyPort, def.Port)
	v.SetDefault(KeyDatabaseURL, def.DatabaseURL)
	v.SetDefault(KeyCORSOrigin, def.CORSOrigin)
	v.SetDefault(KeyEnvironment, def.Environment)
	v.SetDefault(KeyLogLevel, def.LogLevel)
	v.SetDefault(KeyLogFile, def.LogFile)
	v.SetDefault(KeyTrustedProxies, "")
	v.SetDefault(KeyAdminToken, "")
	v.SetDefault(KeyJWTSecret, "")
	v.SetDefault(KeyJWTIssuer, def.JWTIssuer)
	v.SetDefault(KeyAccessTokenTTL, def.AccessTokenTTL)
	v.SetDefault(KeyEmailLookupPepper, "")
	v.SetDefault(KeyIPLookupPepper, "")
	v.SetDefault(KeyContentKey, "")
	v.SetDefault(KeyMaxBodyLength, def.MaxBodyLength)
	v.SetDefault(KeyMetricsWindow, def.MetricsWindow)
	v.SetDefault(KeyWriteRateRPS, def.WriteRateRPS)
	v.SetDefault(KeyWriteRateBurst, def.WriteRateBurst)
	v.SetDefault(KeyAutoHideThreshold, def.Moderation.AutoHideThreshold)
	v.SetDefault(KeyLastFlagsLimit, def.Moderation.LastFlagsLimit)
	v.SetDefault(KeyPendingLimit, def.Moderation.PendingLimit)
	v.SetDefault(KeyKeywords, strings.Join(def.Moderation.Keywords, ","))
	v.SetDefault(KeyRecencyWeight, def.Ranking.RecencyWeight)
	v.SetDefault(KeyHalfLife, def.Ranking.HalfLife)
	v.SetDefault(KeyFlagPenalty, def.Ranking.FlagPenalty)
	v.SetDefault(KeyKindnessCap, def.Ranking.KindnessCap)
	v.SetDefault(KeyKindnessScale, def.Ranking.KindnessScale)
	v.SetDefault(KeyCandidateLimit, def.Ranking.CandidateLimit)
	v.SetDefault(KeyReplyLimit, def.Ranking.ReplyLimit)
	v.SetDefault(KeyBanIPv4Prefix, def.Bans.IPv4PrefixLen)
	v.SetDefault(KeyBanIPv6Prefix, def.Bans.IPv6PrefixLen)
	v.SetDefault(KeyBanRefresh, def.Bans.RefreshInterval)
	v.AutomaticEnv()
	return v
}

// FromViper builds a Config from v without validating it. Every malformed
// value is reported, not just the first.
func FromViper(v *viper.Viper) (Config, error) {
	r := reader{v: v}
	cfg := Config{
		Port:           v.GetString(KeyPort),
		DatabaseURL:    v.GetString(KeyDatabaseURL),
		CORSOrigin:     v.GetString(KeyCORSOrigin),
		Environment:    v.GetString(KeyEnvironment),
		LogLevel:       v.GetString(KeyLogLevel),
		LogFile:        v.GetString(KeyLogFile),
		TrustedProxies: r.getList(KeyTrustedProxies),

		AdminToken:        v.GetString(KeyAdminToken),
		JWTSecret:         v.GetString(KeyJWTSecret),
		JWTIssuer:         v.GetString(KeyJWTIssuer),
		AccessTokenTTL:    r.getDuration(KeyAccessTokenTTL),
		EmailLookupPepper: v.GetString(KeyEmailLookupPepper),
		IPLookupPepper:    v.GetString(KeyIPLookupPepper),
		ContentKey:        v.GetString(KeyContentKey),

		MaxBodyLength:  r.getInt(KeyMaxBodyLength),
		MetricsWindow:  r.getInt(KeyMetricsWindow),
		WriteRateRPS:   r.getFloat(KeyWriteRateRPS),
		WriteRateBurst: r.getInt(KeyWriteRateBurst),

		Moderation: Moderation{
			AutoHideThreshold: r.getInt(KeyAutoHideThreshold),
			LastFlagsLimit:    r.getInt(KeyLastFlagsLimit),
			PendingLimit:      r.getInt(KeyPendingLimit),
			Keywords:          r.getList(KeyKeywords),
		},
		Ranking: Ranking{
			RecencyWeight:  r.getFloat(KeyRecencyWeight),
			HalfLife:       r.getDuration(KeyHalfLife),
			FlagPenalty:    r.getFloat(KeyFlagPenalty),
			KindnessCap:    r.getFloat(KeyKindnessCap),
			KindnessScale:  r.getFloat(KeyKindnessScale),
			CandidateLimit: r.getInt(KeyCandidateLimit),
			ReplyLimit:     r.getInt(KeyReplyLimit),
		},
		Bans: Bans{
			IPv4PrefixLen:   r.getInt(KeyBanIPv4Prefix),
			IPv6PrefixLen:   r.getInt(KeyBanIPv6Prefix),
			RefreshInterval: r.getDuration(KeyBanRefresh),
		},
	}
	if cfg.EmailLookupPepper == "" {
		cfg.EmailLookupPepper = cfg.JWTSecret
	}
	if cfg.IPLookupPepper == "" {
		cfg.IPLookupPepper = cfg.EmailLookupPepper
	}
	return cfg, errors.Join(r.errs...)
}

// Load reads the environment on top of Default and validates the result.
// godotenv is expected to have populated the environment already.
func Load() (Config, error) {
	cfg, err := FromViper(NewViper())
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate fails closed on missing secrets and rejects coefficients that would
// break the ranking monotonicity contract.
func (c Config) Validate() error {
	var errs []error
	if c.AdminToken == "" {
		errs = append(errs, errors.New("X_ADMIN_TOKEN must be set"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET must be set"))
	}
	if c.ContentKey == "" {
		errs = append(errs, errors.New("CONTENT_ENC_KEY must be set"))
	} else if _, err := seal.FromBase64(c.ContentKey); err != nil {
		errs = append(errs, fmt.Errorf("CONTENT_ENC_KEY: %w", err))
	}
	if c.AccessTokenTTL <= 0 {
		errs = append(errs, errors.New("ACCESS_TOKEN_TTL must be positive"))
	}
	if c.MaxBodyLength < 1 {
		errs = append(errs, errors.New("MAX_BODY_LENGTH must be at least 1"))
	}
	if c.MetricsWindow < 1 {
		errs = append(errs, errors.New("METRICS_WINDOW must be at least 1"))
	}
	if c.WriteRateRPS <= 0 || c.WriteRateBurst < 1 {
		errs = append(errs, errors.New("WRITE_RATE_RPS and WRITE_RATE_BURST must be positive"))
	}
	if c.Moderation.AutoHideThreshold < 1 {
		errs = append(errs, errors.New("AUTO_HIDE_THRESHOLD must be at least 1"))
	}
	if c.Moderation.LastFlagsLimit < 1 || c.Moderation.PendingLimit < 1 {
		errs = append(errs, errors.New("LAST_FLAGS_LIMIT and PENDING_LIMIT must be at least 1"))
	}
	r := c.Ranking
	if r.RecencyWeight <= 0 {
		errs = append(errs, errors.New("RANK_RECENCY_WEIGHT must be positive"))
	}
	if r.HalfLife <= 0 {
		errs = append(errs, errors.New("RANK_HALF_LIFE must be positive"))
	}
	if r.FlagPenalty <= 0 {
		errs = append(errs, errors.New("RANK_FLAG_PENALTY must be positive"))
	}
	if r.KindnessCap <= 0 || r.KindnessScale <= 0 {
		errs = append(errs, errors.New("RANK_KINDNESS_CAP and RANK_KINDNESS_SCALE must be positive"))
	}
	if r.CandidateLimit < 1 || r.ReplyLimit < 1 {
		errs = append(errs, errors.New("FEED_CANDIDATE_LIMIT and REPLY_LIMIT must be at least 1"))
	}
	if c.Bans.IPv4PrefixLen < 1 || c.Bans.IPv4PrefixLen > 32 {
		errs = append(errs, fmt.Errorf("BAN_IPV4_PREFIX %d out of range 1..32", c.Bans.IPv4PrefixLen))
	}
	if c.Bans.IPv6PrefixLen < 1 || c.Bans.IPv6PrefixLen > 128 {
		errs = append(errs, fmt.Errorf("BAN_IPV6_PREFIX %d out of range 1..128", c.Bans.IPv6PrefixLen))
	}
	if c.Bans.RefreshInterval <= 0 {
		errs = append(errs, errors.New("BAN_REFRESH_INTERVAL must be positive"))
	}
	return errors.Join(errs...)
}

// ContentBox opens the key in ContentKey.
func (c Config) ContentBox() (*seal.Box, error) {
	box, err := seal.FromBase64(c.ContentKey)
	if err != nil {
		return nil, fmt.Errorf("CONTENT_ENC_KEY: %w", err)
	}
	return box, nil
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// reader collects conversion errors keyed by environment variable name.
type reader struct {
	v    *viper.Viper
	errs []error
}

func (r *reader) fail(key string, err error) {
	r.errs = append(r.errs, fmt.Errorf("%s: %w", strings.ToUpper(key), err))
}

func (r *reader) getInt(key string) int {
	n, err := cast.ToIntE(r.v.Get(key))
	if err != nil {
		r.fail(key, err)
	}
	return n
}

func (r *reader) getFloat(key string) float64 {
	f, err := cast.ToFloat64E(r.v.Get(key))
	if err != nil {
		r.fail(key, err)
	}
	return f
}

func (r *reader) getDuration(key string) time.Duration {
	d, err := cast.ToDurationE(r.v.Get(key))
	if err != nil {
		r.fail(key, err)
	}
	return d
}

// getList accepts a comma separated string (environment) or a list (config file).
// Entries are trimmed and lower-cased; empty ones are dropped.
func (r *reader) getList(key string) []string {
	raw := r.v.Get(key)
	if s, ok := raw.(string); ok {
		return splitList(s)
	}
	items, err := cast.ToStringSliceE(raw)
	if err != nil {
		r.fail(key, err)
		return nil
	}
	return splitList(strings.Join(items, ","))
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
