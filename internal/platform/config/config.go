package config

import (
	"os"
	"strconv"
	"time"
)

// Config captures all runtime configuration for the presence gateway.
// Every policy knob of the verification pipeline is explicit configuration,
// never a hidden default buried in gate logic.
type Config struct {
	Addr string

	// Gate 1: location policy.
	ReferenceLat       float64
	ReferenceLon       float64
	LocationThresholdM float64

	// Gate 2: texture policy. Variance inside [Min, Max] passes.
	TextureMinVariance float64
	TextureMaxVariance float64

	// Gate 3: liveness policy.
	EARThreshold       float64
	ChallengeTimeout   time.Duration
	MinClosedFrames    int
	BatchDropThreshold float64

	// Gate 4: identity policy.
	MatchThreshold float64

	// Collaborators and infrastructure.
	FaceServiceURL     string
	FaceServiceTimeout time.Duration
	DatabaseURL        string
	RedisAddr          string
	KafkaBrokers       string
	AuditTopic         string

	// Transport.
	JWTSigningKey    string
	EnrollAPIKeyHash string

	// Session hygiene.
	SessionSweepInterval time.Duration
	SessionIdleCutoff    time.Duration
}

// FromEnv builds a Config from environment variables so main stays lean.
// The location threshold default is 4000 m and the minimum consecutive
// closed-frame count defaults to 2; deployments that want the looser 5000 m /
// single-frame policy set them explicitly.
func FromEnv() Config {
	challengeTimeout := envDuration("PRESENCE_CHALLENGE_TIMEOUT", 3*time.Second)

	cfg := Config{
		Addr: envString("PRESENCE_ADDR", ":8080"),

		ReferenceLat:       envFloat("PRESENCE_REFERENCE_LAT", 10.5200),
		ReferenceLon:       envFloat("PRESENCE_REFERENCE_LON", 76.2100),
		LocationThresholdM: envFloat("PRESENCE_LOCATION_THRESHOLD_M", 4000),

		TextureMinVariance: envFloat("PRESENCE_TEXTURE_MIN_VARIANCE", 20),
		TextureMaxVariance: envFloat("PRESENCE_TEXTURE_MAX_VARIANCE", 250),

		EARThreshold:       envFloat("PRESENCE_EAR_THRESHOLD", 0.21),
		ChallengeTimeout:   challengeTimeout,
		MinClosedFrames:    envInt("PRESENCE_BLINK_MIN_CLOSED_FRAMES", 2),
		BatchDropThreshold: envFloat("PRESENCE_BATCH_DROP_THRESHOLD", 0.06),

		MatchThreshold: envFloat("PRESENCE_MATCH_THRESHOLD", 0.50),

		FaceServiceURL:     os.Getenv("PRESENCE_FACE_SERVICE_URL"),
		FaceServiceTimeout: envDuration("PRESENCE_FACE_SERVICE_TIMEOUT", 10*time.Second),
		DatabaseURL:        os.Getenv("PRESENCE_DATABASE_URL"),
		RedisAddr:          os.Getenv("PRESENCE_REDIS_ADDR"),
		KafkaBrokers:       os.Getenv("PRESENCE_KAFKA_BROKERS"),
		AuditTopic:         envString("PRESENCE_AUDIT_TOPIC", "presence.audit"),

		JWTSigningKey:    envString("PRESENCE_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		EnrollAPIKeyHash: os.Getenv("PRESENCE_ENROLL_API_KEY_HASH"),

		SessionSweepInterval: envDuration("PRESENCE_SESSION_SWEEP_INTERVAL", time.Minute),
		// Sessions idle for twice the challenge timeout are abandoned; the
		// sweep default keeps the map bounded without racing live challenges.
		SessionIdleCutoff: envDuration("PRESENCE_SESSION_IDLE_CUTOFF", 2*challengeTimeout),
	}

	return cfg
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
