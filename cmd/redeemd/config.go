// cmd/redeemd/config.go
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redeemly/redeemd/internal/ocr"
)

type config struct {
	NATSURL       string
	SourceKind    string
	SourceSubject string
	ResultSubject string

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	PoolSize       int
	WebDriverURL   string
	RedeemURL      string
	ConfirmTimeout time.Duration
	SettleDelay    time.Duration
	DryRun         bool
	Headless       bool

	ProfileDir string
	OutcomeLog string
	OpsAddr    string

	Crop ocr.CropRegion
}

func loadConfig() (config, error) {
	cfg := config{
		NATSURL:       getenv("NATS_URL", "nats://127.0.0.1:4222"),
		SourceKind:    getenv("SOURCE_KIND", "nats"),
		SourceSubject: getenv("SOURCE_SUBJECT", "images.incoming"),
		ResultSubject: getenv("RESULT_SUBJECT", "redemptions.done"),
		KafkaTopic:    getenv("KAFKA_TOPIC", "images.incoming"),
		KafkaGroupID:  getenv("KAFKA_GROUP_ID", "redeemd"),
		WebDriverURL:  getenv("WEBDRIVER_URL", "http://127.0.0.1:9515"),
		RedeemURL:     getenv("REDEEM_URL_TEMPLATE", "https://play.google.com/redeem?code=%s"),
		DryRun:        getenvBool("DRY_RUN", false),
		Headless:      getenvBool("HEADLESS", true),
		ProfileDir:    getenv("PROFILE_DIR", "./data/profiles"),
		OutcomeLog:    getenv("OUTCOME_LOG", "./data/codes.txt"),
		OpsAddr:       getenv("OPS_ADDR", ":9091"),
	}

	if cfg.SourceKind != "nats" && cfg.SourceKind != "kafka" {
		return config{}, fmt.Errorf("invalid SOURCE_KIND %q (want nats or kafka)", cfg.SourceKind)
	}
	if strings.Count(cfg.RedeemURL, "%s") != 1 {
		return config{}, fmt.Errorf("REDEEM_URL_TEMPLATE must contain exactly one %%s placeholder")
	}

	cfg.KafkaBrokers = splitList(getenv("KAFKA_BROKERS", "127.0.0.1:9092"))

	size, err := parsePositiveInt(getenv("POOL_SIZE", "3"), "POOL_SIZE")
	if err != nil {
		return config{}, err
	}
	cfg.PoolSize = size

	cfg.ConfirmTimeout, err = parseDuration(getenv("CONFIRM_TIMEOUT", "20s"), "CONFIRM_TIMEOUT")
	if err != nil {
		return config{}, err
	}
	cfg.SettleDelay, err = parseDuration(getenv("SETTLE_DELAY", "3s"), "SETTLE_DELAY")
	if err != nil {
		return config{}, err
	}

	cfg.Crop, err = loadCropRegion()
	if err != nil {
		return config{}, err
	}

	return cfg, nil
}

func loadCropRegion() (ocr.CropRegion, error) {
	crop := ocr.DefaultCropRegion()
	for _, f := range []struct {
		env string
		dst *float64
	}{
		{"CROP_TOP", &crop.Top},
		{"CROP_BOTTOM", &crop.Bottom},
		{"CROP_LEFT", &crop.Left},
		{"CROP_RIGHT", &crop.Right},
	} {
		raw := getenv(f.env, "")
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return ocr.CropRegion{}, fmt.Errorf("invalid %s: %w", f.env, err)
		}
		*f.dst = v
	}
	return crop, nil
}

func parsePositiveInt(value string, name string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero (got %d)", name, v)
	}
	return v, nil
}

func parseDuration(value string, name string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative (got %s)", name, d)
	}
	return d, nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getenvBool(key string, defaultValue bool) bool {
	val := getenv(key, "")
	if val == "" {
		return defaultValue
	}
	return val == "true"
}
