package config

import (
	"cmp"
	"strings"
)

func normalizeDatabaseConfig(cfg DatabaseRuntimeConfig) DatabaseRuntimeConfig {
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "mariadb":
		cfg.Driver = DriverMySQL
	case "sqlite3":
		cfg.Driver = DriverSQLite
	default:
		cfg.Driver = driver
	}
	cfg.DSN = strings.TrimSpace(cfg.DSN)
	cfg.Path = strings.TrimSpace(cfg.Path)
	if cfg.Driver == DriverSQLite {
		cfg.Path = cmp.Or(cfg.Path, defaultSQLitePath)
	}

	cfg.Host = cmp.Or(strings.TrimSpace(cfg.Host), defaultDBHost)
	cfg.Port = cmp.Or(cfg.Port, defaultDBPort)
	cfg.User = cmp.Or(strings.TrimSpace(cfg.User), defaultDBUser)
	cfg.Password = cmp.Or(strings.TrimSpace(cfg.Password), defaultDBPassword)
	cfg.Name = cmp.Or(strings.TrimSpace(cfg.Name), defaultDBName)
	cfg.Charset = cmp.Or(strings.TrimSpace(cfg.Charset), defaultDBCharset)
	cfg.Loc = cmp.Or(strings.TrimSpace(cfg.Loc), defaultDBLoc)
	cfg.Params = cleanParams(cfg.Params)
	return cfg
}

func normalizeRedisConfig(cfg RedisRuntimeConfig) RedisRuntimeConfig {
	cfg.URL = normalizeRedisRawURL(cfg.URL)
	cfg.Host = strings.TrimSpace(cfg.Host)
	if cfg.URL == "" {
		cfg.Host = cmp.Or(cfg.Host, defaultRedisHost)
	}
	cfg.Port = cmp.Or(cfg.Port, defaultRedisPort)
	if cfg.DB < 0 {
		cfg.DB = defaultRedisDB
	}
	cfg.Username = strings.TrimSpace(cfg.Username)
	cfg.Password = strings.TrimSpace(cfg.Password)

	cfg.Scheme = strings.ToLower(strings.TrimSpace(cfg.Scheme))
	if cfg.Scheme != "redis" && cfg.Scheme != "rediss" {
		cfg.Scheme = "redis"
		if cfg.TLS {
			cfg.Scheme = "rediss"
		}
	}
	cfg.Params = cleanParams(cfg.Params)
	return cfg
}

// normalizeRedisRawURL accepts bare "host:port/db" and adds the scheme.
func normalizeRedisRawURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	switch {
	case trimmed == "":
		return ""
	case strings.HasPrefix(trimmed, "redis://"), strings.HasPrefix(trimmed, "rediss://"):
		return trimmed
	}
	return "redis://" + trimmed
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(env string) string {
	return cmp.Or(strings.ToLower(strings.TrimSpace(env)), defaultEnv)
}

// cleanParams drops entries with a blank key or value. A nil map stays nil.
func cleanParams(input map[string]string) map[string]string {
	if input == nil {
		return nil
	}
	out := make(map[string]string, len(input))
	for key, value := range input {
		k, v := strings.TrimSpace(key), strings.TrimSpace(value)
		if k != "" && v != "" {
			out[k] = v
		}
	}
	return out
}

// normalizeAssignment trims a model assignment. A missing or blank one keeps
// current.
func normalizeAssignment(raw, current *AIModelAssignment) *AIModelAssignment {
	if raw == nil {
		return current
	}
	out := AIModelAssignment{
		ProviderID: strings.TrimSpace(raw.ProviderID),
		Model:      strings.TrimSpace(raw.Model),
	}
	if out.ProviderID == "" && out.Model == "" {
		return current
	}
	return &out
}
