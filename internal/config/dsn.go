package config

import (
	"fmt"
	"net"
	neturl "net/url"
	"strconv"
)

// DSNValue returns the connection string for the configured driver: a MySQL
// DSN, or the database file path for sqlite. An explicit dsn wins.
func (c DatabaseRuntimeConfig) DSNValue() string {
	c = normalizeDatabaseConfig(c)
	if c.DSN != "" {
		return c.DSN
	}
	if c.Driver == DriverSQLite {
		return c.Path
	}

	params := neturl.Values{}
	for k, v := range c.Params {
		params.Set(k, v)
	}
	setDefault(params, "charset", c.Charset)
	setDefault(params, "parseTime", strconv.FormatBool(c.ParseTime))
	setDefault(params, "loc", c.Loc)

	dsn := fmt.Sprintf("%s:%s@tcp(%s)/%s", c.User, c.Password, net.JoinHostPort(c.Host, strconv.Itoa(c.Port)), c.Name)
	if query := params.Encode(); query != "" {
		dsn += "?" + query
	}
	return dsn
}

// URLValue returns a redis:// or rediss:// URL for go-redis. An explicit
// url wins.
func (c RedisRuntimeConfig) URLValue() string {
	c = normalizeRedisConfig(c)
	if c.URL != "" {
		return c.URL
	}

	u := &neturl.URL{
		Scheme: c.Scheme,
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + strconv.Itoa(c.DB),
	}
	switch {
	case c.Username != "" && c.Password == "":
		u.User = neturl.User(c.Username)
	case c.Username != "" || c.Password != "":
		u.User = neturl.UserPassword(c.Username, c.Password)
	}
	if len(c.Params) > 0 {
		query := neturl.Values{}
		for k, v := range c.Params {
			query.Set(k, v)
		}
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func setDefault(values neturl.Values, key, value string) {
	if values.Get(key) == "" && value != "" {
		values.Set(key, value)
	}
}
