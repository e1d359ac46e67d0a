// Package conninfo turns a libpq-style connect string into the per-instance
// connection targets the collector monitors. Unlike default libpq behavior,
// a comma-separated host list does not mean "try until one answers": every
// host/port pair becomes its own monitored instance.
package conninfo

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgpassfile"
	"github.com/jackc/pgservicefile"
	"github.com/jackc/pgx/v5"
)

var (
	// ErrHostPortMismatch is returned when the host and port lists cannot
	// be mapped index-wise.
	ErrHostPortMismatch = errors.New("cannot specify less or more ports than hosts")
	// ErrNoTargets is returned when parsing yields no connection target.
	ErrNoTargets = errors.New("no connection targets")
)

// Env carries the environment values the caller chose to pass through.
// This package never reads the process environment itself.
type Env map[string]string

func (e Env) get(key, fallback string) string {
	if v, ok := e[key]; ok && v != "" {
		return v
	}
	return fallback
}

// Target is one instance's connection parameters.
type Target struct {
	Host     string
	Port     uint16
	Settings map[string]string // remaining parameters: user, dbname, sslmode, ...
	Password string
}

// Label is the stable display name for the target.
func (t Target) Label() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// ConnString renders the target as a keyword/value connect string, password
// included.
func (t Target) ConnString() string {
	keys := make([]string, 0, len(t.Settings))
	for k := range t.Settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := []string{
		"host=" + quoteSetting(t.Host),
		fmt.Sprintf("port=%d", t.Port),
	}
	for _, k := range keys {
		parts = append(parts, k+"="+quoteSetting(t.Settings[k]))
	}
	if t.Password != "" {
		parts = append(parts, "password="+quoteSetting(t.Password))
	}
	return strings.Join(parts, " ")
}

// ConnConfig builds the driver configuration for this target.
func (t Target) ConnConfig() (*pgx.ConnConfig, error) {
	cfg, err := pgx.ParseConfig(t.ConnString())
	if err != nil {
		return nil, fmt.Errorf("target %s: %w", t.Label(), err)
	}
	return cfg, nil
}

// Cluster is the full set of targets for one run.
type Cluster struct {
	Targets []Target
}

// Parse expands a connect string into one target per host/port pair. A
// single port is broadcast across all hosts; otherwise the lists must match
// index-wise. Credentials resolve from the connect string, then the passed
// environment, then the password file.
func Parse(connstr string, env Env) (*Cluster, error) {
	settings, err := parseSettings(connstr)
	if err != nil {
		return nil, err
	}

	if service := settings["service"]; service != "" {
		if err := mergeService(settings, service, env); err != nil {
			return nil, err
		}
		delete(settings, "service")
	}

	hostList := settings["host"]
	if hostList == "" {
		hostList = env.get("PGHOST", "localhost")
	}
	portList := settings["port"]
	if portList == "" {
		portList = env.get("PGPORT", "5432")
	}
	delete(settings, "host")
	delete(settings, "port")

	if settings["user"] == "" {
		settings["user"] = env.get("PGUSER", "postgres")
	}
	if settings["dbname"] == "" {
		settings["dbname"] = env.get("PGDATABASE", "postgres")
	}

	password := settings["password"]
	delete(settings, "password")
	if password == "" {
		password = env["PGPASSWORD"]
	}

	hosts := strings.Split(hostList, ",")
	ports := strings.Split(portList, ",")
	if len(hosts) > 1 && len(ports) == 1 {
		ports = repeat(ports[0], len(hosts))
	}
	if len(hosts) != len(ports) {
		return nil, ErrHostPortMismatch
	}

	cluster := &Cluster{}
	seen := make(map[string]bool)
	for i := range hosts {
		host := strings.TrimSpace(hosts[i])
		if host == "" {
			return nil, fmt.Errorf("%w: empty host at position %d", ErrNoTargets, i)
		}
		port, err := parsePort(strings.TrimSpace(ports[i]))
		if err != nil {
			return nil, err
		}

		t := Target{
			Host:     host,
			Port:     port,
			Settings: copySettings(settings),
			Password: password,
		}
		if t.Password == "" {
			t.Password = passfileLookup(env, t)
		}
		if seen[t.Label()] {
			continue
		}
		seen[t.Label()] = true
		cluster.Targets = append(cluster.Targets, t)
	}

	if len(cluster.Targets) == 0 {
		return nil, ErrNoTargets
	}
	return cluster, nil
}

// mergeService fills settings from a pg_service.conf section, without
// overriding anything given explicitly.
func mergeService(settings map[string]string, name string, env Env) error {
	path := env.get("PGSERVICEFILE", "")
	if path == "" {
		home := env.get("HOME", "")
		if home == "" {
			return fmt.Errorf("service %q: no PGSERVICEFILE or HOME to locate pg_service.conf", name)
		}
		path = filepath.Join(home, ".pg_service.conf")
	}

	sf, err := pgservicefile.ReadServicefile(path)
	if err != nil {
		return fmt.Errorf("service file %s: %w", path, err)
	}
	svc, err := sf.GetService(name)
	if err != nil {
		return fmt.Errorf("service %q not found in %s: %w", name, path, err)
	}
	for k, v := range svc.Settings {
		if _, ok := settings[k]; !ok {
			settings[k] = v
		}
	}
	return nil
}

// passfileLookup consults ~/.pgpass (or PGPASSFILE) for the target. A
// missing or unreadable file simply yields no password.
func passfileLookup(env Env, t Target) string {
	path := env.get("PGPASSFILE", "")
	if path == "" {
		home := env.get("HOME", "")
		if home == "" {
			return ""
		}
		path = filepath.Join(home, ".pgpass")
	}
	passfile, err := pgpassfile.ReadPassfile(path)
	if err != nil {
		return ""
	}
	return passfile.FindPassword(t.Host, strconv.Itoa(int(t.Port)), t.Settings["dbname"], t.Settings["user"])
}

// parseSettings accepts both keyword/value strings and postgres:// URLs.
func parseSettings(connstr string) (map[string]string, error) {
	connstr = strings.TrimSpace(connstr)
	if strings.HasPrefix(connstr, "postgres://") || strings.HasPrefix(connstr, "postgresql://") {
		return parseURL(connstr)
	}
	return parseKeywordValue(connstr)
}

func parseURL(connstr string) (map[string]string, error) {
	u, err := url.Parse(connstr)
	if err != nil {
		return nil, fmt.Errorf("invalid connection url: %w", err)
	}

	settings := make(map[string]string)
	if u.User != nil {
		settings["user"] = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			settings["password"] = pw
		}
	}
	if db := strings.TrimPrefix(u.Path, "/"); db != "" {
		settings["dbname"] = db
	}
	for k, vs := range u.Query() {
		if len(vs) > 0 {
			settings[k] = vs[0]
		}
	}

	// Multi-host URLs carry the comma list in the authority part. Split it
	// here so host and port become parallel lists.
	if u.Host != "" {
		var hosts, ports []string
		for _, hp := range strings.Split(u.Host, ",") {
			host, port, err := net.SplitHostPort(hp)
			if err != nil {
				hosts = append(hosts, hp)
				ports = append(ports, "")
				continue
			}
			hosts = append(hosts, host)
			ports = append(ports, port)
		}
		settings["host"] = strings.Join(hosts, ",")
		if anyNonEmpty(ports) {
			for i, p := range ports {
				if p == "" {
					ports[i] = "5432"
				}
			}
			settings["port"] = strings.Join(ports, ",")
		}
	}
	return settings, nil
}

// parseKeywordValue parses "host=a port=5432 user='some one'" style strings.
func parseKeywordValue(connstr string) (map[string]string, error) {
	settings := make(map[string]string)
	s := connstr
	for len(s) > 0 {
		s = strings.TrimLeft(s, " \t\n")
		if s == "" {
			break
		}
		eq := strings.IndexByte(s, '=')
		if eq <= 0 {
			return nil, fmt.Errorf("invalid connection string near %q", s)
		}
		key := strings.TrimRight(s[:eq], " \t")
		s = strings.TrimLeft(s[eq+1:], " \t")

		var value string
		if strings.HasPrefix(s, "'") {
			var b strings.Builder
			i := 1
			for ; i < len(s); i++ {
				if s[i] == '\\' && i+1 < len(s) {
					i++
					b.WriteByte(s[i])
					continue
				}
				if s[i] == '\'' {
					break
				}
				b.WriteByte(s[i])
			}
			if i >= len(s) {
				return nil, fmt.Errorf("unterminated quoted value for %q", key)
			}
			value = b.String()
			s = s[i+1:]
		} else {
			end := strings.IndexAny(s, " \t\n")
			if end == -1 {
				value, s = s, ""
			} else {
				value, s = s[:end], s[end:]
			}
		}
		settings[key] = value
	}
	return settings, nil
}

func quoteSetting(v string) string {
	if v != "" && !strings.ContainsAny(v, " '\\\t\n") {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

func parsePort(s string) (uint16, error) {
	p, err := strconv.ParseUint(s, 10, 16)
	if err != nil || p == 0 {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return uint16(p), nil
}

func copySettings(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func repeat(v string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func anyNonEmpty(ss []string) bool {
	for _, s := range ss {
		if s != "" {
			return true
		}
	}
	return false
}
