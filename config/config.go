// Package config parses capone's INI-shaped configuration file: a
// sequence of "[section]" headers followed by "key=value" lines. The
// format is fixed by the wire-level specification this module
// implements, not left to a library's own schema.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/capone-project/capone/errs"
	"github.com/capone-project/capone/identity"
)

// Core holds the [core] section: the daemon's own identity and
// advertised name.
type Core struct {
	PublicKey identity.SignPublic
	SecretKey identity.SignSecret
	HasSecret bool
	Name      string
}

// Service holds one [service] block: a single exposed service.
type Service struct {
	Name     string
	Type     string
	Location string
	Port     string
}

// Xpra holds the [xpra] section consulted by the screen-share plugin.
type Xpra struct {
	Port string
}

// Admin holds the optional [admin] section: a read-only status HTTP
// endpoint. Empty Port means the endpoint is disabled.
type Admin struct {
	Port string
}

// Config is the fully parsed configuration file.
type Config struct {
	Core     Core
	Services []Service
	Xpra     Xpra
	Admin    Admin
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.Io, "config: open", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads an INI-shaped configuration stream.
func Parse(r io.Reader) (*Config, error) {
	cfg := &Config{}

	var (
		section     string
		cur         *Service
		haveCore    bool
		corePub     string
		coreSecret  string
	)

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		if strings.HasPrefix(line, "[") {
			if !strings.HasSuffix(line, "]") {
				return nil, errs.New(errs.Config, fmt.Sprintf("config: line %d: malformed section header", lineNo))
			}
			section = strings.TrimSpace(line[1 : len(line)-1])
			switch section {
			case "core":
				haveCore = true
			case "service":
				cfg.Services = append(cfg.Services, Service{})
				cur = &cfg.Services[len(cfg.Services)-1]
			case "xpra":
				cur = nil
			case "admin":
				cur = nil
			default:
				return nil, errs.New(errs.Config, fmt.Sprintf("config: line %d: unknown section %q", lineNo, section))
			}
			continue
		}

		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			return nil, errs.New(errs.Config, fmt.Sprintf("config: line %d: expected key=value", lineNo))
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])

		switch section {
		case "core":
			switch key {
			case "public_key":
				corePub = value
			case "secret_key":
				coreSecret = value
			case "name":
				cfg.Core.Name = value
			default:
				return nil, errs.New(errs.Config, fmt.Sprintf("config: line %d: unknown core key %q", lineNo, key))
			}
		case "service":
			if cur == nil {
				return nil, errs.New(errs.Config, fmt.Sprintf("config: line %d: key outside any service block", lineNo))
			}
			switch key {
			case "name":
				cur.Name = value
			case "type":
				cur.Type = value
			case "location":
				cur.Location = value
			case "port":
				cur.Port = value
			default:
				return nil, errs.New(errs.Config, fmt.Sprintf("config: line %d: unknown service key %q", lineNo, key))
			}
		case "xpra":
			switch key {
			case "port":
				cfg.Xpra.Port = value
			default:
				return nil, errs.New(errs.Config, fmt.Sprintf("config: line %d: unknown xpra key %q", lineNo, key))
			}
		case "admin":
			switch key {
			case "port":
				cfg.Admin.Port = value
			default:
				return nil, errs.New(errs.Config, fmt.Sprintf("config: line %d: unknown admin key %q", lineNo, key))
			}
		default:
			return nil, errs.New(errs.Config, fmt.Sprintf("config: line %d: key=value before any section", lineNo))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.Wrap(errs.Io, "config: scan", err)
	}

	if !haveCore {
		return nil, errs.New(errs.Config, "config: missing [core] section")
	}
	if corePub == "" {
		return nil, errs.New(errs.Config, "config: core.public_key is required")
	}
	pub, err := identity.ParseSignPublic(corePub)
	if err != nil {
		return nil, errs.Wrap(errs.Config, "config: core.public_key", err)
	}
	cfg.Core.PublicKey = pub

	if coreSecret != "" {
		secret, err := identity.ParseSignSecret(coreSecret)
		if err != nil {
			return nil, errs.Wrap(errs.Config, "config: core.secret_key", err)
		}
		cfg.Core.SecretKey = secret
		cfg.Core.HasSecret = true
	}

	if cfg.Admin.Port != "" {
		if _, err := strconv.Atoi(cfg.Admin.Port); err != nil {
			return nil, errs.New(errs.Config, "config: admin.port must be numeric")
		}
	}

	for i, svc := range cfg.Services {
		if svc.Name == "" || svc.Type == "" || svc.Port == "" {
			return nil, errs.New(errs.Config, fmt.Sprintf("config: service block %d missing name, type, or port", i))
		}
		if _, err := strconv.Atoi(svc.Port); err != nil {
			return nil, errs.New(errs.Config, fmt.Sprintf("config: service block %d: port must be numeric", i))
		}
	}

	return cfg, nil
}
