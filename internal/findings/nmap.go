// internal/findings/nmap.go
package findings

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pentestd/api/schemas"
)

// NmapSource turns existing nmap XML output (`nmap -oX`) into findings. It
// reads <dir>/<target>.xml and maps every open port to the catalog entry that
// describes its service. Open ports with no catalog entry are reported as a
// low severity exposure.
type NmapSource struct {
	dir     string
	catalog []schemas.Finding
	logger  *zap.Logger
	now     func() time.Time
}

// NewNmapSource creates a source reading from dir. A leading ~ is expanded.
func NewNmapSource(dir string, logger *zap.Logger) (*NmapSource, error) {
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand nmap directory %q: %w", dir, err)
	}
	catalog, err := DefaultCatalog()
	if err != nil {
		return nil, err
	}
	return &NmapSource{
		dir:     expanded,
		catalog: catalog,
		logger:  logger.Named("nmap_source"),
		now:     time.Now,
	}, nil
}

// FindFindings implements schemas.FindingSource. The scan type does not limit
// imported results; the scanner that produced the file already decided depth.
func (s *NmapSource) FindFindings(ctx context.Context, target string, scanType schemas.ScanType) ([]schemas.Finding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if target == "" || target != filepath.Base(target) || strings.Contains(target, "..") {
		return nil, fmt.Errorf("%w: target %q cannot name an nmap file", schemas.ErrSource, target)
	}

	path := filepath.Join(s.dir, target+".xml")
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: no nmap output for %s at %s", schemas.ErrSource, target, path)
		}
		return nil, fmt.Errorf("%w: reading %s: %v", schemas.ErrSource, path, err)
	}

	findings, err := s.parse(data, target)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Imported nmap results",
		zap.String("target", target),
		zap.String("scan_type", string(scanType)),
		zap.String("path", path),
		zap.Int("findings", len(findings)))
	return findings, nil
}

type openPort struct {
	port    int
	proto   string
	service string
}

func (s *NmapSource) parse(data []byte, target string) ([]schemas.Finding, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("%w: malformed nmap XML: %v", schemas.ErrSource, err)
	}
	root := doc.SelectElement("nmaprun")
	if root == nil {
		return nil, fmt.Errorf("%w: missing <nmaprun> root element", schemas.ErrSource)
	}

	var ports []openPort
	for _, el := range root.FindElements("./host/ports/port") {
		state := el.SelectElement("state")
		if state == nil || state.SelectAttrValue("state", "") != "open" {
			continue
		}
		portID, err := strconv.Atoi(el.SelectAttrValue("portid", ""))
		if err != nil || portID < 0 || portID > 65535 {
			s.logger.Warn("Skipping port with invalid portid", zap.String("portid", el.SelectAttrValue("portid", "")))
			continue
		}
		service := ""
		if svc := el.SelectElement("service"); svc != nil {
			service = strings.ToLower(svc.SelectAttrValue("name", ""))
			if svc.SelectAttrValue("tunnel", "") == "ssl" && service == "http" {
				service = "https"
			}
		}
		if service == "" {
			service = "unknown"
		}
		ports = append(ports, openPort{port: portID, proto: el.SelectAttrValue("protocol", "tcp"), service: service})
	}

	discovered := s.now()
	out := make([]schemas.Finding, 0, len(ports))
	for _, p := range ports {
		f := s.match(p)
		f.Target = target
		f.DiscoveredAt = discovered
		out = append(out, f)
	}
	return out, nil
}

// match picks the catalog entry for the service, falling back to the port.
func (s *NmapSource) match(p openPort) schemas.Finding {
	for _, e := range s.catalog {
		if e.Service == p.service {
			e.Port = p.port
			return e
		}
	}
	for _, e := range s.catalog {
		if e.Port == p.port {
			e.Service = p.service
			return e
		}
	}
	return schemas.Finding{
		Name:        fmt.Sprintf("Exposed %s Service", strings.ToUpper(p.service)),
		Description: fmt.Sprintf("Port %d/%s is open and running %s", p.port, p.proto, p.service),
		Severity:    schemas.SeverityLow,
		Port:        p.port,
		Service:     p.service,
	}
}
