package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source kinds
const (
	SourceCSV         = "csv"
	SourcePremiumkino = "premiumkino"
	SourceHTML        = "html"
)

// SourcesFile is the document stored in sources.yaml
type SourcesFile struct {
	Sources []Source `yaml:"sources"`
}

// Source describes one cinema website and how to read it
type Source struct {
	Kind     string     `yaml:"kind"`
	Disabled bool       `yaml:"disabled"`
	Cinema   CinemaSpec `yaml:"cinema"`

	SpecialEventMarkers []string `yaml:"specialEventMarkers"`
	Ignore              []string `yaml:"ignore"`

	// csv: file path or http(s) URL; premiumkino: site base URL; html: programme page URL
	URL string `yaml:"url"`

	// Only used by html sources
	Selectors HTMLSelectors `yaml:"selectors"`
}

// CinemaSpec is the cinema a source imports into
type CinemaSpec struct {
	Name             string `yaml:"name"`
	Website          string `yaml:"website"`
	Color            string `yaml:"color"`
	ReliableMetadata bool   `yaml:"reliableMetadata"`
	LinkToShop       bool   `yaml:"linkToShop"`
}

// HTMLSelectors locate showing fields on a programme page.
// Each row element yields one showing; the other selectors are relative to it.
type HTMLSelectors struct {
	Row        string `yaml:"row"`
	Date       string `yaml:"date"`
	Time       string `yaml:"time"`
	Title      string `yaml:"title"`
	Link       string `yaml:"link"`
	Hint       string `yaml:"hint"`
	DateLayout string `yaml:"dateLayout"` // Go layout, default 02.01.2006
	TimeLayout string `yaml:"timeLayout"` // Go layout, default 15:04
}

// LoadSources reads the source definitions. A missing file yields no sources.
func LoadSources(path string) ([]Source, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}

	return ParseSources(data)
}

// ParseSources decodes and validates a sources document, dropping disabled sources
func ParseSources(data []byte) ([]Source, error) {
	var file SourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse sources file: %w", err)
	}

	seen := make(map[string]bool)
	var sources []Source
	for i, source := range file.Sources {
		if source.Disabled {
			continue
		}
		if err := source.validate(); err != nil {
			return nil, fmt.Errorf("source %d: %w", i+1, err)
		}
		name := strings.ToLower(source.Cinema.Name)
		if seen[name] {
			return nil, fmt.Errorf("source %d: duplicate cinema %q", i+1, source.Cinema.Name)
		}
		seen[name] = true
		sources = append(sources, source)
	}

	return sources, nil
}

func (s *Source) validate() error {
	if strings.TrimSpace(s.Cinema.Name) == "" {
		return fmt.Errorf("cinema name is required")
	}
	if s.URL == "" {
		return fmt.Errorf("url is required for %s", s.Cinema.Name)
	}
	if s.Cinema.Website == "" {
		s.Cinema.Website = s.URL
	}

	switch s.Kind {
	case SourceCSV, SourcePremiumkino:
	case SourceHTML:
		if s.Selectors.Row == "" || s.Selectors.Time == "" || s.Selectors.Title == "" {
			return fmt.Errorf("html source %s needs row, time and title selectors", s.Cinema.Name)
		}
		if s.Selectors.DateLayout == "" {
			s.Selectors.DateLayout = "02.01.2006"
		}
		if s.Selectors.TimeLayout == "" {
			s.Selectors.TimeLayout = "15:04"
		}
	default:
		return fmt.Errorf("unknown source kind %q for %s", s.Kind, s.Cinema.Name)
	}

	return nil
}
