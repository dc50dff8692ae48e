package listing

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultRoot             = "/goes/current/"
	DefaultSatellitePattern = `GOES-\d{2}`
	DefaultImagePattern     = `G\d{2}_[^"'<>\s/]+\.png`
)

// Conventions describes where the listings live and how satellite directories
// and image files are named.
type Conventions struct {
	Root             string
	SatellitePattern string
	ImagePattern     string

	satToken  *regexp.Regexp // whole token, e.g. ^(?:GOES-\d{2})$
	satHref   *regexp.Regexp // raw markup, e.g. href="(GOES-\d{2})/
	imageFind *regexp.Regexp
}

// conventionsFile is the YAML shape of the optional conventions file.
type conventionsFile struct {
	Root             string `yaml:"root"`
	SatellitePattern string `yaml:"satellite_pattern"`
	ImagePattern     string `yaml:"image_pattern"`
}

// DefaultConventions returns the GOES naming conventions.
func DefaultConventions() *Conventions {
	c, err := NewConventions(DefaultRoot, DefaultSatellitePattern, DefaultImagePattern)
	if err != nil {
		panic(err)
	}
	return c
}

// NewConventions compiles the given patterns. Empty values fall back to the
// defaults.
func NewConventions(root, satellitePattern, imagePattern string) (*Conventions, error) {
	if root == "" {
		root = DefaultRoot
	}
	if satellitePattern == "" {
		satellitePattern = DefaultSatellitePattern
	}
	if imagePattern == "" {
		imagePattern = DefaultImagePattern
	}

	c := &Conventions{
		Root:             normalizeRoot(root),
		SatellitePattern: satellitePattern,
		ImagePattern:     imagePattern,
	}

	var err error
	if c.satToken, err = regexp.Compile(`^(?:` + satellitePattern + `)$`); err != nil {
		return nil, fmt.Errorf("invalid satellite pattern %q: %w", satellitePattern, err)
	}
	if c.satHref, err = regexp.Compile(`href="(?P<sat>` + satellitePattern + `)/`); err != nil {
		return nil, fmt.Errorf("invalid satellite pattern %q: %w", satellitePattern, err)
	}
	if c.imageFind, err = regexp.Compile(imagePattern); err != nil {
		return nil, fmt.Errorf("invalid image pattern %q: %w", imagePattern, err)
	}

	return c, nil
}

// LoadConventions reads a YAML conventions file. Keys left out keep their
// default value.
func LoadConventions(filePath string) (*Conventions, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read conventions file: %w", err)
	}

	var f conventionsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse conventions yaml: %w", err)
	}

	return NewConventions(f.Root, f.SatellitePattern, f.ImagePattern)
}

// IsSatellite reports whether s is a complete satellite identifier.
func (c *Conventions) IsSatellite(s string) bool {
	return c.satToken.MatchString(s)
}

// normalizeRoot makes root start and end with a slash.
func normalizeRoot(root string) string {
	root = "/" + strings.Trim(root, "/") + "/"
	if root == "//" {
		return "/"
	}
	return root
}
