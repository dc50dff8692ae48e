package listing

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoadConventions(t *testing.T) {
	tmpDir := t.TempDir()
	yamlPath := filepath.Join(tmpDir, "conventions.yaml")

	yamlContent := `---
root: himawari/latest
satellite_pattern: 'HIMAWARI-\d{1,2}'
image_pattern: 'H\d{2}_[^"<>\s/]+\.jpg'
`
	if err := os.WriteFile(yamlPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("Failed to create test YAML file: %v", err)
	}

	c, err := LoadConventions(yamlPath)
	if err != nil {
		t.Fatalf("LoadConventions() error = %v", err)
	}

	if c.Root != "/himawari/latest/" {
		t.Errorf("Root = %q, want /himawari/latest/", c.Root)
	}
	if !c.IsSatellite("HIMAWARI-9") {
		t.Error("IsSatellite(HIMAWARI-9) = false, want true")
	}
	if c.IsSatellite("GOES-16") {
		t.Error("IsSatellite(GOES-16) = true, want false")
	}

	page := []byte(`<a href="HIMAWARI-9/">x</a><a href="H09_fd_20240101T000000Z.jpg">y</a>`)
	if got := (PatternExtractor{}).Satellites(page, c); !reflect.DeepEqual(got, []string{"HIMAWARI-9"}) {
		t.Errorf("Satellites() = %v", got)
	}
	if got := (AnchorExtractor{}).Images(page, c); !reflect.DeepEqual(got, []string{"H09_fd_20240101T000000Z.jpg"}) {
		t.Errorf("Images() = %v", got)
	}
}

func TestLoadConventionsPartial(t *testing.T) {
	yamlPath := filepath.Join(t.TempDir(), "conventions.yaml")
	if err := os.WriteFile(yamlPath, []byte("root: /mirror/goes/\n"), 0o644); err != nil {
		t.Fatalf("Failed to create test YAML file: %v", err)
	}

	c, err := LoadConventions(yamlPath)
	if err != nil {
		t.Fatalf("LoadConventions() error = %v", err)
	}
	if c.SatellitePattern != DefaultSatellitePattern || c.ImagePattern != DefaultImagePattern {
		t.Errorf("patterns = %q / %q, want defaults", c.SatellitePattern, c.ImagePattern)
	}
}

func TestLoadConventionsErrors(t *testing.T) {
	if _, err := LoadConventions("/nonexistent/path/conventions.yaml"); err == nil {
		t.Error("LoadConventions() with non-existent file should return error")
	}

	yamlPath := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(yamlPath, []byte("image_pattern: '[unclosed'\n"), 0o644); err != nil {
		t.Fatalf("Failed to create test YAML file: %v", err)
	}
	if _, err := LoadConventions(yamlPath); err == nil {
		t.Error("LoadConventions() with invalid regexp should return error")
	}
}

func TestNormalizeRoot(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/goes/current/", "/goes/current/"},
		{"goes/current", "/goes/current/"},
		{"/", "/"},
		{"", "/"},
	}
	for _, tt := range tests {
		if got := normalizeRoot(tt.in); got != tt.want {
			t.Errorf("normalizeRoot(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDirectoryName(t *testing.T) {
	tests := []struct {
		href   string
		want   string
		wantOK bool
	}{
		{"GOES-16/", "GOES-16", true},
		{"./GOES-16/", "GOES-16", true},
		{"/goes/current/GOES-16/", "GOES-16", true},
		{"https://wx.example.org/goes/current/GOES-16/?C=M", "GOES-16", true},
		{"GOES-16", "", false},
		{"../", "", false},
		{"/", "", false},
	}
	for _, tt := range tests {
		got, ok := directoryName(tt.href)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("directoryName(%q) = (%q, %v), want (%q, %v)", tt.href, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestNewExtractor(t *testing.T) {
	if ex, err := NewExtractor("pattern"); err != nil || ex != (PatternExtractor{}) {
		t.Errorf("NewExtractor(pattern) = %v, %v", ex, err)
	}
	if ex, err := NewExtractor(""); err != nil || ex != (AnchorExtractor{}) {
		t.Errorf("NewExtractor(\"\") = %v, %v", ex, err)
	}
	if _, err := NewExtractor("dom"); err == nil {
		t.Error("NewExtractor(dom) should fail")
	}
}
