package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/vdrplay/internal/vdrlog"
)

// FileConfig is the JSON shape of an optional replay settings file. All
// fields are pointers so a partial file only overrides what it names;
// command-line flags fill the rest.
type FileConfig struct {
	Transport         *string  `json:"transport,omitempty"`
	Protocol          *string  `json:"protocol,omitempty"`
	Port              *int     `json:"port,omitempty"`
	Host              *string  `json:"host,omitempty"`
	SerialDevice      *string  `json:"serial_device,omitempty"`
	Baud              *int     `json:"baud,omitempty"`
	SpeedFactor       *float64 `json:"speed_factor,omitempty"`
	Passes            *int     `json:"passes,omitempty"`
	AbortOnDisconnect *bool    `json:"abort_on_disconnect,omitempty"`
}

// LoadFileConfig loads a FileConfig from a JSON file. The file must have a
// .json extension and be under 1MB. Fields omitted from the file stay nil.
func LoadFileConfig(path string) (*FileConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &FileConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	return cfg, nil
}

// Apply overlays the set fields onto c. Transport and protocol names are
// not validated here; Config.Validate runs after the overlay.
func (f *FileConfig) Apply(c *Config) {
	if f.Transport != nil {
		c.Transport = TransportKind(*f.Transport)
	}
	if f.Protocol != nil {
		if p, ok := vdrlog.ParseProtocol(*f.Protocol); ok {
			c.Protocol = p
		} else {
			// Leave the bad name in place so Validate reports it.
			c.Protocol = vdrlog.Protocol(*f.Protocol)
		}
	}
	if f.Port != nil {
		c.Port = *f.Port
	}
	if f.Host != nil {
		c.Host = *f.Host
	}
	if f.SerialDevice != nil {
		c.SerialDevice = *f.SerialDevice
	}
	if f.Baud != nil {
		c.Baud = *f.Baud
	}
	if f.SpeedFactor != nil {
		c.SpeedFactor = *f.SpeedFactor
	}
	if f.Passes != nil {
		c.Passes = *f.Passes
	}
	if f.AbortOnDisconnect != nil {
		c.AbortOnDisconnect = *f.AbortOnDisconnect
	}
}
