package params

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// cropFile is the on-disk layout of a crop parameter set.
type cropFile struct {
	CropName string               `yaml:"crop_name"`
	Scalars  map[string]float64   `yaml:"scalars"`
	Curves   map[string][]float64 `yaml:"curves"`
}

// LoadCropFile reads a YAML crop parameter file into a Provider.
func LoadCropFile(path string) (*Provider, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read crop parameters: %w", err)
	}
	return ParseCrop(raw)
}

// ParseCrop decodes YAML crop parameters.
func ParseCrop(raw []byte) (*Provider, error) {
	var f cropFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode crop parameters: %w", err)
	}
	p, err := New(f.Scalars, f.Curves)
	if err != nil {
		return nil, fmt.Errorf("crop %q: %w", f.CropName, err)
	}
	return p, nil
}

// Agromanagement describes the campaign: its calendar window, how the crop
// cycle starts and ends, and the site latitude.
type Agromanagement struct {
	CampaignStart time.Time `yaml:"campaign_start"`
	CampaignEnd   time.Time `yaml:"campaign_end"`
	CropStartType string    `yaml:"crop_start_type"` // sowing | emergence
	CropEndType   string    `yaml:"crop_end_type"`   // maturity | harvest | earliest
	MaxDuration   int       `yaml:"max_duration"`
	Latitude      float64   `yaml:"latitude"`
}

// Validate checks enumerations and the calendar window.
func (a Agromanagement) Validate() error {
	switch a.CropStartType {
	case "sowing", "emergence":
	default:
		return fmt.Errorf("unknown crop_start_type %q", a.CropStartType)
	}
	switch a.CropEndType {
	case "maturity", "harvest", "earliest":
	default:
		return fmt.Errorf("unknown crop_end_type %q", a.CropEndType)
	}
	if !a.CampaignEnd.After(a.CampaignStart) {
		return fmt.Errorf("campaign_end %s not after campaign_start %s",
			a.CampaignEnd.Format("2006-01-02"), a.CampaignStart.Format("2006-01-02"))
	}
	return nil
}

// LoadAgromanagement reads a YAML agromanagement file.
func LoadAgromanagement(path string) (Agromanagement, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Agromanagement{}, fmt.Errorf("read agromanagement: %w", err)
	}
	var a Agromanagement
	if err := yaml.Unmarshal(raw, &a); err != nil {
		return Agromanagement{}, fmt.Errorf("decode agromanagement: %w", err)
	}
	if err := a.Validate(); err != nil {
		return Agromanagement{}, err
	}
	return a, nil
}
