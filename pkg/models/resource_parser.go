package models

import (
	"strings"

	"github.com/BTBurke/k8sresource"
	"github.com/c2h5oh/datasize"
)

// ResourcesConfig is the human-written form of Resources, as found in flags
// and config files: CPU in cores or millicores ("2", "500m"), sizes with
// units ("512MB", "4Gi").
type ResourcesConfig struct {
	CPU       string `json:"CPU,omitempty" yaml:"CPU,omitempty"`
	Memory    string `json:"Memory,omitempty" yaml:"Memory,omitempty"`
	Disk      string `json:"Disk,omitempty" yaml:"Disk,omitempty"`
	Bandwidth string `json:"Bandwidth,omitempty" yaml:"Bandwidth,omitempty"`
}

// allow Mi, Gi to mean Mb, Gb
// remove spaces
// lowercase
func sanitizeBytesString(st string) string {
	st = strings.ToLower(st)
	st = strings.ReplaceAll(st, "i", "b")
	st = strings.ReplaceAll(st, " ", "")
	return st
}

func ParseCPUString(val string) (float64, error) {
	if val == "" {
		return 0, nil
	}
	cpu, err := k8sresource.NewCPUFromString(sanitizeBytesString(val))
	if err != nil {
		return 0, err
	}
	return cpu.ToFloat64(), nil
}

func ParseBytesString(val string) (uint64, error) {
	if val == "" {
		return 0, nil
	}
	size, err := datasize.ParseString(sanitizeBytesString(val))
	if err != nil {
		return 0, err
	}
	return size.Bytes(), nil
}

// Parse converts the config into concrete Resources. Empty fields stay zero.
func (c ResourcesConfig) Parse() (Resources, error) {
	cpu, err := ParseCPUString(c.CPU)
	if err != nil {
		return Resources{}, err
	}
	memory, err := ParseBytesString(c.Memory)
	if err != nil {
		return Resources{}, err
	}
	disk, err := ParseBytesString(c.Disk)
	if err != nil {
		return Resources{}, err
	}
	bandwidth, err := ParseBytesString(c.Bandwidth)
	if err != nil {
		return Resources{}, err
	}
	return Resources{
		CPU:       cpu,
		Memory:    memory,
		Disk:      disk,
		Bandwidth: bandwidth,
	}, nil
}
