package config

import (
	"fmt"
	"os"

	"github.com/chrissnell/ibimetrics/internal/ibi"
	"gopkg.in/yaml.v2"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// yamlConfig mirrors ConfigData with the file's key names.
// Intervals are written as two-element lists: [[0, 60], [120, 180]].
type yamlConfig struct {
	RMSE struct {
		Intervals      [][]float64 `yaml:"intervals,omitempty"`
		EmptySelection string      `yaml:"empty-selection,omitempty"`
	} `yaml:"rmse,omitempty"`
	TCR struct {
		BinWidth       float64  `yaml:"bin-width,omitempty"`
		ErrorTolerance *float64 `yaml:"error-tolerance,omitempty"`
	} `yaml:"tcr,omitempty"`
	Storage struct {
		Driver string `yaml:"driver,omitempty"`
		DSN    string `yaml:"dsn,omitempty"`
	} `yaml:"storage,omitempty"`
	Server struct {
		ListenAddr string `yaml:"listen-addr,omitempty"`
		HTTPPort   int    `yaml:"http-port,omitempty"`
	} `yaml:"server,omitempty"`
	Batch struct {
		Workers int `yaml:"workers,omitempty"`
	} `yaml:"batch,omitempty"`
}

// LoadConfig loads the complete configuration from YAML file
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}
	return ParseYAML(cfgFile)
}

// ParseYAML decodes, defaults and validates a YAML configuration document
func ParseYAML(data []byte) (*ConfigData, error) {
	var yc yamlConfig
	if err := yaml.UnmarshalStrict(data, &yc); err != nil {
		return nil, err
	}

	config := &ConfigData{
		RMSE: RMSEData{
			EmptySelection: yc.RMSE.EmptySelection,
		},
		TCR: TCRData{
			BinWidth:       yc.TCR.BinWidth,
			ErrorTolerance: DefaultErrorTolerance,
		},
		Storage: StorageData{
			Driver: yc.Storage.Driver,
			DSN:    yc.Storage.DSN,
		},
		Server: ServerData{
			ListenAddr: yc.Server.ListenAddr,
			HTTPPort:   yc.Server.HTTPPort,
		},
		Batch: BatchData{
			Workers: yc.Batch.Workers,
		},
	}

	// zero is a usable tolerance, so only an absent key takes the default
	if yc.TCR.ErrorTolerance != nil {
		config.TCR.ErrorTolerance = *yc.TCR.ErrorTolerance
	}

	for i, iv := range yc.RMSE.Intervals {
		if len(iv) != 2 {
			return nil, fmt.Errorf("rmse.intervals[%d]: want [start, end], got %d values", i, len(iv))
		}
		config.RMSE.Intervals = append(config.RMSE.Intervals, ibi.Interval{Start: iv[0], End: iv[1]})
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// IsReadOnly returns true since YAML files are read-only in this implementation
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML provider
func (y *YAMLProvider) Close() error {
	return nil
}
