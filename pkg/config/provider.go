package config

import (
	"fmt"

	"github.com/chrissnell/ibimetrics/internal/ibi"
)

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration, defaults applied and validated
	LoadConfig() (*ConfigData, error)

	IsReadOnly() bool
	Close() error
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	RMSE    RMSEData    `json:"rmse"`
	TCR     TCRData     `json:"tcr"`
	Storage StorageData `json:"storage"`
	Server  ServerData  `json:"server"`
	Batch   BatchData   `json:"batch"`
}

// RMSEData holds the RMSE evaluation settings
type RMSEData struct {
	Intervals      []ibi.Interval `json:"intervals,omitempty"`
	EmptySelection string         `json:"empty_selection,omitempty"`
}

// TCRData holds the TCR evaluation settings
type TCRData struct {
	BinWidth       float64 `json:"bin_width"`
	ErrorTolerance float64 `json:"error_tolerance"`
}

// StorageData selects the recording store backend
type StorageData struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// ServerData holds REST server settings
type ServerData struct {
	ListenAddr string `json:"listen_addr"`
	HTTPPort   int    `json:"http_port"`
}

// BatchData holds batch evaluation settings
type BatchData struct {
	Workers int `json:"workers"`
}

// Defaults used when a section leaves a field unset
const (
	DefaultStorageDriver  = "sqlite"
	DefaultStorageDSN     = "ibimetrics.db"
	DefaultListenAddr     = "0.0.0.0"
	DefaultHTTPPort       = 8080
	DefaultBatchWorkers   = 4
	DefaultBinWidth       = 5.0
	DefaultErrorTolerance = 0.05
)

// DefaultConfig returns a configuration with every default applied
func DefaultConfig() *ConfigData {
	c := &ConfigData{TCR: TCRData{ErrorTolerance: DefaultErrorTolerance}}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills unset fields with their defaults. TCR.ErrorTolerance
// is left alone since 0 is a valid tolerance.
func (c *ConfigData) ApplyDefaults() {
	if c.RMSE.EmptySelection == "" {
		c.RMSE.EmptySelection = string(ibi.EmptySelectionError)
	}
	if c.TCR.BinWidth == 0 {
		c.TCR.BinWidth = DefaultBinWidth
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DefaultStorageDriver
	}
	if c.Storage.DSN == "" && c.Storage.Driver == DefaultStorageDriver {
		c.Storage.DSN = DefaultStorageDSN
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = DefaultHTTPPort
	}
	if c.Batch.Workers == 0 {
		c.Batch.Workers = DefaultBatchWorkers
	}
}

// Validate checks the configuration for values the evaluators cannot use
func (c *ConfigData) Validate() error {
	switch ibi.EmptySelectionPolicy(c.RMSE.EmptySelection) {
	case ibi.EmptySelectionError, ibi.EmptySelectionNaN:
	default:
		return fmt.Errorf("rmse.empty-selection must be %q or %q, got %q",
			ibi.EmptySelectionError, ibi.EmptySelectionNaN, c.RMSE.EmptySelection)
	}
	for i, iv := range c.RMSE.Intervals {
		if iv.Start > iv.End {
			return fmt.Errorf("rmse.intervals[%d]: start %v after end %v", i, iv.Start, iv.End)
		}
	}
	if c.TCR.BinWidth <= 0 {
		return fmt.Errorf("tcr.bin-width must be positive, got %v", c.TCR.BinWidth)
	}
	if c.TCR.ErrorTolerance < 0 {
		return fmt.Errorf("tcr.error-tolerance must be non-negative, got %v", c.TCR.ErrorTolerance)
	}
	switch c.Storage.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported storage driver: %s. Use 'sqlite' or 'postgres'", c.Storage.Driver)
	}
	if c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn is required for driver %s", c.Storage.Driver)
	}
	if c.Server.HTTPPort < 1 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http-port out of range: %d", c.Server.HTTPPort)
	}
	if c.Batch.Workers < 1 {
		return fmt.Errorf("batch.workers must be at least 1, got %d", c.Batch.Workers)
	}
	return nil
}

// RMSEParams converts the RMSE section to calculator parameters
func (c *ConfigData) RMSEParams() ibi.RMSEParams {
	return ibi.RMSEParams{
		Intervals: append([]ibi.Interval(nil), c.RMSE.Intervals...),
		OnEmpty:   ibi.EmptySelectionPolicy(c.RMSE.EmptySelection),
	}
}

// TCRParams converts the TCR section to calculator parameters
func (c *ConfigData) TCRParams() ibi.TCRParams {
	return ibi.TCRParams{
		BinWidth:       c.TCR.BinWidth,
		ErrorTolerance: c.TCR.ErrorTolerance,
	}
}
