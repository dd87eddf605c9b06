package conf

import (
	"time"

	jerrors "github.com/juju/errors"
	"gopkg.in/ini.v1"
)

// CommandLineArgs 命令行参数
type CommandLineArgs struct {
	ConfigPath string
}

/*
*
配置文件示例(snapview.ini)：

[snapview]
log_error       = /var/log/snapview/error.log
log_infos       = /var/log/snapview/snapview.log
log_level       = info
read_only       = false
validate_views  = false
purge_interval  = 1s
tx_timeout      = 60s
max_active_txs  = 1000
*/
type Cfg struct {
	Raw     *ini.File
	AppName string

	// logs
	LogError string `default:"" yaml:"log_error" json:"log_error,omitempty"`
	LogInfos string `default:"" yaml:"log_infos" json:"log_infos,omitempty"`
	LogLevel string `default:"info" yaml:"log_level" json:"log_level,omitempty"`

	// visibility
	ReadOnly      bool          `default:"false" yaml:"read_only" json:"read_only,omitempty"`
	ValidateViews bool          `default:"false" yaml:"validate_views" json:"validate_views,omitempty"`
	PurgeInterval time.Duration `default:"1s" yaml:"purge_interval" json:"purge_interval,omitempty"`

	// transactions
	TxTimeout    time.Duration `default:"60s" yaml:"tx_timeout" json:"tx_timeout,omitempty"`
	MaxActiveTxs int           `default:"1000" yaml:"max_active_txs" json:"max_active_txs,omitempty"`
}

// NewCfg 创建带默认值的配置
func NewCfg() *Cfg {
	return &Cfg{
		AppName:       "snapview",
		LogLevel:      "info",
		ReadOnly:      false,
		ValidateViews: false,
		PurgeInterval: time.Second,
		TxTimeout:     60 * time.Second,
		MaxActiveTxs:  1000,
	}
}

// Load 从配置文件加载，未指定路径时返回默认配置
func (c *Cfg) Load(args *CommandLineArgs) (*Cfg, error) {
	if args == nil || args.ConfigPath == "" {
		return c, nil
	}

	raw, err := ini.Load(args.ConfigPath)
	if err != nil {
		return nil, jerrors.Trace(err)
	}
	c.Raw = raw

	sec := raw.Section("snapview")
	c.LogError = sec.Key("log_error").MustString(c.LogError)
	c.LogInfos = sec.Key("log_infos").MustString(c.LogInfos)
	c.LogLevel = sec.Key("log_level").MustString(c.LogLevel)
	c.ReadOnly = sec.Key("read_only").MustBool(c.ReadOnly)
	c.ValidateViews = sec.Key("validate_views").MustBool(c.ValidateViews)
	c.PurgeInterval = sec.Key("purge_interval").MustDuration(c.PurgeInterval)
	c.TxTimeout = sec.Key("tx_timeout").MustDuration(c.TxTimeout)
	c.MaxActiveTxs = sec.Key("max_active_txs").MustInt(c.MaxActiveTxs)

	if c.PurgeInterval <= 0 {
		return nil, jerrors.Errorf("invalid purge_interval: %s", c.PurgeInterval)
	}
	if c.MaxActiveTxs <= 0 {
		return nil, jerrors.Errorf("invalid max_active_txs: %d", c.MaxActiveTxs)
	}

	return c, nil
}
