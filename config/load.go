package config

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"perp-quoter-go/infrastructure/logger"
	"perp-quoter-go/market"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env     string        `yaml:"env"`
	Group   string        `yaml:"group"`
	Gateway GatewayConfig `yaml:"gateway"`
	Account AccountConfig `yaml:"account"`

	IntervalMs     int `yaml:"intervalMs"`     // 执行循环周期
	StateRefreshMs int `yaml:"stateRefreshMs"` // 状态同步周期
	Batch          int `yaml:"batch"`          // 单笔提交的最大动作数，0 不设上限

	MetricsAddr string                  `yaml:"metricsAddr"`
	Logging     logger.Config           `yaml:"logging"`
	Markets     map[string]MarketConfig `yaml:"markets"`
}

type GatewayConfig struct {
	Endpoint      string  `yaml:"endpoint"`      // 状态/交易旁路服务
	FeedEndpoint  string  `yaml:"feedEndpoint"`  // 参考行情 websocket
	SignerKeyPath string  `yaml:"signerKeyPath"` // 签名私钥文件
	Rate          float64 `yaml:"rate"`          // 提交限速（次/秒），0 不限
	Burst         int     `yaml:"burst"`
}

type AccountConfig struct {
	Name        string `yaml:"name"`
	Handle      string `yaml:"handle"`
	CacheHandle string `yaml:"cacheHandle"`
}

// MarketConfig 保存单个市场的静态属性与报价参数。
type MarketConfig struct {
	Index      int     `yaml:"index"`
	TickSize   float64 `yaml:"tickSize"`
	StepSize   float64 `yaml:"stepSize"`
	BidsHandle string  `yaml:"bidsHandle"`
	AsksHandle string  `yaml:"asksHandle"`
	RefSymbol  string  `yaml:"refSymbol"` // 参考交易所 symbol，空表示同名

	Params ParamsConfig `yaml:"params"`
}

// ParamsConfig 是 market.Params 的 YAML 形态，支持热更新整体替换。
type ParamsConfig struct {
	Edge           float64 `yaml:"edge"`
	Bias           float64 `yaml:"bias"`
	LeanCoeff      float64 `yaml:"leanCoeff"`
	SizePerc       float64 `yaml:"sizePerc"`
	TakePerc       float64 `yaml:"takePerc"`
	MispriceThresh float64 `yaml:"mispriceThresh"`
	RequoteThresh  float64 `yaml:"requoteThresh"`
	TimeLimit      float64 `yaml:"timeLimit"`

	MaxTakeNotional     float64 `yaml:"maxTakeNotional"`
	MinTakeNotional     float64 `yaml:"minTakeNotional"`
	MaxTakePortNotional float64 `yaml:"maxTakePortNotional"`
	MaxTakePortPerc     float64 `yaml:"maxTakePortPerc"`

	TakeSpammers  bool    `yaml:"takeSpammers"`
	SpammerCharge float64 `yaml:"spammerCharge"`

	RefNotional    float64 `yaml:"refNotional"`
	DisableRefFeed bool    `yaml:"disableRefFeed"`
	KillSwitch     bool    `yaml:"killSwitch"`

	Underlying string  `yaml:"underlying"`
	Squared    bool    `yaml:"squared"`
	IVDays     float64 `yaml:"ivDays"`
	IVSlot     int     `yaml:"ivSlot"`
}

// ToParams 转换为运行期参数。
func (p ParamsConfig) ToParams() market.Params {
	return market.Params{
		Edge:                p.Edge,
		Bias:                p.Bias,
		LeanCoeff:           p.LeanCoeff,
		SizePerc:            p.SizePerc,
		TakePerc:            p.TakePerc,
		MispriceThresh:      p.MispriceThresh,
		RequoteThresh:       p.RequoteThresh,
		TimeLimit:           p.TimeLimit,
		MaxTakeNotional:     p.MaxTakeNotional,
		MinTakeNotional:     p.MinTakeNotional,
		MaxTakePortNotional: p.MaxTakePortNotional,
		MaxTakePortPerc:     p.MaxTakePortPerc,
		TakeSpammers:        p.TakeSpammers,
		SpammerCharge:       p.SpammerCharge,
		RefNotional:         p.RefNotional,
		DisableRefFeed:      p.DisableRefFeed,
		KillSwitch:          p.KillSwitch,
		Underlying:          p.Underlying,
		Squared:             p.Squared,
		IVDays:              p.IVDays,
		IVSlot:              p.IVSlot,
	}
}

// Instrument 转换为市场静态描述。
func (m MarketConfig) Instrument(name string) market.Instrument {
	return market.Instrument{
		Name:       name,
		Index:      m.Index,
		TickSize:   m.TickSize,
		StepSize:   m.StepSize,
		BidsHandle: m.BidsHandle,
		AsksHandle: m.AsksHandle,
	}
}

// MarketNames 返回稳定排序后的市场名，执行循环按该顺序评估。
func (c AppConfig) MarketNames() []string {
	names := make([]string, 0, len(c.Markets))
	for name := range c.Markets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides sensitive fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("QUOTER_ENDPOINT"); v != "" {
		cfg.Gateway.Endpoint = v
	}
	if v := os.Getenv("QUOTER_FEED_ENDPOINT"); v != "" {
		cfg.Gateway.FeedEndpoint = v
	}
	if v := os.Getenv("QUOTER_SIGNER_KEY"); v != "" {
		cfg.Gateway.SignerKeyPath = v
	}
	return cfg, Validate(cfg)
}

// Validate ensures required fields are present.
// 账户身份缺失是致命错误：没有 handle 无法定位任何链上状态。
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	if cfg.Gateway.Endpoint == "" {
		return errors.New("gateway.endpoint is required (or QUOTER_ENDPOINT)")
	}
	if cfg.Account.Handle == "" || cfg.Account.CacheHandle == "" {
		return errors.New("account.handle/cacheHandle is required")
	}
	if cfg.IntervalMs < 0 || cfg.StateRefreshMs < 0 {
		return errors.New("intervalMs/stateRefreshMs must be >= 0")
	}
	if cfg.Batch < 0 {
		return errors.New("batch must be >= 0")
	}
	if len(cfg.Markets) == 0 {
		return errors.New("markets config is required")
	}
	for name, mc := range cfg.Markets {
		if mc.Index < 0 {
			return fmt.Errorf("market %s index must be >= 0", name)
		}
		if mc.TickSize <= 0 {
			return fmt.Errorf("market %s tickSize must be > 0", name)
		}
		if mc.StepSize <= 0 {
			return fmt.Errorf("market %s stepSize must be > 0", name)
		}
		if mc.BidsHandle == "" || mc.AsksHandle == "" {
			return fmt.Errorf("market %s bidsHandle/asksHandle is required", name)
		}
		p := mc.Params
		if p.Edge < 0 || p.SizePerc < 0 || p.TakePerc < 0 {
			return fmt.Errorf("market %s params must be >= 0", name)
		}
		if p.MispriceThresh < 0 || p.RequoteThresh < 0 || p.TimeLimit < 0 {
			return fmt.Errorf("market %s thresholds must be >= 0", name)
		}
		if p.MaxTakeNotional < 0 || p.MinTakeNotional < 0 ||
			p.MaxTakePortNotional < 0 || p.MaxTakePortPerc < 0 {
			return fmt.Errorf("market %s take limits must be >= 0", name)
		}
		if p.Squared {
			if p.Underlying == "" {
				return fmt.Errorf("market %s squared requires underlying", name)
			}
			if _, ok := cfg.Markets[p.Underlying]; !ok {
				return fmt.Errorf("market %s underlying %s not configured", name, p.Underlying)
			}
		}
	}
	return nil
}
