package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Limits   LimitsConfig   `mapstructure:"limits"`
	Task     TaskConfig     `mapstructure:"task"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN 拼接 postgres 连接串
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// RedisConfig 为空地址时不启用 Redis
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Enabled 是否配置了 Redis
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// ChainConfig 链与众筹合约配置
type ChainConfig struct {
	RpcUrl          string `mapstructure:"rpc_url"`          // RPC节点URL
	ChainId         int64  `mapstructure:"chain_id"`         // 期望的链ID, 0 表示以节点返回为准
	PrivateKey      string `mapstructure:"private_key"`      // 私钥, 为空时只读
	ContractAddress string `mapstructure:"contract_address"` // 众筹合约地址
	ABIPath         string `mapstructure:"abi_path"`         // ABI文件路径, 为空时使用内置ABI
	DeployBlock     int64  `mapstructure:"deploy_block"`     // 合约部署区块号
	TxTimeout       int    `mapstructure:"tx_timeout"`       // 等待交易上链超时(秒)
	WatchInterval   int    `mapstructure:"watch_interval"`   // 链ID检查间隔(秒)
}

// TxTimeoutDuration 交易等待超时
func (c ChainConfig) TxTimeoutDuration() time.Duration {
	return time.Duration(c.TxTimeout) * time.Second
}

// LimitsConfig 客户端侧的提示性限制, 合约的值优先
type LimitsConfig struct {
	AdvisoryMaxDonation string `mapstructure:"advisory_max_donation"` // 以ETH计的捐赠上限
	ApprovalThreshold   int64  `mapstructure:"approval_threshold"`    // 里程碑通过百分比
}

type TaskConfig struct {
	Interval     int  `mapstructure:"interval"` // 秒
	AutoFinalize bool `mapstructure:"auto_finalize"`
}

type MonitorConfig struct {
	Enabled   bool  `mapstructure:"enabled"`
	Interval  int   `mapstructure:"interval"`   // 秒
	BatchSize int64 `mapstructure:"batch_size"` // 每批区块数
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // 日志级别: debug, info, warn, error, fatal
	Output string `mapstructure:"output"` // 输出目标: stdout, stderr, file
	File   string `mapstructure:"file"`   // 日志文件路径（当output为file时使用）
}

// GetLevel 实现 logger.LogConfig 接口
func (l LogConfig) GetLevel() string {
	return l.Level
}

// GetOutput 实现 logger.LogConfig 接口
func (l LogConfig) GetOutput() string {
	return l.Output
}

// GetFile 实现 logger.LogConfig 接口
func (l LogConfig) GetFile() string {
	return l.File
}

// Load 从默认路径加载配置
func Load() (*Config, error) {
	// .env 只补充环境变量, 文件不存在不算错误
	_ = godotenv.Load()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/fundchain")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return decode(v)
}

// LoadFile 从指定文件加载配置
func LoadFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()

	// 设置默认值
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "fundchain")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("chain.rpc_url", "http://localhost:8545")
	v.SetDefault("chain.chain_id", 0)
	v.SetDefault("chain.private_key", "")
	v.SetDefault("chain.contract_address", "")
	v.SetDefault("chain.abi_path", "")
	v.SetDefault("chain.deploy_block", 0)
	v.SetDefault("chain.tx_timeout", 180)
	v.SetDefault("chain.watch_interval", 15)
	v.SetDefault("limits.advisory_max_donation", "100")
	v.SetDefault("limits.approval_threshold", 51)
	v.SetDefault("task.interval", 60)
	v.SetDefault("task.auto_finalize", false)
	v.SetDefault("monitor.enabled", false)
	v.SetDefault("monitor.interval", 30)
	v.SetDefault("monitor.batch_size", 500)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file", "logs/app.log")

	// 自动读取环境变量, 例如 FUNDCHAIN_CHAIN_RPC_URL
	v.SetEnvPrefix("fundchain")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Chain.RpcUrl == "" {
		return fmt.Errorf("chain.rpc_url is required")
	}
	if c.Chain.TxTimeout <= 0 {
		return fmt.Errorf("chain.tx_timeout must be positive")
	}
	if c.Limits.ApprovalThreshold <= 0 || c.Limits.ApprovalThreshold >= 100 {
		return fmt.Errorf("limits.approval_threshold must be between 1 and 99")
	}
	if c.Monitor.BatchSize <= 0 {
		return fmt.Errorf("monitor.batch_size must be positive")
	}
	return nil
}
