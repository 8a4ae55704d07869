package coordinator

import (
	"os"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/pkg/errors"
	"github.com/zkcoinjoin/wabisabi/internal/params"
	"github.com/zkcoinjoin/wabisabi/pkg/coinjoin"
	"gopkg.in/yaml.v3"
)

const (
	defaultNetwork             = "regtest"
	defaultFeeRate             = coinjoin.FeeRate(2000)
	defaultMinInputCount       = 2
	defaultStatusPollInterval  = 5 * time.Second
	defaultVerificationWorkers = 4
)

// Config holds the policies of the rounds an Arena creates.
type Config struct {
	// Network is the chaincfg name of the network, such as "mainnet" or "regtest".
	Network string `yaml:"network"`
	// FeeRate is the mining fee rate in satoshis per 1000 vbytes.
	FeeRate       coinjoin.FeeRate      `yaml:"feeRate"`
	InputAmounts  coinjoin.AmountRange  `yaml:"inputAmounts"`
	OutputAmounts coinjoin.AmountRange  `yaml:"outputAmounts"`
	InputTypes    []coinjoin.ScriptType `yaml:"inputTypes"`
	OutputTypes   []coinjoin.ScriptType `yaml:"outputTypes"`
	// MaxTransactionSize is in vbytes. 0 means no limit.
	MaxTransactionSize int64 `yaml:"maxTransactionSize"`

	MaxAmountCredentialValue   uint64 `yaml:"maxAmountCredentialValue"`
	MaxVsizeCredentialValue    uint64 `yaml:"maxVsizeCredentialValue"`
	MaxVsizeAllocationPerAlice int64  `yaml:"maxVsizeAllocationPerAlice"`

	// MinInputCount is the number of inputs a round needs to leave each of its
	// first two phases.
	MinInputCount int `yaml:"minInputCount"`
	// StatusPollInterval is how often clients are expected to poll round states.
	StatusPollInterval time.Duration `yaml:"statusPollInterval"`
	// VerificationWorkers is the size of the pool verifying credential proofs.
	VerificationWorkers int `yaml:"verificationWorkers"`
}

// WithDefaults returns a copy of the Config with any missing fields set to
// their default values.
func (c Config) WithDefaults() Config {
	cpy := c
	if cpy.Network == "" {
		cpy.Network = defaultNetwork
	}
	if cpy.FeeRate == 0 {
		cpy.FeeRate = defaultFeeRate
	}
	if cpy.MaxAmountCredentialValue == 0 {
		cpy.MaxAmountCredentialValue = params.MaxAmountCredentialValue
	}
	if cpy.MaxVsizeCredentialValue == 0 {
		cpy.MaxVsizeCredentialValue = params.MaxVsizeCredentialValue
	}
	if cpy.MaxVsizeAllocationPerAlice == 0 {
		cpy.MaxVsizeAllocationPerAlice = params.MaxVsizeAllocationPerAlice
	}
	if cpy.InputAmounts.Max == 0 {
		cpy.InputAmounts = coinjoin.AmountRange{
			Min: coinjoin.DustThreshold,
			Max: btcutil.Amount(cpy.MaxAmountCredentialValue),
		}
	}
	if cpy.OutputAmounts.Max == 0 {
		cpy.OutputAmounts = coinjoin.AmountRange{
			Min: coinjoin.DustThreshold,
			Max: btcutil.Amount(cpy.MaxAmountCredentialValue),
		}
	}
	if len(cpy.InputTypes) == 0 {
		cpy.InputTypes = []coinjoin.ScriptType{coinjoin.P2WPKH, coinjoin.P2TR}
	}
	if len(cpy.OutputTypes) == 0 {
		cpy.OutputTypes = []coinjoin.ScriptType{coinjoin.P2WPKH, coinjoin.P2TR}
	}
	if cpy.MinInputCount == 0 {
		cpy.MinInputCount = defaultMinInputCount
	}
	if cpy.StatusPollInterval == 0 {
		cpy.StatusPollInterval = defaultStatusPollInterval
	}
	if cpy.VerificationWorkers == 0 {
		cpy.VerificationWorkers = defaultVerificationWorkers
	}
	return cpy
}

// Parameters returns the transaction parameters of a round created under c.
func (c Config) Parameters() (coinjoin.Parameters, error) {
	network, err := NetworkParams(c.Network)
	if err != nil {
		return coinjoin.Parameters{}, err
	}
	p := coinjoin.Parameters{
		FeeRate:              c.FeeRate,
		AllowedInputAmounts:  c.InputAmounts,
		AllowedOutputAmounts: c.OutputAmounts,
		AllowedInputTypes:    append([]coinjoin.ScriptType(nil), c.InputTypes...),
		AllowedOutputTypes:   append([]coinjoin.ScriptType(nil), c.OutputTypes...),
		Network:              network,
		MaxTransactionSize:   c.MaxTransactionSize,
	}
	if err := p.Validate(); err != nil {
		return coinjoin.Parameters{}, errors.Wrap(err, "invalid round parameters")
	}
	return p, nil
}

// Validate returns an error if rounds cannot be created under c.
func (c Config) Validate() error {
	if _, err := c.Parameters(); err != nil {
		return err
	}
	if c.MaxAmountCredentialValue == 0 || c.MaxVsizeCredentialValue == 0 {
		return errors.New("credential values must be positive")
	}
	if uint64(c.InputAmounts.Max) > c.MaxAmountCredentialValue {
		return errors.Errorf("input amounts up to %v do not fit in a credential of %d", c.InputAmounts.Max, c.MaxAmountCredentialValue)
	}
	if c.MaxVsizeAllocationPerAlice <= 0 || uint64(c.MaxVsizeAllocationPerAlice) > c.MaxVsizeCredentialValue {
		return errors.Errorf("vsize allocation %d out of range", c.MaxVsizeAllocationPerAlice)
	}
	if c.MinInputCount < 1 {
		return errors.New("min input count must be positive")
	}
	if c.VerificationWorkers < 0 {
		return errors.New("negative number of verification workers")
	}
	return nil
}

// ParseConfig decodes a YAML config and applies defaults.
func ParseConfig(data []byte) (Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, errors.Wrap(err, "parse config")
	}
	c = c.WithDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, errors.Wrap(err, "validate config")
	}
	return c, nil
}

// LoadConfig reads the YAML config at path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}
	return ParseConfig(data)
}

var networks = []*chaincfg.Params{
	&chaincfg.MainNetParams,
	&chaincfg.TestNet3Params,
	&chaincfg.RegressionNetParams,
	&chaincfg.SigNetParams,
	&chaincfg.SimNetParams,
}

// NetworkParams returns the chain parameters of the named network.
func NetworkParams(name string) (*chaincfg.Params, error) {
	for _, n := range networks {
		if n.Name == name {
			return n, nil
		}
	}
	return nil, errors.Errorf("unknown network %q", name)
}
