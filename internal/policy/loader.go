package policy

import (
	"fmt"

	"github.com/spf13/viper"

	dErrors "cdigit/pkg/domain-errors"
)

// fileConfig is the on-disk shape of a policy file. Viper lower-cases map
// keys, so role names and currency codes are normalised when converted.
type fileConfig struct {
	BaseCurrency  string                        `mapstructure:"base_currency"`
	ApproverRoles []string                      `mapstructure:"approver_roles"`
	Permissions   map[string][]string           `mapstructure:"permissions"`
	Thresholds    map[string]map[string]float64 `mapstructure:"thresholds"`
	FXThresholds  map[string]float64            `mapstructure:"fx_thresholds"`
}

// LoadFile reads a YAML/JSON/TOML policy file. Sections missing from the file
// keep their built-in values; sections present replace them entirely.
func LoadFile(path string) (*Policy, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return FromViper(v)
}

// FromViper builds a policy from an already-populated viper instance.
func FromViper(v *viper.Viper) (*Policy, error) {
	var raw fileConfig
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("decode policy: %w", err)
	}
	cfg, err := raw.toConfig(DefaultConfig())
	if err != nil {
		return nil, err
	}
	return New(cfg)
}

func (f fileConfig) toConfig(cfg Config) (Config, error) {
	if f.BaseCurrency != "" {
		cfg.BaseCurrency = f.BaseCurrency
	}

	if len(f.ApproverRoles) > 0 {
		roles := make([]Role, 0, len(f.ApproverRoles))
		for _, name := range f.ApproverRoles {
			r, err := ParseRole(name)
			if err != nil {
				return Config{}, err
			}
			roles = append(roles, r)
		}
		cfg.ApproverRoles = roles
	}

	if len(f.Permissions) > 0 {
		grants := make(map[Role][]Permission, len(f.Permissions))
		for roleName, permNames := range f.Permissions {
			r, err := ParseRole(roleName)
			if err != nil {
				return Config{}, err
			}
			perms := make([]Permission, 0, len(permNames))
			for _, name := range permNames {
				p, err := ParsePermission(name)
				if err != nil {
					return Config{}, dErrors.Wrap(err, dErrors.CodeValidation, "invalid permission for role "+r.String())
				}
				perms = append(perms, p)
			}
			grants[r] = perms
		}
		cfg.Grants = grants
	}

	if len(f.Thresholds) > 0 {
		base := make(map[TransactionType]map[Segment]float64, len(f.Thresholds))
		for txType, bySegment := range f.Thresholds {
			limits := make(map[Segment]float64, len(bySegment))
			for seg, limit := range bySegment {
				limits[Segment(seg)] = limit
			}
			base[TransactionType(txType)] = limits
		}
		cfg.Base = base
	}

	if len(f.FXThresholds) > 0 {
		cfg.Foreign = f.FXThresholds
	}
	return cfg, nil
}
