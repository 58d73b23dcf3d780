package adapter

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/btc-l2/anchorcore/pkg/errs"
)

// LoadConfig reads a YAML adapter configuration file, grounded on the
// teacher's devnet config loader (cmd/cli/devnet.go), which unmarshals a
// testnet config file the same way via gopkg.in/yaml.v3 before handing
// it to the core.
func LoadConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errs.Wrap(errs.NotFound, "adapter: reading config file", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, errs.Wrap(errs.Validation, "adapter: parsing config yaml", err)
	}
	return cfg, nil
}
