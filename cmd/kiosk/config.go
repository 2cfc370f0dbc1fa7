package main

import (
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// config is the kiosk configuration. Values come from SCANGO_KIOSK_-prefixed
// environment variables, flags, or YAML files.
type config struct {
	APIURL       string        `default:"http://localhost:8080" usage:"Catalog API base URL" env:"API_URL" flag:"api-url"`
	APIKey       string        `usage:"API key sent when registering products" env:"API_KEY" flag:"api-key"`
	Memory       bool          `default:"false" usage:"Use an in-process catalog seeded with the demo products" env:"MEMORY" flag:"memory"`
	Scanner      string        `usage:"File or device to read scanned codes from, one per line" env:"SCANNER" flag:"scanner"`
	FPS          int           `default:"10" usage:"Decoder frames per second" env:"FPS" flag:"fps"`
	MissCooldown time.Duration `default:"1s" usage:"How long an unknown code stays debounced" env:"MISS_COOLDOWN" flag:"miss-cooldown"`
	PaymentDelay time.Duration `default:"2s" usage:"Simulated payment duration" env:"PAYMENT_DELAY" flag:"payment-delay"`
	SuccessDelay time.Duration `default:"2s" usage:"How long the admin form shows success" env:"SUCCESS_DELAY" flag:"success-delay"`
}

func loadConfig(args []string, files ...string) (*config, error) {
	var cfg config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SCANGO_KIOSK",
		Args:      args,
		Files:     files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *config) validate() error {
	if !c.Memory && c.APIURL == "" {
		return errors.New("api url is required unless the in-memory catalog is used")
	}
	if c.FPS <= 0 {
		return errors.Errorf("fps must be positive, got %d", c.FPS)
	}
	return nil
}
