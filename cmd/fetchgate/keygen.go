package main

import (
	"fmt"
	"os"

	"github.com/revittco/fetchgate/internal/secrets"
)

// cmdKeygen creates the age identity used to encrypt durable-tier
// values at rest. Refuses to overwrite an existing key.
func cmdKeygen() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	path := cfg.AgeKeyPath
	if path == "" {
		path = defaultDataPath("age.key")
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("key already exists at %s", path)
	}

	if _, err := secrets.GenerateIdentity(path); err != nil {
		return err
	}
	fmt.Printf("wrote age identity to %s\n", path)
	fmt.Println("set FETCHGATE_AGE_KEY to this path to encrypt cached values at rest")
	return nil
}
