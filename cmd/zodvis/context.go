package main

import (
	"strings"
	"sync"

	"zodvis/lib"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     lib.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

// ensureConfig loads the yaml file named by --config, or the defaults when
// no file is given. Flag overrides are applied by each command afterwards.
func (c *commandContext) ensureConfig() (lib.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		if path == "" {
			c.config = lib.DefaultConfig()
			return
		}
		c.config, c.configErr = lib.GetConfig(path)
	})
	return c.config, c.configErr
}
