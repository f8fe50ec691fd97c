package config

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

// schemaSource constrains a decoded Config. Field names follow the json
// tags, which is what cue's Go encoder uses.
const schemaSource = `
#Config: {
	runtime: {
		maxFrames:     int & >=1 & <=1048576
		initialLocals: int & >=1
		maxLocals:     int & >=initialLocals & <=268435456
		profile:       bool
	}
	cache: {
		enabled:  bool
		size:     int & >=1 & <=1048576
		maxProbe: int & >=0 & <size
	}
	scheduler: {
		workers:   int & >=1 & <=4096
		quantumMs: int & >=1 & <=60000
	}
	journal: path: string
	server: {
		address:     string
		httpAddress: string
	}
	logging: {
		verbosity: int & >=-4 & <=2
		file:      string
	}
}
`

// Validate checks c against the configuration schema.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource).LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}

	v := schema.Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid configuration: %s", errors.Details(err, nil))
	}
	return nil
}
