package comms

import (
	"os"
	"strings"

	"github.com/gomlx/exceptions"
)

// Runtime is a communication backend: a factory for cliques of communicators over
// whatever transport it drives.
type Runtime interface {
	// Name returns the short name of the runtime. E.g.: "inprocess" for the pure-Go
	// in-process implementation.
	Name() string

	// Description is a longer description of the Runtime that can be used to pretty-print.
	Description() string

	// NewClique creates a clique with the given number of ranks.
	NewClique(numRanks int) (Clique, error)
}

// Constructor takes a config string (optionally empty) and returns a Runtime.
type Constructor func(config string) Runtime

var (
	registeredConstructors = make(map[string]Constructor)
	firstRegistered        string
)

// Register runtime with the given name, and a default constructor that takes as input
// a configuration string that is passed along to the runtime constructor.
//
// To be safe, call Register during initialization of a package.
func Register(name string, constructor Constructor) {
	if len(registeredConstructors) == 0 {
		firstRegistered = name
	}
	registeredConstructors[name] = constructor
}

// DefaultConfig is the name of the default runtime configuration to use if specified.
//
// See NewWithConfig for the format of the configuration string.
var DefaultConfig string

// GOMLX_COMMS is the environment variable with the default runtime configuration to use.
//
// The format of config is "<runtime_name>:<runtime_configuration>".
// The "<runtime_name>" is the name of a registered runtime (e.g.: "inprocess") and
// "<runtime_configuration>" is runtime specific.
const GOMLX_COMMS = "GOMLX_COMMS"

// New returns a new default Runtime.
//
// The default is:
//
// 1. The environment GOMLX_COMMS is used as a configuration if defined.
// 2. Next the variable DefaultConfig is used as a configuration if defined.
// 3. The first registered runtime is used with an empty configuration.
//
// It panics if no runtime was registered.
func New() Runtime {
	config, found := os.LookupEnv(GOMLX_COMMS)
	if found {
		return NewWithConfig(config)
	}
	if DefaultConfig != "" {
		return NewWithConfig(DefaultConfig)
	}
	return NewWithConfig("")
}

// NewWithConfig takes a configuration string formatted as
//
// The format of config is "<runtime_name>:<runtime_configuration>".
// The "<runtime_name>" is the name of a registered runtime (e.g.: "inprocess") and
// "<runtime_configuration>" is runtime specific.
func NewWithConfig(config string) Runtime {
	if len(registeredConstructors) == 0 {
		exceptions.Panicf(`no registered communication runtimes -- maybe import the in-process one with import _ "github.com/gomlx/collectives/comms/inprocess"?`)
	}
	runtimeName := firstRegistered
	runtimeConfig := config
	if idx := strings.Index(config, ":"); idx != -1 {
		runtimeName = config[:idx]
		runtimeConfig = config[idx+1:]
	}
	constructor, found := registeredConstructors[runtimeName]
	if !found {
		exceptions.Panicf("can't find communication runtime %q for configuration %q given", runtimeName, config)
	}
	return constructor(runtimeConfig)
}
