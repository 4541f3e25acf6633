/*
File Name:  config.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner
*/

package main

import (
	"os"

	"gopkg.in/yaml.v3"
)

// defaultConfigYAML is the configuration used when no config file exists
// yet or it is empty, matching Settings.go's embedded-default pattern
// without requiring a separate asset file.
var defaultConfigYAML = []byte(`
Listen: ["0.0.0.0:8904"]
DataPath: "./addrbook-data"
PersistBackend: "file"
PersistIntervalSeconds: 300
ConsistencyCheckRatio: 0
Deterministic: false
`)

var config struct {
	Listen []string `yaml:"Listen"` // IP:Port combinations for the introspection API

	DataPath       string `yaml:"DataPath"`       // Directory holding the persisted address book
	PersistBackend string `yaml:"PersistBackend"` // "file" or "pogreb"

	PersistIntervalSeconds int `yaml:"PersistIntervalSeconds"` // How often to write the book to disk

	ConsistencyCheckRatio int  `yaml:"ConsistencyCheckRatio"` // 0 disables the probabilistic self-check
	Deterministic         bool `yaml:"Deterministic"`         // Fixed secret key and RNG seed, for tests
}

var configFile string

// LoadConfig reads the YAML configuration file. If the file does not
// exist or is empty, the built-in default is used instead.
// Status: 0 = Unknown error checking config file, 1 = Error reading config file, 2 = Error parsing config file, 3 = Success
func LoadConfig(filename string) (status int, err error) {
	var configData []byte
	configFile = filename

	stats, err := os.Stat(filename)
	if err != nil && os.IsNotExist(err) || err == nil && stats.Size() == 0 {
		configData = defaultConfigYAML
	} else if err != nil {
		return 0, err
	} else if configData, err = os.ReadFile(filename); err != nil {
		return 1, err
	}

	if err = yaml.Unmarshal(configData, &config); err != nil {
		return 2, err
	}
	return 3, nil
}
