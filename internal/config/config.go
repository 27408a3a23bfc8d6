// Package config loads and writes the devdeck.yaml device profile.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultFile is the profile name looked up in the working directory.
const DefaultFile = "devdeck.yaml"

// MQTT holds the optional broker block of a profile.
type MQTT struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port,omitempty"`
	ClientID     string `yaml:"client_id,omitempty"`
	Username     string `yaml:"username,omitempty"`
	Password     string `yaml:"password,omitempty"`
	CommandTopic string `yaml:"command_topic,omitempty"`
}

// Enabled reports whether the profile carries a usable broker block.
func (m MQTT) Enabled() bool { return m.Host != "" }

// Profile is one device's build and monitor configuration.
type Profile struct {
	Name      string `yaml:"name"`
	SketchDir string `yaml:"sketch_dir"`
	Sketch    string `yaml:"sketch,omitempty"`
	FQBN      string `yaml:"fqbn"`
	Port      string `yaml:"port"`
	Baud      int    `yaml:"baud,omitempty"`
	Log       string `yaml:"log,omitempty"`
	MQTT      MQTT   `yaml:"mqtt,omitempty"`
}

// Default returns the scaffold written by `devdeck init`.
func Default(name string) Profile {
	return Profile{
		Name:      name,
		SketchDir: ".",
		FQBN:      "esp32:esp32:esp32s3",
		Port:      "/dev/ttyACM0",
		Baud:      115200,
		Log:       "devdeck.log",
		MQTT: MQTT{
			Host:         "localhost",
			Port:         1883,
			CommandTopic: "devices/" + name + "/command",
		},
	}
}

// Write writes the profile as a YAML file.
func Write(path string, p Profile) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := yaml.Marshal(&p)
	if err != nil {
		return err
	}

	_, err = f.Write(data)
	return err
}

// Read loads a profile and fills the defaults the file leaves out.
func Read(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, err
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, err
	}

	if err := p.validate(); err != nil {
		return Profile{}, err
	}
	p.fillDefaults()
	return p, nil
}

func (p *Profile) validate() error {
	if p.Name == "" {
		return errors.New("invalid profile: missing name")
	}
	if p.FQBN == "" {
		return errors.New("invalid profile: missing fqbn")
	}
	if p.Port == "" {
		return errors.New("invalid profile: missing port")
	}
	if p.Baud < 0 {
		return fmt.Errorf("invalid profile: baud %d", p.Baud)
	}
	if p.MQTT.Port < 0 {
		return fmt.Errorf("invalid profile: mqtt port %d", p.MQTT.Port)
	}
	return nil
}

func (p *Profile) fillDefaults() {
	if p.SketchDir == "" {
		p.SketchDir = "."
	}
	if p.Baud == 0 {
		p.Baud = 115200
	}
	if p.Log == "" {
		p.Log = "devdeck.log"
	}
	if p.MQTT.Enabled() {
		if p.MQTT.Port == 0 {
			p.MQTT.Port = 1883
		}
		if p.MQTT.ClientID == "" {
			p.MQTT.ClientID = "devdeck-" + p.Name
		}
	}
}
